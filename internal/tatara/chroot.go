package tatara

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

// External tool that provisions the emulated Alpine root filesystems. It
// installs a QEMU user-mode binary for foreign architectures and leaves
// enter-chroot and destroy entry points inside the new root.
const chrootTool = "alpine-chroot-install"

// Recipe properties the chroot path reads.
const (
	propAlpineVersion = "alpine_version"
	propMakeDepends   = "makedepends"
	propNativeBuild   = "native_build"
	propBrokenCross   = "broken_cross"
)

// withChroot provisions a chroot for one (asset, architecture) pair under
// buildRoot, bind-mounts the build tree into it at its own absolute path,
// runs fn with the chroot directory, and tears the chroot down again on
// every exit path, including failure inside fn and external interruption.
// Teardown runs exactly once; a teardown failure after a successful build
// still surfaces as this asset's error.
func withChroot(asset string, a Architecture, buildRoot string, opts RunOptions, execCtx *Executor, fn func(chrootDir string) error) (err error) {
	version, err := getProperty(asset, a.Name, propAlpineVersion, false, opts, execCtx)
	if err != nil {
		if errors.Is(err, errPropertyNotSet) {
			return fmt.Errorf("recipe for %s declares no %s, cannot build natively for %s",
				asset, propAlpineVersion, a.Name)
		}
		return err
	}

	packages, err := getArrayProperty(asset, a.Name, propMakeDepends, opts, execCtx)
	if err != nil && !errors.Is(err, errPropertyNotSet) {
		return err
	}

	// The provisioning tool needs the list of variables to keep exposed
	// inside the chroot. Chroot builds always target musl.
	recipe := recipePath(opts.RecipeDir, asset)
	env, err := buildEnv(hostEnv, envParams{
		Asset:     asset,
		Arch:      a.Name,
		BuildDir:  opts.BuildDir,
		Toolchain: "none",
		Recipe:    recipe,
		UseMusl:   true,
	})
	if err != nil {
		return err
	}

	chrootDir := filepath.Join(buildRoot, a.Name, "chroot")
	args := []string{
		"-b", version,
		"-d", chrootDir,
		"-i", opts.RecipeDir,
		"-a", a.Emulation,
		"-p", shellquote.Join(packages...),
		"-k", strings.Join(envKeys(env), " "),
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Provisioning %s chroot for %s in %s\n", a.Name, asset, chrootDir)
	if err := RootExec.Run(exec.Command(chrootTool, args...)); err != nil {
		return fmt.Errorf("chroot provisioning for %s/%s failed: %w", asset, a.Name, err)
	}

	// The recipe must see the build tree at the same absolute path inside
	// the chroot as outside.
	absRoot, err := filepath.Abs(buildRoot)
	if err != nil {
		return err
	}
	bindDest := filepath.Join(chrootDir, absRoot)
	if err := RootExec.BindMount(absRoot, bindDest); err != nil {
		if derr := destroyChroot(chrootDir); derr != nil {
			debugf("teardown after failed bind mount: %v\n", derr)
		}
		return err
	}

	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)

	defer func() {
		colArrow.Print("-> ")
		colSuccess.Printf("Destroying %s chroot for %s\n", a.Name, asset)
		if uerr := RootExec.Unmount(bindDest); uerr != nil && err == nil {
			err = uerr
		}
		if derr := destroyChroot(chrootDir); derr != nil && err == nil {
			err = derr
		}
	}()

	return fn(chrootDir)
}

// destroyChroot invokes the chroot's own teardown entry point with the
// removal flag. No retry.
func destroyChroot(chrootDir string) error {
	cmd := exec.Command(filepath.Join(chrootDir, "destroy"), "--remove")
	if err := RootExec.Run(cmd); err != nil {
		return fmt.Errorf("chroot teardown for %s failed: %w", chrootDir, err)
	}
	return nil
}

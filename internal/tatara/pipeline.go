package tatara

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockFileName guards a build root against concurrent invocations. Two
// pipelines sharing one build tree is undefined behavior, so the second one
// must fail fast instead.
const lockFileName = ".lock"

func lockBuildRoot(root string) (func(), error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(root, lockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("build directory %s is already in use", root)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// resetBuildTree wipes the build root. Persistent build directories get
// their old contents removed rather than reused; there is no incremental
// build support.
func resetBuildTree(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == lockFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return fmt.Errorf("failed to reset build tree: %w", err)
		}
	}
	return nil
}

// buildAsset runs the full per-asset sequence: reset the build tree, fetch
// sources once into the shared download dir, then build and install for
// each requested architecture in order. The first failing architecture
// aborts the asset; the caller's batch loop decides whether to continue
// with other assets.
func buildAsset(asset string, archs []Architecture, toolchains map[string]string, preferNative bool, buildRoot, recipeDir string, execCtx *Executor) error {
	if _, err := os.Stat(recipePath(recipeDir, asset)); err != nil {
		return fmt.Errorf("%s: %w", asset, errRecipeNotFound)
	}

	unlock, err := lockBuildRoot(buildRoot)
	if err != nil {
		return err
	}
	defer unlock()

	if err := resetBuildTree(buildRoot); err != nil {
		return err
	}

	// Sources are fetched exactly once, architecture-agnostic.
	downloadDir := filepath.Join(buildRoot, "download")
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return err
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Downloading sources for %s\n", asset)
	_, err = runActions(asset, archAny, []string{"download"}, RunOptions{
		BuildDir:  downloadDir,
		RecipeDir: recipeDir,
		Toolchain: "none",
	}, execCtx)
	if err != nil {
		return err
	}

	if err := writeManifest(downloadDir); err != nil {
		return fmt.Errorf("failed to write source manifest: %w", err)
	}
	manifest, err := readManifest(downloadDir)
	if err != nil {
		return err
	}

	for _, a := range archs {
		if err := buildArch(asset, a, toolchains[a.Name], preferNative, buildRoot, recipeDir, downloadDir, manifest, execCtx); err != nil {
			return fmt.Errorf("%s for %s: %w", asset, a.Name, err)
		}
	}
	return nil
}

// buildArch builds and installs one asset for one architecture from a fresh
// copy of the shared download tree.
func buildArch(asset string, a Architecture, toolchain string, preferNative bool, buildRoot, recipeDir, downloadDir string, manifest map[string]string, execCtx *Executor) error {
	srcDir := filepath.Join(buildRoot, a.Name, "source")
	if err := os.RemoveAll(srcDir); err != nil {
		return err
	}
	if err := copyTree(downloadDir, srcDir); err != nil {
		return fmt.Errorf("failed to copy sources: %w", err)
	}
	if err := verifyTree(srcDir, manifest); err != nil {
		return err
	}

	logDir := filepath.Join(buildRoot, a.Name, "log")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	opts := RunOptions{
		BuildDir:  srcDir,
		RecipeDir: recipeDir,
		Toolchain: toolchain,
		LogDir:    logDir,
	}

	native, err := shouldBuildNatively(asset, a, preferNative, RunOptions{
		BuildDir:  srcDir,
		RecipeDir: recipeDir,
		Toolchain: toolchain,
	}, execCtx)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	if native {
		colSuccess.Printf("Building %s natively for %s\n", asset, a.Name)
		err = withChroot(asset, a, buildRoot, opts, execCtx, func(chrootDir string) error {
			chrootOpts := opts
			chrootOpts.ChrootDir = chrootDir
			_, err := runActions(asset, a.Name, []string{"build", "install"}, chrootOpts, execCtx)
			return err
		})
	} else {
		colSuccess.Printf("Cross-compiling %s for %s\n", asset, a.Name)
		_, err = runActions(asset, a.Name, []string{"build", "install"}, opts, execCtx)
	}
	if err != nil {
		return err
	}

	// Package whatever the install action left in the output tree.
	outDir := filepath.Join(buildRoot, a.Name, "out")
	if info, statErr := os.Stat(outDir); statErr == nil && info.IsDir() {
		tarball, err := packArtifact(asset, a.Name, outDir, artifactFormat)
		if err != nil {
			return err
		}
		colArrow.Print("-> ")
		colSuccess.Printf("Artifact created: %s\n", tarball)
	}

	if err := archiveLogs(asset, a.Name, logDir); err != nil {
		colWarn.Printf("Could not archive build logs for %s/%s: %v\n", asset, a.Name, err)
	}
	return nil
}

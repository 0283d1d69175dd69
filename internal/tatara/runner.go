package tatara

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
)

// RunOptions carries the per-step parameters shared by action runs and
// property probes.
type RunOptions struct {
	BuildDir  string // working directory for the step
	RecipeDir string // directory holding the recipe scripts
	Toolchain string // cross toolchain prefix, "" or "none" for no prefix
	ChrootDir string // run build/install inside this chroot when set
	Capture   bool   // record stdout per action instead of streaming
	LogDir    string // mirror streamed output into <LogDir>/<action>.log
}

// invokingUser names the non-privileged user the chroot actions run as.
func invokingUser() string {
	if u := hostEnv["SUDO_USER"]; u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "root"
}

// runActions sources the asset's recipe and invokes each named action in
// order as a subprocess. With a chroot dir set, the build and install
// actions are evaluated inside the chroot as the invoking user; download
// and anything else always run on the host (network access inside the
// emulated root is not assumed). A chroot build never cross-compiles, so
// the toolchain is forced to "none". The first failing action aborts the
// rest.
func runActions(asset, arch string, actions []string, opts RunOptions, execCtx *Executor) (map[string]string, error) {
	if opts.ChrootDir != "" {
		opts.Toolchain = "none"
	}

	recipe := recipePath(opts.RecipeDir, asset)
	env, err := buildEnv(hostEnv, envParams{
		Asset:     asset,
		Arch:      arch,
		BuildDir:  opts.BuildDir,
		Toolchain: opts.Toolchain,
		Recipe:    recipe,
		UseMusl:   opts.ChrootDir != "",
	})
	if err != nil {
		return nil, err
	}

	var captured map[string]string
	if opts.Capture {
		captured = make(map[string]string, len(actions))
	}

	for _, action := range actions {
		expr := recipeExpr(recipe, action)

		var cmd *exec.Cmd
		runAs := execCtx
		if opts.ChrootDir != "" && (action == "build" || action == "install") {
			enter := filepath.Join(opts.ChrootDir, "enter-chroot")
			cmd = exec.Command(enter, "-u", invokingUser(), "sh", "-c", expr)
			runAs = RootExec
		} else {
			cmd = exec.Command("bash", "-c", expr)
		}
		cmd.Dir = opts.BuildDir
		cmd.Env = renderEnv(env)

		var buf bytes.Buffer
		var logFile *os.File
		if opts.Capture {
			cmd.Stdout = &buf
		} else if opts.LogDir != "" {
			logFile, err = os.Create(filepath.Join(opts.LogDir, action+".log"))
			if err != nil {
				return nil, fmt.Errorf("failed to create action log: %w", err)
			}
			// Quiet runs only log; -v mirrors the output to the terminal.
			if Verbose {
				cmd.Stdout = io.MultiWriter(os.Stdout, logFile)
				cmd.Stderr = io.MultiWriter(os.Stderr, logFile)
			} else {
				cmd.Stdout = logFile
				cmd.Stderr = logFile
			}
		}

		debugf("Running action %s for %s/%s in %s\n", action, asset, arch, opts.BuildDir)
		runErr := runAs.Run(cmd)
		if logFile != nil {
			logFile.Close()
		}
		if runErr != nil {
			return nil, fmt.Errorf("action %s for %s/%s failed: %w", action, asset, arch, runErr)
		}
		if opts.Capture {
			captured[action] = buf.String()
		}
	}

	if opts.Capture {
		return captured, nil
	}
	return nil, nil
}

package tatara

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Exit status the probe reserves for "variable not declared". Distinct from
// any plausible recipe failure so it can be told apart from a broken recipe.
const propertyNotSetExit = 113

func recipePath(recipeDir, asset string) string {
	return filepath.Join(recipeDir, asset+".sh")
}

// recipeExpr builds the shell fragment that sources the recipe and then
// evaluates expr in its context.
func recipeExpr(recipe, expr string) string {
	return fmt.Sprintf("set -e\n. %s\n%s", recipe, expr)
}

// getProperty reads a declared variable from the asset's recipe by sourcing
// it and printing the value. Array properties come back newline-joined.
// An undeclared variable yields errPropertyNotSet; a declared-but-empty one
// yields an empty string, which is a distinct, observable state.
//
// Sourcing runs the recipe's full top-level code, so property reads are not
// free and any top-level side effects happen on every read. Recipes may
// compute properties dynamically, so this must stay a real evaluation.
func getProperty(asset, arch, name string, isArray bool, opts RunOptions, execCtx *Executor) (string, error) {
	var probe string
	if isArray {
		probe = fmt.Sprintf("if [ -z ${%s+x} ]; then exit %d; fi; printf '%%s\\n' \"${%s[@]}\"",
			name, propertyNotSetExit, name)
	} else {
		probe = fmt.Sprintf("if [ -z ${%s+x} ]; then exit %d; fi; printf '%%s' \"$%s\"",
			name, propertyNotSetExit, name)
	}

	out, err := runProbe(asset, arch, probe, opts, execCtx)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == propertyNotSetExit {
			return "", fmt.Errorf("property %s of %s: %w", name, asset, errPropertyNotSet)
		}
		return "", fmt.Errorf("failed to read property %s of %s: %w", name, asset, err)
	}
	return out, nil
}

// getArrayProperty splits an array property into its ordered elements.
func getArrayProperty(asset, arch, name string, opts RunOptions, execCtx *Executor) ([]string, error) {
	out, err := getProperty(asset, arch, name, true, opts, execCtx)
	if err != nil {
		return nil, err
	}
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// isPropertySet folds the not-set condition into a boolean.
func isPropertySet(asset, arch, name string, opts RunOptions, execCtx *Executor) (bool, error) {
	_, err := getProperty(asset, arch, name, false, opts, execCtx)
	if err != nil {
		if errors.Is(err, errPropertyNotSet) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// runProbe evaluates a probe expression against the sourced recipe in the
// step environment and captures its stdout.
func runProbe(asset, arch, probe string, opts RunOptions, execCtx *Executor) (string, error) {
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
		return "", err
	}

	cmd := exec.Command("bash", "-c", recipeExpr(recipe, probe))
	if opts.BuildDir != "" {
		cmd.Dir = opts.BuildDir
	}
	cmd.Env = renderEnv(env)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := execCtx.Run(cmd); err != nil {
		return "", err
	}
	return out.String(), nil
}

package tatara

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// Reserved prefix for variables that may pass from the host into builds
	// and for the computed build parameters.
	envPrefix = "TATARA_"
	// Key under which the environment self-reports the variables the recipe
	// actually references. Excluded from its own scan.
	usedEnvKey = "TATARA_USED_ENV"
)

// Host variables allowed into builds besides the TATARA_* family.
var envPassthrough = map[string]bool{
	"PATH": true,
}

// captureHostEnv snapshots the process environment once at startup.
func captureHostEnv() {
	hostEnv = make(map[string]string)
	for _, entry := range os.Environ() {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) == 2 {
			hostEnv[parts[0]] = parts[1]
		}
	}
}

type envParams struct {
	Asset     string
	Arch      string
	BuildDir  string
	Toolchain string
	Recipe    string
	UseMusl   bool
}

// hasToolchain reports whether tc names a real cross toolchain prefix.
// Both "" and the explicit "none" sentinel mean building without one.
func hasToolchain(tc string) bool {
	return tc != "" && tc != "none"
}

// buildEnv computes the environment for one build step. The result is a pure
// function of the host snapshot and the parameters: only TATARA_* host
// variables and the passthrough allow-list survive from the host, computed
// build parameters are overlaid, and unset values are never inserted.
// Calling twice with identical inputs yields identical mappings.
func buildEnv(host map[string]string, p envParams) (map[string]string, error) {
	env := make(map[string]string)
	for key, val := range host {
		// The used-variable report is computed below; a host-exported copy
		// must not seed the map or it would scan itself.
		if key == usedEnvKey {
			continue
		}
		if strings.HasPrefix(key, envPrefix) || envPassthrough[key] {
			env[key] = val
		}
	}

	absBuild, err := filepath.Abs(p.BuildDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve build dir %s: %w", p.BuildDir, err)
	}

	env["TATARA_ASSET"] = p.Asset
	env["TATARA_ARCH"] = p.Arch
	env["TATARA_RECIPE"] = p.Recipe
	env["TATARA_BUILD_DIR"] = absBuild
	// Per-architecture output tree, sibling of the source dir.
	env["TATARA_OUT"] = filepath.Clean(filepath.Join(absBuild, "..", "out"))
	if hasToolchain(p.Toolchain) {
		env["CROSS_COMPILE"] = p.Toolchain + "-"
		env["HOST_TRIPLE"] = filepath.Base(p.Toolchain)
	}
	if p.UseMusl {
		// Chroot builds target a musl libc.
		env["TATARA_MUSL"] = "1"
	}

	// Scan the raw recipe text for literal occurrences of each variable name
	// so the recipe can self-report its true inputs.
	text, err := os.ReadFile(p.Recipe)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe %s: %w", p.Recipe, err)
	}
	used := make([]string, 0, len(env))
	for key := range env {
		if strings.Contains(string(text), key) {
			used = append(used, key)
		}
	}
	sort.Strings(used)
	env[usedEnvKey] = strings.Join(used, " ")

	return env, nil
}

// renderEnv flattens the mapping into KEY=VALUE form in deterministic order.
func renderEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rendered := make([]string, 0, len(keys))
	for _, k := range keys {
		rendered = append(rendered, k+"="+env[k])
	}
	return rendered
}

// envKeys returns the sorted key set of an environment mapping. The chroot
// provisioning tool needs the list of variables to keep exposed inside.
func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package tatara

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func testRecipe(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	writeRecipe(t, dir, "demo", content)
	return recipePath(dir, "demo")
}

func TestBuildEnvDeterministic(t *testing.T) {
	t.Setenv("TATARA_CFLAGS", "-O2")
	initTestExec(t)
	recipe := testRecipe(t, `build() { :; }`)
	p := envParams{
		Asset:     "demo",
		Arch:      "arm64",
		BuildDir:  t.TempDir(),
		Toolchain: "aarch64-linux-gnu",
		Recipe:    recipe,
	}

	first, err := buildEnv(hostEnv, p)
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}
	second, err := buildEnv(hostEnv, p)
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}
	if !reflect.DeepEqual(renderEnv(first), renderEnv(second)) {
		t.Fatal("identical inputs produced different environments")
	}
}

func TestBuildEnvFiltersHost(t *testing.T) {
	t.Setenv("TATARA_CFLAGS", "-O2")
	t.Setenv("SOME_UNRELATED_VAR", "leak")
	initTestExec(t)
	recipe := testRecipe(t, `build() { :; }`)

	env, err := buildEnv(hostEnv, envParams{
		Asset: "demo", Arch: "arm64", BuildDir: t.TempDir(), Recipe: recipe,
	})
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}

	if env["TATARA_CFLAGS"] != "-O2" {
		t.Fatalf("prefixed host variable missing, env = %v", envKeys(env))
	}
	if _, ok := env["SOME_UNRELATED_VAR"]; ok {
		t.Fatal("unrelated host variable leaked into build environment")
	}
	if _, ok := env["PATH"]; !ok {
		t.Fatal("PATH passthrough missing")
	}
}

func TestBuildEnvToolchain(t *testing.T) {
	initTestExec(t)
	recipe := testRecipe(t, `build() { :; }`)
	buildDir := t.TempDir()

	env, err := buildEnv(hostEnv, envParams{
		Asset: "demo", Arch: "arm64", BuildDir: buildDir,
		Toolchain: "/opt/cross/bin/aarch64-linux-gnu", Recipe: recipe,
	})
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}
	if env["CROSS_COMPILE"] != "/opt/cross/bin/aarch64-linux-gnu-" {
		t.Fatalf("CROSS_COMPILE = %q", env["CROSS_COMPILE"])
	}
	if env["HOST_TRIPLE"] != "aarch64-linux-gnu" {
		t.Fatalf("HOST_TRIPLE = %q", env["HOST_TRIPLE"])
	}

	for _, tc := range []string{"", "none"} {
		env, err := buildEnv(hostEnv, envParams{
			Asset: "demo", Arch: "x86_64", BuildDir: buildDir,
			Toolchain: tc, Recipe: recipe,
		})
		if err != nil {
			t.Fatalf("buildEnv: %v", err)
		}
		if _, ok := env["CROSS_COMPILE"]; ok {
			t.Fatalf("CROSS_COMPILE present for toolchain %q", tc)
		}
		if _, ok := env["HOST_TRIPLE"]; ok {
			t.Fatalf("HOST_TRIPLE present for toolchain %q", tc)
		}
	}
}

func TestBuildEnvMuslAndOut(t *testing.T) {
	initTestExec(t)
	recipe := testRecipe(t, `build() { :; }`)
	root := t.TempDir()
	buildDir := filepath.Join(root, "arm64", "source")

	env, err := buildEnv(hostEnv, envParams{
		Asset: "demo", Arch: "arm64", BuildDir: buildDir,
		Recipe: recipe, UseMusl: true,
	})
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}
	if env["TATARA_MUSL"] != "1" {
		t.Fatalf("TATARA_MUSL = %q, want 1", env["TATARA_MUSL"])
	}
	if want := filepath.Join(root, "arm64", "out"); env["TATARA_OUT"] != want {
		t.Fatalf("TATARA_OUT = %q, want %q", env["TATARA_OUT"], want)
	}

	env, err = buildEnv(hostEnv, envParams{
		Asset: "demo", Arch: "arm64", BuildDir: buildDir, Recipe: recipe,
	})
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}
	if _, ok := env["TATARA_MUSL"]; ok {
		t.Fatal("TATARA_MUSL set without a chroot")
	}
}

func TestBuildEnvUsedExcludesItself(t *testing.T) {
	t.Setenv("TATARA_USED_ENV", "stale host value")
	initTestExec(t)
	recipe := testRecipe(t, `
build() { echo "$TATARA_USED_ENV"; }
`)

	env, err := buildEnv(hostEnv, envParams{
		Asset: "demo", Arch: "arm64", BuildDir: t.TempDir(), Recipe: recipe,
	})
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}

	for _, key := range strings.Fields(env[usedEnvKey]) {
		if key == usedEnvKey {
			t.Fatalf("used-variable report includes its own name: %q", env[usedEnvKey])
		}
	}
	if env[usedEnvKey] != "" {
		t.Fatalf("used-variable report = %q, want empty for a recipe that reads nothing else", env[usedEnvKey])
	}
}

func TestBuildEnvUsedVariables(t *testing.T) {
	initTestExec(t)
	recipe := testRecipe(t, `
build() {
	echo "$TATARA_ASSET" "$PATH"
}
`)

	env, err := buildEnv(hostEnv, envParams{
		Asset: "demo", Arch: "arm64", BuildDir: t.TempDir(), Recipe: recipe,
	})
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}

	used := strings.Fields(env[usedEnvKey])
	want := map[string]bool{"TATARA_ASSET": true, "PATH": true}
	for _, key := range used {
		if !want[key] {
			t.Fatalf("unexpected used variable %q (used = %v)", key, used)
		}
		delete(want, key)
	}
	for key := range want {
		t.Fatalf("used variables missing %q (used = %v)", key, used)
	}
}

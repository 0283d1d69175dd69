package tatara

import (
	"strings"
	"testing"
)

func TestShouldBuildNatively(t *testing.T) {
	initTestExec(t)

	tests := []struct {
		name         string
		recipe       string
		preferNative bool
		want         bool
	}{
		{"default is cross", `alpine_version="3.20"`, false, false},
		{"prefer native without support falls back", `alpine_version="3.20"`, true, false},
		{"prefer native with support", "native_build=1\n", true, true},
		{"native support alone does not force native", "native_build=1\n", false, false},
		{"broken cross forces native", "native_build=1\nbroken_cross=1\n", false, true},
		{"broken cross with prefer native", "native_build=1\nbroken_cross=1\n", true, true},
	}

	arch := mustArch(t, "arm64")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recipeDir := t.TempDir()
			writeRecipe(t, recipeDir, "demo", tc.recipe)
			opts := RunOptions{RecipeDir: recipeDir, BuildDir: t.TempDir()}

			got, err := shouldBuildNatively("demo", arch, tc.preferNative, opts, UserExec)
			if err != nil {
				t.Fatalf("shouldBuildNatively: %v", err)
			}
			if got != tc.want {
				t.Fatalf("shouldBuildNatively = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShouldBuildNativelyContradiction(t *testing.T) {
	initTestExec(t)
	recipeDir := t.TempDir()
	writeRecipe(t, recipeDir, "demo", "broken_cross=1\n")
	opts := RunOptions{RecipeDir: recipeDir, BuildDir: t.TempDir()}

	_, err := shouldBuildNatively("demo", mustArch(t, "x86_64"), false, opts, UserExec)
	if err == nil {
		t.Fatal("expected error for broken cross without native support")
	}
	if !strings.Contains(err.Error(), "no native build support") {
		t.Fatalf("unexpected error: %v", err)
	}
}

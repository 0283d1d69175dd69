package tatara

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// fakeChrootTools installs stand-ins for the provisioning tool and the
// mount binaries on PATH. Every invocation is appended to the returned
// event log.
func fakeChrootTools(t *testing.T, provisionExit int) string {
	t.Helper()
	bin := t.TempDir()
	events := filepath.Join(t.TempDir(), "events")

	writeScript(t, bin, chrootTool, `
dir=""
emu=""
while [ $# -gt 0 ]; do
	case "$1" in
	-d) dir="$2"; shift 2 ;;
	-a) emu="$2"; shift 2 ;;
	*) shift ;;
	esac
done
printf 'provision %s %s\n' "$emu" "$dir" >> "$TATARA_EVENTS"
if [ `+strconv.Itoa(provisionExit)+` -ne 0 ]; then exit `+strconv.Itoa(provisionExit)+`; fi
mkdir -p "$dir"
cat > "$dir/destroy" <<'EOF'
#!/bin/sh
printf 'destroy\n' >> "$TATARA_EVENTS"
EOF
chmod +x "$dir/destroy"
`)
	writeScript(t, bin, "mount", `printf 'mount %s\n' "$1" >> "$TATARA_EVENTS"`)
	writeScript(t, bin, "umount", `printf 'umount\n' >> "$TATARA_EVENTS"`)

	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))
	t.Setenv("TATARA_EVENTS", events)
	return events
}

func countEvents(lines []string, prefix string) int {
	n := 0
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func TestWithChrootTeardownOnFailure(t *testing.T) {
	events := fakeChrootTools(t, 0)
	initTestExec(t)

	recipeDir := t.TempDir()
	writeRecipe(t, recipeDir, "demo", `alpine_version="3.20"
makedepends=(build-base curl)
`)
	buildRoot := t.TempDir()
	opts := RunOptions{RecipeDir: recipeDir, BuildDir: t.TempDir()}

	bang := errors.New("bang")
	var gotDir string
	err := withChroot("demo", mustArch(t, "arm64"), buildRoot, opts, UserExec, func(chrootDir string) error {
		gotDir = chrootDir
		return bang
	})
	if !errors.Is(err, bang) {
		t.Fatalf("withChroot error = %v, want the callback's error", err)
	}
	if want := filepath.Join(buildRoot, "arm64", "chroot"); gotDir != want {
		t.Fatalf("chroot dir = %q, want %q", gotDir, want)
	}

	lines := readLines(t, events)
	if countEvents(lines, "provision aarch64 ") != 1 {
		t.Fatalf("expected one provisioning call with aarch64 emulation, events = %v", lines)
	}
	if countEvents(lines, "destroy") != 1 {
		t.Fatalf("teardown must run exactly once, events = %v", lines)
	}
	if countEvents(lines, "umount") != 1 {
		t.Fatalf("bind mount must be released, events = %v", lines)
	}
	if countEvents(lines, "mount --bind") != 1 {
		t.Fatalf("expected one bind mount, events = %v", lines)
	}
}

func TestWithChrootProvisionFailure(t *testing.T) {
	events := fakeChrootTools(t, 3)
	initTestExec(t)

	recipeDir := t.TempDir()
	writeRecipe(t, recipeDir, "demo", `alpine_version="3.20"`)
	opts := RunOptions{RecipeDir: recipeDir, BuildDir: t.TempDir()}

	called := false
	err := withChroot("demo", mustArch(t, "x86_64"), t.TempDir(), opts, UserExec, func(string) error {
		called = true
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "chroot provisioning") {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("callback ran despite failed provisioning")
	}

	lines := readLines(t, events)
	if countEvents(lines, "mount") != 0 {
		t.Fatalf("nothing should be mounted after failed provisioning, events = %v", lines)
	}
	if countEvents(lines, "destroy") != 0 {
		t.Fatalf("no teardown without a provisioned chroot, events = %v", lines)
	}
}

func TestWithChrootRequiresAlpineVersion(t *testing.T) {
	fakeChrootTools(t, 0)
	initTestExec(t)

	recipeDir := t.TempDir()
	writeRecipe(t, recipeDir, "demo", `native_build=1`)
	opts := RunOptions{RecipeDir: recipeDir, BuildDir: t.TempDir()}

	err := withChroot("demo", mustArch(t, "arm64"), t.TempDir(), opts, UserExec, func(string) error {
		t.Fatal("callback must not run")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "alpine_version") {
		t.Fatalf("unexpected error: %v", err)
	}
}

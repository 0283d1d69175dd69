package tatara

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// initTestExec points the global executors at plain unprivileged runners and
// resnapshots the host environment so t.Setenv values become visible to
// build environments.
func initTestExec(t *testing.T) {
	t.Helper()
	UserExec = NewExecutor(context.Background())
	RootExec = NewExecutor(context.Background())
	captureHostEnv()
}

func writeRecipe(t *testing.T, dir, asset, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, asset+".sh"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing recipe %s: %v", asset, err)
	}
}

// writeScript drops an executable fake tool into dir.
func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing script %s: %v", name, err)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func mustArch(t *testing.T, name string) Architecture {
	t.Helper()
	a, ok := archByName(name)
	if !ok {
		t.Fatalf("unknown architecture %s", name)
	}
	return a
}

package tatara

import (
	"strings"
	"testing"
)

func TestResolveToolchains(t *testing.T) {
	cfg := &Config{Values: map[string]string{
		"TATARA_HOST_ARCH":     "x86_64",
		"TATARA_CROSS_COMPILE": "generic-linux-gnu",
	}}
	archs := []Architecture{
		mustArch(t, "arm64"),
		mustArch(t, "armeabi"),
		mustArch(t, "x86_64"),
	}
	flags := map[string]string{"arm64": "aarch64-linux-gnu"}

	got, err := resolveToolchains(archs, flags, cfg)
	if err != nil {
		t.Fatalf("resolveToolchains: %v", err)
	}

	if got["arm64"] != "aarch64-linux-gnu" {
		t.Fatalf("per-arch flag not honored: %q", got["arm64"])
	}
	if got["armeabi"] != "generic-linux-gnu" {
		t.Fatalf("global default not applied: %q", got["armeabi"])
	}
	if got["x86_64"] != "none" {
		t.Fatalf("host architecture should default to no prefix: %q", got["x86_64"])
	}
}

func TestResolveToolchainsMissing(t *testing.T) {
	cfg := &Config{Values: map[string]string{}}
	archs := []Architecture{mustArch(t, "arm64")}

	_, err := resolveToolchains(archs, map[string]string{}, cfg)
	if err == nil || !strings.Contains(err.Error(), "no toolchain configured for arm64") {
		t.Fatalf("error = %v, want missing-toolchain failure", err)
	}
}

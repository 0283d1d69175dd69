package tatara

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// manifestName is the digest index written into the shared download tree
// after a successful download. Per-architecture source copies are verified
// against it before building.
const manifestName = ".manifest"

// b3sumFile computes the BLAKE3 digest of a file (32-byte output, no key).
func b3sumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// hashTree digests every regular file under dir, keyed by relative path.
// The manifest file itself is skipped.
func hashTree(dir string) (map[string]string, error) {
	sums := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == manifestName {
			return nil
		}
		sum, err := b3sumFile(path)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", path, err)
		}
		sums[rel] = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sums, nil
}

// writeManifest records a digest per downloaded file, one "sum  path" line
// each, sorted by path.
func writeManifest(dir string) error {
	sums, err := hashTree(dir)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(sums))
	for p := range sums {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&sb, "%s  %s\n", sums[p], p)
	}
	return os.WriteFile(filepath.Join(dir, manifestName), []byte(sb.String()), 0o644)
}

// readManifest loads the digest index written by writeManifest.
func readManifest(dir string) (map[string]string, error) {
	f, err := os.Open(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sums := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 {
			continue
		}
		sums[parts[1]] = parts[0]
	}
	return sums, scanner.Err()
}

// verifyTree checks a copied source tree against the download manifest.
func verifyTree(dir string, manifest map[string]string) error {
	for rel, want := range manifest {
		got, err := b3sumFile(filepath.Join(dir, rel))
		if err != nil {
			return fmt.Errorf("source copy is missing %s: %w", rel, err)
		}
		if got != want {
			return fmt.Errorf("source copy of %s is corrupt (checksum mismatch)", rel)
		}
	}
	return nil
}

package tatara

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// artifactName returns the tarball file name for one (asset, arch) result.
func artifactName(asset, arch, format string) string {
	return fmt.Sprintf("%s@%s.tar.%s", asset, arch, format)
}

// packArtifact archives the per-architecture output tree into ArtifactDir
// and drops a BLAKE3 digest file next to it. The format is zst, gz or xz.
func packArtifact(asset, arch, outputDir, format string) (string, error) {
	if err := os.MkdirAll(ArtifactDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	tarballPath := filepath.Join(ArtifactDir, artifactName(asset, arch, format))

	outFile, err := os.Create(tarballPath)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer outFile.Close()

	var zw io.WriteCloser
	switch format {
	case "gz":
		zw = pgzip.NewWriter(outFile)
	case "xz":
		zw, err = xz.NewWriter(outFile)
	default: // zst
		zw, err = zstd.NewWriter(outFile)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create %s writer: %w", format, err)
	}

	tw := tar.NewWriter(zw)
	err = filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}

		hdr, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		if rel == "." {
			hdr.Name = "./"
			hdr.Mode = 0o755
		} else {
			hdr.Name = rel
		}

		// Artifacts must be portably root-owned.
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if rel == "." || !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		tw.Close()
		zw.Close()
		return "", fmt.Errorf("failed to add files to artifact: %w", err)
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	if err := outFile.Close(); err != nil {
		return "", err
	}

	sum, err := b3sumFile(tarballPath)
	if err != nil {
		return "", fmt.Errorf("failed to checksum artifact: %w", err)
	}
	digest := fmt.Sprintf("%s  %s\n", sum, filepath.Base(tarballPath))
	if err := os.WriteFile(tarballPath+".b3", []byte(digest), 0o644); err != nil {
		return "", err
	}

	return tarballPath, nil
}

// compressXZ compresses a file using XZ.
func compressXZ(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	xzWriter, err := xz.NewWriter(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(xzWriter, src); err != nil {
		xzWriter.Close()
		return err
	}
	return xzWriter.Close()
}

// archiveLogs moves the per-action build logs into the persistent log store,
// xz-compressed, so they outlive temporary build directories.
func archiveLogs(asset, arch, logDir string) error {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return err
	}
	destDir := filepath.Join(LogStore, asset+"@"+arch)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		src := filepath.Join(logDir, entry.Name())
		dst := filepath.Join(destDir, entry.Name()+".xz")
		if err := compressXZ(src, dst); err != nil {
			return fmt.Errorf("failed to compress %s: %w", src, err)
		}
	}
	return nil
}

package scanner

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractPackage unpacks the scanner package archive into destDir. Entries
// whose path contains the scanner binary name are marked executable through
// the platform hooks (best-effort). Extraction is not transactional: a
// failure may leave partial output behind, which cleanup removes with the
// working directory.
func (s *Scanner) extractPackage(packagePath, destDir string) error {
	archive, err := zip.OpenReader(packagePath)
	if err != nil {
		return fmt.Errorf("open scanner package: %w", err)
	}
	defer archive.Close()

	binaryName := s.platform.BinaryName()

	for _, entry := range archive.File {
		outPath, err := resolveEntryPath(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(outPath, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", outPath, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return fmt.Errorf("create parent directory for %s: %w", outPath, err)
		}
		if err := writeEntry(entry, outPath); err != nil {
			return err
		}

		if strings.Contains(entry.Name, binaryName) {
			if err := s.hooks.SetExecutable(outPath); err != nil {
				s.logger.Warnw("failed to mark scanner binary executable",
					"path", outPath, "error", err)
			}
		}
	}

	s.logger.Infow("scanner package extracted", "dest", destDir, "entries", len(archive.File))
	return nil
}

// resolveEntryPath joins an archive entry path under destDir and rejects
// entries that would escape it.
func resolveEntryPath(destDir, name string) (string, error) {
	outPath := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(outPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes extraction directory: %s", name)
	}
	return outPath, nil
}

func writeEntry(entry *zip.File, outPath string) error {
	in, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", entry.Name, err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return nil
}

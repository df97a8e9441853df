package scanner

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// buildZip writes a zip archive with the given name->content entries. A
// trailing slash in the name marks a directory entry.
func buildZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		if name[len(name)-1] == '/' {
			_, err := w.Create(name)
			require.NoError(t, err)
			continue
		}
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "package.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func newExtractScanner() *Scanner {
	return &Scanner{
		platform: DetectPlatform(),
		hooks:    NewPlatformHooks(zap.NewNop().Sugar()),
		logger:   zap.NewNop().Sugar(),
	}
}

func TestExtractPackage(t *testing.T) {
	s := newExtractScanner()
	binName := s.platform.BinaryName()

	pkg := buildZip(t, map[string]string{
		"Thor/":                 "",
		"Thor/" + binName:       "#!/bin/sh\nexit 0\n",
		"Thor/signatures/a.yar": "rule a {}",
		"Thor/config/thor.yml":  "resume: false",
		"README.txt":            "docs",
	})

	dest := t.TempDir()
	require.NoError(t, s.extractPackage(pkg, dest))

	assert.FileExists(t, filepath.Join(dest, "Thor", binName))
	assert.FileExists(t, filepath.Join(dest, "Thor", "signatures", "a.yar"))
	assert.FileExists(t, filepath.Join(dest, "README.txt"))

	content, err := os.ReadFile(filepath.Join(dest, "Thor", "signatures", "a.yar"))
	require.NoError(t, err)
	assert.Equal(t, "rule a {}", string(content))
}

func TestExtractPackageMarksBinaryExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits are not meaningful on windows")
	}

	s := newExtractScanner()
	binName := s.platform.BinaryName()

	pkg := buildZip(t, map[string]string{
		"Thor/" + binName: "#!/bin/sh\nexit 0\n",
	})

	dest := t.TempDir()
	require.NoError(t, s.extractPackage(pkg, dest))

	info, err := os.Stat(filepath.Join(dest, "Thor", binName))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111, "binary should be executable")
}

func TestExtractPackageRejectsZipSlip(t *testing.T) {
	s := newExtractScanner()

	pkg := buildZip(t, map[string]string{
		"../escape.txt": "outside",
	})

	dest := t.TempDir()
	err := s.extractPackage(pkg, dest)
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "escape.txt"))
}

func TestResolveEntryPath(t *testing.T) {
	dest := t.TempDir()

	path, err := resolveEntryPath(dest, "Thor/thor-lite_amd64")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "Thor", "thor-lite_amd64"), path)

	_, err = resolveEntryPath(dest, "../escape.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestExtractPackageCorruptArchive(t *testing.T) {
	s := newExtractScanner()

	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0644))

	err := s.extractPackage(path, t.TempDir())
	require.Error(t, err)
}

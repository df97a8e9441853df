package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"pyrothor/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	downloadData  []byte
	downloadErr   error
	downloadCalls int
	downloadURL   string
	bearer        string

	uploadErr   error
	uploadCalls int
	uploadURL   string
	uploaded    []byte
}

func (f *fakeTransport) Download(ctx context.Context, url, bearer string) ([]byte, error) {
	f.downloadCalls++
	f.downloadURL = url
	f.bearer = bearer
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.downloadData, nil
}

func (f *fakeTransport) Upload(ctx context.Context, url, bearer string, body []byte) error {
	f.uploadCalls++
	f.uploadURL = url
	f.uploaded = body
	return f.uploadErr
}

const reportJSON = `{"scan_id":"abc","findings":[]}`

// scriptPackage builds a package archive whose binary is a shell script, so
// lifecycle tests can dictate the child's stdout, stderr and exit code.
func scriptPackage(t *testing.T, script string) []byte {
	t.Helper()

	binName := DetectPlatform().BinaryName()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("Thor/" + binName)
	require.NoError(t, err)
	_, err = f.Write([]byte(script))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Endpoint = "https://thor.example.com"
	cfg.Server.APIKey = ""
	cfg.Server.PackageName = "does-not-exist-locally.zip"
	cfg.Scanning.TempDir = t.TempDir()
	cfg.Scanning.ExecTimeoutSeconds = 30
	return cfg
}

func newTestScanner(t *testing.T, cfg *config.Config, tr *fakeTransport) *Scanner {
	t.Helper()
	return New(cfg, tr, NewPlatformHooks(zap.NewNop().Sugar()), zap.NewNop().Sugar())
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("lifecycle tests drive a shell script in place of the scanner binary")
	}
}

func TestRunSuccess(t *testing.T) {
	requireUnix(t)

	cfg := testConfig(t)
	tr := &fakeTransport{
		downloadData: scriptPackage(t, "#!/bin/sh\nprintf '%s' '"+reportJSON+"'\n"),
	}
	s := newTestScanner(t, cfg, tr)

	outputPath := filepath.Join(t.TempDir(), "report.json")
	report, err := s.Run(context.Background(), t.TempDir(), outputPath)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, StateFinalized, s.State())
	assert.Equal(t, 1, tr.downloadCalls)
	assert.Equal(t, "https://thor.example.com/api/tools/does-not-exist-locally.zip", tr.downloadURL)
	assert.Equal(t, 0, tr.uploadCalls, "no API key means no publish")

	written, readErr := os.ReadFile(outputPath)
	require.NoError(t, readErr)
	assert.Equal(t, reportJSON, string(written))

	assert.NoDirExists(t, s.workDir, "working directory must be removed")
}

func TestRunReusesLocalPackage(t *testing.T) {
	requireUnix(t)

	localPkg := filepath.Join(t.TempDir(), "Custom.DFIR.Yara.AllRules.zip")
	pkg := scriptPackage(t, "#!/bin/sh\nprintf '%s' '"+reportJSON+"'\n")
	require.NoError(t, os.WriteFile(localPkg, pkg, 0644))

	cfg := testConfig(t)
	cfg.Server.PackageName = localPkg
	tr := &fakeTransport{}
	s := newTestScanner(t, cfg, tr)

	outputPath := filepath.Join(t.TempDir(), "report.json")
	_, err := s.Run(context.Background(), t.TempDir(), outputPath)
	require.NoError(t, err)

	assert.Equal(t, 0, tr.downloadCalls, "local package must short-circuit the download")

	_, statErr := os.Stat(localPkg)
	assert.NoError(t, statErr, "local package must survive cleanup")
}

func TestRunDownloadFailure(t *testing.T) {
	cfg := testConfig(t)
	tr := &fakeTransport{downloadErr: errors.New("connection refused")}
	s := newTestScanner(t, cfg, tr)

	_, err := s.Run(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageAcquire, stageErr.Stage)
	assert.True(t, stageErr.Retryable())
	assert.ErrorIs(t, err, ErrPackageUnavailable)

	assert.Equal(t, StateFailed, s.State())
	assert.NoDirExists(t, s.workDir)
}

func TestRunBinaryMissing(t *testing.T) {
	cfg := testConfig(t)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("Thor/signatures/a.yar")
	require.NoError(t, err)
	_, err = f.Write([]byte("rule a {}"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	tr := &fakeTransport{downloadData: buf.Bytes()}
	s := newTestScanner(t, cfg, tr)

	_, runErr := s.Run(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	require.Error(t, runErr)

	var stageErr *StageError
	require.ErrorAs(t, runErr, &stageErr)
	assert.Equal(t, StageExecute, stageErr.Stage)
	assert.False(t, stageErr.Retryable())
	assert.ErrorIs(t, runErr, ErrBinaryNotFound)

	assert.NoDirExists(t, s.workDir, "cleanup must run on failure")
}

func TestRunNonZeroExit(t *testing.T) {
	requireUnix(t)

	cfg := testConfig(t)
	tr := &fakeTransport{
		downloadData: scriptPackage(t, "#!/bin/sh\necho boom >&2\nexit 3\n"),
	}
	s := newTestScanner(t, cfg, tr)

	_, err := s.Run(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "boom")

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageExecute, stageErr.Stage)
}

func TestRunExecutionTimeout(t *testing.T) {
	requireUnix(t)

	cfg := testConfig(t)
	cfg.Scanning.ExecTimeoutSeconds = 1
	tr := &fakeTransport{
		downloadData: scriptPackage(t, "#!/bin/sh\nsleep 30\n"),
	}
	s := newTestScanner(t, cfg, tr)

	_, err := s.Run(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutionTimeout)

	assert.NoDirExists(t, s.workDir)
}

func TestRunMalformedReport(t *testing.T) {
	requireUnix(t)

	cfg := testConfig(t)
	tr := &fakeTransport{
		downloadData: scriptPackage(t, "#!/bin/sh\necho 'not json'\n"),
	}
	s := newTestScanner(t, cfg, tr)

	_, err := s.Run(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageExecute, stageErr.Stage)
}

func TestRunPublish(t *testing.T) {
	requireUnix(t)

	cfg := testConfig(t)
	cfg.Server.APIKey = "test-key"
	tr := &fakeTransport{
		downloadData: scriptPackage(t, "#!/bin/sh\nprintf '%s' '"+reportJSON+"'\n"),
	}
	s := newTestScanner(t, cfg, tr).WithScanID("scan-123")

	report, err := s.Run(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 1, tr.uploadCalls)
	assert.Equal(t, "https://thor.example.com/api/scan-results?scan_uuid=scan-123", tr.uploadURL)
	assert.Equal(t, reportJSON, string(tr.uploaded))
}

func TestRunPublishFailureStillReturnsReport(t *testing.T) {
	requireUnix(t)

	cfg := testConfig(t)
	cfg.Server.APIKey = "test-key"
	outputPath := filepath.Join(t.TempDir(), "report.json")
	tr := &fakeTransport{
		downloadData: scriptPackage(t, "#!/bin/sh\nprintf '%s' '"+reportJSON+"'\n"),
		uploadErr:    errors.New("server unavailable"),
	}
	s := newTestScanner(t, cfg, tr)

	report, err := s.Run(context.Background(), t.TempDir(), outputPath)
	require.Error(t, err)
	require.NotNil(t, report, "local report survives a publish failure")

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePublish, stageErr.Stage)
	assert.True(t, stageErr.Retryable())

	assert.Equal(t, StateFinalized, s.State(), "publish failure does not invalidate the run")
	assert.FileExists(t, outputPath)
}

func TestRunExcludedScanPath(t *testing.T) {
	cfg := testConfig(t)
	excluded := t.TempDir()
	cfg.Scanning.ExcludePaths = []string{excluded}

	s := newTestScanner(t, cfg, &fakeTransport{})

	_, err := s.Run(context.Background(), filepath.Join(excluded, "sub"), filepath.Join(t.TempDir(), "report.json"))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePrepare, stageErr.Stage)
}

func TestEnterpriseAndStoreFlags(t *testing.T) {
	requireUnix(t)

	cfg := testConfig(t)
	cfg.Thor.Flags = []string{"--json"}
	// The script echoes its arguments back as a JSON string array so the
	// invocation contract can be checked end to end.
	script := `#!/bin/sh
printf '{"args":['
sep=""
for a in "$@"; do
  printf '%s"%s"' "$sep" "$a"
  sep=","
done
printf ']}'
`
	tr := &fakeTransport{downloadData: scriptPackage(t, script)}
	s := newTestScanner(t, cfg, tr).WithEnterpriseMode(true)

	scanPath := t.TempDir()
	report, err := s.Run(context.Background(), scanPath, filepath.Join(t.TempDir(), "report.json"))
	require.NoError(t, err)

	var echoed struct {
		Args []string `json:"args"`
	}
	require.NoError(t, report.Decode(&echoed))
	assert.Equal(t, []string{
		"--json", "--enterprise-mode", "--ai-enhanced",
		"--path", scanPath, "--rebase-dir", s.workDir,
	}, echoed.Args)
}

package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"pyrothor/config"
	"pyrothor/core"
	"pyrothor/metrics"
	"pyrothor/storage"
	"pyrothor/transport"

	"go.uber.org/zap"
)

// State tracks lifecycle progress through a run.
type State string

const (
	StateIdle         State = "idle"
	StatePrepared     State = "prepared"
	StatePackageReady State = "package_ready"
	StateExtracted    State = "extracted"
	StateExecuted     State = "executed"
	StateFinalized    State = "finalized"
	StateFailed       State = "failed"
)

// Scanner orchestrates one or more scan runs. Each Run owns a distinct
// working directory and shares no mutable state with concurrent runs, so a
// Scanner value must not be shared across goroutines; construct one per run.
type Scanner struct {
	cfg       *config.Config
	platform  PlatformInfo
	hooks     PlatformHooks
	transport transport.Transport
	store     *storage.RuleStore
	logger    *zap.SugaredLogger

	enterprise bool
	scanID     string

	state       State
	failedStage Stage
	workDir     string
	cleanedUp   bool
}

// New creates a scanner with the given collaborators.
func New(cfg *config.Config, tr transport.Transport, hooks PlatformHooks, logger *zap.SugaredLogger) *Scanner {
	return &Scanner{
		cfg:       cfg,
		platform:  DetectPlatform(),
		hooks:     hooks,
		transport: tr,
		logger:    logger,
		state:     StateIdle,
	}
}

// WithEnterpriseMode toggles enterprise mode. It only changes the extra
// flags passed to the scanner and log verbosity, never the stage graph.
func (s *Scanner) WithEnterpriseMode(enabled bool) *Scanner {
	s.enterprise = enabled
	return s
}

// WithStore attaches the rule store. An attached store adds the optimization
// flag to the scanner invocation and enables scan telemetry.
func (s *Scanner) WithStore(store *storage.RuleStore) *Scanner {
	s.store = store
	return s
}

// WithScanID sets the identifier the server uses to correlate published
// results. Empty means the server assigns one.
func (s *Scanner) WithScanID(id string) *Scanner {
	s.scanID = id
	return s
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	return s.state
}

// FailedStage returns the stage a failed run stopped in; empty until failure.
func (s *Scanner) FailedStage() Stage {
	return s.failedStage
}

func (s *Scanner) fail(stage Stage, err error) *StageError {
	s.state = StateFailed
	s.failedStage = stage
	return &StageError{Stage: stage, Err: err}
}

// Run drives the full scan lifecycle against scanPath and writes the raw
// report to outputPath. The working directory, once created, is destroyed
// exactly once regardless of which stage fails.
//
// A publish failure is special: the locally produced report is still valid,
// so Run returns both the report and the publish StageError.
func (s *Scanner) Run(ctx context.Context, scanPath, outputPath string) (*core.Report, error) {
	start := time.Now()
	mode := "standard"
	if s.enterprise {
		mode = "enterprise"
	}

	report, err := s.run(ctx, scanPath, outputPath)

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.ScansCompleted.WithLabelValues(status, mode).Inc()
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	return report, err
}

func (s *Scanner) run(ctx context.Context, scanPath, outputPath string) (*core.Report, error) {
	if s.enterprise {
		s.logger.Infow("starting enterprise scan", "scan_path", scanPath, "output", outputPath)
	} else {
		s.logger.Infow("starting scan", "scan_path", scanPath)
	}

	if err := s.checkScanPath(scanPath); err != nil {
		return nil, s.fail(StagePrepare, err)
	}

	// Prepare
	if err := s.prepare(); err != nil {
		return nil, s.fail(StagePrepare, err)
	}
	defer s.cleanup()
	s.state = StatePrepared

	// AcquirePackage
	pkgPath, err := s.acquirePackage(ctx)
	if err != nil {
		return nil, s.fail(StageAcquire, err)
	}
	s.state = StatePackageReady

	// Extract
	if err := s.extractPackage(pkgPath, s.workDir); err != nil {
		return nil, s.fail(StageExtract, err)
	}
	s.state = StateExtracted

	// Execute
	report, err := s.execute(ctx, scanPath)
	if err != nil {
		return nil, s.fail(StageExecute, err)
	}
	s.state = StateExecuted

	// Finalize
	if err := s.finalize(ctx, report, outputPath); err != nil {
		return nil, s.fail(StageFinalize, err)
	}
	s.state = StateFinalized

	// Publish. The report is already final; a failure here does not
	// invalidate it and does not change the lifecycle state.
	if s.cfg.Server.APIKey != "" {
		if err := s.publish(ctx, report); err != nil {
			s.failedStage = StagePublish
			return report, &StageError{Stage: StagePublish, Err: err}
		}
	}

	s.logger.Infow("scan completed", "output", outputPath)
	return report, nil
}

// checkScanPath rejects scan targets under a configured exclude path.
func (s *Scanner) checkScanPath(scanPath string) error {
	clean := filepath.Clean(scanPath)
	for _, excluded := range s.cfg.Scanning.ExcludePaths {
		ex := filepath.Clean(excluded)
		if clean == ex || strings.HasPrefix(clean, ex+string(os.PathSeparator)) {
			return fmt.Errorf("scan path %s is excluded by configuration (%s)", scanPath, excluded)
		}
	}
	return nil
}

// prepare allocates the exclusive working directory and allow-lists it with
// the host security tooling. The hook is best-effort only.
func (s *Scanner) prepare() error {
	workDir, err := os.MkdirTemp(s.cfg.Scanning.TempDir, "pyrothor-scan-")
	if err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	s.workDir = workDir

	if err := s.hooks.AddIsolationException(workDir); err != nil {
		s.logger.Warnw("failed to add isolation exception", "workdir", workDir, "error", err)
	}

	if s.cfg.Thor.LicensePath != "" {
		if _, err := os.Stat(s.cfg.Thor.LicensePath); err != nil {
			s.logger.Warnw("scanner license file not found; THOR may refuse to run",
				"license_path", s.cfg.Thor.LicensePath)
		}
	}

	s.logger.Debugw("working directory prepared", "workdir", workDir)
	return nil
}

// acquirePackage returns a path to the scanner package archive: a local
// artifact at the well-known name when present, otherwise a fresh download
// saved into the working directory.
func (s *Scanner) acquirePackage(ctx context.Context) (string, error) {
	localPkg := s.cfg.Server.PackageName
	if _, err := os.Stat(localPkg); err == nil {
		s.logger.Infow("using local scanner package", "path", localPkg)
		metrics.PackageDownloads.WithLabelValues("local").Inc()
		return localPkg, nil
	}

	url := strings.TrimRight(s.cfg.Server.Endpoint, "/") + "/api/tools/" + s.cfg.Server.PackageName
	s.logger.Infow("downloading scanner package", "url", url)

	dlCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.Timeout())
	defer cancel()

	data, err := s.transport.Download(dlCtx, url, s.cfg.Server.APIKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPackageUnavailable, err)
	}

	pkgPath := filepath.Join(s.workDir, s.cfg.Server.PackageName)
	if err := os.WriteFile(pkgPath, data, 0644); err != nil {
		return "", fmt.Errorf("save scanner package: %w", err)
	}

	metrics.PackageDownloads.WithLabelValues("remote").Inc()
	return pkgPath, nil
}

// execute launches the scanner binary and parses its stdout as the report.
// The call blocks until the child exits or the deadline fires.
func (s *Scanner) execute(ctx context.Context, scanPath string) (*core.Report, error) {
	binary := s.platform.BinaryPath(s.workDir)
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, binary)
	}

	args := composeArgs(s.cfg.Thor.Flags, s.enterprise, s.store != nil, scanPath, s.workDir)

	if s.enterprise {
		s.logger.Infow("executing enterprise scan", "binary", binary, "args", args)
	} else {
		s.logger.Debugw("executing scan", "binary", binary)
	}

	execCtx, cancel := context.WithTimeout(ctx, s.cfg.Scanning.ExecTimeout())
	defer cancel()

	cmd := exec.CommandContext(execCtx, binary, args...)
	cmd.Dir = s.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s", ErrExecutionTimeout, s.cfg.Scanning.ExecTimeout())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("launch scanner: %w", err)
	}

	report, err := core.ParseReport(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return report, nil
}

// finalize persists the raw report and records best-effort telemetry.
func (s *Scanner) finalize(ctx context.Context, report *core.Report, outputPath string) error {
	if err := os.WriteFile(outputPath, report.Raw, 0644); err != nil {
		return fmt.Errorf("write scan results: %w", err)
	}
	s.logger.Infow("scan results saved", "output", outputPath)

	if s.store != nil {
		stats, err := s.store.Stats(ctx)
		if err != nil {
			s.logger.Warnw("failed to record scan telemetry", "error", err)
		} else {
			s.logger.Infow("store state after scan",
				"rules", stats.RuleCount,
				"metadata", stats.MetadataCount,
				"indicators", stats.IndicatorCount,
			)
		}
	}
	return nil
}

// publish uploads the raw report to the configured server.
func (s *Scanner) publish(ctx context.Context, report *core.Report) error {
	url := strings.TrimRight(s.cfg.Server.Endpoint, "/") + "/api/scan-results"
	if s.scanID != "" {
		url += "?scan_uuid=" + neturl.QueryEscape(s.scanID)
	}

	upCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.Timeout())
	defer cancel()

	if err := s.transport.Upload(upCtx, url, s.cfg.Server.APIKey, report.Raw); err != nil {
		return fmt.Errorf("publish scan results: %w", err)
	}
	s.logger.Info("scan results published")
	return nil
}

// cleanup tears down the working directory exactly once. It never returns or
// panics; internal failures are logged only.
func (s *Scanner) cleanup() {
	if s.workDir == "" || s.cleanedUp {
		return
	}
	s.cleanedUp = true

	if err := os.RemoveAll(s.workDir); err != nil {
		s.logger.Errorw("failed to remove working directory", "workdir", s.workDir, "error", err)
	}
	if err := s.hooks.RemoveIsolationException(s.workDir); err != nil {
		s.logger.Warnw("failed to remove isolation exception", "workdir", s.workDir, "error", err)
	}
	s.logger.Debugw("cleanup completed", "workdir", s.workDir)
}

package scanner

import (
	"errors"
	"fmt"
)

// Stage names the lifecycle stage in which a run failed.
type Stage string

const (
	StagePrepare  Stage = "prepare"
	StageAcquire  Stage = "acquire_package"
	StageExtract  Stage = "extract"
	StageExecute  Stage = "execute"
	StageFinalize Stage = "finalize"
	StagePublish  Stage = "publish"
)

// Sentinel errors for lifecycle failures.
var (
	// ErrBinaryNotFound means the extracted package did not contain the
	// scanner binary for this platform.
	ErrBinaryNotFound = errors.New("scanner binary not found in package")

	// ErrExecutionTimeout means the child process exceeded its deadline and
	// was killed. Cleanup still runs.
	ErrExecutionTimeout = errors.New("scanner execution timed out")

	// ErrPackageUnavailable means no local package exists and no download
	// endpoint produced one.
	ErrPackageUnavailable = errors.New("scanner package unavailable")
)

// ExitError reports a scanner process that exited non-zero; Stderr carries
// the captured diagnostics.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("scanner exited with code %d: %s", e.Code, e.Stderr)
}

// StageError wraps a failure with the lifecycle stage it occurred in. Exactly
// one StageError surfaces per failed run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the run could plausibly succeed. Only
// the network-bound stages qualify; a missing binary or malformed package
// will not fix itself.
func (e *StageError) Retryable() bool {
	return e.Stage == StageAcquire || e.Stage == StagePublish
}

package scanner

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// PlatformHooks is the capability for OS-specific best-effort side effects.
// Callers log failures and continue; no hook failure is ever fatal to a run.
type PlatformHooks interface {
	// AddIsolationException allow-lists a path with the host security
	// tooling so it does not interfere with the extracted scanner.
	AddIsolationException(path string) error

	// RemoveIsolationException undoes AddIsolationException.
	RemoveIsolationException(path string) error

	// SetExecutable marks a file executable.
	SetExecutable(path string) error
}

// NewPlatformHooks selects the hook implementation for the current OS once
// at startup. Unsupported targets get a no-op implementation.
func NewPlatformHooks(logger *zap.SugaredLogger) PlatformHooks {
	switch runtime.GOOS {
	case "windows":
		return &windowsHooks{logger: logger}
	case "linux", "darwin":
		return &unixHooks{logger: logger}
	default:
		return &noopHooks{}
	}
}

// windowsHooks manages Windows Defender exclusions via PowerShell.
type windowsHooks struct {
	logger *zap.SugaredLogger
}

func (h *windowsHooks) runDefenderCmd(psCmd string) error {
	out, err := exec.Command("powershell",
		"-NoProfile",
		"-NonInteractive",
		"-ExecutionPolicy", "Bypass",
		"-Command", psCmd,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("powershell: %w: %s", err, out)
	}
	return nil
}

func (h *windowsHooks) AddIsolationException(path string) error {
	h.logger.Debugw("adding Defender exclusion", "path", path)
	return h.runDefenderCmd(fmt.Sprintf("Add-MpPreference -ExclusionPath '%s'", path))
}

func (h *windowsHooks) RemoveIsolationException(path string) error {
	h.logger.Debugw("removing Defender exclusion", "path", path)
	return h.runDefenderCmd(fmt.Sprintf("Remove-MpPreference -ExclusionPath '%s'", path))
}

func (h *windowsHooks) SetExecutable(path string) error {
	// Execute permission is implicit on Windows.
	return nil
}

// unixHooks covers Linux and macOS. There is no isolation list to manage;
// the only side effect needed is the executable bit.
type unixHooks struct {
	logger *zap.SugaredLogger
}

func (h *unixHooks) AddIsolationException(path string) error    { return nil }
func (h *unixHooks) RemoveIsolationException(path string) error { return nil }

func (h *unixHooks) SetExecutable(path string) error {
	h.logger.Debugw("marking executable", "path", path)
	return os.Chmod(path, 0755)
}

// noopHooks is used on targets with no platform integration.
type noopHooks struct{}

func (noopHooks) AddIsolationException(string) error    { return nil }
func (noopHooks) RemoveIsolationException(string) error { return nil }
func (noopHooks) SetExecutable(string) error            { return nil }

// Package scanner drives the THOR Lite scan lifecycle: environment
// preparation, package acquisition, extraction, execution and teardown.
package scanner

import (
	"path/filepath"
	"runtime"
)

// packageSubdir is the directory inside the scanner package that holds the
// platform binaries.
const packageSubdir = "Thor"

// PlatformInfo describes the host the scanner runs on.
type PlatformInfo struct {
	OS   string
	Arch string
}

// DetectPlatform inspects the current runtime.
func DetectPlatform() PlatformInfo {
	return PlatformInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// BinaryName returns the scanner binary name for this platform, e.g.
// thor-lite_amd64 or thor-lite_amd64.exe.
func (p PlatformInfo) BinaryName() string {
	name := "thor-lite_" + p.Arch
	if p.OS == "windows" {
		name += ".exe"
	}
	return name
}

// BinaryPath returns the expected binary location inside an extracted
// package rooted at workDir.
func (p PlatformInfo) BinaryPath(workDir string) string {
	return filepath.Join(workDir, packageSubdir, p.BinaryName())
}

// IsWindows reports whether the platform is Windows.
func (p PlatformInfo) IsWindows() bool {
	return p.OS == "windows"
}

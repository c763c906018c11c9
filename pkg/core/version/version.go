// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     version
// Description: Central version information, overridable via ldflags
// Author:      Mike Stoffels
// Created:     2026-09-21
// License:     MIT
// ============================================================================

package version

import "fmt"

// Build information. Set with
//
//	-ldflags "-X github.com/msto63/krishisaathi/pkg/core/version.GitCommit=..."
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Name is the product name shown in banners and the User-Agent header
const Name = "KrishiSaathi"

// String returns a one-line version description
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Name, Version, GitCommit, BuildTime)
}

// UserAgent returns the value sent with backend requests
func UserAgent() string {
	return "krishisaathi/" + Version
}

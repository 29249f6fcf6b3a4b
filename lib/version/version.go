// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/zeebo/blake3"
)

// These variables are set via -ldflags at build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/authbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Build describes the running binary.
type Build struct {
	Version   string `cbor:"version"`
	Commit    string `cbor:"commit"`
	Dirty     bool   `cbor:"dirty"`
	BuildTime string `cbor:"build_time"`
	Go        string `cbor:"go"`

	// Digest is the hex BLAKE3 digest of the executable, empty when it
	// could not be read.
	Digest string `cbor:"digest,omitempty"`
}

// Current describes the running binary. The digest is computed once
// per call; callers that report it repeatedly should cache the result.
func Current() Build {
	build := Build{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		BuildTime: BuildTime,
		Go:        runtime.Version(),
	}
	if digest, _, err := SelfDigest(); err == nil {
		build.Digest = digest
	}
	return build
}

// SelfDigest returns the hex BLAKE3 digest and absolute path of the
// running executable. On Linux os.Executable reads /proc/self/exe,
// which points at the original binary even if it was replaced on disk
// after the process started.
func SelfDigest() (digest string, binaryPath string, err error) {
	executable, err := os.Executable()
	if err != nil {
		return "", "", fmt.Errorf("resolving own executable path: %w", err)
	}
	digest, err = FileDigest(executable)
	if err != nil {
		return "", "", err
	}
	return digest, executable, nil
}

// FileDigest returns the hex BLAKE3 digest of the file at path.
func FileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// authentication bridge daemon.
//
// Configuration is loaded from a single file named by either the
// AUTHBRIDGE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search. When no
// file is named, [Load] returns [Default].
//
// A small set of environment variables override file values after the
// file is read, so a unit file can relocate the socket or switch the
// backend without editing the YAML:
//
//   - AUTHBRIDGE_SOCKET -- socket_path
//   - AUTHBRIDGE_BACKEND -- backend
//   - AUTHBRIDGE_DEBUG -- log.level = debug when true
//
// Key exports:
//
//   - [Config] -- master struct with Local, Remote and Log sections
//   - [Default] -- returns a Config with every field filled
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
//
// This package depends on no other authbridge packages.
package config

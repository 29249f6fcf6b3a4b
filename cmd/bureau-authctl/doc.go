// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Bureau-authctl drives the authentication bridge from a terminal.
//
// It talks to bureau-authbridge over its unix socket (--socket,
// $AUTHBRIDGE_SOCKET, or /run/bureau/authbridge.sock) and exposes the
// same actions a greeter or lock screen would use:
//
//	login <account>      create a session, start it, answer prompts
//	cancel <account>     cancel the running attempt
//	destroy <account>    destroy the session
//	info <account>       print the session's cached properties
//	framework            print framework availability and capabilities
//	watch [account]      print notifications as they arrive
//	version              print client and daemon versions
//
// login subscribes before it starts the session so no prompt is
// missed. Each prompt is answered from the terminal with echo
// disabled, or from --password-file. The exit status reports the
// outcome: 0 success, 2 authentication failed, 3 cancelled or timed
// out, 4 locked, 1 for any other error.
package main

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Bureau-authbridge exposes account authentication on a Unix socket.
//
// The daemon drives one of two backends, chosen by the backend key of
// its configuration:
//
//   - remote: multi-factor sessions of the system authentication
//     framework over D-Bus. Credentials are sealed with the session's
//     public key before they leave the process.
//   - local: a PAM conversation run in process, one account at a time.
//
// Every request carries an "action" field. Request-response actions:
//
//	create          {account, kinds, app}
//	destroy         {account}
//	start           {account, kinds, timeout}     -> {failures}
//	end             {account, kinds}
//	token           {account, kinds, credential}
//	cancel          {account}
//	set-quit-policy {account, policy}
//	session-info    {account}                     -> session properties
//	framework-info                                -> {state, supported_flags, supported_encrypts}
//	one-key-login   {flag}                        -> {value}
//	version                                       -> build information
//
// The streaming action "subscribe" (optionally {account}) writes an
// "ack" frame, then one "event" frame per notification and a
// "heartbeat" frame every heartbeat interval. Heartbeats carry the
// number of events the subscriber has missed so far.
//
// When allowed_uids is configured, peers whose SO_PEERCRED UID is not
// listed are refused before their request is read.
package main

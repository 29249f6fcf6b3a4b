// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package service

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads SO_PEERCRED from a Unix connection.
func peerCredentials(conn net.Conn) (Peer, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return Peer{}, fmt.Errorf("peer credentials need a unix connection, got %T", conn)
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return Peer{}, fmt.Errorf("accessing socket: %w", err)
	}

	var credentials *unix.Ucred
	var sockoptErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return Peer{}, fmt.Errorf("accessing socket: %w", err)
	}
	if sockoptErr != nil {
		return Peer{}, fmt.Errorf("reading SO_PEERCRED: %w", sockoptErr)
	}

	return Peer{
		PID: credentials.Pid,
		UID: credentials.Uid,
		GID: credentials.Gid,
	}, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/authbridge/lib/codec"
)

// ActionFunc processes a socket request for a specific action. The raw
// parameter is the full CBOR request (including the "action" field).
// The handler decodes action-specific fields from this raw message.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}. If non-nil, the value is marshaled as
// CBOR and placed in the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc processes a streaming action. The handler owns conn for
// the life of the stream and writes CBOR frames to it. The server
// closes conn when the handler returns. ctx is cancelled when the
// server shuts down; handlers must return promptly after that.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn)

// Response is the wire-format envelope for all request-response
// actions. Handlers return a result value (or nil) and an error; the
// server wraps these into a Response before encoding.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Access restricts who may use the socket.
type Access struct {
	// AllowedUIDs lists the peer UIDs that may connect. Empty allows
	// every peer.
	AllowedUIDs []uint32

	// Mode is applied to the socket file after listening. Zero leaves
	// the mode the umask produced.
	Mode os.FileMode
}

// permits reports whether a peer may proceed.
func (a *Access) permits(peer Peer) bool {
	if a == nil || len(a.AllowedUIDs) == 0 {
		return true
	}
	return slices.Contains(a.AllowedUIDs, peer.UID)
}

func (a *Access) filtering() bool {
	return a != nil && len(a.AllowedUIDs) > 0
}

// Peer is the kernel-verified identity of the process on the other end
// of a connection.
type Peer struct {
	PID int32
	UID uint32
	GID uint32
}

type peerKey struct{}

// PeerFromContext returns the peer credentials the server attached to
// a handler's context. ok is false when the platform could not supply
// them.
func PeerFromContext(ctx context.Context) (Peer, bool) {
	peer, ok := ctx.Value(peerKey{}).(Peer)
	return peer, ok
}

// SocketServer serves a CBOR protocol on a Unix socket. A
// request-response connection handles exactly one cycle: the client
// writes a CBOR value, the server processes it and writes a CBOR
// response, then the connection closes. A streaming connection stays
// open until its handler returns.
//
// Actions are registered with Handle or HandleStream before calling
// Serve. Unknown actions receive an error response.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	streams    map[string]StreamFunc
	access     *Access
	logger     *slog.Logger

	// activeConnections tracks in-flight handlers for graceful
	// shutdown. Serve waits for all active connections to complete
	// before returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath. A
// nil access admits every peer. Register actions before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger, access *Access) *SocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		streams:    make(map[string]StreamFunc),
		access:     access,
		logger:     logger,
	}
}

// Handle registers a request-response handler for the given action
// name. Panics if the action is already registered.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkDuplicate(action)
	s.handlers[action] = handler
}

// HandleStream registers a streaming handler for the given action
// name. Panics if the action is already registered.
func (s *SocketServer) HandleStream(action string, handler StreamFunc) {
	s.checkDuplicate(action)
	s.streams[action] = handler
}

func (s *SocketServer) checkDuplicate(action string) {
	_, unary := s.handlers[action]
	_, stream := s.streams[action]
	if unary || stream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered action handlers. Blocks until ctx is
// cancelled, then stops accepting new connections and waits for active
// handlers to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	if s.access != nil && s.access.Mode != 0 {
		if err := os.Chmod(s.socketPath, s.access.Mode); err != nil {
			return fmt.Errorf("setting mode on %s: %w", s.socketPath, err)
		}
	}

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening",
		"path", s.socketPath,
		"allowed_uids", len(s.accessUIDs()),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *SocketServer) accessUIDs() []uint32 {
	if s.access == nil {
		return nil
	}
	return s.access.AllowedUIDs
}

// readTimeout is how long we wait for the client to send its request.
// A well-behaved client sends the request immediately after connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for a response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request. Requests
// carry at most an account name and one credential.
const maxRequestSize = 64 * 1024

// handleConnection authorizes the peer, then processes one request.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer, err := peerCredentials(conn)
	switch {
	case err == nil:
		if !s.access.permits(peer) {
			s.logger.Warn("rejected socket peer",
				"uid", peer.UID,
				"pid", peer.PID,
			)
			s.writeError(conn, "permission denied")
			return
		}
		ctx = context.WithValue(ctx, peerKey{}, peer)
	case s.access.filtering():
		s.logger.Warn("rejected socket peer without credentials", "error", err)
		s.writeError(conn, "permission denied")
		return
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a malicious client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	// Extract the action field for routing.
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if stream, exists := s.streams[header.Action]; exists {
		conn.SetReadDeadline(time.Time{})
		s.logger.Debug("stream opened", "action", header.Action, "uid", peer.UID)
		stream(ctx, []byte(raw), conn)
		s.logger.Debug("stream closed", "action", header.Action, "uid", peer.UID)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level; the connection is closing
// regardless.
func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}. If non-nil, the value is marshaled as CBOR
// and placed in the "data" field: {ok: true, data: <cbor>}.
func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbusremote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/bureau-foundation/authbridge/lib/auth"
	"github.com/bureau-foundation/authbridge/lib/session"
)

const (
	DefaultService   = "com.deepin.daemon.Authenticate"
	DefaultPath      = "/com/deepin/daemon/Authenticate"
	Interface        = "com.deepin.daemon.Authenticate"
	SessionInterface = "com.deepin.daemon.Authenticate.Session"

	propertiesInterface = "org.freedesktop.DBus.Properties"
)

// Config selects the bus and the daemon's well-known name.
type Config struct {
	// Bus is "system" (the default) or "session".
	Bus     string
	Service string
	Path    string
	Logger  *slog.Logger
}

// Remote is the daemon's top-level object.
type Remote struct {
	conn       *dbus.Conn
	ownsConn   bool
	service    string
	path       dbus.ObjectPath
	object     dbus.BusObject
	dispatcher *dispatcher
	logger     *slog.Logger
}

// Dial connects to the configured bus.
func Dial(config Config) (*Remote, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch config.Bus {
	case "", "system":
		conn, err = dbus.ConnectSystemBus()
	case "session":
		conn, err = dbus.ConnectSessionBus()
	default:
		return nil, fmt.Errorf("dbusremote: unknown bus %q", config.Bus)
	}
	if err != nil {
		return nil, fmt.Errorf("dbusremote: connecting to %s bus: %w", config.Bus, err)
	}
	remote, err := New(conn, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	remote.ownsConn = true
	return remote, nil
}

// New uses an existing connection. Close does not close conn.
func New(conn *dbus.Conn, config Config) (*Remote, error) {
	if config.Service == "" {
		config.Service = DefaultService
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	path := dbus.ObjectPath(config.Path)
	if !path.IsValid() {
		return nil, fmt.Errorf("dbusremote: invalid object path %q", config.Path)
	}
	logger := config.Logger.With("component", "dbusremote", "service", config.Service)
	return &Remote{
		conn:       conn,
		service:    config.Service,
		path:       path,
		object:     conn.Object(config.Service, path),
		dispatcher: newDispatcher(conn, logger),
		logger:     logger,
	}, nil
}

// Close stops signal dispatch and, for a dialled Remote, closes the
// connection.
func (r *Remote) Close() error {
	r.dispatcher.close()
	if r.ownsConn {
		return r.conn.Close()
	}
	return nil
}

func (r *Remote) Authenticate(ctx context.Context, account string, kinds auth.Kind, app auth.AppKind) (string, error) {
	var path string
	err := r.object.CallWithContext(ctx, Interface+".Authenticate", 0, account, int32(kinds), int32(app)).Store(&path)
	if err != nil {
		return "", classify("Authenticate", err)
	}
	return path, nil
}

func (r *Remote) Controller(_ context.Context, path string) (session.Controller, error) {
	objectPath := dbus.ObjectPath(path)
	if !objectPath.IsValid() {
		return nil, fmt.Errorf("dbusremote: invalid session path %q", path)
	}
	return &Controller{
		remote: r,
		path:   objectPath,
		object: r.conn.Object(r.service, objectPath),
	}, nil
}

func (r *Remote) SupportedFlags(ctx context.Context) (auth.Kind, error) {
	flags, err := property[int32](ctx, r.object, Interface, "SupportedFlags")
	return auth.Kind(flags), err
}

func (r *Remote) SupportedEncrypts(ctx context.Context) (string, error) {
	return property[string](ctx, r.object, Interface, "SupportEncrypts")
}

func (r *Remote) FrameworkState(ctx context.Context) (auth.FrameworkState, error) {
	state, err := property[int32](ctx, r.object, Interface, "FrameworkState")
	return auth.FrameworkState(state), err
}

func (r *Remote) Limits(ctx context.Context, account string) (string, error) {
	var limits string
	if err := r.object.CallWithContext(ctx, Interface+".GetLimits", 0, account).Store(&limits); err != nil {
		return "", classify("GetLimits", err)
	}
	return limits, nil
}

func (r *Remote) PreOneKeyLogin(ctx context.Context, flag int32) (string, error) {
	var result string
	if err := r.object.CallWithContext(ctx, Interface+".PreOneKeyLogin", 0, flag).Store(&result); err != nil {
		return "", classify("PreOneKeyLogin", err)
	}
	return result, nil
}

func (r *Remote) WatchFramework(handler func(auth.Event)) (func(), error) {
	return r.dispatcher.subscribe(r.path, func(signal *dbus.Signal) {
		for _, event := range frameworkEvents(signal) {
			handler(event)
		}
	})
}

// property reads one property of iface on object.
func property[T any](ctx context.Context, object dbus.BusObject, iface, name string) (T, error) {
	var zero T
	var variant dbus.Variant
	if err := object.CallWithContext(ctx, propertiesInterface+".Get", 0, iface, name).Store(&variant); err != nil {
		return zero, classify("Get "+name, err)
	}
	value, ok := variant.Value().(T)
	if !ok {
		return zero, fmt.Errorf("dbusremote: property %s has type %s, want %T", name, variant.Signature(), zero)
	}
	return value, nil
}

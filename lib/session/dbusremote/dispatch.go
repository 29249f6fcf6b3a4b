// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbusremote

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// signalBuffer is the capacity of the connection's signal channel.
// godbus drops signals when it is full.
const signalBuffer = 64

// dispatcher routes signals to handlers by object path.
type dispatcher struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	stop    chan struct{}
	done    chan struct{}
	logger  *slog.Logger

	mu       sync.Mutex
	handlers map[dbus.ObjectPath]map[int]func(*dbus.Signal)
	nextID   int
	once     sync.Once
}

func newDispatcher(conn *dbus.Conn, logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		conn:     conn,
		signals:  make(chan *dbus.Signal, signalBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
		handlers: make(map[dbus.ObjectPath]map[int]func(*dbus.Signal)),
	}
	conn.Signal(d.signals)
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		case signal, ok := <-d.signals:
			if !ok {
				return
			}
			d.route(signal)
		}
	}
}

func (d *dispatcher) route(signal *dbus.Signal) {
	d.mu.Lock()
	handlers := make([]func(*dbus.Signal), 0, len(d.handlers[signal.Path]))
	for _, handler := range d.handlers[signal.Path] {
		handlers = append(handlers, handler)
	}
	d.mu.Unlock()

	if len(handlers) == 0 {
		d.logger.Debug("unrouted signal", "path", signal.Path, "name", signal.Name)
		return
	}
	for _, handler := range handlers {
		handler(signal)
	}
}

// subscribe adds a bus match for path and registers handler. The
// returned function undoes both.
func (d *dispatcher) subscribe(path dbus.ObjectPath, handler func(*dbus.Signal)) (func(), error) {
	if err := d.conn.AddMatchSignal(dbus.WithMatchObjectPath(path)); err != nil {
		return nil, fmt.Errorf("dbusremote: adding signal match for %s: %w", path, err)
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	if d.handlers[path] == nil {
		d.handlers[path] = make(map[int]func(*dbus.Signal))
	}
	d.handlers[path][id] = handler
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.handlers[path], id)
			if len(d.handlers[path]) == 0 {
				delete(d.handlers, path)
			}
			d.mu.Unlock()
			if err := d.conn.RemoveMatchSignal(dbus.WithMatchObjectPath(path)); err != nil {
				d.logger.Debug("removing signal match", "path", path, "error", err)
			}
		})
	}, nil
}

func (d *dispatcher) close() {
	d.once.Do(func() {
		d.conn.RemoveSignal(d.signals)
		close(d.stop)
		<-d.done
	})
}

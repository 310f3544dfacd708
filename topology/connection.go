// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MartenCatcher/mongo-go-driver/address"
	"github.com/MartenCatcher/mongo-go-driver/description"
	"github.com/MartenCatcher/mongo-go-driver/driver"
)

// Connection states.
const (
	connDisconnected int64 = iota
	connConnected
	connInitialized
)

var globalConnectionID uint64 = 1

func nextConnectionID() uint64 { return atomic.AddUint64(&globalConnectionID, 1) }

type connection struct {
	// state must be accessed using the atomic package and should be at the beginning of the
	// struct.
	state int64

	id                   string
	stream               driver.Stream
	addr                 address.Address
	idleTimeout          time.Duration
	idleDeadline         atomic.Value // Stores a time.Time
	desc                 description.Server
	helloRTT             time.Duration
	connectDone          chan struct{}
	config               *connectionConfig
	cancelConnectContext context.CancelFunc
	connectContextMutex  sync.Mutex

	// pool related fields
	pool               *pool
	driverConnectionID uint64
	generation         uint64

	// leased must be accessed using the atomic package. It is 1 while the connection is
	// checked out of the pool. The pool uses it to detect a double check in.
	leased int32
}

// newConnection handles the creation of a connection. It does not connect the connection.
func newConnection(addr address.Address, opts ...ConnectionOption) *connection {
	cfg := newConnectionConfig(opts...)

	id := fmt.Sprintf("%s[-%d]", addr, nextConnectionID())

	c := &connection{
		id:          id,
		addr:        addr,
		idleTimeout: cfg.idleTimeout,
		connectDone: make(chan struct{}),
		config:      cfg,
	}
	// This means that connection id is properly initialized.
	atomic.StoreInt64(&c.state, connInitialized)

	return c
}

// connect handles the I/O for a connection. It will dial, perform the handshake, and cancel on
// failure. The handshake is skipped when no handshaker is configured, which is the case for
// connections that only carry traffic driven by their owner, like RTT sampling connections that
// are re-dialed by the monitor itself.
func (c *connection) connect(ctx context.Context) (err error) {
	if !atomic.CompareAndSwapInt64(&c.state, connInitialized, connConnected) {
		return nil
	}

	defer close(c.connectDone)

	// If connect returns an error, set the connection status as disconnected and close the
	// underlying stream if it was created.
	defer func() {
		if err != nil {
			atomic.StoreInt64(&c.state, connDisconnected)

			if c.stream != nil {
				_ = c.stream.Close()
			}
		}
	}()

	// Create separate contexts for dialing a connection and doing the MongoDB handshake. The
	// cancellations are stored so that closing the connection can interrupt a connect that is
	// in progress.
	var handshakeCtx context.Context
	c.connectContextMutex.Lock()
	handshakeCtx, c.cancelConnectContext = context.WithCancel(ctx)
	c.connectContextMutex.Unlock()

	defer func() {
		var cancelFn context.CancelFunc

		c.connectContextMutex.Lock()
		cancelFn = c.cancelConnectContext
		c.cancelConnectContext = nil
		c.connectContextMutex.Unlock()

		if cancelFn != nil {
			cancelFn()
		}
	}()

	if c.config.connectTimeout != 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(handshakeCtx, c.config.connectTimeout)
		defer cancel()
	}

	if c.config.transport == nil {
		return ConnectionError{Wrapped: errNoTransport, init: true}
	}

	stream, err := c.config.transport.Dial(handshakeCtx, c.addr)
	if err != nil {
		return ConnectionError{Wrapped: err, init: true}
	}
	c.stream = stream

	if c.config.handshaker == nil {
		return nil
	}

	handshakeStartTime := time.Now()
	info, err := c.config.handshaker.GetHandshakeInformation(handshakeCtx, c.addr, c.stream)
	if err != nil {
		return ConnectionError{Wrapped: err, init: true}
	}
	c.helloRTT = time.Since(handshakeStartTime)
	c.desc = info.Description

	return nil
}

func (c *connection) wait() {
	if c.connectDone != nil {
		<-c.connectDone
	}
}

func (c *connection) closeConnectContext() {
	c.connectContextMutex.Lock()
	cancelFn := c.cancelConnectContext
	c.cancelConnectContext = nil
	c.connectContextMutex.Unlock()

	if cancelFn != nil {
		cancelFn()
	}
}

func (c *connection) writeWireMessage(ctx context.Context, wm []byte) error {
	if atomic.LoadInt64(&c.state) != connConnected {
		return ConnectionError{ConnectionID: c.id, message: "connection is closed"}
	}

	select {
	case <-ctx.Done():
		return ConnectionError{ConnectionID: c.id, Wrapped: ctx.Err(), message: "failed to write"}
	default:
	}

	if err := c.stream.WriteWireMessage(ctx, wm); err != nil {
		// The state of the stream is unknown after a failed write, so the connection can no
		// longer be used.
		_ = c.close()
		return ConnectionError{
			ConnectionID: c.id,
			Wrapped:      err,
			message:      "unable to write wire message to network",
		}
	}

	return nil
}

func (c *connection) readWireMessage(ctx context.Context, dst []byte) ([]byte, error) {
	if atomic.LoadInt64(&c.state) != connConnected {
		return dst, ConnectionError{ConnectionID: c.id, message: "connection is closed"}
	}

	select {
	case <-ctx.Done():
		return dst, ConnectionError{ConnectionID: c.id, Wrapped: ctx.Err(), message: "failed to read"}
	default:
	}

	dst, err := c.stream.ReadWireMessage(ctx, dst)
	if err != nil {
		_ = c.close()
		return dst, ConnectionError{
			ConnectionID: c.id,
			Wrapped:      err,
			message:      "unable to read server response",
		}
	}

	return dst, nil
}

// close closes the underlying stream. It does not interrupt a connect that is in progress; use
// the pool's closeConnection or closeConnectContext for that.
func (c *connection) close() error {
	if !atomic.CompareAndSwapInt64(&c.state, connConnected, connDisconnected) {
		return nil
	}

	var err error
	if c.stream != nil {
		err = c.stream.Close()
	}

	return err
}

func (c *connection) closed() bool {
	return atomic.LoadInt64(&c.state) == connDisconnected
}

func (c *connection) idleTimeoutExpired() bool {
	if c.idleTimeout > 0 {
		idleDeadline, ok := c.idleDeadline.Load().(time.Time)
		if ok && time.Now().After(idleDeadline) {
			return true
		}
	}

	return false
}

func (c *connection) bumpIdleDeadline() {
	if c.idleTimeout > 0 {
		c.idleDeadline.Store(time.Now().Add(c.idleTimeout))
	}
}

// ID returns the connection ID.
func (c *connection) ID() string {
	return c.id
}

// Connection implements the driver.Connection interface to allow reading and writing wire
// messages against a pooled connection. It wraps an underlying topology.connection to make it
// more goroutine-safe and nil-safe.
type Connection struct {
	connection *connection

	mu sync.RWMutex
}

var _ driver.Connection = (*Connection)(nil)

// WriteWireMessage handles writing a wire message to the underlying connection.
func (c *Connection) WriteWireMessage(ctx context.Context, wm []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connection == nil {
		return ErrConnectionClosed
	}
	return c.connection.writeWireMessage(ctx, wm)
}

// ReadWireMessage handles reading a wire message from the underlying connection. The dst
// parameter will be overwritten with the new wire message.
func (c *Connection) ReadWireMessage(ctx context.Context, dst []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connection == nil {
		return dst, ErrConnectionClosed
	}
	return c.connection.readWireMessage(ctx, dst)
}

// Description returns the server description of the server this connection is connected to.
func (c *Connection) Description() description.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connection == nil {
		return description.Server{}
	}
	return c.connection.desc
}

// Close returns this connection to the connection pool. This method may not close the underlying
// socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connection == nil {
		return nil
	}

	return c.cleanupReferences()
}

// Expire closes this connection and will close the underlying socket.
func (c *Connection) Expire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connection == nil {
		return nil
	}

	_ = c.connection.close()
	return c.cleanupReferences()
}

func (c *Connection) cleanupReferences() error {
	err := c.connection.pool.checkIn(c.connection)
	c.connection = nil
	return err
}

// Alive returns if the connection is still alive.
func (c *Connection) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connection != nil
}

// ID returns the ID of this connection.
func (c *Connection) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connection == nil {
		return "<closed>"
	}
	return c.connection.id
}

// Stale returns if the connection is stale.
func (c *Connection) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connection == nil {
		return false
	}
	return c.connection.pool.stale(c.connection)
}

// Address returns the address of this connection.
func (c *Connection) Address() address.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connection == nil {
		return address.Address("0.0.0.0")
	}
	return c.connection.addr
}

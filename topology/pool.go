// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MartenCatcher/mongo-go-driver/address"
	"github.com/MartenCatcher/mongo-go-driver/event"
	"github.com/MartenCatcher/mongo-go-driver/internal/logger"
	"golang.org/x/sync/semaphore"
)

// Connection pool state constants.
const (
	poolPaused int = iota
	poolReady
	poolClosed
)

// ErrPoolClosed is returned when attempting to check out a connection from a closed pool.
var ErrPoolClosed = PoolError("attempted to check out a connection from closed connection pool")

// ErrConnectionClosed is returned from an attempt to use an already closed connection.
var ErrConnectionClosed = ConnectionError{ConnectionID: "<closed>", message: "connection is closed"}

// ErrWrongPool is returned when a connection is returned to a pool it doesn't belong to.
var ErrWrongPool = PoolError("connection does not belong to this pool")

// PoolError is an error returned from a Pool method.
type PoolError string

func (pe PoolError) Error() string { return string(pe) }

// poolClearedError is an error returned when the connection pool is cleared or currently paused.
// It is a retryable error.
type poolClearedError struct {
	err     error
	address address.Address
}

func (pce poolClearedError) Error() string {
	return fmt.Sprintf(
		"connection pool for %v was cleared because another operation failed with: %v",
		pce.address,
		pce.err)
}

// Retryable returns true. All poolClearedErrors are retryable.
func (poolClearedError) Retryable() bool { return true }

// Unwrap returns the underlying error.
func (pce poolClearedError) Unwrap() error { return pce.err }

// poolConfig contains all aspects of the pool that can be configured
type poolConfig struct {
	Address          address.Address
	MinPoolSize      uint64
	MaxPoolSize      uint64
	MaxIdleTime      time.Duration
	MaintainInterval time.Duration
	PoolMonitor      *event.PoolMonitor
	Logger           *logger.Logger
	handshakeErrFn   func(error, uint64)
}

type pool struct {
	// The following integer fields must be accessed using the atomic package and should be at
	// the beginning of the struct.
	nextID     uint64 // nextID is the next pool ID for a new connection.
	generation uint64 // generation is the current generation of the pool. clear increments it.

	address        address.Address
	minSize        uint64
	maxSize        uint64
	monitor        *event.PoolMonitor
	logger         *logger.Logger
	handshakeErrFn func(error, uint64)

	connOpts         []ConnectionOption
	maintainInterval time.Duration

	// stateMu guards state and lastClearErr. The wait queue checks in checkOut are made while
	// holding a read lock so the pool cannot change state between the check and the queue
	// entry.
	stateMu      sync.RWMutex
	state        int
	lastClearErr error

	// sem is the wait queue. Every checkOut holds one unit from the time it enters the queue
	// until its connection is checked back in, so at most maxSize connections can be checked
	// out at once. Units are granted in FIFO order.
	sem *semaphore.Weighted

	connsMu sync.Mutex
	conns   map[uint64]*connection // conns holds all connections managed by the pool, checked out or idle.

	idleMu    sync.Mutex
	idleConns []*connection // idleConns holds all idle connections as a stack, most recently used on top.

	maintainReady       chan struct{}
	backgroundDone      *sync.WaitGroup
	cancelBackgroundCtx context.CancelFunc
}

// newPool creates a new pool in the paused state. It will use the provided options when
// creating connections.
func newPool(config poolConfig, connOpts ...ConnectionOption) *pool {
	if config.MaxIdleTime != 0 {
		connOpts = append(connOpts, WithIdleTimeout(func(time.Duration) time.Duration { return config.MaxIdleTime }))
	}

	maxConns := int64(config.MaxPoolSize)
	if maxConns <= 0 {
		maxConns = math.MaxInt64
	}

	maintainInterval := config.MaintainInterval
	if maintainInterval == 0 {
		maintainInterval = 10 * time.Second
	}

	p := &pool{
		address:          config.Address,
		minSize:          config.MinPoolSize,
		maxSize:          config.MaxPoolSize,
		monitor:          config.PoolMonitor,
		logger:           config.Logger,
		handshakeErrFn:   config.handshakeErrFn,
		connOpts:         connOpts,
		maintainInterval: maintainInterval,
		state:            poolPaused,
		sem:              semaphore.NewWeighted(maxConns),
		conns:            make(map[uint64]*connection, config.MaxPoolSize),
		idleConns:        make([]*connection, 0, config.MaxPoolSize),
		maintainReady:    make(chan struct{}, 1),
		backgroundDone:   &sync.WaitGroup{},
	}

	// minSize must not exceed maxSize.
	if p.maxSize != 0 && p.minSize > p.maxSize {
		p.minSize = p.maxSize
	}

	if mustLogPoolMessage(p) {
		keysAndValues := logger.KeyValues{
			logger.KeyMaxIdleTimeMS, int64(config.MaxIdleTime / time.Millisecond),
			logger.KeyMinPoolSize, config.MinPoolSize,
			logger.KeyMaxPoolSize, config.MaxPoolSize,
		}

		logPoolMessage(p, logger.ConnectionPoolCreated, keysAndValues...)
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:    event.PoolCreated,
			Address: p.address.String(),
			PoolOptions: &event.MonitorPoolOptions{
				MaxPoolSize:   config.MaxPoolSize,
				MinPoolSize:   config.MinPoolSize,
				MaxIdleTimeMS: uint64(config.MaxIdleTime / time.Millisecond),
			},
		})
	}

	// Start the background maintenance goroutine. It is a no-op until the pool is marked
	// ready and runs until the pool is closed.
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelBackgroundCtx = cancel

	p.backgroundDone.Add(1)
	go p.maintain(ctx, p.backgroundDone)

	return p
}

// stale checks if a given connection's generation is below the generation of the pool. If so,
// the connection is stale because it was created before the most recent clear.
func (p *pool) stale(conn *connection) bool {
	if conn == nil {
		return true
	}

	return conn.generation < atomic.LoadUint64(&p.generation)
}

// getState returns the current state of the pool.
func (p *pool) getState() int {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	return p.state
}

// ready puts the pool into the "ready" state and wakes the background maintenance goroutine so
// MinPoolSize connections are created promptly. ready is safe to call multiple times.
func (p *pool) ready() error {
	// While holding the stateMu lock, set the pool to "ready" if it is currently "paused".
	p.stateMu.Lock()
	switch p.state {
	case poolReady:
		// If the pool is already ready, do nothing.
		p.stateMu.Unlock()
		return nil
	case poolClosed:
		p.stateMu.Unlock()
		return ErrPoolClosed
	}
	p.state = poolReady
	p.lastClearErr = nil
	p.stateMu.Unlock()

	if mustLogPoolMessage(p) {
		logPoolMessage(p, logger.ConnectionPoolReady)
	}

	// Send the pool ready event before waking the maintain() goroutine to guarantee that the
	// event is observed before any maintenance happens.
	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:    event.PoolReady,
			Address: p.address.String(),
		})
	}

	// Wake the maintain() goroutine immediately instead of waiting for the next interval tick.
	select {
	case p.maintainReady <- struct{}{}:
	default:
	}

	return nil
}

// clear marks the pool as paused and increments the pool generation. Idle and in-use
// connections from previous generations are not interrupted; they are closed lazily as checkOut
// and checkIn encounter them. The provided err is returned to callers that attempt to check out
// a connection while the pool remains paused.
func (p *pool) clear(err error) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	// A clear of an already closed pool is a no-op.
	if p.state == poolClosed {
		p.stateMu.Unlock()
		return
	}
	p.state = poolPaused
	p.lastClearErr = err

	atomic.AddUint64(&p.generation, 1)
	p.stateMu.Unlock()

	if mustLogPoolMessage(p) {
		keysAndValues := logger.KeyValues{}
		if err != nil {
			keysAndValues.Add(logger.KeyError, err.Error())
		}

		logPoolMessage(p, logger.ConnectionPoolCleared, keysAndValues...)
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:    event.PoolCleared,
			Address: p.address.String(),
			Error:   err,
		})
	}
}

// close closes the pool, closes all connections in the pool, and stops all background
// goroutines. All subsequent checkOut requests will return an error. If the Context has a
// deadline, it is interpreted as a request for a graceful shutdown and close waits until either
// all connections are checked in or the deadline passes.
func (p *pool) close(ctx context.Context) {
	p.stateMu.Lock()
	if p.state == poolClosed {
		p.stateMu.Unlock()
		return
	}
	p.state = poolClosed
	p.stateMu.Unlock()

	// Stop the maintain() goroutine and wait for it to exit so no new connections are created
	// while the pool drains.
	p.cancelBackgroundCtx()
	p.backgroundDone.Wait()

	// Connections checked in while the pool is closed are closed immediately, so the pool
	// drains as in-progress operations finish.
	if _, ok := ctx.Deadline(); ok {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			if p.totalConnectionCount() == p.availableConnectionCount() || ctx.Err() != nil {
				break
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
			}
		}
	}

	// Empty the idle connections stack. The connections are closed below when the connections
	// map is drained.
	p.idleMu.Lock()
	for i := range p.idleConns {
		p.idleConns[i] = nil
	}
	p.idleConns = p.idleConns[:0]
	p.idleMu.Unlock()

	// Collect all conns from the pool while holding the lock, then close them while not
	// holding any locks. This includes connections that are still checked out; closing the
	// underlying stream fails any in-flight reads and writes on them.
	p.connsMu.Lock()
	conns := make([]*connection, 0, len(p.conns))
	for _, conn := range p.conns {
		conns = append(conns, conn)
	}
	p.connsMu.Unlock()

	for _, conn := range conns {
		_ = p.removeConnection(conn, event.ReasonPoolClosed, nil)
		_ = p.closeConnection(conn)
	}

	if mustLogPoolMessage(p) {
		logPoolMessage(p, logger.ConnectionPoolClosed)
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:    event.PoolClosedEvent,
			Address: p.address.String(),
		})
	}
}

// checkOut checks out a connection from the pool. If an idle connection is not available, a new
// connection is dialed. If the pool is at MaxPoolSize, the checkOut waits in a FIFO queue for a
// connection to be checked in. If the pool is not ready, checkOut returns an error.
func (p *pool) checkOut(ctx context.Context) (conn *connection, err error) {
	if mustLogPoolMessage(p) {
		logPoolMessage(p, logger.ConnectionCheckoutStarted)
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:    event.GetStarted,
			Address: p.address.String(),
		})
	}

	start := time.Now()

	// Check the pool state while holding a stateMu read lock. If the pool state is not
	// "ready", return an error.
	p.stateMu.RLock()
	switch p.state {
	case poolClosed:
		p.stateMu.RUnlock()
		p.checkOutFailed(start, event.ReasonPoolClosed, ErrPoolClosed)
		return nil, ErrPoolClosed
	case poolPaused:
		err := poolClearedError{err: p.lastClearErr, address: p.address}
		p.stateMu.RUnlock()
		p.checkOutFailed(start, event.ReasonConnectionErrored, err)
		return nil, err
	}
	p.stateMu.RUnlock()

	// Enter the wait queue by acquiring a unit from the semaphore.
	err = p.sem.Acquire(ctx, 1)
	if err != nil {
		// Acquire only returns an error when the Context expires.
		waitErr := WaitQueueTimeoutError{
			Wrapped:                  err,
			maxPoolSize:              p.maxSize,
			totalConnectionCount:     p.totalConnectionCount(),
			availableConnectionCount: p.availableConnectionCount(),
			waitDuration:             time.Since(start),
		}
		p.checkOutFailed(start, event.ReasonTimedOut, waitErr)
		return nil, waitErr
	}

	// The pool state may have changed while this checkOut was waiting in the queue, so check
	// it again. A clear or close that happened during the wait fails the checkOut the same way
	// it would have failed a new one.
	p.stateMu.RLock()
	switch p.state {
	case poolClosed:
		p.stateMu.RUnlock()
		p.sem.Release(1)
		p.checkOutFailed(start, event.ReasonPoolClosed, ErrPoolClosed)
		return nil, ErrPoolClosed
	case poolPaused:
		err := poolClearedError{err: p.lastClearErr, address: p.address}
		p.stateMu.RUnlock()
		p.sem.Release(1)
		p.checkOutFailed(start, event.ReasonConnectionErrored, err)
		return nil, err
	}
	p.stateMu.RUnlock()

	// Pop the most recently used idle connection, closing any perished connections found on
	// the way.
	for {
		p.idleMu.Lock()
		if len(p.idleConns) == 0 {
			p.idleMu.Unlock()
			break
		}
		conn = p.idleConns[len(p.idleConns)-1]
		p.idleConns[len(p.idleConns)-1] = nil
		p.idleConns = p.idleConns[:len(p.idleConns)-1]
		p.idleMu.Unlock()

		if reason, perished := connectionPerished(conn); perished {
			_ = p.removeConnection(conn, reason, nil)

			go func(conn *connection) {
				_ = conn.close()
			}(conn)

			continue
		}

		atomic.StoreInt32(&conn.leased, 1)
		p.checkedOut(start, conn)
		return conn, nil
	}

	// No idle connection was available, so dial a new one while holding the wait queue unit.
	// The unit keeps the number of checked out connections, including ones still being dialed,
	// at or below maxSize.
	conn = newConnection(p.address, p.connOpts...)
	conn.pool = p
	conn.driverConnectionID = atomic.AddUint64(&p.nextID, 1)
	conn.generation = atomic.LoadUint64(&p.generation)

	p.connsMu.Lock()
	p.conns[conn.driverConnectionID] = conn
	p.connsMu.Unlock()

	if mustLogPoolMessage(p) {
		logPoolMessage(p, logger.ConnectionCreated, logger.KeyDriverConnectionID, conn.driverConnectionID)
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:         event.ConnectionCreated,
			Address:      p.address.String(),
			ConnectionID: conn.driverConnectionID,
		})
	}

	err = conn.connect(ctx)
	if err != nil {
		p.sem.Release(1)

		// Call the handshake error handler so the server monitor can act on the failed
		// handshake.
		if p.handshakeErrFn != nil {
			p.handshakeErrFn(err, conn.generation)
		}

		_ = p.removeConnection(conn, event.ReasonConnectionErrored, err)

		go func() {
			_ = conn.close()
		}()

		p.checkOutFailed(start, event.ReasonConnectionErrored, err)
		return nil, err
	}

	if mustLogPoolMessage(p) {
		logPoolMessage(p, logger.ConnectionReady, logger.KeyDriverConnectionID, conn.driverConnectionID)
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:         event.ConnectionReady,
			Address:      p.address.String(),
			ConnectionID: conn.driverConnectionID,
		})
	}

	atomic.StoreInt32(&conn.leased, 1)
	p.checkedOut(start, conn)
	return conn, nil
}

// checkOutFailed publishes a log message and an event for a failed checkOut.
func (p *pool) checkOutFailed(start time.Time, reason string, err error) {
	duration := time.Since(start)

	if mustLogPoolMessage(p) {
		logPoolMessage(p, logger.ConnectionCheckoutFailed,
			logger.KeyDurationMS, int64(duration/time.Millisecond),
			logger.KeyReason, reason,
			logger.KeyError, err.Error())
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:    event.GetFailed,
			Address: p.address.String(),
			Reason:  reason,
			Error:   err,
		})
	}
}

// checkedOut publishes a log message and an event for a successful checkOut.
func (p *pool) checkedOut(start time.Time, conn *connection) {
	duration := time.Since(start)

	if mustLogPoolMessage(p) {
		logPoolMessage(p, logger.ConnectionCheckedOut,
			logger.KeyDriverConnectionID, conn.driverConnectionID,
			logger.KeyDurationMS, int64(duration/time.Millisecond))
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:         event.GetSucceeded,
			Address:      p.address.String(),
			ConnectionID: conn.driverConnectionID,
		})
	}
}

// checkIn returns an idle connection to the pool. If the connection is perished or the pool is
// closed, it is removed from the connection pool and closed.
func (p *pool) checkIn(conn *connection) error {
	if conn == nil {
		return nil
	}
	if conn.pool != p {
		return ErrWrongPool
	}

	if mustLogPoolMessage(p) {
		logPoolMessage(p, logger.ConnectionCheckedIn, logger.KeyDriverConnectionID, conn.driverConnectionID)
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:         event.ConnectionReturned,
			ConnectionID: conn.driverConnectionID,
			Address:      conn.addr.String(),
		})
	}

	// A connection can only be checked in once. A second check in of the same connection would
	// return a second wait queue unit to the semaphore, so it must be rejected before the
	// connection is touched.
	if !atomic.CompareAndSwapInt32(&conn.leased, 1, 0) {
		return fmt.Errorf("attempted to check in a connection that is not checked out: %v", conn.id)
	}

	// Return the wait queue unit after the connection is back in the pool or closed.
	defer p.sem.Release(1)

	return p.checkInNoEvent(conn)
}

// checkInNoEvent returns a connection to the pool. It behaves identically to checkIn except it
// does not publish events and does not return a wait queue unit. It is only intended for use by
// pool-internal functions.
func (p *pool) checkInNoEvent(conn *connection) error {
	if conn == nil {
		return nil
	}
	if conn.pool != p {
		return ErrWrongPool
	}

	// Bump the connection idle deadline here because the connection is about to become idle.
	// This also covers connections created by maintain() to satisfy MinPoolSize, so an unused
	// connection is pruned MaxIdleTime after it was created.
	conn.bumpIdleDeadline()

	if reason, perished := connectionPerished(conn); perished {
		_ = p.removeConnection(conn, reason, nil)

		go func() {
			_ = conn.close()
		}()

		return nil
	}

	if p.getState() == poolClosed {
		_ = p.removeConnection(conn, event.ReasonPoolClosed, nil)

		go func() {
			_ = conn.close()
		}()

		return nil
	}

	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	for _, idle := range p.idleConns {
		if idle == conn {
			return fmt.Errorf("duplicate idle conn %v in idle connections stack", conn.id)
		}
	}

	p.idleConns = append(p.idleConns, conn)
	return nil
}

// removeConnection removes a connection from the pool and emits a ConnectionClosed event with
// the given reason.
func (p *pool) removeConnection(conn *connection, reason string, err error) error {
	if conn == nil {
		return nil
	}

	if conn.pool != p {
		return ErrWrongPool
	}

	p.connsMu.Lock()
	_, ok := p.conns[conn.driverConnectionID]
	if !ok {
		// If the connection has already been removed from the pool, exit without making any
		// additional state changes.
		p.connsMu.Unlock()
		return nil
	}
	delete(p.conns, conn.driverConnectionID)
	p.connsMu.Unlock()

	if mustLogPoolMessage(p) {
		keysAndValues := logger.KeyValues{
			logger.KeyDriverConnectionID, conn.driverConnectionID,
			logger.KeyReason, reason,
		}

		if err != nil {
			keysAndValues.Add(logger.KeyError, err.Error())
		}

		logPoolMessage(p, logger.ConnectionClosed, keysAndValues...)
	}

	if p.monitor != nil {
		p.monitor.Event(&event.PoolEvent{
			Type:         event.ConnectionClosed,
			Address:      p.address.String(),
			ConnectionID: conn.driverConnectionID,
			Reason:       reason,
			Error:        err,
		})
	}

	return nil
}

// closeConnection closes a connection, not the pool itself. This method will actually close the
// connection, making it unusable, to instead return the connection to the pool, use checkIn.
func (p *pool) closeConnection(conn *connection) error {
	if conn.pool != p {
		return ErrWrongPool
	}

	if atomic.LoadInt64(&conn.state) == connConnected {
		conn.closeConnectContext()
		conn.wait() // Make sure that the connection has finished connecting.
	}

	err := conn.close()
	if err != nil {
		return ConnectionError{ConnectionID: conn.id, Wrapped: err, message: "failed to close stream"}
	}

	return nil
}

// connectionPerished checks if a given connection is perished and should be removed from the
// pool.
func connectionPerished(conn *connection) (string, bool) {
	switch {
	case conn.closed():
		// A connection is only closed if it encountered a network error during an operation
		// and closed itself.
		return event.ReasonConnectionErrored, true
	case conn.idleTimeoutExpired():
		return event.ReasonIdle, true
	case conn.pool.stale(conn):
		return event.ReasonStale, true
	}

	return "", false
}

// availableConnectionCount returns the number of available idle connections.
func (p *pool) availableConnectionCount() int {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	return len(p.idleConns)
}

// totalConnectionCount returns the number of connections currently managed by the pool, checked
// out or idle.
func (p *pool) totalConnectionCount() int {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()

	return len(p.conns)
}

// maintain runs in a background goroutine for the life of the pool and runs periodic
// maintenance while the pool is ready: it prunes perished idle connections and creates new
// connections to satisfy MinPoolSize.
func (p *pool) maintain(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.maintainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-p.maintainReady:
		case <-ctx.Done():
			return
		}

		// Only maintain the pool while it is in the "ready" state.
		if p.getState() != poolReady {
			continue
		}

		p.removePerishedConns()
		p.createMinPoolSizeConns(ctx)
	}
}

// removePerishedConns removes any perished connections from the idle connections stack.
func (p *pool) removePerishedConns() {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	for i := range p.idleConns {
		conn := p.idleConns[i]
		if conn == nil {
			continue
		}

		if reason, perished := connectionPerished(conn); perished {
			p.idleConns[i] = nil

			_ = p.removeConnection(conn, reason, nil)

			go func(conn *connection) {
				_ = conn.close()
			}(conn)
		}
	}

	p.idleConns = compact(p.idleConns)
}

// compact removes any nil pointers from the slice and keeps the non-nil pointers, retaining the
// order of the non-nil pointers.
func compact(arr []*connection) []*connection {
	offset := 0
	for i := range arr {
		if arr[i] == nil {
			continue
		}
		arr[offset] = arr[i]
		offset++
	}
	return arr[:offset]
}

// createMinPoolSizeConns dials new connections and checks them into the pool until the total
// number of connections reaches MinPoolSize or an error is encountered.
func (p *pool) createMinPoolSizeConns(ctx context.Context) {
	for {
		p.connsMu.Lock()
		if uint64(len(p.conns)) >= p.minSize {
			p.connsMu.Unlock()
			return
		}

		conn := newConnection(p.address, p.connOpts...)
		conn.pool = p
		conn.driverConnectionID = atomic.AddUint64(&p.nextID, 1)
		conn.generation = atomic.LoadUint64(&p.generation)
		p.conns[conn.driverConnectionID] = conn
		p.connsMu.Unlock()

		if mustLogPoolMessage(p) {
			logPoolMessage(p, logger.ConnectionCreated, logger.KeyDriverConnectionID, conn.driverConnectionID)
		}

		if p.monitor != nil {
			p.monitor.Event(&event.PoolEvent{
				Type:         event.ConnectionCreated,
				Address:      p.address.String(),
				ConnectionID: conn.driverConnectionID,
			})
		}

		if err := conn.connect(ctx); err != nil {
			if p.handshakeErrFn != nil {
				p.handshakeErrFn(err, conn.generation)
			}

			_ = p.removeConnection(conn, event.ReasonConnectionErrored, err)
			_ = conn.close()

			// Stop trying to create connections on the first error. The next maintenance
			// cycle will try again if the pool is still ready.
			return
		}

		if mustLogPoolMessage(p) {
			logPoolMessage(p, logger.ConnectionReady, logger.KeyDriverConnectionID, conn.driverConnectionID)
		}

		if p.monitor != nil {
			p.monitor.Event(&event.PoolEvent{
				Type:         event.ConnectionReady,
				Address:      p.address.String(),
				ConnectionID: conn.driverConnectionID,
			})
		}

		_ = p.checkInNoEvent(conn)
	}
}

func mustLogPoolMessage(pool *pool) bool {
	return pool.logger != nil && pool.logger.LevelComponentEnabled(
		logger.LevelDebug, logger.ComponentConnection)
}

func logPoolMessage(pool *pool, msg string, keysAndValues ...interface{}) {
	host, port, err := net.SplitHostPort(pool.address.String())
	if err != nil {
		host = pool.address.String()
		port = ""
	}

	pool.logger.Print(logger.LevelDebug,
		logger.ComponentConnection,
		msg,
		logger.SerializeConnection(logger.Connection{
			Message:    msg,
			ServerHost: host,
			ServerPort: port,
		}, keysAndValues...)...)
}

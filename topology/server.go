// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MartenCatcher/mongo-go-driver/address"
	"github.com/MartenCatcher/mongo-go-driver/description"
	"github.com/MartenCatcher/mongo-go-driver/driver"
	"github.com/MartenCatcher/mongo-go-driver/event"
	"github.com/MartenCatcher/mongo-go-driver/internal/logger"
)

const minHeartbeatInterval = 500 * time.Millisecond

// Server state constants.
const (
	serverDisconnected int64 = iota
	serverDisconnecting
	serverConnected
)

func serverStateString(state int64) string {
	switch state {
	case serverDisconnected:
		return "Disconnected"
	case serverDisconnecting:
		return "Disconnecting"
	case serverConnected:
		return "Connected"
	}

	return ""
}

var (
	// ErrServerClosed occurs when an attempt to Get a connection is made after
	// the server has been closed.
	ErrServerClosed = errors.New("server is closed")
	// ErrServerConnected occurs when at attempt to Connect is made after a server
	// has already been connected.
	ErrServerConnected = errors.New("server is connected")

	errCheckCancelled = errors.New("server check cancelled")
)

// SelectedServer represents a specific server that was selected during server selection.
// It contains the kind of the topology in which it was selected.
type SelectedServer struct {
	*Server

	Kind description.TopologyKind
}

// Description returns a description of the server as of the last heartbeat.
func (ss *SelectedServer) Description() description.SelectedServer {
	sdesc := ss.Server.Description()
	return description.SelectedServer{
		Server: sdesc,
		Kind:   ss.Kind,
	}
}

// Server is a single server within a topology.
type Server struct {
	// The following integer field must be accessed using the atomic package and should be at
	// the beginning of the struct.
	state int64

	cfg     *serverConfig
	address address.Address

	// connection related fields
	pool *pool

	// goroutine management fields
	done     chan struct{}
	checkNow chan struct{}
	closewg  sync.WaitGroup

	// description related fields
	desc                   atomic.Value // holds a description.Server
	updateTopologyCallback atomic.Value
	topologyID             uint64

	// heartbeat and cancellation related fields
	conn               *connection
	globalCtx          context.Context
	globalCtxCancel    context.CancelFunc
	heartbeatLock      sync.Mutex
	heartbeatCtx       context.Context
	heartbeatCtxCancel context.CancelFunc

	processErrorLock sync.Mutex
	rttMonitor       *rttMonitor
}

// updateTopologyCallback is a callback used to create a server that should be called when the
// parent Topology instance should be updated based on a new server description. The callback
// must return the server description that should be stored by the server.
type updateTopologyCallback func(description.Server) description.Server

// ConnectServer creates a new Server and then initializes it using the Connect method.
func ConnectServer(
	addr address.Address,
	updateCallback updateTopologyCallback,
	topologyID uint64,
	opts ...ServerOption,
) (*Server, error) {
	srvr := NewServer(addr, topologyID, opts...)
	err := srvr.Connect(updateCallback)
	if err != nil {
		return nil, err
	}
	return srvr, nil
}

// NewServer creates a new server. The mongodb server at the address will be monitored
// on an internal monitoring goroutine.
func NewServer(addr address.Address, topologyID uint64, opts ...ServerOption) *Server {
	cfg := newServerConfig(opts...)
	globalCtx, globalCtxCancel := context.WithCancel(context.Background())
	s := &Server{
		state: serverDisconnected,

		cfg:     cfg,
		address: addr,

		done:     make(chan struct{}),
		checkNow: make(chan struct{}, 1),

		topologyID: topologyID,

		globalCtx:       globalCtx,
		globalCtxCancel: globalCtxCancel,
	}
	s.desc.Store(description.NewDefaultServer(addr))
	rttCfg := &rttConfig{
		interval:           cfg.heartbeatInterval,
		minRTTWindow:       5 * time.Minute,
		createConnectionFn: s.createConnection,
		runHelloFn:         s.runHello,
	}
	s.rttMonitor = newRTTMonitor(rttCfg)

	pc := poolConfig{
		Address:          addr,
		MinPoolSize:      cfg.minConns,
		MaxPoolSize:      cfg.maxConns,
		MaxIdleTime:      cfg.poolMaxIdleTime,
		MaintainInterval: cfg.poolMaintainInterval,
		PoolMonitor:      cfg.poolMonitor,
		Logger:           cfg.logger,
		handshakeErrFn:   s.ProcessHandshakeError,
	}

	connectionOpts := copyConnectionOpts(cfg.connectionOpts)
	s.pool = newPool(pc, connectionOpts...)
	s.publishServerOpeningEvent(s.address)

	return s
}

func mustLogServerMessage(srv *Server) bool {
	return srv.cfg.logger != nil && srv.cfg.logger.LevelComponentEnabled(
		logger.LevelDebug, logger.ComponentTopology)
}

func logServerMessage(srv *Server, msg string, keysAndValues ...interface{}) {
	serverHost, serverPort, err := net.SplitHostPort(srv.address.String())
	if err != nil {
		serverHost = srv.address.String()
		serverPort = ""
	}

	extra := append([]interface{}{
		logger.KeyServerHost, serverHost,
		logger.KeyServerPort, serverPort,
	}, keysAndValues...)

	srv.cfg.logger.Print(logger.LevelDebug,
		logger.ComponentTopology,
		msg,
		logger.SerializeTopology(logger.Topology{
			ID:      srv.topologyID,
			Message: msg,
		}, extra...)...)
}

// Connect initializes the Server by starting background monitoring goroutines.
// This method must be called before a Server can be used.
func (s *Server) Connect(updateCallback updateTopologyCallback) error {
	if !atomic.CompareAndSwapInt64(&s.state, serverDisconnected, serverConnected) {
		return ErrServerConnected
	}

	desc := description.NewDefaultServer(s.address)
	s.desc.Store(desc)
	s.updateTopologyCallback.Store(updateCallback)

	if !s.cfg.monitoringDisabled {
		s.closewg.Add(1)
		s.rttMonitor.connect()
		go s.update()
	}

	// Connection attempts may begin before the first successful heartbeat. The monitoring
	// routine pauses the pool again if the server check fails.
	return s.pool.ready()
}

// Disconnect closes sockets to the server referenced by this Server.
// This method will return any error encountered when trying to cleanly disconnect.
//
// Any in-flight read or write operations are cancelled and will return errors.
func (s *Server) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt64(&s.state, serverConnected, serverDisconnecting) {
		return ErrServerClosed
	}

	s.updateTopologyCallback.Store((updateTopologyCallback)(nil))

	// Cancel the global context so any new contexts created from it will be automatically
	// cancelled. Close the done channel to cause the update routine to exit.
	s.globalCtxCancel()
	close(s.done)

	// Wait for the update routine to stop before closing the pool so no new maintenance
	// happens against a closed pool.
	s.closewg.Wait()
	s.rttMonitor.disconnect()
	s.pool.close(ctx)

	atomic.StoreInt64(&s.state, serverDisconnected)

	return nil
}

// Connection gets a connection to the server.
func (s *Server) Connection(ctx context.Context) (driver.Connection, error) {
	if atomic.LoadInt64(&s.state) != serverConnected {
		return nil, ErrServerClosed
	}

	conn, err := s.pool.checkOut(ctx)
	if err != nil {
		// Checkout errors are processed by the pool itself. Dial and handshake failures go
		// through the pool's handshake error callback, so no processing is needed here.
		return nil, err
	}

	return &Connection{connection: conn}, nil
}

// ProcessHandshakeError implements error handling for errors that occur before a connection
// finishes handshaking.
func (s *Server) ProcessHandshakeError(opErr error, startingGenerationNumber uint64) {
	// Ignore the error if the connection is stale.
	if startingGenerationNumber < atomic.LoadUint64(&s.pool.generation) {
		return
	}

	// Unwrap any connection error. If there is no wrapped connection error, then the error should
	// not result in any Server state change (e.g. a command error from the database).
	wrappedConnErr := unwrapConnectionError(opErr)
	if wrappedConnErr == nil {
		return
	}

	// Must hold the processErrorLock while updating the server description and clearing the
	// pool. Not holding the lock leads to possible out-of-order processing of pool.clear() and
	// pool.ready() calls from concurrent server description updates.
	s.processErrorLock.Lock()
	defer s.processErrorLock.Unlock()

	// The only connection errors reported here are initialization errors, so the server can be
	// marked Unknown without any staleness checks against the current description.
	s.updateDescription(description.NewServerFromError(s.address, wrappedConnErr))
	s.pool.clear(opErr)
	s.cancelCheck()
}

// Description returns a description of the server as of the last heartbeat.
func (s *Server) Description() description.Server {
	return s.desc.Load().(description.Server)
}

// SelectedDescription returns a description.SelectedServer with a Kind of
// Single. This can be used when performing tasks like monitoring a batch
// of servers and you want to run one off commands against those servers.
func (s *Server) SelectedDescription() description.SelectedServer {
	sdesc := s.Description()
	return description.SelectedServer{
		Server: sdesc,
		Kind:   description.Single,
	}
}

// RequestImmediateCheck will cause the server to send a heartbeat immediately
// instead of waiting for the heartbeat timeout.
func (s *Server) RequestImmediateCheck() {
	select {
	case s.checkNow <- struct{}{}:
	default:
	}
}

// getWriteConcernErrorForProcessing extracts a driver.WriteConcernError from the given error.
// This function returns (wcerr, true) if the error is a WriteConcernError that indicates a
// state change and (nil, false) otherwise.
func getWriteConcernErrorForProcessing(err error) (*driver.WriteConcernError, bool) {
	writeCmdErr, ok := err.(driver.WriteCommandError)
	if !ok {
		return nil, false
	}

	wcerr := writeCmdErr.WriteConcernError
	if wcerr != nil && (wcerr.NodeIsRecovering() || wcerr.NotPrimary()) {
		return wcerr, true
	}

	return nil, false
}

// ProcessError handles SDAM error handling and implements driver.ErrorProcessor.
func (s *Server) ProcessError(err error, conn driver.Connection) driver.ProcessErrorResult {
	// Ignore nil errors.
	if err == nil {
		return driver.NoChange
	}

	// Ignore errors from stale connections because the error came from a previous generation of
	// the connection pool. The root cause of the error has already been handled, which is what
	// caused the pool generation to increment. Processing errors for stale connections could
	// result in handling the same error root cause multiple times (e.g. a temporary network
	// interrupt causing all connections to the same server to return errors).
	if conn.Stale() {
		return driver.NoChange
	}

	// Must hold the processErrorLock while updating the server description and clearing the
	// pool. Not holding the lock leads to possible out-of-order processing of pool.clear() and
	// pool.ready() calls from concurrent server description updates.
	s.processErrorLock.Lock()
	defer s.processErrorLock.Unlock()

	// Get the wire version from the connection description, which will never change for the
	// lifetime of a connection and can possibly be different between connections to the same
	// server.
	wireVersion := conn.Description().WireVersion

	// Invalidate server description if not primary or node recovering error occurs.
	// These errors can be reported as a command error or a write concern error.
	if cerr, ok := err.(driver.Error); ok && (cerr.NodeIsRecovering() || cerr.NotPrimary()) {
		// Updates the server description to unknown.
		s.updateDescription(description.NewServerFromError(s.address, err))
		s.RequestImmediateCheck()

		res := driver.ServerMarkedUnknown
		// If the node is shutting down or is older than 4.2, the pool is cleared synchronously.
		if cerr.NodeIsShuttingDown() || wireVersion == nil || wireVersion.Max < 8 {
			res = driver.ConnectionPoolCleared
			s.pool.clear(err)
		}

		return res
	}
	if wcerr, ok := getWriteConcernErrorForProcessing(err); ok {
		// Updates the server description to unknown.
		s.updateDescription(description.NewServerFromError(s.address, err))
		s.RequestImmediateCheck()

		res := driver.ServerMarkedUnknown
		// If the node is shutting down or is older than 4.2, the pool is cleared synchronously.
		if wcerr.NodeIsShuttingDown() || wireVersion == nil || wireVersion.Max < 8 {
			res = driver.ConnectionPoolCleared
			s.pool.clear(err)
		}

		return res
	}

	wrappedConnErr := unwrapConnectionError(err)
	if wrappedConnErr == nil {
		return driver.NoChange
	}

	// Ignore transient timeout errors.
	if netErr, ok := wrappedConnErr.(net.Error); ok && netErr.Timeout() {
		return driver.NoChange
	}
	if wrappedConnErr == context.Canceled || wrappedConnErr == context.DeadlineExceeded {
		return driver.NoChange
	}

	// For a non-timeout network error, we clear the pool, set the description to Unknown, and
	// cancel the in-progress monitoring check. The check is cancelled last to avoid a race
	// condition in test code.
	s.updateDescription(description.NewServerFromError(s.address, err))
	s.pool.clear(err)
	s.cancelCheck()
	return driver.ConnectionPoolCleared
}

// update handles performing heartbeats and updating any subscribers of the
// newest description.Server retrieved.
func (s *Server) update() {
	defer s.closewg.Done()
	heartbeatTicker := time.NewTicker(s.cfg.heartbeatInterval)
	rateLimiter := time.NewTicker(minHeartbeatInterval)
	defer heartbeatTicker.Stop()
	defer rateLimiter.Stop()
	checkNow := s.checkNow
	done := s.done

	defer func() {
		_ = recover()
	}()

	closeServer := func() {
		// The monitoring connection is not being used by a check at this point because
		// closeServer is called synchronously from the update loop, so it can be closed
		// directly.
		if s.conn != nil {
			_ = s.conn.close()
		}
	}

	waitUntilNextCheck := func() {
		// Wait until heartbeatFrequency elapses, an application operation requests an immediate
		// check, or the server is disconnecting.
		select {
		case <-heartbeatTicker.C:
		case <-checkNow:
		case <-done:
			// Return because the next update iteration will check the done channel again and
			// clean up.
			return
		}

		// Ensure we only return if minHeartbeatFrequency has elapsed or the server is
		// disconnecting.
		select {
		case <-rateLimiter.C:
		case <-done:
			return
		}
	}

	for {
		// Check if the server is disconnecting. Even if waitForNextCheck has already read from
		// the done channel, we can safely read from it again because Disconnect closes the
		// channel.
		select {
		case <-done:
			closeServer()
			return
		default:
		}

		previousDescription := s.Description()

		// Perform the next check.
		desc, err := s.check()
		if err == errCheckCancelled {
			if atomic.LoadInt64(&s.state) != serverConnected {
				continue
			}

			// If the server is not disconnecting, wait until the next check.
			waitUntilNextCheck()
			continue
		}

		s.updateDescription(desc)
		if desc.LastError != nil {
			// Clear the pool once the description has been updated to Unknown.
			s.pool.clear(desc.LastError)
		}

		// If the server has transitioned to Unknown from a network error, we want to do another
		// check without waiting in case it was a transient error and the server isn't actually
		// down.
		transitionedFromNetworkError := desc.LastError != nil && unwrapConnectionError(desc.LastError) != nil &&
			previousDescription.Kind != description.Unknown

		if transitionedFromNetworkError {
			continue
		}

		waitUntilNextCheck()
	}
}

// updateDescription handles updating the description on the Server, notifying the parent
// Topology, and potentially readying the connection pool.
func (s *Server) updateDescription(desc description.Server) {
	if s == nil {
		return
	}

	defer func() {
		_ = recover()
	}()

	// Anytime we update the server description to something other than "unknown", set the pool
	// to "ready". Do this before updating the description so that connections can be checked
	// out as soon as the server is selectable. If the pool is already ready, this operation is
	// a no-op.
	if desc.Kind != description.Unknown {
		_ = s.pool.ready()
	}

	// Use the updateTopologyCallback to update the parent Topology and get the description
	// that should be stored.
	callback, ok := s.updateTopologyCallback.Load().(updateTopologyCallback)
	if ok && callback != nil {
		desc = callback(desc)
	}
	s.desc.Store(desc)
}

// createConnection creates a new connection instance but does not call connect on it. The
// caller is responsible for connecting it.
func (s *Server) createConnection() *connection {
	opts := copyConnectionOpts(s.cfg.connectionOpts)
	opts = append(opts,
		WithConnectTimeout(func(time.Duration) time.Duration { return s.cfg.heartbeatTimeout }),
		// Override any monitor-unrelated idle timeout with 0 because the monitoring routine
		// manages the lifetime of its own connection.
		WithIdleTimeout(func(time.Duration) time.Duration { return 0 }),
	)

	return newConnection(s.address, opts...)
}

func copyConnectionOpts(opts []ConnectionOption) []ConnectionOption {
	optsCopy := make([]ConnectionOption, len(opts))
	copy(optsCopy, opts)
	return optsCopy
}

func (s *Server) setupHeartbeatConnection() error {
	conn := s.createConnection()

	// Take the lock when assigning the context and connection because they're accessed by
	// cancelCheck.
	s.heartbeatLock.Lock()
	if s.heartbeatCtxCancel != nil {
		// Ensure the previous context is cancelled to avoid a leak.
		s.heartbeatCtxCancel()
	}
	s.heartbeatCtx, s.heartbeatCtxCancel = context.WithCancel(s.globalCtx)
	s.conn = conn
	s.heartbeatLock.Unlock()

	return s.conn.connect(s.heartbeatCtx)
}

// cancelCheck cancels in-progress connection dials and reads. It does not set any fields on the
// server.
func (s *Server) cancelCheck() {
	var conn *connection

	// Take heartbeatLock for mutual exclusion with the checks in the update function.
	s.heartbeatLock.Lock()
	if s.heartbeatCtx != nil {
		s.heartbeatCtxCancel()
	}
	conn = s.conn
	s.heartbeatLock.Unlock()

	if conn == nil {
		return
	}

	// If the connection exists, we need to wait for it to be connected because conn.connect()
	// and conn.close() cannot be called concurrently. If the connection wasn't successfully
	// opened, its state was set back to disconnected, so calling conn.close() will be a no-op.
	conn.closeConnectContext()
	conn.wait()
	_ = conn.close()
}

func (s *Server) checkWasCancelled() bool {
	return s.heartbeatCtx.Err() != nil
}

// runHello sends a hello to the server on the given connection using the configured handshaker.
// It is used by the RTT monitor to time an exchange on an established connection.
func (s *Server) runHello(ctx context.Context, conn *connection) error {
	handshaker := conn.config.handshaker
	if handshaker == nil {
		return nil
	}

	_, err := handshaker.GetHandshakeInformation(ctx, conn.addr, conn.stream)
	return err
}

// check performs a single heartbeat against the server, returning the resulting description or
// errCheckCancelled if the check was cancelled by SDAM error handling.
func (s *Server) check() (description.Server, error) {
	var desc description.Server
	var err error
	var duration time.Duration

	start := time.Now()

	// Create a new connection if this is the first check, the connection was closed after an
	// error during the previous check, or the previous check was cancelled.
	if s.conn == nil || s.conn.closed() || s.checkWasCancelled() {
		connID := "0"
		if s.conn != nil {
			connID = s.conn.ID()
		}
		s.publishServerHeartbeatStartedEvent(connID)
		// Create a new connection and add its handshake RTT as a sample. The handshake
		// performed during connect doubles as the heartbeat, so its description is used as the
		// value for this check.
		err = s.setupHeartbeatConnection()
		duration = time.Since(start)
		if err == nil {
			s.rttMonitor.addSample(s.conn.helloRTT)
			desc = s.conn.desc
			s.publishServerHeartbeatSucceededEvent(s.conn.ID(), duration, desc)
		} else {
			err = unwrapConnectionError(err)
			s.publishServerHeartbeatFailedEvent(connID, duration, err)
		}
	} else {
		// A connection is already established, so run another handshake exchange over it.
		s.publishServerHeartbeatStartedEvent(s.conn.ID())

		handshaker := s.conn.config.handshaker
		var info driver.HandshakeInformation
		if handshaker != nil {
			ctx := s.heartbeatCtx
			cancel := func() {}
			if s.cfg.heartbeatTimeout != 0 {
				ctx, cancel = context.WithTimeout(s.heartbeatCtx, s.cfg.heartbeatTimeout)
			}
			info, err = handshaker.GetHandshakeInformation(ctx, s.conn.addr, s.conn.stream)
			cancel()
		}

		duration = time.Since(start)
		if err == nil {
			desc = info.Description
			s.publishServerHeartbeatSucceededEvent(s.conn.ID(), duration, desc)
		} else {
			// Close the connection here rather than below so the heartbeat failed event
			// carries the connection's ID.
			s.publishServerHeartbeatFailedEvent(s.conn.ID(), duration, err)
			_ = s.conn.close()
		}
	}

	if err != nil {
		if s.checkWasCancelled() {
			// If the previous check was cancelled, return an error without setting server
			// state because the state was handled by the goroutine that cancelled the check.
			return description.Server{}, errCheckCancelled
		}

		// Failed checks reset the RTT monitor because the server is unreachable.
		s.rttMonitor.reset()
		return description.NewServerFromError(s.address, err), nil
	}

	desc = desc.SetAverageRTT(s.rttMonitor.EWMA())
	desc.HeartbeatInterval = s.cfg.heartbeatInterval

	return desc, nil
}

// RTTMonitor returns this server's round-trip-time monitor.
func (s *Server) RTTMonitor() driver.RTTMonitor {
	return s.rttMonitor
}

// String implements the Stringer interface.
func (s *Server) String() string {
	desc := s.Description()
	state := atomic.LoadInt64(&s.state)
	str := fmt.Sprintf("Addr: %s, Type: %s, State: %s",
		s.address, desc.Kind, serverStateString(state))
	if len(desc.Tags) != 0 {
		str += fmt.Sprintf(", Tag sets: %s", desc.Tags)
	}
	if state == serverConnected {
		str += fmt.Sprintf(", Average RTT: %d, Min RTT: %d", desc.AverageRTT, s.RTTMonitor().Min())
	}
	if desc.LastError != nil {
		str += fmt.Sprintf(", Last error: %s", desc.LastError)
	}
	return str
}

func (s *Server) publishServerOpeningEvent(addr address.Address) {
	if s == nil {
		return
	}

	serverOpening := &event.ServerOpeningEvent{
		Address:    addr,
		TopologyID: s.topologyID,
	}

	if s.cfg.serverMonitor != nil && s.cfg.serverMonitor.ServerOpening != nil {
		s.cfg.serverMonitor.ServerOpening(serverOpening)
	}

	if mustLogServerMessage(s) {
		logServerMessage(s, logger.TopologyServerOpening)
	}
}

func (s *Server) publishServerHeartbeatStartedEvent(connectionID string) {
	serverHeartbeatStarted := &event.ServerHeartbeatStartedEvent{
		ConnectionID: connectionID,
	}

	if s != nil && s.cfg.serverMonitor != nil && s.cfg.serverMonitor.ServerHeartbeatStarted != nil {
		s.cfg.serverMonitor.ServerHeartbeatStarted(serverHeartbeatStarted)
	}

	if mustLogServerMessage(s) {
		logServerMessage(s, logger.TopologyServerHeartbeatStarted,
			logger.KeyDriverConnectionID, connectionID)
	}
}

func (s *Server) publishServerHeartbeatSucceededEvent(
	connectionID string,
	duration time.Duration,
	desc description.Server,
) {
	serverHeartbeatSucceeded := &event.ServerHeartbeatSucceededEvent{
		DurationNanos: duration.Nanoseconds(),
		Reply:         desc,
		ConnectionID:  connectionID,
	}

	if s != nil && s.cfg.serverMonitor != nil && s.cfg.serverMonitor.ServerHeartbeatSucceeded != nil {
		s.cfg.serverMonitor.ServerHeartbeatSucceeded(serverHeartbeatSucceeded)
	}

	if mustLogServerMessage(s) {
		logServerMessage(s, logger.TopologyServerHeartbeatSucceeded,
			logger.KeyDriverConnectionID, connectionID,
			logger.KeyDurationMS, int64(duration/time.Millisecond))
	}
}

func (s *Server) publishServerHeartbeatFailedEvent(
	connectionID string,
	duration time.Duration,
	err error,
) {
	serverHeartbeatFailed := &event.ServerHeartbeatFailedEvent{
		DurationNanos: duration.Nanoseconds(),
		Failure:       err,
		ConnectionID:  connectionID,
	}

	if s != nil && s.cfg.serverMonitor != nil && s.cfg.serverMonitor.ServerHeartbeatFailed != nil {
		s.cfg.serverMonitor.ServerHeartbeatFailed(serverHeartbeatFailed)
	}

	if mustLogServerMessage(s) {
		logServerMessage(s, logger.TopologyServerHeartbeatFailed,
			logger.KeyDriverConnectionID, connectionID,
			logger.KeyDurationMS, int64(duration/time.Millisecond),
			logger.KeyFailure, err)
	}
}

// unwrapConnectionError returns the connection error wrapped by the input error, or nil if the
// input error is not wrapping a connection error.
func unwrapConnectionError(err error) error {
	connErr, ok := err.(ConnectionError)
	if ok {
		return connErr.Wrapped
	}

	driverErr, ok := err.(driver.Error)
	if !ok || !driverErr.NetworkError() {
		return nil
	}

	connErr, ok = driverErr.Wrapped.(ConnectionError)
	if ok {
		return connErr.Wrapped
	}

	return nil
}

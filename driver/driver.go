// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"time"

	"github.com/MartenCatcher/mongo-go-driver/address"
	"github.com/MartenCatcher/mongo-go-driver/description"
)

// Deployment is implemented by types that can select a server from a deployment.
type Deployment interface {
	SelectServer(context.Context, description.ServerSelector) (Server, error)
	Description() description.Topology
}

// Server represents a MongoDB server. Implementations should pool connections and handle the
// retrieving and returning of connections.
type Server interface {
	Connection(context.Context) (Connection, error)

	// RTTMonitor returns the round-trip time monitor associated with this server.
	RTTMonitor() RTTMonitor
}

// RTTMonitor represents a round-trip-time monitor.
type RTTMonitor interface {
	// EWMA returns the exponentially weighted moving average observed round-trip time.
	EWMA() time.Duration

	// Min returns the minimum observed round-trip time over the window period.
	Min() time.Duration

	// P90 returns the 90th percentile observed round-trip time over the window period.
	P90() time.Duration

	// Stats returns stringified stats of the current state of the monitor.
	Stats() string
}

// Connection represents a connection to a MongoDB server.
type Connection interface {
	WriteWireMessage(context.Context, []byte) error
	ReadWireMessage(ctx context.Context, dst []byte) ([]byte, error)
	Description() description.Server
	Close() error
	ID() string
	Address() address.Address
	Stale() bool
}

// ErrorProcessor implementations can handle processing errors, which may modify their internal state.
// If this type is implemented by a Server, then Operation.Execute will call its ProcessError
// method after each round trip so the server can update itself before a retry is attempted.
type ErrorProcessor interface {
	ProcessError(err error, conn Connection) ProcessErrorResult
}

// ProcessErrorResult represents the result of an ErrorProcessor.ProcessError call.
type ProcessErrorResult int

const (
	// NoChange indicates that the error did not affect the state of the server.
	NoChange ProcessErrorResult = iota
	// ServerMarkedUnknown indicates that the error only resulted in the server being marked as
	// Unknown.
	ServerMarkedUnknown
	// ConnectionPoolCleared indicates that the error resulted in the server being marked as
	// Unknown and its connection pool being cleared.
	ConnectionPoolCleared
)

// Transport is implemented by the component that owns the process's sockets. The topology dials
// every monitoring and application connection through a Transport.
type Transport interface {
	Dial(ctx context.Context, addr address.Address) (Stream, error)
}

// Stream represents a single established channel to a server. Implementations own the framing of
// wire messages; this package treats them as opaque byte slices.
type Stream interface {
	WriteWireMessage(context.Context, []byte) error
	ReadWireMessage(ctx context.Context, dst []byte) ([]byte, error)
	Close() error
}

// Handshaker is the interface implemented by types that can perform a MongoDB handshake over a
// provided Stream. This is used during connection initialization and for periodic server checks.
// Implementations must be goroutine safe.
type Handshaker interface {
	GetHandshakeInformation(context.Context, address.Address, Stream) (HandshakeInformation, error)
}

// HandshakeInformation contains information extracted from a MongoDB connection handshake.
type HandshakeInformation struct {
	Description description.Server
}

// RetryablePoolError is an error returned from a connection pool that can be retried while
// executing an operation.
type RetryablePoolError interface {
	Retryable() bool
}

// Subscription represents a subscription to topology updates. A subscriber can receive updates
// through the Updates field.
type Subscription struct {
	Updates <-chan description.Topology
	ID      uint64
}

// Subscriber represents a type to which another type can subscribe. A subscription contains a
// channel that is updated with topology descriptions.
type Subscriber interface {
	Subscribe() (*Subscription, error)
	Unsubscribe(*Subscription) error
}

// SingleServerDeployment is an implementation of Deployment that always returns a single server.
type SingleServerDeployment struct{ Server Server }

var _ Deployment = SingleServerDeployment{}

// SelectServer implements the Deployment interface. This method does not use the
// description.ServerSelector provided and instead returns the embedded Server.
func (ssd SingleServerDeployment) SelectServer(context.Context, description.ServerSelector) (Server, error) {
	return ssd.Server, nil
}

// Description implements the Deployment interface. It always returns a topology of kind
// description.Single with no server descriptions.
func (SingleServerDeployment) Description() description.Topology {
	return description.Topology{Kind: description.Single}
}

// SingleConnectionDeployment is an implementation of Deployment that always returns the same
// Connection. This implementation should only be used for handshakes and server checks as it
// does not pool connections or process errors.
type SingleConnectionDeployment struct{ C Connection }

var _ Deployment = SingleConnectionDeployment{}
var _ Server = SingleConnectionDeployment{}

// SelectServer implements the Deployment interface. This method does not use the
// description.ServerSelector provided and instead returns itself. The Connection method returns
// the embedded connection.
func (scd SingleConnectionDeployment) SelectServer(context.Context, description.ServerSelector) (Server, error) {
	return scd, nil
}

// Description implements the Deployment interface. It always returns a topology of kind
// description.Single with no server descriptions.
func (SingleConnectionDeployment) Description() description.Topology {
	return description.Topology{Kind: description.Single}
}

// Connection implements the Server interface. It always returns the embedded connection.
func (scd SingleConnectionDeployment) Connection(context.Context) (Connection, error) {
	return scd.C, nil
}

// RTTMonitor implements the Server interface. Single connection deployments do not monitor
// round-trip times, so all of the returned monitor's methods report zero values.
func (SingleConnectionDeployment) RTTMonitor() RTTMonitor {
	return zeroRTTMonitor{}
}

// zeroRTTMonitor is an RTTMonitor that reports zero values. It is used by deployments that do
// not run a background RTT monitor.
type zeroRTTMonitor struct{}

var _ RTTMonitor = zeroRTTMonitor{}

// EWMA implements the RTTMonitor interface.
func (zeroRTTMonitor) EWMA() time.Duration { return 0 }

// Min implements the RTTMonitor interface.
func (zeroRTTMonitor) Min() time.Duration { return 0 }

// P90 implements the RTTMonitor interface.
func (zeroRTTMonitor) P90() time.Duration { return 0 }

// Stats implements the RTTMonitor interface.
func (zeroRTTMonitor) Stats() string { return "" }

// Type specifies whether an operation is a read or a write.
type Type uint

// These are the available types of Type.
const (
	_ Type = iota
	Write
	Read
)

// RetryMode specifies the way that retries are handled for retryable operations.
type RetryMode uint

// These are the modes available for retrying.
const (
	// RetryNone disables retrying.
	RetryNone RetryMode = iota
	// RetryOnce will enable retrying the entire operation once if an error occurs.
	RetryOnce
)

// Enabled returns if this RetryMode enables retrying.
func (rm RetryMode) Enabled() bool {
	return rm == RetryOnce
}

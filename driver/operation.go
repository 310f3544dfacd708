// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MartenCatcher/mongo-go-driver/description"
	"github.com/MartenCatcher/mongo-go-driver/internal/logger"
	"github.com/MartenCatcher/mongo-go-driver/readpref"
)

// defaultLocalThreshold is the default local threshold that is used when selecting a server from
// the latency window.
const defaultLocalThreshold = 15 * time.Millisecond

// ErrDeadlineWouldBeExceeded is returned when an operation is not sent to the server because the
// minimum observed round-trip time is longer than the time remaining before the context deadline.
var ErrDeadlineWouldBeExceeded = errors.New("operation not sent to server, as the context deadline would be exceeded")

// globalRequestID is a monotonic counter that identifies operations for logging.
var globalRequestID int32

func nextRequestID() int32 { return atomic.AddInt32(&globalRequestID, 1) }

// Operation is used to execute an operation. It contains all of the common code required to
// select a server, send the encoded command as a wire message, and process the response.
type Operation struct {
	// CommandFn is used to create the encoded command that will be sent to the server as a wire
	// message. The encoding itself is owned by the caller's codec and the result is treated as
	// opaque bytes. This field is required.
	CommandFn func(dst []byte, desc description.SelectedServer) ([]byte, error)

	// Deployment is the MongoDB deployment to use. While most of the time this will be multiple
	// servers, connection to a single server or a direct connection is supported through this
	// field. This field is required.
	Deployment Deployment

	// ProcessResponseFn is called after a response has been read from a connection. It decodes
	// the raw reply through the caller's codec and returns the command's outcome. Server
	// rejections must be returned as Error or WriteCommandError so they participate in retry
	// classification. This field is optional.
	ProcessResponseFn func(response []byte, srvr Server) error

	// Selector is the server selector that's used during both initial server selection and
	// server selection for retries. This field is optional.
	Selector description.ServerSelector

	// ReadPreference is the read preference that will be used to select a server when Selector
	// is unset. This field is optional.
	ReadPreference *readpref.ReadPref

	// Type specifies the type of the operation. This is used in determining if the operation
	// can be retried.
	Type Type

	// RetryMode specifies how to retry. This field is optional.
	RetryMode *RetryMode

	// Name is the name of the operation. This is used when logging server selection data.
	Name string
}

// Validate validates this operation, ensuring the fields are set properly.
func (op Operation) Validate() error {
	if op.CommandFn == nil {
		return InvalidOperationError{MissingField: "CommandFn"}
	}
	if op.Deployment == nil {
		return InvalidOperationError{MissingField: "Deployment"}
	}
	return nil
}

// selectServer handles performing server selection for the operation. When Selector is unset a
// composite selector built from the read preference and the default latency window is used.
func (op Operation) selectServer(ctx context.Context) (Server, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	selector := op.Selector
	if selector == nil {
		rp := op.ReadPreference
		if rp == nil {
			rp = readpref.Primary()
		}
		selector = description.CompositeSelector([]description.ServerSelector{
			description.ReadPrefSelector(rp),
			description.LatencySelector(defaultLocalThreshold),
		})
	}

	ctx = logger.WithOperationName(ctx, op.Name)
	ctx = logger.WithOperationID(ctx, nextRequestID())

	return op.Deployment.SelectServer(ctx, selector)
}

// getServerAndConnection should be used to retrieve a Server and Connection to execute an
// operation.
func (op Operation) getServerAndConnection(ctx context.Context) (Server, Connection, error) {
	server, err := op.selectServer(ctx)
	if err != nil {
		return nil, nil, err
	}

	conn, err := server.Connection(ctx)
	if err != nil {
		return nil, nil, err
	}
	return server, conn, nil
}

// Execute runs this operation.
func (op Operation) Execute(ctx context.Context) error {
	err := op.Validate()
	if err != nil {
		return err
	}

	// The default value for retries is 0, which is evaluated as "no retries".
	var retries int
	if op.RetryMode != nil {
		switch op.Type {
		case Write, Read:
			if *op.RetryMode == RetryOnce {
				retries = 1
			}
		}
	}

	var srvr Server
	var conn Connection
	var res []byte
	var prevErr error
	retrySupported := false
	first := true

	// resetForRetry records the error that caused the retry, decrements the remaining retry
	// count, and releases the connection so that the next attempt selects a fresh server.
	resetForRetry := func(err error) {
		retries--
		prevErr = err

		if conn != nil {
			conn.Close()
		}
		srvr = nil
		conn = nil
	}

	for {
		// If the previous attempt was aborted by context cancellation, stop without selecting
		// another server.
		if errors.Is(prevErr, context.Canceled) || errors.Is(prevErr, context.DeadlineExceeded) {
			return prevErr
		}

		if srvr == nil || conn == nil {
			srvr, conn, err = op.getServerAndConnection(ctx)
			if err != nil {
				// If the returned error is retryable, re-select a new server and retry the
				// operation. The error from server selection or connection checkout is not
				// returned to the application, the previous error is returned instead.
				if rerr, ok := err.(RetryablePoolError); ok && rerr.Retryable() && retries != 0 {
					resetForRetry(err)
					continue
				}
				if prevErr != nil {
					return prevErr
				}
				return err
			}
			defer conn.Close()
		}

		// Determine whether the deployment supports retrying before the first attempt so that
		// the decision holds for the whole operation.
		if first {
			retrySupported = op.retryable(conn.Description())
			first = false
		}

		desc := description.SelectedServer{Server: conn.Description(), Kind: op.Deployment.Description().Kind}

		var wm []byte
		wm, err = op.CommandFn(wm, desc)
		if err != nil {
			return err
		}

		// Check for a context error before sending so that a cancelled attempt does not write
		// to a healthy connection. If there is no context error, check that there is enough
		// time for a round trip before the context deadline using the minimum observed RTT.
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if deadline, ok := ctx.Deadline(); ok && time.Now().Add(srvr.RTTMonitor().Min()).After(deadline) {
			err = fmt.Errorf("%v: %v", ErrDeadlineWouldBeExceeded, srvr.RTTMonitor().Stats())
		} else {
			res, err = op.roundTrip(ctx, conn, wm)
			if err == nil && op.ProcessResponseFn != nil {
				err = op.ProcessResponseFn(res, srvr)
			}

			// The server updates its state machine and connection pool from the outcome before
			// any retry decision is made.
			if ep, ok := srvr.(ErrorProcessor); ok {
				_ = ep.ProcessError(err, conn)
			}
		}

		switch tt := err.(type) {
		case WriteCommandError:
			retryableErr := tt.Retryable(conn.Description().WireVersion)
			if retrySupported && retryableErr && retries != 0 {
				resetForRetry(tt)
				continue
			}
			return tt
		case Error:
			var retryableErr bool
			if op.Type == Write {
				retryableErr = tt.RetryableWrite(conn.Description().WireVersion)
			} else {
				retryableErr = tt.RetryableRead()
			}
			if retrySupported && retryableErr && retries != 0 {
				resetForRetry(tt)
				continue
			}
			return tt
		case nil:
		default:
			return err
		}

		break
	}

	return nil
}

// retryable returns true if the operation can be retried against a server with the given
// description.
func (op Operation) retryable(desc description.Server) bool {
	switch op.Type {
	case Write:
		// Standalones and servers that predate wire version 6 do not support retryable writes.
		return desc.Kind != description.Standalone && desc.WireVersion != nil && desc.WireVersion.Max >= 6
	case Read:
		return true
	}
	return false
}

// roundTrip writes a wire message to the connection and then reads the response. The wm parameter
// is reused for the read.
func (op Operation) roundTrip(ctx context.Context, conn Connection, wm []byte) ([]byte, error) {
	err := conn.WriteWireMessage(ctx, wm)
	if err != nil {
		return nil, op.networkError(err)
	}

	res, err := conn.ReadWireMessage(ctx, wm[:0])
	if err != nil {
		return nil, op.networkError(err)
	}
	return res, nil
}

// networkError wraps the provided error in an Error with the NetworkError label attached so that
// it is classified as retryable.
func (op Operation) networkError(err error) error {
	if err == nil {
		return nil
	}
	return Error{Message: err.Error(), Labels: []string{NetworkError}, Wrapped: err}
}

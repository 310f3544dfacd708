// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"time"

	"github.com/MartenCatcher/mongo-go-driver/driver"
)

type connectionConfig struct {
	connectTimeout time.Duration
	idleTimeout    time.Duration
	transport      driver.Transport
	handshaker     driver.Handshaker
}

func newConnectionConfig(opts ...ConnectionOption) *connectionConfig {
	cfg := &connectionConfig{
		connectTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}

	return cfg
}

// ConnectionOption is used to configure a connection.
type ConnectionOption func(*connectionConfig)

// WithConnectTimeout configures the maximum amount of time a dial will wait for a connect to
// complete. The default is 30 seconds.
func WithConnectTimeout(fn func(time.Duration) time.Duration) ConnectionOption {
	return func(c *connectionConfig) {
		c.connectTimeout = fn(c.connectTimeout)
	}
}

// WithIdleTimeout configures the maximum idle time to allow for a connection.
func WithIdleTimeout(fn func(time.Duration) time.Duration) ConnectionOption {
	return func(c *connectionConfig) {
		c.idleTimeout = fn(c.idleTimeout)
	}
}

// WithTransport configures the Transport that will be used to dial the connection's stream.
func WithTransport(fn func(driver.Transport) driver.Transport) ConnectionOption {
	return func(c *connectionConfig) {
		c.transport = fn(c.transport)
	}
}

// WithHandshaker configures the Handshaker that wil be used to initialize newly dialed
// connections.
func WithHandshaker(fn func(driver.Handshaker) driver.Handshaker) ConnectionOption {
	return func(c *connectionConfig) {
		c.handshaker = fn(c.handshaker)
	}
}

// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

// Messages for topology and server monitoring lifecycle events.
const (
	TopologyOpening                  = "Starting topology monitoring"
	TopologyClosed                   = "Stopped topology monitoring"
	TopologyDescriptionChanged       = "Topology description changed"
	TopologyServerOpening            = "Starting server monitoring"
	TopologyServerClosed             = "Stopped server monitoring"
	TopologyServerHeartbeatStarted   = "Server heartbeat started"
	TopologyServerHeartbeatSucceeded = "Server heartbeat succeeded"
	TopologyServerHeartbeatFailed    = "Server heartbeat failed"
)

// Topology contains data that all topology log messages MUST contain.
type Topology struct {
	// ID is the unique identifier for the topology being monitored.
	ID uint64

	// Message is the literal message to be logged defining the underlying
	// event.
	Message string
}

// SerializeTopology serializes a Topology message into a slice of keys and
// values that can be passed to a logger.
func SerializeTopology(topo Topology, extraKeysAndValues ...interface{}) []interface{} {
	keysAndValues := KeyValues{
		KeyMessage, topo.Message,
		KeyTopologyID, topo.ID,
	}

	for i := 0; i < len(extraKeysAndValues)-1; i += 2 {
		keysAndValues.Add(extraKeysAndValues[i].(string), extraKeysAndValues[i+1])
	}

	return keysAndValues
}

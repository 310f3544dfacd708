// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "context"

// Messages for server selection lifecycle events.
const (
	ServerSelectionStarted   = "Server selection started"
	ServerSelectionSucceeded = "Server selection succeeded"
	ServerSelectionFailed    = "Server selection failed"
	ServerSelectionWaiting   = "Waiting for suitable server to become available"
)

// ServerSelection contains data that all server selection log messages MUST
// contain.
type ServerSelection struct {
	// Selector is the string representation of the selector being used to
	// select the server.
	Selector string

	// TopologyDescription is the string representation of the current
	// topology description.
	TopologyDescription string
}

// SerializeServerSelection serializes a ServerSelection message into a slice
// of keys and values that can be passed to a logger. The operation name and
// ID are sourced from the context when present.
func SerializeServerSelection(ctx context.Context, srvSelection ServerSelection, msg string,
	extraKeysAndValues ...interface{}) []interface{} {
	keysAndValues := KeyValues{
		KeyMessage, msg,
		KeySelector, srvSelection.Selector,
		KeyTopologyDescription, srvSelection.TopologyDescription,
	}

	if operationName, ok := OperationName(ctx); ok {
		keysAndValues.Add(KeyOperation, operationName)
	}

	if operationID, ok := OperationID(ctx); ok {
		keysAndValues.Add(KeyOperationID, operationID)
	}

	for i := 0; i < len(extraKeysAndValues)-1; i += 2 {
		keysAndValues.Add(extraKeysAndValues[i].(string), extraKeysAndValues[i+1])
	}

	return keysAndValues
}

// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "context"

type contextKey string

const (
	contextKeyOperationName contextKey = "operationName"
	contextKeyOperationID   contextKey = "operationID"
)

// WithOperationName adds the operation name to the context.
func WithOperationName(ctx context.Context, operationName string) context.Context {
	return context.WithValue(ctx, contextKeyOperationName, operationName)
}

// WithOperationID adds the operation ID to the context.
func WithOperationID(ctx context.Context, operationID int32) context.Context {
	return context.WithValue(ctx, contextKeyOperationID, operationID)
}

// OperationName returns the operation name from the context.
func OperationName(ctx context.Context) (string, bool) {
	operationName := ctx.Value(contextKeyOperationName)
	if operationName == nil {
		return "", false
	}

	operationNameStr, ok := operationName.(string)
	if !ok {
		return "", false
	}

	return operationNameStr, true
}

// OperationID returns the operation ID from the context.
func OperationID(ctx context.Context) (int32, bool) {
	operationID := ctx.Value(contextKeyOperationID)
	if operationID == nil {
		return 0, false
	}

	operationIDI32, ok := operationID.(int32)
	if !ok {
		return 0, false
	}

	return operationIDI32, true
}

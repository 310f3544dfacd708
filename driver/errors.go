// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/MartenCatcher/mongo-go-driver/description"
)

// Error labels attached by this package or reported by the server.
const (
	// NetworkError is an error label for network errors.
	NetworkError = "NetworkError"
	// RetryableWriteError is an error label for retryable write errors.
	RetryableWriteError = "RetryableWriteError"
)

// LegacyNotPrimaryErrMsg is the error message that older MongoDB servers return when a write
// operation is erroneously sent to a non-primary node.
const LegacyNotPrimaryErrMsg = "not master"

var (
	retryableCodes          = []int32{11600, 11602, 10107, 13435, 13436, 189, 91, 7, 6, 89, 9001}
	nodeIsRecoveringCodes   = []int32{11600, 11602, 13436, 189, 91}
	notPrimaryCodes         = []int32{10107, 13435, 10058}
	nodeIsShuttingDownCodes = []int32{11600, 91}
)

// WriteCommandError is an error for a write command.
type WriteCommandError struct {
	WriteConcernError *WriteConcernError
	WriteErrors       WriteErrors
	Labels            []string
}

func (wce WriteCommandError) Error() string {
	var buf bytes.Buffer
	fmt.Fprint(&buf, "write command error: [")
	fmt.Fprintf(&buf, "{%s}, ", wce.WriteErrors)
	fmt.Fprintf(&buf, "{%s}]", wce.WriteConcernError)
	return buf.String()
}

// HasErrorLabel returns true if the error contains the specified label.
func (wce WriteCommandError) HasErrorLabel(label string) bool {
	for _, l := range wce.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Retryable returns true if the error is retryable.
func (wce WriteCommandError) Retryable(wireVersion *description.VersionRange) bool {
	for _, label := range wce.Labels {
		if label == RetryableWriteError {
			return true
		}
	}
	// Servers of wire version 9 and newer attach the RetryableWriteError label themselves, so
	// the code of the write concern error is only consulted for older servers.
	if wireVersion != nil && wireVersion.Max >= 9 {
		return false
	}

	if wce.WriteConcernError == nil {
		return false
	}
	return wce.WriteConcernError.Retryable()
}

// Is returns true if err is a WriteCommandError whose write concern error and write errors carry
// the same codes as wce. This allows WriteCommandError to be used with errors.Is.
func (wce WriteCommandError) Is(err error) bool {
	other, ok := err.(WriteCommandError)
	if !ok {
		return false
	}

	if (wce.WriteConcernError == nil) != (other.WriteConcernError == nil) {
		return false
	}
	if wce.WriteConcernError != nil && wce.WriteConcernError.Code != other.WriteConcernError.Code {
		return false
	}

	if len(wce.WriteErrors) != len(other.WriteErrors) {
		return false
	}
	for i := range wce.WriteErrors {
		if wce.WriteErrors[i].Code != other.WriteErrors[i].Code {
			return false
		}
	}
	return true
}

// WriteConcernError is a write concern failure that occurred as a result of a write operation.
type WriteConcernError struct {
	Name    string
	Code    int64
	Message string
}

func (wce WriteConcernError) Error() string {
	if wce.Name != "" {
		return fmt.Sprintf("(%v) %v", wce.Name, wce.Message)
	}
	return wce.Message
}

// Is returns true if err is a WriteConcernError with the same code as wce.
func (wce WriteConcernError) Is(err error) bool {
	if other, ok := err.(WriteConcernError); ok {
		return wce.Code == other.Code
	}
	return false
}

// Retryable returns true if the error is retryable.
func (wce WriteConcernError) Retryable() bool {
	for _, code := range retryableCodes {
		if wce.Code == int64(code) {
			return true
		}
	}
	return false
}

// NotPrimary returns true if this error is a not primary error.
func (wce WriteConcernError) NotPrimary() bool {
	for _, code := range notPrimaryCodes {
		if wce.Code == int64(code) {
			return true
		}
	}
	return strings.Contains(wce.Message, LegacyNotPrimaryErrMsg)
}

// NodeIsRecovering returns true if this error is a node is recovering error.
func (wce WriteConcernError) NodeIsRecovering() bool {
	for _, code := range nodeIsRecoveringCodes {
		if wce.Code == int64(code) {
			return true
		}
	}
	return strings.Contains(wce.Message, "node is recovering")
}

// NodeIsShuttingDown returns true if this error is a node is shutting down error.
func (wce WriteConcernError) NodeIsShuttingDown() bool {
	for _, code := range nodeIsShuttingDownCodes {
		if wce.Code == int64(code) {
			return true
		}
	}
	return strings.Contains(wce.Message, "node is shutting down")
}

// WriteError is a non-write concern failure that occurred as a result of a write operation.
type WriteError struct {
	Index   int64
	Code    int64
	Message string
}

func (we WriteError) Error() string { return we.Message }

// Is returns true if err is a WriteError with the same code as we.
func (we WriteError) Is(err error) bool {
	if other, ok := err.(WriteError); ok {
		return we.Code == other.Code
	}
	return false
}

// WriteErrors is a group of non-write concern failures that occurred as a result of a write
// operation.
type WriteErrors []WriteError

func (we WriteErrors) Error() string {
	var buf bytes.Buffer
	fmt.Fprint(&buf, "write errors: [")
	for idx, err := range we {
		if idx != 0 {
			fmt.Fprint(&buf, ", ")
		}
		fmt.Fprintf(&buf, "{%s}", err)
	}
	fmt.Fprint(&buf, "]")
	return buf.String()
}

// Error is a command execution error from the database.
type Error struct {
	Code    int32
	Message string
	Labels  []string
	Name    string
	Wrapped error
}

func (e Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("(%v) %v", e.Name, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error { return e.Wrapped }

// Is returns true if err is an Error with the same code as e. This allows Error to be used with
// errors.Is.
func (e Error) Is(err error) bool {
	if other, ok := err.(Error); ok {
		return e.Code == other.Code
	}
	return false
}

// HasErrorLabel returns true if the error contains the specified label.
func (e Error) HasErrorLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// NetworkError returns true if the error was the result of a network failure.
func (e Error) NetworkError() bool {
	return e.HasErrorLabel(NetworkError)
}

// RetryableRead returns true if the error is retryable for a read operation.
func (e Error) RetryableRead() bool {
	if e.HasErrorLabel(NetworkError) {
		return true
	}
	for _, code := range retryableCodes {
		if e.Code == code {
			return true
		}
	}
	return false
}

// RetryableWrite returns true if the error is retryable for a write operation.
func (e Error) RetryableWrite(wireVersion *description.VersionRange) bool {
	if e.HasErrorLabel(NetworkError) || e.HasErrorLabel(RetryableWriteError) {
		return true
	}
	// Servers of wire version 9 and newer attach the RetryableWriteError label themselves, so
	// the error code is only consulted for older servers.
	if wireVersion != nil && wireVersion.Max >= 9 {
		return false
	}
	for _, code := range retryableCodes {
		if e.Code == code {
			return true
		}
	}
	return false
}

// NotPrimary returns true if this error is a not primary error.
func (e Error) NotPrimary() bool {
	for _, code := range notPrimaryCodes {
		if e.Code == code {
			return true
		}
	}
	return strings.Contains(e.Message, LegacyNotPrimaryErrMsg)
}

// NodeIsRecovering returns true if this error is a node is recovering error.
func (e Error) NodeIsRecovering() bool {
	for _, code := range nodeIsRecoveringCodes {
		if e.Code == code {
			return true
		}
	}
	return strings.Contains(e.Message, "node is recovering")
}

// NodeIsShuttingDown returns true if this error is a node is shutting down error.
func (e Error) NodeIsShuttingDown() bool {
	for _, code := range nodeIsShuttingDownCodes {
		if e.Code == code {
			return true
		}
	}
	return strings.Contains(e.Message, "node is shutting down")
}

// InvalidOperationError is returned from Validate and indicates that a required field is missing
// from an instance of Operation.
type InvalidOperationError struct{ MissingField string }

func (err InvalidOperationError) Error() string {
	return "the " + err.MissingField + " field must be set on Operation"
}

// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"github.com/MartenCatcher/mongo-go-driver/internal/logger"
)

// LogLevel is an enumeration representing the supported log severity levels.
type LogLevel int

const (
	// LogLevelInfo enables logging of informational messages. These logs are
	// high-level information about normal driver behavior.
	LogLevelInfo LogLevel = LogLevel(logger.LevelInfo)

	// LogLevelDebug enables logging of debug messages. These logs can be
	// voluminous and are intended for detailed information that may be
	// helpful when debugging an application.
	LogLevelDebug LogLevel = LogLevel(logger.LevelDebug)
)

// LogComponent is an enumeration representing the "components" which can be
// logged against. A LogLevel can be configured on a per-component basis.
type LogComponent int

const (
	// LogComponentAll enables logging for all components.
	LogComponentAll LogComponent = LogComponent(logger.ComponentAll)

	// LogComponentCommand enables operation execution logging.
	LogComponentCommand LogComponent = LogComponent(logger.ComponentCommand)

	// LogComponentTopology enables topology logging.
	LogComponentTopology LogComponent = LogComponent(logger.ComponentTopology)

	// LogComponentServerSelection enables server selection logging.
	LogComponentServerSelection LogComponent = LogComponent(logger.ComponentServerSelection)

	// LogComponentConnection enables connection pool logging.
	LogComponentConnection LogComponent = LogComponent(logger.ComponentConnection)
)

// LogSink is an interface that can be implemented to provide a custom sink
// for log messages. It is modeled on the "logr" interface so that logr-backed
// sinks can be provided directly.
type LogSink interface {
	// Info logs a non-error message with the given key/value pairs.
	Info(level int, msg string, keysAndValues ...interface{})

	// Error logs an error, with the given message and key/value pairs.
	Error(err error, msg string, keysAndValues ...interface{})
}

// LoggerOptions configure logging for a topology.
type LoggerOptions struct {
	// ComponentLevels is a map of component to log level. Components that are
	// not present fall back to the MONGODB_LOG_* environment variables.
	ComponentLevels map[LogComponent]LogLevel

	// Sink is the LogSink that will be used to log messages. If nil, messages
	// are written as JSON lines to the sink named by MONGODB_LOG_PATH, or to
	// stderr when the variable is unset.
	Sink LogSink

	// MaxDocumentLength is the maximum length of any serialized description
	// embedded in a log message. If zero, MONGODB_LOG_MAX_DOCUMENT_LENGTH or
	// a default of 1000 applies.
	MaxDocumentLength uint
}

func newLogger(opts *LoggerOptions) (*logger.Logger, error) {
	if opts == nil {
		opts = &LoggerOptions{}
	}

	// If no component is configured through the options or the environment,
	// logging is disabled entirely.
	if len(opts.ComponentLevels) == 0 && !logger.EnvHasComponentVariables() {
		return nil, nil
	}

	componentLevels := make(map[logger.Component]logger.Level)
	for component, level := range opts.ComponentLevels {
		componentLevels[logger.Component(component)] = logger.Level(level)
	}

	var sink logger.LogSink
	if opts.Sink != nil {
		sink = opts.Sink
	}

	return logger.New(sink, opts.MaxDocumentLength, componentLevels)
}

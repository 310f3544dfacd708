// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// IOSink writes a JSON-encoded message to the io.Writer. It is the default
// sink for the logger, with the default IO being os.Stderr.
type IOSink struct {
	enc *json.Encoder

	// encMu protects the encoder from concurrent use.
	encMu sync.Mutex
}

// Compile-time check to ensure IOSink implements the LogSink interface.
var _ LogSink = &IOSink{}

// NewIOSink will create an IOSink object that writes JSON messages to the
// provided io.Writer.
func NewIOSink(out io.Writer) *IOSink {
	return &IOSink{
		enc: json.NewEncoder(out),
	}
}

func (sink *IOSink) doLog(kvs ...interface{}) {
	kvMap := make(map[string]interface{}, len(kvs)/2+1)
	kvMap[KeyTimestamp] = time.Now().UnixNano()

	for i := 0; i < len(kvs)-1; i += 2 {
		kvMap[kvs[i].(string)] = kvs[i+1]
	}

	sink.encMu.Lock()
	defer sink.encMu.Unlock()

	_ = sink.enc.Encode(kvMap)
}

// Info will write a JSON-encoded message to the io.Writer.
func (sink *IOSink) Info(_ int, msg string, keysAndValues ...interface{}) {
	kvs := make([]interface{}, 0, len(keysAndValues)+2)
	kvs = append(kvs, KeyMessage, msg)
	kvs = append(kvs, keysAndValues...)

	sink.doLog(kvs...)
}

// Error will write a JSON-encoded error message to the io.Writer.
func (sink *IOSink) Error(err error, msg string, keysAndValues ...interface{}) {
	kvs := make([]interface{}, 0, len(keysAndValues)+4)
	kvs = append(kvs, KeyMessage, msg, KeyError, err.Error())
	kvs = append(kvs, keysAndValues...)

	sink.doLog(kvs...)
}

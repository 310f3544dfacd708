// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import "time"

// HelloResult holds the recognized fields of a hello command response. The
// wire codec decodes responses into this type; everything it does not
// recognize is dropped before the result reaches this package.
//
// Election ids and set versions are totally ordered integers. The codec is
// responsible for mapping the server's representation onto that order. A zero
// value means the field was absent from the response.
type HelloResult struct {
	Arbiters            []string
	ArbiterOnly         bool
	ElectionID          uint64
	Hidden              bool
	Hosts               []string
	IsReplicaSet        bool
	IsWritablePrimary   bool
	LastWriteTime       time.Time
	MaxBSONObjectSize   uint32
	MaxMessageSizeBytes uint32
	MaxWireVersion      int32
	MaxWriteBatchSize   uint16
	Me                  string
	MinWireVersion      int32
	Msg                 string
	OK                  int32
	Passives            []string
	ReadOnly            bool
	Secondary           bool
	SetName             string
	SetVersion          uint64
	Tags                map[string]string
}

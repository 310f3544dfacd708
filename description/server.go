// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import (
	"fmt"
	"time"

	"github.com/MartenCatcher/mongo-go-driver/address"
	"github.com/MartenCatcher/mongo-go-driver/tag"
)

// UnsetRTT is the unset value for a round trip time.
const UnsetRTT = -1 * time.Millisecond

// SelectedServer represents a selected server that is a member of a topology.
type SelectedServer struct {
	Server
	Kind TopologyKind
}

// Server represents a description of a server. This is created from a hello
// command response.
type Server struct {
	Addr address.Address

	AverageRTT        time.Duration
	AverageRTTSet     bool
	CanonicalAddr     address.Address
	ElectionID        uint64
	HeartbeatInterval time.Duration
	LastError         error
	LastUpdateTime    time.Time
	LastWriteTime     time.Time
	MaxBatchCount     uint16
	MaxDocumentSize   uint32
	MaxMessageSize    uint32
	Members           []address.Address
	ReadOnly          bool
	SetName           string
	SetVersion        uint64
	Tags              tag.Set
	Kind              ServerKind
	WireVersion       *VersionRange
}

// NewServer creates a new server description from the given hello command
// response.
func NewServer(addr address.Address, hello HelloResult) Server {
	i := Server{
		Addr: addr,

		CanonicalAddr:   address.Address(hello.Me).Canonicalize(),
		ElectionID:      hello.ElectionID,
		LastUpdateTime:  time.Now().UTC(),
		LastWriteTime:   hello.LastWriteTime,
		MaxBatchCount:   hello.MaxWriteBatchSize,
		MaxDocumentSize: hello.MaxBSONObjectSize,
		MaxMessageSize:  hello.MaxMessageSizeBytes,
		ReadOnly:        hello.ReadOnly,
		SetName:         hello.SetName,
		SetVersion:      hello.SetVersion,
		Tags:            tag.NewTagSetFromMap(hello.Tags),
	}

	if i.CanonicalAddr == "" {
		i.CanonicalAddr = addr
	}

	if hello.OK != 1 {
		i.LastError = fmt.Errorf("not ok")
		return i
	}

	for _, host := range hello.Hosts {
		i.Members = append(i.Members, address.Address(host).Canonicalize())
	}

	for _, passive := range hello.Passives {
		i.Members = append(i.Members, address.Address(passive).Canonicalize())
	}

	for _, arbiter := range hello.Arbiters {
		i.Members = append(i.Members, address.Address(arbiter).Canonicalize())
	}

	i.Kind = Standalone

	if hello.IsReplicaSet {
		i.Kind = RSGhost
	} else if hello.SetName != "" {
		if hello.IsWritablePrimary {
			i.Kind = RSPrimary
		} else if hello.Hidden {
			i.Kind = RSMember
		} else if hello.Secondary {
			i.Kind = RSSecondary
		} else if hello.ArbiterOnly {
			i.Kind = RSArbiter
		} else {
			i.Kind = RSMember
		}
	} else if hello.Msg == "isdbgrid" {
		i.Kind = Mongos
	}

	i.WireVersion = &VersionRange{
		Min: hello.MinWireVersion,
		Max: hello.MaxWireVersion,
	}

	return i
}

// NewDefaultServer creates a new unknown server description with the given address.
func NewDefaultServer(addr address.Address) Server {
	return NewServerFromError(addr, nil)
}

// NewServerFromError creates a server description from an error. The returned
// description has an Unknown kind and carries the error as LastError.
func NewServerFromError(addr address.Address, err error) Server {
	return Server{
		Addr:           addr,
		LastError:      err,
		LastUpdateTime: time.Now().UTC(),
	}
}

// SetAverageRTT sets the average round trip time for this server description.
func (s Server) SetAverageRTT(rtt time.Duration) Server {
	s.AverageRTT = rtt
	if rtt == UnsetRTT {
		s.AverageRTTSet = false
	} else {
		s.AverageRTTSet = true
	}

	return s
}

// Equal compares two server descriptions and returns true if they are equal.
// The LastUpdateTime, LastWriteTime, HeartbeatInterval, and average round
// trip time are not considered.
func (s Server) Equal(other Server) bool {
	if s.Addr != other.Addr {
		return false
	}

	if s.CanonicalAddr != other.CanonicalAddr {
		return false
	}

	if s.Kind != other.Kind {
		return false
	}

	if s.SetName != other.SetName || s.SetVersion != other.SetVersion || s.ElectionID != other.ElectionID {
		return false
	}

	if s.ReadOnly != other.ReadOnly {
		return false
	}

	if len(s.Members) != len(other.Members) {
		return false
	}
	for i := range s.Members {
		if s.Members[i] != other.Members[i] {
			return false
		}
	}

	if !s.Tags.ContainsAll(other.Tags) || !other.Tags.ContainsAll(s.Tags) {
		return false
	}

	if s.WireVersion == nil != (other.WireVersion == nil) {
		return false
	}
	if s.WireVersion != nil && *s.WireVersion != *other.WireVersion {
		return false
	}

	if s.LastError != nil && other.LastError != nil {
		return s.LastError.Error() == other.LastError.Error()
	}

	return s.LastError == other.LastError
}

// String implements the fmt.Stringer interface.
func (s Server) String() string {
	str := fmt.Sprintf("Addr: %s, Type: %s", s.Addr, s.Kind)
	if len(s.Tags) != 0 {
		str += fmt.Sprintf(", Tag sets: %v", s.Tags)
	}

	if s.AverageRTTSet {
		str += fmt.Sprintf(", Average RTT: %d", s.AverageRTT)
	}

	if s.LastError != nil {
		str += fmt.Sprintf(", Last error: %s", s.LastError)
	}

	return str
}

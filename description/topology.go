// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package description contains types and functions for describing the state
// of MongoDB clusters.
package description

// Topology represents a description of a MongoDB cluster.
type Topology struct {
	Servers []Server
	Kind    TopologyKind

	// CompatibilityErr is set when a member of the cluster reports a wire version range that is
	// incompatible with this driver. Server selection against a topology with a compatibility
	// error fails immediately with this error.
	CompatibilityErr error
}

// Equal compares two topology descriptions and returns true if they are equal.
func (t Topology) Equal(other Topology) bool {
	if t.Kind != other.Kind {
		return false
	}

	topoServers := make(map[string]Server)
	for _, s := range t.Servers {
		topoServers[s.Addr.String()] = s
	}

	otherServers := make(map[string]Server)
	for _, s := range other.Servers {
		otherServers[s.Addr.String()] = s
	}

	if len(topoServers) != len(otherServers) {
		return false
	}

	for _, server := range topoServers {
		otherServer := otherServers[server.Addr.String()]

		if !server.Equal(otherServer) {
			return false
		}
	}

	return true
}

// Server returns the server for the given address. The second return value
// indicates whether a server for the address was found.
func (t Topology) Server(addr string) (Server, bool) {
	for _, server := range t.Servers {
		if server.Addr.String() == addr {
			return server, true
		}
	}
	return Server{}, false
}

// String implements the fmt.Stringer interface.
func (t Topology) String() string {
	var serversStr string
	for _, s := range t.Servers {
		serversStr += "{ " + s.String() + " }, "
	}
	return "Type: " + t.Kind.String() + ", Servers: [" + serversStr + "]"
}

// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description_test

import (
	"testing"
	"time"

	"github.com/MartenCatcher/mongo-go-driver/address"
	. "github.com/MartenCatcher/mongo-go-driver/description"
	"github.com/stretchr/testify/require"
)

func TestLatencySelector_NoRTTSet(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	c := Topology{
		Servers: []Server{
			{Addr: address.Address("localhost:27017")},
			{Addr: address.Address("localhost:27018")},
			{Addr: address.Address("localhost:27019")},
		},
	}

	result, err := LatencySelector(time.Duration(20)*time.Second).SelectServer(c, c.Servers)

	require.NoError(err)
	require.Len(result, 3)
}

func TestLatencySelector_MultipleServers_PartialNoRTTSet(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	c := Topology{
		Servers: []Server{
			{
				Addr:          address.Address("localhost:27017"),
				AverageRTT:    time.Duration(5) * time.Second,
				AverageRTTSet: true,
			},
			{
				Addr: address.Address("localhost:27018"),
			},
			{
				Addr:          address.Address("localhost:27019"),
				AverageRTT:    time.Duration(10) * time.Second,
				AverageRTTSet: true,
			},
		},
	}

	result, err := LatencySelector(time.Duration(20)*time.Second).SelectServer(c, c.Servers)

	require.NoError(err)
	require.Len(result, 2)
	require.Equal([]Server{c.Servers[0], c.Servers[2]}, result)
}

func TestLatencySelector_MultipleServers(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	c := Topology{
		Servers: []Server{
			{
				Addr:          address.Address("localhost:27017"),
				AverageRTT:    time.Duration(5) * time.Second,
				AverageRTTSet: true,
			},
			{
				Addr:          address.Address("localhost:27018"),
				AverageRTT:    time.Duration(26) * time.Second,
				AverageRTTSet: true,
			},
			{
				Addr:          address.Address("localhost:27019"),
				AverageRTT:    time.Duration(10) * time.Second,
				AverageRTTSet: true,
			},
		},
	}

	result, err := LatencySelector(time.Duration(20)*time.Second).SelectServer(c, c.Servers)

	require.NoError(err)
	require.Len(result, 2)
	require.Equal([]Server{c.Servers[0], c.Servers[2]}, result)
}

func TestLatencySelector_WindowExcludesSlowSecondary(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	c := Topology{
		Kind: ReplicaSetWithPrimary,
		Servers: []Server{
			{
				Addr:          address.Address("localhost:27018"),
				Kind:          RSSecondary,
				AverageRTT:    time.Duration(10) * time.Millisecond,
				AverageRTTSet: true,
			},
			{
				Addr:          address.Address("localhost:27019"),
				Kind:          RSSecondary,
				AverageRTT:    time.Duration(25) * time.Millisecond,
				AverageRTTSet: true,
			},
		},
	}

	result, err := LatencySelector(time.Duration(15)*time.Millisecond).SelectServer(c, c.Servers)

	require.NoError(err)
	require.Len(result, 1)
	require.Equal(address.Address("localhost:27018"), result[0].Addr)
}

func TestLatencySelector_No_servers(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	var c Topology

	result, err := LatencySelector(time.Duration(20)*time.Second).SelectServer(c, c.Servers)

	require.NoError(err)
	require.Len(result, 0)
}

func TestLatencySelector_1_server(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	c := Topology{
		Servers: []Server{
			{
				Addr:          address.Address("localhost:27018"),
				AverageRTT:    time.Duration(26) * time.Second,
				AverageRTTSet: true,
			},
		},
	}

	result, err := LatencySelector(time.Duration(20)*time.Second).SelectServer(c, c.Servers)

	require.NoError(err)
	require.Len(result, 1)
	require.Equal([]Server{c.Servers[0]}, result)
}

func TestWriteSelector_ReplicaSetWithPrimary(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	result, err := WriteSelector().SelectServer(readPrefTestTopology, readPrefTestTopology.Servers)

	require.NoError(err)
	require.Len(result, 1)
	require.Equal([]Server{readPrefTestPrimary}, result)
}

func TestWriteSelector_ReplicaSetNoPrimary(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	c := Topology{
		Kind:    ReplicaSetNoPrimary,
		Servers: []Server{readPrefTestSecondary1, readPrefTestSecondary2},
	}

	result, err := WriteSelector().SelectServer(c, c.Servers)

	require.NoError(err)
	require.Len(result, 0)
}

func TestWriteSelector_Single(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	c := Topology{
		Kind: Single,
		Servers: []Server{
			{Addr: address.Address("localhost:27017"), Kind: Standalone},
		},
	}

	result, err := WriteSelector().SelectServer(c, c.Servers)

	require.NoError(err)
	require.Len(result, 1)
}

func TestCompositeSelector(t *testing.T) {
	t.Parallel()

	require := require.New(t)

	first := ServerSelectorFunc(func(t Topology, candidates []Server) ([]Server, error) {
		return candidates[:2], nil
	})
	second := ServerSelectorFunc(func(t Topology, candidates []Server) ([]Server, error) {
		return candidates[1:], nil
	})

	result, err := CompositeSelector([]ServerSelector{first, second}).SelectServer(readPrefTestTopology, readPrefTestTopology.Servers)

	require.NoError(err)
	require.Len(result, 1)
	require.Equal([]Server{readPrefTestSecondary1}, result)
}

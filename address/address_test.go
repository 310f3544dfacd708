package address_test

import (
	"testing"

	"github.com/MartenCatcher/mongo-go-driver/address"
	"github.com/stretchr/testify/require"
)

func TestAddress_Network(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tcp", address.Address("localhost:27017").Network())
	require.Equal(t, "tcp", address.Address("example.com").Network())
	require.Equal(t, "unix", address.Address("/var/run/mongodb.sock").Network())
}

func TestAddress_String(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		address  address.Address
		expected string
	}{
		{"empty", address.Address(""), ""},
		{"with port", address.Address("localhost:27017"), "localhost:27017"},
		{"missing port", address.Address("localhost"), "localhost:27017"},
		{"non-default port kept", address.Address("localhost:27018"), "localhost:27018"},
		{"lowercased", address.Address("EXAMPLE.com:27017"), "example.com:27017"},
		{"ip missing port", address.Address("1.2.3.4"), "1.2.3.4:27017"},
		{"unix socket unchanged", address.Address("/var/run/mongodb.sock"), "/var/run/mongodb.sock"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, tc.address.String())
		})
	}
}

func TestAddress_Canonicalize(t *testing.T) {
	t.Parallel()

	require.Equal(t, address.Address("localhost:27017"), address.Address("LOCALHOST").Canonicalize())
}

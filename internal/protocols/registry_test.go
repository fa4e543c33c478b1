package protocols

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesGovee(t *testing.T) {
	reg := NewRegistry()
	wrapper, ok := reg.Resolve("govee")
	require.True(t, ok)
	commands, err := wrapper.Wrap(map[string]any{"turn": "off"})
	require.NoError(t, err)
	require.Len(t, commands, 1)
}

func TestRegistryResolveUnknownProtocol(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Resolve("zigbee")
	require.False(t, ok)

	_, err := reg.HandlerFor("zigbee")
	require.Error(t, err)
}

func TestRegistryHandlerForReturnsTransportDetails(t *testing.T) {
	reg := NewRegistry()
	h, err := reg.HandlerFor("govee")
	require.NoError(t, err)
	require.Equal(t, 4003, h.DefaultPort())
	require.Equal(t, "udp", h.DefaultTransport())
}

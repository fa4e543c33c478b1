package netif

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateBroadcastComputesHostBitsSet(t *testing.T) {
	ip := net.ParseIP("192.168.1.42")
	mask := net.CIDRMask(24, 32)

	got := calculateBroadcast(ip, mask)
	require.Equal(t, "192.168.1.255", got.String())
}

func TestCalculateBroadcastRejectsNilMask(t *testing.T) {
	require.Nil(t, calculateBroadcast(net.ParseIP("10.0.0.1"), nil))
}

func TestInterfaceTypeClassifiesCommonNames(t *testing.T) {
	cases := map[string]string{
		"eth0":  "ethernet",
		"enp3s0": "ethernet",
		"wlan0": "wifi",
		"wl0":   "wifi",
		"tun0":  "other",
	}
	for name, want := range cases {
		require.Equal(t, want, interfaceType(name), name)
	}
}

func TestListReturnsOnlyUpNonLoopbackInterfaces(t *testing.T) {
	out, err := List()
	require.NoError(t, err)
	for _, iface := range out {
		require.NotEmpty(t, iface.Address)
		require.NotEmpty(t, iface.Broadcast)
	}
}

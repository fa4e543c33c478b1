// Package netif enumerates usable IPv4 network interfaces so an operator
// can see what's available without shelling out to ifconfig. The config
// has no interface-selection option; the listing is informational.
//
// Adapted from the teacher's internal/services/network interface lister,
// trimmed to the naming-pattern interface-type heuristic (the macOS
// networksetup shell-out path is dropped: this bridge targets headless
// Linux hosts, and classifying an interface is cosmetic, not functional).
package netif

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// Interface describes one IPv4-capable, up, non-loopback network interface.
type Interface struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Broadcast string `json:"broadcast"`
	Type      string `json:"type"` // "ethernet", "wifi", or "other"
}

// List returns every up, non-loopback interface with an IPv4 address,
// sorted ethernet-first then wifi then other, each alphabetically by name.
func List() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netif: list interfaces: %w", err)
	}

	var out []Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			broadcast := calculateBroadcast(ip4, ipNet.Mask)
			if broadcast == nil || broadcast.String() == ip4.String() {
				continue
			}
			out = append(out, Interface{
				Name:      iface.Name,
				Address:   ip4.String(),
				Broadcast: broadcast.String(),
				Type:      interfaceType(iface.Name),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		pi, pj := typePriority(out[i].Type), typePriority(out[j].Type)
		if pi != pj {
			return pi < pj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func typePriority(t string) int {
	switch t {
	case "ethernet":
		return 0
	case "wifi":
		return 1
	default:
		return 2
	}
}

func interfaceType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"), strings.HasPrefix(lower, "eno"):
		return "ethernet"
	case strings.HasPrefix(lower, "wlan"), strings.HasPrefix(lower, "wl"), strings.Contains(lower, "wifi"), strings.Contains(lower, "wireless"):
		return "wifi"
	default:
		return "other"
	}
}

func calculateBroadcast(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}
	if len(mask) == 16 {
		mask = mask[12:16]
	}
	if len(mask) != 4 {
		return nil
	}
	broadcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		broadcast[i] = ip4[i] | ^mask[i]
	}
	return broadcast
}

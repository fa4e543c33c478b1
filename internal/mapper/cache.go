package mapper

import (
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/capabilities"
	"github.com/mccartyp/govee-artnet-lan-bridge/internal/store"
)

// cacheEntry is a mapping reduced to exactly what the per-frame translation
// step needs, with the device's normalized capabilities already attached.
type cacheEntry struct {
	MappingID    uint
	DeviceID     string
	Channel      int
	Length       int
	MappingType  string
	Field        string
	Fields       []string
	Capabilities capabilities.NormalizedCapabilities
}

// universeCache groups valid mappings by universe, preserving mapping_id
// insertion order within each universe (spec §4.B).
type universeCache map[uint16][]cacheEntry

// buildCache filters and groups mapping snapshots, skipping the invalid
// shapes spec §4.B enumerates: bad channel/length, discrete without a
// field, range length shorter than its field count, or an unsupported
// field given the device's current capabilities.
func buildCache(snapshots []store.MappingSnapshot) universeCache {
	cache := universeCache{}
	for _, snap := range snapshots {
		if !validSnapshot(snap) {
			continue
		}
		entry := cacheEntry{
			MappingID:    snap.MappingID,
			DeviceID:     snap.DeviceID,
			Channel:      snap.Channel,
			Length:       snap.Length,
			MappingType:  snap.MappingType,
			Field:        snap.Field,
			Fields:       snap.Fields,
			Capabilities: snap.Capabilities,
		}
		cache[snap.Universe] = append(cache[snap.Universe], entry)
	}
	return cache
}

func validSnapshot(snap store.MappingSnapshot) bool {
	if snap.Channel <= 0 || snap.Length <= 0 || snap.Channel+snap.Length-1 > 512 {
		return false
	}
	switch snap.MappingType {
	case "discrete":
		if snap.Length != 1 || snap.Field == "" {
			return false
		}
		return capabilities.ValidateMappingField(snap.Field, snap.Capabilities) == nil
	case "range":
		if len(snap.Fields) == 0 || snap.Length < len(snap.Fields) {
			return false
		}
		for _, field := range snap.Fields {
			if capabilities.ValidateMappingField(field, snap.Capabilities) != nil {
				return false
			}
		}
		return true
	default:
		return false
	}
}

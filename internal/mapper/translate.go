package mapper

import (
	"fmt"
	"math"
)

// correct applies the per-device gamma/dimmer correction from spec §4.B:
// corrected = clamp(round(255 * (raw/255)^gamma * dimmer)).
func correct(raw byte, gamma, dimmer float64) byte {
	ratio := float64(raw) / 255.0
	corrected := 255.0 * math.Pow(ratio, gamma) * dimmer
	switch {
	case corrected <= 0:
		return 0
	case corrected >= 255:
		return 255
	default:
		return byte(math.Round(corrected))
	}
}

// translate turns the raw DMX slice belonging to one mapping into a payload
// fragment, or (nil, nil) when the mapping has nothing worth sending this
// frame (e.g. a ct field carrying 0, spec §4.B step 4).
func translate(entry cacheEntry, slice []byte) (map[string]any, error) {
	switch entry.MappingType {
	case "range":
		return translateRange(entry, slice)
	case "discrete":
		return translateDiscrete(entry, slice[0])
	default:
		return nil, fmt.Errorf("mapper: unknown mapping_type %q", entry.MappingType)
	}
}

func translateRange(entry cacheEntry, slice []byte) (map[string]any, error) {
	caps := entry.Capabilities
	color := map[string]any{}
	var brightness byte
	hasColor, hasDimmer := false, false

	for i, field := range entry.Fields {
		raw := slice[i]
		switch field {
		case "r", "g", "b", "w":
			color[field] = int(correct(raw, caps.Gamma, caps.Dimmer))
			hasColor = true
		case "dimmer":
			brightness = correct(raw, caps.Gamma, caps.Dimmer)
			hasDimmer = true
		default:
			return nil, fmt.Errorf("mapper: unsupported range field %q", field)
		}
	}

	switch {
	case hasColor && hasDimmer:
		return map[string]any{"color": color, "brightness": int(brightness)}, nil
	case hasColor:
		return map[string]any{"color": color}, nil
	case hasDimmer:
		if brightness == 0 {
			return map[string]any{"turn": "off"}, nil
		}
		return map[string]any{"turn": "on", "brightness": int(brightness)}, nil
	default:
		return nil, nil
	}
}

func translateDiscrete(entry cacheEntry, raw byte) (map[string]any, error) {
	caps := entry.Capabilities
	switch entry.Field {
	case "power":
		if raw >= 128 {
			return map[string]any{"turn": "on"}, nil
		}
		return map[string]any{"turn": "off"}, nil

	case "dimmer":
		corrected := correct(raw, caps.Gamma, caps.Dimmer)
		if corrected == 0 {
			return map[string]any{"turn": "off"}, nil
		}
		return map[string]any{"turn": "on", "brightness": int(corrected)}, nil

	case "ct":
		if raw == 0 {
			return nil, nil
		}
		low, high := 2000, 9000
		if caps.ColorTempRange != nil {
			low, high = caps.ColorTempRange.Low, caps.ColorTempRange.High
		}
		ratio := float64(raw) / 255.0
		kelvin := int(math.Round(float64(low) + ratio*float64(high-low)))
		return map[string]any{"color_temp": kelvin}, nil

	case "r", "g", "b", "w":
		corrected := correct(raw, caps.Gamma, caps.Dimmer)
		return map[string]any{"color": map[string]any{entry.Field: int(corrected)}}, nil

	default:
		return nil, fmt.Errorf("mapper: unsupported discrete field %q", entry.Field)
	}
}

// mergeFragment folds src into dst: "color" sub-maps are shallow-merged key
// by key, every other key overwrites (spec §4.B step 5).
func mergeFragment(dst, src map[string]any) {
	for k, v := range src {
		if k != "color" {
			dst[k] = v
			continue
		}
		srcColor, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		dstColor, ok := dst[k].(map[string]any)
		if !ok {
			merged := map[string]any{}
			for ck, cv := range srcColor {
				merged[ck] = cv
			}
			dst[k] = merged
			continue
		}
		for ck, cv := range srcColor {
			dstColor[ck] = cv
		}
	}
}

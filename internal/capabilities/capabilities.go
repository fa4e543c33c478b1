// Package capabilities normalizes heterogeneous device/catalog capability
// JSON into a canonical struct, and validates mapping fields and command
// payloads against it.
package capabilities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NormalizedCapabilities is the canonical capability record of spec §3.
// Never let the raw map leak past the Store boundary except via Raw, which
// exists only to round-trip vendor extras the schema doesn't model.
type NormalizedCapabilities struct {
	Model              string
	Firmware           string
	ColorModes         []string // sorted; synonyms fold to color, ct, effect, other names are kept as given
	SupportsBrightness bool
	SupportsWhite      bool
	ColorTempRange     *ColorTempRange
	Effects            []string // sorted
	Mode               string   // rgb | rgbw | brightness | custom | discrete
	ChannelOrder       []string // ordered subset of {r, g, b, w, dimmer}
	Gamma              float64  // >= 0.1, default 1.0
	Dimmer             float64  // [0, 1], default 1.0
	Raw                map[string]any
	Fingerprint        string
}

// ColorTempRange is an inclusive Kelvin range, low <= high.
type ColorTempRange struct {
	Low  int
	High int
}

// CacheKey identifies a model/firmware pair for memoization.
func (c NormalizedCapabilities) CacheKey() [2]string {
	return [2]string{c.Model, c.Firmware}
}

// SupportsColor reports whether the "color" mode is present.
func (c NormalizedCapabilities) SupportsColor() bool {
	return contains(c.ColorModes, "color")
}

// SupportsColorTemperature reports whether ct mode or a range is present.
func (c NormalizedCapabilities) SupportsColorTemperature() bool {
	return contains(c.ColorModes, "ct") || c.ColorTempRange != nil
}

// SupportsEffects reports whether any effect names were normalized.
func (c NormalizedCapabilities) SupportsEffects() bool {
	return len(c.Effects) > 0
}

// SupportedModes returns ColorModes plus "brightness" when supported, sorted.
func (c NormalizedCapabilities) SupportedModes() []string {
	modes := append([]string(nil), c.ColorModes...)
	if c.SupportsBrightness {
		modes = append(modes, "brightness")
	}
	sort.Strings(modes)
	return modes
}

// DescribeSupport renders a short human-readable summary, used in
// ValidationError messages and log lines.
func (c NormalizedCapabilities) DescribeSupport() string {
	modes := append([]string(nil), c.ColorModes...)
	if c.SupportsBrightness {
		modes = append(modes, "brightness")
	}
	sort.Strings(modes)
	summary := "none"
	if len(modes) > 0 {
		summary = strings.Join(modes, ", ")
	}
	if c.SupportsEffects() {
		summary = fmt.Sprintf("%s; effects (%s)", summary, strings.Join(c.Effects, ", "))
	}
	if c.ColorTempRange != nil {
		summary = fmt.Sprintf("%s; color temp %d-%dK", summary, c.ColorTempRange.Low, c.ColorTempRange.High)
	} else if c.SupportsColorTemperature() {
		summary = summary + "; color temp supported"
	}
	return summary
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Normalize coerces a raw capability map (as stored in devices.capabilities
// or supplied by a manual device declaration) into NormalizedCapabilities.
// Coercion rules are grounded on the original bridge's capability helpers:
// bool-ish strings, color-mode synonym folding, and color-temp-range shape
// coercion across several key spellings.
func Normalize(model string, raw map[string]any) NormalizedCapabilities {
	if raw == nil {
		raw = map[string]any{}
	}
	colorModes := normalizeColorModes(raw)
	brightnessVal, brightnessPresent := firstPresent(raw, "supports_brightness", "brightness")
	supportsBrightness := coerceBoolValue(brightnessVal, brightnessPresent, true)
	ctRange := normalizeColorTempRange(raw)
	effectsVal, effectsPresent := firstPresent(raw, "effects", "scenes", "scene_modes", "moods")
	effects := normalizeStringSet(effectsVal, effectsPresent)
	firmware := extractFirmware(raw)

	mode := normalizeMode(raw, colorModes)
	channelOrder := normalizeChannelOrder(raw, mode)
	supportsWhite := contains(channelOrder, "w")
	if v, present := firstPresent(raw, "supports_white"); present {
		supportsWhite = coerceBoolValue(v, present, supportsWhite)
	}

	return NormalizedCapabilities{
		Model:              model,
		Firmware:           firmware,
		ColorModes:         colorModes,
		SupportsBrightness: supportsBrightness,
		SupportsWhite:      supportsWhite,
		ColorTempRange:     ctRange,
		Effects:            effects,
		Mode:               mode,
		ChannelOrder:       channelOrder,
		Gamma:              normalizeGamma(raw),
		Dimmer:             normalizeDimmer(raw),
		Raw:                raw,
		Fingerprint:        fingerprint(raw),
	}
}

// normalizeMode picks the device's channel-layout mode, grounded on
// _coerce_mode_for_mapping: an explicit "mode" wins if it is one of the
// known values, otherwise it falls back to color-mode support.
func normalizeMode(raw map[string]any, colorModes []string) string {
	if v, ok := raw["mode"].(string); ok {
		mode := strings.ToLower(strings.TrimSpace(v))
		switch mode {
		case "rgb", "rgbw", "brightness", "custom", "discrete":
			return mode
		}
	}
	if contains(colorModes, "color") {
		return "rgb"
	}
	return "brightness"
}

// normalizeChannelOrder parses an explicit "channel_order"/"order" key (a
// string of single-letter tokens or a list of names), falling back to the
// canonical order for mode, grounded on _coerce_order_for_mapping.
func normalizeChannelOrder(raw map[string]any, mode string) []string {
	defaults := map[string][]string{
		"rgb":        {"r", "g", "b"},
		"rgbw":       {"r", "g", "b", "w"},
		"brightness": {"dimmer"},
	}
	normalizeEntry := func(entry string) (string, bool) {
		v := strings.ToLower(strings.TrimSpace(entry))
		switch v {
		case "r", "g", "b", "w", "dimmer":
			return v, true
		case "brightness":
			return "dimmer", true
		}
		return "", false
	}

	value, present := firstPresent(raw, "channel_order", "order")
	if present {
		switch t := value.(type) {
		case string:
			order := make([]string, 0, len(t))
			for _, ch := range t {
				if entry, ok := normalizeEntry(string(ch)); ok {
					order = append(order, entry)
				}
			}
			if len(order) > 0 {
				return order
			}
		case []any:
			order := make([]string, 0, len(t))
			for _, item := range t {
				s, ok := item.(string)
				if !ok {
					continue
				}
				if entry, ok := normalizeEntry(s); ok {
					order = append(order, entry)
				}
			}
			if len(order) > 0 {
				return order
			}
		case []string:
			order := make([]string, 0, len(t))
			for _, s := range t {
				if entry, ok := normalizeEntry(s); ok {
					order = append(order, entry)
				}
			}
			if len(order) > 0 {
				return order
			}
		}
	}
	if order, ok := defaults[mode]; ok {
		return order
	}
	return defaults["brightness"]
}

// normalizeGamma reads "gamma", clamped to a floor of 0.1 per spec §3.
func normalizeGamma(raw map[string]any) float64 {
	if v, ok := raw["gamma"]; ok {
		if f, ok := toFloat(v); ok {
			if f < 0.1 {
				return 0.1
			}
			return f
		}
	}
	return 1.0
}

// normalizeDimmer reads "dimmer"/"master_dimmer", clamped to [0, 1].
func normalizeDimmer(raw map[string]any) float64 {
	v, present := firstPresent(raw, "dimmer", "master_dimmer")
	if present {
		if f, ok := toFloat(v); ok {
			switch {
			case f < 0:
				return 0
			case f > 1:
				return 1
			default:
				return f
			}
		}
	}
	return 1.0
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func firstPresent(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func coerceBoolValue(value any, present bool, fallback bool) bool {
	if !present {
		return fallback
	}
	switch t := value.(type) {
	case bool:
		return t
	case nil:
		return fallback
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		lowered := strings.ToLower(strings.TrimSpace(t))
		switch lowered {
		case "true", "yes", "1", "on":
			return true
		case "false", "no", "0", "off":
			return false
		}
	}
	return fallback
}

func normalizeStringSet(v any, present bool) []string {
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			seen[s] = true
		}
	}
	if !present {
		return nil
	}
	switch t := v.(type) {
	case string:
		add(t)
	case []any:
		for _, entry := range t {
			if s, ok := entry.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range t {
			add(s)
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalizeColorModes(raw map[string]any) []string {
	modes := map[string]bool{}
	explicit := false
	ctHint := false

	rawModes, ok := firstPresent(raw, "color_modes", "colorModes", "modes")
	if ok {
		explicit = true
		for _, m := range normalizeStringSet(rawModes, true) {
			modes[m] = true
		}
	}
	if single, ok := raw["mode"].(string); ok {
		explicit = true
		modes[strings.ToLower(strings.TrimSpace(single))] = true
	}
	for _, key := range []string{"ct", "color_temp", "colorTemperature", "color_temp_range", "ct_range", "colorTempRange", "colorTemperatureRange"} {
		if _, present := raw[key]; present {
			explicit = true
			ctHint = true
			break
		}
	}

	normalized := map[string]bool{}
	for mode := range modes {
		switch mode {
		case "color", "rgb", "rgbw", "white":
			normalized["color"] = true
		case "ct", "cct", "color_temp", "color temperature", "temperature":
			normalized["ct"] = true
		case "scene", "effects", "effect":
			normalized["effect"] = true
		default:
			normalized[mode] = true
		}
	}
	if ctHint {
		normalized["ct"] = true
	}
	if len(normalized) == 0 && len(modes) > 0 {
		for m := range modes {
			normalized[m] = true
		}
	}
	if len(normalized) == 0 && !explicit {
		normalized["color"] = true
	}

	out := make([]string, 0, len(normalized))
	for m := range normalized {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func normalizeColorTempRange(raw map[string]any) *ColorTempRange {
	keys := []string{"color_temp_range", "ct_range", "colorTempRange", "colorTemperatureRange", "color_temp", "colorTemperature", "ct"}
	for _, key := range keys {
		v, present := raw[key]
		if !present {
			continue
		}
		if r := coerceTwoInts(v); r != nil {
			return r
		}
	}
	return nil
}

func coerceTwoInts(v any) *ColorTempRange {
	switch t := v.(type) {
	case map[string]any:
		lowVal, lowOK := firstPresent(t, "min", "minimum")
		highVal, highOK := firstPresent(t, "max", "maximum")
		if !lowOK || !highOK {
			return nil
		}
		low, ok1 := toInt(lowVal)
		high, ok2 := toInt(highVal)
		if !ok1 || !ok2 {
			return nil
		}
		if low > high {
			low, high = high, low
		}
		return &ColorTempRange{Low: low, High: high}
	case []any:
		if len(t) != 2 {
			return nil
		}
		low, ok1 := toInt(t[0])
		high, ok2 := toInt(t[1])
		if !ok1 || !ok2 {
			return nil
		}
		if low > high {
			low, high = high, low
		}
		return &ColorTempRange{Low: low, High: high}
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func extractFirmware(raw map[string]any) string {
	for _, key := range []string{"firmware", "fwVersion", "fw_version", "version"} {
		if v, ok := raw[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func fingerprint(raw map[string]any) string {
	b, err := json.Marshal(sortedMap(raw))
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(b)
}

// sortedMap produces a stable JSON encoding of a map with unordered key
// iteration by delegating to encoding/json, which does sort map keys.
func sortedMap(raw map[string]any) map[string]any {
	return raw
}

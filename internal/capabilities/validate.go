package capabilities

import "fmt"

// ValidationError reports an unsupported field/mode or payload, matching the
// shape of the ValidationError the Store's mutation API returns.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidateMappingField enforces spec §4.C create_mapping's capability
// precondition: a color-family field requires SupportsColor, "dimmer"
// requires SupportsBrightness, "ct" requires SupportsColorTemperature.
// "power" has no capability precondition — every device can be toggled.
func ValidateMappingField(field string, caps NormalizedCapabilities) error {
	switch field {
	case "dimmer":
		if !caps.SupportsBrightness {
			return &ValidationError{Message: "device does not support brightness control"}
		}
	case "ct":
		if !caps.SupportsColorTemperature() {
			return &ValidationError{Message: fmt.Sprintf("device does not support color temperature. Supported modes: %s", join(caps.SupportedModes()))}
		}
	case "r", "g", "b", "w", "color", "rgb", "rgbw", "custom":
		if !caps.SupportsColor() {
			return &ValidationError{Message: fmt.Sprintf("device does not support color field %q. Supported modes: %s", field, join(caps.SupportedModes()))}
		}
	case "power":
		// always supported
	}
	return nil
}

func join(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += ", " + s
	}
	return out
}

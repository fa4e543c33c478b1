package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/capabilities"
)

func TestCorrectClampsAndAppliesGammaDimmer(t *testing.T) {
	assert.Equal(t, byte(255), correct(255, 1.0, 1.0))
	assert.Equal(t, byte(0), correct(0, 1.0, 1.0))
	assert.Equal(t, byte(128), correct(255, 1.0, 0.5))
	assert.Less(t, correct(128, 2.0, 1.0), byte(128)) // gamma > 1 darkens midtones
}

func TestTranslateRangeColorAndDimmer(t *testing.T) {
	entry := cacheEntry{
		MappingType:  "range",
		Fields:       []string{"dimmer", "r", "g", "b"},
		Capabilities: capabilities.NormalizedCapabilities{Gamma: 1.0, Dimmer: 1.0},
	}
	payload, err := translate(entry, []byte{255, 10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, 255, payload["brightness"])
	color := payload["color"].(map[string]any)
	assert.Equal(t, 10, color["r"])
}

func TestTranslateRangeDimmerOnlyZeroIsTurnOff(t *testing.T) {
	entry := cacheEntry{
		MappingType:  "range",
		Fields:       []string{"dimmer"},
		Capabilities: capabilities.NormalizedCapabilities{Gamma: 1.0, Dimmer: 1.0},
	}
	payload, err := translate(entry, []byte{0})
	require.NoError(t, err)
	assert.Equal(t, "off", payload["turn"])
}

func TestTranslateRangeDimmerOnlyNonzeroIsTurnOn(t *testing.T) {
	entry := cacheEntry{
		MappingType:  "range",
		Fields:       []string{"dimmer"},
		Capabilities: capabilities.NormalizedCapabilities{Gamma: 1.0, Dimmer: 1.0},
	}
	payload, err := translate(entry, []byte{200})
	require.NoError(t, err)
	assert.Equal(t, "on", payload["turn"])
	assert.Equal(t, 200, payload["brightness"])
}

func TestTranslateDiscretePower(t *testing.T) {
	entry := cacheEntry{MappingType: "discrete", Field: "power", Capabilities: capabilities.NormalizedCapabilities{Gamma: 1.0, Dimmer: 1.0}}
	on, err := translate(entry, []byte{200})
	require.NoError(t, err)
	assert.Equal(t, "on", on["turn"])

	off, err := translate(entry, []byte{50})
	require.NoError(t, err)
	assert.Equal(t, "off", off["turn"])
}

func TestTranslateDiscreteCTZeroIsSkipped(t *testing.T) {
	entry := cacheEntry{MappingType: "discrete", Field: "ct", Capabilities: capabilities.NormalizedCapabilities{Gamma: 1.0, Dimmer: 1.0}}
	payload, err := translate(entry, []byte{0})
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestTranslateDiscreteCTScalesIntoRange(t *testing.T) {
	entry := cacheEntry{
		MappingType: "discrete",
		Field:       "ct",
		Capabilities: capabilities.NormalizedCapabilities{
			Gamma: 1.0, Dimmer: 1.0,
			ColorTempRange: &capabilities.ColorTempRange{Low: 2000, High: 9000},
		},
	}
	payload, err := translate(entry, []byte{255})
	require.NoError(t, err)
	assert.Equal(t, 9000, payload["color_temp"])
}

func TestTranslateUnknownMappingTypeErrors(t *testing.T) {
	entry := cacheEntry{MappingType: "bogus"}
	_, err := translate(entry, []byte{1})
	assert.Error(t, err)
}

func TestMergeFragmentShallowMergesColorOverwritesOthers(t *testing.T) {
	dst := map[string]any{"color": map[string]any{"r": 1}, "turn": "on"}
	src := map[string]any{"color": map[string]any{"g": 2}, "turn": "off"}
	mergeFragment(dst, src)

	color := dst["color"].(map[string]any)
	assert.Equal(t, 1, color["r"])
	assert.Equal(t, 2, color["g"])
	assert.Equal(t, "off", dst["turn"])
}

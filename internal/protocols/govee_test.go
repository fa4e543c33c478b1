package protocols

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, commands [][]byte) []goveeMessage {
	t.Helper()
	out := make([]goveeMessage, 0, len(commands))
	for _, raw := range commands {
		var msg goveeMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		out = append(out, msg)
	}
	return out
}

func TestWrapTurnOffAlone(t *testing.T) {
	commands, err := GoveeHandler{}.Wrap(map[string]any{"turn": "off"})
	require.NoError(t, err)
	require.Len(t, commands, 1)
	msgs := decodeAll(t, commands)
	require.Equal(t, "turn", msgs[0].Msg.Cmd)
	require.Equal(t, float64(0), msgs[0].Msg.Data["value"])
}

func TestWrapTurnOnWithColorAndBrightness(t *testing.T) {
	commands, err := GoveeHandler{}.Wrap(map[string]any{
		"turn": "on",
		"color": map[string]any{"r": 154, "g": 0, "b": 0},
		"brightness": 200,
	})
	require.NoError(t, err)
	require.Len(t, commands, 3)
	msgs := decodeAll(t, commands)
	require.Equal(t, "turn", msgs[0].Msg.Cmd)
	require.Equal(t, float64(1), msgs[0].Msg.Data["value"])
	require.Equal(t, "colorwc", msgs[1].Msg.Cmd)
	require.Equal(t, "brightness", msgs[2].Msg.Cmd)
	require.Equal(t, float64(200), msgs[2].Msg.Data["value"])
}

func TestWrapBrightnessOnly(t *testing.T) {
	commands, err := GoveeHandler{}.Wrap(map[string]any{"brightness": 128})
	require.NoError(t, err)
	require.Len(t, commands, 1)
	msgs := decodeAll(t, commands)
	require.Equal(t, "brightness", msgs[0].Msg.Cmd)
	require.Equal(t, float64(128), msgs[0].Msg.Data["value"])
}

func TestWrapColorWithoutTurnAndBrightness(t *testing.T) {
	commands, err := GoveeHandler{}.Wrap(map[string]any{
		"color":      map[string]any{"r": 154, "g": 0, "b": 0},
		"brightness": 200,
	})
	require.NoError(t, err)
	require.Len(t, commands, 2)
	msgs := decodeAll(t, commands)
	require.Equal(t, "colorwc", msgs[0].Msg.Cmd)
	require.Equal(t, "brightness", msgs[1].Msg.Cmd)
}

func TestWrapColorTempOnly(t *testing.T) {
	commands, err := GoveeHandler{}.Wrap(map[string]any{"color_temp": 4000})
	require.NoError(t, err)
	require.Len(t, commands, 1)
	msgs := decodeAll(t, commands)
	require.Equal(t, "colorwc", msgs[0].Msg.Cmd)
	require.Equal(t, float64(4000), msgs[0].Msg.Data["colorTemInKelvin"])
}

func TestWrapUnrecognizedPayloadFallsBackToDevControl(t *testing.T) {
	commands, err := GoveeHandler{}.Wrap(map[string]any{"effect": "rainbow"})
	require.NoError(t, err)
	require.Len(t, commands, 1)
	msgs := decodeAll(t, commands)
	require.Equal(t, "devControl", msgs[0].Msg.Cmd)
	require.Equal(t, "rainbow", msgs[0].Msg.Data["effect"])
}

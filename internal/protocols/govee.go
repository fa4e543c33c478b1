package protocols

import "encoding/json"

// GoveeHandler implements the Govee LAN dialect: JSON commands of shape
// {msg:{cmd:<"turn"|"brightness"|"colorwc"|"devControl">, data:{...}}} sent
// over UDP 4003, grounded on wrap_govee_command in the original bridge.
type GoveeHandler struct{}

func (GoveeHandler) Name() string             { return "govee" }
func (GoveeHandler) DefaultPort() int         { return 4003 }
func (GoveeHandler) DefaultTransport() string { return "udp" }

type goveeMessage struct {
	Msg goveeCommand `json:"msg"`
}

type goveeCommand struct {
	Cmd  string         `json:"cmd"`
	Data map[string]any `json:"data"`
}

func encodeCommand(cmd string, data map[string]any) ([]byte, error) {
	return json.Marshal(goveeMessage{Msg: goveeCommand{Cmd: cmd, Data: data}})
}

// Wrap follows spec §4.C's payload-wrapping rules verbatim:
//
//   - turn:"off" alone -> single turn{value:0}
//   - turn:"on" with color/brightness/ct -> turn{value:1}, then colorwc
//     (color and/or colorTemInKelvin), then a separate brightness command
//     if present
//   - brightness alone -> single brightness{value}
//   - color and/or color_temp without turn -> colorwc, then a separate
//     brightness command if also present
//
// Anything else falls back to a devControl command carrying the payload
// verbatim, matching the original wrapper's catch-all.
func (GoveeHandler) Wrap(payload map[string]any) ([][]byte, error) {
	color, hasColor := payload["color"]
	colorTemp, hasColorTemp := colorTemperature(payload)
	brightness, hasBrightness := payload["brightness"]
	turn, hasTurn := payload["turn"]

	if hasTurn {
		turnValue := 0
		if turn == "on" {
			turnValue = 1
		}
		turnCmd, err := encodeCommand("turn", map[string]any{"value": turnValue})
		if err != nil {
			return nil, err
		}
		if turnValue == 0 {
			return [][]byte{turnCmd}, nil
		}

		commands := [][]byte{turnCmd}
		if hasColor || hasColorTemp {
			data := map[string]any{}
			if hasColor {
				data["color"] = color
			}
			if hasColorTemp {
				data["colorTemInKelvin"] = colorTemp
			}
			cmd, err := encodeCommand("colorwc", data)
			if err != nil {
				return nil, err
			}
			commands = append(commands, cmd)
		}
		if hasBrightness {
			cmd, err := encodeCommand("brightness", map[string]any{"value": brightness})
			if err != nil {
				return nil, err
			}
			commands = append(commands, cmd)
		}
		return commands, nil
	}

	if hasBrightness && !hasColor && !hasColorTemp {
		cmd, err := encodeCommand("brightness", map[string]any{"value": brightness})
		if err != nil {
			return nil, err
		}
		return [][]byte{cmd}, nil
	}

	if hasColor || hasColorTemp {
		data := map[string]any{}
		if hasColor {
			data["color"] = color
		}
		if hasColorTemp {
			data["colorTemInKelvin"] = colorTemp
		}
		colorCmd, err := encodeCommand("colorwc", data)
		if err != nil {
			return nil, err
		}
		if hasBrightness {
			brightnessCmd, err := encodeCommand("brightness", map[string]any{"value": brightness})
			if err != nil {
				return nil, err
			}
			return [][]byte{colorCmd, brightnessCmd}, nil
		}
		return [][]byte{colorCmd}, nil
	}

	cmd, err := encodeCommand("devControl", payload)
	if err != nil {
		return nil, err
	}
	return [][]byte{cmd}, nil
}

func colorTemperature(payload map[string]any) (any, bool) {
	if v, ok := payload["color_temp"]; ok {
		return v, true
	}
	if v, ok := payload["colorTemInKelvin"]; ok {
		return v, true
	}
	return nil, false
}

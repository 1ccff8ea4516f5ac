// Package codec decodes browser input messages into controller commands.
//
// Every inbound WebSocket frame is one JSON object with a "type" field:
//
//	{"type":"button","id":"A","state":true}
//	{"type":"axis","id":"lstick","x":0.5,"y":-0.5}
//	{"type":"trigger","id":"rt","value":1}
//
// Decode is pure. Frames it cannot use decode to a nil Command together with
// an error wrapping ErrMalformed, ErrUnknownType or ErrUnknownField; callers
// treat all three as no-ops and keep the connection open.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cast"
	"github.com/wricardo/webpad/pad/device"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownType  = errors.New("unknown message type")
	ErrUnknownField = errors.New("unknown message id")
)

// Message types.
const (
	TypeButton  = "button"
	TypeAxis    = "axis"
	TypeTrigger = "trigger"
	TypeHello   = "hello"
)

// Command is a decoded input message: ButtonCommand, StickCommand or
// TriggerCommand.
type Command interface {
	command()
}

// ButtonCommand presses or releases one digital button.
type ButtonCommand struct {
	Button  device.Button
	Pressed bool
}

// StickCommand moves both axes of one stick.
type StickCommand struct {
	Side device.Side
	X, Y float64
}

// TriggerCommand sets one analog trigger.
type TriggerCommand struct {
	Side  device.Side
	Value float64
}

func (ButtonCommand) command() {}
func (StickCommand) command() {}
func (TriggerCommand) command() {}

var buttonIDs = map[string]device.Button{
	"A":     device.ButtonA,
	"B":     device.ButtonB,
	"X":     device.ButtonX,
	"Y":     device.ButtonY,
	"UP":    device.ButtonDPadUp,
	"DOWN":  device.ButtonDPadDown,
	"LEFT":  device.ButtonDPadLeft,
	"RIGHT": device.ButtonDPadRight,
	"LB":    device.ButtonLB,
	"RB":    device.ButtonRB,
	"START": device.ButtonStart,
	"BACK":  device.ButtonBack,
}

var stickIDs = map[string]device.Side{
	"lstick": device.Left,
	"rstick": device.Right,
}

var triggerIDs = map[string]device.Side{
	"lt": device.Left,
	"rt": device.Right,
}

// Decode parses one message payload.
func Decode(data []byte) (Command, error) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	typ, err := stringField(msg, "type")
	if err != nil {
		return nil, err
	}
	id, err := stringField(msg, "id")
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeButton:
		return decodeButton(msg, id)
	case TypeAxis:
		return decodeStick(msg, id)
	case TypeTrigger:
		return decodeTrigger(msg, id)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func decodeButton(msg map[string]any, id string) (Command, error) {
	button, ok := buttonIDs[id]
	if !ok {
		return nil, fmt.Errorf("%w: button %q", ErrUnknownField, id)
	}
	pressed, err := boolField(msg, "state")
	if err != nil {
		return nil, err
	}
	return ButtonCommand{Button: button, Pressed: pressed}, nil
}

// decodeStick accepts only paired stick updates. Single-axis ids such as
// "lx" are part of the browser schema but carry no action.
func decodeStick(msg map[string]any, id string) (Command, error) {
	side, ok := stickIDs[id]
	if !ok {
		return nil, fmt.Errorf("%w: axis %q", ErrUnknownField, id)
	}
	x, err := floatField(msg, "x")
	if err != nil {
		return nil, err
	}
	y, err := floatField(msg, "y")
	if err != nil {
		return nil, err
	}
	return StickCommand{Side: side, X: x, Y: y}, nil
}

func decodeTrigger(msg map[string]any, id string) (Command, error) {
	side, ok := triggerIDs[id]
	if !ok {
		return nil, fmt.Errorf("%w: trigger %q", ErrUnknownField, id)
	}
	value, err := floatField(msg, "value")
	if err != nil {
		return nil, err
	}
	return TriggerCommand{Side: side, Value: value}, nil
}

func stringField(msg map[string]any, key string) (string, error) {
	raw, ok := msg[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is %T, want string", ErrMalformed, key, raw)
	}
	return s, nil
}

// boolField coerces the way browsers tend to send flags: JSON booleans,
// 0/1 numbers or "true"/"false" strings. A missing field is false.
func boolField(msg map[string]any, key string) (bool, error) {
	switch v := msg[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	}
	b, err := cast.ToBoolE(msg[key])
	if err != nil {
		return false, fmt.Errorf("%w: field %q: %v", ErrMalformed, key, err)
	}
	return b, nil
}

// floatField coerces numbers and numeric strings. A missing field is 0.
// Values are not range-checked; only NaN and infinities are rejected.
func floatField(msg map[string]any, key string) (float64, error) {
	raw := msg[key]
	if raw == nil {
		return 0, nil
	}
	if _, isBool := raw.(bool); isBool {
		return 0, fmt.Errorf("%w: field %q is bool, want number", ErrMalformed, key)
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %v", ErrMalformed, key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: field %q is not finite", ErrMalformed, key)
	}
	return v, nil
}

// Hello is the handshake sent once after a connection opens.
type Hello struct {
	Type   string `json:"type"`
	Player int    `json:"player"`
}

// NewHello builds the handshake for player.
func NewHello(player int) Hello {
	return Hello{Type: TypeHello, Player: player}
}

// EncodeHello renders the handshake frame for player.
func EncodeHello(player int) ([]byte, error) {
	return json.Marshal(NewHello(player))
}

package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/webpad/pad/device"
)

func TestDecode_Buttons(t *testing.T) {
	for id, want := range buttonIDs {
		t.Run(id, func(t *testing.T) {
			cmd, err := Decode([]byte(`{"type":"button","id":"` + id + `","state":true}`))
			require.NoError(t, err)
			assert.Equal(t, ButtonCommand{Button: want, Pressed: true}, cmd)
		})
	}
	assert.Len(t, buttonIDs, 12)
}

func TestDecode_ButtonState(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  bool
	}{
		{"true", `true`, true},
		{"false", `false`, false},
		{"one", `1`, true},
		{"zero", `0`, false},
		{"string true", `"true"`, true},
		{"string false", `"false"`, false},
		{"null", `null`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(`{"type":"button","id":"B","state":` + tt.state + `}`))
			require.NoError(t, err)
			assert.Equal(t, ButtonCommand{Button: device.ButtonB, Pressed: tt.want}, cmd)
		})
	}

	t.Run("missing state releases", func(t *testing.T) {
		cmd, err := Decode([]byte(`{"type":"button","id":"B"}`))
		require.NoError(t, err)
		assert.Equal(t, ButtonCommand{Button: device.ButtonB}, cmd)
	})
}

func TestDecode_Sticks(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want Command
	}{
		{
			name: "left stick",
			msg:  `{"type":"axis","id":"lstick","x":0.5,"y":-0.5}`,
			want: StickCommand{Side: device.Left, X: 0.5, Y: -0.5},
		},
		{
			name: "right stick",
			msg:  `{"type":"axis","id":"rstick","x":-1,"y":1}`,
			want: StickCommand{Side: device.Right, X: -1, Y: 1},
		},
		{
			name: "missing coordinates default to zero",
			msg:  `{"type":"axis","id":"rstick"}`,
			want: StickCommand{Side: device.Right},
		},
		{
			name: "numeric strings",
			msg:  `{"type":"axis","id":"lstick","x":"0.25","y":"-0.75"}`,
			want: StickCommand{Side: device.Left, X: 0.25, Y: -0.75},
		},
		{
			name: "out of range passes through",
			msg:  `{"type":"axis","id":"lstick","x":2.5,"y":-3}`,
			want: StickCommand{Side: device.Left, X: 2.5, Y: -3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestDecode_Triggers(t *testing.T) {
	cmd, err := Decode([]byte(`{"type":"trigger","id":"lt","value":0.75}`))
	require.NoError(t, err)
	assert.Equal(t, TriggerCommand{Side: device.Left, Value: 0.75}, cmd)

	cmd, err = Decode([]byte(`{"type":"trigger","id":"rt"}`))
	require.NoError(t, err)
	assert.Equal(t, TriggerCommand{Side: device.Right}, cmd)
}

func TestDecode_NoOps(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want error
	}{
		{"empty", ``, ErrMalformed},
		{"not json", `press A`, ErrMalformed},
		{"truncated", `{"type":"button","id":"A"`, ErrMalformed},
		{"array", `[1,2,3]`, ErrMalformed},
		{"string", `"button"`, ErrMalformed},
		{"number type", `{"type":7}`, ErrMalformed},
		{"number id", `{"type":"button","id":1,"state":true}`, ErrMalformed},
		{"bad state", `{"type":"button","id":"A","state":"maybe"}`, ErrMalformed},
		{"object state", `{"type":"button","id":"A","state":{}}`, ErrMalformed},
		{"bad coordinate", `{"type":"axis","id":"lstick","x":"left","y":0}`, ErrMalformed},
		{"bool coordinate", `{"type":"axis","id":"lstick","x":true,"y":0}`, ErrMalformed},
		{"nan coordinate", `{"type":"axis","id":"lstick","x":"NaN","y":0}`, ErrMalformed},
		{"infinite trigger", `{"type":"trigger","id":"lt","value":"Inf"}`, ErrMalformed},
		{"null", `null`, ErrUnknownType},
		{"empty object", `{}`, ErrUnknownType},
		{"unknown type", `{"type":"rumble","id":"A"}`, ErrUnknownType},
		{"hello echoed back", `{"type":"hello","player":1}`, ErrUnknownType},
		{"unknown button", `{"type":"button","id":"GUIDE","state":true}`, ErrUnknownField},
		{"lowercase button", `{"type":"button","id":"a","state":true}`, ErrUnknownField},
		{"single axis lx", `{"type":"axis","id":"lx","value":0.5}`, ErrUnknownField},
		{"single axis ly", `{"type":"axis","id":"ly","value":0.5}`, ErrUnknownField},
		{"unknown trigger", `{"type":"trigger","id":"mt","value":1}`, ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tt.msg))
			assert.Nil(t, cmd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "expected %v, got %v", tt.want, err)
		})
	}
}

func TestEncodeHello(t *testing.T) {
	data, err := EncodeHello(3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"hello","player":3}`, string(data))

	var hello Hello
	require.NoError(t, json.Unmarshal(data, &hello))
	assert.Equal(t, NewHello(3), hello)
}

package device

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("memory driver", func(t *testing.T) {
		b, err := Open("memory", Options{})
		require.NoError(t, err)
		assert.Equal(t, "memory", b.Name())
	})

	t.Run("driver names are case-insensitive", func(t *testing.T) {
		b, err := Open("MEMORY", Options{})
		require.NoError(t, err)
		assert.Equal(t, "memory", b.Name())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open("vigem", Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownDriver))
	})
}

func TestButtonString(t *testing.T) {
	assert.Equal(t, "A", ButtonA.String())
	assert.Equal(t, "BACK", ButtonBack.String())
	assert.Equal(t, "NONE", Button(0).String())
	assert.Equal(t, "A|B", (ButtonA | ButtonB).String())
	assert.Len(t, Buttons, 12)
}

func TestStateHelpers(t *testing.T) {
	var s State
	assert.True(t, s.IsZero())

	s.setButton(ButtonX, true)
	s.setButton(ButtonY, true)
	s.setButton(ButtonX, false)
	assert.False(t, s.Pressed(ButtonX))
	assert.True(t, s.Pressed(ButtonY))

	s.setStick(Right, 0.25, -0.75)
	assert.Equal(t, Stick{X: 0.25, Y: -0.75}, s.RightStick)
	assert.Equal(t, Stick{}, s.LeftStick)

	s.setTrigger(Left, 0.5)
	assert.Equal(t, 0.5, s.LeftTrigger)
	assert.Zero(t, s.RightTrigger)
	assert.False(t, s.IsZero())
}

func TestAxisEncoding(t *testing.T) {
	tests := []struct {
		name    string
		stick   float64
		want    int32
		trigger float64
		wantT   int32
	}{
		{"centered", 0, 0, 0, 0},
		{"full positive", 1, 32767, 1, 255},
		{"full negative", -1, -32767, 0, 0},
		{"half", 0.5, 16384, 0.5, 128},
		{"out of range is clamped", 3.2, 32767, 7, 255},
		{"below range is clamped", -9, -32767, -1, 0},
		{"nan is centered", math.NaN(), 0, math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stickValue(tt.stick))
			assert.Equal(t, tt.wantT, triggerValue(tt.trigger))
		})
	}
}

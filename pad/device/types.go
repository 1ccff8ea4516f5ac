package device

import (
	"errors"
	"strings"

	"github.com/samber/oops"
)

var (
	ErrUnknownDriver = errors.New("unknown device driver")
	ErrUnsupported   = errors.New("device driver not supported on this platform")
	ErrReleased      = errors.New("device handle already released")
)

// Button is a bit in the controller's digital button mask.
// Values follow the XUSB report layout.
type Button uint16

const (
	ButtonDPadUp    Button = 0x0001
	ButtonDPadDown  Button = 0x0002
	ButtonDPadLeft  Button = 0x0004
	ButtonDPadRight Button = 0x0008
	ButtonStart     Button = 0x0010
	ButtonBack      Button = 0x0020
	ButtonLB        Button = 0x0100
	ButtonRB        Button = 0x0200
	ButtonA         Button = 0x1000
	ButtonB         Button = 0x2000
	ButtonX         Button = 0x4000
	ButtonY         Button = 0x8000
)

// Buttons lists every digital button of the generic gamepad profile.
var Buttons = []Button{
	ButtonA, ButtonB, ButtonX, ButtonY,
	ButtonDPadUp, ButtonDPadDown, ButtonDPadLeft, ButtonDPadRight,
	ButtonLB, ButtonRB, ButtonStart, ButtonBack,
}

var buttonNames = map[Button]string{
	ButtonA:         "A",
	ButtonB:         "B",
	ButtonX:         "X",
	ButtonY:         "Y",
	ButtonDPadUp:    "UP",
	ButtonDPadDown:  "DOWN",
	ButtonDPadLeft:  "LEFT",
	ButtonDPadRight: "RIGHT",
	ButtonLB:        "LB",
	ButtonRB:        "RB",
	ButtonStart:     "START",
	ButtonBack:      "BACK",
}

func (b Button) String() string {
	if name, ok := buttonNames[b]; ok {
		return name
	}
	var parts []string
	for _, btn := range Buttons {
		if b&btn != 0 {
			parts = append(parts, buttonNames[btn])
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Side selects the left or right stick or trigger.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Stick is an analog stick position.
type Stick struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is the full controller state pushed on every commit.
type State struct {
	Buttons      Button  `json:"buttons"`
	LeftStick    Stick   `json:"left_stick"`
	RightStick   Stick   `json:"right_stick"`
	LeftTrigger  float64 `json:"left_trigger"`
	RightTrigger float64 `json:"right_trigger"`
}

// Pressed reports whether b is set in the button mask.
func (s State) Pressed(b Button) bool {
	return s.Buttons&b != 0
}

// IsZero reports whether the state equals a released, centered controller.
func (s State) IsZero() bool {
	return s == State{}
}

func (s *State) setButton(b Button, pressed bool) {
	if pressed {
		s.Buttons |= b
	} else {
		s.Buttons &^= b
	}
}

func (s *State) setStick(side Side, x, y float64) {
	if side == Right {
		s.RightStick = Stick{X: x, Y: y}
		return
	}
	s.LeftStick = Stick{X: x, Y: y}
}

func (s *State) setTrigger(side Side, value float64) {
	if side == Right {
		s.RightTrigger = value
		return
	}
	s.LeftTrigger = value
}

// Handle is one virtual controller registered with the host.
type Handle interface {
	// SetButton stages a button press or release.
	SetButton(b Button, pressed bool) error
	// SetStick stages both axes of one stick.
	SetStick(side Side, x, y float64) error
	// SetTrigger stages one trigger.
	SetTrigger(side Side, value float64) error
	// Commit pushes the full staged state to the host.
	Commit() error
	// Reset releases every button and centers every axis. It does not commit.
	Reset() error
	// Release unregisters the controller. Later calls return ErrReleased.
	Release() error
	// State returns the staged state.
	State() State
}

// Binding creates controller handles.
type Binding interface {
	Create() (Handle, error)
	Name() string
}

// Options configures a driver.
type Options struct {
	// Name is the product name reported to the host.
	Name string
	// Path is the uinput device node.
	Path string
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "webpad virtual gamepad"
	}
	if o.Path == "" {
		o.Path = "/dev/uinput"
	}
	return o
}

// Drivers lists the names accepted by Open.
var Drivers = []string{"memory", "uinput"}

// Open returns the binding registered under driver.
func Open(driver string, opts Options) (Binding, error) {
	opts = opts.withDefaults()
	switch strings.ToLower(driver) {
	case "memory":
		return NewMemoryBinding(), nil
	case "uinput":
		return newUinputBinding(opts)
	default:
		return nil, oops.In("device").With("driver", driver).Wrapf(ErrUnknownDriver, "open %q", driver)
	}
}

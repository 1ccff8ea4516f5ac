//go:build linux

package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"

	"github.com/samber/oops"
	"golang.org/x/sys/unix"
)

// uinput ioctl requests from linux/uinput.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetAbsBit  = 0x40045567
)

// Event types and codes from linux/input-event-codes.h.
const (
	evSyn     = 0x00
	evKey     = 0x01
	evAbs     = 0x03
	synReport = 0x00

	absX  = 0x00
	absY  = 0x01
	absZ  = 0x02
	absRX = 0x03
	absRY = 0x04
	absRZ = 0x05

	busVirtual = 0x06
	absCount   = 64
	nameSize   = 80
)

// Reported as an Xbox 360 pad so games pick a standard mapping.
const (
	vendorMicrosoft = 0x045e
	productXbox360  = 0x028e
	deviceVersion   = 0x0110
)

var keyCodes = map[Button]uint16{
	ButtonA:         0x130, // BTN_A
	ButtonB:         0x131, // BTN_B
	ButtonX:         0x133, // BTN_X
	ButtonY:         0x134, // BTN_Y
	ButtonLB:        0x136, // BTN_TL
	ButtonRB:        0x137, // BTN_TR
	ButtonBack:      0x13a, // BTN_SELECT
	ButtonStart:     0x13b, // BTN_START
	ButtonDPadUp:    0x220,
	ButtonDPadDown:  0x221,
	ButtonDPadLeft:  0x222,
	ButtonDPadRight: 0x223,
}

var absAxes = []uint16{absX, absY, absZ, absRX, absRY, absRZ}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev mirrors struct uinput_user_dev.
type uinputUserDev struct {
	Name       [nameSize]byte
	ID         inputID
	EffectsMax uint32
	AbsMax     [absCount]int32
	AbsMin     [absCount]int32
	AbsFuzz    [absCount]int32
	AbsFlat    [absCount]int32
}

// inputEvent mirrors struct input_event. The kernel stamps the time.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type uinputBinding struct {
	opts Options
}

func newUinputBinding(opts Options) (Binding, error) {
	f, err := os.OpenFile(opts.Path, os.O_WRONLY, 0)
	if err != nil {
		return nil, oops.In("device").With("driver", "uinput").Wrapf(err, "open %s", opts.Path)
	}
	f.Close()
	return &uinputBinding{opts: opts}, nil
}

func (b *uinputBinding) Name() string {
	return "uinput"
}

func (b *uinputBinding) Create() (Handle, error) {
	f, err := os.OpenFile(b.opts.Path, os.O_WRONLY, 0)
	if err != nil {
		return nil, oops.In("device").With("driver", "uinput").Wrapf(err, "open %s", b.opts.Path)
	}

	if err := registerGamepad(f, b.opts.Name); err != nil {
		f.Close()
		return nil, oops.In("device").With("driver", "uinput").Wrapf(err, "register gamepad")
	}

	return &uinputHandle{file: f}, nil
}

func registerGamepad(f *os.File, name string) error {
	fd := f.Fd()

	for _, ev := range []uintptr{evKey, evAbs, evSyn} {
		if err := ioctl(fd, uiSetEvBit, ev); err != nil {
			return err
		}
	}
	for _, code := range keyCodes {
		if err := ioctl(fd, uiSetKeyBit, uintptr(code)); err != nil {
			return err
		}
	}
	for _, code := range absAxes {
		if err := ioctl(fd, uiSetAbsBit, uintptr(code)); err != nil {
			return err
		}
	}

	dev := uinputUserDev{
		ID: inputID{
			Bustype: busVirtual,
			Vendor:  vendorMicrosoft,
			Product: productXbox360,
			Version: deviceVersion,
		},
	}
	copy(dev.Name[:nameSize-1], name)
	for _, code := range []uint16{absX, absY, absRX, absRY} {
		dev.AbsMin[code] = -stickRange - 1
		dev.AbsMax[code] = stickRange
		dev.AbsFuzz[code] = 16
		dev.AbsFlat[code] = 128
	}
	for _, code := range []uint16{absZ, absRZ} {
		dev.AbsMax[code] = triggerRange
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, &dev); err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}

	return ioctl(fd, uiDevCreate, 0)
}

func ioctl(fd, req, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg); errno != 0 {
		return errno
	}
	return nil
}

type uinputHandle struct {
	file     *os.File
	state    State
	released bool
}

func (h *uinputHandle) SetButton(b Button, pressed bool) error {
	if h.released {
		return ErrReleased
	}
	h.state.setButton(b, pressed)
	return nil
}

func (h *uinputHandle) SetStick(side Side, x, y float64) error {
	if h.released {
		return ErrReleased
	}
	h.state.setStick(side, x, y)
	return nil
}

func (h *uinputHandle) SetTrigger(side Side, value float64) error {
	if h.released {
		return ErrReleased
	}
	h.state.setTrigger(side, value)
	return nil
}

func (h *uinputHandle) Commit() error {
	if h.released {
		return ErrReleased
	}
	frame, err := encodeFrame(h.state)
	if err != nil {
		return oops.In("device").With("driver", "uinput").Wrapf(err, "encode state")
	}
	if _, err := h.file.Write(frame); err != nil {
		return oops.In("device").With("driver", "uinput").Wrapf(err, "write state")
	}
	return nil
}

func (h *uinputHandle) Reset() error {
	if h.released {
		return ErrReleased
	}
	h.state = State{}
	return nil
}

func (h *uinputHandle) Release() error {
	if h.released {
		return ErrReleased
	}
	h.released = true

	destroyErr := ioctl(h.file.Fd(), uiDevDestroy, 0)
	closeErr := h.file.Close()
	if err := errors.Join(destroyErr, closeErr); err != nil {
		return oops.In("device").With("driver", "uinput").Wrapf(err, "destroy gamepad")
	}
	return nil
}

func (h *uinputHandle) State() State {
	return h.state
}

// encodeFrame renders the full state as key and axis events followed by a
// SYN_REPORT. The kernel drops events whose value did not change.
func encodeFrame(s State) ([]byte, error) {
	events := make([]inputEvent, 0, len(keyCodes)+len(absAxes)+1)
	for _, b := range Buttons {
		var v int32
		if s.Pressed(b) {
			v = 1
		}
		events = append(events, inputEvent{Type: evKey, Code: keyCodes[b], Value: v})
	}

	// Browser sticks report up as positive Y; evdev reports down as positive.
	events = append(events,
		inputEvent{Type: evAbs, Code: absX, Value: stickValue(s.LeftStick.X)},
		inputEvent{Type: evAbs, Code: absY, Value: stickValue(-s.LeftStick.Y)},
		inputEvent{Type: evAbs, Code: absRX, Value: stickValue(s.RightStick.X)},
		inputEvent{Type: evAbs, Code: absRY, Value: stickValue(-s.RightStick.Y)},
		inputEvent{Type: evAbs, Code: absZ, Value: triggerValue(s.LeftTrigger)},
		inputEvent{Type: evAbs, Code: absRZ, Value: triggerValue(s.RightTrigger)},
		inputEvent{Type: evSyn, Code: synReport},
	)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

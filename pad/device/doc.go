// Package device provides virtual game controller bindings for webpad.
//
// The device package implements:
//   - The Binding and Handle contracts consumed by sessions
//   - The controller State model (button mask, sticks, triggers)
//   - A memory driver that keeps committed state in process
//   - A uinput driver that registers a gamepad with the Linux kernel
//
// Handles:
//
// A Handle stages state in memory through SetButton, SetStick and SetTrigger.
// Nothing reaches the operating system until Commit, which always pushes the
// full State rather than the field that changed. Reset zeroes the staged state
// and Release unregisters the controller. A Handle is owned by exactly one
// session and is not safe for concurrent use.
//
// Value ranges:
//
// Stick axes are nominally in [-1, 1] and triggers in [0, 1]. Handles store
// whatever they are given; drivers that must encode values for the kernel
// clamp at that point.
//
// Usage:
//
//	binding, err := device.Open("uinput", device.Options{Name: "webpad"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	h, err := binding.Create()
//	if err != nil {
//		return err
//	}
//	defer h.Release()
//
//	h.SetButton(device.ButtonA, true)
//	if err := h.Commit(); err != nil {
//		return err
//	}
package device

package device

import "math"

const (
	stickRange   = 32767
	triggerRange = 255
)

// clamp limits v to [lo, hi]. NaN maps to zero.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

// stickValue converts a [-1, 1] axis to the signed 16-bit range reported to
// the host.
func stickValue(v float64) int32 {
	return int32(math.Round(clamp(v, -1, 1) * stickRange))
}

// triggerValue converts a [0, 1] trigger to the 8-bit range reported to the
// host.
func triggerValue(v float64) int32 {
	return int32(math.Round(clamp(v, 0, 1) * triggerRange))
}

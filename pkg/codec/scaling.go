package codec

import "math"

// ApplyScaling converts a raw register value to engineering units.
func ApplyScaling(raw, factor, offset float64) float64 {
	return raw*factor + offset
}

// ReverseScaling converts an engineering value back to the nearest raw integer, rounding half
// away from zero.
func ReverseScaling(engineering, factor, offset float64) float64 {
	if factor == 0 {
		factor = 1
	}
	return math.Round((engineering - offset) / factor)
}

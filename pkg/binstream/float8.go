package binstream

import "math"

// Boosts are stored in one byte on a base-2 logarithmic scale with 16 steps
// per octave:
//
//	code 0      -> 0
//	code c > 0  -> 2^((c-128)/16)
//
// Code 128 is exactly 1.0, the representable range is [2^-7.9375, 2^7.9375]
// (about 0.0041 to 245) and values outside it clamp to the nearest end.
// Inside the range the round trip error is at most half a step,
// 2^(1/32)-1, i.e. below 2.2% relative. Zero, negative and NaN inputs
// encode as code 0.
const (
	float8Bias  = 128
	float8Steps = 16
)

// Float8MaxRelError is the largest relative error of an in-range round trip.
var Float8MaxRelError = math.Exp2(1.0/(2*float8Steps)) - 1

// Float8ToByte quantizes f to one byte.
func Float8ToByte(f float64) byte {
	if !(f > 0) {
		return 0
	}
	code := math.Round(math.Log2(f)*float8Steps) + float8Bias
	switch {
	case code < 1:
		return 1
	case code > 255:
		return 255
	}
	return byte(code)
}

// ByteToFloat8 expands a code produced by Float8ToByte.
func ByteToFloat8(b byte) float64 {
	if b == 0 {
		return 0
	}
	return math.Exp2(float64(int(b)-float8Bias) / float8Steps)
}

// Package moremath holds floating point operations whose LLVM semantics
// differ from the math package.
package moremath

import "math"

// MinNum is llvm.minnum: when exactly one operand is NaN the other one is
// returned, and -0 is less than +0.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L74-L91
func MinNum(x, y float64) float64 {
	switch {
	case math.IsNaN(x):
		return y
	case math.IsNaN(y):
		return x
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// MaxNum is llvm.maxnum, the counterpart of MinNum.
func MaxNum(x, y float64) float64 {
	switch {
	case math.IsNaN(x):
		return y
	case math.IsNaN(y):
		return x
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// FloatToSigned converts f to a signed integer of the given bit width. NaN
// converts to zero and values outside the range saturate.
func FloatToSigned(f float64, bits int) int64 {
	if math.IsNaN(f) {
		return 0
	}
	lo := -math.Ldexp(1, bits-1)
	hi := math.Ldexp(1, bits-1)
	switch {
	case f <= lo:
		return math.MinInt64 >> (64 - bits)
	case f >= hi:
		return math.MaxInt64 >> (64 - bits)
	}
	return int64(f)
}

// FloatToUnsigned converts f to an unsigned integer of the given bit width.
// NaN and negative values convert to zero and large values saturate.
func FloatToUnsigned(f float64, bits int) uint64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= math.Ldexp(1, bits) {
		return math.MaxUint64 >> (64 - bits)
	}
	return uint64(f)
}

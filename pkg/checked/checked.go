// Package checked provides overflow-checked uint64 arithmetic for point
// calculations. Every arithmetic step in the reward path goes through these
// helpers; a false return must abort the operation rather than wrap.
package checked

import "math"

func Add(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

func Mul(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

// Div truncates toward zero. Division by zero is reported as not ok.
func Div(a, b uint64) (uint64, bool) {
	if b == 0 {
		return 0, false
	}
	return a / b, true
}

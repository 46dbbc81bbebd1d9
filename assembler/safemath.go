package assembler

import "math"

// AddSignedToUnsigned adds a signed 64-bit delta to an unsigned accumulator.
// It reports whether the true mathematical result lies in [0, MaxUint64];
// on failure the accumulator is left unchanged. The rhs == MinInt64 case is
// well defined: the magnitude 1<<63 is subtracted when the accumulator is
// large enough.
func AddSignedToUnsigned(lhs *uint64, rhs int64) bool {
	switch {
	case rhs > 0:
		if uint64(rhs) > math.MaxUint64-*lhs {
			return false
		}
		*lhs += uint64(rhs)
	case rhs < 0:
		var magnitude uint64
		if rhs == math.MinInt64 {
			magnitude = 1 << 63
		} else {
			magnitude = uint64(-rhs)
		}
		if *lhs < magnitude {
			return false
		}
		*lhs -= magnitude
	}
	return true
}

// SignedDifference computes lhs - rhs as a signed 64-bit value. It reports
// whether the true difference lies in [MinInt64, MaxInt64]; when
// rhs - lhs == 1<<63 the result is exactly MinInt64.
func SignedDifference(lhs, rhs uint64) (int64, bool) {
	if lhs >= rhs {
		r := lhs - rhs
		if r > math.MaxInt64 {
			return 0, false
		}
		return int64(r), true
	}
	mr := rhs - lhs
	switch {
	case mr-1 > math.MaxInt64:
		return 0, false
	case mr-1 == math.MaxInt64:
		return math.MinInt64, true
	default:
		return -int64(mr), true
	}
}

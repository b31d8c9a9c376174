// Package stableswap solves the two-asset Stableswap invariant
//
//	4A(x+y) + D = 4AD + D^3/(4xy)
//
// with a fixed number of Newton iterations in float64. Results are rounded
// half up into u64. Every product is wrapped in an explicit float64
// conversion so the compiler cannot fuse it into an FMA instruction, which
// keeps results identical on amd64 and arm64.
package stableswap

import "math"

const (
	// AmpCoefficient is the amplification used by every stable pool.
	AmpCoefficient uint64 = 5

	dIterations     = 8
	dyIterations    = 8
	dyExpIterations = 4
)

const maxU64Float = float64(math.MaxUint64)

// CalcD returns the invariant D for reserves x and y. It runs exactly eight
// Newton steps seeded at x+y. ok is false when either reserve is zero or D
// does not fit in u64.
func CalcD(x, y, amp uint64) (d uint64, ok bool) {
	if x == 0 || y == 0 {
		return 0, false
	}
	fx, fy, fa := float64(x), float64(y), float64(amp)
	fd := fx + fy
	xy4 := float64(4 * float64(fx*fy))
	for i := 0; i < dIterations; i++ {
		d2 := float64(fd * fd)
		f := float64(4*fa*(fx+fy-fd)) + fd - float64(fd*d2)/xy4
		df := 1 - 4*fa - float64(3*d2)/xy4
		fd -= f / df
	}
	if fd > maxU64Float {
		return 0, false
	}
	return roundHalfUp(fd), true
}

// CalcDy returns how much y must grow when dx of x leaves the pool while the
// invariant stays at d. The iteration is seeded at y+dx and runs four steps;
// if an iterate drops below y+1 it is clamped there and the budget grows to
// eight steps. ok is false when dx >= x, when the last step still moved the
// iterate by more than one unit, or on overflow.
func CalcDy(x, y, amp, d, dx uint64) (dy uint64, ok bool) {
	if dx >= x {
		return 0, false
	}
	seed := y + dx
	if seed < y {
		return 0, false
	}

	fx := float64(x - dx)
	fa := float64(amp)
	fd := float64(d)
	yMin := float64(y) + 1
	fy := float64(seed)
	d3 := float64(float64(fd*fd) * fd)

	clamped := false
	var step float64
	for i := 0; i < dyIterations; i++ {
		if !clamped && i >= dyExpIterations {
			break
		}
		xy4 := float64(4 * float64(fx*fy))
		f := float64(4*fa*(fx+fy-fd)) + fd - d3/xy4
		df := 4*fa + d3/float64(xy4*fy)
		step = f / df
		fy -= step
		if fy < yMin {
			fy = yMin
			clamped = true
		}
	}

	if math.Abs(step) > 1 {
		return 0, false
	}
	if fy > maxU64Float {
		return 0, false
	}
	return roundHalfUp(fy - float64(y)), true
}

// roundHalfUp converts v+0.5 to u64, saturating at both ends. NaN maps to 0.
func roundHalfUp(v float64) uint64 {
	v += 0.5
	if !(v >= 0) {
		return 0
	}
	if v >= maxU64Float {
		return math.MaxUint64
	}
	return uint64(v)
}

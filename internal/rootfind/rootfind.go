// Package rootfind holds the bracketing root finders shared by the rate
// procedures. Every search has an explicit tolerance and iteration cap and
// reports core.ErrNoConvergence instead of looping.
package rootfind

import (
	"errors"
	"fmt"
	"math"

	"gorates/domain/core"
)

// Options bounds a root search. A search stops once the bracket half width is
// at most XTol + RTol*|x|.
type Options struct {
	XTol    float64
	RTol    float64
	MaxIter int
}

// DefaultOptions is tight enough for the closed-form consistency checks.
func DefaultOptions() Options {
	return Options{XTol: 1e-14, RTol: 1e-12, MaxIter: 200}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.XTol <= 0 && o.RTol <= 0 {
		o.XTol, o.RTol = def.XTol, def.RTol
	}
	if o.MaxIter <= 0 {
		o.MaxIter = def.MaxIter
	}
	return o
}

func (o Options) tol(x float64) float64 {
	return math.Max(o.XTol, 0) + math.Max(o.RTol, 0)*math.Abs(x)
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func checkBracket(fa, fb, a, b float64) error {
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return fmt.Errorf("%w: f is NaN at bracket [%g, %g]", core.ErrNotBracketed, a, b)
	}
	if sameSign(fa, fb) {
		return fmt.Errorf("%w: f(%g)=%g and f(%g)=%g have the same sign", core.ErrNotBracketed, a, fa, b, fb)
	}
	return nil
}

// Brent finds a zero of f in [a, b] using Brent's method (inverse quadratic
// interpolation with bisection fallback). f(a) and f(b) must differ in sign.
func Brent(f func(float64) float64, a, b float64, opts Options) (float64, error) {
	opts = opts.normalized()

	fa, fb := f(a), f(b)
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if err := checkBracket(fa, fb, a, b); err != nil {
		return math.NaN(), err
	}

	c, fc := b, fb
	var d, e float64
	for iter := 0; iter < opts.MaxIter; iter++ {
		if sameSign(fb, fc) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tol1 := 2*epsilon*math.Abs(b) + 0.5*opts.tol(b)
		xm := 0.5 * (c - b)
		if math.Abs(xm) <= tol1 || fb == 0 {
			return b, nil
		}

		if math.Abs(e) >= tol1 && math.Abs(fa) > math.Abs(fb) {
			s := fb / fa
			var p, q float64
			if a == c {
				// secant step
				p = 2 * xm * s
				q = 1 - s
			} else {
				// inverse quadratic interpolation
				q = fa / fc
				r := fb / fc
				p = s * (2*xm*q*(q-r) - (b-a)*(r-1))
				q = (q - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			}
			p = math.Abs(p)
			if 2*p < math.Min(3*xm*q-math.Abs(tol1*q), math.Abs(e*q)) {
				e = d
				d = p / q
			} else {
				d = xm
				e = d
			}
		} else {
			d = xm
			e = d
		}

		a, fa = b, fb
		if math.Abs(d) > tol1 {
			b += d
		} else {
			b += math.Copysign(tol1, xm)
		}
		fb = f(b)
		if math.IsNaN(fb) {
			return math.NaN(), fmt.Errorf("%w: f is NaN at %g", core.ErrNoConvergence, b)
		}
	}
	return b, core.NewNoConvergenceError("brent root search", opts.MaxIter)
}

// Bisect finds a zero of f in [a, b] by interval halving. It is slower than
// Brent but only relies on the sign of f.
func Bisect(f func(float64) float64, a, b float64, opts Options) (float64, error) {
	opts = opts.normalized()

	fa, fb := f(a), f(b)
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if err := checkBracket(fa, fb, a, b); err != nil {
		return math.NaN(), err
	}

	for iter := 0; iter < opts.MaxIter; iter++ {
		m := a + 0.5*(b-a)
		if math.Abs(b-a)*0.5 <= opts.tol(m) {
			return m, nil
		}
		fm := f(m)
		if fm == 0 {
			return m, nil
		}
		if sameSign(fa, fm) {
			a, fa = m, fm
		} else {
			b = m
		}
	}
	return a + 0.5*(b-a), core.NewNoConvergenceError("bisection", opts.MaxIter)
}

// Solve runs Brent and falls back to bisection over the original bracket
// when Brent stops without converging, for example on a NaN step inside the
// bracket. Bracketing errors are returned as is.
func Solve(f func(float64) float64, a, b float64, opts Options) (float64, error) {
	root, err := Brent(f, a, b, opts)
	if err == nil || errors.Is(err, core.ErrNotBracketed) {
		return root, err
	}
	return Bisect(f, a, b, opts)
}

// Bracket walks away from x0 with a step that doubles on every iteration
// until f changes sign. A negative step walks downwards. The returned pair is
// ordered lo < hi.
func Bracket(f func(float64) float64, x0, step float64, maxIter int) (lo, hi float64, err error) {
	if step == 0 || math.IsNaN(step) {
		return 0, 0, core.NewInvalidArgumentError("step", "must be non-zero")
	}
	if maxIter <= 0 {
		maxIter = DefaultOptions().MaxIter
	}

	f0 := f(x0)
	if f0 == 0 {
		return x0, x0, nil
	}
	prev := x0
	for iter := 0; iter < maxIter; iter++ {
		x := prev + step
		fx := f(x)
		if fx == 0 || (!math.IsNaN(fx) && !sameSign(f0, fx)) {
			if x < prev {
				return x, prev, nil
			}
			return prev, x, nil
		}
		prev = x
		step *= 2
	}
	return 0, 0, fmt.Errorf("%w: no sign change from %g after %d steps", core.ErrNotBracketed, x0, maxIter)
}

const epsilon = 2.220446049250313e-16

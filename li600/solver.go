package li600

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Raw output of the root finder for one observation. Transient; owned by the
// solver invocation.
type SolveResult struct {
	X         []float64 // solution vector
	Residuals []float64 // residual vector at X
	SSR       float64   // sum of squared residuals
	Converged bool
}

const (
	// convergence criterion on the sum of squared residuals, matching the
	// fsolve acceptance check of the reference tool
	solveTolerance = 1e-10
	solveMaxIter   = 200
)

// """Find a root of the system fn(x) = 0 starting from x0.
//
// Args:
//
//	fn: writes the residual vector for x into out (len(out) == len(x))
//	x0: initial guess
//
// Returns:
//
//	SolveResult: Converged is false on non-finite residuals, on a singular
//	Jacobian, or when the iteration cap runs out above tolerance.
//
// A damped Newton iteration with a forward-difference Jacobian. Stands in
// for the hybrid-Powell solver behind scipy.optimize.fsolve; the square
// systems here are 1x1 or 3x3 and well scaled, so a line-searched Newton
// reaches the same roots.
// """
func SolveSystem(fn func(out, x []float64), x0 []float64) SolveResult {
	n := len(x0)
	x := make([]float64, n)
	copy(x, x0)

	r := make([]float64, n)
	rNew := make([]float64, n)
	xNew := make([]float64, n)
	jac := mat.NewDense(n, n, nil)
	step := mat.NewVecDense(n, nil)

	fn(r, x)
	ssr := floats.Dot(r, r)

	for iter := 0; iter < solveMaxIter; iter++ {
		if !allFinite(r) {
			return SolveResult{X: x, Residuals: r, SSR: math.NaN()}
		}
		if ssr < solveTolerance {
			return SolveResult{X: x, Residuals: r, SSR: ssr, Converged: true}
		}

		fd.Jacobian(jac, fn, x, nil)
		var lu mat.LU
		lu.Factorize(jac)
		if err := lu.SolveVecTo(step, false, mat.NewVecDense(n, r)); err != nil {
			// singular Jacobian
			return SolveResult{X: x, Residuals: r, SSR: ssr}
		}

		// backtracking on the residual norm keeps the iterate from
		// overshooting into the non-physical branch of Es
		lambda := 1.0
		improved := false
		for k := 0; k < 40; k++ {
			for i := 0; i < n; i++ {
				xNew[i] = x[i] - lambda*step.AtVec(i)
			}
			fn(rNew, xNew)
			if allFinite(rNew) && floats.Dot(rNew, rNew) < ssr {
				improved = true
				break
			}
			lambda *= 0.5
		}
		if !improved {
			return SolveResult{X: x, Residuals: r, SSR: ssr}
		}
		copy(x, xNew)
		copy(r, rNew)
		ssr = floats.Dot(r, r)
	}

	return SolveResult{X: x, Residuals: r, SSR: ssr, Converged: ssr < solveTolerance}
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

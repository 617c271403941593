package li600

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SolveSystem_Scalar(t *testing.T) {
	// x^2 - 4 = 0 from x0 = 1
	res := SolveSystem(func(out, x []float64) {
		out[0] = x[0]*x[0] - 4
	}, []float64{1})

	assert.True(t, res.Converged)
	assert.InDelta(t, 2.0, res.X[0], 1e-5)
	assert.Less(t, res.SSR, solveTolerance)
}

func Test_SolveSystem_Linear2D(t *testing.T) {
	// x + y = 3, x - y = 1
	res := SolveSystem(func(out, x []float64) {
		out[0] = x[0] + x[1] - 3
		out[1] = x[0] - x[1] - 1
	}, []float64{0, 0})

	assert.True(t, res.Converged)
	assert.InDelta(t, 2.0, res.X[0], 1e-6)
	assert.InDelta(t, 1.0, res.X[1], 1e-6)
}

func Test_SolveSystem_Coupled3D(t *testing.T) {
	// same shape as the correction system: one equation fixes x1, the others
	// couple the remaining unknowns
	res := SolveSystem(func(out, x []float64) {
		out[0] = x[1] - 2
		out[1] = x[1] - x[0]*x[2]
		out[2] = x[0] + x[2] - 3
	}, []float64{0.5, 1, 0.5})

	assert.True(t, res.Converged)
	assert.InDelta(t, 2.0, res.X[1], 1e-5)
	assert.InDelta(t, 3.0, res.X[0]+res.X[2], 1e-5)
	assert.InDelta(t, res.X[0]*res.X[2], 2.0, 1e-5)
}

// Non-finite residuals terminate without converging and without panicking.
func Test_SolveSystem_NonFinite(t *testing.T) {
	res := SolveSystem(func(out, x []float64) {
		out[0] = math.NaN()
	}, []float64{1})

	assert.False(t, res.Converged)
}

// A flat system has a singular Jacobian everywhere; the solver must report
// failure instead of diverging or panicking.
func Test_SolveSystem_SingularJacobian(t *testing.T) {
	res := SolveSystem(func(out, x []float64) {
		out[0] = 1.0
	}, []float64{1})

	assert.False(t, res.Converged)
	assert.InDelta(t, 1.0, res.SSR, 1e-12)
}

// Starting at the root returns immediately.
func Test_SolveSystem_AtRoot(t *testing.T) {
	res := SolveSystem(func(out, x []float64) {
		out[0] = x[0] - 5
	}, []float64{5})

	assert.True(t, res.Converged)
	assert.Equal(t, 5.0, res.X[0])
}

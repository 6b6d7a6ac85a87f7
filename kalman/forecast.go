package kalman

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaxSteps bounds the forecast loop.
const MaxSteps = 1 << 16

// Steps returns how many model iterations cover seconds at an update rate of
// hz, capped at MaxSteps. Negative or NaN inputs yield zero.
func Steps(seconds, hz float64) int {
	n := math.Round(seconds * hz)
	if n <= 0 || math.IsNaN(n) {
		return 0
	}
	if n > MaxSteps {
		return MaxSteps
	}
	return int(n)
}

// Extrapolate applies x = A·x + B·u for round(predictionSeconds·hz)
// iterations starting at x. Covariance is not propagated. With zero
// iterations x is returned unchanged.
func Extrapolate(A, B Matrix4, x, u Vector4, predictionSeconds, hz float64) Vector4 {
	n := Steps(predictionSeconds, hz)
	if n == 0 {
		return x
	}
	Ad := A.Dense()
	var Bu mat.VecDense
	Bu.MulVec(B.Dense(), u.VecDense())

	cur := x.VecDense()
	next := mat.NewVecDense(Dim, nil)
	for i := 0; i < n; i++ {
		next.MulVec(Ad, cur)
		next.AddVec(next, &Bu)
		cur, next = next, cur
	}
	return vectorFrom(cur)
}

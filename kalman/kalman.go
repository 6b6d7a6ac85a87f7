// Package kalman implements the discrete linear Kalman filter recursion on
// fixed 4-dimensional position/velocity states, and an open-loop forecast
// that iterates the transition model without new measurements.
package kalman

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularInnovationCovariance is returned by Correct when S = H·P'·Hᵗ + R
// cannot be inverted.
var ErrSingularInnovationCovariance = errors.New("kalman: singular innovation covariance")

// Prediction is the a-priori estimate x', P'.
type Prediction struct {
	State      Vector4
	Covariance Matrix4
}

// Correction is the a-posteriori estimate x'', P'' together with the
// intermediate quantities of the update.
type Correction struct {
	State      Vector4
	Covariance Matrix4
	Gain       Matrix4
	Innovation Vector4
}

// Predict advances the estimate through the model:
//
//	x' = A·x + B·u
//	P' = A·P·Aᵗ + Q
func Predict(x Vector4, P, A, B, Q Matrix4, u Vector4) Prediction {
	Ad := A.Dense()

	var Ax, Bu mat.VecDense
	Ax.MulVec(Ad, x.VecDense())
	Bu.MulVec(B.Dense(), u.VecDense())
	Ax.AddVec(&Ax, &Bu)

	var APAt mat.Dense
	APAt.Product(Ad, P.Dense(), Ad.T())
	APAt.Add(&APAt, Q.Dense())

	return Prediction{
		State:      vectorFrom(&Ax),
		Covariance: matrixFrom(&APAt),
	}
}

// Correct fuses measurement m into the prediction p:
//
//	S   = H·P'·Hᵗ + R
//	K   = P'·Hᵗ·S⁻¹
//	x'' = x' + K·(m − H·x')
//	P'' = (I − K·H)·P'
//
// When S is singular or too ill-conditioned to invert, Correct returns
// ErrSingularInnovationCovariance and a zero Correction; callers are
// expected to keep the prediction for that step. Only the condition of S
// matters, so a tiny but well-scaled S is inverted.
func Correct(p Prediction, H, R Matrix4, m Vector4) (Correction, error) {
	Hd := H.Dense()
	Pd := p.Covariance.Dense()

	var S mat.Dense
	S.Product(Hd, Pd, Hd.T())
	S.Add(&S, R.Dense())

	if !matrixFrom(&S).IsFinite() {
		return Correction{}, ErrSingularInnovationCovariance
	}
	var Sinv mat.Dense
	if err := Sinv.Inverse(&S); err != nil {
		// mat.Condition is reported for both exactly singular and
		// ill-conditioned S.
		return Correction{}, ErrSingularInnovationCovariance
	}

	var K mat.Dense
	K.Product(Pd, Hd.T(), &Sinv)

	var innovation mat.VecDense
	innovation.MulVec(Hd, p.State.VecDense())
	innovation.SubVec(m.VecDense(), &innovation)

	var x mat.VecDense
	x.MulVec(&K, &innovation)
	x.AddVec(p.State.VecDense(), &x)

	var IKH mat.Dense
	IKH.Mul(&K, Hd)
	IKH.Sub(Identity().Dense(), &IKH)
	var P mat.Dense
	P.Mul(&IKH, Pd)

	return Correction{
		State:      vectorFrom(&x),
		Covariance: matrixFrom(&P),
		Gain:       matrixFrom(&K),
		Innovation: vectorFrom(&innovation),
	}, nil
}

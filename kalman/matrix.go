package kalman

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Dim is the fixed size of every state, measurement and model matrix.
const Dim = 4

// State vector indices.
const (
	PosX = 0
	PosY = 1
	VelX = 2
	VelY = 3
)

// Vector4 is a state estimate or a measurement, ordered [posX, posY, velX, velY].
type Vector4 [Dim]float64

// Matrix4 is a row-major 4x4 matrix. It is a value type, so assigning it copies it.
type Matrix4 [Dim][Dim]float64

// Identity returns the 4x4 identity matrix.
func Identity() Matrix4 {
	var m Matrix4
	for i := 0; i < Dim; i++ {
		m[i][i] = 1
	}
	return m
}

// Diagonal returns a matrix with the given values on its diagonal.
func Diagonal(a, b, c, d float64) Matrix4 {
	var m Matrix4
	m[0][0], m[1][1], m[2][2], m[3][3] = a, b, c, d
	return m
}

// TransitionMatrix returns the constant-velocity model for a timestep of dt,
// i.e. the identity with dt coupling each velocity into its position.
func TransitionMatrix(dt float64) Matrix4 {
	m := Identity()
	m[PosX][VelX] = dt
	m[PosY][VelY] = dt
	return m
}

// Timestep reads back the velocity coupling of a constant-velocity transition
// matrix. It returns false when m does not have that shape.
func (m Matrix4) Timestep() (float64, bool) {
	dt := m[PosX][VelX]
	if m[PosY][VelY] != dt {
		return 0, false
	}
	want := TransitionMatrix(dt)
	return dt, m == want
}

// Transpose returns mᵗ.
func (m Matrix4) Transpose() Matrix4 {
	var out Matrix4
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// IsFinite reports whether no element is NaN or ±Inf.
func (m Matrix4) IsFinite() bool {
	for i := 0; i < Dim; i++ {
		if !Vector4(m[i]).IsFinite() {
			return false
		}
	}
	return true
}

// IsFinite reports whether no element is NaN or ±Inf.
func (v Vector4) IsFinite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Dense converts m to a gonum matrix.
func (m Matrix4) Dense() *mat.Dense {
	data := make([]float64, 0, Dim*Dim)
	for i := 0; i < Dim; i++ {
		data = append(data, m[i][:]...)
	}
	return mat.NewDense(Dim, Dim, data)
}

// VecDense converts v to a gonum vector.
func (v Vector4) VecDense() *mat.VecDense {
	data := make([]float64, Dim)
	copy(data, v[:])
	return mat.NewVecDense(Dim, data)
}

func matrixFrom(a mat.Matrix) Matrix4 {
	var m Matrix4
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			m[i][j] = a.At(i, j)
		}
	}
	return m
}

func vectorFrom(a mat.Vector) Vector4 {
	var v Vector4
	for i := 0; i < Dim; i++ {
		v[i] = a.AtVec(i)
	}
	return v
}

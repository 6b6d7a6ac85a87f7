package sim

import (
	"fmt"
	"strings"

	"kfsim-go/kalman"
)

// DefaultTimestep is the velocity-to-position coupling of the default A, in
// seconds per tick.
const DefaultTimestep = 0.2

const (
	DefaultNoiseAmount       = 5.0
	DefaultPredictionSeconds = 2.0
)

// MatrixKey names one of the user-editable model matrices.
type MatrixKey string

const (
	MatrixA MatrixKey = "A" // state transition
	MatrixB MatrixKey = "B" // control input
	MatrixH MatrixKey = "H" // measurement
	MatrixQ MatrixKey = "Q" // process noise covariance
	MatrixR MatrixKey = "R" // measurement noise covariance
)

var MatrixKeys = []MatrixKey{MatrixA, MatrixB, MatrixH, MatrixQ, MatrixR}

// ParseMatrixKey accepts the key in either case.
func ParseMatrixKey(s string) (MatrixKey, error) {
	k := MatrixKey(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range MatrixKeys {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown matrix %q", s)
}

// Matrices are the filter model.
type Matrices struct {
	A kalman.Matrix4 `json:"A" yaml:"A"`
	B kalman.Matrix4 `json:"B" yaml:"B"`
	H kalman.Matrix4 `json:"H" yaml:"H"`
	Q kalman.Matrix4 `json:"Q" yaml:"Q"`
	R kalman.Matrix4 `json:"R" yaml:"R"`
}

// DefaultMatrices returns the constant-velocity model with timestep dt.
func DefaultMatrices(dt float64) Matrices {
	return Matrices{
		A: kalman.TransitionMatrix(dt),
		B: kalman.Identity(),
		H: kalman.Identity(),
		Q: kalman.Diagonal(0.001, 0.001, 0, 0),
		R: kalman.Diagonal(0.1, 0.1, 0.1, 0.1),
	}
}

// Get returns the matrix named by k.
func (m Matrices) Get(k MatrixKey) kalman.Matrix4 {
	switch k {
	case MatrixA:
		return m.A
	case MatrixB:
		return m.B
	case MatrixH:
		return m.H
	case MatrixQ:
		return m.Q
	case MatrixR:
		return m.R
	}
	return kalman.Matrix4{}
}

// With returns a copy of m with the matrix named by k replaced.
func (m Matrices) With(k MatrixKey, v kalman.Matrix4) Matrices {
	switch k {
	case MatrixA:
		m.A = v
	case MatrixB:
		m.B = v
	case MatrixH:
		m.H = v
	case MatrixQ:
		m.Q = v
	case MatrixR:
		m.R = v
	}
	return m
}

// Controls are the operator-tunable parameters.
type Controls struct {
	IsRunning         bool     `json:"isRunning" yaml:"running"`
	Matrices          Matrices `json:"matrices" yaml:"matrices"`
	NoiseAmount       float64  `json:"noiseAmount" yaml:"noise"`
	PredictionSeconds float64  `json:"predictionSeconds" yaml:"predictionSeconds"`
	ShowPrediction    bool     `json:"showPrediction" yaml:"showPrediction"`
	// Timestep is the dt embedded in the default A. It is updated when an
	// edited A still has the constant-velocity shape.
	Timestep float64 `json:"timestep" yaml:"timestep"`
	// RefreshToken increases on every reset so input widgets redraw.
	RefreshToken uint64 `json:"matrixInputsRefCounter" yaml:"-"`
}

// DefaultControls returns the startup parameters.
func DefaultControls() Controls {
	return Controls{
		Matrices:          DefaultMatrices(DefaultTimestep),
		NoiseAmount:       DefaultNoiseAmount,
		PredictionSeconds: DefaultPredictionSeconds,
		ShowPrediction:    true,
		Timestep:          DefaultTimestep,
	}
}

// Sanitized clamps negative or NaN scalar parameters to zero.
func (c Controls) Sanitized() Controls {
	c.NoiseAmount = nonNegative(c.NoiseAmount)
	c.PredictionSeconds = nonNegative(c.PredictionSeconds)
	return c
}

// WithMatrix replaces one model matrix.
func (c Controls) WithMatrix(k MatrixKey, m kalman.Matrix4) Controls {
	c.Matrices = c.Matrices.With(k, m)
	if k == MatrixA {
		if dt, ok := m.Timestep(); ok && dt > 0 {
			c.Timestep = dt
		}
	}
	return c
}

// Reset returns the default controls, including the default timestep and
// matrices. Only the running flag survives, and RefreshToken is bumped.
func (c Controls) Reset() Controls {
	out := DefaultControls()
	out.IsRunning = c.IsRunning
	out.RefreshToken = c.RefreshToken + 1
	return out
}

// ControlsUpdate is a partial change; nil fields are left alone.
type ControlsUpdate struct {
	IsRunning         *bool     `json:"isRunning,omitempty"`
	Matrices          *Matrices `json:"matrices,omitempty"`
	NoiseAmount       *float64  `json:"noiseAmount,omitempty"`
	PredictionSeconds *float64  `json:"predictionSeconds,omitempty"`
	ShowPrediction    *bool     `json:"showPrediction,omitempty"`
	Timestep          *float64  `json:"timestep,omitempty"`
}

// Apply merges u into c. Setting Timestep rebuilds A from it.
func (c Controls) Apply(u ControlsUpdate) Controls {
	if u.IsRunning != nil {
		c.IsRunning = *u.IsRunning
	}
	if u.Matrices != nil {
		for _, k := range MatrixKeys {
			c = c.WithMatrix(k, u.Matrices.Get(k))
		}
	}
	if u.NoiseAmount != nil {
		c.NoiseAmount = *u.NoiseAmount
	}
	if u.PredictionSeconds != nil {
		c.PredictionSeconds = *u.PredictionSeconds
	}
	if u.ShowPrediction != nil {
		c.ShowPrediction = *u.ShowPrediction
	}
	if u.Timestep != nil {
		c.Timestep = *u.Timestep
		c.Matrices.A = kalman.TransitionMatrix(c.Timestep)
	}
	return c.Sanitized()
}

func nonNegative(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

package sim

import (
	"kfsim-go/kalman"
	"kfsim-go/noise"
)

// MeasurementBuilder turns a cursor position into a noisy measurement
// vector [x, y, dx, dy].
type MeasurementBuilder struct {
	Noise noise.Model
}

// Build perturbs x and y independently and differences them against the
// previous measurement. The velocity is in pixels per tick, not per second;
// A and Q must be parameterized on the same scale.
func (b MeasurementBuilder) Build(pos Point, prev kalman.Vector4, amount float64) kalman.Vector4 {
	model := b.Noise
	if model == nil {
		model = noise.None{}
	}
	x := model.Perturb(pos.X, amount)
	y := model.Perturb(pos.Y, amount)
	return kalman.Vector4{x, y, x - prev[kalman.PosX], y - prev[kalman.PosY]}
}

// Package sim runs one discrete update of the tracking simulation: it builds
// a measurement from the cursor, filters it and optionally forecasts ahead.
package sim

import (
	"errors"

	"kfsim-go/kalman"
	"kfsim-go/noise"
)

// ErrNonFiniteCorrection is returned when the correction step produced NaN or
// Inf values and the prediction was kept instead.
var ErrNonFiniteCorrection = errors.New("sim: correction produced non-finite values")

// ErrDiverged is returned when the prediction itself was not finite and the
// estimate was restarted from zero.
var ErrDiverged = errors.New("sim: estimate diverged, restarted")

// ErrNonFiniteForecast is returned when the forecast overflowed. The
// snapshot then carries no future state.
var ErrNonFiniteForecast = errors.New("sim: forecast produced non-finite values")

// Engine computes ticks. It keeps no state between ticks apart from the
// random source consumed by its noise model.
type Engine struct {
	builder  MeasurementBuilder
	updateHz float64
}

// NewEngine returns an engine whose forecasts assume updateHz ticks per
// second.
func NewEngine(model noise.Model, updateHz float64) *Engine {
	if !(updateHz > 0) {
		updateHz = 0
	}
	return &Engine{
		builder:  MeasurementBuilder{Noise: model},
		updateHz: updateHz,
	}
}

func (e *Engine) UpdateHz() float64 { return e.updateHz }

// Tick produces the snapshot following s. raw is the newest cursor position,
// or nil to reuse s.RealPosition.
//
// A non-nil error is a warning: the returned snapshot is always usable. When
// the innovation covariance is singular the error is
// kalman.ErrSingularInnovationCovariance and the snapshot carries the
// uncorrected prediction.
func (e *Engine) Tick(s Snapshot, raw *Point) (Snapshot, error) {
	c := s.Controls.Sanitized()
	mats := c.Matrices

	pos := s.RealPosition
	if raw != nil {
		pos = *raw
	}
	prev := s.Sensor.Measurement
	m := e.builder.Build(pos, prev, c.NoiseAmount)

	next := Snapshot{
		Controls:     s.Controls,
		RealPosition: pos,
		Sensor:       SensorReadings{Measurement: m, Previous: prev},
		Tick:         s.Tick + 1,
	}

	var control kalman.Vector4
	var warn error

	pred := kalman.Predict(s.EstimatedState, s.EstimatedCovariance, mats.A, mats.B, mats.Q, control)
	if !pred.State.IsFinite() || !pred.Covariance.IsFinite() {
		pred = kalman.Prediction{}
		warn = ErrDiverged
	}
	next.EstimatedState = pred.State
	next.EstimatedCovariance = pred.Covariance

	if warn == nil {
		corr, err := kalman.Correct(pred, mats.H, mats.R, m)
		switch {
		case err != nil:
			warn = err
		case !corr.State.IsFinite() || !corr.Covariance.IsFinite():
			warn = ErrNonFiniteCorrection
		default:
			next.EstimatedState = corr.State
			next.EstimatedCovariance = corr.Covariance
			next.Corrected = true
		}
	}
	if c.ShowPrediction {
		f := kalman.Extrapolate(mats.A, mats.B, next.EstimatedState, control, c.PredictionSeconds, e.updateHz)
		if f.IsFinite() {
			next.FutureState = &f
		} else if warn == nil {
			warn = ErrNonFiniteForecast
		}
	}
	if warn != nil {
		next.Warning = warn.Error()
	}
	return next, warn
}

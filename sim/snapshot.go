package sim

import (
	"kfsim-go/kalman"
)

// Point is a position in canvas pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Equal(o Point) bool { return p.X == o.X && p.Y == o.Y }

// SensorReadings holds the two most recent measurements; their difference
// is the measured velocity.
type SensorReadings struct {
	Measurement kalman.Vector4 `json:"measurementVector"`
	Previous    kalman.Vector4 `json:"previousMeasurementVector"`
}

// Snapshot is the complete simulation state after one tick. A Snapshot is
// never modified once returned; every operation builds a new one. FutureState
// is shared between copies and must not be written through.
//
// EstimatedState and EstimatedCovariance hold the corrected (a-posteriori)
// estimate. They keep the JSON names predictedState and predictedCovariance
// that render clients read.
type Snapshot struct {
	Controls            Controls        `json:"controls"`
	EstimatedState      kalman.Vector4  `json:"predictedState"`
	EstimatedCovariance kalman.Matrix4  `json:"predictedCovariance"`
	FutureState         *kalman.Vector4 `json:"predictedFutureState,omitempty"`
	RealPosition        Point           `json:"realPosition"`
	Sensor              SensorReadings  `json:"sensorReadings"`

	Tick      uint64 `json:"tick"`
	Corrected bool   `json:"corrected"`
	Warning   string `json:"warning,omitempty"`
}

// Initial returns the startup snapshot: zero state, zero covariance.
func Initial(c Controls) Snapshot {
	return Snapshot{Controls: c.Sanitized()}
}

// Future returns the forecast position, if one was computed.
func (s Snapshot) Future() (kalman.Vector4, bool) {
	if s.FutureState == nil {
		return kalman.Vector4{}, false
	}
	return *s.FutureState, true
}

// WithControls returns s with u applied to its controls.
func (s Snapshot) WithControls(u ControlsUpdate) Snapshot {
	s.Controls = s.Controls.Apply(u)
	return s
}

// WithMatrix returns s with one model matrix replaced.
func (s Snapshot) WithMatrix(k MatrixKey, m kalman.Matrix4) Snapshot {
	s.Controls = s.Controls.WithMatrix(k, m)
	return s
}

// Reset restores default controls. The running flag, the estimate and the
// position history are kept.
func (s Snapshot) Reset() Snapshot {
	s.Controls = s.Controls.Reset()
	return s
}

// Restart discards the estimate and sensor history but keeps the controls
// and the last known position.
func (s Snapshot) Restart() Snapshot {
	return Snapshot{
		Controls:     s.Controls,
		RealPosition: s.RealPosition,
		Tick:         s.Tick,
	}
}

package server

import (
	"io"

	metrics "github.com/rcrowley/go-metrics"
)

// Metrics groups the counters shared by the runner, the UDP listener and the
// web hub. Each instance owns its registry so tests do not collide.
type Metrics struct {
	Registry metrics.Registry

	Ticks          metrics.Counter
	DegradedTicks  metrics.Counter
	Restarts       metrics.Counter
	Samples        metrics.Counter
	DroppedSamples metrics.Counter
	Frames         metrics.Counter
	FrameErrors    metrics.Counter
	Clients        metrics.Gauge
	TickTime       metrics.Timer
}

func NewMetrics() *Metrics {
	r := metrics.NewRegistry()
	return &Metrics{
		Registry:       r,
		Ticks:          metrics.NewRegisteredCounter("kfsim.ticks", r),
		DegradedTicks:  metrics.NewRegisteredCounter("kfsim.ticks.degraded", r),
		Restarts:       metrics.NewRegisteredCounter("kfsim.restarts", r),
		Samples:        metrics.NewRegisteredCounter("kfsim.samples", r),
		DroppedSamples: metrics.NewRegisteredCounter("kfsim.samples.dropped", r),
		Frames:         metrics.NewRegisteredCounter("kfsim.udp.frames", r),
		FrameErrors:    metrics.NewRegisteredCounter("kfsim.udp.errors", r),
		Clients:        metrics.NewRegisteredGauge("kfsim.ws.clients", r),
		TickTime:       metrics.NewRegisteredTimer("kfsim.tick.duration", r),
	}
}

// WriteJSON dumps the registry once.
func (m *Metrics) WriteJSON(w io.Writer) {
	metrics.WriteJSONOnce(m.Registry, w)
}

package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"kfsim-go/config"
	"kfsim-go/kalman"
	"kfsim-go/logging"
	"kfsim-go/sim"
)

const (
	cursorQueueSize  = 256
	commandQueueSize = 32
)

var (
	ErrRunnerStopped = errors.New("runner stopped")
	ErrRunnerStarted = errors.New("runner already started")
)

type command func(sim.Snapshot) sim.Snapshot

// Runner owns the current snapshot. Run is the only goroutine that calls the
// engine or replaces the snapshot; everything else talks to it through
// channels and reads the last published value through Current.
//
// Input sampling, filter updates and rendering run on separate tickers so a
// burst of cursor events never delays a tick.
type Runner struct {
	engine  *sim.Engine
	loop    config.LoopConfig
	metrics *Metrics

	cursor   chan sim.Point
	commands chan command
	done     chan struct{}
	started  atomic.Bool

	current atomic.Pointer[sim.Snapshot]

	mu          sync.Mutex
	subscribers []func(sim.Snapshot)
}

func NewRunner(engine *sim.Engine, controls sim.Controls, loop config.LoopConfig, m *Metrics) *Runner {
	if m == nil {
		m = NewMetrics()
	}
	r := &Runner{
		engine:   engine,
		loop:     loop,
		metrics:  m,
		cursor:   make(chan sim.Point, cursorQueueSize),
		commands: make(chan command, commandQueueSize),
		done:     make(chan struct{}),
	}
	r.store(sim.Initial(controls))
	return r
}

func (r *Runner) store(s sim.Snapshot) { r.current.Store(&s) }

func (r *Runner) Metrics() *Metrics { return r.metrics }

// Subscribe registers fn to receive snapshots from the render loop. fn runs on
// the runner goroutine and must not block.
func (r *Runner) Subscribe(fn func(sim.Snapshot)) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

// Current returns the most recent snapshot.
func (r *Runner) Current() sim.Snapshot {
	return *r.current.Load()
}

// SubmitCursor queues a raw cursor position. It never blocks; when the queue
// is full the sample is dropped.
func (r *Runner) SubmitCursor(p sim.Point) bool {
	select {
	case r.cursor <- p:
		return true
	default:
		r.metrics.DroppedSamples.Inc(1)
		return false
	}
}

// UpdateControls validates u and applies it to the next snapshot.
func (r *Runner) UpdateControls(u sim.ControlsUpdate) error {
	if err := config.ValidateUpdate(u); err != nil {
		return err
	}
	return r.send(func(s sim.Snapshot) sim.Snapshot { return s.WithControls(u) })
}

func (r *Runner) SetMatrix(k sim.MatrixKey, m kalman.Matrix4) error {
	if !m.IsFinite() {
		return config.ErrInvalidParameter
	}
	return r.send(func(s sim.Snapshot) sim.Snapshot { return s.WithMatrix(k, m) })
}

func (r *Runner) SetRunning(on bool) error {
	return r.UpdateControls(sim.ControlsUpdate{IsRunning: &on})
}

// Reset restores default controls.
func (r *Runner) Reset() error {
	return r.send(func(s sim.Snapshot) sim.Snapshot { return s.Reset() })
}

// Restart zeroes the estimate.
func (r *Runner) Restart() error {
	return r.send(func(s sim.Snapshot) sim.Snapshot {
		r.metrics.Restarts.Inc(1)
		return s.Restart()
	})
}

func (r *Runner) send(c command) error {
	select {
	case <-r.done:
		return ErrRunnerStopped
	default:
	}
	select {
	case r.commands <- c:
		return nil
	case <-r.done:
		return ErrRunnerStopped
	}
}

// Run drives the loops until ctx is cancelled. A Runner runs once; later
// calls return ErrRunnerStarted.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunnerStarted
	}
	defer close(r.done)
	lg := logging.GetLog("runner")

	sample := time.NewTicker(period(r.loop.SampleHz))
	defer sample.Stop()
	update := time.NewTicker(period(r.loop.UpdateHz))
	defer update.Stop()
	render := time.NewTicker(period(r.loop.RenderHz))
	defer render.Stop()

	lg.Infof("runner started update=%vHz sample=%vHz render=%vHz", r.loop.UpdateHz, r.loop.SampleHz, r.loop.RenderHz)

	var (
		latest   sim.Point
		pending  bool
		dirty    = true
		lastWarn string
		snap     = r.Current()
	)

	for {
		select {
		case <-ctx.Done():
			lg.Info("runner stopped")
			return ctx.Err()

		case c := <-r.commands:
			snap = c(snap)
			r.store(snap)
			dirty = true

		case <-sample.C:
		drain:
			for {
				select {
				case p := <-r.cursor:
					latest, pending = p, true
					r.metrics.Samples.Inc(1)
				default:
					break drain
				}
			}

		case <-update.C:
			if !snap.Controls.IsRunning {
				continue
			}
			var raw *sim.Point
			if pending {
				p := latest
				raw = &p
				pending = false
			}
			start := time.Now()
			next, err := r.engine.Tick(snap, raw)
			r.metrics.TickTime.UpdateSince(start)
			r.metrics.Ticks.Inc(1)
			if err != nil {
				r.metrics.DegradedTicks.Inc(1)
				if errors.Is(err, sim.ErrDiverged) {
					r.metrics.Restarts.Inc(1)
				}
			}
			if next.Warning != lastWarn {
				if next.Warning != "" {
					lg.Warnf("tick %d degraded: %s", next.Tick, next.Warning)
				} else {
					lg.Infof("tick %d corrected again", next.Tick)
				}
				lastWarn = next.Warning
			}
			snap = next
			r.store(snap)
			dirty = true

		case <-render.C:
			if !dirty {
				continue
			}
			dirty = false
			r.publish(snap)
		}
	}
}

func (r *Runner) publish(s sim.Snapshot) {
	r.mu.Lock()
	subs := r.subscribers
	r.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func period(hz float64) time.Duration {
	if !(hz > 0) {
		hz = 1
	}
	d := time.Duration(float64(time.Second) / hz)
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

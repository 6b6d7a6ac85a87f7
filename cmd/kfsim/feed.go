package main

import (
	"fmt"
	"math"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"kfsim-go/logging"
	"kfsim-go/server"
	"kfsim-go/sim"
)

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Send a synthetic cursor trajectory to a running server over UDP",
		RunE:  feed,
	}
	cmd.Flags().String("dest", "127.0.0.1:44333", "Destination UDP address")
	cmd.Flags().String("shape", "circle", "circle, line or eight")
	cmd.Flags().Float64("rate", 60, "Frames per second")
	cmd.Flags().Float64("period", 8, "Seconds per lap")
	cmd.Flags().Duration("duration", 0, "Stop after this long, 0 to run until interrupted")
	cmd.Flags().Int("batch", 1, "Frames per datagram")
	cmd.Flags().Bool("start", true, "Send a run frame first")
	return cmd
}

func feed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dest, _ := cmd.Flags().GetString("dest")
	shape, _ := cmd.Flags().GetString("shape")
	rate, _ := cmd.Flags().GetFloat64("rate")
	period, _ := cmd.Flags().GetFloat64("period")
	duration, _ := cmd.Flags().GetDuration("duration")
	batch, _ := cmd.Flags().GetInt("batch")
	start, _ := cmd.Flags().GetBool("start")

	traj, err := newTrajectory(shape, float64(cfg.Server.Width), float64(cfg.Server.Height), period)
	if err != nil {
		return err
	}
	if !(rate > 0) {
		return fmt.Errorf("--rate must be positive")
	}
	if batch < 1 {
		batch = 1
	}

	raddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return errors.Wrap(err, "invalid dest address")
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return errors.Wrap(err, "dial failed")
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg := logging.GetLog("feed")
	var seq uint32
	if start {
		seq++
		if _, err := conn.Write(server.PackageRun(seq, true)); err != nil {
			return errors.Wrap(err, "send run frame")
		}
	}

	lg.Infof("Feeding %s trajectory to %s at %.0f Hz...", shape, dest, rate)
	interval := time.Duration(float64(time.Second) / rate)
	startReal := time.Now()
	count := 0
	var pkt []byte
	for i := 0; ; i++ {
		// Timing logic
		target := time.Duration(i) * interval
		if duration > 0 && target >= duration {
			break
		}
		if elapsed := time.Since(startReal); target > elapsed {
			select {
			case <-ctx.Done():
				fmt.Printf("\nStopped. Sent %d datagrams.\n", count)
				return nil
			case <-time.After(target - elapsed):
			}
		}

		seq++
		pkt = append(pkt, server.PackageCursor(seq, traj(target.Seconds()))...)
		if (i+1)%batch != 0 {
			continue
		}
		if _, err := conn.Write(pkt); err != nil {
			lg.Warnf("Write error: %v", err)
		}
		pkt = pkt[:0]
		count++
		if count%1000 == 0 {
			fmt.Printf("\rSent %d datagrams...", count)
		}
	}
	if len(pkt) > 0 {
		conn.Write(pkt)
		count++
	}
	fmt.Printf("\nDone. Sent %d datagrams.\n", count)
	return nil
}

// newTrajectory returns the cursor position at t seconds for a shape that
// fits a width x height canvas and completes one lap every period seconds.
func newTrajectory(shape string, width, height, period float64) (func(t float64) sim.Point, error) {
	if !(period > 0) {
		return nil, fmt.Errorf("period must be positive")
	}
	cx, cy := width/2, height/2
	r := math.Min(width, height) * 0.4
	w := 2 * math.Pi / period
	switch shape {
	case "circle":
		return func(t float64) sim.Point {
			return sim.Point{X: cx + r*math.Cos(w*t), Y: cy + r*math.Sin(w*t)}
		}, nil
	case "line":
		// back and forth along the horizontal centre line
		return func(t float64) sim.Point {
			phase := math.Mod(t/period, 1)
			u := 2 * phase
			if u > 1 {
				u = 2 - u
			}
			return sim.Point{X: width*0.1 + u*width*0.8, Y: cy}
		}, nil
	case "eight":
		return func(t float64) sim.Point {
			return sim.Point{X: cx + r*math.Sin(w*t), Y: cy + r*math.Sin(2*w*t)/2}
		}, nil
	}
	return nil, fmt.Errorf("unknown shape %q", shape)
}

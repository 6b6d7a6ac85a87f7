package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"kfsim-go/kalman"
	"kfsim-go/logging"
	"kfsim-go/noise"
	"kfsim-go/sim"
)

func newTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Run the filter over a CSV of cursor positions, one row per tick",
		RunE:  track,
	}
	cmd.Flags().String("in", "", "Input CSV with x,y columns (required)")
	cmd.Flags().String("out", "tracked.csv", "Output CSV path")
	cmd.Flags().Float64("noise", -1, "Noise amount in pixels (overrides config)")
	cmd.Flags().Uint64("seed", 1, "Noise seed")
	cmd.Flags().Int("max-shift", 0, "Max frame shift for RMSE")
	return cmd
}

func track(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	inPath, _ := cmd.Flags().GetString("in")
	outPath, _ := cmd.Flags().GetString("out")
	seed, _ := cmd.Flags().GetUint64("seed")
	maxShift, _ := cmd.Flags().GetInt("max-shift")
	if inPath == "" {
		return fmt.Errorf("--in required")
	}
	controls := cfg.Controls
	if v, _ := cmd.Flags().GetFloat64("noise"); v >= 0 {
		controls.NoiseAmount = v
	}

	truth, err := readXY(inPath)
	if err != nil {
		return errors.Wrapf(err, "read %s", inPath)
	}
	engine := sim.NewEngine(noise.NewSeeded(seed), cfg.Loop.UpdateHz)
	res := runTrack(engine, controls, truth)

	if err := writeCSV(outPath, res.rows()); err != nil {
		return errors.Wrapf(err, "write %s", outPath)
	}
	lg := logging.GetLog("track")
	lg.Infof("tracked %d ticks, %d degraded, written to %s", len(res.Snapshots), res.Degraded, outPath)

	est := res.estimates()
	meas := res.measurements()
	rmseEst, shift := compareXY(est, truth, maxShift)
	rmseMeas, _ := compareXY(meas, truth, 0)
	fmt.Printf("measurement RMSE %.3f px\n", rmseMeas)
	fmt.Printf("estimate shift %d ticks, RMSE %.3f px\n", shift, rmseEst)
	return nil
}

type trackResult struct {
	Snapshots []sim.Snapshot
	Degraded  int
}

// runTrack feeds one input row per tick.
func runTrack(engine *sim.Engine, controls sim.Controls, input [][2]float64) trackResult {
	var res trackResult
	s := sim.Initial(controls)
	for _, xy := range input {
		p := sim.Point{X: xy[0], Y: xy[1]}
		next, err := engine.Tick(s, &p)
		if err != nil {
			res.Degraded++
		}
		res.Snapshots = append(res.Snapshots, next)
		s = next
	}
	return res
}

var trackHeader = []string{
	"tick", "real_x", "real_y", "meas_x", "meas_y",
	"est_x", "est_y", "est_vx", "est_vy", "future_x", "future_y", "corrected",
}

func (r trackResult) rows() [][]string {
	rows := make([][]string, 0, len(r.Snapshots)+1)
	rows = append(rows, trackHeader)
	for _, s := range r.Snapshots {
		futureX, futureY := "", ""
		if f, ok := s.Future(); ok {
			futureX, futureY = ff(f[kalman.PosX]), ff(f[kalman.PosY])
		}
		rows = append(rows, []string{
			strconv.FormatUint(s.Tick, 10),
			ff(s.RealPosition.X), ff(s.RealPosition.Y),
			ff(s.Sensor.Measurement[kalman.PosX]), ff(s.Sensor.Measurement[kalman.PosY]),
			ff(s.EstimatedState[kalman.PosX]), ff(s.EstimatedState[kalman.PosY]),
			ff(s.EstimatedState[kalman.VelX]), ff(s.EstimatedState[kalman.VelY]),
			futureX, futureY,
			strconv.FormatBool(s.Corrected),
		})
	}
	return rows
}

func (r trackResult) estimates() [][2]float64 {
	out := make([][2]float64, len(r.Snapshots))
	for i, s := range r.Snapshots {
		out[i] = [2]float64{s.EstimatedState[kalman.PosX], s.EstimatedState[kalman.PosY]}
	}
	return out
}

func (r trackResult) measurements() [][2]float64 {
	out := make([][2]float64, len(r.Snapshots))
	for i, s := range r.Snapshots {
		out[i] = [2]float64{s.Sensor.Measurement[kalman.PosX], s.Sensor.Measurement[kalman.PosY]}
	}
	return out
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// compareXY returns the lowest RMSE between pred and ref over frame shifts in
// [-maxShift, maxShift], and the shift that produced it.
func compareXY(pred, ref [][2]float64, maxShift int) (float64, int) {
	bestShift := 0
	bestRmse := math.MaxFloat64
	for shift := -maxShift; shift <= maxShift; shift++ {
		var n int
		var sum float64
		if shift >= 0 {
			n = min(len(pred)-shift, len(ref))
			if n <= 0 {
				continue
			}
			for i := 0; i < n; i++ {
				dx := pred[i+shift][0] - ref[i][0]
				dy := pred[i+shift][1] - ref[i][1]
				sum += dx*dx + dy*dy
			}
		} else {
			s := -shift
			n = min(len(ref)-s, len(pred))
			if n <= 0 {
				continue
			}
			for i := 0; i < n; i++ {
				dx := pred[i][0] - ref[i+s][0]
				dy := pred[i][1] - ref[i+s][1]
				sum += dx*dx + dy*dy
			}
		}
		rmse := math.Sqrt(sum / float64(n))
		if rmse < bestRmse {
			bestRmse = rmse
			bestShift = shift
		}
	}
	return bestRmse, bestShift
}

func readXY(path string) ([][2]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseXY(f)
}

// parseXY reads x,y columns from a CSV with a header row. Rows with
// non-numeric cells are rejected.
func parseXY(in io.Reader) ([][2]float64, error) {
	recs, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) <= 1 {
		return nil, fmt.Errorf("no rows")
	}
	header := recs[0]
	pairs := [][2]string{
		{"x", "y"},
		{"real_x", "real_y"},
		{"cursor_x", "cursor_y"},
	}
	idxX, idxY := -1, -1
	for _, p := range pairs {
		ix := indexOf(header, p[0])
		iy := indexOf(header, p[1])
		if ix >= 0 && iy >= 0 {
			idxX, idxY = ix, iy
			break
		}
	}
	if idxX < 0 || idxY < 0 {
		return nil, fmt.Errorf("columns not found")
	}
	out := make([][2]float64, 0, len(recs)-1)
	for line, row := range recs[1:] {
		if len(row) <= idxX || len(row) <= idxY {
			continue
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(row[idxX]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(row[idxY]), 64)
		if errX != nil || errY != nil || !(kalman.Vector4{x, y}).IsFinite() {
			return nil, fmt.Errorf("row %d: invalid position %q,%q", line+2, row[idxX], row[idxY])
		}
		out = append(out, [2]float64{x, y})
	}
	return out, nil
}

func indexOf(arr []string, key string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), key) {
			return i
		}
	}
	return -1
}

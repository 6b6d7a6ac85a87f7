package main

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"kfsim-go/noise"
	"kfsim-go/sim"
)

func TestParseXY(t *testing.T) {
	xy, err := parseXY(strings.NewReader("tick,X,Y\n1,10,20\n2, 11.5 ,21\n"))
	require.NoError(t, err)
	require.Equal(t, [][2]float64{{10, 20}, {11.5, 21}}, xy)

	_, err = parseXY(strings.NewReader("a,b\n1,2\n"))
	require.Error(t, err)

	_, err = parseXY(strings.NewReader("x,y\n1,abc\n"))
	require.Error(t, err)

	_, err = parseXY(strings.NewReader("x,y\n"))
	require.Error(t, err)
}

func TestCompareXY(t *testing.T) {
	ref := [][2]float64{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}}
	rmse, shift := compareXY(ref, ref, 0)
	require.Equal(t, 0.0, rmse)
	require.Equal(t, 0, shift)

	lagged := [][2]float64{{0, 0}, {0, 0}, {1, 0}, {2, 0}, {3, 0}}
	rmse, shift = compareXY(lagged, ref, 2)
	require.Equal(t, 1, shift)
	require.InDelta(t, 0, rmse, 1e-12)

	rmse, _ = compareXY([][2]float64{{3, 4}}, [][2]float64{{0, 0}}, 0)
	require.Equal(t, 5.0, rmse)
}

func TestRunTrackSmoothsNoise(t *testing.T) {
	var truth [][2]float64
	for i := 0; i < 200; i++ {
		truth = append(truth, [2]float64{100 + float64(i), 200})
	}
	c := sim.DefaultControls()
	c.NoiseAmount = 20
	res := runTrack(sim.NewEngine(noise.NewSeeded(3), 10), c, truth)
	require.Len(t, res.Snapshots, len(truth))
	require.Equal(t, 0, res.Degraded)

	last := res.Snapshots[len(res.Snapshots)-1]
	require.Equal(t, uint64(200), last.Tick)
	require.True(t, last.Corrected)

	rows := res.rows()
	require.Len(t, rows, len(truth)+1)
	require.Equal(t, trackHeader, rows[0])
	require.Len(t, rows[1], len(trackHeader))

	// Every estimate stays within the noise band plus the distance covered
	// in one tick.
	for i, e := range res.estimates() {
		require.False(t, math.IsNaN(e[0]))
		if i > 20 {
			require.InDelta(t, truth[i][1], e[1], 20)
		}
	}
}

func TestTrackCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(in, []byte("x,y\n0,0\n1,1\n2,2\n3,3\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"track", "--in", in, "--out", out, "--noise", "0", "--log-level", "ERROR"})
	require.NoError(t, cmd.Execute())

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[1], "1,0.000,0.000,0.000,0.000"))
}

func TestTrajectories(t *testing.T) {
	for _, shape := range []string{"circle", "line", "eight"} {
		traj, err := newTrajectory(shape, 650, 400, 4)
		require.NoError(t, err, shape)
		for ts := 0.0; ts < 8; ts += 0.1 {
			p := traj(ts)
			require.GreaterOrEqual(t, p.X, 0.0, shape)
			require.LessOrEqual(t, p.X, 650.0, shape)
			require.GreaterOrEqual(t, p.Y, 0.0, shape)
			require.LessOrEqual(t, p.Y, 400.0, shape)
		}
		a, b := traj(0.5), traj(4.5)
		require.InDelta(t, a.X, b.X, 1e-9, shape)
		require.InDelta(t, a.Y, b.Y, 1e-9, shape)
	}
	_, err := newTrajectory("square", 650, 400, 4)
	require.Error(t, err)
	_, err = newTrajectory("circle", 650, 400, 0)
	require.Error(t, err)
}

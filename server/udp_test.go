package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"kfsim-go/sim"
)

type fakeSink struct {
	cursors  []sim.Point
	running  []bool
	resets   int
	restarts int
}

func (f *fakeSink) SubmitCursor(p sim.Point) bool { f.cursors = append(f.cursors, p); return true }
func (f *fakeSink) SetRunning(on bool) error      { f.running = append(f.running, on); return nil }
func (f *fakeSink) Reset() error                  { f.resets++; return nil }
func (f *fakeSink) Restart() error                { f.restarts++; return nil }

func TestHandlePacketConcatenatedFrames(t *testing.T) {
	sink := &fakeSink{}
	s := &UdpServer{sink: sink, metrics: NewMetrics()}

	var pkt []byte
	pkt = append(pkt, 0xFF) // garbage before the first frame
	pkt = append(pkt, PackageRun(1, true)...)
	pkt = append(pkt, PackageCursor(2, sim.Point{X: 1, Y: 2})...)
	pkt = append(pkt, PackageCursor(3, sim.Point{X: 3, Y: 4})...)
	pkt = append(pkt, PackageReset(4)...)
	pkt = append(pkt, PackageRestart(5)...)

	s.handlePacket(pkt, &net.UDPAddr{})

	require.Equal(t, []sim.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, sink.cursors)
	require.Equal(t, []bool{true}, sink.running)
	require.Equal(t, 1, sink.resets)
	require.Equal(t, 1, sink.restarts)
	require.Equal(t, int64(5), s.metrics.Frames.Count())
	require.Equal(t, int64(1), s.metrics.FrameErrors.Count())
}

func TestHandlePacketTruncated(t *testing.T) {
	sink := &fakeSink{}
	s := &UdpServer{sink: sink, metrics: NewMetrics()}

	pkt := PackageCursor(1, sim.Point{X: 5, Y: 5})
	s.handlePacket(pkt[:len(pkt)-3], &net.UDPAddr{})
	require.Empty(t, sink.cursors)
	require.Equal(t, int64(0), s.metrics.Frames.Count())

	bad := AppendFrame(nil, TypeCursor, 2, 0, []byte{1, 2, 3})
	s.handlePacket(bad, &net.UDPAddr{})
	require.Empty(t, sink.cursors)
	require.Equal(t, int64(1), s.metrics.Frames.Count())
}

package server

import (
	"net"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"kfsim-go/sim"
)

const (
	DefaultPort   = 44333
	MaxPacketSize = 65535
)

// Sink receives decoded frames. *Runner implements it.
type Sink interface {
	SubmitCursor(p sim.Point) bool
	SetRunning(on bool) error
	Reset() error
	Restart() error
}

// UdpServer accepts cursor frames from remote input devices. Several frames
// may share one datagram.
type UdpServer struct {
	conn    *net.UDPConn
	sink    Sink
	metrics *Metrics
	running atomic.Bool
	lastSeq atomic.Uint32
}

func NewUdpServer(port int, sink Sink, m *Metrics) (*UdpServer, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.UDPAddr{
		Port: port,
		IP:   net.ParseIP("0.0.0.0"),
	}
	conn, err := net.ListenUDP("udp", &addr)
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(256 * 1024)

	if m == nil {
		m = NewMetrics()
	}
	return &UdpServer{
		conn:    conn,
		sink:    sink,
		metrics: m,
	}, nil
}

func (s *UdpServer) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Start reads datagrams until Stop is called.
func (s *UdpServer) Start() {
	s.running.Store(true)
	buf := make([]byte, MaxPacketSize)
	log.Printf("UDP Server listening on %s", s.conn.LocalAddr().String())

	for s.running.Load() {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.running.Load() {
				log.Printf("Read error: %v", err)
			}
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.handlePacket(data, addr)
	}
}

func (s *UdpServer) Stop() {
	s.running.Store(false)
	s.conn.Close()
}

func (s *UdpServer) handlePacket(data []byte, addr *net.UDPAddr) {
	offset := 0
	for offset < len(data) {
		if len(data)-offset < FrameHdrLen {
			break
		}
		hdr, err := ParseHeader(data[offset:])
		if err != nil {
			s.metrics.FrameErrors.Inc(1)
			offset++
			continue
		}
		totalLen := FrameHdrLen + hdr.BodyLen
		if offset+totalLen > len(data) {
			s.metrics.FrameErrors.Inc(1)
			break
		}
		body := data[offset+FrameHdrLen : offset+totalLen]
		s.metrics.Frames.Inc(1)
		s.processFrame(hdr, body, addr)
		offset += totalLen
	}
}

func (s *UdpServer) processFrame(hdr *FrameHeader, body []byte, addr *net.UDPAddr) {
	if prev := s.lastSeq.Swap(hdr.Seq); hdr.Seq != 0 && hdr.Seq < prev {
		log.Debugf("out of order frame seq=%d prev=%d from %s", hdr.Seq, prev, addr)
	}

	switch hdr.Type {
	case TypeCursor:
		p, err := ParseCursor(body)
		if err != nil {
			s.metrics.FrameErrors.Inc(1)
			log.Printf("ParseCursor error: %v", err)
			return
		}
		s.sink.SubmitCursor(p)
	case TypeRun:
		on, err := ParseRun(body)
		if err != nil {
			s.metrics.FrameErrors.Inc(1)
			log.Printf("ParseRun error: %v", err)
			return
		}
		if err := s.sink.SetRunning(on); err != nil {
			log.Printf("SetRunning error: %v", err)
		}
	case TypeReset:
		if err := s.sink.Reset(); err != nil {
			log.Printf("Reset error: %v", err)
		}
	case TypeRestart:
		if err := s.sink.Restart(); err != nil {
			log.Printf("Restart error: %v", err)
		}
	default:
		s.metrics.FrameErrors.Inc(1)
		log.Debugf("unknown frame type 0x%x from %s", hdr.Type, addr)
	}
}

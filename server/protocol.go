package server

import (
	"encoding/binary"
	"fmt"
	"math"

	"kfsim-go/sim"
)

const (
	FrameMagic  = 0x464B // Little Endian for 'K' 'F'
	FrameHdrLen = 11

	TypeCursor  = 0x01
	TypeRun     = 0x02
	TypeReset   = 0x03
	TypeRestart = 0x04

	cursorBodyLen = 16
)

// FrameHeader precedes every frame body:
//
//	magic u16 | type u8 | seq u32 | bodyLen u16 | flags u16
//
// All fields are little endian.
type FrameHeader struct {
	Magic   uint16
	Type    uint8
	Seq     uint32
	BodyLen int
	Flags   uint16
}

// ParseHeader parses the frame header from the beginning of data.
func ParseHeader(data []byte) (*FrameHeader, error) {
	if len(data) < FrameHdrLen {
		return nil, fmt.Errorf("packet too short")
	}
	magic := binary.LittleEndian.Uint16(data[0:2])
	if magic != FrameMagic {
		return nil, fmt.Errorf("invalid magic: 0x%x", magic)
	}
	return &FrameHeader{
		Magic:   magic,
		Type:    data[2],
		Seq:     binary.LittleEndian.Uint32(data[3:7]),
		BodyLen: int(binary.LittleEndian.Uint16(data[7:9])),
		Flags:   binary.LittleEndian.Uint16(data[9:11]),
	}, nil
}

func ParseCursor(body []byte) (sim.Point, error) {
	if len(body) < cursorBodyLen {
		return sim.Point{}, fmt.Errorf("cursor frame too short")
	}
	p := sim.Point{
		X: math.Float64frombits(binary.LittleEndian.Uint64(body[0:8])),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(body[8:16])),
	}
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		return sim.Point{}, fmt.Errorf("cursor frame not finite")
	}
	return p, nil
}

func ParseRun(body []byte) (bool, error) {
	if len(body) < 1 {
		return false, fmt.Errorf("run frame too short")
	}
	return body[0] != 0, nil
}

// AppendFrame appends one encoded frame to dst.
func AppendFrame(dst []byte, typ uint8, seq uint32, flags uint16, body []byte) []byte {
	var hdr [FrameHdrLen]byte
	binary.LittleEndian.PutUint16(hdr[0:2], FrameMagic)
	hdr[2] = typ
	binary.LittleEndian.PutUint32(hdr[3:7], seq)
	binary.LittleEndian.PutUint16(hdr[7:9], uint16(len(body)))
	binary.LittleEndian.PutUint16(hdr[9:11], flags)
	dst = append(dst, hdr[:]...)
	return append(dst, body...)
}

func PackageCursor(seq uint32, p sim.Point) []byte {
	var body [cursorBodyLen]byte
	binary.LittleEndian.PutUint64(body[0:8], math.Float64bits(p.X))
	binary.LittleEndian.PutUint64(body[8:16], math.Float64bits(p.Y))
	return AppendFrame(nil, TypeCursor, seq, 0, body[:])
}

func PackageRun(seq uint32, running bool) []byte {
	var b byte
	if running {
		b = 1
	}
	return AppendFrame(nil, TypeRun, seq, 0, []byte{b})
}

func PackageReset(seq uint32) []byte {
	return AppendFrame(nil, TypeReset, seq, 0, nil)
}

func PackageRestart(seq uint32) []byte {
	return AppendFrame(nil, TypeRestart, seq, 0, nil)
}

// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Bar Count         | uint16         | 2            | Number of bars (N)      |
| Bars              | []float32      | N * 4        | Bar heights, [0,1]      |
| Bass              | float32        | 4            | Smoothed band energy    |
| Mid               | float32        | 4            | Smoothed band energy    |
| High              | float32        | 4            | Smoothed band energy    |
| Overall           | float32        | 4            | Smoothed band energy    |
| Flags             | uint8          | 1            | bit 0: beat, bit 1: playing |
+-----------------------------------------------------------------------------+
*/

const (
	headerSize  = 4 + 8 + 2
	trailerSize = 4*4 + 1

	flagBeat    = 1 << 0
	flagPlaying = 1 << 1
)

// ErrShortPacket is returned when decoding a truncated packet.
var ErrShortPacket = errors.New("short packet")

// Packet is one decoded bar packet.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Bars      []float32
	Bass      float32
	Mid       float32
	High      float32
	Overall   float32
	Beat      bool
	Playing   bool
}

// PacketSize returns the encoded size of a packet with n bars.
func PacketSize(n int) int { return headerSize + 4*n + trailerSize }

// AppendPacket appends the encoding of p to dst. It does not allocate when
// dst has room for PacketSize(len(p.Bars)) more bytes.
func AppendPacket(dst []byte, p *Packet) []byte {
	dst = binary.BigEndian.AppendUint32(dst, p.Seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(p.Timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(p.Bars)))
	for _, v := range p.Bars {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	for _, v := range [...]float32{p.Bass, p.Mid, p.High, p.Overall} {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	var flags byte
	if p.Beat {
		flags |= flagBeat
	}
	if p.Playing {
		flags |= flagPlaying
	}
	return append(dst, flags)
}

// DecodePacket parses a packet produced by AppendPacket.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	var p Packet
	p.Seq = binary.BigEndian.Uint32(b[0:])
	p.Timestamp = int64(binary.BigEndian.Uint64(b[4:]))
	n := int(binary.BigEndian.Uint16(b[12:]))
	if len(b) < PacketSize(n) {
		return Packet{}, fmt.Errorf("%w: %d bytes for %d bars", ErrShortPacket, len(b), n)
	}

	off := headerSize
	next := func() float32 {
		v := math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
		off += 4
		return v
	}
	p.Bars = make([]float32, n)
	for i := range p.Bars {
		p.Bars[i] = next()
	}
	p.Bass, p.Mid, p.High, p.Overall = next(), next(), next(), next()
	flags := b[off]
	p.Beat = flags&flagBeat != 0
	p.Playing = flags&flagPlaying != 0
	return p, nil
}

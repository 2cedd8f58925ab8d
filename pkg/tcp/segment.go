// Package tcp provides a mutable view of an IPv4 TCP segment together with
// the option walker and window arithmetic used to cap receive windows.
package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/net/ipv4"
)

// ProtocolTCP is the IPv4 protocol number for TCP.
const ProtocolTCP = 6

// HeaderLen is the length of a TCP header without options.
const HeaderLen = 20

var (
	// ErrNotIPv4 is returned for anything that is not an IPv4 datagram.
	ErrNotIPv4 = errors.New("tcp: not an IPv4 packet")
	// ErrNotTCP is returned for IPv4 datagrams that do not carry TCP.
	ErrNotTCP = errors.New("tcp: not a TCP packet")
	// ErrFragment is returned for non-initial fragments.
	ErrFragment = errors.New("tcp: non-initial fragment")
	// ErrTruncated is returned when a header is shorter than it declares.
	ErrTruncated = errors.New("tcp: truncated packet")
)

// Flags is the TCP control-bit byte.
type Flags uint8

// TCP control bits.
const (
	FlagFIN Flags = 0x01
	FlagSYN Flags = 0x02
	FlagRST Flags = 0x04
	FlagPSH Flags = 0x08
	FlagACK Flags = 0x10
	FlagURG Flags = 0x20
	FlagECE Flags = 0x40
	FlagCWR Flags = 0x80
)

// Has reports whether any of the bits in m are set.
func (f Flags) Has(m Flags) bool { return f&m != 0 }

func (f Flags) String() string {
	names := [...]string{"FIN", "SYN", "RST", "PSH", "ACK", "URG", "ECE", "CWR"}
	var b []byte
	for i, n := range names {
		if f&(1<<i) != 0 {
			if len(b) > 0 {
				b = append(b, '|')
			}
			b = append(b, n...)
		}
	}
	if len(b) == 0 {
		return "none"
	}
	return string(b)
}

// Segment is a view over a raw IPv4 datagram carrying TCP. It aliases the
// buffer passed to ParseSegment; SetWindow writes through to it.
type Segment struct {
	ip  *ipv4.Header
	tcp []byte // TCP header and payload, bounded by the IP total length

	src, dst [4]byte
}

// ParseSegment parses data as an IPv4 datagram carrying a TCP segment.
func ParseSegment(data []byte) (*Segment, error) {
	if len(data) == 0 || data[0]>>4 != 4 {
		return nil, ErrNotIPv4
	}
	h, err := ipv4.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if h.Protocol != ProtocolTCP {
		return nil, ErrNotTCP
	}
	if h.FragOff != 0 {
		return nil, ErrFragment
	}

	end := len(data)
	// TotalLen is 0 for segmentation-offloaded packets.
	if h.TotalLen > 0 && h.TotalLen < end {
		end = h.TotalLen
	}
	if end < h.Len+HeaderLen {
		return nil, ErrTruncated
	}
	seg := data[h.Len:end]
	doff := int(seg[12]>>4) * 4
	if doff < HeaderLen || doff > len(seg) {
		return nil, ErrTruncated
	}

	s := &Segment{ip: h, tcp: seg}
	copy(s.src[:], h.Src.To4())
	copy(s.dst[:], h.Dst.To4())
	return s, nil
}

// Src returns the source address.
func (s *Segment) Src() [4]byte { return s.src }

// Dst returns the destination address.
func (s *Segment) Dst() [4]byte { return s.dst }

// SrcPort returns the source port.
func (s *Segment) SrcPort() uint16 { return binary.BigEndian.Uint16(s.tcp[0:2]) }

// DstPort returns the destination port.
func (s *Segment) DstPort() uint16 { return binary.BigEndian.Uint16(s.tcp[2:4]) }

// Flags returns the control bits.
func (s *Segment) Flags() Flags { return Flags(s.tcp[13]) }

// Window returns the raw, unscaled window field.
func (s *Segment) Window() uint16 { return binary.BigEndian.Uint16(s.tcp[14:16]) }

// DataOffset returns the TCP header length in bytes, options included.
func (s *Segment) DataOffset() int { return int(s.tcp[12]>>4) * 4 }

// Header returns the TCP header including options.
func (s *Segment) Header() []byte { return s.tcp[:s.DataOffset()] }

// Options returns the option bytes following the fixed header.
func (s *Segment) Options() []byte { return s.tcp[HeaderLen:s.DataOffset()] }

// SetWindow overwrites the window field and recomputes the TCP checksum.
func (s *Segment) SetWindow(v uint16) {
	binary.BigEndian.PutUint16(s.tcp[14:16], v)
	s.tcp[16], s.tcp[17] = 0, 0
	binary.BigEndian.PutUint16(s.tcp[16:18], Checksum(s.tcp, s.src, s.dst))
}

// Package tcptest builds IPv4 TCP packets for tests.
package tcptest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/baiwei0427/Lurker/pkg/tcp"
)

// Spec describes a packet to build.
type Spec struct {
	Src, Dst         net.IP
	SrcPort, DstPort uint16
	Flags            tcp.Flags
	Seq, Ack         uint32
	Window           uint16
	Options          []layers.TCPOption
	Payload          []byte
}

// MSS returns an MSS option.
func MSS(v uint16) layers.TCPOption {
	return layers.TCPOption{OptionType: layers.TCPOptionKindMSS, OptionData: []byte{byte(v >> 8), byte(v)}}
}

// WindowScale returns a window-scale option.
func WindowScale(v uint8) layers.TCPOption {
	return layers.TCPOption{OptionType: layers.TCPOptionKindWindowScale, OptionData: []byte{v}}
}

// NOP returns a no-operation option.
func NOP() layers.TCPOption {
	return layers.TCPOption{OptionType: layers.TCPOptionKindNop}
}

func (s Spec) layers() (*layers.IPv4, *layers.TCP) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    s.Src.To4(),
		DstIP:    s.Dst.To4(),
	}
	t := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     s.Seq,
		Ack:     s.Ack,
		Window:  s.Window,
		FIN:     s.Flags.Has(tcp.FlagFIN),
		SYN:     s.Flags.Has(tcp.FlagSYN),
		RST:     s.Flags.Has(tcp.FlagRST),
		PSH:     s.Flags.Has(tcp.FlagPSH),
		ACK:     s.Flags.Has(tcp.FlagACK),
		URG:     s.Flags.Has(tcp.FlagURG),
		ECE:     s.Flags.Has(tcp.FlagECE),
		CWR:     s.Flags.Has(tcp.FlagCWR),
		Options: s.Options,
	}
	t.SetNetworkLayerForChecksum(ip)
	return ip, t
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

// Build returns the raw IPv4 datagram for s with valid checksums.
func Build(s Spec) []byte {
	ip, t := s.layers()
	return serialize(ip, t, gopacket.Payload(s.Payload))
}

// BuildEthernet returns s wrapped in an Ethernet II frame.
func BuildEthernet(s Spec) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip, t := s.layers()
	return serialize(eth, ip, t, gopacket.Payload(s.Payload))
}

// Checksum returns the TCP checksum field of a raw IPv4 datagram.
func Checksum(datagram []byte) uint16 {
	off := int(datagram[0]&0x0f)*4 + 16
	return uint16(datagram[off])<<8 | uint16(datagram[off+1])
}

package tcp_test

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baiwei0427/Lurker/pkg/tcp"
	"github.com/baiwei0427/Lurker/pkg/tcp/tcptest"
)

func baseSpec() tcptest.Spec {
	return tcptest.Spec{
		Src:     net.IPv4(192, 168, 1, 10),
		Dst:     net.IPv4(10, 0, 0, 2),
		SrcPort: 5001,
		DstPort: 40000,
		Flags:   tcp.FlagSYN | tcp.FlagACK,
		Seq:     1000,
		Ack:     2000,
		Window:  65535,
		Options: []layers.TCPOption{tcptest.MSS(1460), tcptest.NOP(), tcptest.WindowScale(7)},
		Payload: []byte("hello"),
	}
}

func TestParseSegment(t *testing.T) {
	s, err := tcp.ParseSegment(tcptest.Build(baseSpec()))
	require.NoError(t, err)

	assert.Equal(t, [4]byte{192, 168, 1, 10}, s.Src())
	assert.Equal(t, [4]byte{10, 0, 0, 2}, s.Dst())
	assert.Equal(t, uint16(5001), s.SrcPort())
	assert.Equal(t, uint16(40000), s.DstPort())
	assert.True(t, s.Flags().Has(tcp.FlagSYN))
	assert.True(t, s.Flags().Has(tcp.FlagACK))
	assert.False(t, s.Flags().Has(tcp.FlagFIN|tcp.FlagRST))
	assert.Equal(t, uint16(65535), s.Window())
	assert.Equal(t, 28, s.DataOffset())
	assert.Len(t, s.Header(), 28)

	o := tcp.ParseOptions(s.Options(), len(s.Options()))
	assert.Equal(t, tcp.Options{MSS: 1460, HasMSS: true, WindowScale: 7, HasWindowScale: true}, o)
}

func TestSetWindowChecksum(t *testing.T) {
	spec := baseSpec()
	data := tcptest.Build(spec)

	before := tcptest.Checksum(data)

	s, err := tcp.ParseSegment(data)
	require.NoError(t, err)
	s.SetWindow(115)
	assert.Equal(t, uint16(115), s.Window())
	assert.NotEqual(t, before, tcptest.Checksum(data))

	spec.Window = 115
	want := tcptest.Build(spec)
	assert.Equal(t, tcptest.Checksum(want), tcptest.Checksum(data))
	assert.Equal(t, want, data)
}

func TestSetWindowOddPayload(t *testing.T) {
	spec := baseSpec()
	spec.Flags = tcp.FlagACK | tcp.FlagPSH
	spec.Options = nil
	spec.Payload = []byte("odd")
	data := tcptest.Build(spec)

	s, err := tcp.ParseSegment(data)
	require.NoError(t, err)
	s.SetWindow(1)

	spec.Window = 1
	assert.Equal(t, tcptest.Build(spec), data)
}

func TestSetWindowIgnoresTrailingBytes(t *testing.T) {
	spec := baseSpec()
	data := append(tcptest.Build(spec), 0xde, 0xad)

	s, err := tcp.ParseSegment(data)
	require.NoError(t, err)
	s.SetWindow(100)

	spec.Window = 100
	want := tcptest.Build(spec)
	assert.Equal(t, want, data[:len(want)])
}

func TestParseSegmentErrors(t *testing.T) {
	_, err := tcp.ParseSegment(nil)
	assert.ErrorIs(t, err, tcp.ErrNotIPv4)

	v6 := make([]byte, 40)
	v6[0] = 0x60
	_, err = tcp.ParseSegment(v6)
	assert.ErrorIs(t, err, tcp.ErrNotIPv4)

	udp := &layers.UDP{SrcPort: 53, DstPort: 5353}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(1, 1, 1, 1).To4(), DstIP: net.IPv4(2, 2, 2, 2).To4()}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, ip, udp))
	_, err = tcp.ParseSegment(buf.Bytes())
	assert.ErrorIs(t, err, tcp.ErrNotTCP)

	data := tcptest.Build(baseSpec())
	_, err = tcp.ParseSegment(data[:30])
	assert.ErrorIs(t, err, tcp.ErrTruncated)

	_, err = tcp.ParseSegment(data[:10])
	assert.ErrorIs(t, err, tcp.ErrTruncated)

	bad := append([]byte(nil), data...)
	bad[20+12] = 0x20 // data offset of 8 bytes
	_, err = tcp.ParseSegment(bad)
	assert.ErrorIs(t, err, tcp.ErrTruncated)

	frag := append([]byte(nil), data...)
	frag[6], frag[7] = 0x00, 0x10
	_, err = tcp.ParseSegment(frag)
	assert.ErrorIs(t, err, tcp.ErrFragment)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "SYN|ACK", (tcp.FlagSYN | tcp.FlagACK).String())
	assert.Equal(t, "none", tcp.Flags(0).String())
}

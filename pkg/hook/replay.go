package hook

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/baiwei0427/Lurker/pkg/core"
	"github.com/baiwei0427/Lurker/pkg/logging"
)

// ReplayStats summarizes a pcap replay.
type ReplayStats struct {
	Frames    uint64 `json:"frames"`
	IPv4      uint64 `json:"ipv4"`
	Rewritten uint64 `json:"rewritten"`
	Errors    uint64 `json:"errors"`
}

// Replay feeds every frame of the pcap stream in through proc, in order,
// and writes the possibly rewritten frames to out with their original
// capture info. Frames without an IPv4 header are copied through.
func Replay(in io.Reader, out io.Writer, proc core.PacketProcessor) (ReplayStats, error) {
	var st ReplayStats

	r, err := pcapgo.NewReader(in)
	if err != nil {
		return st, fmt.Errorf("failed to read pcap header: %w", err)
	}
	lt := r.LinkType()
	switch lt {
	case layers.LinkTypeEthernet, layers.LinkTypeRaw, layers.LinkTypeIPv4:
	default:
		return st, fmt.Errorf("unsupported pcap link type: %s", lt)
	}

	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(r.Snaplen(), lt); err != nil {
		return st, fmt.Errorf("failed to write pcap header: %w", err)
	}

	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("failed to read frame %d: %w", st.Frames+1, err)
		}
		st.Frames++

		if off, ok := ipv4Offset(lt, data); ok {
			st.IPv4++
			v, err := proc.ProcessPacket(core.NewPacket(data[off:], ""))
			if err != nil {
				st.Errors++
				logging.Debugf("Replay frame %d: %v", st.Frames, err)
			}
			if v == core.VerdictAcceptModified {
				st.Rewritten++
			}
		}

		if err := w.WritePacket(ci, data); err != nil {
			return st, fmt.Errorf("failed to write frame %d: %w", st.Frames, err)
		}
	}
	return st, nil
}

// ipv4Offset returns where the IPv4 header starts inside a frame.
func ipv4Offset(lt layers.LinkType, data []byte) (int, bool) {
	if lt == layers.LinkTypeRaw || lt == layers.LinkTypeIPv4 {
		return 0, len(data) > 0 && data[0]>>4 == 4
	}

	pkt := gopacket.NewPacket(data, lt, gopacket.NoCopy)
	off := 0
	for _, l := range pkt.Layers() {
		if l.LayerType() == layers.LayerTypeIPv4 {
			return off, true
		}
		off += len(l.LayerContents())
	}
	return 0, false
}

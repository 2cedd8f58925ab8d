package hook

import (
	"encoding/binary"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baiwei0427/Lurker/pkg/core"
	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/pipeline"
	"github.com/baiwei0427/Lurker/pkg/tcp"
	"github.com/baiwei0427/Lurker/pkg/tcp/tcptest"
)

// mockPacketProcessor is a mock implementation of core.PacketProcessor
type mockPacketProcessor struct {
	processPacketFunc func(packet core.Packet) (core.Verdict, error)
	count             uint64
}

// ProcessPacket implements core.PacketProcessor
func (m *mockPacketProcessor) ProcessPacket(packet core.Packet) (core.Verdict, error) {
	atomic.AddUint64(&m.count, 1)
	if m.processPacketFunc != nil {
		return m.processPacketFunc(packet)
	}
	return core.VerdictAccept, nil
}

func TestProcessorSubmit(t *testing.T) {
	next := &mockPacketProcessor{}
	proc := NewProcessor(next, 4, 16)
	require.NoError(t, proc.Start())
	defer proc.Stop()

	src := NewMockSource(proc)
	for i := 0; i < 10; i++ {
		src.Inject([]byte{0x45, byte(i)}, "eth0")
	}
	src.Wait()

	assert.Len(t, src.Results(), 10)
	assert.Equal(t, uint64(10), atomic.LoadUint64(&next.count))
	m := proc.Metrics()
	assert.Equal(t, uint64(10), m.PacketsProcessed)
	assert.Zero(t, m.QueueFullBypass)
}

func TestProcessorCountsErrorsAndRewrites(t *testing.T) {
	next := &mockPacketProcessor{
		processPacketFunc: func(p core.Packet) (core.Verdict, error) {
			if p.Data()[0] == 1 {
				return core.VerdictAccept, errors.New("test error")
			}
			return core.VerdictAcceptModified, nil
		},
	}
	proc := NewProcessor(next, 2, 8)
	require.NoError(t, proc.Start())
	defer proc.Stop()

	src := NewMockSource(proc)
	src.Inject([]byte{1}, "")
	src.Inject([]byte{2}, "")
	src.Wait()

	m := proc.Metrics()
	assert.Equal(t, uint64(2), m.PacketsProcessed)
	assert.Equal(t, uint64(1), m.ProcessErrors)
	assert.Equal(t, uint64(1), m.PacketsRewritten)
}

func TestProcessorBypassWhenStopped(t *testing.T) {
	next := &mockPacketProcessor{}
	proc := NewProcessor(next, 1, 1)

	src := NewMockSource(proc)
	src.Inject([]byte{1}, "")
	src.Wait()

	results := src.Results()
	require.Len(t, results, 1)
	assert.Equal(t, core.VerdictAccept, results[0].Verdict)
	assert.Zero(t, atomic.LoadUint64(&next.count))
	assert.Equal(t, uint64(1), proc.Metrics().QueueFullBypass)
}

func TestProcessorStartTwice(t *testing.T) {
	proc := NewProcessor(&mockPacketProcessor{}, 1, 1)
	require.NoError(t, proc.Start())
	assert.Error(t, proc.Start())
	assert.NoError(t, proc.Stop())
	assert.NoError(t, proc.Stop())
}

func TestProcessorRunsPipeline(t *testing.T) {
	table, err := flow.NewTable(8)
	require.NoError(t, err)
	p := pipeline.New(table, pipeline.DefaultPolicy())

	proc := NewProcessor(p, 4, 64)
	require.NoError(t, proc.Start())
	defer proc.Stop()

	// One SYN per connection, so workers never race a SYN against its data.
	src := NewMockSource(proc)
	for i := 0; i < 20; i++ {
		src.Inject(tcptest.Build(tcptest.Spec{
			Src:     net.IPv4(10, 0, 0, 1),
			Dst:     net.IPv4(10, 0, 0, 2),
			SrcPort: 5001,
			DstPort: uint16(30000 + i),
			Flags:   tcp.FlagSYN | tcp.FlagACK,
			Window:  65535,
		}), "eth0")
	}
	src.Wait()

	assert.Equal(t, 20, table.Len())
	for _, r := range src.Results() {
		assert.Equal(t, core.VerdictAcceptModified, r.Verdict)
		s, err := tcp.ParseSegment(r.Data)
		require.NoError(t, err)
		assert.Equal(t, uint16(14600), s.Window())
	}
	assert.Equal(t, uint64(20), proc.Metrics().PacketsRewritten)
}

func TestProcessorKeepsFlowOrder(t *testing.T) {
	proc := NewProcessor(&mockPacketProcessor{}, 4, 4096)
	require.NoError(t, proc.Start())
	defer proc.Stop()

	const perFlow = 2000
	src := NewMockSource(proc)
	for i := 0; i < perFlow; i++ {
		// Interleave two flows so both hit their workers concurrently.
		for _, port := range []uint16{40000, 40001} {
			src.Inject(tcptest.Build(tcptest.Spec{
				Src:     net.IPv4(10, 0, 0, 1),
				Dst:     net.IPv4(10, 0, 0, 2),
				SrcPort: 5001,
				DstPort: port,
				Flags:   tcp.FlagACK,
				Seq:     uint32(i),
				Window:  1000,
			}), "")
		}
	}
	src.Wait()
	assert.Zero(t, proc.Metrics().QueueFullBypass)

	next := map[uint16]uint32{}
	for _, r := range src.Results() {
		s, err := tcp.ParseSegment(r.Data)
		require.NoError(t, err)
		seq := binary.BigEndian.Uint32(s.Header()[4:8])
		require.Equal(t, next[s.DstPort()], seq, "flow %d completed out of order", s.DstPort())
		next[s.DstPort()]++
	}
	assert.Equal(t, uint32(perFlow), next[40000])
	assert.Equal(t, uint32(perFlow), next[40001])
}

func TestProcessorFlowLifecycleInOrder(t *testing.T) {
	table, err := flow.NewTable(8)
	require.NoError(t, err)
	proc := NewProcessor(pipeline.New(table, pipeline.DefaultPolicy()), 8, 1024)
	require.NoError(t, proc.Start())
	defer proc.Stop()

	seg := func(flags tcp.Flags) []byte {
		return tcptest.Build(tcptest.Spec{
			Src:     net.IPv4(10, 0, 0, 1),
			Dst:     net.IPv4(10, 0, 0, 2),
			SrcPort: 5001,
			DstPort: 40000,
			Flags:   flags,
			Window:  65535,
		})
	}

	src := NewMockSource(proc)
	for round := 0; round < 50; round++ {
		src.Inject(seg(tcp.FlagSYN), "")
		for i := 0; i < 4; i++ {
			src.Inject(seg(tcp.FlagACK), "")
		}
		src.Inject(seg(tcp.FlagFIN|tcp.FlagACK), "")
	}
	src.Wait()

	// Every SYN and ACK saw a tracked flow, every FIN removed it.
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, uint64(50*5), proc.Metrics().PacketsRewritten)
}

func TestShard(t *testing.T) {
	pkt := tcptest.Build(tcptest.Spec{
		Src:     net.IPv4(192, 168, 1, 10),
		Dst:     net.IPv4(10, 0, 0, 2),
		SrcPort: 5001,
		DstPort: 40000,
		Flags:   tcp.FlagACK,
	})
	k := flow.NewKey([4]byte{192, 168, 1, 10}, [4]byte{10, 0, 0, 2}, 5001, 40000)
	assert.Equal(t, int(flow.Hash(k))%7, shard(pkt, 7))
	assert.Equal(t, 0, shard(pkt, 1))

	assert.Equal(t, 0, shard(nil, 4))
	assert.Equal(t, 0, shard([]byte{0x60, 0, 0, 0}, 4))
	assert.Equal(t, 0, shard(pkt[:22], 4))

	seen := map[int]bool{}
	for port := 0; port < 256; port++ {
		seen[shard(tcptest.Build(tcptest.Spec{
			Src:     net.IPv4(10, 0, 0, 1),
			Dst:     net.IPv4(10, 0, 0, 2),
			SrcPort: 5001,
			DstPort: uint16(30000 + port),
		}), 4)] = true
	}
	assert.Len(t, seen, 4)
}

// Package hook connects packet sources on the outbound path to a
// core.PacketProcessor.
package hook

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/baiwei0427/Lurker/pkg/core"
	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/logging"
	"github.com/baiwei0427/Lurker/pkg/tcp"
)

// VerdictFunc receives the verdict for a submitted packet. It is called
// exactly once per Submit, from a worker or from Submit itself.
type VerdictFunc func(packet core.Packet, verdict core.Verdict)

type job struct {
	packet core.Packet
	done   VerdictFunc
}

// Processor runs a core.PacketProcessor on a pool of workers. Packets of
// one TCP 4-tuple always go to the same worker, so they complete in the
// order they were submitted.
type Processor struct {
	next core.PacketProcessor

	// Worker pool, one queue per worker
	workerCount int
	queues      []chan job
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	running     bool

	// Metrics
	packetsProcessed uint64
	packetsRewritten uint64
	processErrors    uint64
	queueFullBypass  uint64
}

// NewProcessor creates a processor with workerCount workers, each with a
// queue of queueCap packets.
func NewProcessor(next core.PacketProcessor, workerCount, queueCap int) *Processor {
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueCap <= 0 {
		queueCap = 1000
	}
	queues := make([]chan job, workerCount)
	for i := range queues {
		queues[i] = make(chan job, queueCap)
	}
	return &Processor{
		next:        next,
		workerCount: workerCount,
		queues:      queues,
		stopCh:      make(chan struct{}),
	}
}

// Start starts the worker pool
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("processor already running")
	}
	p.running = true

	p.wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, p.queues[i])
	}

	logging.Infof("Packet processor started with %d workers", p.workerCount)
	return nil
}

// Stop stops the worker pool. Packets still queued are accepted unmodified.
func (p *Processor) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	for _, q := range p.queues {
		for drained := false; !drained; {
			select {
			case j := <-q:
				j.done(j.packet, core.VerdictAccept)
			default:
				drained = true
			}
		}
	}
	logging.Infof("Packet processor stopped")
	return nil
}

// Submit queues packet on the worker owning its flow. When that queue is
// full, or the processor is not running, the packet is accepted unmodified
// right away; the outbound path is never stalled or dropped on our account.
func (p *Processor) Submit(packet core.Packet, done VerdictFunc) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.running {
		select {
		case p.queues[shard(packet.Data(), p.workerCount)] <- job{packet: packet, done: done}:
			return
		default:
		}
	}
	atomic.AddUint64(&p.queueFullBypass, 1)
	done(packet, core.VerdictAccept)
}

// ProcessPacket implements core.PacketProcessor by running the wrapped
// processor on the caller's goroutine.
func (p *Processor) ProcessPacket(packet core.Packet) (core.Verdict, error) {
	atomic.AddUint64(&p.packetsProcessed, 1)
	v, err := p.next.ProcessPacket(packet)
	if err != nil {
		atomic.AddUint64(&p.processErrors, 1)
	}
	if v == core.VerdictAcceptModified {
		atomic.AddUint64(&p.packetsRewritten, 1)
	}
	return v, err
}

// worker processes packets from the channel
func (p *Processor) worker(id int, queue <-chan job) {
	defer p.wg.Done()

	logging.Debugf("Packet processor worker %d started", id)

	for {
		select {
		case <-p.stopCh:
			logging.Debugf("Packet processor worker %d stopped", id)
			return
		case j := <-queue:
			v, err := p.ProcessPacket(j.packet)
			if err != nil {
				logging.Debugf("Worker %d passed unparsable packet (len=%d): %v", id, j.packet.Length(), err)
			}
			j.done(j.packet, v)
		}
	}
}

// Metrics returns metrics for the processor
func (p *Processor) Metrics() core.ProcessorMetrics {
	return core.ProcessorMetrics{
		PacketsProcessed: atomic.LoadUint64(&p.packetsProcessed),
		PacketsRewritten: atomic.LoadUint64(&p.packetsRewritten),
		ProcessErrors:    atomic.LoadUint64(&p.processErrors),
		QueueFullBypass:  atomic.LoadUint64(&p.queueFullBypass),
	}
}

// shard picks the worker for an IPv4 TCP datagram from its 4-tuple.
// Anything else goes to worker 0.
func shard(data []byte, n int) int {
	if n <= 1 || len(data) < 20 || data[0]>>4 != 4 || data[9] != tcp.ProtocolTCP {
		return 0
	}
	ihl := int(data[0]&0x0f) * 4
	if ihl < 20 || len(data) < ihl+4 {
		return 0
	}
	var src, dst [4]byte
	copy(src[:], data[12:16])
	copy(dst[:], data[16:20])
	k := flow.NewKey(src, dst, binary.BigEndian.Uint16(data[ihl:]), binary.BigEndian.Uint16(data[ihl+2:]))
	return int(flow.Hash(k)) % n
}

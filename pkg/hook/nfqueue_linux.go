//go:build linux

package hook

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/florianl/go-nfqueue"

	"github.com/baiwei0427/Lurker/pkg/core"
	"github.com/baiwei0427/Lurker/pkg/logging"
)

// NFQueueSource receives outbound packets from an iptables/nftables NFQUEUE
// target and returns every one of them with an accept verdict, carrying
// the rewritten payload when the window was lowered.
//
// A typical rule is
//
//	iptables -t mangle -A POSTROUTING -p tcp -j NFQUEUE --queue-num 0 --queue-bypass
type NFQueueSource struct {
	cfg  QueueConfig
	proc *Processor
	q    *nfqueue.Nfqueue

	ifnames sync.Map // uint32 ifindex -> string

	received    uint64
	verdictErrs uint64
}

// NewNFQueueSource opens queue cfg.Num and feeds it into proc.
func NewNFQueueSource(cfg QueueConfig, proc *Processor) (*NFQueueSource, error) {
	c := nfqueue.Config{
		NfQueue:      cfg.Num,
		MaxPacketLen: 0xffff,
		MaxQueueLen:  cfg.MaxLen,
		Copymode:     nfqueue.NfQnlCopyPacket,
	}
	q, err := nfqueue.Open(&c)
	if err != nil {
		return nil, fmt.Errorf("failed to open nfqueue %d: %w", cfg.Num, err)
	}
	return &NFQueueSource{cfg: cfg, proc: proc, q: q}, nil
}

// Run registers the queue callback and blocks until ctx is done.
func (s *NFQueueSource) Run(ctx context.Context) error {
	err := s.q.RegisterWithErrorFunc(ctx, s.hook, func(e error) int {
		if ctx.Err() != nil {
			return 1
		}
		logging.Warnf("nfqueue %d receive error: %v", s.cfg.Num, e)
		return 0
	})
	if err != nil {
		return fmt.Errorf("failed to register nfqueue %d: %w", s.cfg.Num, err)
	}
	logging.Infof("Listening on nfqueue %d", s.cfg.Num)
	<-ctx.Done()
	return nil
}

// Close closes the queue.
func (s *NFQueueSource) Close() error {
	return s.q.Close()
}

// Metrics returns source counters.
func (s *NFQueueSource) Metrics() map[string]uint64 {
	return map[string]uint64{
		"received":      atomic.LoadUint64(&s.received),
		"verdictErrors": atomic.LoadUint64(&s.verdictErrs),
	}
}

func (s *NFQueueSource) hook(a nfqueue.Attribute) int {
	if a.PacketID == nil {
		return 0
	}
	id := *a.PacketID
	if a.Payload == nil || len(*a.Payload) == 0 {
		s.verdict(id, core.VerdictAccept, nil)
		return 0
	}
	atomic.AddUint64(&s.received, 1)

	var iface string
	if a.OutDev != nil {
		iface = s.ifname(*a.OutDev)
	}
	data := append([]byte(nil), (*a.Payload)...)
	s.proc.Submit(core.NewPacket(data, iface), func(p core.Packet, v core.Verdict) {
		s.verdict(id, v, p.Data())
	})
	return 0
}

func (s *NFQueueSource) verdict(id uint32, v core.Verdict, data []byte) {
	var err error
	if v == core.VerdictAcceptModified {
		err = s.q.SetVerdictModPacket(id, nfqueue.NfAccept, data)
	} else {
		err = s.q.SetVerdict(id, nfqueue.NfAccept)
	}
	if err != nil {
		atomic.AddUint64(&s.verdictErrs, 1)
		logging.Debugf("nfqueue %d verdict for packet %d failed: %v", s.cfg.Num, id, err)
	}
}

func (s *NFQueueSource) ifname(idx uint32) string {
	if v, ok := s.ifnames.Load(idx); ok {
		return v.(string)
	}
	ifi, err := net.InterfaceByIndex(int(idx))
	if err != nil {
		return ""
	}
	s.ifnames.Store(idx, ifi.Name)
	return ifi.Name
}

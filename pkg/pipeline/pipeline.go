// Package pipeline decides, packet by packet, whether an outbound TCP
// segment's advertised window must be lowered.
//
// A SYN starts tracking a connection and records its MSS and window scale.
// FIN or RST stops tracking. Every other segment of a tracked connection
// has its window capped at InitialCwnd segments. The pipeline only lowers
// windows and never drops a packet.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/baiwei0427/Lurker/pkg/core"
	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/tcp"
)

// Policy defaults.
const (
	DefaultInitialCwnd        = 10
	DefaultMSS                = 1460
	DefaultWindowScale uint8 = 0
)

// DefaultPolicy returns the default window policy.
func DefaultPolicy() core.PolicyConfig {
	return core.PolicyConfig{
		InitialCwnd:        DefaultInitialCwnd,
		DefaultMSS:         DefaultMSS,
		DefaultWindowScale: DefaultWindowScale,
	}
}

// Segment is the view of an outbound TCP segment the pipeline needs.
// *tcp.Segment implements it.
type Segment interface {
	Src() [4]byte
	Dst() [4]byte
	SrcPort() uint16
	DstPort() uint16
	Flags() tcp.Flags
	Window() uint16
	Options() []byte

	// SetWindow overwrites the window field and fixes the checksum.
	SetWindow(v uint16)
}

var _ Segment = (*tcp.Segment)(nil)

// Action is what the pipeline did with a packet.
type Action int

const (
	// PassThrough forwards the packet unchanged.
	PassThrough Action = iota
	// Rewrite forwards the packet with a lowered window.
	Rewrite
)

func (a Action) String() string {
	if a == Rewrite {
		return "rewrite"
	}
	return "pass"
}

// Reason explains a Decision.
type Reason int

const (
	ReasonFiltered Reason = iota
	ReasonNotTCP
	ReasonMalformed
	ReasonTeardown
	ReasonDuplicate
	ReasonInsertFailed
	ReasonUntracked
	ReasonWithinCap
	ReasonCapped
)

var reasonNames = [...]string{
	ReasonFiltered:     "filtered",
	ReasonNotTCP:       "not_tcp",
	ReasonMalformed:    "malformed",
	ReasonTeardown:     "teardown",
	ReasonDuplicate:    "duplicate",
	ReasonInsertFailed: "insert_failed",
	ReasonUntracked:    "untracked",
	ReasonWithinCap:    "within_cap",
	ReasonCapped:       "capped",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// Decision is the outcome for one packet.
type Decision struct {
	Action Action
	Reason Reason
	Key    flow.Key

	// Cap is the computed window limit, valid for ReasonWithinCap and
	// ReasonCapped.
	Cap uint16

	// OldWindow is the advertised window as received; NewWindow is what
	// left. They differ only for Rewrite.
	OldWindow uint16
	NewWindow uint16
}

func (d Decision) String() string {
	return fmt.Sprintf("%s(%s) %s cap=%d wnd=%d->%d", d.Action, d.Reason, d.Key, d.Cap, d.OldWindow, d.NewWindow)
}

// Pipeline drives the flow table for each outbound packet.
type Pipeline struct {
	table  *flow.Table
	policy core.PolicyConfig
	filter Filter
	obs    Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFilter installs the interface and port pre-filter used by Handle.
func WithFilter(f Filter) Option {
	return func(p *Pipeline) { p.filter = f }
}

// WithObserver sets the event observer.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) {
		if obs != nil {
			p.obs = obs
		}
	}
}

// New returns a pipeline over table. Zero InitialCwnd or DefaultMSS in
// policy are replaced by the defaults.
func New(table *flow.Table, policy core.PolicyConfig, opts ...Option) *Pipeline {
	if policy.InitialCwnd == 0 {
		policy.InitialCwnd = DefaultInitialCwnd
	}
	if policy.DefaultMSS == 0 {
		policy.DefaultMSS = DefaultMSS
	}
	p := &Pipeline{
		table:  table,
		policy: policy,
		obs:    nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Table returns the flow table the pipeline drives.
func (p *Pipeline) Table() *flow.Table { return p.table }

// Policy returns the effective window policy.
func (p *Pipeline) Policy() core.PolicyConfig { return p.policy }

// Decide classifies seg, updates the flow table and lowers the window of
// seg in place when it exceeds the cap.
func (p *Pipeline) Decide(seg Segment) Decision {
	key := flow.NewKey(seg.Src(), seg.Dst(), seg.SrcPort(), seg.DstPort())
	wnd := seg.Window()
	d := Decision{Action: PassThrough, Key: key, OldWindow: wnd, NewWindow: wnd}

	flags := seg.Flags()
	var st flow.State

	switch {
	case flags.Has(tcp.FlagSYN):
		// The entry is complete before it becomes visible to Find.
		st = p.synState(seg)
		_, err := p.table.Insert(key, st)
		switch {
		case errors.Is(err, flow.ErrDuplicate):
			p.obs.Observe(Event{Kind: EventDuplicateInsert, Key: key})
			d.Reason = ReasonDuplicate
			return d
		case err != nil:
			p.obs.Observe(Event{Kind: EventInsertFailed, Key: key, Err: err})
			d.Reason = ReasonInsertFailed
			return d
		}
		p.obs.Observe(Event{Kind: EventInserted, Key: key})

	case flags.Has(tcp.FlagFIN | tcp.FlagRST):
		if err := p.table.Remove(key); err == nil {
			p.obs.Observe(Event{Kind: EventRemoved, Key: key})
		}
		d.Reason = ReasonTeardown
		return d

	default:
		e, err := p.table.Find(key)
		if err != nil {
			p.obs.Observe(Event{Kind: EventLookupMiss, Key: key})
			d.Reason = ReasonUntracked
			return d
		}
		st = e.State()
	}

	d.Cap = tcp.WindowBytes(p.policy.InitialCwnd, st.MSS, st.WindowScale)
	if wnd <= d.Cap {
		d.Reason = ReasonWithinCap
		return d
	}

	seg.SetWindow(d.Cap)
	d.Action = Rewrite
	d.Reason = ReasonCapped
	d.NewWindow = d.Cap
	p.obs.Observe(Event{Kind: EventRewritten, Key: key, OldWindow: wnd, NewWindow: d.Cap})
	return d
}

// synState resolves the MSS and window scale a SYN announces, falling
// back to the policy defaults.
func (p *Pipeline) synState(seg Segment) flow.State {
	opts := seg.Options()
	o := tcp.ParseOptions(opts, len(opts))

	st := flow.State{MSS: p.policy.DefaultMSS, WindowScale: p.policy.DefaultWindowScale}
	if o.HasMSS && o.MSS != 0 {
		st.MSS = o.MSS
	}
	if o.HasWindowScale {
		st.WindowScale = o.WindowScale
	}
	return st
}

// Handle runs the pre-filter and Decide on a raw outbound packet. The
// packet is always to be forwarded; a returned error only reports a
// packet that claimed to be TCP but could not be parsed.
func (p *Pipeline) Handle(pkt core.Packet) (Decision, error) {
	if !p.filter.MatchInterface(pkt.Interface()) {
		return Decision{Reason: ReasonFiltered}, nil
	}

	seg, err := tcp.ParseSegment(pkt.Data())
	switch {
	case errors.Is(err, tcp.ErrNotIPv4), errors.Is(err, tcp.ErrNotTCP), errors.Is(err, tcp.ErrFragment):
		return Decision{Reason: ReasonNotTCP}, nil
	case err != nil:
		return Decision{Reason: ReasonMalformed}, err
	}

	if !p.filter.MatchPorts(seg.SrcPort(), seg.DstPort()) {
		return Decision{Reason: ReasonFiltered}, nil
	}
	return p.Decide(seg), nil
}

// ProcessPacket implements core.PacketProcessor.
func (p *Pipeline) ProcessPacket(pkt core.Packet) (core.Verdict, error) {
	d, err := p.Handle(pkt)
	if d.Action == Rewrite {
		return core.VerdictAcceptModified, err
	}
	return core.VerdictAccept, err
}

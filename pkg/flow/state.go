package flow

import (
	"sync"
	"time"
)

// State is the mutable per-connection record. Only MSS and WindowScale are
// written by the decision pipeline; the remaining fields are storage for a
// congestion estimator and stay at their zero values.
type State struct {
	// MSS is the negotiated maximum segment size. 0 means unknown.
	MSS uint16 `json:"mss"`

	// WindowScale is the window-scale shift count. 0 means unknown or none.
	WindowScale uint8 `json:"wscale"`

	// Cwnd is the estimated congestion window in segments.
	Cwnd uint16 `json:"cwnd"`

	// SRTT is the smoothed round-trip time.
	SRTT time.Duration `json:"srtt"`

	// RcvBytesTotal and RcvBytesECN count received bytes, all and CE-marked.
	RcvBytesTotal uint32 `json:"rcvBytesTotal"`
	RcvBytesECN   uint32 `json:"rcvBytesECN"`

	// ECNAlpha is the fraction of marked bytes, fixed point.
	ECNAlpha uint32 `json:"ecnAlpha"`

	// LastWindowUpdate is when the window cap was last recomputed.
	LastWindowUpdate time.Time `json:"lastWindowUpdate"`
}

// Entry is a tracked connection. An *Entry returned by the table stays
// valid after it has been removed; updates to a removed entry are simply
// never observed again.
type Entry struct {
	key  Key
	next *Entry

	mu    sync.Mutex
	state State
}

// Key returns the connection key.
func (e *Entry) Key() Key { return e.key }

// State returns a snapshot of the entry state.
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Update runs fn with exclusive access to the entry state.
func (e *Entry) Update(fn func(*State)) {
	e.mu.Lock()
	fn(&e.state)
	e.mu.Unlock()
}

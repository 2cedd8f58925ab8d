package events

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/baiwei0427/Lurker/pkg/logging"
	"github.com/baiwei0427/Lurker/pkg/pipeline"
)

// DefaultSubject is used when no NATS subject is configured.
const DefaultSubject = "lurker.flow.events"

// Record is the JSON form of an event published on NATS.
type Record struct {
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	LocalAddr  string    `json:"local_addr"`
	LocalPort  uint16    `json:"local_port"`
	RemoteAddr string    `json:"remote_addr"`
	RemotePort uint16    `json:"remote_port"`
	OldWindow  uint16    `json:"old_window,omitempty"`
	NewWindow  uint16    `json:"new_window,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewRecord converts ev, stamped with ts.
func NewRecord(ev pipeline.Event, ts time.Time) Record {
	r := Record{
		Time:       ts.UTC(),
		Kind:       ev.Kind.String(),
		LocalAddr:  ev.Key.Local().String(),
		LocalPort:  ev.Key.LocalPort,
		RemoteAddr: ev.Key.Remote().String(),
		RemotePort: ev.Key.RemotePort,
		OldWindow:  ev.OldWindow,
		NewWindow:  ev.NewWindow,
	}
	if ev.Err != nil {
		r.Error = ev.Err.Error()
	}
	return r
}

// publisher is the part of *nats.Conn the sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on a subject.
type NATSSink struct {
	nc      *nats.Conn
	pub     publisher
	subject string
	now     func() time.Time

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewNATSSink connects to url and publishes on subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("lurker"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logging.Infof("Connected to NATS server at %s", url)

	s := newNATSSink(nc, subject)
	s.nc = nc
	return s, nil
}

func newNATSSink(pub publisher, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{pub: pub, subject: subject, now: time.Now}
}

// Observe implements pipeline.Observer. Publish only buffers, so the
// packet path never waits on the server.
func (s *NATSSink) Observe(ev pipeline.Event) {
	data, err := json.Marshal(NewRecord(ev, s.now()))
	if err == nil {
		err = s.pub.Publish(s.subject, data)
	}
	if err != nil {
		// Only the first failure is logged.
		if s.failed.Add(1) == 1 {
			logging.Warnf("NATS publish on %s failed: %v", s.subject, err)
		}
		return
	}
	s.published.Add(1)
}

// Published returns how many events were handed to NATS.
func (s *NATSSink) Published() uint64 { return s.published.Load() }

// Failed returns how many events could not be published.
func (s *NATSSink) Failed() uint64 { return s.failed.Load() }

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			logging.Warnf("NATS drain failed: %v", err)
		}
		logging.Infof("NATS connection drained and closed.")
	}
}

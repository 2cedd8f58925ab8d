// Package events records pipeline events: to the log, as Prometheus
// metrics and on a NATS subject.
package events

import (
	"github.com/sirupsen/logrus"

	"github.com/baiwei0427/Lurker/pkg/logging"
	"github.com/baiwei0427/Lurker/pkg/pipeline"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink returns a sink logging through the process logger.
func NewLogSink() *LogSink {
	return &LogSink{log: logging.Component("flow")}
}

func eventFields(ev pipeline.Event) logrus.Fields {
	f := logrus.Fields{
		"event": ev.Kind.String(),
		"flow":  ev.Key.String(),
	}
	if ev.Kind == pipeline.EventRewritten {
		f["old_wnd"] = ev.OldWindow
		f["new_wnd"] = ev.NewWindow
	}
	if ev.Err != nil {
		f["error"] = ev.Err.Error()
	}
	return f
}

// Observe implements pipeline.Observer.
func (s *LogSink) Observe(ev pipeline.Event) {
	e := s.log.WithFields(eventFields(ev))
	switch ev.Kind {
	case pipeline.EventInsertFailed:
		e.Warn("flow not tracked")
	case pipeline.EventDuplicateInsert:
		e.Info("flow already tracked")
	default:
		// Per-connection events.
		e.Debug("flow event")
	}
}

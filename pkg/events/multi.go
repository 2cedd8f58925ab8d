package events

import "github.com/baiwei0427/Lurker/pkg/pipeline"

// Multi fans each event out to every observer in order.
type Multi []pipeline.Observer

// Observe implements pipeline.Observer.
func (m Multi) Observe(ev pipeline.Event) {
	for _, o := range m {
		o.Observe(ev)
	}
}

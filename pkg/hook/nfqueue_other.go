//go:build !linux

package hook

import (
	"context"
	"errors"
)

// NFQueueSource is only available on Linux.
type NFQueueSource struct{}

// NewNFQueueSource always fails outside Linux.
func NewNFQueueSource(cfg QueueConfig, proc *Processor) (*NFQueueSource, error) {
	return nil, errors.New("nfqueue is only supported on linux")
}

// Run is never reached.
func (s *NFQueueSource) Run(ctx context.Context) error { return errors.New("nfqueue is only supported on linux") }

// Close is a no-op.
func (s *NFQueueSource) Close() error { return nil }

// Metrics returns nil.
func (s *NFQueueSource) Metrics() map[string]uint64 { return nil }

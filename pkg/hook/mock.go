package hook

import (
	"sync"

	"github.com/baiwei0427/Lurker/pkg/core"
)

// Result is one verdict observed by a MockSource.
type Result struct {
	Data    []byte
	Verdict core.Verdict
}

// MockSource is an in-memory packet source for testing that doesn't
// require kernel access or elevated privileges.
type MockSource struct {
	proc *Processor

	mu      sync.Mutex
	results []Result
	wg      sync.WaitGroup
}

// NewMockSource creates a mock source feeding proc.
func NewMockSource(proc *Processor) *MockSource {
	return &MockSource{proc: proc}
}

// Inject submits a copy of data as a packet leaving through iface.
func (m *MockSource) Inject(data []byte, iface string) {
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	m.wg.Add(1)
	m.proc.Submit(core.NewPacket(dataCopy, iface), func(p core.Packet, v core.Verdict) {
		m.mu.Lock()
		m.results = append(m.results, Result{Data: p.Data(), Verdict: v})
		m.mu.Unlock()
		m.wg.Done()
	})
}

// Wait blocks until every injected packet has a verdict.
func (m *MockSource) Wait() {
	m.wg.Wait()
}

// Results returns the verdicts received so far in completion order.
func (m *MockSource) Results() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Result, len(m.results))
	copy(result, m.results)
	return result
}

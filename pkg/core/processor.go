package core

// Verdict is the outcome of processing one packet. Lurker never drops, so
// the only question is whether the bytes changed.
type Verdict int

const (
	// VerdictAccept forwards the packet as it was received.
	VerdictAccept Verdict = iota
	// VerdictAcceptModified forwards the packet after it was rewritten in place.
	VerdictAcceptModified
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictAcceptModified:
		return "accept-modified"
	default:
		return "unknown"
	}
}

// PacketProcessor processes packets from a packet source
type PacketProcessor interface {
	// ProcessPacket inspects and possibly rewrites packet. A non-nil error
	// is diagnostic only; the verdict is always honored.
	ProcessPacket(packet Packet) (Verdict, error)
}

// PacketProcessorFunc adapts a function to PacketProcessor.
type PacketProcessorFunc func(packet Packet) (Verdict, error)

// ProcessPacket calls f(packet).
func (f PacketProcessorFunc) ProcessPacket(packet Packet) (Verdict, error) {
	return f(packet)
}

// ProcessorMetrics contains metrics for a packet processor
type ProcessorMetrics struct {
	// PacketsProcessed is the number of packets handed to the pipeline
	PacketsProcessed uint64 `json:"packetsProcessed"`

	// PacketsRewritten is the number of packets whose window was lowered
	PacketsRewritten uint64 `json:"packetsRewritten"`

	// ProcessErrors is the number of packets the pipeline could not parse
	ProcessErrors uint64 `json:"processErrors"`

	// QueueFullBypass is the number of packets accepted unprocessed
	// because the worker queue was full
	QueueFullBypass uint64 `json:"queueFullBypass"`
}

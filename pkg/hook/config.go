package hook

// QueueConfig selects the NFQUEUE to bind.
type QueueConfig struct {
	// Num is the queue number used in the NFQUEUE rule.
	Num uint16 `json:"num" yaml:"num"`

	// MaxLen is the kernel-side queue length.
	MaxLen uint32 `json:"max_len" yaml:"maxLen"`
}

package core

// FilterConfig selects which outbound packets reach the pipeline.
type FilterConfig struct {
	// Interface restricts processing to one output interface. Empty means all.
	Interface string `json:"interface" yaml:"interface"`

	// Port restricts processing to segments with this source or
	// destination port. 0 means all ports.
	Port uint16 `json:"port" yaml:"port"`
}

// TableConfig sizes the flow table.
type TableConfig struct {
	// Bits is the bucket-count exponent; the table has 2^Bits buckets.
	Bits uint8 `json:"bits" yaml:"bits"`

	// MaxEntries caps the number of tracked connections. 0 means unlimited.
	MaxEntries int `json:"max_entries" yaml:"maxEntries"`
}

// PolicyConfig holds the window policy constants.
type PolicyConfig struct {
	// InitialCwnd is the congestion window, in segments, used for the cap.
	InitialCwnd uint16 `json:"initial_cwnd" yaml:"initialCwnd"`

	// DefaultMSS applies when a SYN carries no usable MSS option.
	DefaultMSS uint16 `json:"default_mss" yaml:"defaultMSS"`

	// DefaultWindowScale applies when a SYN carries no window-scale option.
	DefaultWindowScale uint8 `json:"default_window_scale" yaml:"defaultWindowScale"`
}

package pipeline

import "github.com/baiwei0427/Lurker/pkg/core"

// Filter is the pre-filter in front of the decision pipeline. Packets it
// rejects are forwarded without touching the flow table.
type Filter struct {
	cfg core.FilterConfig
}

// NewFilter returns a filter for cfg.
func NewFilter(cfg core.FilterConfig) Filter {
	return Filter{cfg: cfg}
}

// MatchInterface reports whether a packet leaving through iface is in
// scope. An unknown interface ("") always matches.
func (f Filter) MatchInterface(iface string) bool {
	return f.cfg.Interface == "" || iface == "" || iface == f.cfg.Interface
}

// MatchPorts reports whether a segment between the two ports is in scope.
func (f Filter) MatchPorts(src, dst uint16) bool {
	return f.cfg.Port == 0 || src == f.cfg.Port || dst == f.cfg.Port
}

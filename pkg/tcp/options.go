package tcp

// Option kinds understood by ParseOptions.
const (
	OptionEOL         = 0
	OptionNOP         = 1
	OptionMSS         = 2
	OptionWindowScale = 3
)

const (
	lenMSS         = 4
	lenWindowScale = 3
)

// Options holds the handshake options Lurker cares about.
type Options struct {
	MSS            uint16
	HasMSS         bool
	WindowScale    uint8
	HasWindowScale bool
}

// ParseOptions walks the option bytes that follow the fixed TCP header and
// extracts MSS and window scale. maxLen bounds the walk in addition to
// len(opts); callers pass the options length declared by the data offset.
//
// Every step advances the cursor by at least one byte, and a length byte
// below 2 ends the walk, so the work is bounded by maxLen whatever the
// input. Malformed options leave the corresponding field unset.
func ParseOptions(opts []byte, maxLen int) Options {
	var o Options

	end := len(opts)
	if maxLen < end {
		end = maxLen
	}

	for i := 0; i < end && !(o.HasMSS && o.HasWindowScale); {
		kind := opts[i]
		switch kind {
		case OptionEOL:
			return o
		case OptionNOP:
			i++
			continue
		}

		if i+1 >= end {
			return o
		}
		l := int(opts[i+1])
		if l < 2 {
			return o
		}
		if i+l <= end {
			switch {
			case kind == OptionMSS && l == lenMSS:
				o.MSS = uint16(opts[i+2])<<8 | uint16(opts[i+3])
				o.HasMSS = true
			case kind == OptionWindowScale && l == lenWindowScale:
				o.WindowScale = opts[i+2]
				o.HasWindowScale = true
			}
		}
		i += l
	}
	return o
}

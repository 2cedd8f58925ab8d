package tcp

// MaxWindowScale is the largest shift count RFC 7323 allows.
const MaxWindowScale = 14

// WindowBytes converts a window of cwnd segments of mss bytes into the raw
// window field value under the given scale, rounding up. The result
// saturates at the largest representable window.
func WindowBytes(cwnd uint16, mss uint16, scale uint8) uint16 {
	if scale > MaxWindowScale {
		scale = MaxWindowScale
	}
	wnd := uint64(cwnd) * uint64(mss)
	wnd = (wnd + (1 << scale) - 1) >> scale
	if wnd > 0xffff {
		return 0xffff
	}
	return uint16(wnd)
}

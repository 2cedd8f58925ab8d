package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOptionsMSSAndScale(t *testing.T) {
	opts := []byte{OptionNOP, OptionMSS, 4, 0x05, 0xB4, OptionWindowScale, 3, 0x07}
	o := ParseOptions(opts, len(opts))
	assert.True(t, o.HasMSS)
	assert.Equal(t, uint16(1460), o.MSS)
	assert.True(t, o.HasWindowScale)
	assert.Equal(t, uint8(7), o.WindowScale)
}

func TestParseOptionsLinuxSYN(t *testing.T) {
	// MSS, SACK permitted, timestamps, NOP, window scale.
	opts := []byte{
		0x02, 0x04, 0xff, 0xd7,
		0x04, 0x02,
		0x08, 0x0a, 0x00, 0x01, 0x02, 0x03, 0x00, 0x00, 0x00, 0x00,
		0x01,
		0x03, 0x03, 0x09,
	}
	o := ParseOptions(opts, len(opts))
	assert.Equal(t, Options{MSS: 65495, HasMSS: true, WindowScale: 9, HasWindowScale: true}, o)
}

func TestParseOptionsMissing(t *testing.T) {
	assert.Equal(t, Options{}, ParseOptions(nil, 0))
	assert.Equal(t, Options{}, ParseOptions([]byte{OptionNOP, OptionNOP, OptionNOP, OptionNOP}, 4))

	o := ParseOptions([]byte{OptionMSS, 4, 0x02, 0x18}, 4)
	assert.True(t, o.HasMSS)
	assert.Equal(t, uint16(536), o.MSS)
	assert.False(t, o.HasWindowScale)
}

func TestParseOptionsStopsAtEOL(t *testing.T) {
	opts := []byte{OptionEOL, OptionMSS, 4, 0x05, 0xB4}
	assert.Equal(t, Options{}, ParseOptions(opts, len(opts)))
}

func TestParseOptionsBoundedByMaxLen(t *testing.T) {
	opts := []byte{OptionNOP, OptionMSS, 4, 0x05, 0xB4, OptionWindowScale, 3, 0x07}
	o := ParseOptions(opts, 5)
	assert.True(t, o.HasMSS)
	assert.False(t, o.HasWindowScale)

	// MSS straddling the bound is not read.
	o = ParseOptions(opts, 4)
	assert.False(t, o.HasMSS)
}

func TestParseOptionsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"zero length":      {OptionMSS, 0, 0x05, 0xB4},
		"length one":       {0x22, 1, OptionMSS, 4, 0x05, 0xB4},
		"missing length":   {OptionNOP, OptionMSS},
		"length overflows": {OptionMSS, 40, 0x05, 0xB4},
		"wrong mss length": {OptionMSS, 3, 0x05},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			o := ParseOptions(opts, len(opts))
			assert.False(t, o.HasMSS)
			assert.False(t, o.HasWindowScale)
		})
	}
}

func TestParseOptionsSkipsUnknown(t *testing.T) {
	opts := []byte{0x1e, 0x04, 0xaa, 0xbb, OptionWindowScale, 3, 0x02}
	o := ParseOptions(opts, len(opts))
	assert.False(t, o.HasMSS)
	assert.True(t, o.HasWindowScale)
	assert.Equal(t, uint8(2), o.WindowScale)
}

func TestParseOptionsTerminatesOnGarbage(t *testing.T) {
	// Every byte pattern must finish within the bound.
	buf := make([]byte, 40)
	for seed := 0; seed < 256; seed++ {
		for i := range buf {
			buf[i] = byte(seed*31 + i*seed)
		}
		_ = ParseOptions(buf, len(buf))
	}
}

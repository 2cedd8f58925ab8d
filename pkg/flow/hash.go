package flow

// crcPoly is the CCITT CRC-16 generator polynomial (x^16 + x^12 + x^5 + 1).
const crcPoly = 0x1021

var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// crc16 runs the MSB-first table-driven CRC-16 over data with a zero
// initial remainder.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		pos := byte(crc>>8) ^ b
		crc = crc<<8 ^ crcTable[pos]
	}
	return crc
}

// Hash returns the 16-bit fingerprint of k. The key is laid out as six
// big-endian 16-bit words (local high, local low, remote high, remote low,
// local port, remote port) before hashing.
func Hash(k Key) uint16 {
	var b [12]byte
	putWord := func(i int, v uint16) {
		b[i] = byte(v >> 8)
		b[i+1] = byte(v)
	}
	putWord(0, uint16(k.LocalAddr>>16))
	putWord(2, uint16(k.LocalAddr))
	putWord(4, uint16(k.RemoteAddr>>16))
	putWord(6, uint16(k.RemoteAddr))
	putWord(8, k.LocalPort)
	putWord(10, k.RemotePort)
	return crc16(b[:])
}

// bucketIndex keeps the top bits of the fingerprint.
func bucketIndex(k Key, bits uint8) uint32 {
	if bits == 0 {
		return 0
	}
	return uint32(Hash(k) >> (16 - bits))
}

package flow

import (
	"fmt"
	"net/netip"
)

// Key identifies one direction of a TCP connection. Local is the source of
// the outbound packet that produced the key, Remote its destination. Keys
// are compared field by field; the two directions of a connection are
// distinct keys.
type Key struct {
	LocalAddr  uint32
	RemoteAddr uint32
	LocalPort  uint16
	RemotePort uint16
}

// NewKey builds a Key from IPv4 addresses in network byte order.
func NewKey(local, remote [4]byte, localPort, remotePort uint16) Key {
	return Key{
		LocalAddr:  addrToUint32(local),
		RemoteAddr: addrToUint32(remote),
		LocalPort:  localPort,
		RemotePort: remotePort,
	}
}

// Local returns the local address as a netip.Addr.
func (k Key) Local() netip.Addr { return netip.AddrFrom4(uint32ToAddr(k.LocalAddr)) }

// Remote returns the remote address as a netip.Addr.
func (k Key) Remote() netip.Addr { return netip.AddrFrom4(uint32ToAddr(k.RemoteAddr)) }

func (k Key) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", k.Local(), k.LocalPort, k.Remote(), k.RemotePort)
}

func addrToUint32(a [4]byte) uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

func uint32ToAddr(v uint32) [4]byte {
	return [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

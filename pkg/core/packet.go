package core

// Packet is one IPv4 datagram on the outbound path. Data returns the
// underlying buffer, not a copy; processors may rewrite it in place.
type Packet interface {
	// Data returns the packet data
	Data() []byte

	// Length returns the packet length
	Length() int

	// Interface returns the name of the output interface, or "" when the
	// source does not know it
	Interface() string
}

// SimplePacket is a simple implementation of Packet
type SimplePacket struct {
	data  []byte
	iface string
}

// NewPacket creates a new packet leaving through iface. A nil data slice
// yields an empty packet.
func NewPacket(data []byte, iface string) Packet {
	if data == nil {
		data = make([]byte, 0)
	}
	return &SimplePacket{data: data, iface: iface}
}

// Data returns the packet data
func (p *SimplePacket) Data() []byte {
	return p.data
}

// Length returns the packet length
func (p *SimplePacket) Length() int {
	return len(p.data)
}

// Interface returns the output interface name
func (p *SimplePacket) Interface() string {
	return p.iface
}

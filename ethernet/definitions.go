package ethernet

import "strconv"

const sizeHeader = 14

// AppendAddr appends the text representation of the hardware address to the destination buffer.
func AppendAddr(dst []byte, hwAddr [6]byte) []byte {
	for i, b := range hwAddr {
		if i != 0 {
			dst = append(dst, ':')
		}
		if b < 16 {
			dst = append(dst, '0')
		}
		dst = strconv.AppendUint(dst, uint64(b), 16)
	}
	return dst
}

// BroadcastAddr returns the all 0xff's broadcast hardware/MAC address.
func BroadcastAddr() [6]byte {
	return [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// Type identifies the protocol encapsulated in the payload of an Ethernet II frame.
type Type uint16

// IsSize returns true if the EtherType is actually the size of the payload
// and should NOT be interpreted as an EtherType.
func (et Type) IsSize() bool { return et <= 1500 }

// Ethernet type flags a single-link IPv4 stack is expected to meet.
const (
	TypeIPv4 Type = 0x0800 // IPv4
	TypeARP  Type = 0x0806 // ARP
	TypeRARP Type = 0x8035 // RARP
	TypeVLAN Type = 0x8100 // VLAN
	TypeIPv6 Type = 0x86DD // IPv6
)

func (et Type) String() string {
	switch et {
	case TypeIPv4:
		return "IPv4"
	case TypeARP:
		return "ARP"
	case TypeRARP:
		return "RARP"
	case TypeVLAN:
		return "VLAN"
	case TypeIPv6:
		return "IPv6"
	}
	if et.IsSize() {
		return "size=" + strconv.FormatUint(uint64(et), 10)
	}
	return "0x" + strconv.FormatUint(uint64(et), 16)
}

package arp

import (
	"encoding/binary"

	"github.com/netstax/etharp"
	"github.com/netstax/etharp/ethernet"
	"github.com/netstax/etharp/internal"
)

// NewFrame returns a Frame with data set to buf.
// An error is returned if the buffer is smaller than the 28 bytes an
// IPv4-over-Ethernet ARP frame occupies.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < SizeFrame {
		return Frame{buf: nil}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an IPv4-over-Ethernet ARP packet
// and provides methods for manipulating, validating and retrieving its
// fields. See [RFC826].
//
// [RFC826]: https://tools.ietf.org/html/rfc826
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (afrm Frame) RawData() []byte { return afrm.buf }

// Hardware returns the network link protocol type and address length.
// Ethernet is type 1, length 6.
func (afrm Frame) Hardware() (Type uint16, length uint8) {
	return binary.BigEndian.Uint16(afrm.buf[0:2]), afrm.buf[4]
}

// Protocol returns the internet protocol type and address length.
// IPv4 is [ethernet.TypeIPv4], length 4.
func (afrm Frame) Protocol() (Type ethernet.Type, length uint8) {
	return ethernet.Type(binary.BigEndian.Uint16(afrm.buf[2:4])), afrm.buf[5]
}

// SetEthernetIPv4 writes the hardware and protocol fields for an
// IPv4-over-Ethernet frame: hardware type 1 length 6, protocol type
// 0x0800 length 4.
func (afrm Frame) SetEthernetIPv4() {
	binary.BigEndian.PutUint16(afrm.buf[0:2], hardwareEthernet)
	binary.BigEndian.PutUint16(afrm.buf[2:4], uint16(ethernet.TypeIPv4))
	afrm.buf[4] = sizeHWAddr
	afrm.buf[5] = sizeProtoAddr
}

// Operation returns the ARP header operation field. See [Operation].
func (afrm Frame) Operation() Operation {
	return Operation(binary.BigEndian.Uint16(afrm.buf[6:8]))
}

// SetOperation sets the ARP header operation field. See [Operation].
func (afrm Frame) SetOperation(op Operation) {
	binary.BigEndian.PutUint16(afrm.buf[6:8], uint16(op))
}

// Sender returns the hardware (MAC) and protocol (IPv4) addresses of the
// sender of the ARP packet. In a request the sender is the querying host;
// in a reply it is the host the request was looking for.
func (afrm Frame) Sender() (hardwareAddr *[6]byte, proto *[4]byte) {
	return (*[6]byte)(afrm.buf[8:14]), (*[4]byte)(afrm.buf[14:18])
}

// Target returns the hardware (MAC) and protocol (IPv4) addresses of the
// target of the ARP packet. In a request the target MAC is ignored and
// conventionally zero.
func (afrm Frame) Target() (hardwareAddr *[6]byte, proto *[4]byte) {
	return (*[6]byte)(afrm.buf[18:24]), (*[4]byte)(afrm.buf[24:28])
}

// ClearHeader zeros out the fixed header contents.
func (afrm Frame) ClearHeader() {
	for i := range afrm.buf[:sizeHeader] {
		afrm.buf[i] = 0
	}
}

// String returns a single-line summary of the frame for logs.
func (afrm Frame) String() string {
	shw, sproto := afrm.Sender()
	_, tproto := afrm.Target()
	b := make([]byte, 0, 64)
	b = append(b, "ARP "...)
	b = append(b, afrm.Operation().String()...)
	b = append(b, ' ')
	b = internal.AppendAddr4(b, *sproto)
	b = append(b, '@')
	b = ethernet.AppendAddr(b, *shw)
	b = append(b, " -> "...)
	b = internal.AppendAddr4(b, *tproto)
	return string(b)
}

// Validation API.
//
// Validate checks the fixed fields of the frame identify an
// IPv4-over-Ethernet ARP packet and that the buffer can hold it.
func (afrm Frame) Validate(v *etharp.Validator) {
	if len(afrm.buf) < SizeFrame {
		v.AddError(errShortFrame)
		return
	}
	htype, hlen := afrm.Hardware()
	if htype != hardwareEthernet || hlen != sizeHWAddr {
		v.AddError(errBadHardware)
	}
	ptype, plen := afrm.Protocol()
	if ptype != ethernet.TypeIPv4 || plen != sizeProtoAddr {
		v.AddError(errBadProtocol)
	}
}

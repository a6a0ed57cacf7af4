package arp

import (
	"strings"
	"testing"

	"github.com/netstax/etharp"
)

func TestFrameBuild(t *testing.T) {
	buf := make([]byte, SizeFrame)
	afrm, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	afrm.SetEthernetIPv4()
	afrm.SetOperation(OpRequest)
	shw, sproto := afrm.Sender()
	*shw = [6]byte{0x02, 0, 0, 0, 0, 1}
	*sproto = [4]byte{192, 168, 1, 1}
	thw, tproto := afrm.Target()
	*thw = [6]byte{}
	*tproto = [4]byte{192, 168, 1, 2}

	// Reparse from the raw bytes.
	reparsed, err := NewFrame(afrm.RawData())
	if err != nil {
		t.Fatal(err)
	}
	var vld etharp.Validator
	reparsed.Validate(&vld)
	if vld.HasError() {
		t.Fatal(vld.Err())
	}
	htype, hlen := reparsed.Hardware()
	if htype != 1 || hlen != 6 {
		t.Errorf("hardware = %d/%d, want 1/6", htype, hlen)
	}
	if reparsed.Operation() != OpRequest {
		t.Errorf("operation = %v, want request", reparsed.Operation())
	}
	_, gotProto := reparsed.Sender()
	if *gotProto != ([4]byte{192, 168, 1, 1}) {
		t.Errorf("sender proto = %v", *gotProto)
	}
	s := reparsed.String()
	if !strings.Contains(s, "request") || !strings.Contains(s, "192.168.1.2") {
		t.Errorf("String() = %q", s)
	}
}

func TestFrameTooShort(t *testing.T) {
	_, err := NewFrame(make([]byte, SizeFrame-1))
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestValidateRejectsForeignLink(t *testing.T) {
	buf := make([]byte, SizeFrame)
	afrm, _ := NewFrame(buf)
	afrm.SetEthernetIPv4()
	buf[0], buf[1] = 0, 6 // IEEE 802 hardware type
	var vld etharp.Validator
	afrm.Validate(&vld)
	if !vld.HasError() {
		t.Error("hardware type 6 passed IPv4-over-Ethernet validation")
	}

	vld.ResetErr()
	afrm.SetEthernetIPv4()
	buf[5] = 16 // IPv6-sized protocol addresses
	afrm.Validate(&vld)
	if !vld.HasError() {
		t.Error("protocol length 16 passed IPv4-over-Ethernet validation")
	}
}

package ethernet

import (
	"testing"

	"github.com/netstax/etharp"
)

func TestFrame(t *testing.T) {
	buf := make([]byte, 64)
	efrm, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	*efrm.DestinationHardwareAddr() = BroadcastAddr()
	*efrm.SourceHardwareAddr() = [6]byte{0x02, 0, 0, 0, 0, 1}
	efrm.SetEtherType(TypeARP)

	if !efrm.IsBroadcast() {
		t.Error("broadcast destination not detected")
	}
	if efrm.EtherTypeOrSize() != TypeARP {
		t.Errorf("ethertype = %v, want ARP", efrm.EtherTypeOrSize())
	}
	if got := len(efrm.Payload()); got != 64-14 {
		t.Errorf("payload length = %d, want 50", got)
	}
	var vld etharp.Validator
	efrm.ValidateSize(&vld)
	if vld.HasError() {
		t.Fatal(vld.Err())
	}
}

func TestNewFrameShort(t *testing.T) {
	_, err := NewFrame(make([]byte, 13))
	if err == nil {
		t.Fatal("expected error for sub-header buffer")
	}
}

func TestAppendAddr(t *testing.T) {
	got := string(AppendAddr(nil, [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}))
	if got != "de:ad:be:ef:00:01" {
		t.Errorf("AppendAddr = %q", got)
	}
}

func TestTypeString(t *testing.T) {
	if TypeIPv4.String() != "IPv4" || TypeARP.String() != "ARP" {
		t.Error("known EtherType names wrong")
	}
	if Type(100).String() != "size=100" {
		t.Errorf("size-valued type = %q", Type(100).String())
	}
}

package ntp_test

import (
	"math"
	"net/netip"
	"testing"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/net/ntp"
)

func TestPacketRoundTrip(t *testing.T) {
	p0 := ntp.Packet{
		Stratum:        2,
		Poll:           -3,
		Precision:      math.MinInt8,
		RootDelay:      0x0001_8000,
		RootDispersion: math.MaxUint32,
		ReferenceID:    0xc000_0201,
		ReferenceTime:  ntptime.TimestampFromParts(1, 2),
		OriginTime:     ntptime.TimestampFromParts(math.MaxUint32, math.MaxUint32),
		ReceiveTime:    ntptime.TimestampFromParts(0, 1),
		TransmitTime:   ntptime.TimestampFromParts(0xdead_beef, 0x0bad_f00d),
	}
	p0.SetLeapIndicator(ntp.LeapIndicatorInsertSecond)
	p0.SetVersion(ntp.VersionMax)
	p0.SetMode(ntp.ModeServer)

	var b []byte
	ntp.EncodePacket(&b, &p0)
	if len(b) != ntp.PacketLen {
		t.Fatalf("len(b) = %d, want %d", len(b), ntp.PacketLen)
	}
	var p1 ntp.Packet
	err := ntp.DecodePacket(&p1, b)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p0 {
		t.Errorf("DecodePacket(EncodePacket(p0)) = %+v, want %+v", p1, p0)
	}
	if p1.RootDelayDuration().Seconds() != 1.5 {
		t.Errorf("p1.RootDelayDuration() = %v, want 1.5s", p1.RootDelayDuration())
	}
}

func TestDecodeShortPacket(t *testing.T) {
	var p ntp.Packet
	err := ntp.DecodePacket(&p, make([]byte, ntp.PacketLen-1))
	if err == nil {
		t.Errorf("DecodePacket must fail on short input")
	}
}

func TestDecodeIgnoresTrailingData(t *testing.T) {
	p0 := ntp.Packet{Stratum: 1}
	b := make([]byte, ntp.PacketLen)
	ntp.EncodePacket(&b, &p0)
	b = append(b, 0xff, 0xff, 0xff, 0xff)
	var p1 ntp.Packet
	err := ntp.DecodePacket(&p1, b)
	if err != nil {
		t.Fatal(err)
	}
	if p1.Stratum != 1 {
		t.Errorf("p1.Stratum = %d, want 1", p1.Stratum)
	}
}

func TestLeapIndicatorRoundTrip(t *testing.T) {
	for l := range uint8(4) {
		p0 := ntp.Packet{}
		p0.SetLeapIndicator(l)
		b := make([]byte, ntp.PacketLen)
		ntp.EncodePacket(&b, &p0)
		p1 := ntp.Packet{}
		err := ntp.DecodePacket(&p1, b)
		if err != nil {
			panic(err)
		}
		if p0.LeapIndicator() != l || p1.LeapIndicator() != l {
			t.Fail()
		}
	}
}

func TestVersionRoundTrip(t *testing.T) {
	for v := range uint8(8) {
		p0 := ntp.Packet{}
		p0.SetVersion(v)
		b := make([]byte, ntp.PacketLen)
		ntp.EncodePacket(&b, &p0)
		p1 := ntp.Packet{}
		err := ntp.DecodePacket(&p1, b)
		if err != nil {
			panic(err)
		}
		if p0.Version() != v || p1.Version() != v {
			t.Fail()
		}
	}
}

func TestModeRoundTrip(t *testing.T) {
	for m := range uint8(8) {
		p0 := ntp.Packet{}
		p0.SetMode(m)
		b := make([]byte, ntp.PacketLen)
		ntp.EncodePacket(&b, &p0)
		p1 := ntp.Packet{}
		err := ntp.DecodePacket(&p1, b)
		if err != nil {
			panic(err)
		}
		if p0.Mode() != m || p1.Mode() != m {
			t.Fail()
		}
	}
}

func TestLVMFieldsIndependent(t *testing.T) {
	p := ntp.Packet{}
	p.SetLeapIndicator(ntp.LeapIndicatorUnknown)
	p.SetVersion(ntp.VersionMax)
	p.SetMode(ntp.ModeClient)
	p.SetVersion(3)
	if p.LeapIndicator() != ntp.LeapIndicatorUnknown || p.Version() != 3 || p.Mode() != ntp.ModeClient {
		t.Errorf("unexpected LVM fields: %d, %d, %d", p.LeapIndicator(), p.Version(), p.Mode())
	}
}

func TestKissOfDeath(t *testing.T) {
	p := ntp.Packet{
		Stratum:     ntp.StratumUnspecified,
		ReferenceID: ntp.ReferenceIDFromString(ntp.KissRate),
	}
	p.SetMode(ntp.ModeServer)
	if !p.IsKissOfDeath() {
		t.Errorf("p must be a kiss-o'-death packet")
	}
	if p.KissCode() != ntp.KissRate {
		t.Errorf("p.KissCode() = %q, want %q", p.KissCode(), ntp.KissRate)
	}
	p.Stratum = 1
	if p.IsKissOfDeath() {
		t.Errorf("p must not be a kiss-o'-death packet")
	}
}

func TestReferenceIDFromAddr(t *testing.T) {
	id := ntp.ReferenceIDFromAddr(netip.MustParseAddr("192.0.2.1"))
	if id != 0xc000_0201 {
		t.Errorf("ReferenceIDFromAddr(192.0.2.1) = %#x, want 0xc0000201", id)
	}
	mapped := ntp.ReferenceIDFromAddr(netip.MustParseAddr("::ffff:192.0.2.1"))
	if mapped != id {
		t.Errorf("IPv4-mapped addresses must map to the IPv4 reference ID")
	}
	a := ntp.ReferenceIDFromAddr(netip.MustParseAddr("2001:db8::1"))
	b := ntp.ReferenceIDFromAddr(netip.MustParseAddr("2001:db8::2"))
	if a == b {
		t.Errorf("distinct IPv6 addresses must map to distinct reference IDs")
	}
}

func TestValidateRequest(t *testing.T) {
	req := ntp.Packet{}
	req.SetVersion(ntp.VersionMax)
	req.SetMode(ntp.ModeClient)
	if err := ntp.ValidateRequest(&req, 12345); err != nil {
		t.Errorf("ValidateRequest(req) = %v, want nil", err)
	}
	req.SetMode(ntp.ModeServer)
	if err := ntp.ValidateRequest(&req, 12345); err == nil {
		t.Errorf("ValidateRequest must reject server mode packets")
	}
}

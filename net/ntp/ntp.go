package ntp

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"net/netip"

	"example.com/timesync/base/ntptime"
)

const (
	ServerPortIP = 123

	PacketLen = 48

	LeapIndicatorNoWarning    = 0
	LeapIndicatorInsertSecond = 1
	LeapIndicatorDeleteSecond = 2
	LeapIndicatorUnknown      = 3

	VersionMin = 1
	VersionMax = 4

	ModeReserved0        = 0
	ModeSymmetricActive  = 1
	ModeSymmetricPassive = 2
	ModeClient           = 3
	ModeServer           = 4
	ModeBroadcast        = 5
	ModeControl          = 6
	ModeReserved7        = 7

	StratumUnspecified = 0
	StratumMax         = 15
	StratumUnsync      = 16
)

// Kiss codes carried in the reference ID of kiss-o'-death packets
const (
	KissRate = "RATE"
	KissDeny = "DENY"
	KissRstr = "RSTR"
)

type Packet struct {
	LVM            uint8
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32
	ReferenceTime  ntptime.Timestamp
	OriginTime     ntptime.Timestamp
	ReceiveTime    ntptime.Timestamp
	TransmitTime   ntptime.Timestamp
}

var (
	errUnexpectedPacketSize = errors.New("unexpected packet size")
)

func EncodePacket(b *[]byte, pkt *Packet) {
	if cap(*b) < PacketLen {
		*b = make([]byte, PacketLen)
	} else {
		*b = (*b)[:PacketLen]
	}

	buf := *b
	_ = buf[47]
	buf[0] = pkt.LVM
	buf[1] = pkt.Stratum
	buf[2] = byte(pkt.Poll)
	buf[3] = byte(pkt.Precision)
	binary.BigEndian.PutUint32(buf[4:], pkt.RootDelay)
	binary.BigEndian.PutUint32(buf[8:], pkt.RootDispersion)
	binary.BigEndian.PutUint32(buf[12:], pkt.ReferenceID)
	binary.BigEndian.PutUint64(buf[16:], uint64(pkt.ReferenceTime))
	binary.BigEndian.PutUint64(buf[24:], uint64(pkt.OriginTime))
	binary.BigEndian.PutUint64(buf[32:], uint64(pkt.ReceiveTime))
	binary.BigEndian.PutUint64(buf[40:], uint64(pkt.TransmitTime))
}

// DecodePacket decodes the NTP header at the start of b. Trailing data, e.g.
// a message authentication code, is ignored.
func DecodePacket(pkt *Packet, b []byte) error {
	if len(b) < PacketLen {
		return errUnexpectedPacketSize
	}

	_ = b[47]
	pkt.LVM = b[0]
	pkt.Stratum = b[1]
	pkt.Poll = int8(b[2])
	pkt.Precision = int8(b[3])
	pkt.RootDelay = binary.BigEndian.Uint32(b[4:])
	pkt.RootDispersion = binary.BigEndian.Uint32(b[8:])
	pkt.ReferenceID = binary.BigEndian.Uint32(b[12:])
	pkt.ReferenceTime = ntptime.Timestamp(binary.BigEndian.Uint64(b[16:]))
	pkt.OriginTime = ntptime.Timestamp(binary.BigEndian.Uint64(b[24:]))
	pkt.ReceiveTime = ntptime.Timestamp(binary.BigEndian.Uint64(b[32:]))
	pkt.TransmitTime = ntptime.Timestamp(binary.BigEndian.Uint64(b[40:]))

	return nil
}

func (p *Packet) LeapIndicator() uint8 {
	return (p.LVM >> 6) & 0b0000_0011
}

func (p *Packet) SetLeapIndicator(l uint8) {
	if l&0b0000_0011 != l {
		panic("unexpected NTP leap indicator value")
	}
	p.LVM = (p.LVM & 0b0011_1111) | (l << 6)
}

func (p *Packet) Version() uint8 {
	return (p.LVM >> 3) & 0b0000_0111
}

func (p *Packet) SetVersion(v uint8) {
	if v&0b0000_0111 != v {
		panic("unexpected NTP version value")
	}
	p.LVM = (p.LVM & 0b_1100_0111) | (v << 3)
}

func (p *Packet) Mode() uint8 {
	return p.LVM & 0b0000_0111
}

func (p *Packet) SetMode(m uint8) {
	if m&0b0000_0111 != m {
		panic("unexpected NTP mode value")
	}
	p.LVM = (p.LVM & 0b1111_1000) | m
}

// IsKissOfDeath reports whether p is a kiss-o'-death packet.
func (p *Packet) IsKissOfDeath() bool {
	return p.Mode() == ModeServer && p.Stratum == StratumUnspecified
}

// KissCode returns the kiss code of a kiss-o'-death packet.
func (p *Packet) KissCode() string {
	return ReferenceIDString(p.ReferenceID)
}

func (p *Packet) RootDelayDuration() ntptime.Duration {
	return ntptime.DurationFromShort(p.RootDelay)
}

func (p *Packet) RootDispersionDuration() ntptime.Duration {
	return ntptime.DurationFromShort(p.RootDispersion)
}

// ReferenceIDFromAddr derives the reference ID identifying the server at addr:
// the address itself for IPv4, the first four octets of the MD5 digest of the
// address for IPv6.
func ReferenceIDFromAddr(addr netip.Addr) uint32 {
	addr = addr.Unmap()
	if addr.Is4() {
		a := addr.As4()
		return binary.BigEndian.Uint32(a[:])
	}
	a := addr.As16()
	h := md5.Sum(a[:])
	return binary.BigEndian.Uint32(h[:4])
}

// ReferenceIDFromString encodes an ASCII identifier such as a kiss code or
// a reference clock name.
func ReferenceIDFromString(s string) uint32 {
	var b [4]byte
	copy(b[:], s)
	return binary.BigEndian.Uint32(b[:])
}

func ReferenceIDString(id uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

package ntp

import (
	"go.uber.org/zap/zapcore"
)

type PacketMarshaler struct {
	Pkt *Packet
}

func (m PacketMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint8("LVM", m.Pkt.LVM)
	enc.AddUint8("Stratum", m.Pkt.Stratum)
	enc.AddInt8("Poll", m.Pkt.Poll)
	enc.AddInt8("Precision", m.Pkt.Precision)
	enc.AddDuration("RootDelay", m.Pkt.RootDelayDuration().Std())
	enc.AddDuration("RootDispersion", m.Pkt.RootDispersionDuration().Std())
	enc.AddUint32("ReferenceID", m.Pkt.ReferenceID)
	enc.AddUint64("ReferenceTime", uint64(m.Pkt.ReferenceTime))
	enc.AddUint64("OriginTime", uint64(m.Pkt.OriginTime))
	enc.AddUint64("ReceiveTime", uint64(m.Pkt.ReceiveTime))
	enc.AddUint64("TransmitTime", uint64(m.Pkt.TransmitTime))
	return nil
}

package ntptime

import (
	"time"
)

const (
	// Seconds from Unix epoch (1970) to NTP epoch (1900), including 17 leap days
	epoch int64 = -2208988800

	nanosecondsPerSecond int64 = 1e9
	secondsPerEra        int64 = 1 << 32
)

// Timestamp is an NTP timestamp in 32.32 fixed point format. The seconds part
// counts seconds since the start of the timestamp's era; the era itself is not
// represented and is resolved against a reference time when needed.
type Timestamp uint64

func TimestampFromParts(sec, frac uint32) Timestamp {
	return Timestamp(uint64(sec)<<32 | uint64(frac))
}

func TimestampFromTime(t time.Time) Timestamp {
	sec := uint32(t.Unix() - epoch)
	frac := uint32((int64(t.Nanosecond())<<32 + nanosecondsPerSecond/2) / nanosecondsPerSecond)
	return TimestampFromParts(sec, frac)
}

func (t Timestamp) Seconds() uint32 {
	return uint32(t >> 32)
}

func (t Timestamp) Fraction() uint32 {
	return uint32(t)
}

// Time converts t to a time.Time using the reference time ref to resolve the
// era ambiguity. The result lies within half an era of ref.
func (t Timestamp) Time(ref time.Time) time.Time {
	tref := ref.Unix()

	sec := epoch + (tref-epoch)/secondsPerEra*secondsPerEra + int64(t.Seconds())
	if sec < tref-secondsPerEra/2 {
		sec += secondsPerEra
	} else if sec > tref+secondsPerEra/2 {
		sec -= secondsPerEra
	}

	nsec := (int64(t.Fraction())*nanosecondsPerSecond + 1<<31) >> 32
	return time.Unix(sec, nsec).UTC()
}

// Sub returns t-u. The computation is modular, so the result is correct
// across an era rollover as long as the true difference is within 2^31 s.
func (t Timestamp) Sub(u Timestamp) Duration {
	return Duration(int64(t - u))
}

func (t Timestamp) Add(d Duration) Timestamp {
	return t + Timestamp(d)
}

func (t Timestamp) Before(u Timestamp) bool {
	return t.Sub(u) < 0
}

func (t Timestamp) After(u Timestamp) bool {
	return t.Sub(u) > 0
}

func (t Timestamp) IsZero() bool {
	return t == 0
}

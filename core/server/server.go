package server

import (
	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/sync"
	"example.com/timesync/net/ntp"
)

// DefaultPrecision is the precision announced in responses, about one
// microsecond.
const DefaultPrecision = -20

// handleRequest fills in resp for req, received at rxt and to be sent at txt,
// from the system snapshot s at now.
func handleRequest(s sync.SystemSnapshot, now ntptime.Instant, precision int8,
	req *ntp.Packet, rxt, txt ntptime.Timestamp, resp *ntp.Packet) {
	resp.SetVersion(req.Version())
	resp.SetMode(ntp.ModeServer)
	resp.Poll = max(req.Poll, int8(s.Poll))
	resp.Precision = precision
	resp.OriginTime = req.TransmitTime
	resp.ReceiveTime = rxt
	resp.TransmitTime = txt

	if !s.Synchronized() {
		resp.SetLeapIndicator(ntp.LeapIndicatorUnknown)
		resp.Stratum = ntp.StratumUnsync
		return
	}
	resp.SetLeapIndicator(s.Time.Leap)
	resp.Stratum = s.Stratum
	resp.ReferenceID = s.ReferenceID
	resp.ReferenceTime = s.UpdatedAt.Wall()
	resp.RootDelay = s.Time.RootDelay.Short()
	disp := s.Time.RootDispersion
	if now.Epoch() == s.UpdatedAt.Epoch() {
		disp += ntptime.Phi.Dispersion(now.Since(s.UpdatedAt))
	}
	resp.RootDispersion = disp.Short()
}

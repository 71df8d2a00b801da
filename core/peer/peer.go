package peer

import (
	"time"

	"example.com/timesync/base/crypto"
	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/measurements"
	"example.com/timesync/net/auth"
	"example.com/timesync/net/ntp"
)

const (
	DefaultMaxRootDistance     = 1500 * time.Millisecond
	DefaultMinResponseInterval = 500 * time.Millisecond

	timeoutsPerBackoff = 3
	recentExchanges    = 8
)

type Config struct {
	ID string
	// SourceID is the reference ID identifying the peer, reported to our own
	// clients if the peer becomes the system peer.
	SourceID   uint32
	PollLimits ntptime.PollIntervalLimits
	// MaxRootDistance is the ceiling on the root distance of acceptable
	// measurements.
	MaxRootDistance ntptime.Duration
	// MinResponseInterval is the minimum time between two accepted
	// responses.
	MinResponseInterval time.Duration
	// LocalReferenceID identifies this host to its clients. Servers
	// reporting it as their reference are synchronized to us.
	LocalReferenceID uint32
	LocalPrecision   ntptime.Duration
	FilterStages     int
	Auth             auth.Authenticator
}

func DefaultConfig(id string) Config {
	return Config{
		ID:                  id,
		PollLimits:          ntptime.DefaultPollIntervalLimits,
		MaxRootDistance:     ntptime.DurationFromStd(DefaultMaxRootDistance),
		MinResponseInterval: DefaultMinResponseInterval,
		LocalPrecision:      ntptime.Precision(-20),
		FilterStages:        measurements.DefaultFilterStages,
	}
}

// Request is a request the owner of a peer has to send to the remote server.
type Request struct {
	ID      uint64
	Payload []byte
	Timeout time.Duration
}

// Update is the result of an accepted response.
type Update struct {
	Snapshot    Snapshot
	Measurement measurements.Measurement
}

type exchange struct {
	id   uint64
	t1   ntptime.Timestamp
	sent ntptime.Instant
}

type recentExchange struct {
	id        uint64
	processed bool
}

// Peer tracks a single remote time source. A Peer is not safe for concurrent
// use; it is driven sequentially by its owner.
type Peer struct {
	cfg Config

	state       State
	lastOutcome State
	reach       Reach
	poll        ntptime.PollInterval
	pollFloor   ntptime.PollInterval
	timeouts    int
	rateLimited bool
	unusable    bool

	outstanding *exchange
	recent      [recentExchanges]recentExchange
	nrecent     int

	filter       *measurements.ClockFilter
	filterEpoch  uint64
	last         measurements.Measurement
	estimate     measurements.Estimate
	hasEstimate  bool
	lastAccepted ntptime.Instant

	lastRejection error
	lastIgnore    error
	version       uint64
}

func New(cfg Config) *Peer {
	if !cfg.PollLimits.Valid() {
		panic("invalid poll interval limits")
	}
	if cfg.FilterStages <= 0 {
		cfg.FilterStages = measurements.DefaultFilterStages
	}
	if cfg.Auth == nil {
		cfg.Auth = auth.None{}
	}
	return &Peer{
		cfg:         cfg,
		state:       WaitingToSend,
		lastOutcome: WaitingToSend,
		poll:        cfg.PollLimits.Min,
		pollFloor:   cfg.PollLimits.Min,
		filter:      measurements.NewClockFilter(cfg.FilterStages),
	}
}

func (p *Peer) ID() string { return p.cfg.ID }

func (p *Peer) State() State { return p.state }

func (p *Peer) PollInterval() ntptime.PollInterval { return p.poll }

func (p *Peer) Reach() Reach { return p.reach }

func (p *Peer) advance(ev event) {
	next, outcome, err := transition(p.state, ev)
	if err != nil {
		panic(err)
	}
	p.state = next
	p.lastOutcome = outcome
	p.version++
}

func (p *Peer) remember(id uint64, processed bool) {
	p.recent[p.nrecent%recentExchanges] = recentExchange{id: id, processed: processed}
	p.nrecent++
}

func (p *Peer) lookup(id uint64) (processed, found bool) {
	for i := range min(p.nrecent, recentExchanges) {
		if p.recent[i].id == id {
			return p.recent[i].processed, true
		}
	}
	return false, false
}

func (p *Peer) close(ev event, processed bool) {
	p.remember(p.outstanding.id, processed)
	p.outstanding = nil
	p.advance(ev)
}

// Poll creates the next request to the server. The request's transmit
// timestamp carries a random exchange identifier instead of the local time
// which is kept locally as T1.
func (p *Peer) Poll(now ntptime.Instant) (Request, error) {
	if p.unusable {
		return Request{}, ErrUnusable
	}
	if p.state != WaitingToSend {
		return Request{}, ErrAwaitingResponse
	}
	id, err := crypto.RandUint64()
	if err != nil {
		return Request{}, err
	}
	pkt := ntp.Packet{
		Poll:         int8(p.poll),
		TransmitTime: ntptime.Timestamp(id),
	}
	pkt.SetVersion(ntp.VersionMax)
	pkt.SetMode(ntp.ModeClient)
	var b []byte
	ntp.EncodePacket(&b, &pkt)
	b, err = p.cfg.Auth.Sign(b)
	if err != nil {
		return Request{}, err
	}
	p.outstanding = &exchange{id: id, t1: now.Wall(), sent: now}
	p.advance(evPoll)
	return Request{
		ID:      id,
		Payload: b,
		Timeout: p.poll.Duration(),
	}, nil
}

// MarkSent replaces the provisional T1 of the outstanding request id with the
// actual transmit timestamp.
func (p *Peer) MarkSent(id uint64, t1 ntptime.Timestamp) error {
	if p.outstanding == nil || p.outstanding.id != id {
		return ErrNotAwaiting
	}
	p.outstanding.t1 = t1
	return nil
}

// HandleResponse processes raw response bytes received at rx. The wall clock
// component of rx is used as T4.
func (p *Peer) HandleResponse(raw []byte, rx ntptime.Instant) (Update, error) {
	payload, err := p.cfg.Auth.Verify(raw)
	if err != nil {
		p.lastRejection = AuthenticationFailed
		p.version++
		return Update{}, AuthenticationFailed
	}

	var pkt ntp.Packet
	err = ntp.DecodePacket(&pkt, payload)
	if err != nil {
		return Update{}, p.ignoreOpen(InvalidPacket)
	}

	if p.outstanding == nil || ntptime.Timestamp(p.outstanding.id) != pkt.OriginTime {
		processed, found := p.lookup(uint64(pkt.OriginTime))
		if found && processed {
			return Update{}, p.ignoreOpen(DuplicatePacket)
		}
		return Update{}, p.ignoreOpen(UnexpectedResponse)
	}

	if v := pkt.Version(); v != 3 && v != 4 || pkt.Mode() != ntp.ModeServer {
		return Update{}, p.ignore(VersionMismatch)
	}

	if pkt.IsKissOfDeath() {
		switch pkt.KissCode() {
		case ntp.KissRate:
			p.pollFloor = max(p.poll+1, ntptime.PollInterval(pkt.Poll)).Clamp(p.cfg.PollLimits)
			p.poll = max(p.poll, p.pollFloor)
			p.rateLimited = true
			return Update{}, p.ignore(RateControl)
		case ntp.KissDeny, ntp.KissRstr:
			p.pollFloor = p.cfg.PollLimits.Max
			p.poll = p.cfg.PollLimits.Max
			p.rateLimited = true
			return Update{}, p.ignore(RateControl)
		}
	}

	if !p.lastAccepted.IsZero() && rx.Since(p.lastAccepted) < p.cfg.MinResponseInterval {
		return Update{}, p.ignore(TooSoon)
	}
	if rx.Epoch() != p.outstanding.sent.Epoch() {
		return Update{}, p.ignore(ClockStepped)
	}

	m := measurements.FromExchange(measurements.Exchange{
		T1:        p.outstanding.t1,
		T2:        pkt.ReceiveTime,
		T3:        pkt.TransmitTime,
		T4:        rx.Wall(),
		LocalTime: rx,
	}, measurements.Remote{
		Stratum:        pkt.Stratum,
		Leap:           pkt.LeapIndicator(),
		ReferenceID:    pkt.ReferenceID,
		RootDelay:      pkt.RootDelayDuration(),
		RootDispersion: pkt.RootDispersionDuration(),
		Precision:      pkt.Precision,
	}, p.cfg.LocalPrecision)
	if m.DelayClamped {
		return Update{}, p.ignore(InvalidDelay)
	}

	err = p.accept(&m)
	if err != nil {
		p.lastRejection = err
		p.reach.shift(false)
		p.close(evRejected, true)
		return Update{}, err
	}

	p.reach.shift(true)
	p.timeouts = 0
	p.rateLimited = false
	p.lastRejection = nil
	p.lastIgnore = nil
	if p.filterEpoch != rx.Epoch() {
		p.filter.Reset()
		p.filterEpoch = rx.Epoch()
	}
	p.estimate = p.filter.Add(m)
	p.hasEstimate = true
	p.last = m
	p.lastAccepted = rx
	p.close(evMeasured, true)
	return Update{Snapshot: p.Snapshot(), Measurement: m}, nil
}

func (p *Peer) accept(m *measurements.Measurement) error {
	if m.Leap == ntp.LeapIndicatorUnknown {
		return ServerUnsynchronized
	}
	if m.Stratum == ntp.StratumUnspecified || m.Stratum >= ntp.StratumUnsync {
		return StratumInvalid
	}
	if p.cfg.LocalReferenceID != 0 && m.Stratum > 1 &&
		m.ReferenceID == p.cfg.LocalReferenceID {
		return LoopDetected
	}
	if p.cfg.MaxRootDistance > 0 && m.RootDistance() > p.cfg.MaxRootDistance {
		return DistanceTooLarge
	}
	return nil
}

// ignore records r and closes the outstanding exchange.
func (p *Peer) ignore(r IgnoreReason) error {
	p.lastIgnore = r
	p.close(evIgnored, true)
	return r
}

// ignoreOpen records r but keeps waiting for the expected response.
func (p *Peer) ignoreOpen(r IgnoreReason) error {
	p.lastIgnore = r
	p.version++
	return r
}

// HandleTimeout records that no acceptable response arrived in time. Every
// third consecutive timeout doubles the poll interval.
func (p *Peer) HandleTimeout() error {
	if p.state != AwaitingResponse {
		return ErrNotAwaiting
	}
	p.reach.shift(false)
	p.timeouts++
	if p.timeouts%timeoutsPerBackoff == 0 {
		p.poll = p.poll.Inc(p.cfg.PollLimits)
	}
	p.close(evTimeout, false)
	return nil
}

// Abandon drops the outstanding exchange, if any, without affecting
// reachability.
func (p *Peer) Abandon() {
	if p.state != AwaitingResponse {
		return
	}
	p.close(evAbandon, false)
}

// MarkUnreachable takes the peer permanently out of service.
func (p *Peer) MarkUnreachable() {
	p.Abandon()
	p.reach = 0
	p.unusable = true
	p.version++
}

// SetPollHint applies the poll interval recommended by the controller within
// the configured limits and above any rate control floor.
func (p *Peer) SetPollHint(poll ntptime.PollInterval) {
	next := max(poll, p.pollFloor).Clamp(p.cfg.PollLimits)
	if next != p.poll {
		p.poll = next
		p.version++
	}
}

func (p *Peer) Snapshot() Snapshot {
	s := Snapshot{
		ID:            p.cfg.ID,
		SourceID:      p.cfg.SourceID,
		Version:       p.version,
		State:         p.state,
		LastOutcome:   p.lastOutcome,
		Reach:         p.reach,
		Poll:          p.poll,
		Unusable:      p.unusable,
		RateLimited:   p.rateLimited,
		LastRejection: p.lastRejection,
		LastIgnore:    p.lastIgnore,
	}
	if p.hasEstimate {
		s.HasMeasurement = true
		s.Stratum = p.last.Stratum
		s.Leap = p.last.Leap
		s.ReferenceID = p.last.ReferenceID
		s.RootDelay = p.last.RootDelay
		s.RootDispersion = p.last.RootDispersion
		s.Offset = p.estimate.Offset
		s.Delay = p.estimate.Delay
		s.Dispersion = p.estimate.Dispersion
		s.Jitter = p.estimate.Jitter
		s.LocalTime = p.estimate.LocalTime
		s.RootDistance = measurements.RootDistance(
			s.Delay, s.Dispersion, s.RootDelay, s.RootDispersion)
	}
	return s
}

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/pelletier/go-toml/v2"

	"example.com/timesync/base/crypto"
	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timemath"
	"example.com/timesync/core/config"
	"example.com/timesync/core/peer"
	"example.com/timesync/core/sync"
	"example.com/timesync/net/auth"
	"example.com/timesync/net/ntp"
)

var errInvalidConfig = errors.New("invalid configuration")

type peerConfig struct {
	Address    string `toml:"address"`
	MinPoll    *int8  `toml:"min_poll,omitempty"`
	MaxPoll    *int8  `toml:"max_poll,omitempty"`
	AuthC2SKey string `toml:"auth_c2s_key,omitempty"`
	AuthS2CKey string `toml:"auth_s2c_key,omitempty"`
}

// Durations are given in seconds.
type svcConfig struct {
	LocalAddr          string       `toml:"local_address,omitempty"`
	ServerAddr         string       `toml:"server_address,omitempty"`
	MetricsAddr        string       `toml:"metrics_address,omitempty"`
	Interface          string       `toml:"interface,omitempty"`
	DSCP               *uint8       `toml:"dscp,omitempty"`
	DriftFile          string       `toml:"drift_file,omitempty"`
	DryRun             bool         `toml:"dry_run,omitempty"`
	LocalStratum       uint8        `toml:"local_stratum,omitempty"`
	StepThreshold      float64      `toml:"step_threshold,omitempty"`
	FrequencyTolerance float64      `toml:"frequency_tolerance_ppm,omitempty"`
	MaxRootDistance    float64      `toml:"max_root_distance,omitempty"`
	StalenessWindow    float64      `toml:"staleness_window,omitempty"`
	MinClusterSize     int          `toml:"min_cluster_size,omitempty"`
	TieBreak           string       `toml:"tie_break,omitempty"`
	LowJitter          float64      `toml:"low_jitter,omitempty"`
	HighJitter         float64      `toml:"high_jitter,omitempty"`
	PIKp               float64      `toml:"pi_kp,omitempty"`
	PIKi               float64      `toml:"pi_ki,omitempty"`
	EvalInterval       float64      `toml:"eval_interval,omitempty"`
	MaxPeers           int          `toml:"max_peers,omitempty"`
	ServerAuthC2SKey   string       `toml:"server_auth_c2s_key,omitempty"`
	ServerAuthS2CKey   string       `toml:"server_auth_s2c_key,omitempty"`
	Peers              []peerConfig `toml:"peers,omitempty"`
}

// peerSpec is a configured peer ready to be dialed.
type peerSpec struct {
	cfg    peer.Config
	remote netip.AddrPort
}

func decodeConfig(raw []byte) (svcConfig, error) {
	var cfg svcConfig
	err := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&cfg)
	return cfg, err
}

func loadConfig(configFile string) (svcConfig, error) {
	raw, err := os.ReadFile(configFile)
	if err != nil {
		return svcConfig{}, err
	}
	return decodeConfig(raw)
}

func seconds(s float64) ntptime.Duration {
	return ntptime.DurationFromStd(timemath.Duration(s))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidConfig, fmt.Sprintf(format, args...))
}

func (c svcConfig) localAddr() (netip.AddrPort, error) {
	s := c.LocalAddr
	if s == "" {
		s = config.LocalAddr
	}
	a, err := netip.ParseAddrPort(s)
	if err != nil {
		return netip.AddrPort{}, invalid("local_address: %v", err)
	}
	return a, nil
}

func (c svcConfig) metricsAddr() string {
	if c.MetricsAddr == "" {
		return config.MetricsAddr
	}
	return c.MetricsAddr
}

func (c svcConfig) dscp() uint8 {
	if c.DSCP == nil {
		return config.DSCP
	}
	return *c.DSCP
}

func (c svcConfig) systemConfig() (sync.SystemConfig, error) {
	s := sync.DefaultSystemConfig()
	if c.StepThreshold != 0 {
		s.StepThreshold = seconds(c.StepThreshold)
	}
	if c.FrequencyTolerance != 0 {
		s.FrequencyTolerance = ntptime.FrequencyTolerance(c.FrequencyTolerance)
	}
	if c.StalenessWindow != 0 {
		s.StalenessWindow = timemath.Duration(c.StalenessWindow)
	}
	if c.MinClusterSize != 0 {
		s.MinClusterSize = c.MinClusterSize
	}
	tb, err := sync.ParseTieBreak(c.TieBreak)
	if err != nil {
		return sync.SystemConfig{}, invalid("%v", err)
	}
	s.TieBreak = tb
	if c.LowJitter != 0 {
		s.LowJitter = seconds(c.LowJitter)
	}
	if c.HighJitter != 0 {
		s.HighJitter = seconds(c.HighJitter)
	}
	if c.PIKp != 0 {
		s.KP = c.PIKp
	}
	if c.PIKi != 0 {
		s.KI = c.PIKi
	}
	if err := s.Validate(); err != nil {
		return sync.SystemConfig{}, invalid("%v", err)
	}
	return s, nil
}

func parseKey(name, s string) ([]byte, error) {
	k, err := hex.DecodeString(s)
	if err != nil {
		return nil, invalid("%s: %v", name, err)
	}
	return k, nil
}

// newAuthenticator returns the authenticator for the given keys, or nil if
// both are empty. sign and verify are the hex encoded keys for outgoing and
// incoming packets.
func newAuthenticator(sign, verify string) (auth.Authenticator, error) {
	if sign == "" && verify == "" {
		return nil, nil
	}
	if sign == "" || verify == "" {
		return nil, invalid("authentication requires keys for both directions")
	}
	sk, err := parseKey("sign key", sign)
	if err != nil {
		return nil, err
	}
	vk, err := parseKey("verify key", verify)
	if err != nil {
		return nil, err
	}
	a, err := auth.NewSIV(sk, vk)
	if err != nil {
		return nil, invalid("%v", err)
	}
	return a, nil
}

func parseRemote(s string) (netip.AddrPort, error) {
	a, err := netip.ParseAddrPort(s)
	if err == nil {
		return a, nil
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.AddrPort{}, invalid("peer address %q", s)
	}
	return netip.AddrPortFrom(ip, ntp.ServerPortIP), nil
}

func (c svcConfig) peerSpecs(ctx context.Context) ([]peerSpec, error) {
	var localID uint32
	if c.ServerAddr != "" {
		a, err := netip.ParseAddrPort(c.ServerAddr)
		if err != nil {
			return nil, invalid("server_address: %v", err)
		}
		if !a.Addr().IsUnspecified() {
			localID = ntp.ReferenceIDFromAddr(a.Addr())
		}
	}

	specs := make([]peerSpec, 0, len(c.Peers))
	for _, p := range c.Peers {
		remote, err := parseRemote(p.Address)
		if err != nil {
			return nil, err
		}
		cfg := peer.DefaultConfig(remote.String())
		cfg.SourceID = ntp.ReferenceIDFromAddr(remote.Addr())
		cfg.LocalReferenceID = localID
		if p.MinPoll != nil {
			cfg.PollLimits.Min = ntptime.PollInterval(*p.MinPoll)
		}
		if p.MaxPoll != nil {
			cfg.PollLimits.Max = ntptime.PollInterval(*p.MaxPoll)
		}
		if !cfg.PollLimits.Valid() {
			return nil, invalid("poll limits of peer %s", p.Address)
		}
		if c.MaxRootDistance != 0 {
			cfg.MaxRootDistance = seconds(c.MaxRootDistance)
		}
		a, err := newAuthenticator(p.AuthC2SKey, p.AuthS2CKey)
		if err != nil {
			return nil, err
		}
		cfg.Auth = a
		specs = append(specs, peerSpec{cfg: cfg, remote: remote})
	}

	if c.MaxPeers > 0 && c.MaxPeers < len(specs) {
		sample := make([]peerSpec, c.MaxPeers)
		n, err := crypto.Sample(ctx, c.MaxPeers, len(specs), func(dst, src int) {
			sample[dst] = specs[src]
		})
		if err != nil {
			return nil, err
		}
		specs = sample[:n]
	}
	return specs, nil
}

func (c svcConfig) serverAuth() (auth.Authenticator, error) {
	// a server verifies with the client-to-server key
	return newAuthenticator(c.ServerAuthS2CKey, c.ServerAuthC2SKey)
}

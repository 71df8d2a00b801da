package main

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/config"
	"example.com/timesync/core/sync"
	"example.com/timesync/net/ntp"
)

var (
	testKeyA = strings.Repeat("01", 32)
	testKeyB = strings.Repeat("02", 32)
)

func TestDecodeConfig(t *testing.T) {
	raw := `
local_address = "192.0.2.10:0"
server_address = "192.0.2.10:123"
dscp = 34
step_threshold = 0.25
staleness_window = 600.0
min_cluster_size = 2
tie_break = "min_distance"
max_root_distance = 0.5

[[peers]]
address = "192.0.2.1"
min_poll = 4
max_poll = 6

[[peers]]
address = "192.0.2.2:10123"
auth_c2s_key = "` + testKeyA + `"
auth_s2c_key = "` + testKeyB + `"
`
	cfg, err := decodeConfig([]byte(raw))
	if err != nil {
		t.Fatalf("decodeConfig failed: %v", err)
	}
	if cfg.dscp() != 34 {
		t.Errorf("dscp() = %d, want 34", cfg.dscp())
	}

	s, err := cfg.systemConfig()
	if err != nil {
		t.Fatalf("systemConfig failed: %v", err)
	}
	if s.StepThreshold != ntptime.DurationFromStd(250*time.Millisecond) {
		t.Errorf("StepThreshold = %v, want 250ms", s.StepThreshold)
	}
	if s.StalenessWindow != 10*time.Minute {
		t.Errorf("StalenessWindow = %v, want 10m", s.StalenessWindow)
	}
	if s.MinClusterSize != 2 || s.TieBreak != sync.TieBreakMinDistance {
		t.Errorf("MinClusterSize = %d, TieBreak = %v", s.MinClusterSize, s.TieBreak)
	}

	specs, err := cfg.peerSpecs(context.Background())
	if err != nil {
		t.Fatalf("peerSpecs failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("len(peerSpecs) = %d, want 2", len(specs))
	}
	p0, p1 := specs[0], specs[1]
	if p0.remote != netip.MustParseAddrPort("192.0.2.1:123") {
		t.Errorf("remote = %v, want default port", p0.remote)
	}
	if p0.cfg.PollLimits.Min != 4 || p0.cfg.PollLimits.Max != 6 {
		t.Errorf("PollLimits = %+v, want 4..6", p0.cfg.PollLimits)
	}
	if p0.cfg.SourceID != ntp.ReferenceIDFromAddr(p0.remote.Addr()) {
		t.Errorf("SourceID = %#x", p0.cfg.SourceID)
	}
	if p0.cfg.LocalReferenceID != ntp.ReferenceIDFromAddr(netip.MustParseAddr("192.0.2.10")) {
		t.Errorf("LocalReferenceID = %#x", p0.cfg.LocalReferenceID)
	}
	if p0.cfg.MaxRootDistance != ntptime.DurationFromStd(500*time.Millisecond) {
		t.Errorf("MaxRootDistance = %v, want 500ms", p0.cfg.MaxRootDistance)
	}
	if p0.cfg.Auth != nil {
		t.Errorf("unexpected authenticator for %v", p0.remote)
	}
	if p1.remote.Port() != 10123 || p1.cfg.Auth == nil {
		t.Errorf("remote = %v, auth = %v", p1.remote, p1.cfg.Auth)
	}
}

func TestDecodeConfigDefaults(t *testing.T) {
	cfg, err := decodeConfig([]byte(`[[peers]]
address = "192.0.2.1"
`))
	if err != nil {
		t.Fatalf("decodeConfig failed: %v", err)
	}
	if cfg.dscp() != config.DSCP {
		t.Errorf("dscp() = %d, want %d", cfg.dscp(), config.DSCP)
	}
	if cfg.metricsAddr() != config.MetricsAddr {
		t.Errorf("metricsAddr() = %q, want %q", cfg.metricsAddr(), config.MetricsAddr)
	}
	s, err := cfg.systemConfig()
	if err != nil {
		t.Fatalf("systemConfig failed: %v", err)
	}
	def := sync.DefaultSystemConfig()
	if s != def {
		t.Errorf("systemConfig() = %+v, want %+v", s, def)
	}
}

func TestDecodeConfigUnknownField(t *testing.T) {
	_, err := decodeConfig([]byte(`remote_address = "192.0.2.1:123"`))
	if err == nil {
		t.Error("decodeConfig accepted an unknown field")
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"tie break", `tie_break = "random"`},
		{"jitter thresholds", "low_jitter = 0.1\nhigh_jitter = 0.01"},
		{"pi ratio", "pi_kp = 5.0"},
		{"peer address", "[[peers]]\naddress = \"ntp.example.com\""},
		{"poll limits", "[[peers]]\naddress = \"192.0.2.1\"\nmin_poll = 10\nmax_poll = 4"},
		{"one key", "[[peers]]\naddress = \"192.0.2.1\"\nauth_c2s_key = \"" + testKeyA + "\""},
		{"bad key", "[[peers]]\naddress = \"192.0.2.1\"\nauth_c2s_key = \"zz\"\nauth_s2c_key = \"zz\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := decodeConfig([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decodeConfig failed: %v", err)
			}
			_, err = cfg.systemConfig()
			if err == nil {
				_, err = cfg.peerSpecs(context.Background())
			}
			if !errors.Is(err, errInvalidConfig) {
				t.Errorf("got %v, want %v", err, errInvalidConfig)
			}
		})
	}
}

func TestMaxPeers(t *testing.T) {
	cfg := svcConfig{MaxPeers: 2}
	for _, a := range []string{"192.0.2.1", "192.0.2.2", "192.0.2.3", "192.0.2.4"} {
		cfg.Peers = append(cfg.Peers, peerConfig{Address: a})
	}
	specs, err := cfg.peerSpecs(context.Background())
	if err != nil {
		t.Fatalf("peerSpecs failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("len(peerSpecs) = %d, want 2", len(specs))
	}
	if specs[0].remote == specs[1].remote {
		t.Errorf("sampled peer %v twice", specs[0].remote)
	}
}

func TestServerAuth(t *testing.T) {
	cfg := svcConfig{ServerAuthC2SKey: testKeyA, ServerAuthS2CKey: testKeyB}
	a, err := cfg.serverAuth()
	if err != nil || a == nil {
		t.Fatalf("serverAuth() = %v, %v", a, err)
	}
	a, err = svcConfig{}.serverAuth()
	if err != nil || a != nil {
		t.Errorf("serverAuth() = %v, %v, want no authenticator", a, err)
	}
}

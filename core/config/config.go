package config

// DSCP is the Differentiated Services Codepoint used for NTP packets unless
// configured otherwise. Valid values must be in range [0, 63].
const DSCP = 46

const (
	// LocalAddr lets the system pick the source of client sockets.
	LocalAddr = "0.0.0.0:0"
	// MetricsAddr is where Prometheus metrics are served.
	MetricsAddr = "127.0.0.1:8080"
)

package metrics

const (
	ClientPktsAuthFailedH = "The total number of response packets that failed authentication"
	ClientPktsAuthFailedN = "timesync_client_pkts_auth_failed"
	ClientPktsReceivedH   = "The total number of response packets received"
	ClientPktsReceivedN   = "timesync_client_pkts_received"
	ClientReqsSentH       = "The total number of requests sent"
	ClientReqsSentN       = "timesync_client_reqs_sent"
	ClientRespsAcceptedH  = "The total number of responses accepted as measurements"
	ClientRespsAcceptedN  = "timesync_client_resps_accepted"
	ClientRespsIgnoredH   = "The total number of responses ignored"
	ClientRespsIgnoredN   = "timesync_client_resps_ignored"
	ClientRespsRejectedH  = "The total number of responses rejected"
	ClientRespsRejectedN  = "timesync_client_resps_rejected"
	ClientTimeoutsH       = "The total number of requests that timed out"
	ClientTimeoutsN       = "timesync_client_timeouts"

	PeerOffsetH = "The current filtered clock offset to a peer in seconds"
	PeerOffsetN = "timesync_peer_offset_seconds"
	PeerPollH   = "The current poll interval exponent of a peer"
	PeerPollN   = "timesync_peer_poll"
	PeerReachH  = "The current reachability register of a peer"
	PeerReachN  = "timesync_peer_reach"

	IPServerPktsReceivedH = "The total number of packets received via IP"
	IPServerPktsReceivedN = "timesync_ip_server_pkts_received"
	IPServerReqsAcceptedH = "The total number of requests accepted via IP"
	IPServerReqsAcceptedN = "timesync_ip_server_reqs_accepted"
	IPServerReqsServedH   = "The total number of requests served via IP"
	IPServerReqsServedN   = "timesync_ip_server_reqs_served"

	SyncClockErrorsH  = "The total number of clock adjustments that failed"
	SyncClockErrorsN  = "timesync_sync_clock_errors"
	SyncDegradedH     = "The total number of evaluations without a usable majority"
	SyncDegradedN     = "timesync_sync_degraded"
	SyncFalsetickersH = "The number of peers classified as falsetickers in the last evaluation"
	SyncFalsetickersN = "timesync_sync_falsetickers"
	SyncFrequencyH    = "The current frequency correction in ppm"
	SyncFrequencyN    = "timesync_sync_frequency_ppm"
	SyncJitterH       = "The current system jitter in seconds"
	SyncJitterN       = "timesync_sync_jitter_seconds"
	SyncOffsetH       = "The combined clock offset of the last evaluation in seconds"
	SyncOffsetN       = "timesync_sync_offset_seconds"
	SyncStepsH        = "The total number of clock steps"
	SyncStepsN        = "timesync_sync_steps"
	SyncSurvivorsH    = "The number of peers that survived selection in the last evaluation"
	SyncSurvivorsN    = "timesync_sync_survivors"
)

package models

import "time"

// ServerHealth holds the mutable probe metrics attached to a registry
// entry. Score is always recomputed from the other fields by the
// scoring engine; it is never set directly and never persisted on its
// own.
type ServerHealth struct {
	// Latency is the round-trip time of the most recent successful
	// probe. Zero when the endpoint has never answered a probe.
	Latency time.Duration

	// OK is the outcome of the most recent probe.
	OK bool

	// Features lists the protocol capabilities the server reported,
	// e.g. "protocol/1.4" or "pruning".
	Features []string

	// Score is the derived 0-100 health score.
	Score float64

	// LastTested is the time of the most recent probe. Zero when the
	// endpoint has never been probed.
	LastTested time.Time

	// LastError is the failure reason of the most recent failed probe.
	LastError string
}

// Tested reports whether the endpoint has been probed at least once.
func (h ServerHealth) Tested() bool {
	return !h.LastTested.IsZero()
}

// ProbeResult is the outcome of a single connectivity test against one
// endpoint. Produced by the prober, consumed by the registry, then
// discarded.
type ProbeResult struct {
	Endpoint Endpoint
	OK       bool
	Latency  time.Duration
	Features []string
	Err      error
}

// ServerStatus is the JSON-friendly health snapshot exposed for status
// reporting.
type ServerStatus struct {
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	TLS        bool      `json:"tls"`
	Tier       string    `json:"tier"`
	Score      float64   `json:"score"`
	Online     bool      `json:"online"`
	LatencyMS  int64     `json:"latency_ms"`
	Features   []string  `json:"features,omitempty"`
	LastTested time.Time `json:"last_tested"`
	LastError  string    `json:"last_error,omitempty"`
}

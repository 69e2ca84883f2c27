package models

import (
	"fmt"
	"net"
	"strconv"
)

// Tier records where an endpoint came from. Higher tiers win ranking
// tie-breaks; only configured and discovered entries are persisted.
type Tier int

const (
	TierSeed Tier = iota
	TierDiscovered
	TierConfigured
)

func (t Tier) String() string {
	switch t {
	case TierConfigured:
		return "configured"
	case TierDiscovered:
		return "discovered"
	default:
		return "seed"
	}
}

// ParseTier converts a persisted tier name back to a Tier.
// Unknown names map to the seed tier.
func ParseTier(s string) Tier {
	switch s {
	case "configured":
		return TierConfigured
	case "discovered":
		return TierDiscovered
	default:
		return TierSeed
	}
}

// Endpoint identifies one remote Electrum index server. Identity is
// (host, port); the TLS flag selects the transport but does not
// distinguish two endpoints with the same host and port.
type Endpoint struct {
	Host string `json:"host" toml:"host"`
	Port int    `json:"port" toml:"port"`
	TLS  bool   `json:"tls" toml:"tls"`
}

// Key returns the (host, port) identity used for deduplication and
// registry lookups.
func (e Endpoint) Key() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	scheme := "tcp"
	if e.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, e.Key())
}

// Valid reports whether the endpoint has a usable host and port.
func (e Endpoint) Valid() bool {
	return e.Host != "" && e.Port >= 1 && e.Port <= 65535
}

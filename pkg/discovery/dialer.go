package discovery

import (
	"context"
	"encoding/json"

	"btctrack/pkg/electrum"
	"btctrack/pkg/models"
)

// Conn is the slice of the transport client the discovery code needs.
// *electrum.Conn satisfies it; tests substitute fakes.
type Conn interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Close() error
}

// DialFunc opens a connection to one endpoint.
type DialFunc func(ctx context.Context, endpoint models.Endpoint) (Conn, error)

// NetDialer adapts an electrum.Dialer to a DialFunc.
func NetDialer(d electrum.Dialer) DialFunc {
	return func(ctx context.Context, endpoint models.Endpoint) (Conn, error) {
		return d.Dial(ctx, endpoint)
	}
}

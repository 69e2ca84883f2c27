package electrum

import (
	"encoding/json"
	"strconv"
	"strings"

	"btctrack/pkg/models"
)

// Electrum protocol methods used by this client.
const (
	MethodVersion          = "server.version"
	MethodFeatures         = "server.features"
	MethodPing             = "server.ping"
	MethodPeersSubscribe   = "server.peers.subscribe"
	MethodGetBalance       = "blockchain.scripthash.get_balance"
	MethodGetHistory       = "blockchain.scripthash.get_history"
	MethodListUnspent      = "blockchain.scripthash.listunspent"
	MethodHeadersSubscribe = "blockchain.headers.subscribe"
)

const (
	// ClientName identifies this client in server.version handshakes.
	ClientName = "btctrack 1.0"

	// ProtocolVersion is the Electrum protocol version negotiated with
	// servers.
	ProtocolVersion = "1.4"
)

// Default ports for Electrum transports, used when a peer advertises a
// transport without an explicit port.
const (
	DefaultTCPPort = 50001
	DefaultTLSPort = 50002
)

// request is the wire format of a single call: one JSON object per
// line carrying a unique integer ID.
type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// response is the wire format of a single reply. Subscription pushes
// carry no ID and are ignored by this client.
type response struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// BalanceResult mirrors blockchain.scripthash.get_balance. Amounts are
// satoshis.
type BalanceResult struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// HistoryItem mirrors one entry of blockchain.scripthash.get_history.
type HistoryItem struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
	Fee    int64  `json:"fee,omitempty"`
}

// UnspentItem mirrors one entry of blockchain.scripthash.listunspent.
type UnspentItem struct {
	TxHash string `json:"tx_hash"`
	TxPos  int    `json:"tx_pos"`
	Height int64  `json:"height"`
	Value  int64  `json:"value"`
}

// HeaderResult mirrors blockchain.headers.subscribe.
type HeaderResult struct {
	Height int64  `json:"height"`
	Hex    string `json:"hex"`
}

// ParseVersion decodes a server.version result, which is a two-element
// array of server software and negotiated protocol version.
func ParseVersion(raw json.RawMessage) (software, protocol string, err error) {
	var fields []string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", "", err
	}
	if len(fields) >= 1 {
		software = fields[0]
	}
	if len(fields) >= 2 {
		protocol = fields[1]
	}
	return software, protocol, nil
}

// PeerRecord is one entry of a server.peers.subscribe result:
// [ip, hostname, [feature, ...]].
type PeerRecord struct {
	IP       string
	Hostname string
	Features []string
}

// ParsePeers decodes a peer-list result. Malformed entries are skipped
// individually; only a result that is not an array at all is an error.
func ParsePeers(raw json.RawMessage) ([]PeerRecord, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	peers := make([]PeerRecord, 0, len(entries))
	for _, entry := range entries {
		var fields []json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || len(fields) < 3 {
			continue
		}
		var rec PeerRecord
		if err := json.Unmarshal(fields[0], &rec.IP); err != nil {
			continue
		}
		if err := json.Unmarshal(fields[1], &rec.Hostname); err != nil {
			continue
		}
		if err := json.Unmarshal(fields[2], &rec.Features); err != nil {
			continue
		}
		peers = append(peers, rec)
	}
	return peers, nil
}

// Endpoints derives connectable endpoints from a peer record's feature
// strings. An "s" feature advertises a TLS port, "t" a plaintext port;
// ports default to the standard Electrum ports when omitted. Tor-only
// peers are not returned.
func (p PeerRecord) Endpoints() []models.Endpoint {
	host := p.Hostname
	if host == "" {
		host = p.IP
	}
	if host == "" || strings.HasSuffix(host, ".onion") {
		return nil
	}

	var out []models.Endpoint
	for _, feature := range p.Features {
		if len(feature) == 0 {
			continue
		}
		var tls bool
		var defaultPort int
		switch feature[0] {
		case 's':
			tls, defaultPort = true, DefaultTLSPort
		case 't':
			tls, defaultPort = false, DefaultTCPPort
		default:
			continue
		}
		port := defaultPort
		if len(feature) > 1 {
			n, err := strconv.Atoi(feature[1:])
			if err != nil {
				continue
			}
			port = n
		}
		ep := models.Endpoint{Host: host, Port: port, TLS: tls}
		if ep.Valid() {
			out = append(out, ep)
		}
	}
	return out
}

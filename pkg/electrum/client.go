package electrum

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"btctrack/pkg/log"
	"btctrack/pkg/models"
)

const (
	// DefaultTimeout bounds both the connect phase and each call when
	// the dialer does not specify one.
	DefaultTimeout = 10 * time.Second

	// maxLineBytes caps a single response line. History responses for
	// busy addresses can be large, but anything beyond this is treated
	// as a protocol violation.
	maxLineBytes = 10 << 20
)

// Dialer opens connections to Electrum servers. The zero value uses
// DefaultTimeout and standard TLS verification.
type Dialer struct {
	// Timeout bounds the connect phase and each individual call.
	Timeout time.Duration

	// TLSConfig overrides the TLS client configuration. Nil means
	// verify against the system roots with the endpoint host as SNI.
	TLSConfig *tls.Config
}

// Dial opens a connection to the endpoint, negotiating TLS when the
// endpoint requests it. Certificate validation failures are returned as
// *ConnectError, never downgraded to plaintext.
func (d Dialer) Dial(ctx context.Context, endpoint models.Endpoint) (*Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	netDialer := &net.Dialer{Timeout: timeout}
	raw, err := netDialer.DialContext(ctx, "tcp", endpoint.Key())
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	if endpoint.TLS {
		cfg := d.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = endpoint.Host
		}
		tlsConn := tls.Client(raw, cfg)
		handshakeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := tlsConn.HandshakeContext(handshakeCtx)
		cancel()
		if err != nil {
			_ = raw.Close()
			return nil, &ConnectError{Endpoint: endpoint, Err: err}
		}
		raw = tlsConn
	}

	conn := &Conn{
		endpoint: endpoint,
		conn:     raw,
		timeout:  timeout,
		pending:  make(map[uint64]chan *response),
		closed:   make(chan struct{}),
	}
	go conn.readLoop()

	log.Debug().Str("server", endpoint.String()).Msg("Connected")
	return conn, nil
}

// Conn is one logical connection to an Electrum server. It owns the
// socket; a single reader goroutine matches responses to outstanding
// requests by ID, so the server may answer out of order. A Conn that
// returns a TimeoutError, ProtocolError or ConnectionClosedError is
// unusable and must be discarded.
type Conn struct {
	endpoint models.Endpoint
	conn     net.Conn
	timeout  time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *response
	termErr error

	closeOnce sync.Once
	closed    chan struct{}
}

// Endpoint returns the endpoint this connection was dialed to.
func (c *Conn) Endpoint() models.Endpoint { return c.endpoint }

// Call sends one request and waits for the matching response. The wait
// is bounded by the dialer timeout and by ctx, whichever expires first.
// A nil params sends an empty parameter list.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	c.mu.Lock()
	if c.termErr != nil {
		err := c.termErr
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return nil, err
	}
	payload = append(payload, '\n')

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err = c.conn.Write(payload)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		closedErr := &ConnectionClosedError{Endpoint: c.endpoint, Err: err}
		c.fail(closedErr)
		return nil, closedErr
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		c.forget(id)
		timeoutErr := &TimeoutError{Endpoint: c.endpoint, Method: method}
		c.fail(timeoutErr)
		return nil, timeoutErr
	case <-ctx.Done():
		c.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			timeoutErr := &TimeoutError{Endpoint: c.endpoint, Method: method}
			c.fail(timeoutErr)
			return nil, timeoutErr
		}
		c.fail(ctx.Err())
		return nil, ctx.Err()
	case <-c.closed:
		c.mu.Lock()
		err := c.termErr
		c.mu.Unlock()
		return nil, err
	}
}

// Close shuts the connection down and fails any outstanding calls.
func (c *Conn) Close() error {
	c.fail(ErrClosed)
	return nil
}

// readLoop consumes newline-delimited responses until the connection
// dies. It is the only reader of the socket.
func (c *Conn) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.fail(&ProtocolError{Endpoint: c.endpoint, Reason: err.Error()})
			return
		}
		if resp.ID == nil {
			// Subscription push; nothing is waiting on it.
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- &resp
		}
		// A response for an unknown ID is a late reply to a request
		// already abandoned by its caller; drop it.
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.fail(&ConnectionClosedError{Endpoint: c.endpoint, Err: err})
}

// fail records the first terminal error, closes the socket and unblocks
// every outstanding caller. Subsequent calls are no-ops.
func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.termErr = err
		c.mu.Unlock()
		_ = c.conn.Close()
		close(c.closed)
	})
}

func (c *Conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

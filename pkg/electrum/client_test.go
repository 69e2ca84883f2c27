package electrum

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"btctrack/pkg/models"
)

// lineServer is a scripted fake Electrum server speaking the
// newline-delimited protocol on a real TCP socket.
type lineServer struct {
	listener net.Listener
	handler  func(conn net.Conn)
	wg       sync.WaitGroup
}

func newLineServer(t *testing.T, handler func(conn net.Conn)) *lineServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &lineServer{listener: listener, handler: handler}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handler(conn)
		}
	}()
	return s
}

func (s *lineServer) endpoint() models.Endpoint {
	addr := s.listener.Addr().(*net.TCPAddr)
	return models.Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

func (s *lineServer) close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

// echoHandler answers every request with {"id":N,"result":"<method>"}.
func echoHandler(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			return
		}
		fmt.Fprintf(conn, `{"id":%d,"result":%s}`+"\n", req.ID, strconv.Quote(req.Method))
	}
}

type ClientTestSuite struct {
	suite.Suite
}

// TestCallRoundTrip tests a simple request/response exchange.
func (s *ClientTestSuite) TestCallRoundTrip() {
	srv := newLineServer(s.T(), echoHandler)
	defer srv.close()

	conn, err := Dialer{Timeout: 2 * time.Second}.Dial(context.Background(), srv.endpoint())
	s.Require().NoError(err)
	defer conn.Close()

	result, err := conn.Call(context.Background(), MethodPing, nil)
	s.Require().NoError(err)
	s.JSONEq(`"server.ping"`, string(result))
}

// TestOutOfOrderResponses tests that responses are matched by ID, not
// by arrival order.
func (s *ClientTestSuite) TestOutOfOrderResponses() {
	// Collect two requests, then answer them in reverse order.
	srv := newLineServer(s.T(), func(conn net.Conn) {
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		var reqs []struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		for scanner.Scan() {
			var req struct {
				ID     uint64 `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				return
			}
			reqs = append(reqs, req)
			if len(reqs) == 2 {
				for i := len(reqs) - 1; i >= 0; i-- {
					fmt.Fprintf(conn, `{"id":%d,"result":%s}`+"\n", reqs[i].ID, strconv.Quote(reqs[i].Method))
				}
				reqs = reqs[:0]
			}
		}
	})
	defer srv.close()

	conn, err := Dialer{Timeout: 2 * time.Second}.Dial(context.Background(), srv.endpoint())
	s.Require().NoError(err)
	defer conn.Close()

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	methods := []string{"server.ping", "server.version"}
	for i := range methods {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := conn.Call(context.Background(), methods[i], nil)
			errs[i] = err
			results[i] = string(raw)
		}(i)
	}
	wg.Wait()

	for i := range methods {
		s.Require().NoError(errs[i])
		s.JSONEq(strconv.Quote(methods[i]), results[i])
	}
}

// TestCallTimeout tests that a silent server surfaces a TimeoutError
// and poisons the connection.
func (s *ClientTestSuite) TestCallTimeout() {
	srv := newLineServer(s.T(), func(conn net.Conn) {
		// Read but never answer.
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
		}
		_ = conn.Close()
	})
	defer srv.close()

	conn, err := Dialer{Timeout: 150 * time.Millisecond}.Dial(context.Background(), srv.endpoint())
	s.Require().NoError(err)
	defer conn.Close()

	_, err = conn.Call(context.Background(), MethodPing, nil)
	var timeoutErr *TimeoutError
	s.Require().ErrorAs(err, &timeoutErr)
	s.Equal(MethodPing, timeoutErr.Method)

	// The connection is unusable after a timeout.
	_, err = conn.Call(context.Background(), MethodPing, nil)
	s.Error(err)
}

// TestMalformedResponse tests that unparsable lines surface a
// ProtocolError.
func (s *ClientTestSuite) TestMalformedResponse() {
	srv := newLineServer(s.T(), func(conn net.Conn) {
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Fprint(conn, "this is not json\n")
		}
	})
	defer srv.close()

	conn, err := Dialer{Timeout: 2 * time.Second}.Dial(context.Background(), srv.endpoint())
	s.Require().NoError(err)
	defer conn.Close()

	_, err = conn.Call(context.Background(), MethodPing, nil)
	var protoErr *ProtocolError
	s.Require().ErrorAs(err, &protoErr)
}

// TestRemoteClose tests that a mid-call disconnect surfaces a
// ConnectionClosedError.
func (s *ClientTestSuite) TestRemoteClose() {
	srv := newLineServer(s.T(), func(conn net.Conn) {
		scanner := bufio.NewScanner(conn)
		scanner.Scan()
		_ = conn.Close()
	})
	defer srv.close()

	conn, err := Dialer{Timeout: 2 * time.Second}.Dial(context.Background(), srv.endpoint())
	s.Require().NoError(err)
	defer conn.Close()

	_, err = conn.Call(context.Background(), MethodPing, nil)
	var closedErr *ConnectionClosedError
	s.Require().ErrorAs(err, &closedErr)
}

// TestRPCError tests that a structured server error is returned without
// killing the connection.
func (s *ClientTestSuite) TestRPCError() {
	srv := newLineServer(s.T(), func(conn net.Conn) {
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req struct {
				ID uint64 `json:"id"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				return
			}
			fmt.Fprintf(conn, `{"id":%d,"error":{"code":-32601,"message":"unknown method"}}`+"\n", req.ID)
		}
	})
	defer srv.close()

	conn, err := Dialer{Timeout: 2 * time.Second}.Dial(context.Background(), srv.endpoint())
	s.Require().NoError(err)
	defer conn.Close()

	_, err = conn.Call(context.Background(), "no.such.method", nil)
	var rpcErr *RPCError
	s.Require().ErrorAs(err, &rpcErr)
	s.Equal(-32601, rpcErr.Code)

	// Connection stays usable after a per-request error.
	_, err = conn.Call(context.Background(), "still.works", nil)
	s.Require().ErrorAs(err, &rpcErr)
}

// TestSubscriptionPushIgnored tests that ID-less notifications do not
// confuse response correlation.
func (s *ClientTestSuite) TestSubscriptionPushIgnored() {
	srv := newLineServer(s.T(), func(conn net.Conn) {
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req struct {
				ID uint64 `json:"id"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				return
			}
			fmt.Fprint(conn, `{"method":"blockchain.headers.subscribe","params":[{"height":1}]}`+"\n")
			fmt.Fprintf(conn, `{"id":%d,"result":true}`+"\n", req.ID)
		}
	})
	defer srv.close()

	conn, err := Dialer{Timeout: 2 * time.Second}.Dial(context.Background(), srv.endpoint())
	s.Require().NoError(err)
	defer conn.Close()

	result, err := conn.Call(context.Background(), MethodPing, nil)
	s.Require().NoError(err)
	s.JSONEq("true", string(result))
}

// TestConnectErrorTLS tests that a failed TLS handshake surfaces a
// ConnectError rather than a plaintext downgrade.
func (s *ClientTestSuite) TestConnectErrorTLS() {
	srv := newLineServer(s.T(), func(conn net.Conn) {
		// Speak plaintext at a TLS client.
		fmt.Fprint(conn, "definitely not a tls handshake\n")
		_ = conn.Close()
	})
	defer srv.close()

	endpoint := srv.endpoint()
	endpoint.TLS = true
	_, err := Dialer{Timeout: 500 * time.Millisecond}.Dial(context.Background(), endpoint)
	var connectErr *ConnectError
	s.Require().ErrorAs(err, &connectErr)
}

// TestConnectRefused tests that an unreachable endpoint surfaces a
// ConnectError.
func (s *ClientTestSuite) TestConnectRefused() {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	endpoint := models.Endpoint{Host: "127.0.0.1", Port: listener.Addr().(*net.TCPAddr).Port}
	s.Require().NoError(listener.Close())

	_, err = Dialer{Timeout: 500 * time.Millisecond}.Dial(context.Background(), endpoint)
	var connectErr *ConnectError
	s.Require().ErrorAs(err, &connectErr)
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

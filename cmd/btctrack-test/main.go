// Command btctrack-test exercises a running btctrackd API end to end:
// health, validation, balance, batch balances, history and server
// status. It exits non-zero if any check fails.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultServerURL   = "http://127.0.0.1:8000"
	defaultHTTPTimeout = 2 * time.Minute
	defaultRetryMax    = 2

	// Genesis block address; harmless to query and always present.
	defaultAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

type apiClient struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

func newAPIClient(baseURL, apiKey string, timeout time.Duration) *apiClient {
	client := retryablehttp.NewClient()
	client.RetryMax = defaultRetryMax
	client.HTTPClient.Timeout = timeout
	client.Logger = nil // quiet; failures are reported per check

	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (c *apiClient) do(method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

type check struct {
	name   string
	method string
	path   string
	body   any
	want   int
}

func main() {
	serverURL := flag.String("url", defaultServerURL, "Base URL of the btctrackd API")
	apiKey := flag.String("api-key", "", "API key for /v1 endpoints")
	address := flag.String("address", defaultAddress, "Address used for balance/history checks")
	timeout := flag.Duration("timeout", defaultHTTPTimeout, "Per-request timeout")
	flag.Parse()

	client := newAPIClient(*serverURL, *apiKey, *timeout)

	checks := []check{
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"validate", http.MethodPost, "/v1/bitcoin/validate", map[string]string{"address": *address}, http.StatusOK},
		{"validate-bad", http.MethodPost, "/v1/bitcoin/validate", map[string]string{"address": ""}, http.StatusBadRequest},
		{"balance", http.MethodGet, "/v1/bitcoin/balance/" + *address, nil, http.StatusOK},
		{"balances", http.MethodPost, "/v1/bitcoin/balances", map[string][]string{"addresses": {*address}}, http.StatusOK},
		{"history", http.MethodGet, "/v1/bitcoin/history/" + *address, nil, http.StatusOK},
		{"servers", http.MethodGet, "/v1/servers", nil, http.StatusOK},
	}

	failures := 0
	for _, c := range checks {
		start := time.Now()
		status, data, err := client.do(c.method, c.path, c.body)
		elapsed := time.Since(start).Round(time.Millisecond)

		switch {
		case err != nil:
			failures++
			fmt.Printf("FAIL %-14s %v\n", c.name, err)
		case status != c.want:
			failures++
			fmt.Printf("FAIL %-14s status %d (want %d): %s\n", c.name, status, c.want, truncate(data, 120))
		default:
			fmt.Printf("ok   %-14s %d in %s\n", c.name, status, elapsed)
		}
	}

	if failures > 0 {
		fmt.Printf("%d of %d checks failed\n", failures, len(checks))
		os.Exit(1)
	}
	fmt.Printf("all %d checks passed\n", len(checks))
}

func truncate(data []byte, n int) string {
	s := string(data)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const sessionHeader = "Mcp-Session-Id"

// httpTransport posts JSON-RPC over HTTP. Servers may answer with a plain
// JSON body or with an event stream; for streams the last parseable
// data: line wins. A session id handed out by the server is echoed on
// every later request.
type httpTransport struct {
	server  string
	url     string
	headers map[string]string
	client  *http.Client

	mu        sync.Mutex
	sessionID string
}

func newHTTPTransport(server, url string, headers map[string]string) *httpTransport {
	return &httpTransport{
		server:  server,
		url:     url,
		headers: headers,
		client:  &http.Client{},
	}
}

func (t *httpTransport) call(ctx context.Context, req request) (*response, error) {
	body, err := t.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("server %s: decode response: %w", t.server, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("server %s: %w", t.server, resp.Error)
	}
	return &resp, nil
}

func (t *httpTransport) notify(ctx context.Context, req request) error {
	_, err := t.roundTrip(ctx, req)
	return err
}

func (t *httpTransport) roundTrip(ctx context.Context, rpc request) ([]byte, error) {
	payload, err := json.Marshal(rpc)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	t.mu.Lock()
	if t.sessionID != "" {
		req.Header.Set(sessionHeader, t.sessionID)
	}
	t.mu.Unlock()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", t.server, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(sessionHeader); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server %s: HTTP %d: %s", t.server, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return lastEventData(resp.Body)
	}
	return io.ReadAll(resp.Body)
}

// lastEventData scans an SSE body and returns the last data: payload that
// is valid JSON.
func lastEventData(r io.Reader) ([]byte, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	var last []byte
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if json.Valid([]byte(data)) {
			last = []byte(data)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if last == nil {
		return nil, fmt.Errorf("event stream carried no JSON data")
	}
	return last, nil
}

func (t *httpTransport) close(time.Duration) error {
	t.client.CloseIdleConnections()
	return nil
}

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newPipeTransport wires a stdioTransport to in-memory pipes so framing can
// be tested without a child process. serve receives each decoded request
// and returns the raw line to write back, or "" for no reply.
func newPipeTransport(t *testing.T, serve func(req request) string) *stdioTransport {
	t.Helper()
	inR, inW := io.Pipe()   // client stdin -> server
	outR, outW := io.Pipe() // server -> client stdout

	tr := &stdioTransport{
		server:  "test",
		stdin:   inW,
		pending: make(map[int64]chan *response),
		done:    make(chan struct{}),
	}
	go tr.readLoop(outR)

	go func() {
		sc := bufio.NewScanner(inR)
		sc.Buffer(make([]byte, 64*1024), maxFrameSize)
		for sc.Scan() {
			var req request
			if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
				continue
			}
			if reply := serve(req); reply != "" {
				_, _ = io.WriteString(outW, reply+"\n")
			}
		}
	}()
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outW.Close()
	})
	return tr
}

func result(id int64, body string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, body)
}

func TestStdio_CallResolvesByID(t *testing.T) {
	tr := newPipeTransport(t, func(req request) string {
		if req.Method != "ping" {
			t.Errorf("method = %q, want ping", req.Method)
		}
		return result(*req.ID, `{"ok":true}`)
	})

	resp, err := tr.call(context.Background(), newRequest(7, "ping", nil))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp.Result) != `{"ok":true}` {
		t.Errorf("result = %s", resp.Result)
	}
}

func TestStdio_ErrorFieldSurfaces(t *testing.T) {
	tr := newPipeTransport(t, func(req request) string {
		return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, *req.ID)
	})

	_, err := tr.call(context.Background(), newRequest(1, "nope", nil))
	if err == nil || !strings.Contains(err.Error(), "method not found") {
		t.Fatalf("err = %v, want rpc error", err)
	}
}

func TestStdio_UnmatchedFramesDropped(t *testing.T) {
	tr := newPipeTransport(t, func(req request) string {
		// Noise before the real answer: wrong id, junk, a notification.
		return "{\"jsonrpc\":\"2.0\",\"id\":999,\"result\":{}}\nnot json\n" +
			"{\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n" +
			result(*req.ID, `"real"`)
	})

	resp, err := tr.call(context.Background(), newRequest(3, "x", nil))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp.Result) != `"real"` {
		t.Errorf("result = %s, want \"real\"", resp.Result)
	}
}

func TestStdio_LargeFrame(t *testing.T) {
	big := strings.Repeat("a", 2<<20)
	tr := newPipeTransport(t, func(req request) string {
		return result(*req.ID, `"`+big+`"`)
	})

	resp, err := tr.call(context.Background(), newRequest(4, "x", nil))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(resp.Result) < len(big) {
		t.Errorf("large frame truncated: %d bytes", len(resp.Result))
	}
}

func TestStdio_TimeoutRemovesPending(t *testing.T) {
	tr := newPipeTransport(t, func(req request) string { return "" })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := tr.call(ctx, newRequest(5, "slow", nil))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	tr.mu.Lock()
	n := len(tr.pending)
	tr.mu.Unlock()
	if n != 0 {
		t.Errorf("pending table holds %d entries after timeout", n)
	}
}

// mcpHTTPServer is a minimal MCP endpoint used by the HTTP transport tests.
func mcpHTTPServer(t *testing.T, sawSession *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req request
		_ = json.Unmarshal(body, &req)

		if req.Method != "initialize" {
			if r.Header.Get(sessionHeader) != "session-123" {
				t.Errorf("%s: session id not echoed", req.Method)
			} else {
				sawSession.Add(1)
			}
		}

		switch req.Method {
		case "initialize":
			w.Header().Set(sessionHeader, "session-123")
			fmt.Fprint(w, result(*req.ID, `{"protocolVersion":"2024-11-05"}`))
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			fmt.Fprint(w, result(*req.ID, `{"tools":[
				{"name":"get_weather","description":"Current weather for a city","inputSchema":{"type":"object"}},
				{"name":"send_email","description":"Send an email","inputSchema":{"type":"object"}}]}`))
		case "tools/call":
			var params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			}
			raw, _ := json.Marshal(req.Params)
			_ = json.Unmarshal(raw, &params)
			if params.Name != "get_weather" {
				t.Errorf("tools/call name = %q", params.Name)
			}
			fmt.Fprint(w, result(*req.ID, `{"content":[{"type":"text","text":"sunny, 21C"}]}`))
		default:
			t.Errorf("unexpected method %q", req.Method)
		}
	}))
}

func TestHTTP_HandshakeAndCallTool(t *testing.T) {
	var sawSession atomic.Int32
	srv := mcpHTTPServer(t, &sawSession)
	defer srv.Close()

	m := NewManager()
	err := m.StartServer(context.Background(), "wx", ServerConfig{Transport: "http", URL: srv.URL})
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	defer m.Stop()

	tools := m.Tools()
	if len(tools) != 2 {
		t.Fatalf("registered %d tools, want 2", len(tools))
	}
	if tools[0].FullName != "wx__get_weather" {
		t.Errorf("FullName = %q, want wx__get_weather", tools[0].FullName)
	}

	got, err := m.CallTool(context.Background(), "wx__get_weather", map[string]any{"city": "Hanoi"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if got != "sunny, 21C" {
		t.Errorf("CallTool = %q", got)
	}
	if sawSession.Load() == 0 {
		t.Error("no request carried the session id")
	}
}

func TestHTTP_EventStreamLastDataLineWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message\n")
		io.WriteString(w, "data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":\"stale\"}\n\n")
		io.WriteString(w, "data: not json at all\n\n")
		io.WriteString(w, "data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":\"fresh\"}\n\n")
	}))
	defer srv.Close()

	tr := newHTTPTransport("sse", srv.URL, nil)
	resp, err := tr.call(context.Background(), newRequest(1, "x", nil))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp.Result) != `"fresh"` {
		t.Errorf("result = %s, want \"fresh\"", resp.Result)
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{"content text", `{"content":[{"type":"text","text":"hello"}]}`, "hello"},
		{"no content", `{"value":42}`, `{"value":42}`},
		{"empty content", `{"content":[]}`, `{"content":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText(json.RawMessage(tt.result)); got != tt.want {
				t.Errorf("extractText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCallTool_MalformedName(t *testing.T) {
	m := NewManager()
	if _, err := m.CallTool(context.Background(), "nounderscore", nil); err == nil {
		t.Error("expected error for name without separator")
	}
	if _, err := m.CallTool(context.Background(), "ghost__tool", nil); err == nil {
		t.Error("expected error for unknown server")
	}
}

func seedTools(m *Manager, server string, n int, desc string) {
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("tool_%d", i)
		m.tools = append(m.tools, Tool{
			Server:      server,
			Name:        name,
			FullName:    server + "__" + name,
			Description: desc,
		})
	}
}

func TestToolsForQuery(t *testing.T) {
	m := NewManager(WithCoreServers([]string{"core"}), WithToolCap(10))
	seedTools(m, "core", 3, "always available")
	seedTools(m, "gmail", 5, "works with email messages")
	seedTools(m, "misc", 20, "unrelated utility")

	t.Run("core always included", func(t *testing.T) {
		got := m.ToolsForQuery("tell me a joke")
		for i := 0; i < 3; i++ {
			if got[i].Server != "core" {
				t.Fatalf("tool %d from %q, want core first", i, got[i].Server)
			}
		}
	})

	t.Run("keyword pulls matching tools", func(t *testing.T) {
		got := m.ToolsForQuery("check my email please")
		found := 0
		for _, tool := range got {
			if tool.Server == "gmail" {
				found++
			}
		}
		if found != 5 {
			t.Errorf("included %d gmail tools, want all 5", found)
		}
	})

	t.Run("soft cap bounds filler", func(t *testing.T) {
		got := m.ToolsForQuery("hello")
		if len(got) > 10 {
			t.Errorf("returned %d tools, soft cap is 10", len(got))
		}
	})

	t.Run("no duplicates", func(t *testing.T) {
		got := m.ToolsForQuery("email email email")
		seen := map[string]bool{}
		for _, tool := range got {
			if seen[tool.FullName] {
				t.Fatalf("duplicate tool %q", tool.FullName)
			}
			seen[tool.FullName] = true
		}
	})
}

func TestToolsForQuery_HardCap(t *testing.T) {
	m := NewManager(WithToolCap(500))
	seedTools(m, "files", 150, "file management for every file")

	got := m.ToolsForQuery("open a file")
	if len(got) != hardToolCap {
		t.Errorf("returned %d tools, hard cap is %d", len(got), hardToolCap)
	}
}

package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/inkling/internal/bus"
)

func echoHandler(reply string) HandlerFunc {
	return func(ctx context.Context, args string) (string, error) {
		return reply + args, nil
	}
}

func TestDispatch(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.Register(Command{Name: "mood", Description: "show mood", Category: "companion", Handler: echoHandler("mood:")})
	reg.Register(Command{Name: "remember", Description: "store a fact", Category: "memory", Handler: echoHandler("stored:")})

	tests := []struct {
		name string
		line string
		want string
	}{
		{"plain", "/mood", "mood:"},
		{"with args", "/remember color is blue", "stored:color is blue"},
		{"mixed case", "/MOOD", "mood:"},
		{"surrounding space", "  /mood  ", "mood:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Dispatch(context.Background(), tt.line)
			if err != nil {
				t.Fatalf("Dispatch(%q): %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Dispatch(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	reg := NewRegistry(nil, nil)
	if _, err := reg.Dispatch(context.Background(), "/nope"); err == nil {
		t.Fatal("unknown command accepted")
	}
}

func TestDispatchGates(t *testing.T) {
	brainUp := false
	reg := NewRegistry(func() bool { return brainUp }, func() bool { return false })
	reg.Register(Command{Name: "think", RequiresBrain: true, Handler: echoHandler("ok")})
	reg.Register(Command{Name: "sync", RequiresAPI: true, Handler: echoHandler("ok")})

	if _, err := reg.Dispatch(context.Background(), "/think"); err == nil {
		t.Error("brain-gated command ran without a brain")
	}
	brainUp = true
	if _, err := reg.Dispatch(context.Background(), "/think"); err != nil {
		t.Errorf("brain-gated command failed with brain ready: %v", err)
	}
	if _, err := reg.Dispatch(context.Background(), "/sync"); err == nil {
		t.Error("api-gated command ran without credentials")
	}
}

func TestHelpGroupsByCategory(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.Register(Command{Name: "mood", Description: "show mood", Category: "companion", Handler: echoHandler("")})
	reg.Register(Command{Name: "tasks", Description: "list tasks", Category: "productivity", Handler: echoHandler("")})

	help := reg.Help()
	if !strings.Contains(help, "companion:") || !strings.Contains(help, "productivity:") {
		t.Errorf("Help missing categories:\n%s", help)
	}
	if strings.Index(help, "companion:") > strings.Index(help, "productivity:") {
		t.Errorf("categories not sorted:\n%s", help)
	}
}

func newTestServer(t *testing.T, chat ChatFunc, status StatusFunc, b *bus.Bus) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer("", chat, status, b).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPChat(t *testing.T) {
	chat := func(ctx context.Context, msg string) (string, error) {
		return "you said " + msg, nil
	}
	srv := newTestServer(t, chat, nil, nil)

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Reply != "you said hi" {
		t.Errorf("reply = %q", body.Reply)
	}
}

func TestHTTPChatRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, msg string) (string, error) { return "", nil }, nil, nil)

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/chat")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /chat status = %d, want 405", resp.StatusCode)
	}
}

func TestHTTPChatErrorIsSanitized(t *testing.T) {
	chat := func(ctx context.Context, msg string) (string, error) {
		return "", errors.New("provider rejected key sk-abcdefgh12345678")
	}
	srv := newTestServer(t, chat, nil, nil)

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(body.Error, "sk-abcdefgh12345678") {
		t.Errorf("error leaked a key: %q", body.Error)
	}
}

func TestHTTPStatus(t *testing.T) {
	status := func() map[string]any {
		return map[string]any{"mood": "happy", "level": 3}
	}
	srv := newTestServer(t, nil, status, nil)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if doc["mood"] != "happy" {
		t.Errorf("status doc = %v", doc)
	}
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	b := bus.New()
	srv := newTestServer(t, nil, nil, b)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered inside the handler; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	b.Publish(bus.Event{Kind: bus.KindLevelUp, Text: "level 2"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e bus.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Kind != bus.KindLevelUp || e.Text != "level 2" {
		t.Errorf("event = %+v", e)
	}
}

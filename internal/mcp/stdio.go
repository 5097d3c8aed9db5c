package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// maxFrameSize bounds a single stdout line. Some servers emit very large
// tool lists in one frame.
const maxFrameSize = 10 << 20

// stdioTransport talks JSON-RPC to a child process, one newline-terminated
// JSON document per frame on stdout. A single reader goroutine resolves
// pending requests by id.
type stdioTransport struct {
	server string
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *response
	closed  bool

	done chan struct{} // closed when the reader exits
}

func newStdioTransport(server, command string, args []string, env map[string]string) (*stdioTransport, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	t := &stdioTransport{
		server:  server,
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int64]chan *response),
		done:    make(chan struct{}),
	}
	go t.readLoop(stdout)
	go t.drainStderr(stderr)
	return t, nil
}

// readLoop parses one response per line and hands it to the waiting caller.
// Frames without a matching pending id are dropped.
func (t *stdioTransport) readLoop(r io.Reader) {
	defer close(t.done)
	defer t.failAllPending(fmt.Errorf("server %s: connection closed", t.server))

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Debug("mcp.stdio.bad_frame", "server", t.server, "error", err)
			continue
		}
		if resp.ID == nil {
			// Server-initiated notification; nothing waits on it.
			continue
		}
		t.mu.Lock()
		ch, ok := t.pending[*resp.ID]
		if ok {
			delete(t.pending, *resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
	if err := sc.Err(); err != nil {
		slog.Warn("mcp.stdio.read_error", "server", t.server, "error", err)
	}
}

func (t *stdioTransport) drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		slog.Debug("mcp.stdio.stderr", "server", t.server, "line", sc.Text())
	}
}

func (t *stdioTransport) failAllPending(err error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[int64]chan *response)
	t.mu.Unlock()
	for id, ch := range pending {
		ch <- &response{ID: &id, Error: &rpcError{Code: -32000, Message: err.Error()}}
	}
}

func (t *stdioTransport) write(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("server %s: write: %w", t.server, err)
	}
	return nil
}

func (t *stdioTransport) call(ctx context.Context, req request) (*response, error) {
	ch := make(chan *response, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("server %s: transport closed", t.server)
	}
	t.pending[*req.ID] = ch
	t.mu.Unlock()

	if err := t.write(req); err != nil {
		t.mu.Lock()
		delete(t.pending, *req.ID)
		t.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("server %s: %w", t.server, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, *req.ID)
		t.mu.Unlock()
		return nil, fmt.Errorf("server %s: %s: %w", t.server, req.Method, ctx.Err())
	}
}

func (t *stdioTransport) notify(_ context.Context, req request) error {
	return t.write(req)
}

// close terminates the child: SIGTERM, a grace period, then SIGKILL.
func (t *stdioTransport) close(grace time.Duration) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Signal(syscall.SIGTERM)
	}

	waited := make(chan error, 1)
	go func() { waited <- t.cmd.Wait() }()
	select {
	case err := <-waited:
		return err
	case <-time.After(grace):
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		return <-waited
	}
}

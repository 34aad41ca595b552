package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/pkg/ps"
)

type recordingListener struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	messages     []ps.Envelope
}

func (l *recordingListener) OnConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected++
}

func (l *recordingListener) OnDisconnected(string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected++
}

func (l *recordingListener) OnMessage(env ps.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, env)
}

func (l *recordingListener) counts() (int, int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected, l.disconnected, len(l.messages)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

// echoHub answers every envelope with a welcome and drops the connection
// after the first exchange when drop is set.
type echoHub struct {
	mu    sync.Mutex
	users []string
	drop  bool
}

func (h *echoHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()
	h.mu.Lock()
	h.users = append(h.users, r.URL.Query().Get("user")+"/"+r.URL.Query().Get("key"))
	drop := h.drop
	h.drop = false
	h.mu.Unlock()
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		env, err := ps.DecodeEnvelope(data)
		if err != nil || env.Type != ps.MsgHello {
			continue
		}
		reply, _ := ps.NewEnvelope(ps.MsgWelcome, ps.Welcome{DeviceID: "dev-1"})
		_ = c.WriteJSON(reply)
		if drop {
			return
		}
	}
}

func (h *echoHub) dials() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.users...)
}

func newTestTransport(t *testing.T, server *httptest.Server) *Transport {
	t.Helper()
	transport, err := NewTransport(Options{
		URL:        "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/session",
		User:       "alice",
		Key:        "k1",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return transport
}

func TestTransportExchangesEnvelopes(t *testing.T) {
	hub := &echoHub{}
	server := httptest.NewServer(hub)
	defer server.Close()

	transport := newTestTransport(t, server)
	listener := &recordingListener{}
	if err := transport.Start(context.Background(), listener); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer transport.Close()

	waitFor(t, func() bool { c, _, _ := listener.counts(); return c == 1 })
	if err := transport.Send(ps.MsgHello, ps.Hello{DeviceName: "cli"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, func() bool { _, _, n := listener.counts(); return n == 1 })
	if got := hub.dials(); len(got) != 1 || got[0] != "alice/k1" {
		t.Fatalf("unexpected dial query: %v", got)
	}
}

func TestTransportReconnects(t *testing.T) {
	hub := &echoHub{drop: true}
	server := httptest.NewServer(hub)
	defer server.Close()

	transport := newTestTransport(t, server)
	listener := &recordingListener{}
	if err := transport.Start(context.Background(), listener); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { c, _, _ := listener.counts(); return c == 1 })
	_ = transport.Send(ps.MsgHello, ps.Hello{})
	waitFor(t, func() bool { c, d, _ := listener.counts(); return c == 2 && d == 1 })

	_ = transport.Close()
	_, d, _ := listener.counts()
	if d != 2 {
		t.Fatalf("expected disconnect on close, got %d", d)
	}
	if err := transport.Send(ps.MsgHello, ps.Hello{}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestNewTransportValidates(t *testing.T) {
	if _, err := NewTransport(Options{URL: "ws://x", User: "alice"}); err == nil {
		t.Fatalf("expected error without key")
	}
	if _, err := NewTransport(Options{URL: "http://x", User: "alice", Key: "k"}); err == nil {
		t.Fatalf("expected error for http scheme")
	}
}

func TestStartFailsFast(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	transport := newTestTransport(t, server)
	server.Close()
	if err := transport.Start(context.Background(), &recordingListener{}); err == nil {
		t.Fatalf("expected dial error")
	}
}

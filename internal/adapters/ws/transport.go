package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/adapters/tlsconfig"
	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// Defaults for the WebSocket transport.
const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
	writeTimeout      = 10 * time.Second
	pongTimeout       = 60 * time.Second
	sendBuffer        = 256
)

// ErrNotConnected is returned by Send between connections.
var ErrNotConnected = errors.New("websocket not connected")

var errSendBufferFull = errors.New("websocket send buffer full")

// Options configures the device transport.
type Options struct {
	URL         string
	User        string
	Key         string
	TLSCA       string
	TLSCert     string
	TLSKey      string
	DialTimeout time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Logger      *zap.Logger
}

// Transport is a device channel over one WebSocket to the hub. It redials
// with exponential backoff until closed.
type Transport struct {
	opts   Options
	log    *zap.Logger
	target string
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *conn
	cancel context.CancelFunc
	done   chan struct{}
}

type conn struct {
	ws       *websocket.Conn
	send     chan []byte
	stop     chan struct{}
	finished chan struct{}
	once     sync.Once
}

// NewTransport validates opts and prepares a transport.
func NewTransport(opts Options) (*Transport, error) {
	if strings.TrimSpace(opts.User) == "" || strings.TrimSpace(opts.Key) == "" {
		return nil, errors.New("user and device key required")
	}
	target, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	if target.Scheme != "ws" && target.Scheme != "wss" {
		return nil, fmt.Errorf("ws url must use ws or wss, got %q", target.Scheme)
	}
	query := target.Query()
	query.Set("user", opts.User)
	query.Set("key", opts.Key)
	target.RawQuery = query.Encode()

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	tlsConfig, err := tlsconfig.Load(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	return &Transport{
		opts:   opts,
		log:    opts.Logger,
		target: target.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
			TLSClientConfig:  tlsConfig,
		},
	}, nil
}

// Start dials the hub and keeps the connection up in the background until
// ctx ends or Close is called. The first dial is synchronous so a bad
// address fails fast.
func (t *Transport) Start(ctx context.Context, listener ports.Listener) error {
	ws, err := t.dial(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		t.run(ctx, ws, listener)
	}()
	return nil
}

// Send queues one envelope for the writer.
func (t *Transport) Send(msgType ps.MessageType, payload any) error {
	env, err := ps.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	select {
	case <-c.stop:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops reconnecting and closes the current connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	c := t.conn
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if c != nil {
		c.close()
	}
	<-done
	return nil
}

func (t *Transport) run(ctx context.Context, ws *websocket.Conn, listener ports.Listener) {
	backoff := t.opts.MinBackoff
	for {
		if ws != nil {
			reason := t.serve(ctx, ws, listener)
			listener.OnDisconnected(reason)
			backoff = t.opts.MinBackoff
		}
		if ctx.Err() != nil {
			return
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		var err error
		ws, err = t.dial(ctx)
		if err != nil {
			t.log.Debug("websocket dial failed", zap.Duration("backoff", backoff), zap.Error(err))
			backoff *= 2
			if backoff > t.opts.MaxBackoff {
				backoff = t.opts.MaxBackoff
			}
			ws = nil
		}
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := t.dialer.DialContext(ctx, t.target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", redact(t.target), resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", redact(t.target), err)
	}
	return ws, nil
}

// serve runs one connection to completion and returns why it ended.
func (t *Transport) serve(ctx context.Context, ws *websocket.Conn, listener ports.Listener) string {
	c := &conn{ws: ws, send: make(chan []byte, sendBuffer), stop: make(chan struct{}), finished: make(chan struct{})}
	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		if t.conn == c {
			t.conn = nil
		}
		t.mu.Unlock()
		c.close()
		<-c.finished
	}()

	go c.writeLoop(t.log)
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.stop:
		}
	}()

	t.log.Info("websocket connected", zap.String("url", redact(t.target)))
	listener.OnConnected()

	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "closed"
			}
			return err.Error()
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
		env, err := ps.DecodeEnvelope(data)
		if err != nil {
			t.log.Warn("invalid envelope", zap.Error(err))
			continue
		}
		listener.OnMessage(env)
	}
}

// writeLoop owns every data write. On stop it flushes what is already
// queued before sending the close frame.
func (c *conn) writeLoop(log *zap.Logger) {
	defer func() {
		c.close()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.ws.Close()
		close(c.finished)
	}()
	for {
		select {
		case <-c.stop:
			c.drain(log)
			return
		case data := <-c.send:
			if err := c.write(data); err != nil {
				log.Debug("websocket write error", zap.Error(err))
				return
			}
		}
	}
}

func (c *conn) drain(log *zap.Logger) {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				log.Debug("websocket write error", zap.Error(err))
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.stop)
	})
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

var _ ports.Transport = (*Transport)(nil)

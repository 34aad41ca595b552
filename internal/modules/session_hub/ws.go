package sessionhub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/pkg/ps"
)

// WebSocket defaults.
const (
	DefaultWSPath  = "/v1/session"
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsReadLimit    = 1 << 20
	wsSendBuffer   = 256
)

var errConnClosed = errors.New("websocket closed")

// WSConfig configures the WebSocket binding.
type WSConfig struct {
	Listen string
	Path   string
}

// WSBinding carries the session protocol over one WebSocket per device.
type WSBinding struct {
	log      *zap.Logger
	hub      *Hub
	config   WSConfig
	upgrader websocket.Upgrader
}

// NewWSBinding creates a WebSocket binding for hub.
func NewWSBinding(log *zap.Logger, hub *Hub, cfg WSConfig) *WSBinding {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:8790"
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultWSPath
	}
	return &WSBinding{
		log:    log,
		hub:    hub,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the upgrade handler. Devices connect with
// ?user=<user>&key=<key>.
func (b *WSBinding) Handler() http.Handler {
	return http.HandlerFunc(b.serve)
}

// Run serves the binding until ctx ends.
func (b *WSBinding) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(b.config.Path, b.Handler())
	server := &http.Server{
		Addr:              b.config.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	b.log.Info("websocket binding listening", zap.String("listen", b.config.Listen), zap.String("path", b.config.Path))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (b *WSBinding) serve(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if user == "" || key == "" {
		http.Error(w, "user and key required", http.StatusBadRequest)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsConn{conn: conn, send: make(chan []byte, wsSendBuffer), done: make(chan struct{})}
	go c.writeLoop(b.log)
	token := b.hub.Attach(user, key, c.sink)

	reason := c.readLoop(b.log, func(env ps.Envelope) {
		b.hub.Handle(user, key, env)
	})
	b.hub.Detach(user, key, token, reason)
	c.close()
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (c *wsConn) sink(env ps.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	case c.send <- data:
		return nil
	default:
		return errors.New("websocket send buffer full")
	}
}

func (c *wsConn) readLoop(log *zap.Logger, handle func(ps.Envelope)) string {
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read error", zap.Error(err))
			}
			return "websocket closed"
		}
		env, err := ps.DecodeEnvelope(data)
		if err != nil {
			log.Warn("invalid envelope", zap.Error(err))
			continue
		}
		handle(env)
	}
}

func (c *wsConn) writeLoop(log *zap.Logger) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("websocket write error", zap.Error(err))
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *wsConn) close() {
	close(c.done)
	_ = c.conn.Close()
}

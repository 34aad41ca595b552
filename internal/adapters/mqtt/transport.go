package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/adapters/tlsconfig"
	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// ErrNotConnected is returned by Send while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// Options configures the device transport.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	User      string
	Key       string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Transport is a device channel over per-device MQTT topics. It publishes
// to the up topic, listens on the down topic and leaves a last will on the
// gone topic so the hub notices an unclean exit.
type Transport struct {
	opts Options
	log  *zap.Logger
	up   string
	down string
	gone string

	mu       sync.Mutex
	client   paho.Client
	listener ports.Listener
	closed   bool
}

// NewTransport validates opts and prepares a transport. It does not
// connect until Start.
func NewTransport(opts Options) (*Transport, error) {
	if strings.TrimSpace(opts.BrokerURL) == "" {
		return nil, errors.New("broker url required")
	}
	if strings.TrimSpace(opts.User) == "" || strings.TrimSpace(opts.Key) == "" {
		return nil, errors.New("user and device key required")
	}
	if opts.TopicBase == "" {
		opts.TopicBase = ps.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("ps-%s", opts.Key)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Transport{
		opts: opts,
		log:  opts.Logger,
		up:   ps.TopicUp(opts.TopicBase, opts.User, opts.Key),
		down: ps.TopicDown(opts.TopicBase, opts.User, opts.Key),
		gone: ps.TopicGone(opts.TopicBase, opts.User, opts.Key),
	}, nil
}

// Start connects and delivers channel events to listener until ctx ends.
// Reconnects are reported as a disconnect followed by a connect.
func (t *Transport) Start(ctx context.Context, listener ports.Listener) error {
	clientOpts := paho.NewClientOptions().AddBroker(t.opts.BrokerURL)
	clientOpts.SetClientID(t.opts.ClientID)
	clientOpts.SetConnectTimeout(t.opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetCleanSession(true)
	clientOpts.SetOrderMatters(true)
	clientOpts.SetWill(t.gone, "", 1, false)
	clientOpts.SetOnConnectHandler(func(client paho.Client) {
		token := client.Subscribe(t.down, 1, t.handleDown)
		token.Wait()
		if err := token.Error(); err != nil {
			t.log.Warn("subscribe failed", zap.String("topic", t.down), zap.Error(err))
			return
		}
		t.log.Debug("mqtt connected", zap.String("topic", t.down))
		listener.OnConnected()
	})
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.log.Warn("mqtt connection lost", zap.Error(err))
		listener.OnDisconnected(err.Error())
	})

	if t.opts.Username != "" {
		clientOpts.SetUsername(t.opts.Username)
		clientOpts.SetPassword(t.opts.Password)
	}
	tlsConfig, err := tlsconfig.Load(t.opts.TLSCA, t.opts.TLSCert, t.opts.TLSKey)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	client := paho.NewClient(clientOpts)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	t.client = client
	t.listener = listener
	t.mu.Unlock()

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()
	return nil
}

// Send publishes one envelope without waiting for the broker.
func (t *Transport) Send(msgType ps.MessageType, payload any) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	env, err := ps.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	token := client.Publish(t.up, 1, false, data)
	go func() {
		if token.WaitTimeout(t.opts.Timeout) && token.Error() != nil {
			t.log.Warn("publish failed", zap.String("type", string(msgType)), zap.Error(token.Error()))
		}
	}()
	return nil
}

// Close announces the departure and disconnects.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	client := t.client
	listener := t.listener
	t.mu.Unlock()
	if client == nil {
		return nil
	}
	if client.IsConnectionOpen() {
		token := client.Publish(t.gone, 1, false, []byte{})
		token.WaitTimeout(250 * time.Millisecond)
	}
	client.Disconnect(250)
	if listener != nil {
		listener.OnDisconnected("closed")
	}
	return nil
}

func (t *Transport) handleDown(_ paho.Client, msg paho.Message) {
	env, err := ps.DecodeEnvelope(msg.Payload())
	if err != nil {
		t.log.Warn("invalid envelope", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	t.mu.Lock()
	listener := t.listener
	t.mu.Unlock()
	if listener != nil {
		listener.OnMessage(env)
	}
}

var _ ports.Transport = (*Transport)(nil)

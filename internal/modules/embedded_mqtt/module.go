package embeddedmqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/adapters/tlsconfig"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// Credential is one broker login. Device logins are confined to their own
// user's topics.
type Credential struct {
	Username string
	Password string
}

// Config configures the embedded MQTT broker.
type Config struct {
	Listen         string
	AllowAnonymous bool
	TopicBase      string
	// Hub is the login used by psd itself; it may use every topic.
	Hub     Credential
	Devices []Credential
	TLSCA   string
	TLSCert string
	TLSKey  string
}

// Module runs an embedded MQTT broker.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
}

// NewModule creates a new embedded broker module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:1883"
	}
	if cfg.TopicBase == "" {
		cfg.TopicBase = ps.BaseTopic
	}

	server, err := newServer(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, server: server, config: cfg}, nil
}

// Run starts the embedded broker.
func (m *Module) Run(ctx context.Context) error {
	listenerConfig := listeners.Config{ID: "tcp-embedded", Address: m.config.Listen}
	tlsConfig, err := tlsconfig.Load(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
	if err != nil {
		return err
	}
	listenerConfig.TLSConfig = tlsConfig

	listener := listeners.NewTCP(listenerConfig)
	if err := m.server.AddListener(listener); err != nil {
		return err
	}

	go func() {
		if err := m.server.Serve(); err != nil {
			m.log.Error("embedded mqtt serve", zap.Error(err))
		}
	}()
	m.log.Info("embedded mqtt listening", zap.String("listen", m.config.Listen), zap.Bool("tls", tlsConfig != nil))

	<-ctx.Done()
	m.server.Close()
	return nil
}

// Inline returns a client bound to the broker's inline connection. The hub
// uses it when the broker runs in the same process.
func (m *Module) Inline() *InlineClient {
	return newInlineClient(m.server)
}

func newServer(log *zap.Logger, cfg Config) (*mqtt.Server, error) {
	options := &mqtt.Options{InlineClient: true, Logger: newSlogLogger(log)}
	server := mqtt.New(options)

	if cfg.AllowAnonymous {
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
		return server, nil
	}
	ledger, err := buildLedger(cfg)
	if err != nil {
		return nil, err
	}
	if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
		return nil, err
	}
	return server, nil
}

// buildLedger grants the hub every topic and each device login the topics
// of the user named by its username.
func buildLedger(cfg Config) (*auth.Ledger, error) {
	if cfg.Hub.Username == "" && len(cfg.Devices) == 0 {
		return nil, errors.New("embedded mqtt requires allow_anonymous or credentials")
	}
	ledger := &auth.Ledger{}
	if cfg.Hub.Username != "" {
		ledger.Auth = append(ledger.Auth, auth.AuthRule{Username: auth.RString(cfg.Hub.Username), Password: auth.RString(cfg.Hub.Password), Allow: true})
		ledger.ACL = append(ledger.ACL, auth.ACLRule{Username: auth.RString(cfg.Hub.Username), Filters: auth.Filters{auth.RString("#"): auth.ReadWrite}})
	}
	for _, device := range cfg.Devices {
		if device.Username == "" {
			return nil, errors.New("device credential without username")
		}
		if device.Username == cfg.Hub.Username {
			return nil, fmt.Errorf("device credential %q shadows hub login", device.Username)
		}
		filter := fmt.Sprintf("%s/user/%s/#", cfg.TopicBase, device.Username)
		ledger.Auth = append(ledger.Auth, auth.AuthRule{Username: auth.RString(device.Username), Password: auth.RString(device.Password), Allow: true})
		ledger.ACL = append(ledger.ACL, auth.ACLRule{Username: auth.RString(device.Username), Filters: auth.Filters{auth.RString(filter): auth.ReadWrite}})
	}
	return ledger, nil
}

// BrokerURL returns the broker URL for a listen address.
func BrokerURL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s", scheme, listen)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/adapters/clock"
	"github.com/mikey-austin/playsync/internal/adapters/idgen"
	"github.com/mikey-austin/playsync/internal/adapters/mqttserver"
	"github.com/mikey-austin/playsync/internal/adapters/sessionstore"
	embeddedmqtt "github.com/mikey-austin/playsync/internal/modules/embedded_mqtt"
	sessionhub "github.com/mikey-austin/playsync/internal/modules/session_hub"
	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/internal/psd"
	"github.com/mikey-austin/playsync/pkg/ps"
)

const defaultEmbeddedListen = "127.0.0.1:1883"

func main() {
	var (
		configPath  string
		broker      string
		topicBase   string
		logLevel    string
		logFormat   string
		logOutput   string
		logSource   bool
		logUTC      bool
		logColor    bool
		printConfig bool
		dryRun      bool
		moduleOnly  string
	)

	defaultConfig, err := psd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&logSource, "log-source", false, "include source file in logs")
	flag.BoolVar(&logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.BoolVar(&logColor, "log-color", false, "enable colored log output (text only)")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := psd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, topicBase, logLevel, logFormat, logOutput, logSource, logUTC, logColor)

	if printConfig {
		printResolvedConfig(cfg)
		return
	}
	if dryRun {
		return
	}

	logger := psd.NewLogger(psd.LogConfig{
		Level:     cfg.Server.LogLevel,
		Format:    cfg.Server.LogFormat,
		Output:    cfg.Server.LogOutput,
		AddSource: cfg.Server.LogSource,
		UTC:       cfg.Server.LogUTC,
		Color:     cfg.Server.LogColor,
	})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("psd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("log_level", cfg.Server.LogLevel),
		zap.Strings("modules", enabledModules(cfg)),
	)

	var store ports.SessionStore
	if cfg.Modules.Store.Enabled {
		db, err := sessionstore.Open(logger.With(zap.String("module", "store")), cfg.Modules.Store.Path)
		if err != nil {
			logger.Error("session store failed", zap.Error(err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		store = db
	}

	hub := sessionhub.NewHub(logger.With(zap.String("module", "hub")), clock.Clock{}, idgen.Generator{}, store, sessionhub.Config{
		HandoffTimeout: cfg.Modules.Hub.HandoffTimeout(),
		ReclaimGrace:   cfg.Modules.Hub.ReclaimGrace(),
		StaleTimeout:   cfg.Modules.Hub.StaleTimeout(),
		MaxQueue:       cfg.Modules.Hub.MaxQueue,
	})
	defer hub.Close()

	modules, cleanup, err := buildModules(cfg, hub, logger, moduleOnly)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}
	defer cleanup()

	supervisor := psd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *psd.Config, broker string, topicBase string, logLevel string, logFormat string, logOutput string, logSource bool, logUTC bool, logColor bool) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if logOutput != "" {
		cfg.Server.LogOutput = logOutput
	}
	if logSource {
		cfg.Server.LogSource = true
	}
	if logUTC {
		cfg.Server.LogUTC = true
	}
	if logColor {
		cfg.Server.LogColor = true
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = ps.BaseTopic
	}
	if cfg.Modules.EmbeddedMQTT.Listen == "" {
		cfg.Modules.EmbeddedMQTT.Listen = defaultEmbeddedListen
	}
}

// buildModules wires the enabled modules around hub. The MQTT binding uses
// the embedded broker's inline client unless an external broker is set.
func buildModules(cfg psd.Config, hub *sessionhub.Hub, logger *zap.Logger, moduleOnly string) ([]psd.ModuleRunner, func(), error) {
	modules := []psd.ModuleRunner{}
	cleanup := func() {}
	want := func(name string) bool {
		return moduleOnly == "" || moduleOnly == name
	}

	var embedded *embeddedmqtt.Module
	if cfg.Modules.EmbeddedMQTT.Enabled && want("embedded_mqtt") {
		devices := make([]embeddedmqtt.Credential, 0, len(cfg.Modules.EmbeddedMQTT.Devices))
		for _, device := range cfg.Modules.EmbeddedMQTT.Devices {
			devices = append(devices, embeddedmqtt.Credential{Username: device.User, Password: device.Pass})
		}
		mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
			Listen:         cfg.Modules.EmbeddedMQTT.Listen,
			AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
			TopicBase:      cfg.Server.TopicBase,
			Hub:            embeddedmqtt.Credential{Username: cfg.Server.Auth.User, Password: cfg.Server.Auth.Pass},
			Devices:        devices,
			TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
			TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
			TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
		})
		if err != nil {
			return nil, cleanup, err
		}
		embedded = mod
		modules = append(modules, psd.ModuleRunner{Name: "embedded_mqtt", Run: mod.Run})
	}

	if cfg.Modules.HubMQTT.Enabled && want("hub_mqtt") {
		var client sessionhub.MQTTClient
		switch {
		case embedded != nil && (cfg.Server.Broker == "" || cfg.Server.Broker == embeddedURL(cfg)):
			client = embedded.Inline()
		case cfg.Server.Broker != "":
			remote, err := mqttserver.NewClient(mqttserver.Options{
				BrokerURL: cfg.Server.Broker,
				ClientID:  fmt.Sprintf("psd-%d", time.Now().UnixNano()),
				Username:  cfg.Server.Auth.User,
				Password:  cfg.Server.Auth.Pass,
				TLSCA:     cfg.Server.TLS.CA,
				TLSCert:   cfg.Server.TLS.Cert,
				TLSKey:    cfg.Server.TLS.Key,
				Timeout:   2 * time.Second,
				Logger:    logger.With(zap.String("module", "mqtt")),
			})
			if err != nil {
				return nil, cleanup, fmt.Errorf("mqtt connection failed: %w", err)
			}
			cleanup = remote.Close
			client = remote
		default:
			return nil, cleanup, errors.New("hub_mqtt requires a broker or the embedded broker")
		}
		binding := sessionhub.NewMQTTBinding(logger.With(zap.String("module", "hub_mqtt")), hub, client, cfg.Server.TopicBase)
		modules = append(modules, psd.ModuleRunner{Name: "hub_mqtt", Run: binding.Run})
	}

	if cfg.Modules.HubWS.Enabled && want("hub_ws") {
		binding := sessionhub.NewWSBinding(logger.With(zap.String("module", "hub_ws")), hub, sessionhub.WSConfig{
			Listen: cfg.Modules.HubWS.Listen,
			Path:   cfg.Modules.HubWS.Path,
		})
		modules = append(modules, psd.ModuleRunner{Name: "hub_ws", Run: binding.Run})
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, cleanup, errors.New("no modules enabled")
	}
	return modules, cleanup, nil
}

func enabledModules(cfg psd.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.HubMQTT.Enabled {
		out = append(out, "hub_mqtt")
	}
	if cfg.Modules.HubWS.Enabled {
		out = append(out, "hub_ws")
	}
	if cfg.Modules.Store.Enabled {
		out = append(out, "store")
	}
	return out
}

func printResolvedConfig(cfg psd.Config) {
	fmt.Fprintf(os.Stdout,
		"broker=%s topic_base=%s log_level=%s log_format=%s log_output=%s modules=%v store=%s\n",
		cfg.Server.Broker,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		enabledModules(cfg),
		cfg.Modules.Store.Path,
	)
}

func embeddedURL(cfg psd.Config) string {
	tlsEnabled := cfg.Modules.EmbeddedMQTT.TLSCert != "" || cfg.Modules.EmbeddedMQTT.TLSKey != "" || cfg.Modules.EmbeddedMQTT.TLSCA != ""
	return embeddedmqtt.BrokerURL(cfg.Modules.EmbeddedMQTT.Listen, tlsEnabled)
}

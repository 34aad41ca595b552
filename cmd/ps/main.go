package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/adapters/clock"
	"github.com/mikey-austin/playsync/internal/adapters/config"
	"github.com/mikey-austin/playsync/internal/adapters/devicekey"
	"github.com/mikey-austin/playsync/internal/adapters/idgen"
	"github.com/mikey-austin/playsync/internal/adapters/mqtt"
	"github.com/mikey-austin/playsync/internal/adapters/output"
	"github.com/mikey-austin/playsync/internal/adapters/simplayer"
	"github.com/mikey-austin/playsync/internal/adapters/ws"
	"github.com/mikey-austin/playsync/internal/core"
	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

type app struct {
	service core.Service
	printer output.Printer
	log     *zap.Logger
	keys    *devicekey.Store
	quiet   bool
	human   bool
	timeout time.Duration
}

// options are the persistent flags after config defaults are applied.
type options struct {
	transport  string
	broker     string
	wsURL      string
	topicBase  string
	user       string
	deviceName string
	deviceKey  string
	timeout    time.Duration
	settle     time.Duration
	quiet      bool
	format     string
	jsonOut    bool
	noColor    bool
	verbose    bool
	tlsCA      string
	tlsCert    string
	tlsKey     string
	username   string
	password   string
}

func main() {
	root := &cobra.Command{
		Use:           "ps",
		Short:         "Playsync CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var opts options
	flags := root.PersistentFlags()
	flags.StringVar(&opts.transport, "transport", "", "hub transport (mqtt|ws)")
	flags.StringVarP(&opts.broker, "broker", "b", "", "MQTT broker URL")
	flags.StringVar(&opts.wsURL, "ws-url", "", "hub WebSocket URL")
	flags.StringVar(&opts.topicBase, "topic-base", ps.BaseTopic, "MQTT topic base")
	flags.StringVarP(&opts.user, "account", "a", "", "account whose session to join")
	flags.StringVarP(&opts.deviceName, "name", "n", "", "device name")
	flags.StringVar(&opts.deviceKey, "key", "", "device key override")
	flags.DurationVarP(&opts.timeout, "timeout", "t", 5*time.Second, "connect timeout")
	flags.DurationVar(&opts.settle, "settle", core.DefaultSettle, "wait for hub errors after a command")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress non-essential output")
	flags.StringVarP(&opts.format, "output", "o", output.FormatHuman, "output format (human|json|yaml)")
	flags.BoolVarP(&opts.jsonOut, "json", "j", false, "output json")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable color")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	flags.StringVar(&opts.tlsCA, "tls-ca", "", "TLS CA path")
	flags.StringVar(&opts.tlsCert, "tls-cert", "", "TLS cert path")
	flags.StringVar(&opts.tlsKey, "tls-key", "", "TLS key path")
	flags.StringVar(&opts.username, "user", "", "MQTT username")
	flags.StringVar(&opts.password, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := newApp(opts, cfg)
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
		return nil
	}

	root.AddCommand(statusCommand())
	root.AddCommand(devicesCommand())
	root.AddCommand(playCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(nextCommand())
	root.AddCommand(prevCommand())
	root.AddCommand(seekCommand())
	root.AddCommand(volumeCommand())
	root.AddCommand(muteCommand())
	root.AddCommand(shuffleCommand())
	root.AddCommand(repeatCommand())
	root.AddCommand(queueCommand())
	root.AddCommand(runCommand())
	root.AddCommand(transferCommand())
	root.AddCommand(reclaimCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ps:", err)
		os.Exit(core.ExitCode(err))
	}
}

func newApp(opts options, cfg config.Config) (*app, error) {
	if opts.noColor {
		pterm.DisableColor()
	}
	log, err := newLogger(opts.verbose)
	if err != nil {
		return nil, err
	}

	if opts.transport == "" {
		opts.transport = cfg.Transport
	}
	if opts.broker == "" {
		opts.broker = cfg.Broker
	}
	if opts.wsURL == "" {
		opts.wsURL = cfg.WSURL
	}
	if opts.topicBase == ps.BaseTopic && cfg.TopicBase != "" {
		opts.topicBase = cfg.TopicBase
	}
	if opts.user == "" {
		opts.user = cfg.User
	}
	if opts.user == "" {
		opts.user = defaultAccount()
	}
	if opts.deviceName == "" {
		opts.deviceName = cfg.DeviceName
	}
	if opts.deviceName == "" {
		opts.deviceName = defaultDeviceName()
	}
	if opts.username == "" {
		opts.username = cfg.Username
		opts.password = cfg.Password
	}
	if opts.tlsCA == "" && opts.tlsCert == "" && opts.tlsKey == "" {
		opts.tlsCA, opts.tlsCert, opts.tlsKey = cfg.TLS.CA, cfg.TLS.Cert, cfg.TLS.Key
	}
	if opts.transport == "" {
		opts.transport = core.TransportMQTT
		if opts.broker == "" && opts.wsURL != "" {
			opts.transport = core.TransportWS
		}
	}
	switch opts.transport {
	case core.TransportMQTT:
		if opts.broker == "" {
			return nil, &core.CLIError{Code: core.ExitUsage, Msg: "broker is required (set --broker or config)"}
		}
	case core.TransportWS:
		if opts.wsURL == "" {
			return nil, &core.CLIError{Code: core.ExitUsage, Msg: "ws url is required (set --ws-url or config)"}
		}
	default:
		return nil, &core.CLIError{Code: core.ExitUsage, Msg: fmt.Sprintf("unknown transport %q", opts.transport)}
	}

	format := opts.format
	if opts.jsonOut {
		format = output.FormatJSON
	}
	printer, err := output.New(format)
	if err != nil {
		return nil, &core.CLIError{Code: core.ExitUsage, Msg: err.Error()}
	}

	keys, err := devicekey.NewStore()
	if err != nil {
		return nil, err
	}

	coreCfg := core.Config{
		Transport:     opts.transport,
		Broker:        opts.broker,
		WSURL:         opts.wsURL,
		TopicBase:     opts.topicBase,
		User:          opts.user,
		DeviceName:    opts.deviceName,
		DeviceType:    ps.DeviceCLI,
		DeviceKey:     opts.deviceKey,
		Username:      opts.username,
		Password:      opts.password,
		TLSCA:         opts.tlsCA,
		TLSCert:       opts.tlsCert,
		TLSKey:        opts.tlsKey,
		Timeout:       opts.timeout,
		Settle:        opts.settle,
		TrackDuration: cfg.Player.TrackDuration,
	}
	ids := idgen.Generator{}
	service := core.Service{
		Log:    log,
		Clock:  clock.Clock{},
		IDGen:  ids,
		Config: coreCfg,
	}
	service.Dial = dialer(coreCfg, log, func() (string, error) {
		if coreCfg.DeviceKey != "" {
			return coreCfg.DeviceKey, nil
		}
		return ids.NewID(), nil
	})
	service.NewPlayer = func() (core.Player, error) {
		return simplayer.New(log.With(zap.String("component", "player")), clock.Clock{}, simplayer.Config{
			TrackDuration: coreCfg.TrackDuration,
		}), nil
	}

	return &app{
		service: service,
		printer: printer,
		log:     log,
		keys:    keys,
		quiet:   opts.quiet,
		human:   format == output.FormatHuman,
		timeout: opts.timeout,
	}, nil
}

// dialer builds a fresh transport per connection. key decides the device
// identity the hub sees.
func dialer(cfg core.Config, log *zap.Logger, key func() (string, error)) func() (ports.Transport, error) {
	return func() (ports.Transport, error) {
		k, err := key()
		if err != nil {
			return nil, err
		}
		switch cfg.Transport {
		case core.TransportWS:
			return ws.NewTransport(ws.Options{
				URL:         cfg.WSURL,
				User:        cfg.User,
				Key:         k,
				TLSCA:       cfg.TLSCA,
				TLSCert:     cfg.TLSCert,
				TLSKey:      cfg.TLSKey,
				DialTimeout: cfg.Timeout,
				Logger:      log.With(zap.String("component", "ws")),
			})
		default:
			return mqtt.NewTransport(mqtt.Options{
				BrokerURL: cfg.Broker,
				Username:  cfg.Username,
				Password:  cfg.Password,
				TLSCA:     cfg.TLSCA,
				TLSCert:   cfg.TLSCert,
				TLSKey:    cfg.TLSKey,
				TopicBase: cfg.TopicBase,
				User:      cfg.User,
				Key:       k,
				Timeout:   cfg.Timeout,
				Logger:    log.With(zap.String("component", "mqtt")),
			})
		}
	}
}

// deviceService returns a service whose connections reuse the stored key
// of the device name, so a restarted device is recognised by the hub.
func (a *app) deviceService() core.Service {
	svc := a.service
	svc.Dial = dialer(svc.Config, a.log, func() (string, error) {
		if svc.Config.DeviceKey != "" {
			return svc.Config.DeviceKey, nil
		}
		key, err := a.keys.Ensure(svc.Config.DeviceName, svc.IDGen)
		if err != nil {
			return "", core.WrapError(core.ExitRuntime, "device key", err)
		}
		return key, nil
	})
	return svc
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// commandContext bounds a one-shot command: connect, send, then settle.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return withTimeout(cmd.Context(), a.timeout+a.service.Config.Settle+time.Second)
}

func (a *app) print(v any) error {
	if a.quiet && a.human {
		return nil
	}
	return a.printer.Print(v)
}

func defaultAccount() string {
	if usr, err := user.Current(); err == nil && usr.Username != "" {
		return usr.Username
	}
	return "default"
}

func defaultDeviceName() string {
	host, _ := os.Hostname()
	if host = strings.TrimSpace(host); host != "" {
		return "ps@" + host
	}
	return "ps"
}

func usageError(msg string) error {
	return &core.CLIError{Code: core.ExitUsage, Msg: msg}
}

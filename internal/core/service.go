package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	devicecore "github.com/mikey-austin/playsync/internal/modules/device_core"
	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// Defaults for CLI use cases.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultSettle         = 300 * time.Millisecond
	DefaultRefresh        = time.Second
)

// Player is a local player that reports autonomous changes.
type Player interface {
	devicecore.Player
	SetNotify(fn func())
}

// Service runs CLI use cases against the hub.
type Service struct {
	Log       *zap.Logger
	Clock     ports.Clock
	IDGen     ports.IDGen
	Dial      func() (ports.Transport, error)
	NewPlayer func() (Player, error)
	Config    Config
}

// Conn is a welcomed device session.
type Conn struct {
	Session   *devicecore.Session
	transport ports.Transport
}

// Close ends the session and the transport.
func (c *Conn) Close() {
	c.Session.Close()
	_ = c.transport.Close()
}

// RunOptions configures a long-running device.
type RunOptions struct {
	Claim       bool
	Transfer    bool
	Reclaim     bool
	KeepSession bool
	OnView      func(StatusResult)
	OnTransfer  func(TransferResult)
}

// Connect opens a transport, starts a session on it and waits for the
// hub's welcome. player may be nil for a pure controller.
func (s Service) Connect(ctx context.Context, player devicecore.Player) (*Conn, error) {
	if s.Dial == nil {
		return nil, &CLIError{Code: ExitRuntime, Msg: "no transport configured"}
	}
	transport, err := s.Dial()
	if err != nil {
		return nil, WrapError(ExitRuntime, "transport", err)
	}
	session, err := devicecore.NewSession(s.logger(), transport, s.Clock, s.IDGen, player, devicecore.Config{
		DeviceName:        s.Config.DeviceName,
		DeviceType:        s.Config.DeviceType,
		BroadcastInterval: s.Config.BroadcastInterval,
		HandoffTimeout:    s.Config.HandoffTimeout,
	})
	if err != nil {
		_ = transport.Close()
		return nil, WrapError(ExitRuntime, "session", err)
	}
	if notifying, ok := player.(Player); ok {
		notifying.SetNotify(session.OnLocalPlayerChanged)
	}

	welcomed := make(chan struct{})
	var once sync.Once
	stop := session.Observe(func(view devicecore.View) {
		if view.Welcomed {
			once.Do(func() { close(welcomed) })
		}
	})
	defer stop()

	conn := &Conn{Session: session, transport: transport}
	if err := transport.Start(ctx, session); err != nil {
		session.Close()
		return nil, WrapError(ExitRuntime, "connect", err)
	}

	timeout := s.Config.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-welcomed:
		return conn, nil
	case <-timer.C:
		conn.Close()
		return nil, &CLIError{Code: ExitRuntime, Msg: "timed out waiting for hub welcome"}
	case <-ctx.Done():
		conn.Close()
		return nil, WrapError(ExitRuntime, "connect", ctx.Err())
	}
}

// Status returns the session as seen right after the welcome.
func (s Service) Status(ctx context.Context) (StatusResult, error) {
	conn, err := s.Connect(ctx, nil)
	if err != nil {
		return StatusResult{}, err
	}
	defer conn.Close()
	return StatusFromView(conn.Session.View()), nil
}

// Devices lists the user's connected devices.
func (s Service) Devices(ctx context.Context) (DevicesResult, error) {
	conn, err := s.Connect(ctx, nil)
	if err != nil {
		return DevicesResult{}, err
	}
	defer conn.Close()
	view := conn.Session.View()
	devices := view.Devices
	if devices == nil {
		devices = []ps.Device{}
	}
	return DevicesResult{SelfID: view.SelfID, Devices: devices}, nil
}

// Execute routes a command to the audio device. The hub answers failures
// asynchronously, so the result waits the settle delay for an error.
func (s Service) Execute(ctx context.Context, build CommandBuilder) (CommandResult, error) {
	conn, err := s.Connect(ctx, nil)
	if err != nil {
		return CommandResult{}, err
	}
	defer conn.Close()

	view := conn.Session.View()
	cmd, err := build(view)
	if err != nil {
		return CommandResult{}, err
	}
	if err := conn.Session.Execute(cmd); err != nil {
		return CommandResult{}, sessionError(string(cmd.Name), err)
	}
	s.settle(ctx)
	if hubErr := conn.Session.View().LastError; hubErr != nil {
		return CommandResult{}, ErrorForHubCode(hubErr.Code, hubErr.Message)
	}
	result := CommandResult{Command: cmd.Name, Local: view.IsAudioDevice}
	if device, ok := audioDevice(view.Devices); ok {
		result.Target = device.ID
	}
	return result, nil
}

// WatchStatus calls fn on every change and once per refresh interval until
// ctx ends.
func (s Service) WatchStatus(ctx context.Context, fn func(StatusResult)) error {
	conn, err := s.Connect(ctx, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	views, stop := watch(ctx, conn.Session)
	defer stop()
	fn(StatusFromView(conn.Session.View()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case view := <-views:
			fn(StatusFromView(view))
		}
	}
}

// Run keeps a device with a local player in the session until ctx ends.
// It optionally claims, requests or reclaims the audio device role first,
// and releases the role on exit unless KeepSession is set.
func (s Service) Run(ctx context.Context, opts RunOptions) error {
	if countTrue(opts.Claim, opts.Transfer, opts.Reclaim) > 1 {
		return &CLIError{Code: ExitUsage, Msg: "choose one of claim, transfer or reclaim"}
	}
	if s.NewPlayer == nil {
		return &CLIError{Code: ExitRuntime, Msg: "no local player configured"}
	}
	player, err := s.NewPlayer()
	if err != nil {
		return WrapError(ExitRuntime, "player", err)
	}
	conn, err := s.Connect(ctx, player)
	if err != nil {
		return err
	}
	defer conn.Close()
	session := conn.Session
	log := s.logger()

	initial := session.View()
	var seenHandoff devicecore.Negotiation
	if initial.LastHandoff != nil {
		seenHandoff = *initial.LastHandoff
	}
	seenError := initial.LastError

	var transferID string
	switch {
	case opts.Reclaim:
		err = sessionError("reclaim", session.Reclaim())
	case opts.Transfer:
		transferID, err = session.RequestAudioDevice()
		err = sessionError("transfer", err)
	case opts.Claim:
		err = sessionError("claim", session.ClaimAudioDevice())
	}
	if err != nil {
		return err
	}
	log.Info("device running", zap.String("device_id", initial.SelfID), zap.String("transfer_id", transferID))

	views, stop := watch(ctx, session)
	defer stop()
	emit := func(view devicecore.View) {
		if opts.OnView != nil {
			opts.OnView(StatusFromView(view))
		}
	}
	emit(session.View())
	for {
		select {
		case <-ctx.Done():
			return s.leave(session, opts.KeepSession)
		case view := <-views:
			emit(view)
			if done := view.LastHandoff; done != nil && (done.TransferID != seenHandoff.TransferID || done.Phase != seenHandoff.Phase) {
				seenHandoff = *done
				if opts.OnTransfer != nil {
					opts.OnTransfer(transferFromNegotiation(*done))
				}
				if done.TransferID == transferID && done.Phase == devicecore.PhaseAborted {
					return &CLIError{Code: ExitConflict, Msg: "transfer aborted: " + done.Reason}
				}
			}
			if hubErr := view.LastError; hubErr != nil && hubErr != seenError {
				seenError = hubErr
				if hubErr.Code == registerFailed {
					return ErrorForHubCode(hubErr.Code, hubErr.Message)
				}
			}
		}
	}
}

func (s Service) leave(session *devicecore.Session, keep bool) error {
	if keep || !session.View().IsAudioDevice {
		return nil
	}
	err := session.ReleaseAudioDevice()
	if err != nil && !errors.Is(err, devicecore.ErrNotAudioDevice) {
		return sessionError("release", err)
	}
	s.settle(context.Background())
	s.logger().Info("audio device released")
	return nil
}

func (s Service) settle(ctx context.Context) {
	d := s.Config.Settle
	if d <= 0 {
		d = DefaultSettle
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// watch delivers the latest view after every change and on each refresh
// tick. Slow readers only see the newest view.
func watch(ctx context.Context, session *devicecore.Session) (<-chan devicecore.View, func()) {
	views := make(chan devicecore.View, 1)
	push := func(view devicecore.View) {
		for {
			select {
			case views <- view:
				return
			default:
			}
			select {
			case <-views:
			default:
			}
		}
	}
	unobserve := session.Observe(push)
	ctx, cancel := context.WithCancel(ctx)
	go devicecore.RunTicker(ctx, DefaultRefresh, func() {
		push(session.View())
	})
	return views, func() {
		cancel()
		unobserve()
	}
}

func countTrue(values ...bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}

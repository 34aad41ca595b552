package devicecore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// Config configures a device session.
type Config struct {
	DeviceName        string
	DeviceType        ps.DeviceType
	BroadcastInterval time.Duration
	HandoffTimeout    time.Duration
	ResyncDebounce    time.Duration
}

// View is a point-in-time copy of the session for rendering.
type View struct {
	SelfID        string
	Connected     bool
	Welcomed      bool
	IsAudioDevice bool
	SessionExists bool
	Reclaimable   bool
	ClaimPending  bool
	Devices       []ps.Device
	State         *ps.PlaybackState
	Position      float64
	Stale         bool
	Queue         []ps.QueueItem
	QueueVersion  int64
	Handoff       *Negotiation
	LastHandoff   *Negotiation
	LastError     *ps.Error
}

type outgoing struct {
	msgType ps.MessageType
	payload any
}

type claimRequest struct {
	reclaim bool
	held    *ps.Command
}

// Session owns every piece of per-device coordination state. All entry
// points serialize on one mutex; outgoing messages are collected while
// locked and sent after, in order.
type Session struct {
	log     *zap.Logger
	channel ports.Channel
	clock   ports.Clock
	player  Player
	config  Config

	sendMu sync.Mutex

	mu                    sync.Mutex
	outbox                []outgoing
	closed                bool
	connected             bool
	audio                 bool
	sessionExists         bool
	roster                Roster
	queue                 Queue
	interp                Interpolator
	reclaim               *ps.SessionInfo
	claim                 *claimRequest
	requestedQueueVersion int64
	lastError             *ps.Error
	observers             map[int]func(View)
	nextObserver          int

	broadcaster *Broadcaster
	router      *Router
	handoff     *Handoff
	resync      *Resync
}

// NewSession creates a session. player may be nil for a pure controller.
func NewSession(log *zap.Logger, channel ports.Channel, clock ports.Clock, ids ports.IDGen, player Player, cfg Config) (*Session, error) {
	if channel == nil {
		return nil, errors.New("channel required")
	}
	if clock == nil {
		return nil, errors.New("clock required")
	}
	if ids == nil {
		return nil, errors.New("id generator required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "ps"
	}
	if cfg.DeviceType == "" {
		cfg.DeviceType = ps.DeviceCLI
	}

	s := &Session{
		log:       log,
		channel:   channel,
		clock:     clock,
		player:    player,
		config:    cfg,
		observers: map[int]func(View){},
	}
	s.broadcaster = NewBroadcaster(s.enqueue, s.after, s.localState, s.queue.Update, cfg.BroadcastInterval)
	s.router = NewRouter(log, s.enqueue, s)
	s.handoff = NewHandoff(log, s.enqueue, s.after, ids, s, cfg.HandoffTimeout)
	s.resync = NewResync(log, s.enqueue, s.after, s, ps.Hello{DeviceName: cfg.DeviceName, DeviceType: cfg.DeviceType}, cfg.ResyncDebounce)
	return s, nil
}

// OnConnected starts a new welcome exchange.
func (s *Session) OnConnected() {
	s.do(func() {
		s.connected = true
		s.resync.OnChannelConnected()
	})
}

// OnDisconnected cancels in-flight handoffs, stops broadcasting and marks
// the replica stale. The audio device keeps playing locally.
func (s *Session) OnDisconnected(reason string) {
	s.do(func() {
		s.log.Info("channel disconnected", zap.String("reason", reason))
		s.connected = false
		s.resync.OnChannelDisconnected()
		s.handoff.Cancel("disconnected")
		s.broadcaster.Halt()
		s.interp.MarkStale()
		s.claim = nil
	})
}

// OnMessage handles one inbound envelope.
func (s *Session) OnMessage(env ps.Envelope) {
	s.do(func() {
		s.handleMessage(env)
	})
}

// OnLocalPlayerChanged reports an autonomous player change such as a track
// ending.
func (s *Session) OnLocalPlayerChanged() {
	s.do(func() {
		if s.audio {
			s.broadcaster.OnLocalPlayerChanged()
		}
	})
}

// Execute runs a user command. With no audio device in the session, play
// claims the role for this device and runs once the hub confirms.
func (s *Session) Execute(cmd ps.Command) error {
	return s.doErr(func() error {
		if !s.resync.Welcomed() {
			return ErrNotConnected
		}
		if cmd.Name == ps.CmdBecomeAudioDevice {
			_, err := s.handoff.Request()
			return err
		}
		err := s.router.Execute(cmd)
		if errors.Is(err, ErrNoAudioDevice) && cmd.Name == ps.CmdPlay && s.player != nil {
			held := cmd
			return s.claimLocked(false, &held)
		}
		return err
	})
}

// RequestAudioDevice starts a handoff to this device.
func (s *Session) RequestAudioDevice() (string, error) {
	var id string
	err := s.doErr(func() error {
		if !s.resync.Welcomed() {
			return ErrNotConnected
		}
		if s.player == nil {
			return ErrNoPlayer
		}
		var err error
		id, err = s.handoff.Request()
		return err
	})
	return id, err
}

// ClaimAudioDevice asks the hub for the role when nobody holds it.
func (s *Session) ClaimAudioDevice() error {
	return s.doErr(func() error {
		if !s.resync.Welcomed() {
			return ErrNotConnected
		}
		return s.claimLocked(false, nil)
	})
}

// Reclaim claims the role and resumes the session the hub kept.
func (s *Session) Reclaim() error {
	return s.doErr(func() error {
		if !s.resync.Welcomed() {
			return ErrNotConnected
		}
		return s.claimLocked(true, nil)
	})
}

// ReleaseAudioDevice gives up the role and ends the session.
func (s *Session) ReleaseAudioDevice() error {
	return s.doErr(func() error {
		if !s.audio {
			return ErrNotAudioDevice
		}
		if _, ok := s.handoff.Pending(); ok {
			return ErrTransferInProgress
		}
		s.broadcaster.Stop()
		if err := s.player.Pause(); err != nil {
			s.log.Warn("pause on release failed", zap.Error(err))
		}
		s.audio = false
		s.enqueue(ps.MsgUnregisterAudioDevice, nil)
		return nil
	})
}

// Register installs a handler for an extension command. Handlers run with
// the session locked and must not call back into it.
func (s *Session) Register(name ps.CommandName, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router.Register(name, fn)
}

// View returns the current session view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Observe calls fn with a fresh view after every change. The returned func
// removes the observer.
func (s *Session) Observe(fn func(View)) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Close stops timers and ignores further input. The player is left as is.
func (s *Session) Close() {
	s.do(func() {
		s.broadcaster.Halt()
		s.handoff.Cancel("closed")
		s.resync.OnChannelDisconnected()
		s.closed = true
	})
}

func (s *Session) handleMessage(env ps.Envelope) {
	if !env.Type.Known() {
		s.log.Warn("unknown message type dropped", zap.String("type", string(env.Type)))
		return
	}
	if env.Type == ps.MsgError {
		var hubErr ps.Error
		if err := env.Decode(&hubErr); err != nil {
			s.log.Warn("invalid error payload", zap.Error(err))
			return
		}
		s.lastError = &hubErr
		s.log.Warn("hub error", zap.String("code", hubErr.Code), zap.String("message", hubErr.Message))
		switch hubErr.Code {
		case ps.ErrCodeHelloRequired:
			s.resync.Schedule()
		case ps.ErrCodeUnknownTransfer:
			if hubErr.Context != nil && s.handoff.OnCompleteRefused(hubErr.Context.TransferID) {
				s.log.Warn("hub refused transfer completion", zap.String("transfer_id", hubErr.Context.TransferID))
				s.loseAudioRole()
			}
		}
		return
	}
	if env.Type != ps.MsgWelcome && !s.resync.Welcomed() {
		s.log.Debug("message before welcome dropped", zap.String("type", string(env.Type)))
		return
	}

	var err error
	switch env.Type {
	case ps.MsgWelcome:
		var w ps.Welcome
		if err = env.Decode(&w); err == nil {
			s.resync.OnWelcome(w)
		}
	case ps.MsgDeviceListChanged:
		var change ps.DeviceListChanged
		if err = env.Decode(&change); err == nil {
			s.applyRosterDelta(change)
		}
	case ps.MsgSessionEnded:
		var ended ps.SessionEnded
		if err = env.Decode(&ended); err == nil {
			s.endSession(ended.Reason)
		}
	case ps.MsgState:
		var state ps.PlaybackState
		if err = env.Decode(&state); err == nil {
			s.applyRemoteState(state)
		}
	case ps.MsgQueueUpdate, ps.MsgQueueSync:
		var update ps.QueueUpdate
		if err = env.Decode(&update); err == nil {
			s.applyRemoteQueue(update)
		}
	case ps.MsgCommand:
		var cmd ps.Command
		if err = env.Decode(&cmd); err == nil {
			s.receiveCommand(cmd)
		}
	case ps.MsgPrepareTransfer:
		var req ps.PrepareTransfer
		if err = env.Decode(&req); err == nil {
			s.handoff.OnPrepare(req)
		}
	case ps.MsgTransferReady:
		var ready ps.TransferReady
		if err = env.Decode(&ready); err == nil {
			s.handoff.OnReady(ready)
		}
	case ps.MsgTransferComplete:
		var done ps.TransferComplete
		if err = env.Decode(&done); err == nil {
			s.handoff.OnComplete(done)
		}
	case ps.MsgTransferAborted:
		var abort ps.TransferAborted
		if err = env.Decode(&abort); err == nil {
			s.handoff.OnAborted(abort)
		}
	case ps.MsgRegisterAck:
		var ack ps.RegisterAck
		if err = env.Decode(&ack); err == nil {
			s.onRegisterAck(ack)
		}
	default:
		s.log.Debug("message not handled by devices", zap.String("type", string(env.Type)))
	}
	if err != nil {
		s.log.Warn("invalid message dropped", zap.String("type", string(env.Type)), zap.Error(err))
	}
}

func (s *Session) applyRosterDelta(change ps.DeviceListChanged) {
	if err := s.roster.ApplyDelta(change.Change, change.Devices); err != nil {
		s.log.Warn("roster desync", zap.Error(err))
		if errors.Is(err, ErrUnknownDevice) {
			s.resync.Schedule()
		}
		return
	}
	if change.Change.Type == ps.ChangeBecameAudioDevice && s.audio && !s.roster.IsSelf(change.Change.DeviceID) {
		if s.handoff.OnRoleMoved(change.Change.DeviceID) && !s.audio {
			return
		}
		s.log.Warn("hub moved the audio device role away", zap.String("device_id", change.Change.DeviceID))
		s.loseAudioRole()
	}
}

func (s *Session) applyRemoteState(state ps.PlaybackState) {
	if s.audio {
		s.log.Debug("state ignored on audio device")
		return
	}
	local := s.queue.Version()
	if state.QueueVersion < local {
		s.log.Debug("stale state dropped", zap.Int64("queue_version", state.QueueVersion), zap.Int64("local_version", local))
		return
	}
	s.interp.Set(state, s.clock.NowMS())
	s.sessionExists = true
	if state.QueueVersion > local && state.QueueVersion > s.requestedQueueVersion {
		s.requestedQueueVersion = state.QueueVersion
		s.enqueue(ps.MsgRequestQueue, nil)
	}
}

func (s *Session) applyRemoteQueue(update ps.QueueUpdate) {
	if s.audio {
		s.log.Debug("queue ignored on audio device")
		return
	}
	if !s.queue.Replace(update.Queue, update.QueueVersion) {
		s.log.Debug("stale queue dropped", zap.Int64("queue_version", update.QueueVersion))
	}
}

func (s *Session) receiveCommand(cmd ps.Command) {
	if !s.audio {
		s.log.Debug("command for audio device dropped", zap.String("command", string(cmd.Name)))
		return
	}
	if err := s.router.Dispatch(cmd); err != nil {
		s.log.Warn("command failed", zap.String("command", string(cmd.Name)), zap.Error(err))
	}
}

func (s *Session) endSession(reason string) {
	s.log.Info("session ended", zap.String("reason", reason))
	s.handoff.Cancel(reason)
	if s.audio {
		s.broadcaster.Halt()
		if err := s.player.Stop(); err != nil {
			s.log.Warn("stop failed", zap.Error(err))
		}
		s.audio = false
	}
	s.clearReplica()
	s.claim = nil
}

func (s *Session) claimLocked(reclaim bool, held *ps.Command) error {
	if s.audio {
		return ErrAlreadyAudioDevice
	}
	if s.player == nil {
		return ErrNoPlayer
	}
	if _, ok := s.roster.CurrentAudioDevice(); ok {
		return ErrAudioDeviceActive
	}
	if s.claim != nil {
		return ErrClaimPending
	}
	if reclaim && (s.reclaim == nil || s.reclaim.State == nil) {
		return ErrNothingToReclaim
	}
	s.claim = &claimRequest{reclaim: reclaim, held: held}
	s.enqueue(ps.MsgRegisterAudioDevice, ps.RegisterAudioDevice{Reclaim: reclaim})
	return nil
}

func (s *Session) onRegisterAck(ack ps.RegisterAck) {
	claim := s.claim
	s.claim = nil
	if claim == nil {
		s.log.Debug("unexpected register ack dropped")
		return
	}
	if !ack.Success {
		s.log.Warn("audio device claim refused", zap.String("error", ack.Error))
		s.lastError = &ps.Error{Code: "register_failed", Message: ack.Error}
		return
	}
	if claim.reclaim && s.reclaim != nil && s.reclaim.State != nil {
		if err := s.applyToPlayer(*s.reclaim.State, s.reclaim.Queue); err != nil {
			s.log.Warn("reclaim apply failed", zap.Error(err))
		}
	}
	s.reclaim = nil
	s.takeAudioRole()
	if claim.held != nil {
		if err := s.router.Dispatch(*claim.held); err != nil {
			s.log.Warn("held command failed", zap.String("command", string(claim.held.Name)), zap.Error(err))
		}
	}
}

func (s *Session) applyToPlayer(state ps.PlaybackState, queue []ps.QueueItem) error {
	if s.player == nil {
		return ErrNoPlayer
	}
	if len(queue) == 0 {
		return ErrEmptyQueue
	}
	pos := state.QueuePosition
	if pos < 0 || pos >= len(queue) {
		return fmt.Errorf("queue position %d: %w", pos, ErrIndexOutOfRange)
	}
	if err := s.player.SetQueue(queue, pos); err != nil {
		return fmt.Errorf("set queue: %w", err)
	}
	s.queue.Reset(queue, state.QueueVersion)
	s.queue.SetIndex(pos)

	duration := s.player.Snapshot().Duration
	if state.CurrentTrack != nil && state.CurrentTrack.Duration > 0 {
		duration = state.CurrentTrack.Duration
	}
	if duration > 0 && state.Position > 0 {
		if err := s.player.Seek(clamp(state.Position, 0, duration) / duration); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
	}
	if err := s.player.SetVolume(clamp(state.Volume, 0, 1)); err != nil {
		return fmt.Errorf("volume: %w", err)
	}
	if err := s.player.SetMuted(state.Muted); err != nil {
		return fmt.Errorf("mute: %w", err)
	}
	if err := s.player.SetShuffle(state.Shuffle); err != nil {
		return fmt.Errorf("shuffle: %w", err)
	}
	if mode, ok := ps.ParseRepeatMode(string(state.Repeat)); ok {
		if err := s.player.SetRepeat(mode); err != nil {
			return fmt.Errorf("repeat: %w", err)
		}
	}
	if state.IsPlaying {
		if err := s.player.Play(); err != nil {
			return fmt.Errorf("play: %w", err)
		}
	}
	return nil
}

func (s *Session) localState() ps.PlaybackState {
	if s.player == nil {
		return ps.PlaybackState{QueueVersion: s.queue.Version(), Repeat: ps.RepeatOff, Timestamp: s.clock.NowMS()}
	}
	snap := s.player.Snapshot()
	track := snap.Track
	if track != nil && track.Duration <= 0 && snap.Duration > 0 {
		withDuration := *track
		withDuration.Duration = snap.Duration
		track = &withDuration
	}
	repeat := snap.Repeat
	if repeat == "" {
		repeat = ps.RepeatOff
	}
	return ps.PlaybackState{
		CurrentTrack:  track,
		QueuePosition: snap.QueuePosition,
		QueueVersion:  s.queue.Version(),
		Position:      snap.Position,
		IsPlaying:     snap.IsPlaying,
		Volume:        snap.Volume,
		Muted:         snap.Muted,
		Shuffle:       snap.Shuffle,
		Repeat:        repeat,
		Timestamp:     s.clock.NowMS(),
	}
}

func (s *Session) viewLocked() View {
	view := View{
		SelfID:        s.roster.SelfID(),
		Connected:     s.connected,
		Welcomed:      s.resync.Welcomed(),
		IsAudioDevice: s.audio,
		SessionExists: s.sessionExists,
		Reclaimable:   s.reclaim != nil,
		ClaimPending:  s.claim != nil,
		Devices:       s.roster.Devices(),
		Stale:         s.interp.Stale(),
		Queue:         s.queue.Items(),
		QueueVersion:  s.queue.Version(),
		LastError:     s.lastError,
	}
	if s.audio {
		state := s.localState()
		view.State = &state
		view.Position = state.Position
	} else if sample, ok := s.interp.Sample(); ok {
		state := sample.Base
		view.State = &state
		view.Position, _ = s.interp.Position(s.clock.NowMS())
	}
	if neg, ok := s.handoff.Pending(); ok {
		view.Handoff = &neg
	}
	if neg, ok := s.handoff.Last(); ok {
		view.LastHandoff = &neg
	}
	return view
}

// The methods below implement routerHost, handoffHost and resyncHost. They
// are called with s.mu held.

func (s *Session) isAudioDevice() bool {
	return s.audio
}

func (s *Session) audioDeviceID() (string, bool) {
	device, ok := s.roster.CurrentAudioDevice()
	return device.ID, ok
}

func (s *Session) localPlayer() Player {
	return s.player
}

func (s *Session) localQueue() *Queue {
	return &s.queue
}

func (s *Session) nowMS() int64 {
	return s.clock.NowMS()
}

func (s *Session) queueChanged() {
	s.broadcaster.QueueChanged()
}

func (s *Session) playerChanged() {
	s.broadcaster.OnLocalPlayerChanged()
}

func (s *Session) becomeRequested(transferID string) {
	s.handoff.OnPrepare(ps.PrepareTransfer{TransferID: transferID})
}

func (s *Session) selfID() string {
	return s.roster.SelfID()
}

func (s *Session) prepareSource() (ps.PlaybackState, []ps.QueueItem, bool, error) {
	if s.player == nil {
		return ps.PlaybackState{}, nil, false, ErrNoPlayer
	}
	wasPlaying := s.player.Snapshot().IsPlaying
	if wasPlaying {
		if err := s.player.Pause(); err != nil {
			return ps.PlaybackState{}, nil, false, fmt.Errorf("pause: %w", err)
		}
		s.broadcaster.OnLocalPlayerChanged()
	}
	state := s.localState()
	state.IsPlaying = wasPlaying
	return state, s.queue.Items(), wasPlaying, nil
}

func (s *Session) resumeSource(wasPlaying bool) {
	if !wasPlaying || s.player == nil || !s.audio {
		return
	}
	if err := s.player.Play(); err != nil {
		s.log.Warn("resume after aborted transfer failed", zap.Error(err))
		return
	}
	s.broadcaster.OnLocalPlayerChanged()
}

func (s *Session) applyTransfer(state ps.PlaybackState, queue []ps.QueueItem) error {
	return s.applyToPlayer(state, queue)
}

func (s *Session) takeAudioRole() {
	s.audio = true
	s.sessionExists = true
	s.interp.Clear()
	s.broadcaster.Start()
}

func (s *Session) releaseAudioRole() {
	s.broadcaster.Stop()
	if err := s.player.Stop(); err != nil {
		s.log.Warn("stop after handoff failed", zap.Error(err))
	}
	s.audio = false
}

func (s *Session) applyRoster(selfID string, devices []ps.Device) {
	s.roster.SetSelf(selfID)
	s.roster.ApplySnapshot(devices)
}

func (s *Session) applyReplica(state *ps.PlaybackState, queue []ps.QueueItem, version int64) {
	s.sessionExists = true
	if s.audio {
		return
	}
	s.queue.Reset(queue, version)
	s.requestedQueueVersion = version
	if state != nil {
		s.interp.Set(*state, s.clock.NowMS())
	} else {
		s.interp.Clear()
	}
}

func (s *Session) clearReplica() {
	s.sessionExists = false
	s.interp.Clear()
	s.queue.Reset(nil, 0)
	s.requestedQueueVersion = 0
}

func (s *Session) setReclaim(info *ps.SessionInfo) {
	s.reclaim = info
}

func (s *Session) adoptRole(audio bool) {
	switch {
	case audio && s.audio:
		s.broadcaster.Start()
	case audio && !s.audio:
		if s.player == nil {
			s.log.Warn("hub names this device audio device but it has no player")
			s.enqueue(ps.MsgUnregisterAudioDevice, nil)
			return
		}
		if sample, ok := s.interp.Sample(); ok && s.queue.Len() > 0 {
			if err := s.applyToPlayer(sample.Base, s.queue.Items()); err != nil {
				s.log.Warn("resume as audio device failed", zap.Error(err))
			}
		}
		s.takeAudioRole()
	case !audio && s.audio:
		s.log.Warn("audio device role lost while disconnected")
		s.loseAudioRole()
	}
}

// loseAudioRole stops local playback after the hub gave the role to
// another device without a handoff this device took part in.
func (s *Session) loseAudioRole() {
	s.broadcaster.Halt()
	if err := s.player.Stop(); err != nil {
		s.log.Warn("stop failed", zap.Error(err))
	}
	s.audio = false
	s.handoff.Cancel("role_lost")
}

func (s *Session) enqueue(msgType ps.MessageType, payload any) {
	s.outbox = append(s.outbox, outgoing{msgType: msgType, payload: payload})
}

func (s *Session) after(d time.Duration, fn func()) ports.Timer {
	return s.clock.AfterFunc(d, func() {
		s.do(fn)
	})
}

func (s *Session) do(fn func()) {
	_ = s.doErr(func() error {
		fn()
		return nil
	})
}

func (s *Session) doErr(fn func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	err := fn()
	out := s.outbox
	s.outbox = nil
	var observers []func(View)
	var view View
	if len(s.observers) > 0 {
		view = s.viewLocked()
		for _, observe := range s.observers {
			observers = append(observers, observe)
		}
	}
	s.sendMu.Lock()
	s.mu.Unlock()

	for _, msg := range out {
		if sendErr := s.channel.Send(msg.msgType, msg.payload); sendErr != nil {
			s.log.Debug("send failed", zap.String("type", string(msg.msgType)), zap.Error(sendErr))
		}
	}
	s.sendMu.Unlock()

	for _, observe := range observers {
		observe(view)
	}
	return err
}

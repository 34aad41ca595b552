package sessionhub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// Hub defaults. The hub's transfer timeout trails the devices' own so a
// device-side abort always wins. An audio device reports state at least
// every few seconds, so the stale timeout only trips on a hung device.
const (
	DefaultHandoffTimeout = 12 * time.Second
	DefaultReclaimGrace   = 30 * time.Second
	DefaultStaleTimeout   = 120 * time.Second
	storeTimeout          = 2 * time.Second
)

// Sink delivers one envelope to an attached connection. Sinks must not
// block.
type Sink func(env ps.Envelope) error

// Config configures the hub.
type Config struct {
	HandoffTimeout time.Duration
	ReclaimGrace   time.Duration
	StaleTimeout   time.Duration
	MaxQueue       int
}

// Snapshot is the hub's view of one user's session.
type Snapshot struct {
	Devices       []ps.Device
	AudioDeviceID string
	State         *ps.PlaybackState
	Queue         []ps.QueueItem
	QueueVersion  int64
	TransferID    string
	Reclaimable   bool
}

// Hub relays the session protocol between the devices of each user and
// owns the authoritative roster and audio device flag.
type Hub struct {
	log    *zap.Logger
	clock  ports.Clock
	ids    ports.IDGen
	store  ports.SessionStore
	config Config

	flushMu sync.Mutex

	mu       sync.Mutex
	conns    uint64
	users    map[string]*userSession
	out      []delivery
	storeOps []storeOp
	closed   bool
}

type delivery struct {
	sink     Sink
	env      ps.Envelope
	user     string
	deviceID string
}

type storeOp struct {
	user    string
	save    *ports.StoredSession
	deleted bool
}

type member struct {
	key         string
	id          string
	name        string
	deviceType  ps.DeviceType
	connectedAt int64
	sink        Sink
	conn        uint64
	registered  bool
	grace       ports.Timer
}

type transfer struct {
	id     string
	source string
	target string
	timer  ports.Timer
}

type userSession struct {
	name     string
	members  []*member
	audioID  string
	state    *ps.PlaybackState
	queue    []ps.QueueItem
	version  int64
	transfer *transfer
	reclaim  *ports.StoredSession
	lastSeen int64
	stale    ports.Timer
}

// NewHub creates a hub. store may be nil, in which case sessions are not
// offered for reclaim across hub restarts.
func NewHub(log *zap.Logger, clock ports.Clock, ids ports.IDGen, store ports.SessionStore, cfg Config) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = DefaultHandoffTimeout
	}
	if cfg.ReclaimGrace <= 0 {
		cfg.ReclaimGrace = DefaultReclaimGrace
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = DefaultStaleTimeout
	}
	if cfg.MaxQueue <= 0 || cfg.MaxQueue > ps.MaxQueueSize {
		cfg.MaxQueue = ps.MaxQueueSize
	}
	return &Hub{
		log:    log,
		clock:  clock,
		ids:    ids,
		store:  store,
		config: cfg,
		users:  map[string]*userSession{},
	}
}

// Attach registers a transport connection and returns its token. Attaching
// a known key replaces its sink, which is how a detached audio device
// resumes within the grace period.
func (h *Hub) Attach(user string, key string, sink Sink) uint64 {
	stored := h.load(user)
	var token uint64
	h.do(func() {
		h.conns++
		token = h.conns
		u := h.userLocked(user, stored)
		if m := u.byKey(key); m != nil {
			m.sink = sink
			m.conn = token
			if m.grace != nil {
				m.grace.Stop()
				m.grace = nil
				h.log.Info("audio device reattached", zap.String("user", user), zap.String("device_id", m.id))
			}
			if m.registered && m.id == u.audioID {
				h.watchAudio(u)
			}
			return
		}
		u.members = append(u.members, &member{key: key, sink: sink, conn: token})
	})
	return token
}

// Detach removes a transport connection. A non-zero token only detaches
// that connection, so a stale close cannot drop a newer one. The audio
// device is kept for the reclaim grace period before the session ends.
func (h *Hub) Detach(user string, key string, token uint64, reason string) {
	h.do(func() {
		u := h.users[user]
		if u == nil {
			return
		}
		m := u.byKey(key)
		if m == nil || m.sink == nil || (token != 0 && token != m.conn) {
			return
		}
		if !m.registered {
			u.remove(m)
			h.gc(u)
			return
		}
		h.log.Info("device detached", zap.String("user", user), zap.String("device_id", m.id), zap.String("reason", reason))

		if t := u.transfer; t != nil && (t.source == m.id || t.target == m.id) {
			abortReason, peer := ps.AbortSourceDisconnected, t.target
			if t.target == m.id {
				abortReason, peer = ps.AbortTargetDisconnected, t.source
			}
			h.clearTransfer(u)
			if p := u.byID(peer); p != nil {
				h.send(u, p, ps.MsgTransferAborted, ps.TransferAborted{TransferID: t.id, Reason: abortReason})
			}
		}

		if m.id == u.audioID {
			m.sink = nil
			m.grace = h.after(h.config.ReclaimGrace, func() {
				h.expireGrace(u, m)
			})
			return
		}
		u.remove(m)
		h.broadcast(u, "", ps.MsgDeviceListChanged, ps.DeviceListChanged{
			Devices: u.devices(),
			Change:  ps.DeviceChange{Type: ps.ChangeDisconnected, DeviceID: m.id},
		})
		h.gc(u)
	})
}

// Handle processes one envelope from an attached connection.
func (h *Hub) Handle(user string, key string, env ps.Envelope) {
	h.do(func() {
		u := h.users[user]
		if u == nil {
			h.log.Debug("message from unknown user dropped", zap.String("user", user))
			return
		}
		m := u.byKey(key)
		if m == nil || m.sink == nil {
			h.log.Debug("message from detached connection dropped", zap.String("user", user), zap.String("key", key))
			return
		}
		h.handleLocked(u, m, env)
	})
}

func (h *Hub) attached(user string, key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	u := h.users[user]
	if u == nil {
		return false
	}
	m := u.byKey(key)
	return m != nil && m.sink != nil
}

// Snapshot returns the hub's view of a user's session.
func (h *Hub) Snapshot(user string) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	u := h.users[user]
	if u == nil {
		return Snapshot{Devices: []ps.Device{}}
	}
	snap := Snapshot{
		Devices:       u.devices(),
		AudioDeviceID: u.audioID,
		Queue:         copyItems(u.queue),
		QueueVersion:  u.version,
		Reclaimable:   u.reclaimable(),
	}
	if u.state != nil {
		state := *u.state
		snap.State = &state
	}
	if u.transfer != nil {
		snap.TransferID = u.transfer.id
	}
	return snap
}

// Close stops all timers and ignores further input.
func (h *Hub) Close() {
	h.do(func() {
		for _, u := range h.users {
			h.clearTransfer(u)
			h.unwatchAudio(u)
			for _, m := range u.members {
				if m.grace != nil {
					m.grace.Stop()
					m.grace = nil
				}
			}
		}
		h.closed = true
	})
}

func (h *Hub) handleLocked(u *userSession, m *member, env ps.Envelope) {
	if env.Type == ps.MsgHello {
		h.hello(u, m, env)
		return
	}
	if !m.registered {
		h.sendError(u, m, ps.ErrCodeHelloRequired, "hello required", nil)
		return
	}

	switch env.Type {
	case ps.MsgState:
		h.relayState(u, m, env)
	case ps.MsgQueueUpdate:
		h.relayQueue(u, m, env)
	case ps.MsgRequestQueue:
		h.send(u, m, ps.MsgQueueSync, ps.QueueUpdate{Queue: copyItems(u.queue), QueueVersion: u.version})
	case ps.MsgCommand:
		h.command(u, m, env)
	case ps.MsgTransferReady:
		h.transferReady(u, m, env)
	case ps.MsgTransferComplete:
		h.transferComplete(u, m, env)
	case ps.MsgTransferAborted:
		h.transferAborted(u, m, env)
	case ps.MsgRegisterAudioDevice:
		h.register(u, m, env)
	case ps.MsgUnregisterAudioDevice:
		if m.id != u.audioID {
			h.log.Debug("unregister from non audio device dropped", zap.String("device_id", m.id))
			return
		}
		h.endSession(u, ps.EndReleased)
	default:
		h.sendError(u, m, ps.ErrCodeInvalidMessage, fmt.Sprintf("unexpected message %s", env.Type), nil)
	}
}

func (h *Hub) hello(u *userSession, m *member, env ps.Envelope) {
	var hello ps.Hello
	if err := env.Decode(&hello); err != nil {
		h.sendError(u, m, ps.ErrCodeInvalidMessage, err.Error(), nil)
		return
	}
	first := !m.registered
	if first {
		m.id = h.ids.NewID()
		m.registered = true
		m.connectedAt = h.clock.NowMS()
	}
	m.name = strings.TrimSpace(hello.DeviceName)
	if m.name == "" {
		m.name = m.id
	}
	m.deviceType = hello.DeviceType
	if m.deviceType == "" {
		m.deviceType = ps.DeviceWeb
	}

	h.send(u, m, ps.MsgWelcome, ps.Welcome{DeviceID: m.id, Session: u.info(), Devices: u.devices()})
	if first {
		h.log.Info("device connected", zap.String("user", u.name), zap.String("device_id", m.id), zap.String("name", m.name))
		h.broadcast(u, m.id, ps.MsgDeviceListChanged, ps.DeviceListChanged{
			Devices: u.devices(),
			Change:  ps.DeviceChange{Type: ps.ChangeConnected, DeviceID: m.id},
		})
	}
}

func (h *Hub) relayState(u *userSession, m *member, env ps.Envelope) {
	if m.id != u.audioID {
		h.log.Debug("state from non audio device dropped", zap.String("device_id", m.id))
		return
	}
	var state ps.PlaybackState
	if err := env.Decode(&state); err != nil {
		h.sendError(u, m, ps.ErrCodeInvalidMessage, err.Error(), nil)
		return
	}
	u.state = &state
	h.watchAudio(u)
	h.broadcast(u, m.id, ps.MsgState, state)
	h.persist(u)
}

func (h *Hub) relayQueue(u *userSession, m *member, env ps.Envelope) {
	if m.id != u.audioID {
		h.log.Debug("queue from non audio device dropped", zap.String("device_id", m.id))
		return
	}
	var update ps.QueueUpdate
	if err := env.Decode(&update); err != nil {
		h.sendError(u, m, ps.ErrCodeInvalidMessage, err.Error(), nil)
		return
	}
	if len(update.Queue) > h.config.MaxQueue {
		h.sendError(u, m, ps.ErrCodeQueueLimitExceeded, fmt.Sprintf("queue exceeds %d items", h.config.MaxQueue), nil)
		return
	}
	if update.QueueVersion < u.version {
		h.log.Debug("stale queue dropped", zap.Int64("queue_version", update.QueueVersion), zap.Int64("current", u.version))
		return
	}
	u.queue = copyItems(update.Queue)
	u.version = update.QueueVersion
	h.broadcast(u, m.id, ps.MsgQueueUpdate, ps.QueueUpdate{Queue: copyItems(u.queue), QueueVersion: u.version})
	h.persist(u)
}

func (h *Hub) command(u *userSession, m *member, env ps.Envelope) {
	var cmd ps.Command
	if err := env.Decode(&cmd); err != nil {
		h.sendError(u, m, ps.ErrCodeInvalidMessage, err.Error(), nil)
		return
	}
	if cmd.Name == ps.CmdBecomeAudioDevice {
		h.requestTransfer(u, m, cmd)
		return
	}
	audio := u.byID(u.audioID)
	if audio == nil || audio.sink == nil {
		h.sendError(u, m, ps.ErrCodeNoAudioDevice, "no audio device", &ps.ErrorContext{Command: string(cmd.Name)})
		return
	}
	cmd.TargetDeviceID = audio.id
	h.send(u, audio, ps.MsgCommand, cmd)
}

func (h *Hub) requestTransfer(u *userSession, m *member, cmd ps.Command) {
	var params ps.BecomeAudioDeviceParams
	if err := cmd.DecodeParams(&params); err != nil || params.TransferID == "" {
		h.sendError(u, m, ps.ErrCodeInvalidMessage, "transfer id required", &ps.ErrorContext{Command: string(cmd.Name)})
		return
	}
	reject := func(reason string) {
		h.send(u, m, ps.MsgTransferAborted, ps.TransferAborted{TransferID: params.TransferID, Reason: reason})
	}
	source := u.byID(u.audioID)
	switch {
	case source == nil || source.sink == nil || source.id == m.id:
		reject(ps.AbortNotAudioDevice)
		return
	case u.transfer != nil:
		reject(ps.AbortInProgress)
		return
	}

	t := &transfer{id: params.TransferID, source: source.id, target: m.id}
	t.timer = h.after(h.config.HandoffTimeout, func() {
		if u.transfer == t {
			h.log.Warn("transfer expired at hub", zap.String("transfer_id", t.id))
			u.transfer = nil
		}
	})
	u.transfer = t
	h.send(u, source, ps.MsgPrepareTransfer, ps.PrepareTransfer{
		TransferID:       t.id,
		TargetDeviceID:   m.id,
		TargetDeviceName: m.name,
	})
	h.log.Info("transfer started", zap.String("user", u.name), zap.String("transfer_id", t.id), zap.String("source", t.source), zap.String("target", t.target))
}

func (h *Hub) transferReady(u *userSession, m *member, env ps.Envelope) {
	var ready ps.TransferReady
	if err := env.Decode(&ready); err != nil {
		h.sendError(u, m, ps.ErrCodeInvalidMessage, err.Error(), nil)
		return
	}
	t := u.transfer
	if t == nil || t.id != ready.TransferID || t.source != m.id {
		h.sendError(u, m, ps.ErrCodeUnknownTransfer, "no such transfer", &ps.ErrorContext{TransferID: ready.TransferID})
		return
	}
	if target := u.byID(t.target); target != nil {
		h.send(u, target, ps.MsgTransferReady, ready)
	}
}

func (h *Hub) transferComplete(u *userSession, m *member, env ps.Envelope) {
	var done ps.TransferComplete
	if err := env.Decode(&done); err != nil {
		h.sendError(u, m, ps.ErrCodeInvalidMessage, err.Error(), nil)
		return
	}
	t := u.transfer
	if t == nil || t.id != done.TransferID || t.target != m.id {
		h.sendError(u, m, ps.ErrCodeUnknownTransfer, "no such transfer", &ps.ErrorContext{TransferID: done.TransferID})
		return
	}
	h.clearTransfer(u)
	u.audioID = m.id
	h.watchAudio(u)
	h.broadcast(u, "", ps.MsgDeviceListChanged, ps.DeviceListChanged{
		Devices: u.devices(),
		Change:  ps.DeviceChange{Type: ps.ChangeBecameAudioDevice, DeviceID: m.id},
	})
	if source := u.byID(t.source); source != nil {
		h.send(u, source, ps.MsgTransferComplete, done)
	}
	h.persist(u)
	h.log.Info("transfer completed", zap.String("user", u.name), zap.String("transfer_id", t.id), zap.String("audio_device", m.id))
}

func (h *Hub) transferAborted(u *userSession, m *member, env ps.Envelope) {
	var abort ps.TransferAborted
	if err := env.Decode(&abort); err != nil {
		h.sendError(u, m, ps.ErrCodeInvalidMessage, err.Error(), nil)
		return
	}
	peerID := abort.TargetDeviceID
	if t := u.transfer; t != nil && t.id == abort.TransferID && (m.id == t.source || m.id == t.target) {
		peerID = t.source
		if m.id == t.source {
			peerID = t.target
		}
		h.clearTransfer(u)
	}
	if peerID == "" || peerID == m.id {
		return
	}
	if peer := u.byID(peerID); peer != nil {
		abort.TargetDeviceID = peerID
		h.send(u, peer, ps.MsgTransferAborted, abort)
	}
	h.log.Info("transfer aborted", zap.String("user", u.name), zap.String("transfer_id", abort.TransferID), zap.String("reason", abort.Reason))
}

func (h *Hub) register(u *userSession, m *member, env ps.Envelope) {
	var req ps.RegisterAudioDevice
	if len(env.Payload) > 0 {
		if err := env.Decode(&req); err != nil {
			h.sendError(u, m, ps.ErrCodeInvalidMessage, err.Error(), nil)
			return
		}
	}
	switch {
	case u.audioID == m.id:
		h.send(u, m, ps.MsgRegisterAck, ps.RegisterAck{Success: true})
		return
	case u.audioID != "":
		h.send(u, m, ps.MsgRegisterAck, ps.RegisterAck{Error: "another device is the audio device"})
		return
	case u.transfer != nil:
		h.send(u, m, ps.MsgRegisterAck, ps.RegisterAck{Error: "transfer in progress"})
		return
	}

	u.audioID = m.id
	if req.Reclaim && u.reclaim != nil {
		state := u.reclaim.State
		u.state = &state
		u.queue = copyItems(u.reclaim.Queue)
		u.version = u.reclaim.QueueVersion
	} else {
		u.state = nil
		u.queue = nil
		u.version = 0
		if u.reclaim != nil {
			h.storeOps = append(h.storeOps, storeOp{user: u.name, deleted: true})
		}
	}
	u.reclaim = nil
	h.watchAudio(u)
	h.send(u, m, ps.MsgRegisterAck, ps.RegisterAck{Success: true})
	h.broadcast(u, "", ps.MsgDeviceListChanged, ps.DeviceListChanged{
		Devices: u.devices(),
		Change:  ps.DeviceChange{Type: ps.ChangeBecameAudioDevice, DeviceID: m.id},
	})
	h.log.Info("audio device registered", zap.String("user", u.name), zap.String("device_id", m.id), zap.Bool("reclaim", req.Reclaim))
}

// endSession clears the audio device flag and keeps the last state and
// queue as the user's reclaimable session.
func (h *Hub) endSession(u *userSession, reason string) {
	h.clearTransfer(u)
	h.unwatchAudio(u)
	if stored, ok := h.storedLocked(u); ok {
		u.reclaim = &stored
		h.persist(u)
	}
	previous := u.audioID
	u.audioID = ""
	if u.byID(previous) != nil {
		h.broadcast(u, "", ps.MsgDeviceListChanged, ps.DeviceListChanged{
			Devices: u.devices(),
			Change:  ps.DeviceChange{Type: ps.ChangeStoppedAudioDevice, DeviceID: previous},
		})
	}
	h.broadcast(u, "", ps.MsgSessionEnded, ps.SessionEnded{Reason: reason})
	u.state = nil
	u.queue = nil
	u.version = 0
	h.log.Info("session ended", zap.String("user", u.name), zap.String("reason", reason))
}

func (h *Hub) expireGrace(u *userSession, m *member) {
	if m.sink != nil || u.byID(m.id) == nil {
		return
	}
	m.grace = nil
	u.remove(m)
	h.broadcast(u, "", ps.MsgDeviceListChanged, ps.DeviceListChanged{
		Devices: u.devices(),
		Change:  ps.DeviceChange{Type: ps.ChangeDisconnected, DeviceID: m.id},
	})
	if u.audioID == m.id {
		h.endSession(u, ps.EndAudioDeviceDisconnected)
	}
	h.gc(u)
}

// watchAudio records activity from the audio device and restarts its stale
// timer.
func (h *Hub) watchAudio(u *userSession) {
	h.unwatchAudio(u)
	u.lastSeen = h.clock.NowMS()
	id := u.audioID
	var timer ports.Timer
	timer = h.after(h.config.StaleTimeout, func() {
		if u.stale != timer {
			return
		}
		u.stale = nil
		h.expireStale(u, id)
	})
	u.stale = timer
}

func (h *Hub) unwatchAudio(u *userSession) {
	if u.stale != nil {
		u.stale.Stop()
		u.stale = nil
	}
}

// expireStale ends the session of an audio device that stopped reporting
// state while still attached. A detached device is left to its grace timer.
func (h *Hub) expireStale(u *userSession, id string) {
	m := u.byID(id)
	if u.audioID != id || m == nil || m.sink == nil {
		return
	}
	h.log.Warn("audio device stale", zap.String("user", u.name), zap.String("device_id", id), zap.Int64("last_seen", u.lastSeen))
	h.endSession(u, ps.EndStale)
}

func (h *Hub) clearTransfer(u *userSession) {
	if u.transfer == nil {
		return
	}
	if u.transfer.timer != nil {
		u.transfer.timer.Stop()
	}
	u.transfer = nil
}

func (h *Hub) gc(u *userSession) {
	if len(u.members) == 0 && u.audioID == "" && u.reclaim == nil {
		delete(h.users, u.name)
	}
}

func (h *Hub) persist(u *userSession) {
	if h.store == nil {
		return
	}
	if stored, ok := h.storedLocked(u); ok {
		h.storeOps = append(h.storeOps, storeOp{user: u.name, save: &stored})
	}
}

func (h *Hub) storedLocked(u *userSession) (ports.StoredSession, bool) {
	if u.state == nil && len(u.queue) == 0 {
		return ports.StoredSession{}, false
	}
	stored := ports.StoredSession{
		User:         u.name,
		Queue:        copyItems(u.queue),
		QueueVersion: u.version,
		UpdatedAt:    h.clock.NowMS(),
	}
	if u.state != nil {
		stored.State = *u.state
	}
	if audio := u.byID(u.audioID); audio != nil {
		stored.DeviceName = audio.name
	}
	return stored, true
}

func (h *Hub) load(user string) *ports.StoredSession {
	h.mu.Lock()
	_, exists := h.users[user]
	h.mu.Unlock()
	if exists || h.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	stored, ok, err := h.store.Load(ctx, user)
	if err != nil {
		h.log.Warn("load session failed", zap.String("user", user), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return &stored
}

func (h *Hub) userLocked(user string, stored *ports.StoredSession) *userSession {
	u := h.users[user]
	if u == nil {
		u = &userSession{name: user, reclaim: stored}
		h.users[user] = u
	}
	return u
}

func (h *Hub) send(u *userSession, m *member, msgType ps.MessageType, body any) {
	if m.sink == nil {
		return
	}
	env, err := ps.NewEnvelope(msgType, body)
	if err != nil {
		h.log.Error("encode message", zap.String("type", string(msgType)), zap.Error(err))
		return
	}
	h.out = append(h.out, delivery{sink: m.sink, env: env, user: u.name, deviceID: m.id})
}

func (h *Hub) broadcast(u *userSession, except string, msgType ps.MessageType, body any) {
	for _, m := range u.members {
		if !m.registered || m.id == except {
			continue
		}
		h.send(u, m, msgType, body)
	}
}

func (h *Hub) sendError(u *userSession, m *member, code string, message string, ctx *ps.ErrorContext) {
	h.log.Debug("protocol error", zap.String("user", u.name), zap.String("device_id", m.id), zap.String("code", code), zap.String("message", message))
	h.send(u, m, ps.MsgError, ps.Error{Code: code, Message: message, Context: ctx})
}

func (h *Hub) after(d time.Duration, fn func()) ports.Timer {
	return h.clock.AfterFunc(d, func() {
		h.do(fn)
	})
}

func (h *Hub) do(fn func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	fn()
	out := h.out
	ops := h.storeOps
	h.out = nil
	h.storeOps = nil
	h.flushMu.Lock()
	h.mu.Unlock()
	defer h.flushMu.Unlock()

	for _, d := range out {
		if err := d.sink(d.env); err != nil {
			h.log.Debug("delivery failed", zap.String("user", d.user), zap.String("device_id", d.deviceID), zap.String("type", string(d.env.Type)), zap.Error(err))
		}
	}
	if len(ops) == 0 || h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	for _, op := range ops {
		var err error
		if op.deleted {
			err = h.store.Delete(ctx, op.user)
		} else {
			err = h.store.Save(ctx, *op.save)
		}
		if err != nil {
			h.log.Warn("session store failed", zap.String("user", op.user), zap.Error(err))
		}
	}
}

func (u *userSession) byKey(key string) *member {
	for _, m := range u.members {
		if m.key == key {
			return m
		}
	}
	return nil
}

func (u *userSession) byID(id string) *member {
	if id == "" {
		return nil
	}
	for _, m := range u.members {
		if m.registered && m.id == id {
			return m
		}
	}
	return nil
}

func (u *userSession) remove(target *member) {
	out := u.members[:0]
	for _, m := range u.members {
		if m != target {
			out = append(out, m)
		}
	}
	u.members = out
}

func (u *userSession) devices() []ps.Device {
	out := []ps.Device{}
	for _, m := range u.members {
		if !m.registered {
			continue
		}
		out = append(out, ps.Device{
			ID:            m.id,
			Name:          m.name,
			Type:          m.deviceType,
			IsAudioDevice: m.id == u.audioID,
			ConnectedAt:   m.connectedAt,
		})
	}
	return out
}

func (u *userSession) reclaimable() bool {
	return u.audioID == "" && u.reclaim != nil && len(u.reclaim.Queue) > 0
}

func (u *userSession) info() ps.SessionInfo {
	if u.audioID != "" {
		info := ps.SessionInfo{
			Exists:        true,
			Queue:         copyItems(u.queue),
			QueueVersion:  u.version,
			AudioDeviceID: u.audioID,
		}
		if u.state != nil {
			state := *u.state
			info.State = &state
		}
		return info
	}
	if u.reclaimable() {
		state := u.reclaim.State
		return ps.SessionInfo{
			Reclaimable:  true,
			State:        &state,
			Queue:        copyItems(u.reclaim.Queue),
			QueueVersion: u.reclaim.QueueVersion,
		}
	}
	return ps.SessionInfo{}
}

func copyItems(items []ps.QueueItem) []ps.QueueItem {
	out := make([]ps.QueueItem, len(items))
	copy(out, items)
	return out
}

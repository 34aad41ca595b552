package devicecore

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// DefaultHandoffTimeout bounds an unanswered negotiation.
const DefaultHandoffTimeout = 10 * time.Second

// Phase is the state of a handoff negotiation.
type Phase string

// Negotiation phases.
const (
	PhaseIdle      Phase = "idle"
	PhaseRequested Phase = "requested"
	PhasePrepared  Phase = "prepared"
	PhaseCompleted Phase = "completed"
	PhaseAborted   Phase = "aborted"
)

// Role is this device's side of a negotiation.
type Role string

// Negotiation roles.
const (
	RoleTarget Role = "target"
	RoleSource Role = "source"
)

// Negotiation is one transfer of the audio device role.
type Negotiation struct {
	TransferID     string
	SourceDeviceID string
	TargetDeviceID string
	Phase          Phase
	Role           Role
	WasPlaying     bool
	Reason         string
}

type handoffHost interface {
	selfID() string
	isAudioDevice() bool
	audioDeviceID() (string, bool)
	prepareSource() (state ps.PlaybackState, queue []ps.QueueItem, wasPlaying bool, err error)
	resumeSource(wasPlaying bool)
	applyTransfer(state ps.PlaybackState, queue []ps.QueueItem) error
	takeAudioRole()
	releaseAudioRole()
}

// Handoff runs the four-phase role transfer. At most one negotiation is
// outstanding; later requests are rejected while it is pending.
type Handoff struct {
	log     *zap.Logger
	send    sendFunc
	after   afterFunc
	ids     ports.IDGen
	host    handoffHost
	timeout time.Duration

	pending *Negotiation
	last    *Negotiation
	timer   ports.Timer
}

// NewHandoff creates a coordinator.
func NewHandoff(log *zap.Logger, send sendFunc, after afterFunc, ids ports.IDGen, host handoffHost, timeout time.Duration) *Handoff {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultHandoffTimeout
	}
	return &Handoff{log: log, send: send, after: after, ids: ids, host: host, timeout: timeout}
}

// Pending returns the outstanding negotiation.
func (h *Handoff) Pending() (Negotiation, bool) {
	if h.pending == nil {
		return Negotiation{}, false
	}
	return *h.pending, true
}

// Last returns the most recently finished negotiation.
func (h *Handoff) Last() (Negotiation, bool) {
	if h.last == nil {
		return Negotiation{}, false
	}
	return *h.last, true
}

// Request asks the current audio device to hand the role to this device.
func (h *Handoff) Request() (string, error) {
	if h.host.isAudioDevice() {
		return "", ErrAlreadyAudioDevice
	}
	if h.pending != nil {
		return "", ErrTransferInProgress
	}
	source, ok := h.host.audioDeviceID()
	if !ok {
		return "", ErrNoAudioDevice
	}
	id := h.ids.NewID()
	if id == "" {
		return "", fmt.Errorf("transfer id: empty")
	}
	cmd, err := ps.NewCommand(ps.CmdBecomeAudioDevice, ps.BecomeAudioDeviceParams{TransferID: id})
	if err != nil {
		return "", err
	}
	cmd.TargetDeviceID = source
	h.begin(&Negotiation{
		TransferID:     id,
		SourceDeviceID: source,
		TargetDeviceID: h.host.selfID(),
		Phase:          PhaseRequested,
		Role:           RoleTarget,
	})
	h.send(ps.MsgCommand, cmd)
	h.log.Info("transfer requested", zap.String("transfer_id", id), zap.String("source", source))
	return id, nil
}

// OnPrepare handles a transfer request as the current audio device.
func (h *Handoff) OnPrepare(req ps.PrepareTransfer) {
	if req.TransferID == "" {
		h.log.Debug("prepare without transfer id dropped")
		return
	}
	if !h.host.isAudioDevice() {
		h.reject(req, ps.AbortNotAudioDevice)
		return
	}
	if h.pending != nil {
		if h.pending.TransferID == req.TransferID {
			return
		}
		h.reject(req, ps.AbortBusy)
		return
	}
	state, queue, wasPlaying, err := h.host.prepareSource()
	if err != nil {
		h.log.Warn("prepare transfer failed", zap.String("transfer_id", req.TransferID), zap.Error(err))
		h.reject(req, ps.AbortApplyFailed)
		return
	}
	h.begin(&Negotiation{
		TransferID:     req.TransferID,
		SourceDeviceID: h.host.selfID(),
		TargetDeviceID: req.TargetDeviceID,
		Phase:          PhasePrepared,
		Role:           RoleSource,
		WasPlaying:     wasPlaying,
	})
	h.send(ps.MsgTransferReady, ps.TransferReady{TransferID: req.TransferID, State: state, Queue: queue})
	h.log.Info("transfer prepared", zap.String("transfer_id", req.TransferID), zap.String("target", req.TargetDeviceID))
}

// OnReady applies the source's session as the requesting device.
func (h *Handoff) OnReady(ready ps.TransferReady) {
	neg := h.match(ready.TransferID, RoleTarget, PhaseRequested)
	if neg == nil {
		return
	}
	if err := h.host.applyTransfer(ready.State, ready.Queue); err != nil {
		h.log.Warn("apply transfer failed", zap.String("transfer_id", ready.TransferID), zap.Error(err))
		h.send(ps.MsgTransferAborted, ps.TransferAborted{
			TransferID:     ready.TransferID,
			Reason:         ps.AbortApplyFailed,
			TargetDeviceID: neg.SourceDeviceID,
		})
		h.finish(PhaseAborted, ps.AbortApplyFailed)
		return
	}
	h.send(ps.MsgTransferComplete, ps.TransferComplete{TransferID: ready.TransferID})
	h.finish(PhaseCompleted, "")
	h.host.takeAudioRole()
	h.log.Info("transfer completed", zap.String("transfer_id", ready.TransferID))
}

// OnComplete releases the role as the former audio device. The hub may
// still accept the target's completion after the source timed out, so a
// completion for the last negotiation, aborted by timeout, also releases.
func (h *Handoff) OnComplete(done ps.TransferComplete) {
	if h.timedOutTo("") && h.last.TransferID == done.TransferID {
		if !h.host.isAudioDevice() {
			return
		}
		done := *h.last
		done.Phase = PhaseCompleted
		done.Reason = ""
		h.last = &done
		h.host.releaseAudioRole()
		h.log.Warn("transfer completed after source timeout", zap.String("transfer_id", done.TransferID))
		return
	}
	if h.match(done.TransferID, RoleSource, PhasePrepared) == nil {
		return
	}
	h.finish(PhaseCompleted, "")
	h.host.releaseAudioRole()
	h.log.Info("audio device handed off", zap.String("transfer_id", done.TransferID))
}

// OnRoleMoved handles the hub naming deviceID as audio device while this
// device still holds the role. A negotiation handing off to deviceID is
// completed, including one that already timed out locally. It reports
// whether a negotiation explained the move.
func (h *Handoff) OnRoleMoved(deviceID string) bool {
	if p := h.pending; p != nil && p.Role == RoleSource && p.TargetDeviceID == deviceID {
		h.OnComplete(ps.TransferComplete{TransferID: p.TransferID})
		return true
	}
	if h.timedOutTo(deviceID) {
		h.OnComplete(ps.TransferComplete{TransferID: h.last.TransferID})
		return true
	}
	return false
}

// OnCompleteRefused reports whether the hub refused this device's
// completion of transfer id, which it took as the target. The negotiation
// is recorded as aborted; the caller gives up the role it assumed.
func (h *Handoff) OnCompleteRefused(id string) bool {
	last := h.last
	if h.pending != nil || last == nil || last.TransferID != id || last.Role != RoleTarget ||
		last.Phase != PhaseCompleted || !h.host.isAudioDevice() {
		return false
	}
	done := *last
	done.Phase = PhaseAborted
	done.Reason = ps.ErrCodeUnknownTransfer
	h.last = &done
	return true
}

func (h *Handoff) timedOutTo(deviceID string) bool {
	last := h.last
	return h.pending == nil && last != nil && last.Role == RoleSource &&
		last.Phase == PhaseAborted && last.Reason == ps.AbortTimeout &&
		(deviceID == "" || last.TargetDeviceID == deviceID)
}

// OnAborted ends the negotiation named by the abort.
func (h *Handoff) OnAborted(abort ps.TransferAborted) {
	if h.pending == nil || h.pending.TransferID != abort.TransferID {
		h.log.Debug("stale transfer abort dropped", zap.String("transfer_id", abort.TransferID))
		return
	}
	if h.pending.Role == RoleSource {
		h.host.resumeSource(h.pending.WasPlaying)
	}
	h.finish(PhaseAborted, abort.Reason)
	h.log.Info("transfer aborted", zap.String("transfer_id", abort.TransferID), zap.String("reason", abort.Reason))
}

// Cancel aborts the outstanding negotiation locally without notifying the
// peer, as on disconnect.
func (h *Handoff) Cancel(reason string) {
	if h.pending == nil {
		return
	}
	if h.pending.Role == RoleSource {
		h.host.resumeSource(h.pending.WasPlaying)
	}
	h.finish(PhaseAborted, reason)
}

func (h *Handoff) begin(neg *Negotiation) {
	h.pending = neg
	id := neg.TransferID
	h.timer = h.after(h.timeout, func() {
		h.expire(id)
	})
}

func (h *Handoff) expire(id string) {
	if h.pending == nil || h.pending.TransferID != id {
		return
	}
	peer := h.pending.SourceDeviceID
	if h.pending.Role == RoleSource {
		peer = h.pending.TargetDeviceID
		h.host.resumeSource(h.pending.WasPlaying)
	}
	h.send(ps.MsgTransferAborted, ps.TransferAborted{TransferID: id, Reason: ps.AbortTimeout, TargetDeviceID: peer})
	h.finish(PhaseAborted, ps.AbortTimeout)
	h.log.Warn("transfer timed out", zap.String("transfer_id", id))
}

func (h *Handoff) match(id string, role Role, phase Phase) *Negotiation {
	if h.pending == nil || h.pending.TransferID != id || h.pending.Role != role || h.pending.Phase != phase {
		h.log.Debug("stale transfer message dropped", zap.String("transfer_id", id))
		return nil
	}
	return h.pending
}

func (h *Handoff) finish(phase Phase, reason string) {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	done := *h.pending
	done.Phase = phase
	done.Reason = reason
	h.last = &done
	h.pending = nil
}

func (h *Handoff) reject(req ps.PrepareTransfer, reason string) {
	h.send(ps.MsgTransferAborted, ps.TransferAborted{
		TransferID:     req.TransferID,
		Reason:         reason,
		TargetDeviceID: req.TargetDeviceID,
	})
	h.log.Info("transfer rejected", zap.String("transfer_id", req.TransferID), zap.String("reason", reason))
}

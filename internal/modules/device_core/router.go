package devicecore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/pkg/ps"
)

// HandlerFunc executes a command kind the router does not know natively.
type HandlerFunc func(cmd ps.Command) error

type routerHost interface {
	isAudioDevice() bool
	audioDeviceID() (string, bool)
	localPlayer() Player
	localQueue() *Queue
	nowMS() int64
	queueChanged()
	playerChanged()
	becomeRequested(transferID string)
}

// Router sends user commands to wherever they execute and applies commands
// received as the audio device.
type Router struct {
	log      *zap.Logger
	send     sendFunc
	host     routerHost
	handlers map[ps.CommandName]HandlerFunc
}

// NewRouter creates a router.
func NewRouter(log *zap.Logger, send sendFunc, host routerHost) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{log: log, send: send, host: host, handlers: map[ps.CommandName]HandlerFunc{}}
}

// Register installs a handler for an extension command.
func (r *Router) Register(name ps.CommandName, fn HandlerFunc) {
	r.handlers[name] = fn
}

// Execute applies cmd locally on the audio device or forwards it to the
// current audio device. Forwarded commands are fire-and-forget.
func (r *Router) Execute(cmd ps.Command) error {
	if r.host.isAudioDevice() {
		return r.Dispatch(cmd)
	}
	target, ok := r.host.audioDeviceID()
	if !ok {
		return ErrNoAudioDevice
	}
	cmd.TargetDeviceID = target
	r.send(ps.MsgCommand, cmd)
	return nil
}

// Dispatch applies a command to the local player.
func (r *Router) Dispatch(cmd ps.Command) error {
	player := r.host.localPlayer()
	if player == nil && cmd.Name != ps.CmdBecomeAudioDevice {
		return ErrNoPlayer
	}

	var err error
	switch cmd.Name {
	case ps.CmdPlay:
		err = player.Play()
	case ps.CmdPause:
		err = player.Pause()
	case ps.CmdNext:
		err = player.SkipNext()
	case ps.CmdPrev:
		err = player.SkipPrevious()
	case ps.CmdSeek:
		err = r.seek(player, cmd)
	case ps.CmdSetVolume:
		var params ps.VolumeParams
		if err = cmd.DecodeParams(&params); err == nil {
			err = player.SetVolume(clamp(params.Volume, 0, 1))
		}
	case ps.CmdSetMuted:
		var params ps.MutedParams
		if err = cmd.DecodeParams(&params); err == nil {
			err = player.SetMuted(params.Muted)
		}
	case ps.CmdSetShuffle:
		var params ps.ShuffleParams
		if err = cmd.DecodeParams(&params); err == nil {
			err = player.SetShuffle(params.Shuffle)
		}
	case ps.CmdSetRepeat:
		var params ps.RepeatParams
		if err = cmd.DecodeParams(&params); err == nil {
			mode, ok := ps.ParseRepeatMode(string(params.Repeat))
			if !ok {
				return fmt.Errorf("invalid repeat mode %q", params.Repeat)
			}
			err = player.SetRepeat(mode)
		}
	case ps.CmdAddToQueue, ps.CmdRemoveFromQueue, ps.CmdMoveInQueue, ps.CmdClearQueue, ps.CmdSetQueue:
		if err = r.mutateQueue(player, cmd); err != nil {
			return err
		}
		r.host.queueChanged()
		return nil
	case ps.CmdBecomeAudioDevice:
		var params ps.BecomeAudioDeviceParams
		if err = cmd.DecodeParams(&params); err != nil {
			return err
		}
		r.host.becomeRequested(params.TransferID)
		return nil
	default:
		fn, ok := r.handlers[cmd.Name]
		if !ok {
			r.log.Warn("unknown command ignored", zap.String("command", string(cmd.Name)))
			return fmt.Errorf("%s: %w", cmd.Name, ErrUnknownCommand)
		}
		err = fn(cmd)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	r.host.playerChanged()
	return nil
}

func (r *Router) seek(player Player, cmd ps.Command) error {
	var params ps.SeekParams
	if err := cmd.DecodeParams(&params); err != nil {
		return err
	}
	snap := player.Snapshot()
	duration := snap.Duration
	if snap.Track != nil && snap.Track.Duration > 0 {
		duration = snap.Track.Duration
	}
	if duration <= 0 {
		return ErrUnknownDuration
	}
	pos := clamp(params.Position, 0, duration)
	return player.Seek(pos / duration)
}

func (r *Router) mutateQueue(player Player, cmd ps.Command) error {
	queue := r.host.localQueue()
	queue.SetIndex(player.Snapshot().QueuePosition)

	var err error
	switch cmd.Name {
	case ps.CmdAddToQueue:
		var params ps.AddToQueueParams
		if err = cmd.DecodeParams(&params); err == nil {
			err = queue.Add(r.newItems(params.IDs), params.Index)
		}
	case ps.CmdRemoveFromQueue:
		var params ps.RemoveFromQueueParams
		if err = cmd.DecodeParams(&params); err == nil {
			err = queue.Remove(params.Index)
		}
	case ps.CmdMoveInQueue:
		var params ps.MoveInQueueParams
		if err = cmd.DecodeParams(&params); err == nil {
			err = queue.Move(params.From, params.To)
		}
	case ps.CmdClearQueue:
		queue.Clear()
		if err = player.Stop(); err != nil {
			return err
		}
	case ps.CmdSetQueue:
		var params ps.SetQueueParams
		if err = cmd.DecodeParams(&params); err == nil {
			err = queue.Set(r.newItems(params.IDs), params.Position)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	if err := player.SetQueue(queue.Items(), queue.Index()); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

func (r *Router) newItems(ids []string) []ps.QueueItem {
	now := r.host.nowMS()
	out := make([]ps.QueueItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, ps.QueueItem{ID: id, AddedAt: now})
	}
	return out
}

func clamp(v float64, lo float64, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

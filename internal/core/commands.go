package core

import (
	"strconv"
	"strings"
	"time"

	devicecore "github.com/mikey-austin/playsync/internal/modules/device_core"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// CommandBuilder turns the current session view into a command, so relative
// arguments resolve against the replica.
type CommandBuilder func(view devicecore.View) (ps.Command, error)

// Fixed builds cmd regardless of the view.
func Fixed(name ps.CommandName, params any) CommandBuilder {
	return func(devicecore.View) (ps.Command, error) {
		return newCommand(name, params)
	}
}

// SeekTo builds a seek. "+10s" and "-5" are relative to the interpolated
// position.
func SeekTo(arg string) CommandBuilder {
	return func(view devicecore.View) (ps.Command, error) {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "seek position required"}
		}
		if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
			delta, err := parseSeconds(arg)
			if err != nil {
				return ps.Command{}, err
			}
			if view.State == nil {
				return ps.Command{}, &CLIError{Code: ExitNoAudioDevice, Msg: "no playback state"}
			}
			pos := view.Position + delta
			if pos < 0 {
				pos = 0
			}
			return newCommand(ps.CmdSeek, ps.SeekParams{Position: pos})
		}
		pos, err := parseSeconds(arg)
		if err != nil {
			return ps.Command{}, err
		}
		return newCommand(ps.CmdSeek, ps.SeekParams{Position: pos})
	}
}

// SetVolume builds a volume change in [0,1]. A signed value is relative.
func SetVolume(arg string) CommandBuilder {
	return func(view devicecore.View) (ps.Command, error) {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "volume argument required"}
		}
		value, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "invalid volume"}
		}
		if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
			if view.State == nil {
				return ps.Command{}, &CLIError{Code: ExitNoAudioDevice, Msg: "no playback state"}
			}
			value += view.State.Volume
		}
		return newCommand(ps.CmdSetVolume, ps.VolumeParams{Volume: clampVolume(value)})
	}
}

// SetMuted builds a mute change from on, off or toggle.
func SetMuted(arg string) CommandBuilder {
	return func(view devicecore.View) (ps.Command, error) {
		current := view.State != nil && view.State.Muted
		muted, err := parseSwitch(arg, current)
		if err != nil {
			return ps.Command{}, err
		}
		return newCommand(ps.CmdSetMuted, ps.MutedParams{Muted: muted})
	}
}

// SetShuffle builds a shuffle change from on, off or toggle.
func SetShuffle(arg string) CommandBuilder {
	return func(view devicecore.View) (ps.Command, error) {
		current := view.State != nil && view.State.Shuffle
		shuffle, err := parseSwitch(arg, current)
		if err != nil {
			return ps.Command{}, err
		}
		return newCommand(ps.CmdSetShuffle, ps.ShuffleParams{Shuffle: shuffle})
	}
}

// SetRepeat builds a repeat mode change.
func SetRepeat(arg string) CommandBuilder {
	return func(devicecore.View) (ps.Command, error) {
		mode, ok := ps.ParseRepeatMode(strings.ToLower(strings.TrimSpace(arg)))
		if !ok {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "repeat must be off, all or one"}
		}
		return newCommand(ps.CmdSetRepeat, ps.RepeatParams{Repeat: mode})
	}
}

// QueueAdd inserts ids at index, or appends when index is empty.
func QueueAdd(ids []string, index string) CommandBuilder {
	return func(devicecore.View) (ps.Command, error) {
		if len(ids) == 0 {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "track ids required"}
		}
		params := ps.AddToQueueParams{IDs: ids}
		if strings.TrimSpace(index) != "" {
			idx, ok := parseIndex(index)
			if !ok {
				return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "invalid index"}
			}
			params.Index = &idx
		}
		return newCommand(ps.CmdAddToQueue, params)
	}
}

// QueueRemove removes the entry at index.
func QueueRemove(index string) CommandBuilder {
	return func(devicecore.View) (ps.Command, error) {
		idx, ok := parseIndex(index)
		if !ok {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "invalid index"}
		}
		return newCommand(ps.CmdRemoveFromQueue, ps.RemoveFromQueueParams{Index: idx})
	}
}

// QueueMove moves an entry between indexes.
func QueueMove(from string, to string) CommandBuilder {
	return func(devicecore.View) (ps.Command, error) {
		src, ok := parseIndex(from)
		if !ok {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "invalid from index"}
		}
		dst, ok := parseIndex(to)
		if !ok {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "invalid to index"}
		}
		return newCommand(ps.CmdMoveInQueue, ps.MoveInQueueParams{From: src, To: dst})
	}
}

// QueueSet replaces the queue and starts at position.
func QueueSet(ids []string, position string) CommandBuilder {
	return func(devicecore.View) (ps.Command, error) {
		if len(ids) == 0 {
			return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "track ids required"}
		}
		pos := 0
		if strings.TrimSpace(position) != "" {
			var ok bool
			pos, ok = parseIndex(position)
			if !ok || pos >= len(ids) {
				return ps.Command{}, &CLIError{Code: ExitUsage, Msg: "invalid start position"}
			}
		}
		return newCommand(ps.CmdSetQueue, ps.SetQueueParams{IDs: ids, Position: pos})
	}
}

func newCommand(name ps.CommandName, params any) (ps.Command, error) {
	cmd, err := ps.NewCommand(name, params)
	if err != nil {
		return ps.Command{}, WrapError(ExitRuntime, "encode command", err)
	}
	return cmd, nil
}

func parseSwitch(arg string, current bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	case "", "toggle":
		return !current, nil
	default:
		return false, &CLIError{Code: ExitUsage, Msg: "expected on, off or toggle"}
	}
}

// parseSeconds accepts plain seconds ("90", "-2.5") or a Go duration
// ("1m30s").
func parseSeconds(arg string) (float64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "duration required"}
	}
	if value, err := strconv.ParseFloat(arg, 64); err == nil {
		return value, nil
	}
	dur, err := time.ParseDuration(arg)
	if err != nil {
		return 0, &CLIError{Code: ExitUsage, Msg: "invalid duration"}
	}
	return dur.Seconds(), nil
}

func parseIndex(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func clampVolume(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

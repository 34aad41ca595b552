package ps

import (
	"encoding/json"
	"fmt"
)

// CommandName is the tag of a playback command.
type CommandName string

// Commands executed on the audio device.
const (
	CmdPlay              CommandName = "play"
	CmdPause             CommandName = "pause"
	CmdSeek              CommandName = "seek"
	CmdNext              CommandName = "next"
	CmdPrev              CommandName = "prev"
	CmdSetVolume         CommandName = "setVolume"
	CmdSetMuted          CommandName = "setMuted"
	CmdSetShuffle        CommandName = "setShuffle"
	CmdSetRepeat         CommandName = "setRepeat"
	CmdAddToQueue        CommandName = "addToQueue"
	CmdRemoveFromQueue   CommandName = "removeFromQueue"
	CmdMoveInQueue       CommandName = "moveInQueue"
	CmdClearQueue        CommandName = "clearQueue"
	CmdSetQueue          CommandName = "setQueue"
	CmdBecomeAudioDevice CommandName = "becomeAudioDevice"
)

// Command is the wire form of a routed command.
type Command struct {
	Name           CommandName     `json:"command"`
	Params         json.RawMessage `json:"params,omitempty"`
	TargetDeviceID string          `json:"target_device_id,omitempty"`
}

// NewCommand builds a command with optional params.
func NewCommand(name CommandName, params any) (Command, error) {
	cmd := Command{Name: name}
	if params == nil {
		return cmd, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Command{}, fmt.Errorf("marshal params: %w", err)
	}
	cmd.Params = raw
	return cmd, nil
}

// DecodeParams unmarshals params into out.
func (c Command) DecodeParams(out any) error {
	if len(c.Params) == 0 {
		return fmt.Errorf("%s: params required", c.Name)
	}
	if err := json.Unmarshal(c.Params, out); err != nil {
		return fmt.Errorf("%s: decode params: %w", c.Name, err)
	}
	return nil
}

// SeekParams carries an absolute position in seconds.
type SeekParams struct {
	Position float64 `json:"position"`
}

// VolumeParams carries a volume in [0,1].
type VolumeParams struct {
	Volume float64 `json:"volume"`
}

// MutedParams sets mute.
type MutedParams struct {
	Muted bool `json:"muted"`
}

// ShuffleParams sets shuffle.
type ShuffleParams struct {
	Shuffle bool `json:"shuffle"`
}

// RepeatParams sets the repeat mode.
type RepeatParams struct {
	Repeat RepeatMode `json:"repeat"`
}

// AddToQueueParams inserts track ids. A nil Index appends.
type AddToQueueParams struct {
	IDs   []string `json:"ids"`
	Index *int     `json:"index,omitempty"`
}

// RemoveFromQueueParams removes a single entry by index.
type RemoveFromQueueParams struct {
	Index int `json:"index"`
}

// MoveInQueueParams moves an entry.
type MoveInQueueParams struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SetQueueParams replaces the queue and starts at Position.
type SetQueueParams struct {
	IDs      []string `json:"ids"`
	Position int      `json:"position"`
}

// BecomeAudioDeviceParams carries the requester's transfer id.
type BecomeAudioDeviceParams struct {
	TransferID string `json:"transfer_id"`
}

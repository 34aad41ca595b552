package core

import (
	devicecore "github.com/mikey-austin/playsync/internal/modules/device_core"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// StatusResult is the session as seen from one device.
type StatusResult struct {
	DeviceID        string                  `json:"device_id"`
	IsAudioDevice   bool                    `json:"is_audio_device"`
	AudioDeviceID   string                  `json:"audio_device_id,omitempty"`
	AudioDeviceName string                  `json:"audio_device_name,omitempty"`
	SessionExists   bool                    `json:"session_exists"`
	Reclaimable     bool                    `json:"reclaimable"`
	State           *ps.PlaybackState       `json:"state,omitempty"`
	Position        float64                 `json:"position"`
	Stale           bool                    `json:"stale"`
	Queue           []ps.QueueItem          `json:"queue"`
	QueueVersion    int64                   `json:"queue_version"`
	Devices         []ps.Device             `json:"devices"`
	Handoff         *devicecore.Negotiation `json:"handoff,omitempty"`
}

// DevicesResult holds the roster.
type DevicesResult struct {
	SelfID  string      `json:"self_id"`
	Devices []ps.Device `json:"devices"`
}

// CommandResult reports a routed command.
type CommandResult struct {
	Command ps.CommandName `json:"command"`
	Target  string         `json:"target,omitempty"`
	Local   bool           `json:"local"`
}

// TransferResult reports a finished handoff.
type TransferResult struct {
	TransferID string `json:"transfer_id"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	Phase      string `json:"phase"`
	Reason     string `json:"reason,omitempty"`
}

// StatusFromView flattens a session view.
func StatusFromView(view devicecore.View) StatusResult {
	result := StatusResult{
		DeviceID:      view.SelfID,
		IsAudioDevice: view.IsAudioDevice,
		SessionExists: view.SessionExists,
		Reclaimable:   view.Reclaimable,
		State:         view.State,
		Position:      view.Position,
		Stale:         view.Stale,
		Queue:         view.Queue,
		QueueVersion:  view.QueueVersion,
		Devices:       view.Devices,
		Handoff:       view.Handoff,
	}
	if result.Queue == nil {
		result.Queue = []ps.QueueItem{}
	}
	if result.Devices == nil {
		result.Devices = []ps.Device{}
	}
	if device, ok := audioDevice(view.Devices); ok {
		result.AudioDeviceID = device.ID
		result.AudioDeviceName = device.Name
	}
	return result
}

func transferFromNegotiation(neg devicecore.Negotiation) TransferResult {
	return TransferResult{
		TransferID: neg.TransferID,
		Source:     neg.SourceDeviceID,
		Target:     neg.TargetDeviceID,
		Phase:      string(neg.Phase),
		Reason:     neg.Reason,
	}
}

func audioDevice(devices []ps.Device) (ps.Device, bool) {
	for _, device := range devices {
		if device.IsAudioDevice {
			return device, true
		}
	}
	return ps.Device{}, false
}

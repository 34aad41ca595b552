package ps

// DeviceType identifies the kind of client a device is.
type DeviceType string

// Device types.
const (
	DeviceWeb     DeviceType = "web"
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
	DeviceCLI     DeviceType = "cli"
)

// RepeatMode controls queue wrap-around on the audio device.
type RepeatMode string

// Repeat modes.
const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// ParseRepeatMode validates a repeat mode string.
func ParseRepeatMode(v string) (RepeatMode, bool) {
	switch RepeatMode(v) {
	case RepeatOff, RepeatAll, RepeatOne:
		return RepeatMode(v), true
	default:
		return "", false
	}
}

// Device is one connected client in the session.
type Device struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Type          DeviceType `json:"device_type"`
	IsAudioDevice bool       `json:"is_audio_device"`
	ConnectedAt   int64      `json:"connected_at"`
}

// Track is the metadata the audio device reports for the current item.
type Track struct {
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	ArtistName string  `json:"artist_name,omitempty"`
	AlbumTitle string  `json:"album_title,omitempty"`
	Duration   float64 `json:"duration"`
}

// PlaybackState is the audio device's snapshot. Position is in seconds and
// Timestamp in milliseconds of the audio device's clock.
type PlaybackState struct {
	CurrentTrack  *Track     `json:"current_track,omitempty"`
	QueuePosition int        `json:"queue_position"`
	QueueVersion  int64      `json:"queue_version"`
	Position      float64    `json:"position"`
	IsPlaying     bool       `json:"is_playing"`
	Volume        float64    `json:"volume"`
	Muted         bool       `json:"muted"`
	Shuffle       bool       `json:"shuffle"`
	Repeat        RepeatMode `json:"repeat"`
	Timestamp     int64      `json:"timestamp"`
}

// QueueItem is one entry of the replicated queue.
type QueueItem struct {
	ID      string `json:"id"`
	AddedAt int64  `json:"added_at"`
}

// Hello is the first message a device sends after connecting.
type Hello struct {
	DeviceName string     `json:"device_name"`
	DeviceType DeviceType `json:"device_type"`
}

// SessionInfo describes the session as seen by the hub.
type SessionInfo struct {
	Exists        bool           `json:"exists"`
	State         *PlaybackState `json:"state,omitempty"`
	Queue         []QueueItem    `json:"queue,omitempty"`
	QueueVersion  int64          `json:"queue_version,omitempty"`
	AudioDeviceID string         `json:"audio_device_id,omitempty"`
	Reclaimable   bool           `json:"reclaimable,omitempty"`
}

// Welcome is the hub's full snapshot for a freshly connected device.
type Welcome struct {
	DeviceID string      `json:"device_id"`
	Session  SessionInfo `json:"session"`
	Devices  []Device    `json:"devices"`
}

// Roster change kinds.
const (
	ChangeConnected          = "connected"
	ChangeDisconnected       = "disconnected"
	ChangeBecameAudioDevice  = "became_audio_device"
	ChangeStoppedAudioDevice = "stopped_audio_device"
)

// DeviceChange names a single roster delta.
type DeviceChange struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
}

// DeviceListChanged carries a roster delta plus the hub's current list.
type DeviceListChanged struct {
	Devices []Device     `json:"devices"`
	Change  DeviceChange `json:"change"`
}

// QueueUpdate replaces the queue wholesale. Also used for queue_sync.
type QueueUpdate struct {
	Queue        []QueueItem `json:"queue"`
	QueueVersion int64       `json:"queue_version"`
}

// PrepareTransfer asks the current audio device to hand off.
type PrepareTransfer struct {
	TransferID       string `json:"transfer_id"`
	TargetDeviceID   string `json:"target_device_id"`
	TargetDeviceName string `json:"target_device_name,omitempty"`
}

// TransferReady is the source's serialized session.
type TransferReady struct {
	TransferID string        `json:"transfer_id"`
	State      PlaybackState `json:"state"`
	Queue      []QueueItem   `json:"queue"`
}

// TransferComplete confirms the target took over playback.
type TransferComplete struct {
	TransferID string `json:"transfer_id"`
}

// Transfer abort reasons.
const (
	AbortTimeout            = "timeout"
	AbortBusy               = "busy"
	AbortApplyFailed        = "apply_failed"
	AbortNotAudioDevice     = "not_audio_device"
	AbortSourceDisconnected = "source_disconnected"
	AbortTargetDisconnected = "target_disconnected"
	AbortInProgress         = "transfer_in_progress"
)

// TransferAborted cancels a negotiation. TargetDeviceID addresses the peer
// when the hub has no matching negotiation on record.
type TransferAborted struct {
	TransferID     string `json:"transfer_id"`
	Reason         string `json:"reason"`
	TargetDeviceID string `json:"target_device_id,omitempty"`
}

// RegisterAudioDevice claims the audio device role outside of a handoff.
type RegisterAudioDevice struct {
	Reclaim bool `json:"reclaim,omitempty"`
}

// RegisterAck answers a role claim.
type RegisterAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Session end reasons.
const (
	EndReleased                = "released"
	EndAudioDeviceDisconnected = "audio_device_disconnected"
	EndStale                   = "stale"
)

// SessionEnded tells every device the session is gone.
type SessionEnded struct {
	Reason string `json:"reason"`
}

// Hub error codes.
const (
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeNoAudioDevice      = "no_audio_device"
	ErrCodeTransferInProgress = "transfer_in_progress"
	ErrCodeQueueLimitExceeded = "queue_limit_exceeded"
	ErrCodeUnknownTransfer    = "unknown_transfer"
	ErrCodeHelloRequired      = "hello_required"
)

// ErrorContext points at what triggered a hub error.
type ErrorContext struct {
	Command    string `json:"command,omitempty"`
	TransferID string `json:"transfer_id,omitempty"`
}

// Error is a protocol error reported by the hub.
type Error struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Context *ErrorContext `json:"context,omitempty"`
}

// MaxQueueSize bounds the replicated queue.
const MaxQueueSize = 500

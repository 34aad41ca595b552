package devicecore

import "errors"

var (
	// ErrUnknownDevice is returned when a roster delta names a device the
	// local roster has never seen.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrNoAudioDevice means the session has no audio device to route to.
	ErrNoAudioDevice = errors.New("no audio device")
	// ErrAlreadyAudioDevice means this device already holds the role.
	ErrAlreadyAudioDevice = errors.New("already the audio device")
	// ErrNotAudioDevice means a role-only action was attempted by a replica.
	ErrNotAudioDevice = errors.New("not the audio device")
	// ErrAudioDeviceActive means another device holds the role; use a handoff.
	ErrAudioDeviceActive = errors.New("another device is the audio device")
	// ErrTransferInProgress means a handoff negotiation is already pending.
	ErrTransferInProgress = errors.New("transfer already in progress")
	// ErrClaimPending means a role claim awaits the hub's answer.
	ErrClaimPending = errors.New("audio device claim pending")
	// ErrNotConnected means the session has not been welcomed yet.
	ErrNotConnected = errors.New("not connected")
	// ErrNoPlayer means the device has no local player.
	ErrNoPlayer = errors.New("no local player")
	// ErrEmptyQueue means a transferred session has nothing to play.
	ErrEmptyQueue = errors.New("queue is empty")
	// ErrQueueFull means a mutation would exceed the queue limit.
	ErrQueueFull = errors.New("queue limit exceeded")
	// ErrIndexOutOfRange is returned for invalid queue indexes.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrUnknownDuration means a seek target cannot be converted.
	ErrUnknownDuration = errors.New("track duration unknown")
	// ErrUnknownCommand is returned for commands without a handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNothingToReclaim means the hub offered no reclaimable session.
	ErrNothingToReclaim = errors.New("no reclaimable session")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

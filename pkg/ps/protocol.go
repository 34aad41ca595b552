package ps

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "ps/v1"

// MessageType names an envelope kind on the session channel.
type MessageType string

// Message types exchanged between devices and the session hub.
const (
	MsgHello                 MessageType = "playback.hello"
	MsgWelcome               MessageType = "playback.welcome"
	MsgDeviceListChanged     MessageType = "playback.device_list_changed"
	MsgState                 MessageType = "playback.state"
	MsgQueueUpdate           MessageType = "playback.queue_update"
	MsgQueueSync             MessageType = "playback.queue_sync"
	MsgRequestQueue          MessageType = "playback.request_queue"
	MsgCommand               MessageType = "playback.command"
	MsgPrepareTransfer       MessageType = "playback.prepare_transfer"
	MsgTransferReady         MessageType = "playback.transfer_ready"
	MsgTransferComplete      MessageType = "playback.transfer_complete"
	MsgTransferAborted       MessageType = "playback.transfer_aborted"
	MsgRegisterAudioDevice   MessageType = "playback.register_audio_device"
	MsgRegisterAck           MessageType = "playback.register_ack"
	MsgUnregisterAudioDevice MessageType = "playback.unregister_audio_device"
	MsgSessionEnded          MessageType = "playback.session_ended"
	MsgError                 MessageType = "playback.error"
)

var knownMessageTypes = map[MessageType]struct{}{
	MsgHello:                 {},
	MsgWelcome:               {},
	MsgDeviceListChanged:     {},
	MsgState:                 {},
	MsgQueueUpdate:           {},
	MsgQueueSync:             {},
	MsgRequestQueue:          {},
	MsgCommand:               {},
	MsgPrepareTransfer:       {},
	MsgTransferReady:         {},
	MsgTransferComplete:      {},
	MsgTransferAborted:       {},
	MsgRegisterAudioDevice:   {},
	MsgRegisterAck:           {},
	MsgUnregisterAudioDevice: {},
	MsgSessionEnded:          {},
	MsgError:                 {},
}

// Known reports whether t is one of the protocol message types.
func (t MessageType) Known() bool {
	_, ok := knownMessageTypes[t]
	return ok
}

// Envelope is the framing for every message on the channel.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope with a JSON payload. A nil body yields an
// envelope without payload.
func NewEnvelope(msgType MessageType, body any) (Envelope, error) {
	if strings.TrimSpace(string(msgType)) == "" {
		return Envelope{}, errors.New("type is required")
	}
	if body == nil {
		return Envelope{Type: msgType}, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Envelope{Type: msgType, Payload: payload}, nil
}

// DecodeEnvelope parses a raw frame. Unknown types decode without error so
// the caller decides how to drop them.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if strings.TrimSpace(string(env.Type)) == "" {
		return Envelope{}, errors.New("type is required")
	}
	return env, nil
}

// Decode unmarshals the envelope payload into out.
func (e Envelope) Decode(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: payload is required", e.Type)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Type, err)
	}
	return nil
}

// TopicUp builds the device-to-hub topic for a transport key.
func TopicUp(topicBase, user, key string) string {
	return fmt.Sprintf("%s/user/%s/up/%s", topicBase, user, key)
}

// TopicDown builds the hub-to-device topic for a transport key.
func TopicDown(topicBase, user, key string) string {
	return fmt.Sprintf("%s/user/%s/down/%s", topicBase, user, key)
}

// TopicGone builds the topic carrying a device's last will.
func TopicGone(topicBase, user, key string) string {
	return fmt.Sprintf("%s/user/%s/gone/%s", topicBase, user, key)
}

// ParseDeviceTopic splits "<base>/user/<user>/<dir>/<key>" into its parts.
func ParseDeviceTopic(topicBase, topic string) (user string, dir string, key string, ok bool) {
	prefix := topicBase + "/user/"
	if !strings.HasPrefix(topic, prefix) {
		return "", "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

package ps

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(MsgTransferComplete, TransferComplete{TransferID: "x"})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != MsgTransferComplete {
		t.Fatalf("unexpected type %q", decoded.Type)
	}
	var body TransferComplete
	if err := decoded.Decode(&body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body.TransferID != "x" {
		t.Fatalf("unexpected transfer id %q", body.TransferID)
	}
}

func TestNewEnvelopeWithoutBody(t *testing.T) {
	env, err := NewEnvelope(MsgRequestQueue, nil)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if len(env.Payload) != 0 {
		t.Fatalf("expected empty payload")
	}
	data, _ := json.Marshal(env)
	if string(data) != `{"type":"playback.request_queue"}` {
		t.Fatalf("unexpected frame %s", data)
	}
}

func TestDecodeEnvelopeRejectsMissingType(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"payload":{}}`)); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeEnvelopeKeepsUnknownType(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"playback.bogus"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type.Known() {
		t.Fatalf("expected unknown type")
	}
	if !MsgWelcome.Known() {
		t.Fatalf("expected welcome to be known")
	}
}

func TestDecodeRequiresPayload(t *testing.T) {
	env := Envelope{Type: MsgState}
	var state PlaybackState
	if err := env.Decode(&state); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPlaybackStateWireNames(t *testing.T) {
	state := PlaybackState{
		CurrentTrack: &Track{ID: "t1", Duration: 180},
		QueueVersion: 3,
		Position:     30,
		IsPlaying:    true,
		Repeat:       RepeatAll,
		Timestamp:    1000,
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"current_track", "queue_position", "queue_version", "position", "is_playing", "volume", "muted", "shuffle", "repeat", "timestamp"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}
}

func TestDeviceTopics(t *testing.T) {
	topic := TopicUp(BaseTopic, "alice", "k1")
	if topic != "ps/v1/user/alice/up/k1" {
		t.Fatalf("unexpected topic %q", topic)
	}
	user, dir, key, ok := ParseDeviceTopic(BaseTopic, topic)
	if !ok || user != "alice" || dir != "up" || key != "k1" {
		t.Fatalf("unexpected parse %q %q %q %v", user, dir, key, ok)
	}
	if _, _, _, ok := ParseDeviceTopic(BaseTopic, "ps/v1/user/alice"); ok {
		t.Fatalf("expected short topic to fail")
	}
	if _, _, _, ok := ParseDeviceTopic(BaseTopic, "other/user/a/up/k"); ok {
		t.Fatalf("expected foreign base to fail")
	}
}

func TestCommandParams(t *testing.T) {
	cmd, err := NewCommand(CmdSeek, SeekParams{Position: 12.5})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	var params SeekParams
	if err := cmd.DecodeParams(&params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.Position != 12.5 {
		t.Fatalf("unexpected position %v", params.Position)
	}

	bare, err := NewCommand(CmdPlay, nil)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if err := bare.DecodeParams(&params); err == nil {
		t.Fatalf("expected missing params error")
	}
}

func TestParseRepeatMode(t *testing.T) {
	if mode, ok := ParseRepeatMode("one"); !ok || mode != RepeatOne {
		t.Fatalf("expected one")
	}
	if _, ok := ParseRepeatMode("sometimes"); ok {
		t.Fatalf("expected invalid mode")
	}
}

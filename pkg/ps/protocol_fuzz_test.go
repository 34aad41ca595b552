package ps

import "testing"

func FuzzDecodeEnvelope(f *testing.F) {
	f.Add(`{"type":"playback.state","payload":{"position":1}}`)
	f.Add(`{"type":""}`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, frame string) {
		env, err := DecodeEnvelope([]byte(frame))
		if err != nil {
			return
		}
		var state PlaybackState
		_ = env.Decode(&state)
	})
}

func FuzzParseDeviceTopic(f *testing.F) {
	f.Add("ps/v1/user/a/up/k")
	f.Add("ps/v1/user//up/")

	f.Fuzz(func(t *testing.T, topic string) {
		user, _, key, ok := ParseDeviceTopic(BaseTopic, topic)
		if ok && (user == "" || key == "") {
			t.Fatalf("empty part accepted for %q", topic)
		}
	})
}

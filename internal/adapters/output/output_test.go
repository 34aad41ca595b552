package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mikey-austin/playsync/internal/core"
	"github.com/mikey-austin/playsync/pkg/ps"
)

func sampleStatus() core.StatusResult {
	return core.StatusResult{
		DeviceID:        "dev-2",
		AudioDeviceID:   "dev-1",
		AudioDeviceName: "Kitchen",
		SessionExists:   true,
		State: &ps.PlaybackState{
			CurrentTrack:  &ps.Track{ID: "t2", Title: "Song", ArtistName: "Band", Duration: 200},
			QueuePosition: 1,
			IsPlaying:     true,
			Volume:        0.4,
			Repeat:        ps.RepeatAll,
		},
		Position:     75,
		Queue:        []ps.QueueItem{{ID: "t1"}, {ID: "t2"}},
		QueueVersion: 3,
	}
}

func TestHumanStatus(t *testing.T) {
	var buf bytes.Buffer
	if err := (HumanPrinter{Out: &buf}).Print(sampleStatus()); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Kitchen (dev-1)", "playing", "Band - Song", "1:15 / 3:20", "40%", ">1", "2 items (v3)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestHumanStatusWithoutSession(t *testing.T) {
	out := FormatStatus(core.StatusResult{Reclaimable: true})
	if !strings.Contains(out, "none") || !strings.Contains(out, "reclaimable") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestHumanDevicesMarksSelf(t *testing.T) {
	var buf bytes.Buffer
	result := core.DevicesResult{SelfID: "dev-2", Devices: []ps.Device{
		{ID: "dev-1", Name: "Kitchen", Type: ps.DeviceWeb, IsAudioDevice: true},
		{ID: "dev-2", Name: "ps", Type: ps.DeviceCLI},
	}}
	if err := (HumanPrinter{Out: &buf}).Print(result); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "ps *") || !strings.Contains(out, "audio") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestJSONAndYAMLShareKeys(t *testing.T) {
	var js, ym bytes.Buffer
	if err := (JSONPrinter{Out: &js}).Print(sampleStatus()); err != nil {
		t.Fatalf("json: %v", err)
	}
	if err := (YAMLPrinter{Out: &ym}).Print(sampleStatus()); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(js.String(), `"audio_device_id": "dev-1"`) {
		t.Fatalf("unexpected json:\n%s", js.String())
	}
	if !strings.Contains(ym.String(), "audio_device_id: dev-1") {
		t.Fatalf("unexpected yaml:\n%s", ym.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("xml"); err == nil {
		t.Fatalf("expected error")
	}
	if p, err := New("yaml"); err != nil || p == nil {
		t.Fatalf("expected yaml printer, got %v", err)
	}
}

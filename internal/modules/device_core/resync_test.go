package devicecore

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

type fakeResyncHost struct {
	selfID   string
	devices  []ps.Device
	state    *ps.PlaybackState
	queue    []ps.QueueItem
	version  int64
	cleared  int
	reclaim  *ps.SessionInfo
	roles    []bool
	replicas int
}

func (h *fakeResyncHost) applyRoster(selfID string, devices []ps.Device) {
	h.selfID = selfID
	h.devices = devices
}

func (h *fakeResyncHost) applyReplica(state *ps.PlaybackState, queue []ps.QueueItem, version int64) {
	h.replicas++
	h.state = state
	h.queue = queue
	h.version = version
}

func (h *fakeResyncHost) clearReplica() {
	h.cleared++
	h.state = nil
	h.queue = nil
}

func (h *fakeResyncHost) setReclaim(info *ps.SessionInfo) { h.reclaim = info }

func (h *fakeResyncHost) adoptRole(audio bool) { h.roles = append(h.roles, audio) }

func newResyncFixture(host *fakeResyncHost) (*Resync, *recorder, *fakeClock) {
	rec := &recorder{}
	clock := newFakeClock(0)
	after := func(d time.Duration, fn func()) ports.Timer { return clock.AfterFunc(d, fn) }
	hello := ps.Hello{DeviceName: "kitchen", DeviceType: ps.DeviceCLI}
	return NewResync(zap.NewNop(), rec.send, after, host, hello, 500*time.Millisecond), rec, clock
}

func TestResyncGatesUntilWelcome(t *testing.T) {
	host := &fakeResyncHost{}
	r, rec, _ := newResyncFixture(host)

	r.OnChannelConnected()
	if !r.Awaiting() || r.Welcomed() {
		t.Fatalf("expected awaiting welcome")
	}
	hellos := rec.ofType(ps.MsgHello)
	if len(hellos) != 1 {
		t.Fatalf("expected hello, got %v", rec.sent)
	}
	if hello := hellos[0].Payload.(ps.Hello); hello.DeviceName != "kitchen" {
		t.Fatalf("unexpected hello: %+v", hello)
	}

	r.OnWelcome(ps.Welcome{
		DeviceID: "B",
		Session: ps.SessionInfo{
			Exists:        true,
			State:         &ps.PlaybackState{Position: 12, QueueVersion: 4},
			Queue:         items("a", "b"),
			QueueVersion:  4,
			AudioDeviceID: "A",
		},
		Devices: []ps.Device{device("A", true), device("B", false)},
	})
	if r.Awaiting() || !r.Welcomed() {
		t.Fatalf("expected welcomed")
	}
	if host.selfID != "B" || len(host.devices) != 2 {
		t.Fatalf("roster not applied: %+v", host)
	}
	if host.version != 4 || len(host.queue) != 2 || host.state == nil || host.state.Position != 12 {
		t.Fatalf("replica not applied: %+v", host)
	}
	if len(host.roles) != 1 || host.roles[0] {
		t.Fatalf("expected replica role, got %v", host.roles)
	}
}

func TestResyncWelcomeRestoresAudioRole(t *testing.T) {
	host := &fakeResyncHost{}
	r, _, _ := newResyncFixture(host)
	r.OnChannelConnected()
	r.OnWelcome(ps.Welcome{
		DeviceID: "A",
		Session:  ps.SessionInfo{Exists: true, AudioDeviceID: "A", QueueVersion: 1},
		Devices:  []ps.Device{device("A", true)},
	})
	if len(host.roles) != 1 || !host.roles[0] {
		t.Fatalf("expected audio role, got %v", host.roles)
	}
}

func TestResyncWelcomeWithoutSession(t *testing.T) {
	host := &fakeResyncHost{state: &ps.PlaybackState{}}
	r, _, _ := newResyncFixture(host)
	r.OnChannelConnected()
	r.OnWelcome(ps.Welcome{
		DeviceID: "A",
		Session:  ps.SessionInfo{Reclaimable: true, State: &ps.PlaybackState{Position: 40}, Queue: items("a")},
	})
	if host.cleared != 1 || host.state != nil {
		t.Fatalf("expected replica cleared")
	}
	if host.reclaim == nil || host.reclaim.State.Position != 40 {
		t.Fatalf("expected reclaim offer, got %+v", host.reclaim)
	}
	if len(host.roles) != 1 || host.roles[0] {
		t.Fatalf("expected no role, got %v", host.roles)
	}
}

func TestResyncScheduleDebounces(t *testing.T) {
	host := &fakeResyncHost{}
	r, rec, clock := newResyncFixture(host)
	r.OnChannelConnected()
	r.OnWelcome(ps.Welcome{DeviceID: "B"})
	rec.sent = nil

	r.Schedule()
	r.Schedule()
	r.Schedule()
	clock.Advance(400 * time.Millisecond)
	if len(rec.sent) != 0 {
		t.Fatalf("hello sent before debounce: %v", rec.sent)
	}
	clock.Advance(100 * time.Millisecond)
	if len(rec.ofType(ps.MsgHello)) != 1 {
		t.Fatalf("expected one hello, got %v", rec.sent)
	}
	if !r.Awaiting() {
		t.Fatalf("expected awaiting after resync hello")
	}

	r.Schedule()
	clock.Advance(time.Second)
	if len(rec.ofType(ps.MsgHello)) != 1 {
		t.Fatalf("schedule while awaiting must not send")
	}
}

func TestResyncDisconnectCancelsSchedule(t *testing.T) {
	host := &fakeResyncHost{}
	r, rec, clock := newResyncFixture(host)
	r.OnChannelConnected()
	r.OnWelcome(ps.Welcome{DeviceID: "B"})
	rec.sent = nil

	r.Schedule()
	r.OnChannelDisconnected()
	clock.Advance(time.Second)
	if len(rec.sent) != 0 {
		t.Fatalf("expected no hello after disconnect, got %v", rec.sent)
	}
	if r.Welcomed() {
		t.Fatalf("expected gate reset")
	}
}

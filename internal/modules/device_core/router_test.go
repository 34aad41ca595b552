package devicecore

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/pkg/ps"
)

type fakeRouterHost struct {
	audio         bool
	audioID       string
	player        *fakePlayer
	queue         *Queue
	queueChanges  int
	playerChanges int
	transfers     []string
}

func (h *fakeRouterHost) isAudioDevice() bool { return h.audio }
func (h *fakeRouterHost) audioDeviceID() (string, bool) {
	return h.audioID, h.audioID != ""
}
func (h *fakeRouterHost) localPlayer() Player {
	if h.player == nil {
		return nil
	}
	return h.player
}
func (h *fakeRouterHost) localQueue() *Queue { return h.queue }
func (h *fakeRouterHost) nowMS() int64 { return 42 }
func (h *fakeRouterHost) queueChanged() { h.queueChanges++ }
func (h *fakeRouterHost) playerChanged() { h.playerChanges++ }
func (h *fakeRouterHost) becomeRequested(id string) { h.transfers = append(h.transfers, id) }

func newRouterFixture(audio bool) (*Router, *fakeRouterHost, *recorder) {
	host := &fakeRouterHost{audio: audio, player: newFakePlayer(), queue: &Queue{}}
	rec := &recorder{}
	return NewRouter(zap.NewNop(), rec.send, host), host, rec
}

func mustCommand(t *testing.T, name ps.CommandName, params any) ps.Command {
	t.Helper()
	cmd, err := ps.NewCommand(name, params)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	return cmd
}

func TestRouterForwardsToAudioDevice(t *testing.T) {
	router, host, rec := newRouterFixture(false)
	host.audioID = "dev-1"
	if err := router.Execute(mustCommand(t, ps.CmdPause, nil)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cmds := rec.ofType(ps.MsgCommand)
	if len(cmds) != 1 {
		t.Fatalf("expected one command, got %v", rec.sent)
	}
	cmd := cmds[0].Payload.(ps.Command)
	if cmd.Name != ps.CmdPause || cmd.TargetDeviceID != "dev-1" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if host.player.called("pause") {
		t.Fatalf("controller must not touch its own player")
	}
}

func TestRouterWithoutAudioDevice(t *testing.T) {
	router, _, rec := newRouterFixture(false)
	if err := router.Execute(mustCommand(t, ps.CmdPlay, nil)); !errors.Is(err, ErrNoAudioDevice) {
		t.Fatalf("expected no audio device, got %v", err)
	}
	if len(rec.sent) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestRouterAppliesLocallyOnAudioDevice(t *testing.T) {
	router, host, rec := newRouterFixture(true)
	if err := router.Execute(mustCommand(t, ps.CmdPlay, nil)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !host.player.called("play") || host.playerChanges != 1 {
		t.Fatalf("expected local play, calls %v", host.player.calls)
	}
	if len(rec.sent) != 0 {
		t.Fatalf("local execution must not send")
	}
}

func TestRouterSeekClampsToDuration(t *testing.T) {
	router, host, _ := newRouterFixture(true)
	host.player.snap.Duration = 200
	host.player.snap.Track = &ps.Track{ID: "t", Duration: 200}

	if err := router.Dispatch(mustCommand(t, ps.CmdSeek, ps.SeekParams{Position: 500})); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if host.player.seekTo != 1 {
		t.Fatalf("expected clamp to end, got %v", host.player.seekTo)
	}
	if err := router.Dispatch(mustCommand(t, ps.CmdSeek, ps.SeekParams{Position: -3})); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if host.player.seekTo != 0 {
		t.Fatalf("expected clamp to start, got %v", host.player.seekTo)
	}
	if err := router.Dispatch(mustCommand(t, ps.CmdSeek, ps.SeekParams{Position: 50})); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if host.player.seekTo != 0.25 {
		t.Fatalf("expected 0.25, got %v", host.player.seekTo)
	}
}

func TestRouterSeekWithoutDuration(t *testing.T) {
	router, _, _ := newRouterFixture(true)
	if err := router.Dispatch(mustCommand(t, ps.CmdSeek, ps.SeekParams{Position: 5})); !errors.Is(err, ErrUnknownDuration) {
		t.Fatalf("expected unknown duration, got %v", err)
	}
}

func TestRouterVolumeClamped(t *testing.T) {
	router, host, _ := newRouterFixture(true)
	if err := router.Dispatch(mustCommand(t, ps.CmdSetVolume, ps.VolumeParams{Volume: 3})); err != nil {
		t.Fatalf("volume: %v", err)
	}
	if host.player.snap.Volume != 1 {
		t.Fatalf("expected volume clamp, got %v", host.player.snap.Volume)
	}
}

func TestRouterRejectsInvalidRepeat(t *testing.T) {
	router, host, _ := newRouterFixture(true)
	if err := router.Dispatch(mustCommand(t, ps.CmdSetRepeat, ps.RepeatParams{Repeat: "twice"})); err == nil {
		t.Fatalf("expected error")
	}
	if host.player.called("repeat") {
		t.Fatalf("player must not see invalid repeat")
	}
}

func TestRouterQueueMutationsBumpVersion(t *testing.T) {
	router, host, _ := newRouterFixture(true)
	if err := router.Dispatch(mustCommand(t, ps.CmdSetQueue, ps.SetQueueParams{IDs: []string{"a", "b"}, Position: 1})); err != nil {
		t.Fatalf("set queue: %v", err)
	}
	if host.queue.Version() != 1 || host.queueChanges != 1 {
		t.Fatalf("expected version 1 and one change, got v%d changes %d", host.queue.Version(), host.queueChanges)
	}
	if len(host.player.queue) != 2 || host.player.snap.QueuePosition != 1 {
		t.Fatalf("player queue not updated: %v at %d", host.player.queue, host.player.snap.QueuePosition)
	}
	if host.queue.Items()[0].AddedAt != 42 {
		t.Fatalf("expected added_at from host clock")
	}

	if err := router.Dispatch(mustCommand(t, ps.CmdAddToQueue, ps.AddToQueueParams{IDs: []string{"c"}})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := router.Dispatch(mustCommand(t, ps.CmdMoveInQueue, ps.MoveInQueueParams{From: 2, To: 0})); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := router.Dispatch(mustCommand(t, ps.CmdRemoveFromQueue, ps.RemoveFromQueueParams{Index: 9})); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if host.queue.Version() != 3 {
		t.Fatalf("failed mutation must not bump version, got %d", host.queue.Version())
	}
	if err := router.Dispatch(mustCommand(t, ps.CmdClearQueue, nil)); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if host.queue.Len() != 0 || !host.player.called("stop") {
		t.Fatalf("expected cleared queue and stopped player")
	}
}

func TestRouterUnknownAndRegistered(t *testing.T) {
	router, _, _ := newRouterFixture(true)
	if err := router.Dispatch(ps.Command{Name: "dance"}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected unknown command, got %v", err)
	}
	called := false
	router.Register("dance", func(cmd ps.Command) error {
		called = true
		return nil
	})
	if err := router.Dispatch(ps.Command{Name: "dance"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !called {
		t.Fatalf("expected registered handler")
	}
}

func TestRouterBecomeAudioDeviceGoesToHandoff(t *testing.T) {
	router, host, _ := newRouterFixture(true)
	if err := router.Dispatch(mustCommand(t, ps.CmdBecomeAudioDevice, ps.BecomeAudioDeviceParams{TransferID: "x"})); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(host.transfers) != 1 || host.transfers[0] != "x" {
		t.Fatalf("expected handoff request, got %v", host.transfers)
	}
}

package core

import (
	"errors"
	"fmt"
	"testing"

	devicecore "github.com/mikey-austin/playsync/internal/modules/device_core"
	"github.com/mikey-austin/playsync/pkg/ps"
)

func TestErrorForHubCode(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ps.ErrCodeNoAudioDevice, ExitNoAudioDevice},
		{ps.ErrCodeUnknownTransfer, ExitNotFound},
		{ps.ErrCodeTransferInProgress, ExitConflict},
		{"register_failed", ExitConflict},
		{ps.ErrCodeInvalidMessage, ExitUsage},
		{ps.ErrCodeQueueLimitExceeded, ExitUsage},
		{"UNKNOWN", ExitRuntime},
	}

	for _, test := range tests {
		err := ErrorForHubCode(test.code, "message")
		if err.Code != test.expected {
			t.Fatalf("code %s expected %d got %d", test.code, test.expected, err.Code)
		}
	}
}

func TestSessionErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{devicecore.ErrNoAudioDevice, ExitNoAudioDevice},
		{devicecore.ErrAudioDeviceActive, ExitConflict},
		{devicecore.ErrTransferInProgress, ExitConflict},
		{devicecore.ErrNothingToReclaim, ExitNotFound},
		{fmt.Errorf("removeFromQueue: %w", devicecore.ErrIndexOutOfRange), ExitUsage},
		{errors.New("boom"), ExitRuntime},
	}
	for _, test := range tests {
		err := sessionError("op", test.err)
		if ExitCode(err) != test.expected {
			t.Fatalf("%v expected %d got %d", test.err, test.expected, ExitCode(err))
		}
		if !errors.Is(err, test.err) {
			t.Fatalf("expected wrapped %v", test.err)
		}
	}
	if sessionError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestExitCodeUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &CLIError{Code: ExitConflict, Msg: "inner"})
	if ExitCode(wrapped) != ExitConflict {
		t.Fatalf("expected conflict exit code")
	}
	if ExitCode(nil) != ExitOK {
		t.Fatalf("expected ok")
	}
	if ExitCode(errors.New("x")) != ExitRuntime {
		t.Fatalf("expected runtime")
	}
}

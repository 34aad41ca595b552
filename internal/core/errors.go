package core

import (
	"errors"
	"fmt"

	devicecore "github.com/mikey-austin/playsync/internal/modules/device_core"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitRuntime       = 1
	ExitUsage         = 2
	ExitNoAudioDevice = 3
	ExitNotFound      = 4
	ExitConflict      = 5
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// ErrorForHubCode maps hub error codes to CLI exit codes.
func ErrorForHubCode(code string, message string) *CLIError {
	if message == "" {
		message = code
	}
	switch code {
	case ps.ErrCodeNoAudioDevice:
		return &CLIError{Code: ExitNoAudioDevice, Msg: message}
	case ps.ErrCodeUnknownTransfer:
		return &CLIError{Code: ExitNotFound, Msg: message}
	case ps.ErrCodeTransferInProgress, registerFailed:
		return &CLIError{Code: ExitConflict, Msg: message}
	case ps.ErrCodeInvalidMessage, ps.ErrCodeQueueLimitExceeded:
		return &CLIError{Code: ExitUsage, Msg: message}
	default:
		return &CLIError{Code: ExitRuntime, Msg: message}
	}
}

const registerFailed = "register_failed"

// sessionError maps device session errors to CLI errors.
func sessionError(msg string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, devicecore.ErrNoAudioDevice):
		return WrapError(ExitNoAudioDevice, msg, err)
	case errors.Is(err, devicecore.ErrAudioDeviceActive),
		errors.Is(err, devicecore.ErrTransferInProgress),
		errors.Is(err, devicecore.ErrClaimPending),
		errors.Is(err, devicecore.ErrAlreadyAudioDevice):
		return WrapError(ExitConflict, msg, err)
	case errors.Is(err, devicecore.ErrNothingToReclaim),
		errors.Is(err, devicecore.ErrUnknownDevice):
		return WrapError(ExitNotFound, msg, err)
	case errors.Is(err, devicecore.ErrIndexOutOfRange),
		errors.Is(err, devicecore.ErrQueueFull),
		errors.Is(err, devicecore.ErrUnknownCommand),
		errors.Is(err, devicecore.ErrUnknownDuration):
		return WrapError(ExitUsage, msg, err)
	default:
		return WrapError(ExitRuntime, msg, err)
	}
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitRuntime
}

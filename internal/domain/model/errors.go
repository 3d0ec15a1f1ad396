package model

import (
	"errors"
	"fmt"
	"strings"
)

const GenericFailureMessage = "Request failed"

var (
	ErrProviderUnavailable = errors.New("ad provider is not configured, contact the admin")
	ErrGuardRejected       = errors.New("multiple accounts detected on this device, action blocked")
	ErrSessionActive       = errors.New("task already has an active ad session")
	ErrTaskCoolingDown     = errors.New("task is still cooling down")
	ErrSimulateNotAllowed  = errors.New("simulation is not allowed for this session")
)

// ProviderLoadError reports that the provider script could not be fetched or
// executed.
type ProviderLoadError struct {
	URL string
	Err error
}

func (e *ProviderLoadError) Error() string {
	return fmt.Sprintf("failed to load provider script %s: %v", e.URL, e.Err)
}

func (e *ProviderLoadError) Unwrap() error { return e.Err }

// SessionStartError is the server refusing to open a session for a task.
type SessionStartError struct {
	TaskID int
	Detail string
	Err    error
}

func (e *SessionStartError) Error() string {
	if strings.TrimSpace(e.Detail) != "" {
		return e.Detail
	}
	return GenericFailureMessage
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// DisplayInvocationError means the provider loaded but its show function is
// not registered under the advertised name.
type DisplayInvocationError struct {
	Function string
}

func (e *DisplayInvocationError) Error() string {
	return fmt.Sprintf("provider function not found: %s", e.Function)
}

// NetworkError wraps a transport failure or non-success status on any call.
type NetworkError struct {
	Op     string
	Detail string
	Err    error
}

func (e *NetworkError) Error() string {
	if strings.TrimSpace(e.Detail) != "" {
		return e.Detail
	}
	return GenericFailureMessage
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UserMessage renders err as the short message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		startErr   *SessionStartError
		netErr     *NetworkError
		loadErr    *ProviderLoadError
		displayErr *DisplayInvocationError
	)
	switch {
	case errors.As(err, &startErr):
		return startErr.Error()
	case errors.As(err, &netErr):
		return netErr.Error()
	case errors.As(err, &loadErr):
		return "Failed to load provider script"
	case errors.As(err, &displayErr):
		return displayErr.Error()
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrGuardRejected),
		errors.Is(err, ErrSessionActive),
		errors.Is(err, ErrTaskCoolingDown),
		errors.Is(err, ErrSimulateNotAllowed):
		return err.Error()
	}
	return GenericFailureMessage
}

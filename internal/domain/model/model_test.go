package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewProviderConfigConfigured(t *testing.T) {
	cfg := NewProviderConfig("monetag", true, "https://cdn.example/sdk.js", "", "9001", "u1_t2_abc", "task_2")
	configured, ok := cfg.(ConfiguredProvider)
	if !ok {
		t.Fatalf("expected configured provider, got %T", cfg)
	}
	if configured.ShowFunction != "show_9001" {
		t.Fatalf("expected default show function show_9001, got %q", configured.ShowFunction)
	}
	if configured.YMID != "u1_t2_abc" || configured.RequestVar != "task_2" {
		t.Fatalf("unexpected correlation fields: %+v", configured)
	}
}

func TestNewProviderConfigUnconfigured(t *testing.T) {
	cases := []struct {
		name    string
		enabled bool
		sdk     string
		showFn  string
		zone    string
	}{
		{name: "disabled", enabled: false, sdk: "https://cdn.example/sdk.js", showFn: "show"},
		{name: "no sdk", enabled: true, showFn: "show"},
		{name: "no show function or zone", enabled: true, sdk: "https://cdn.example/sdk.js"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewProviderConfig("monetag", tc.enabled, tc.sdk, tc.showFn, tc.zone, "", "")
			if _, ok := cfg.(UnconfiguredProvider); !ok {
				t.Fatalf("expected unconfigured provider, got %T", cfg)
			}
		})
	}
}

func TestTaskReady(t *testing.T) {
	if !(Task{ID: 1}).Ready() {
		t.Fatal("cooled down task without session should be ready")
	}
	if (Task{ID: 1, RemainingSeconds: 3}).Ready() {
		t.Fatal("cooling task should not be ready")
	}
	if (Task{ID: 1, ActiveSessionID: "sid"}).Ready() {
		t.Fatal("in-flight task should not be ready")
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{err: &SessionStartError{TaskID: 1, Detail: "Task on cooldown: 12s"}, want: "Task on cooldown: 12s"},
		{err: &SessionStartError{TaskID: 1}, want: GenericFailureMessage},
		{err: fmt.Errorf("poll: %w", &NetworkError{Op: "status", Detail: "Ad session not found"}), want: "Ad session not found"},
		{err: &NetworkError{Op: "status", Err: context.DeadlineExceeded}, want: GenericFailureMessage},
		{err: &ProviderLoadError{URL: "x", Err: errors.New("404")}, want: "Failed to load provider script"},
		{err: &DisplayInvocationError{Function: "show_1"}, want: "provider function not found: show_1"},
		{err: ErrGuardRejected, want: ErrGuardRejected.Error()},
		{err: errors.New("boom"), want: GenericFailureMessage},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

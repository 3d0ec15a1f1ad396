package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
)

type fakeFetcher struct {
	calls   atomic.Int32
	delay   time.Duration
	body    []byte
	err     error
	blocked chan struct{}
}

func (f *fakeFetcher) FetchScript(ctx context.Context, scriptURL string) ([]byte, error) {
	f.calls.Add(1)
	if f.blocked != nil {
		close(f.blocked)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.body, f.err
}

func newRuntime(t *testing.T) *OttoRuntime {
	t.Helper()
	rt, err := NewOttoRuntime("", "https://mapp.local/task")
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	return rt
}

func TestLoaderInjectsOncePerURL(t *testing.T) {
	fetcher := &fakeFetcher{delay: 20 * time.Millisecond, body: []byte(`function show_9001() {}`)}
	loader := NewLoader(context.Background(), fetcher, newRuntime(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loader.EnsureLoaded(context.Background(), "https://cdn.example/sdk.js"); err != nil {
				t.Errorf("ensure loaded: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := loader.EnsureLoaded(context.Background(), "https://cdn.example/sdk.js"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if loader.Injections() != 1 {
		t.Fatalf("expected one injection, got %d", loader.Injections())
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.calls.Load())
	}
}

func TestLoaderReportsFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("404 Not Found")}
	loader := NewLoader(context.Background(), fetcher, newRuntime(t))

	err := loader.EnsureLoaded(context.Background(), "https://cdn.example/missing.js")
	var loadErr *model.ProviderLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ProviderLoadError, got %v", err)
	}
	if loadErr.URL != "https://cdn.example/missing.js" {
		t.Fatalf("unexpected url %q", loadErr.URL)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("load must not retry, got %d fetches", fetcher.calls.Load())
	}
	if loader.Injections() != 0 {
		t.Fatalf("failed fetch must not count as injection")
	}
}

func TestLoaderReportsScriptError(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(`this is not javascript (`)}
	loader := NewLoader(context.Background(), fetcher, newRuntime(t))

	err := loader.EnsureLoaded(context.Background(), "https://cdn.example/broken.js")
	var loadErr *model.ProviderLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ProviderLoadError, got %v", err)
	}
}

func TestLoaderStopsWithBaseContext(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{blocked: make(chan struct{})}
	loader := NewLoader(base, fetcher, newRuntime(t))

	done := make(chan error, 1)
	go func() {
		done <- loader.EnsureLoaded(context.Background(), "https://cdn.example/slow.js")
	}()

	<-fetcher.blocked
	cancel()

	select {
	case err := <-done:
		var loadErr *model.ProviderLoadError
		if !errors.As(err, &loadErr) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancelled ProviderLoadError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("shared load outlived its base context")
	}
}

func TestLoaderCallerCancelDoesNotAbortSharedLoad(t *testing.T) {
	fetcher := &fakeFetcher{delay: 30 * time.Millisecond, body: []byte(`function show_2() {}`)}
	loader := NewLoader(context.Background(), fetcher, newRuntime(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := loader.EnsureLoaded(ctx, "https://cdn.example/sdk.js"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}

	if err := loader.EnsureLoaded(context.Background(), "https://cdn.example/sdk.js"); err != nil {
		t.Fatalf("second caller: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected the first load to finish and be shared, got %d fetches", fetcher.calls.Load())
	}
}

func TestLoaderRejectsEmptyURL(t *testing.T) {
	loader := NewLoader(context.Background(), &fakeFetcher{}, newRuntime(t))
	var loadErr *model.ProviderLoadError
	if err := loader.EnsureLoaded(context.Background(), " "); !errors.As(err, &loadErr) {
		t.Fatalf("expected ProviderLoadError, got %v", err)
	}
}

func TestOttoRuntimeCallsShowFunction(t *testing.T) {
	rt := newRuntime(t)
	script := `
var lastZone = "";
var calls = 0;
function show_9001(opts) {
	calls++;
	lastZone = opts ? opts.zoneId + "/" + opts.ymid : "none";
}`
	if err := rt.Execute([]byte(script), "inline"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	fn, ok := rt.Lookup("show_9001")
	if !ok {
		t.Fatal("expected show_9001 to resolve")
	}
	if err := fn(context.Background(), &DisplayArgs{ZoneID: "9001", YMID: "u1_t2_x"}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got, _ := rt.Eval("lastZone"); got != "9001/u1_t2_x" {
		t.Fatalf("unexpected lastZone %q", got)
	}

	if err := fn(context.Background(), nil); err != nil {
		t.Fatalf("call without args: %v", err)
	}
	if got, _ := rt.Eval("lastZone"); got != "none" {
		t.Fatalf("expected argless call, got %q", got)
	}
	if got, _ := rt.Eval("calls"); got != "2" {
		t.Fatalf("expected 2 calls, got %q", got)
	}
}

func TestOttoRuntimeLookupMissing(t *testing.T) {
	rt := newRuntime(t)
	if _, ok := rt.Lookup("show_missing"); ok {
		t.Fatal("undefined function must not resolve")
	}
	if err := rt.Execute([]byte(`var show_value = 3;`), "inline"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := rt.Lookup("show_value"); ok {
		t.Fatal("non-function global must not resolve")
	}
}

func TestOttoRuntimeSurfacesThrow(t *testing.T) {
	rt := newRuntime(t)
	if err := rt.Execute([]byte(`function show_1() { throw new Error("no fill"); }`), "inline"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	fn, ok := rt.Lookup("show_1")
	if !ok {
		t.Fatal("expected show_1")
	}
	if err := fn(context.Background(), &DisplayArgs{}); err == nil {
		t.Fatal("expected thrown error to surface")
	}
}

func TestOttoRuntimeSettlesThenables(t *testing.T) {
	rt := newRuntime(t)
	script := `
var fulfilled = 0;
function show_ok() { return { then: function (ok, fail) { fulfilled++; ok(); } }; }
function show_rejected() { return { then: function (ok, fail) { fail("no fill"); } }; }
function show_plain() { return { then: 3 }; }`
	if err := rt.Execute([]byte(script), "inline"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	ok, _ := rt.Lookup("show_ok")
	if err := ok(context.Background(), &DisplayArgs{}); err != nil {
		t.Fatalf("fulfilled thenable: %v", err)
	}
	if got, _ := rt.Eval("fulfilled"); got != "1" {
		t.Fatalf("then should be invoked once, got %q", got)
	}

	rejected, _ := rt.Lookup("show_rejected")
	err := rejected(context.Background(), &DisplayArgs{})
	if err == nil || !strings.Contains(err.Error(), "no fill") {
		t.Fatalf("rejection should surface, got %v", err)
	}

	plain, _ := rt.Lookup("show_plain")
	if err := plain(context.Background(), nil); err != nil {
		t.Fatalf("non-function then is not a thenable: %v", err)
	}
}

func TestRegistriesResolveInOrder(t *testing.T) {
	native := NewMapRegistry()
	var hit string
	native.Register("show_1", func(ctx context.Context, args *DisplayArgs) error {
		hit = "native"
		return nil
	})

	rt := newRuntime(t)
	if err := rt.Execute([]byte(`function show_1() {} function show_2() {}`), "inline"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	reg := Registries{native, nil, rt}
	fn, ok := reg.Lookup("show_1")
	if !ok {
		t.Fatal("expected show_1")
	}
	_ = fn(context.Background(), nil)
	if hit != "native" {
		t.Fatal("expected native registry to win")
	}
	if _, ok := reg.Lookup("show_2"); !ok {
		t.Fatal("expected show_2 from script runtime")
	}
	if _, ok := reg.Lookup("show_3"); ok {
		t.Fatal("show_3 should not resolve")
	}
}

package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
)

type ScriptFetcher interface {
	FetchScript(ctx context.Context, scriptURL string) ([]byte, error)
}

// Runtime executes a provider script so that the functions it defines become
// resolvable by name.
type Runtime interface {
	Execute(source []byte, origin string) error
}

// Loader fetches and executes each provider script at most once per process.
// Concurrent callers for the same URL share one in-flight load, which lives
// as long as the loader's base context rather than any single caller.
type Loader struct {
	base    context.Context
	fetcher ScriptFetcher
	runtime Runtime
	group   singleflight.Group
	log     *logger.ClassLogger

	mu         sync.Mutex
	loaded     map[string]bool
	injections int
}

func NewLoader(base context.Context, fetcher ScriptFetcher, runtime Runtime) *Loader {
	if base == nil {
		base = context.Background()
	}
	l := &Loader{
		base:    base,
		fetcher: fetcher,
		runtime: runtime,
		loaded:  make(map[string]bool),
	}
	l.log = logger.NewLogger(l)
	return l
}

// EnsureLoaded does not retry; a failed load leaves the URL unloaded so a
// later call may try again.
func (l *Loader) EnsureLoaded(ctx context.Context, sdkURL string) error {
	sdkURL = strings.TrimSpace(sdkURL)
	if sdkURL == "" {
		return &model.ProviderLoadError{URL: sdkURL, Err: fmt.Errorf("empty script url")}
	}
	if l.isLoaded(sdkURL) {
		return nil
	}

	ch := l.group.DoChan(sdkURL, func() (interface{}, error) {
		if l.isLoaded(sdkURL) {
			return nil, nil
		}
		return nil, l.load(l.base, sdkURL)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (l *Loader) load(ctx context.Context, sdkURL string) error {
	l.log.JustLog(fmt.Sprintf("Loading provider script %s", sdkURL))
	source, err := l.fetcher.FetchScript(ctx, sdkURL)
	if err != nil {
		return &model.ProviderLoadError{URL: sdkURL, Err: err}
	}

	l.mu.Lock()
	l.injections++
	l.mu.Unlock()

	if err := l.runtime.Execute(source, sdkURL); err != nil {
		return &model.ProviderLoadError{URL: sdkURL, Err: err}
	}

	l.mu.Lock()
	l.loaded[sdkURL] = true
	l.mu.Unlock()
	l.log.JustLog(fmt.Sprintf("Provider script %s loaded", sdkURL))
	return nil
}

func (l *Loader) isLoaded(sdkURL string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[sdkURL]
}

// Injections reports how many times a script body was handed to the runtime.
func (l *Loader) Injections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.injections
}

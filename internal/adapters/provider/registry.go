package provider

import (
	"context"
	"strings"
	"sync"
)

// DisplayArgs are passed to a show function. A nil *DisplayArgs means the
// function is invoked without arguments.
type DisplayArgs struct {
	ZoneID     string
	YMID       string
	RequestVar string
	// Format selects an ad unit variant, e.g. "video". Empty means default.
	Format string
}

type DisplayFunc func(ctx context.Context, args *DisplayArgs) error

type Registry interface {
	Lookup(name string) (DisplayFunc, bool)
}

// MapRegistry holds natively implemented show functions.
type MapRegistry struct {
	mu    sync.RWMutex
	funcs map[string]DisplayFunc
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{funcs: make(map[string]DisplayFunc)}
}

func (r *MapRegistry) Register(name string, fn DisplayFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[strings.TrimSpace(name)] = fn
}

func (r *MapRegistry) Lookup(name string) (DisplayFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[strings.TrimSpace(name)]
	return fn, ok && fn != nil
}

// Registries resolves a name against each registry in order.
type Registries []Registry

func (rs Registries) Lookup(name string) (DisplayFunc, bool) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if fn, ok := r.Lookup(name); ok {
			return fn, true
		}
	}
	return nil, false
}

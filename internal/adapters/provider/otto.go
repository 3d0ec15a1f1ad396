package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robertkrimen/otto"
)

// OttoRuntime runs provider SDK scripts in an in-process JavaScript VM and
// exposes the functions they define as DisplayFuncs. The VM is not safe for
// concurrent use, so every access holds mu.
type OttoRuntime struct {
	vm *otto.Otto
	mu sync.Mutex
}

func NewOttoRuntime(userAgent, pageURL string) (*OttoRuntime, error) {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; mapp-task-bot/1.0)"
	}
	vm := otto.New()

	// Timers are accepted but never fire; SDKs only use them for UI polish.
	bootstrap := fmt.Sprintf(`
var window = this;
var self = this;
var document = { cookie: "", head: {}, body: {}, createElement: function () { return {}; } };
var navigator = { userAgent: %q };
var location = { href: %q };
window.location = location;
function setTimeout() { return 0; }
function clearTimeout() {}
function setInterval() { return 0; }
function clearInterval() {}
`, userAgent, pageURL)

	if _, err := vm.Run(bootstrap); err != nil {
		return nil, fmt.Errorf("provider: bootstrap JS globals: %w", err)
	}
	return &OttoRuntime{vm: vm}, nil
}

func (r *OttoRuntime) Execute(source []byte, origin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.vm.Run(string(source)); err != nil {
		return fmt.Errorf("provider: execute %s: %w", origin, err)
	}
	return nil
}

func (r *OttoRuntime) Lookup(name string) (DisplayFunc, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}

	r.mu.Lock()
	fn, err := r.vm.Get(name)
	r.mu.Unlock()
	if err != nil || !fn.IsFunction() {
		return nil, false
	}

	return func(ctx context.Context, args *DisplayArgs) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var callArgs []interface{}
		if args != nil {
			opts := map[string]interface{}{
				"ymid":       args.YMID,
				"requestVar": args.RequestVar,
				"zoneId":     args.ZoneID,
			}
			if args.Format != "" {
				opts["type"] = args.Format
			}
			callArgs = append(callArgs, opts)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		result, err := fn.Call(otto.UndefinedValue(), callArgs...)
		if err != nil {
			return fmt.Errorf("provider: call %s: %w", name, err)
		}
		return settleThenable(name, result)
	}, true
}

// settleThenable waits on a returned thenable. The VM has no event loop, so
// only callbacks invoked synchronously from then are observed; a thenable
// that never calls back counts as settled.
func settleThenable(name string, result otto.Value) error {
	if !result.IsObject() {
		return nil
	}
	obj := result.Object()
	then, err := obj.Get("then")
	if err != nil || !then.IsFunction() {
		return nil
	}

	var rejected error
	onFulfilled := func(call otto.FunctionCall) otto.Value {
		return otto.UndefinedValue()
	}
	onRejected := func(call otto.FunctionCall) otto.Value {
		rejected = fmt.Errorf("provider: %s rejected: %s", name, call.Argument(0).String())
		return otto.UndefinedValue()
	}
	if _, err := obj.Call("then", onFulfilled, onRejected); err != nil {
		return fmt.Errorf("provider: await %s: %w", name, err)
	}
	return rejected
}

// Eval is a debugging hook that returns the string value of an expression.
func (r *OttoRuntime) Eval(expr string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	val, err := r.vm.Run(expr)
	if err != nil {
		return "", fmt.Errorf("provider: eval: %w", err)
	}
	return val.ToString()
}

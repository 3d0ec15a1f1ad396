package adsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ohmynofan/mapp-task-bot/internal/adapters/provider"
	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
	"github.com/ohmynofan/mapp-task-bot/internal/storage/localstore"
	"github.com/ohmynofan/mapp-task-bot/pkg/utils"
)

type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseStarting             Phase = "starting"
	PhaseAwaitingProviderLoad Phase = "awaiting_provider_load"
	PhaseAwaitingDisplay      Phase = "awaiting_display"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseCredited             Phase = "credited"
	PhaseAbandoned            Phase = "abandoned"
	PhaseFailed               Phase = "failed"
)

func (p Phase) Terminal() bool {
	return p == PhaseCredited || p == PhaseAbandoned || p == PhaseFailed
}

// Outcome describes one attempt. Trail lists every phase entered, in order.
type Outcome struct {
	TaskID    int
	SessionID string
	Phase     Phase
	Trail     []Phase
	Simulated bool
	Polls     int
	Status    model.SessionStatus
}

type Backend interface {
	StartTask(ctx context.Context, identity model.Identity, taskID int) (model.AdSession, error)
	Session(ctx context.Context, sessionID string) (model.AdSession, error)
	ClientDone(ctx context.Context, sessionID string) error
	SimulateValued(ctx context.Context, sessionID string) error
	SessionStatus(ctx context.Context, sessionID string) (model.SessionStatus, error)
}

type ScriptLoader interface {
	EnsureLoaded(ctx context.Context, sdkURL string) error
}

type Gate interface {
	Allow() error
}

type TaskLookup interface {
	Task(id int) (model.Task, bool)
}

type Refresher interface {
	Refresh(ctx context.Context) error
}

type Journal interface {
	RecordSession(sessionID string, taskID int, outcome, detail, balance string, at time.Time) error
}

type Deps struct {
	Identity  model.Identity
	Backend   Backend
	Loader    ScriptLoader
	Registry  provider.Registry
	Guard     Gate
	Tasks     TaskLookup
	Refresher Refresher
	Journal   Journal
}

type Options struct {
	PollAttempts int
	PollInterval time.Duration
}

func DefaultOptions() Options {
	return Options{PollAttempts: 20, PollInterval: 1500 * time.Millisecond}
}

// Controller drives task attempts from start to a terminal phase. It never
// edits task state itself; task state only changes through Refresher.
//
// A task whose attempt ended Failed or Abandoned after the server opened a
// session is held back until a refresh taken after that attempt succeeds,
// since the local snapshot cannot show the session the server may still hold.
type Controller struct {
	deps Deps
	opts Options
	wait func(ctx context.Context, d time.Duration) error
	now  func() time.Time
	log  *logger.ClassLogger

	mu       sync.Mutex
	inFlight map[int]bool
	stale    map[int]uint64
	marks    uint64
}

func NewController(deps Deps, opts Options) *Controller {
	def := DefaultOptions()
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = def.PollAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	c := &Controller{
		deps:     deps,
		opts:     opts,
		wait:     sleepCtx,
		now:      time.Now,
		inFlight: make(map[int]bool),
		stale:    make(map[int]uint64),
	}
	c.log = logger.NewLogger(c)
	return c
}

// Start runs a full attempt for taskID. Refusals that happen before any
// network call leave the outcome in PhaseIdle.
func (c *Controller) Start(ctx context.Context, taskID int) (out Outcome, err error) {
	out = Outcome{TaskID: taskID}
	c.enter(&out, PhaseIdle)

	if c.deps.Guard != nil {
		if err := c.deps.Guard.Allow(); err != nil {
			c.log.Log(fmt.Sprintf("Task %d blocked: %s", taskID, model.UserMessage(err)))
			return out, err
		}
	}
	if err := c.confirmFresh(ctx, taskID); err != nil {
		c.log.Log(fmt.Sprintf("Task %d waits for a state refresh: %s", taskID, model.UserMessage(err)))
		return out, err
	}
	if c.deps.Tasks != nil {
		if task, ok := c.deps.Tasks.Task(taskID); ok {
			if task.InFlight() {
				return out, model.ErrSessionActive
			}
			if task.RemainingSeconds > 0 {
				return out, model.ErrTaskCoolingDown
			}
		}
	}
	if !c.acquire(taskID) {
		return out, model.ErrSessionActive
	}
	defer func() { c.settle(taskID, out) }()

	c.enter(&out, PhaseStarting)
	c.log.Log(fmt.Sprintf("Starting task %d", taskID))
	session, err := c.deps.Backend.StartTask(ctx, c.deps.Identity, taskID)
	if err != nil {
		return c.fail(out, err)
	}
	out.SessionID = session.SessionID
	return c.drive(ctx, session, out)
}

// Watch picks up an existing session from the provider stage onward. A
// session the server already credited finishes immediately.
func (c *Controller) Watch(ctx context.Context, sessionID string) (out Outcome, err error) {
	out = Outcome{SessionID: sessionID}
	c.enter(&out, PhaseIdle)

	session, err := c.deps.Backend.Session(ctx, sessionID)
	if err != nil {
		return c.fail(out, err)
	}
	out.TaskID = session.Task.ID

	if session.Credited {
		status := model.SessionStatus{Status: session.Status, Credited: true}
		return c.credit(ctx, out, status)
	}

	if taskID := out.TaskID; taskID != 0 {
		if !c.acquire(taskID) {
			return out, model.ErrSessionActive
		}
		defer func() { c.settle(taskID, out) }()
	}
	c.log.Log(fmt.Sprintf("Continuing session %s for task %d", sessionID, out.TaskID))
	return c.drive(ctx, session, out)
}

// Simulate asks the server to mark a session valued and checks its status
// once. Only sessions granted allow_simulate may use it.
func (c *Controller) Simulate(ctx context.Context, sessionID string) (Outcome, error) {
	out := Outcome{SessionID: sessionID}
	c.enter(&out, PhaseIdle)

	session, err := c.deps.Backend.Session(ctx, sessionID)
	if err != nil {
		return c.fail(out, err)
	}
	out.TaskID = session.Task.ID
	if session.Credited {
		return c.credit(ctx, out, model.SessionStatus{Status: session.Status, Credited: true})
	}
	if !session.AllowSimulate {
		return out, model.ErrSimulateNotAllowed
	}

	if err := c.deps.Backend.SimulateValued(ctx, sessionID); err != nil {
		return c.fail(out, err)
	}
	out.Simulated = true
	c.enter(&out, PhaseAwaitingConfirmation)
	return c.poll(ctx, out, 1)
}

func (c *Controller) InFlight(taskID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[taskID]
}

func (c *Controller) drive(ctx context.Context, session model.AdSession, out Outcome) (Outcome, error) {
	c.enter(&out, PhaseAwaitingProviderLoad)

	switch p := session.Provider.(type) {
	case model.ConfiguredProvider:
		display, err := c.resolveDisplay(ctx, p)
		if err != nil {
			return c.fail(out, err)
		}

		c.enter(&out, PhaseAwaitingDisplay)
		c.display(ctx, display, p, c.kindOf(session, out.TaskID), out.TaskID)

		if err := c.deps.Backend.ClientDone(ctx, out.SessionID); err != nil {
			return c.fail(out, err)
		}

	case model.UnconfiguredProvider:
		if !session.AllowSimulate {
			return c.fail(out, model.ErrProviderUnavailable)
		}
		c.log.Log(fmt.Sprintf("Provider not configured, simulating session %s", out.SessionID))
		if err := c.deps.Backend.SimulateValued(ctx, out.SessionID); err != nil {
			return c.fail(out, err)
		}
		out.Simulated = true

	default:
		return c.fail(out, model.ErrProviderUnavailable)
	}

	c.enter(&out, PhaseAwaitingConfirmation)
	return c.poll(ctx, out, c.opts.PollAttempts)
}

// resolveDisplay skips the script load when the function is already known.
func (c *Controller) resolveDisplay(ctx context.Context, p model.ConfiguredProvider) (provider.DisplayFunc, error) {
	if c.deps.Registry != nil {
		if fn, ok := c.deps.Registry.Lookup(p.ShowFunction); ok {
			return fn, nil
		}
	}
	if c.deps.Loader == nil {
		return nil, &model.ProviderLoadError{URL: p.SDKURL, Err: errors.New("no script loader")}
	}

	c.log.Log(fmt.Sprintf("Loading %s provider", p.Name))
	if err := c.deps.Loader.EnsureLoaded(ctx, p.SDKURL); err != nil {
		return nil, err
	}
	if c.deps.Registry != nil {
		if fn, ok := c.deps.Registry.Lookup(p.ShowFunction); ok {
			return fn, nil
		}
	}
	return nil, &model.DisplayInvocationError{Function: p.ShowFunction}
}

// display never fails the attempt. Video units get a second, argument-free
// call when the first one throws, since SDKs disagree on the signature.
func (c *Controller) display(ctx context.Context, fn provider.DisplayFunc, p model.ConfiguredProvider, kind model.TaskKind, taskID int) {
	args := &provider.DisplayArgs{
		ZoneID:     p.ZoneID,
		YMID:       p.YMID,
		RequestVar: p.RequestVar,
	}
	if args.YMID == "" {
		args.YMID = fmt.Sprintf("u%d_t%d_%s", c.deps.Identity.PlatformUserID, taskID, strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	}
	if kind == model.KindVideo {
		args.Format = string(model.KindVideo)
	}

	c.log.Log(fmt.Sprintf("Opening ad via %s", p.ShowFunction))
	err := fn(ctx, args)
	if err == nil {
		return
	}
	if kind != model.KindVideo {
		c.log.JustLog(fmt.Sprintf("Warning: %s returned %v", p.ShowFunction, err))
		return
	}

	c.log.JustLog(fmt.Sprintf("Warning: %s rejected video arguments (%v), retrying without arguments", p.ShowFunction, err))
	if err := fn(ctx, nil); err != nil {
		c.log.JustLog(fmt.Sprintf("Warning: %s fallback returned %v", p.ShowFunction, err))
	}
}

func (c *Controller) kindOf(session model.AdSession, taskID int) model.TaskKind {
	if session.Task.Kind != "" {
		return session.Task.Kind
	}
	if c.deps.Tasks != nil {
		if task, ok := c.deps.Tasks.Task(taskID); ok {
			return task.Kind
		}
	}
	return model.KindWeb
}

func (c *Controller) poll(ctx context.Context, out Outcome, attempts int) (Outcome, error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := c.deps.Backend.SessionStatus(ctx, out.SessionID)
		out.Polls = attempt
		if err != nil {
			if ctx.Err() != nil {
				return c.abandon(out), ctx.Err()
			}
			return c.fail(out, err)
		}
		if status.Credited {
			return c.credit(ctx, out, status)
		}
		if attempt == attempts {
			break
		}
		if err := c.wait(ctx, c.opts.PollInterval); err != nil {
			return c.abandon(out), err
		}
	}
	return c.abandon(out), nil
}

func (c *Controller) credit(ctx context.Context, out Outcome, status model.SessionStatus) (Outcome, error) {
	out.Status = status
	c.enter(&out, PhaseCredited)

	balance := ""
	if status.HasBalance {
		balance = status.Balance.String()
		c.log.Log(fmt.Sprintf("Task %d credited, balance %s", out.TaskID, utils.FormatUSD(status.Balance)))
	} else {
		c.log.Log(fmt.Sprintf("Task %d credited", out.TaskID))
	}
	c.record(out, localstore.OutcomeCredit, "", balance)

	if c.deps.Refresher != nil {
		if err := c.refresh(ctx); err != nil {
			c.log.JustLog(fmt.Sprintf("Warning: refresh after credit failed: %v", err))
		}
	}
	return out, nil
}

// refresh reloads state and lifts every hold marked before it began.
func (c *Controller) refresh(ctx context.Context) error {
	c.mu.Lock()
	seen := c.marks
	c.mu.Unlock()

	if err := c.deps.Refresher.Refresh(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	for taskID, mark := range c.stale {
		if mark <= seen {
			delete(c.stale, taskID)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) confirmFresh(ctx context.Context, taskID int) error {
	c.mu.Lock()
	_, held := c.stale[taskID]
	c.mu.Unlock()
	if !held {
		return nil
	}
	if c.deps.Refresher == nil {
		return model.ErrSessionActive
	}
	return c.refresh(ctx)
}

// abandon stops watching. The session stays open server-side and may still be
// credited by a late postback.
func (c *Controller) abandon(out Outcome) Outcome {
	c.enter(&out, PhaseAbandoned)
	c.log.Log(fmt.Sprintf("No credit yet for session %s after %d checks, will pick it up on refresh", out.SessionID, out.Polls))
	c.record(out, localstore.OutcomeMissed, "", "")
	return out
}

func (c *Controller) fail(out Outcome, err error) (Outcome, error) {
	c.enter(&out, PhaseFailed)
	msg := model.UserMessage(err)
	c.log.Log(fmt.Sprintf("Task %d failed: %s", out.TaskID, msg))
	c.log.JustLog(fmt.Sprintf("Task %d failure detail: %v", out.TaskID, err))
	c.record(out, localstore.OutcomeFailed, msg, "")
	return out, err
}

func (c *Controller) record(out Outcome, outcome, detail, balance string) {
	if c.deps.Journal == nil || out.SessionID == "" {
		return
	}
	if err := c.deps.Journal.RecordSession(out.SessionID, out.TaskID, outcome, detail, balance, c.now()); err != nil {
		c.log.JustLog(fmt.Sprintf("Warning: could not journal session %s: %v", out.SessionID, err))
	}
}

func (c *Controller) enter(out *Outcome, phase Phase) {
	out.Phase = phase
	out.Trail = append(out.Trail, phase)
}

func (c *Controller) acquire(taskID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[taskID] {
		return false
	}
	c.inFlight[taskID] = true
	return true
}

// settle frees the task and holds it when the server may still consider its
// session open.
func (c *Controller) settle(taskID int, out Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, taskID)
	if out.SessionID != "" && (out.Phase == PhaseFailed || out.Phase == PhaseAbandoned) {
		c.marks++
		c.stale[taskID] = c.marks
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

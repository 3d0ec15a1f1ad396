package app

import (
	"context"
	"fmt"
	"time"

	adhttp "github.com/ohmynofan/mapp-task-bot/internal/adapters/http"
	"github.com/ohmynofan/mapp-task-bot/internal/adapters/provider"
	"github.com/ohmynofan/mapp-task-bot/internal/app/adsession"
	"github.com/ohmynofan/mapp-task-bot/internal/app/cooldown"
	"github.com/ohmynofan/mapp-task-bot/internal/app/guard"
	"github.com/ohmynofan/mapp-task-bot/internal/app/withdraw"
	"github.com/ohmynofan/mapp-task-bot/internal/app/worker"
	"github.com/ohmynofan/mapp-task-bot/internal/config"
	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/identity"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/ui"
	"github.com/ohmynofan/mapp-task-bot/internal/storage/localstore"
)

// RunOptions selects what a single run does. With nothing set the bot works
// the task board until cancelled.
type RunOptions struct {
	SessionID string
	Simulate  bool
	Withdraw  *model.Withdrawal
}

type App struct {
	cfg config.Config
	log *logger.ClassLogger
}

func New(cfg config.Config) *App { return &App{cfg: cfg, log: logger.NewNamed("App")} }

type components struct {
	identity model.Identity
	store    *localstore.Store
	backend  *adhttp.Backend
	guard    *guard.Guard
	clock    *cooldown.Clock
	state    *worker.State
	ctrl     *adsession.Controller
}

func (app *App) build(ctx context.Context) (*components, error) {
	store, err := localstore.NewStore(app.cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ident := identity.NewResolver(store, app.cfg).Resolve()
	app.log.JustLog(fmt.Sprintf("Running as %s (%d) on device %s", ident.DisplayName, ident.PlatformUserID, ident.DeviceID))

	api, err := adhttp.NewAPIClient(app.cfg.APIBaseURL, app.cfg.ProxyURL, app.cfg.RequestTimeout)
	if err != nil {
		store.Close()
		return nil, err
	}
	backend := adhttp.NewBackend(api)

	runtime, err := provider.NewOttoRuntime(api.UserAgent, app.cfg.APIBaseURL+"/task")
	if err != nil {
		store.Close()
		return nil, err
	}
	loader := provider.NewLoader(ctx, backend, runtime)

	g := guard.New(backend, store, app.cfg.OfflineGuard)
	ui.SetFlagged(g.Check(ctx, ident))

	clock := cooldown.NewClock()
	state := worker.NewState(ident, backend, clock, store)
	ctrl := adsession.NewController(adsession.Deps{
		Identity:  ident,
		Backend:   backend,
		Loader:    loader,
		Registry:  provider.Registries{provider.NewMapRegistry(), runtime},
		Guard:     g,
		Tasks:     clock,
		Refresher: state,
		Journal:   store,
	}, adsession.Options{
		PollAttempts: app.cfg.PollMaxAttempts,
		PollInterval: app.cfg.PollInterval,
	})

	return &components{
		identity: ident,
		store:    store,
		backend:  backend,
		guard:    g,
		clock:    clock,
		state:    state,
		ctrl:     ctrl,
	}, nil
}

func (app *App) Run(ctx context.Context, opts RunOptions) error {
	c, err := app.build(ctx)
	if err != nil {
		return err
	}
	defer c.store.Close()

	switch {
	case opts.Withdraw != nil:
		return app.withdraw(ctx, c, *opts.Withdraw)
	case opts.SessionID != "":
		return app.session(ctx, c, opts.SessionID, opts.Simulate)
	}

	tickCtx, stopTicking := context.WithCancel(ctx)
	defer stopTicking()
	go c.clock.Run(tickCtx, time.Second, ui.UpdateTasks)

	return worker.New(c.state, c.ctrl, c.clock, app.cfg.RefreshInterval, app.cfg.AutoStartTasks).Run(ctx)
}

func (app *App) withdraw(ctx context.Context, c *components, req model.Withdrawal) error {
	svc := withdraw.NewService(c.backend, c.guard, c.state)
	if err := svc.Open(); err != nil {
		ui.SetSpinnerError(model.UserMessage(err))
		return err
	}
	if err := c.state.Refresh(ctx); err != nil {
		app.log.JustLog(fmt.Sprintf("Warning: could not load balance before withdrawal: %v", err))
	}
	res, err := svc.Submit(ctx, req)
	if err != nil {
		ui.SetSpinnerError(model.UserMessage(err))
		return err
	}
	ui.SetSpinnerSuccess(res.Message)
	return nil
}

func (app *App) session(ctx context.Context, c *components, sessionID string, simulate bool) error {
	if err := c.state.Refresh(ctx); err != nil {
		app.log.JustLog(fmt.Sprintf("Warning: initial refresh failed: %v", err))
	}

	var (
		out adsession.Outcome
		err error
	)
	if simulate {
		out, err = c.ctrl.Simulate(ctx, sessionID)
	} else {
		out, err = c.ctrl.Watch(ctx, sessionID)
	}
	if err != nil {
		ui.SetSpinnerError(model.UserMessage(err))
		return err
	}

	switch out.Phase {
	case adsession.PhaseCredited:
		ui.SetSpinnerSuccess(fmt.Sprintf("Session %s credited", sessionID))
	default:
		ui.SetSpinnerSuccess(fmt.Sprintf("Session %s not credited yet, check again later", sessionID))
	}
	return nil
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ohmynofan/mapp-task-bot/internal/app/adsession"
	"github.com/ohmynofan/mapp-task-bot/internal/app/cooldown"
	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
	"github.com/ohmynofan/mapp-task-bot/pkg/utils"
)

type Attempts interface {
	Start(ctx context.Context, taskID int) (adsession.Outcome, error)
	Watch(ctx context.Context, sessionID string) (adsession.Outcome, error)
}

type Refresher interface {
	Refresh(ctx context.Context) error
	Profile() model.Profile
}

type Worker struct {
	state     Refresher
	attempts  Attempts
	clock     *cooldown.Clock
	interval  time.Duration
	autoStart bool
	resumed   map[string]bool
	wait      func(ctx context.Context, d time.Duration) error
	log       *logger.ClassLogger
}

const errorRetryDelay = 60 * time.Second

func New(state Refresher, attempts Attempts, clock *cooldown.Clock, interval time.Duration, autoStart bool) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		state:     state,
		attempts:  attempts,
		clock:     clock,
		interval:  interval,
		autoStart: autoStart,
		resumed:   make(map[string]bool),
		wait:      sleepCtx,
		log:       logger.NewNamed("Operation"),
	}
}

func handleError(log *logger.ClassLogger, err error) (shouldStop bool) {
	fatal := []error{
		model.ErrGuardRejected,
		model.ErrProviderUnavailable,
	}
	for _, target := range fatal {
		if errors.Is(err, target) {
			log.Log(fmt.Sprintf("FATAL: %s. Worker will stop.", model.UserMessage(err)))
			return true
		}
	}

	log.Log(fmt.Sprintf("%s, retrying on next cycle", model.UserMessage(err)))
	return false
}

// Run refreshes state and works through the board until ctx is done or a
// fatal error occurs.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.state.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if handleError(w.log, err) {
				return err
			}
			if w.wait(ctx, errorRetryDelay) != nil {
				return nil
			}
			continue
		}

		if err := w.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		w.log.Log(fmt.Sprintf("Cycle complete, next refresh in %s", utils.FormatClock(int(w.interval.Seconds()))))
		if w.wait(ctx, w.interval) != nil {
			return nil
		}
	}
}

// cycle resumes in-progress sessions once each, then starts every ready task
// until the daily limit is hit. Only fatal errors are returned.
func (w *Worker) cycle(ctx context.Context) error {
	for _, task := range w.clock.Tasks() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if task.InFlight() {
			if w.resumed[task.ActiveSessionID] {
				continue
			}
			w.resumed[task.ActiveSessionID] = true
			if _, err := w.attempts.Watch(ctx, task.ActiveSessionID); err != nil && handleError(w.log, err) {
				return err
			}
			continue
		}

		if !w.autoStart {
			continue
		}
		if w.state.Profile().DailyLimitReached() {
			w.log.Log("Daily ad limit reached, waiting for reset")
			return nil
		}
		current, ok := w.clock.Task(task.ID)
		if !ok || !current.Ready() {
			continue
		}
		if _, err := w.attempts.Start(ctx, task.ID); err != nil && handleError(w.log, err) {
			return err
		}
	}
	return nil
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

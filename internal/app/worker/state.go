package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ohmynofan/mapp-task-bot/internal/app/cooldown"
	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/ui"
)

type StateBackend interface {
	Profile(ctx context.Context, identity model.Identity) (model.Profile, error)
	Tasks(ctx context.Context, identity model.Identity) ([]model.Task, error)
}

type JournalReader interface {
	DailyOutcomes(day time.Time) (credited, abandoned, failed int, err error)
}

// State owns the latest server snapshot. A refresh replaces profile and
// tasks together or not at all.
type State struct {
	identity model.Identity
	backend  StateBackend
	clock    *cooldown.Clock
	journal  JournalReader
	now      func() time.Time
	log      *logger.ClassLogger

	mu      sync.RWMutex
	profile model.Profile
}

func NewState(identity model.Identity, backend StateBackend, clock *cooldown.Clock, journal JournalReader) *State {
	s := &State{
		identity: identity,
		backend:  backend,
		clock:    clock,
		journal:  journal,
		now:      time.Now,
	}
	s.log = logger.NewLogger(s)
	return s
}

func (s *State) Refresh(ctx context.Context) error {
	var (
		profile model.Profile
		tasks   []model.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = s.backend.Profile(gctx, s.identity)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.backend.Tasks(gctx, s.identity)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to refresh state: %w", err)
	}

	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	s.clock.Replace(tasks)

	ui.UpdateProfile(s.identity, profile)
	ui.UpdateTasks(s.clock.Tasks())
	s.updateJournal()
	s.log.JustLog(fmt.Sprintf("State refreshed: balance %s, %d/%d ads today, %d tasks", profile.Balance, profile.DailyAds, profile.DailyLimit, len(tasks)))
	return nil
}

func (s *State) updateJournal() {
	if s.journal == nil {
		return
	}
	credited, abandoned, failed, err := s.journal.DailyOutcomes(s.now())
	if err != nil {
		s.log.JustLog(fmt.Sprintf("Warning: could not read session journal: %v", err))
		return
	}
	ui.UpdateJournal(credited, abandoned+failed)
}

func (s *State) Profile() model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *State) Identity() model.Identity {
	return s.identity
}

// SetBalance applies a balance the server returned outside a full refresh.
func (s *State) SetBalance(balance decimal.Decimal) {
	s.mu.Lock()
	s.profile.Balance = balance
	profile := s.profile
	s.mu.Unlock()
	ui.UpdateProfile(s.identity, profile)
}

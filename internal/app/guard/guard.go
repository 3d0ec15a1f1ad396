package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
)

type Checker interface {
	CheckAccount(ctx context.Context, identity model.Identity) (bool, error)
}

// Observer remembers platform accounts seen on this device and returns how
// many distinct ones it knows.
type Observer interface {
	ObserveAccount(platformUserID int64, displayName string, at time.Time) (int, error)
}

// Guard derives the multi-account flag for the running identity. It fails
// open: a check that errors leaves the previous flag in place.
type Guard struct {
	checker  Checker
	observer Observer
	offline  bool
	now      func() time.Time
	log      *logger.ClassLogger

	mu      sync.RWMutex
	flagged bool
}

// New builds a guard. A nil checker or offline=true selects the local
// observed-account count.
func New(checker Checker, observer Observer, offline bool) *Guard {
	g := &Guard{
		checker:  checker,
		observer: observer,
		offline:  offline,
		now:      time.Now,
	}
	g.log = logger.NewLogger(g)
	return g
}

func (g *Guard) Check(ctx context.Context, identity model.Identity) bool {
	localCount := g.observe(identity)

	if g.checker == nil || g.offline {
		if localCount < 0 {
			return g.Flagged()
		}
		return g.set(localCount > 1)
	}

	multiple, err := g.checker.CheckAccount(ctx, identity)
	if err != nil {
		g.log.JustLog(fmt.Sprintf("Warning: account check failed, keeping previous flag: %v", err))
		return g.Flagged()
	}
	return g.set(multiple)
}

func (g *Guard) observe(identity model.Identity) int {
	if g.observer == nil {
		return -1
	}
	count, err := g.observer.ObserveAccount(identity.PlatformUserID, identity.DisplayName, g.now())
	if err != nil {
		g.log.JustLog(fmt.Sprintf("Warning: could not record observed account: %v", err))
		return -1
	}
	return count
}

func (g *Guard) set(flagged bool) bool {
	g.mu.Lock()
	g.flagged = flagged
	g.mu.Unlock()
	if flagged {
		g.log.Log("Multiple accounts detected on this device, tasks and withdrawals are blocked")
	}
	return flagged
}

func (g *Guard) Flagged() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.flagged
}

// Allow returns model.ErrGuardRejected while the flag is raised.
func (g *Guard) Allow() error {
	if g.Flagged() {
		return model.ErrGuardRejected
	}
	return nil
}

package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
)

// Clock interpolates task cooldowns between server snapshots. Replace is the
// only way values go up; Tick only ever lowers them.
type Clock struct {
	mu    sync.Mutex
	tasks []model.Task
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Replace(tasks []model.Task) {
	snapshot := make([]model.Task, len(tasks))
	copy(snapshot, tasks)

	c.mu.Lock()
	c.tasks = snapshot
	c.mu.Unlock()
}

// Tick decrements every cooling task without an active session by one second.
// It reports whether anything changed.
func (c *Clock) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for i := range c.tasks {
		task := &c.tasks[i]
		if task.InFlight() || task.RemainingSeconds <= 0 {
			continue
		}
		task.RemainingSeconds--
		changed = true
	}
	return changed
}

func (c *Clock) Tasks() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

func (c *Clock) Task(id int) (model.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, task := range c.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

// Run ticks once per interval until ctx is done. onTick receives a snapshot
// after every tick that changed something.
func (c *Clock) Run(ctx context.Context, interval time.Duration, onTick func([]model.Task)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Tick() && onTick != nil {
				onTick(c.Tasks())
			}
		}
	}
}

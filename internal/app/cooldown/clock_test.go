package cooldown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
)

func snapshot() []model.Task {
	return []model.Task{
		{ID: 1, RemainingSeconds: 0},
		{ID: 2, RemainingSeconds: 2},
		{ID: 3, RemainingSeconds: 5, ActiveSessionID: "sid-3"},
	}
}

func TestTickDecrementsOnlyCoolingIdleTasks(t *testing.T) {
	c := NewClock()
	c.Replace(snapshot())

	if !c.Tick() {
		t.Fatal("expected a change on first tick")
	}
	got := c.Tasks()
	if got[0].RemainingSeconds != 0 || got[1].RemainingSeconds != 1 || got[2].RemainingSeconds != 5 {
		t.Fatalf("unexpected after one tick: %+v", got)
	}

	c.Tick()
	if c.Tick() {
		t.Fatal("nothing left to tick, expected no change")
	}
	task, _ := c.Task(2)
	if task.RemainingSeconds != 0 || !task.Ready() {
		t.Fatalf("task 2 should reach exactly zero, got %+v", task)
	}
	inflight, _ := c.Task(3)
	if inflight.RemainingSeconds != 5 || inflight.Ready() {
		t.Fatalf("in-flight task must not tick, got %+v", inflight)
	}
}

func TestRemainingIsMonotonicBetweenReplaces(t *testing.T) {
	c := NewClock()
	c.Replace(snapshot())

	prev := c.Tasks()
	for i := 0; i < 10; i++ {
		c.Tick()
		cur := c.Tasks()
		for j := range cur {
			if cur[j].RemainingSeconds > prev[j].RemainingSeconds || cur[j].RemainingSeconds < 0 {
				t.Fatalf("tick %d: task %d went %d -> %d", i, cur[j].ID, prev[j].RemainingSeconds, cur[j].RemainingSeconds)
			}
		}
		prev = cur
	}
}

func TestReplaceIsWholesale(t *testing.T) {
	c := NewClock()
	c.Replace(snapshot())
	c.Tick()
	c.Tick()

	c.Replace([]model.Task{{ID: 2, RemainingSeconds: 30}})
	tasks := c.Tasks()
	if len(tasks) != 1 || tasks[0].RemainingSeconds != 30 {
		t.Fatalf("replace must overwrite local values, got %+v", tasks)
	}
	if _, ok := c.Task(1); ok {
		t.Fatal("task dropped by server must disappear")
	}
}

func TestReplaceCopiesInput(t *testing.T) {
	in := snapshot()
	c := NewClock()
	c.Replace(in)
	in[1].RemainingSeconds = 99
	if task, _ := c.Task(2); task.RemainingSeconds != 2 {
		t.Fatalf("clock must not alias caller slice, got %d", task.RemainingSeconds)
	}
}

func TestConcurrentTickAndReplaceConverge(t *testing.T) {
	c := NewClock()
	c.Replace(snapshot())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Tick()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Replace(snapshot())
			}
		}()
	}
	wg.Wait()

	c.Replace(snapshot())
	if task, _ := c.Task(2); task.RemainingSeconds != 2 {
		t.Fatalf("last replace must win, got %d", task.RemainingSeconds)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := NewClock()
	c.Replace([]model.Task{{ID: 1, RemainingSeconds: 100}})

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan []model.Task, 16)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond, func(tasks []model.Task) { ticks <- tasks })
		close(done)
	}()

	select {
	case tasks := <-ticks:
		if tasks[0].RemainingSeconds >= 100 {
			t.Fatalf("expected a decrement, got %d", tasks[0].RemainingSeconds)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick observed")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

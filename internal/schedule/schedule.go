// Package schedule runs delayed work that is owned by something with a
// lifetime: a request, a guarded view, a CLI command. When the owner goes
// away its pending work is cancelled and never fires.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Task struct {
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
	fired bool
	mu    sync.Mutex
}

// Cancel stops the task. It returns false when the task already ran or was
// cancelled before.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || isClosed(t.done) {
		return false
	}
	t.timer.Stop()
	t.finish()
	return true
}

// Done is closed once the task has either run or been cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *Task) finish() {
	t.once.Do(func() { close(t.done) })
}

// Group owns a set of tasks. Close cancels all pending tasks and rejects new
// ones.
type Group struct {
	mu     sync.Mutex
	tasks  map[*Task]struct{}
	closed bool
}

func NewGroup() *Group {
	return &Group{tasks: make(map[*Task]struct{})}
}

// After schedules fn to run once d has elapsed. After on a closed group
// returns a task that is already cancelled.
func (g *Group) After(d time.Duration, fn func()) *Task {
	task := &Task{done: make(chan struct{})}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		task.finish()
		return task
	}
	g.tasks[task] = struct{}{}
	task.timer = time.AfterFunc(d, func() {
		task.mu.Lock()
		if isClosed(task.done) {
			task.mu.Unlock()
			return
		}
		task.fired = true
		task.mu.Unlock()

		g.forget(task)
		fn()
		task.finish()
	})
	return task
}

func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

func (g *Group) Close() {
	g.mu.Lock()
	g.closed = true
	tasks := g.tasks
	g.tasks = make(map[*Task]struct{})
	g.mu.Unlock()

	for task := range tasks {
		task.Cancel()
	}
}

func (g *Group) forget(task *Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tasks, task)
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

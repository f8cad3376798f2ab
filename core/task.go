package core

import (
	"sync"
	"sync/atomic"
)

// TaskWake is a wake flag set from timer context and consumed by a task
// running in the main loop (sched_wake_task / sched_check_wake).
type TaskWake struct {
	woken uint32
}

// Wake marks the task as runnable
func (w *TaskWake) Wake() {
	atomic.StoreUint32(&w.woken, 1)
}

// Check reports and clears the wake flag
func (w *TaskWake) Check() bool {
	return atomic.SwapUint32(&w.woken, 0) != 0
}

type task struct {
	name string
	fn   func()
}

var (
	tasksMu sync.Mutex
	tasks   []task
)

// RegisterTask adds a function polled by RunTasks (DECL_TASK). Registering
// the same name twice keeps one entry.
func RegisterTask(name string, fn func()) {
	tasksMu.Lock()
	defer tasksMu.Unlock()
	for i := range tasks {
		if tasks[i].name == name {
			tasks[i].fn = fn
			return
		}
	}
	tasks = append(tasks, task{name: name, fn: fn})
}

// RunTasks runs every registered task once. Called from the main loop.
func RunTasks() {
	tasksMu.Lock()
	list := tasks
	tasksMu.Unlock()
	for _, t := range list {
		t.fn()
	}
}

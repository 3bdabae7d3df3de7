package acq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-acq/logger"
)

// TaskFunc is one iteration of a task managed by TaskManager.
// It returns true to run again, or false to stop the goroutine.
type TaskFunc func() bool

// TaskManager manages the lifecycle of the goroutines owned by a component:
// the background loop of a status monitor, the arm/wait workers and the
// watchdog of a shot phase.
//
// All tasks share a context derived from the parent. Stop cancels it, Wait
// blocks until every task has returned and re-arms the manager so it can be
// reused for the next run.
//
//	mgr := acq.NewTaskManager(ctx, logger)
//	_ = mgr.Start("monitor", func() bool {
//	    return poll() == nil
//	})
//	mgr.Stop()
//	mgr.Wait()
type TaskManager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewTaskManager creates a TaskManager whose tasks are canceled with ctx.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by the running tasks.
func (mgr *TaskManager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs taskFunc repeatedly in a new goroutine until it returns false or
// the manager is stopped.
func (mgr *TaskManager) Start(name string, taskFunc TaskFunc) error {
	mgr.logger.Debug("start task", "name", name)

	return mgr.spawn(name, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if !mgr.callWithRecover(name, taskFunc) {
					return
				}
			}
		}
	})
}

// Go runs fn once in a new goroutine.
func (mgr *TaskManager) Go(name string, fn func(ctx context.Context)) error {
	return mgr.spawn(name, func(ctx context.Context) {
		mgr.callWithRecover(name, func() bool {
			fn(ctx)
			return false
		})
	})
}

// StartInterval runs taskFunc every interval until it returns false or the
// manager is stopped. If runNow is true, taskFunc also runs immediately.
func (mgr *TaskManager) StartInterval(name string, taskFunc TaskFunc, interval time.Duration, runNow bool) error {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return fmt.Errorf("invalid interval: %v", interval)
	}

	return mgr.spawn(name, func(ctx context.Context) {
		if runNow && !mgr.callWithRecover(name, taskFunc) {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecover(name, taskFunc) {
					return
				}
			}
		}
	})
}

// Stop signals all running tasks to terminate.
func (mgr *TaskManager) Stop() {
	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait blocks until all tasks have terminated, then prepares a fresh context
// so the manager can start new tasks.
func (mgr *TaskManager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of running tasks.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *TaskManager) spawn(name string, body func(ctx context.Context)) error {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	ctx := mgr.Context()
	if ctx.Err() != nil {
		return fmt.Errorf("task manager already stopped, can't start %s", name)
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body(ctx)
	}()

	return nil
}

// callWithRecover calls fn with panic protection. A panic stops the task.
func (mgr *TaskManager) callWithRecover(name string, fn TaskFunc) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			cont = false
		}
	}()

	return fn()
}

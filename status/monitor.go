package status

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/logger"
)

// Monitor tracks the status of one unit in a background goroutine.
//
// The monitor goroutine is the only writer of the current record and the only
// setter of the armed/stopped edges. Waiters clear the edge they consume.
type Monitor struct {
	cfg    *Config
	feed   *Feed
	logger logger.Logger

	mu      sync.RWMutex
	current Record
	hasCur  bool
	err     error

	armed   atomic.Bool
	stopped atomic.Bool
	quit    atomic.Bool
	brk     atomic.Bool
	metrics MonitorMetrics

	taskMgr *acq.TaskManager
	stopCtx func() bool
	done    chan struct{}
}

// NewMonitor starts monitoring feed. The monitor owns the feed from now on and
// closes it when it quits. Canceling ctx is equivalent to calling Quit.
func NewMonitor(ctx context.Context, feed *Feed, cfg *Config) (*Monitor, error) {
	if cfg == nil {
		return nil, acq.ErrConfigNil
	}

	m := &Monitor{
		cfg:     cfg,
		feed:    feed,
		logger:  cfg.logger.With("status", feed.Addr()),
		taskMgr: acq.NewTaskManager(ctx, cfg.logger),
		done:    make(chan struct{}),
	}

	m.stopCtx = context.AfterFunc(ctx, m.Quit)

	if err := m.taskMgr.Start("statusMonitor", m.step); err != nil {
		m.stopCtx()
		return nil, err
	}

	go func() {
		m.taskMgr.Wait()
		close(m.done)
	}()

	return m, nil
}

// Open dials the status port and starts monitoring it.
func Open(ctx context.Context, host string, port int, cfg *Config) (*Monitor, error) {
	feed, err := Dial(ctx, host, port, cfg)
	if err != nil {
		return nil, err
	}

	m, err := NewMonitor(ctx, feed, cfg)
	if err != nil {
		_ = feed.Close()
		return nil, err
	}

	return m, nil
}

// step polls and processes one line. It returns false to end the task.
func (m *Monitor) step() bool {
	line, err := m.feed.Poll()
	if err != nil {
		if m.quit.Load() {
			m.logger.Debug("status monitor quit")
			m.finish(nil)
		} else {
			m.logger.Error("status feed failed", "error", err)
			m.finish(err)
		}

		return false
	}

	rec, ok := ParseRecord(line)
	if !ok {
		m.metrics.IgnoredCount.Add(1)
		m.logger.Debug("ignore status line", "line", line)
		return true
	}

	return m.update(rec)
}

// update applies one record to the edge state machine.
func (m *Monitor) update(rec Record) bool {
	m.mu.Lock()
	prev, hadPrev := m.current, m.hasCur

	if hadPrev && prev.State.IsIdle() && rec.State.IsRunning() {
		m.mu.Unlock()

		anomaly := &acq.FatalAnomalyError{Addr: m.feed.Addr(), Prev: int(prev.State), Next: int(rec.State)}
		m.logger.Error("skipped ARM, status feed can not be trusted", "prev", prev.State, "next", rec.State)
		m.finish(anomaly)
		m.quit.Store(true)
		if m.cfg.onAnomaly != nil {
			m.cfg.onAnomaly(anomaly)
		}

		return false
	}

	m.current, m.hasCur = rec, true
	m.mu.Unlock()
	m.metrics.RecordCount.Add(1)

	if m.cfg.trace {
		m.logger.Info("status", "record", rec.String(), "state", rec.State)
	}

	if !hadPrev {
		return true
	}

	switch {
	case !prev.State.IsIdle() && rec.State.IsIdle():
		m.armed.Store(false)
		m.stopped.Store(true)
		m.metrics.StoppedEdgeCount.Add(1)
		m.logger.Debug("stopped edge", "prev", prev.State)

	case rec.State == Arm && prev.State != Arm:
		m.stopped.Store(false)
		m.armed.Store(true)
		m.metrics.ArmedEdgeCount.Add(1)
		m.logger.Debug("armed edge", "prev", prev.State)
	}

	return true
}

// finish records the terminal error and releases the feed.
func (m *Monitor) finish(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()

	_ = m.feed.Close()
}

// Current returns the last parsed record, and false if none arrived yet.
func (m *Monitor) Current() (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current, m.hasCur
}

// Err returns the error that terminated the monitor goroutine, or nil while it
// is running or after a clean quit.
func (m *Monitor) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.err
}

// Metrics returns the monitor counters.
func (m *Monitor) Metrics() *MonitorMetrics { return &m.metrics }

// Armed reports the armed edge without consuming it.
func (m *Monitor) Armed() bool { return m.armed.Load() }

// Stopped reports the stopped edge without consuming it.
func (m *Monitor) Stopped() bool { return m.stopped.Load() }

// Reset clears the armed and stopped edges and any pending break request.
func (m *Monitor) Reset() {
	m.armed.Store(false)
	m.stopped.Store(false)
	m.brk.Store(false)
}

// Break aborts the wait in progress, if any, with acq.ErrBreak. The monitor
// keeps running. A break requested while nobody waits aborts the next wait.
func (m *Monitor) Break() {
	m.brk.Store(true)
}

// ClearBreak withdraws a break request that no wait has consumed.
func (m *Monitor) ClearBreak() {
	m.brk.Store(false)
}

// Quit permanently stops the monitor and closes its feed. Waits in progress
// return acq.ErrQuit.
func (m *Monitor) Quit() {
	if m.quit.Swap(true) {
		return
	}
	_ = m.feed.Close()
	m.taskMgr.Stop()
}

// Close quits the monitor and waits for its goroutine to terminate.
func (m *Monitor) Close() error {
	m.Quit()
	m.stopCtx()
	<-m.done

	return nil
}

// Done is closed when the monitor goroutine has terminated.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// WaitArmed blocks until the armed edge is observed, then clears it.
func (m *Monitor) WaitArmed(ctx context.Context) error {
	return m.wait(ctx, &m.armed, "armed")
}

// WaitStopped blocks until the stopped edge is observed, then clears it.
func (m *Monitor) WaitStopped(ctx context.Context) error {
	return m.wait(ctx, &m.stopped, "stopped")
}

// wait polls edge every poll interval. It returns nil once the edge is
// consumed; the monitor's terminal error if it died; acq.ErrQuit after Quit;
// acq.ErrBreak after Break; or the context error.
func (m *Monitor) wait(ctx context.Context, edge *atomic.Bool, name string) error {
	ticker := time.NewTicker(m.cfg.pollInterval)
	defer ticker.Stop()

	for {
		if edge.CompareAndSwap(true, false) {
			return nil
		}

		if err := m.Err(); err != nil {
			return err
		}

		if m.quit.Load() {
			// the loop may have died between the two loads
			if err := m.Err(); err != nil {
				return err
			}
			m.logger.Debug("wait aborted by quit", "edge", name)
			return acq.ErrQuit
		}

		if m.brk.CompareAndSwap(true, false) {
			m.logger.Debug("wait aborted by break", "edge", name)
			return acq.ErrBreak
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsAnomaly reports whether err is a skipped-ARM anomaly.
func IsAnomaly(err error) bool {
	return errors.Is(err, acq.ErrFatalAnomaly)
}

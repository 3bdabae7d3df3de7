package shot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/logger"
	"github.com/arloliu/go-acq/status"
	"github.com/arloliu/go-acq/unit"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// ErrNoUnit indicates that no unit is left to run the shot.
var ErrNoUnit = errors.New("no unit left in the shot")

// Controller runs synchronized shots on a fixed set of units.
//
// Phases must not be run concurrently. The controller never touches a unit
// except through its own phase operations and the break flag of its monitor.
type Controller struct {
	cfg    *Config
	units  []*unit.Unit
	names  []string
	logger logger.Logger

	// excluded maps a unit index to the phase that excluded it from the
	// current shot.
	excluded *xsync.MapOf[int, Phase]
	metrics  ControllerMetrics
}

// NewController creates a controller for units.
func NewController(units []*unit.Unit, cfg *Config) (*Controller, error) {
	if cfg == nil {
		return nil, acq.ErrConfigNil
	}
	if len(units) == 0 {
		return nil, ErrNoUnit
	}

	return &Controller{
		cfg:      cfg,
		units:    slices.Clone(units),
		names:    unitNames(units),
		logger:   cfg.logger.With("component", "shot"),
		excluded: xsync.NewMapOf[int, Phase](),
	}, nil
}

// unitNames names each unit by its host. Units sharing a host, as tunnels to
// localhost do, get their index appended.
func unitNames(units []*unit.Unit) []string {
	hosts := make(map[string]int, len(units))
	for _, u := range units {
		hosts[u.Host()]++
	}

	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Host()
		if hosts[u.Host()] > 1 {
			names[i] = fmt.Sprintf("%s#%d", u.Host(), i)
		}
	}

	return names
}

// Units returns the units of the controller.
func (c *Controller) Units() []*unit.Unit { return slices.Clone(c.units) }

// Metrics returns the controller counters.
func (c *Controller) Metrics() *ControllerMetrics { return &c.metrics }

// Name returns the name of unit i in reports: its host, followed by "#i" when
// another unit of the controller has the same host.
func (c *Controller) Name(i int) string { return c.names[i] }

// Excluded returns the units excluded from the current shot, by name, with
// the phase that excluded them.
func (c *Controller) Excluded() map[string]Phase {
	out := make(map[string]Phase, c.excluded.Size())
	c.excluded.Range(func(i int, p Phase) bool {
		out[c.names[i]] = p
		return true
	})

	return out
}

// active returns the indexes of the units still in the shot.
func (c *Controller) active() []int {
	idx := make([]int, 0, len(c.units))
	for i := range c.units {
		if _, ok := c.excluded.Load(i); !ok {
			idx = append(idx, i)
		}
	}

	return idx
}

func (c *Controller) exclude(i int, p Phase) {
	c.excluded.Store(i, p)
}

// Prep starts a new shot: it clears the exclusions of the previous shot and
// the armed/stopped edges and break requests of every unit.
func (c *Controller) Prep() {
	c.excluded.Clear()
	for _, u := range c.units {
		u.Monitor().Reset()
	}
}

// ArmAll arms every unit in parallel and returns the first error after all
// arm requests have completed.
func (c *Controller) ArmAll(ctx context.Context) error {
	var g errgroup.Group
	for _, i := range c.active() {
		u := c.units[i]
		g.Go(func() error {
			if err := u.Arm(ctx); err != nil {
				return fmt.Errorf("arm %s: %w", c.names[i], err)
			}

			return nil
		})
	}

	return g.Wait()
}

// WaitAllArmed waits for the armed edge of every unit still in the shot.
// Units broken out by the watchdog are excluded from the rest of the shot.
func (c *Controller) WaitAllArmed(ctx context.Context) (*PhaseResult, error) {
	return c.waitAll(ctx, PhaseWaitArmed, (*status.Monitor).WaitArmed)
}

// WaitAllStopped waits for the stopped edge of every unit still in the shot.
func (c *Controller) WaitAllStopped(ctx context.Context) (*PhaseResult, error) {
	return c.waitAll(ctx, PhaseWaitStopped, (*status.Monitor).WaitStopped)
}

type waiter struct {
	idx    int
	name   string
	unit   *unit.Unit
	done   atomic.Bool
	zombie atomic.Bool
	err    error
}

// waitAll runs one waiter per active unit and a watchdog. It returns once
// every waiter has returned, which the watchdog forces by breaking the
// stragglers zombieTimeout after the first waiter finished.
//
// If no waiter ever finishes, waitAll blocks until ctx is done.
func (c *Controller) waitAll(
	ctx context.Context,
	phase Phase,
	wait func(*status.Monitor, context.Context) error,
) (*PhaseResult, error) {
	start := time.Now()
	active := c.active()
	if len(active) == 0 {
		return nil, ErrNoUnit
	}

	waiters := make([]*waiter, len(active))
	for j, i := range active {
		waiters[j] = &waiter{idx: i, name: c.names[i], unit: c.units[i]}
		// a break left over from the previous phase would abort this one
		c.units[i].Monitor().ClearBreak()
	}

	var (
		finished    atomic.Int32
		firstFinish atomic.Int64
		wg          sync.WaitGroup
	)

	taskMgr := acq.NewTaskManager(ctx, c.logger)
	defer func() {
		taskMgr.Stop()
		taskMgr.Wait()
	}()

	for _, w := range waiters {
		wg.Add(1)
		err := taskMgr.Go(phase.String()+":"+w.name, func(ctx context.Context) {
			defer wg.Done()
			defer func() {
				firstFinish.CompareAndSwap(0, time.Now().UnixNano())
				finished.Add(1)
				w.done.Store(true)
			}()

			w.err = wait(w.unit.Monitor(), ctx)
		})
		if err != nil {
			wg.Done()
			w.err = err
			w.done.Store(true)
		}
	}

	watchdog := func() bool {
		n := int(finished.Load())
		if n == len(waiters) {
			return false
		}

		first := firstFinish.Load()
		if n == 0 || first == 0 || time.Since(time.Unix(0, first)) < c.cfg.zombieTimeout {
			return true
		}

		for _, w := range waiters {
			if w.done.Load() {
				continue
			}
			w.zombie.Store(true)
			c.metrics.ZombieCount.Add(1)
			c.logger.Warn("zombie waiter, breaking", "phase", phase, "unit", w.name, "finished", n, "total", len(waiters))
			w.unit.Monitor().Break()
		}

		return false
	}
	if err := taskMgr.StartInterval("watchdog:"+phase.String(), watchdog, c.cfg.watchdogInterval, false); err != nil {
		c.logger.Error("failed to start watchdog", "phase", phase, "error", err)
	}

	wg.Wait()

	result := &PhaseResult{Phase: phase, Elapsed: time.Since(start)}
	var errs []error
	for _, w := range waiters {
		switch {
		case w.err == nil:
			result.Done = append(result.Done, w.name)

		case w.zombie.Load() && errors.Is(w.err, acq.ErrBreak):
			result.Zombies = append(result.Zombies, w.name)
			c.exclude(w.idx, phase)

		default:
			c.exclude(w.idx, phase)
			errs = append(errs, fmt.Errorf("%s %s: %w", phase, w.name, w.err))
		}
	}

	c.logger.Debug("phase complete", "phase", phase, "done", result.Done, "zombies", result.Zombies, "elapsed", result.Elapsed)

	return result, errors.Join(errs...)
}

// Trigger fires the trigger once: through the configured trigger function, or
// as a soft trigger on the first unit still in the shot.
func (c *Controller) Trigger(ctx context.Context) error {
	if c.cfg.trigger != nil {
		c.logger.Debug("external trigger")
		return c.cfg.trigger(ctx)
	}

	active := c.active()
	if len(active) == 0 {
		return ErrNoUnit
	}
	u, name := c.units[active[0]], c.names[active[0]]
	c.logger.Debug("soft trigger", "unit", name)

	if err := u.SoftTrigger(ctx); err != nil {
		return fmt.Errorf("trigger %s: %w", name, err)
	}

	return nil
}

// Collect reads the channels selected by the channel map from every unit
// still in the shot, in parallel. The result is indexed as the controller's
// units; excluded units have a nil entry.
func (c *Controller) Collect(ctx context.Context) ([]*unit.Capture, error) {
	out := make([]*unit.Capture, len(c.units))

	var g errgroup.Group
	for _, i := range c.active() {
		u := c.units[i]
		channels, err := c.cfg.channels.For(i)
		if err != nil {
			return nil, err
		}

		g.Go(func() error {
			capture, err := u.ReadChannels(ctx, unit.ReadOptions{Channels: channels, LocalDemux: c.cfg.localDemux})
			if err != nil {
				return fmt.Errorf("collect %s: %w", c.names[i], err)
			}
			out[i] = capture

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// Abort aborts the capture on every unit, ignoring errors. It is used to
// leave the units idle after a failed shot.
func (c *Controller) Abort(ctx context.Context) {
	var wg sync.WaitGroup
	for i, u := range c.units {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := u.Abort(ctx); err != nil {
				c.logger.Warn("abort failed", "unit", c.names[i], "error", err)
			}
		}()
	}
	wg.Wait()
}

// Run runs one complete shot.
//
// A unit that does not arm or stop within the zombie timeout of its peers is
// excluded and reported, and the shot goes on with the other units. Any other
// failure, including a skipped-ARM anomaly on one unit, aborts the shot on
// every unit and is returned along with the partial report.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	report := newReport()
	c.metrics.ShotCount.Add(1)

	l := c.logger.With("shot", report.ID.String())
	l.Info("shot start", "units", len(c.units))

	err := c.run(ctx, report)
	report.Duration = time.Since(report.Started)
	report.Excluded = c.Excluded()

	if err != nil {
		c.metrics.FailedShotCount.Add(1)
		l.Error("shot failed", "error", err, "excluded", report.Excluded)
		c.Abort(context.WithoutCancel(ctx))

		return report, err
	}

	l.Info("shot complete", "armed", len(report.Armed), "stopped", len(report.Stopped),
		"excluded", len(report.Excluded), "duration", report.Duration)

	return report, nil
}

func (c *Controller) run(ctx context.Context, report *Report) error {
	c.Prep()

	if err := c.ArmAll(ctx); err != nil {
		return err
	}

	armed, err := c.WaitAllArmed(ctx)
	if armed != nil {
		report.Armed = armed.Done
	}
	if err != nil {
		return err
	}
	if len(armed.Done) == 0 {
		return ErrNoUnit
	}

	if err := c.Trigger(ctx); err != nil {
		return err
	}

	stopped, err := c.WaitAllStopped(ctx)
	if stopped != nil {
		report.Stopped = stopped.Done
	}
	if err != nil {
		return err
	}
	if len(stopped.Done) == 0 {
		return ErrNoUnit
	}

	report.Data, err = c.Collect(ctx)

	return err
}

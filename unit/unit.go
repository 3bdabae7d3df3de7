package unit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/command"
	"github.com/arloliu/go-acq/internal/pool"
	"github.com/arloliu/go-acq/logger"
	"github.com/arloliu/go-acq/status"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// Unit is one acquisition unit: a command session per site and a status
// monitor running for the life of the unit.
type Unit struct {
	cfg    *Config
	host   string
	logger logger.Logger

	sites   *xsync.MapOf[int, *command.Session]
	models  map[int]string
	monitor *status.Monitor
	cancel  context.CancelFunc

	mu       sync.Mutex // guards the cached values below
	nchan    int
	wordSize int
	cal      *Calibration

	opState acq.AtomicOpState
}

// Open connects to the unit at host.
//
// The site 0 session is mandatory. The other sites are read from the site list
// knob and connected in parallel; a site that fails, or is not ready within
// the site join timeout, is left out of the unit.
func Open(ctx context.Context, host string, cfg *Config) (*Unit, error) {
	if cfg == nil {
		return nil, acq.ErrConfigNil
	}

	u := &Unit{
		cfg:    cfg,
		host:   host,
		logger: cfg.logger.With("unit", host),
		sites:  xsync.NewMapOf[int, *command.Session](),
	}
	u.opState.ToOpening()

	s0cfg, err := cfg.commandConfig(host, 0)
	if err != nil {
		return nil, err
	}
	s0, err := command.Dial(ctx, s0cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", host, err)
	}
	u.sites.Store(0, s0)

	if err := u.openSites(ctx, s0); err != nil {
		u.closeSessions()
		return nil, fmt.Errorf("open %s: %w", host, err)
	}

	stCfg, err := cfg.statusConfig()
	if err != nil {
		u.closeSessions()
		return nil, err
	}

	// the monitor outlives the open call
	monCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	mon, err := status.Open(monCtx, host, cfg.ports.Status, stCfg)
	if err != nil {
		cancel()
		u.closeSessions()
		return nil, fmt.Errorf("open %s: %w", host, err)
	}
	u.monitor, u.cancel = mon, cancel
	u.opState.ToOpened()

	u.logger.Info("unit opened", "sites", u.Sites())

	return u, nil
}

func (u *Unit) openSites(ctx context.Context, s0 *command.Session) error {
	resp, err := s0.Get(ctx, u.cfg.knobs.SiteList)
	if err != nil {
		return err
	}
	u.models = ParseSiteList(resp)

	g, gctx := errgroup.WithContext(ctx)
	for _, site := range slices.Sorted(maps.Keys(u.models)) {
		if site == 0 {
			continue
		}
		g.Go(func() error {
			return u.joinSite(gctx, site)
		})
	}

	return g.Wait()
}

// joinSite dials one site. Only a canceled ctx is an error; a failed or late
// site is logged and skipped.
func (u *Unit) joinSite(ctx context.Context, site int) error {
	cfg, err := u.cfg.commandConfig(u.host, site)
	if err != nil {
		return err
	}

	type result struct {
		sess *command.Session
		err  error
	}

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		s, err := command.Dial(dialCtx, cfg)
		done <- result{sess: s, err: err}
	}()

	timer := pool.GetTimer(u.cfg.siteJoinTimeout)
	defer pool.PutTimer(timer)

	abandon := func() {
		go func() {
			if r := <-done; r.sess != nil {
				_ = r.sess.Close()
			}
		}()
	}

	select {
	case r := <-done:
		if r.err != nil {
			u.logger.Warn("site not available", "site", site, "error", r.err)
			return nil
		}
		u.sites.Store(site, r.sess)
		u.logger.Debug("site joined", "site", site, "model", u.models[site], "knobs", r.sess.Knobs().Len())

		return nil

	case <-timer.C:
		u.logger.Warn("site join timeout", "site", site, "timeout", u.cfg.siteJoinTimeout)
		abandon()

		return nil

	case <-ctx.Done():
		abandon()
		return ctx.Err()
	}
}

// ParseSiteList parses a site list knob value such as "13,1=430,2=431" into a
// map of site number to module model. Entries that are not site=model pairs
// are ignored.
func ParseSiteList(s string) map[int]string {
	sites := make(map[int]string)
	for _, entry := range strings.Split(command.Value(s), ",") {
		key, model, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		site, err := strconv.Atoi(key)
		if err != nil || site < 0 {
			continue
		}
		sites[site] = model
	}

	return sites
}

// Host returns the host name of the unit.
func (u *Unit) Host() string { return u.host }

// IsClosed reports whether Close has been called.
func (u *Unit) IsClosed() bool { return u.opState.IsClosed() }

// Sites returns the sorted numbers of the connected sites, site 0 included.
func (u *Unit) Sites() []int {
	sites := make([]int, 0, u.sites.Size())
	u.sites.Range(func(site int, _ *command.Session) bool {
		sites = append(sites, site)
		return true
	})
	slices.Sort(sites)

	return sites
}

// Model returns the module model listed for site, or "" if unknown.
func (u *Unit) Model(site int) string { return u.models[site] }

// Site returns the command session of site.
func (u *Unit) Site(site int) (*command.Session, error) {
	s, ok := u.sites.Load(site)
	if !ok {
		return nil, fmt.Errorf("%s site %d: %w", u.host, site, acq.ErrNoSite)
	}

	return s, nil
}

// Monitor returns the status monitor of the unit.
func (u *Unit) Monitor() *status.Monitor { return u.monitor }

// Get queries a knob on site.
func (u *Unit) Get(ctx context.Context, site int, knob string) (string, error) {
	s, err := u.Site(site)
	if err != nil {
		return "", err
	}

	return s.Get(ctx, knob)
}

// Set writes a knob on site.
func (u *Unit) Set(ctx context.Context, site int, knob string, value any) error {
	s, err := u.Site(site)
	if err != nil {
		return err
	}

	_, err = s.Set(ctx, knob, value)

	return err
}

// Status returns the last status record, and false if none arrived yet.
func (u *Unit) Status() (status.Record, bool) { return u.monitor.Current() }

// State returns the last reported capture state, IDLE before the first record.
func (u *Unit) State() status.State {
	rec, _ := u.monitor.Current()
	return rec.State
}

// PreSamples returns the pre-trigger sample count of the last status record.
func (u *Unit) PreSamples() int {
	rec, _ := u.monitor.Current()
	return rec.Pre
}

// PostSamples returns the post-trigger sample count of the last status record.
func (u *Unit) PostSamples() int {
	rec, _ := u.monitor.Current()
	return rec.Post
}

// NChan returns the total channel count. The value is cached after the first
// successful query.
func (u *Unit) NChan(ctx context.Context) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.nchan > 0 {
		return u.nchan, nil
	}

	s0, err := u.Site(0)
	if err != nil {
		return 0, err
	}
	n, err := s0.GetInt(ctx, u.cfg.knobs.NChan)
	if err != nil {
		return 0, err
	}
	u.nchan = n

	return n, nil
}

// WordSize returns the sample size in bytes, 2 or 4. The value is cached
// after the first successful query.
func (u *Unit) WordSize(ctx context.Context) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.wordSize > 0 {
		return u.wordSize, nil
	}

	s0, err := u.Site(0)
	if err != nil {
		return 0, err
	}
	v, err := s0.GetInt(ctx, u.cfg.knobs.WordSize)
	if err != nil {
		return 0, err
	}

	u.wordSize = 2
	if v != 0 {
		u.wordSize = 4
	}

	return u.wordSize, nil
}

// RemoteDemux reports whether the unit demultiplexes data itself. It is read
// from the unit on every call.
func (u *Unit) RemoteDemux(ctx context.Context) (bool, error) {
	s0, err := u.Site(0)
	if err != nil {
		return false, err
	}
	v, err := s0.GetInt(ctx, u.cfg.knobs.RemoteDemux)
	if err != nil {
		return false, err
	}

	return v != 0, nil
}

// Arm requests a capture.
func (u *Unit) Arm(ctx context.Context) error {
	u.logger.Debug("arm")
	return u.Set(ctx, 0, u.cfg.knobs.Arm, 1)
}

// ArmAndWait clears stale edges, arms the unit and waits for the armed edge.
func (u *Unit) ArmAndWait(ctx context.Context) error {
	u.monitor.Reset()

	if err := u.Arm(ctx); err != nil {
		return err
	}

	return u.monitor.WaitArmed(ctx)
}

// Abort aborts the capture in progress.
func (u *Unit) Abort(ctx context.Context) error {
	u.logger.Debug("abort")
	return u.Set(ctx, 0, u.cfg.knobs.Abort, 1)
}

// SoftTrigger issues a software trigger.
func (u *Unit) SoftTrigger(ctx context.Context) error {
	u.logger.Debug("soft trigger")
	return u.Set(ctx, 0, u.cfg.knobs.SoftTrigger, 1)
}

// ShotNumber returns the shot sequence number.
func (u *Unit) ShotNumber(ctx context.Context) (int, error) {
	s, err := u.Site(u.cfg.knobs.ShotSite)
	if err != nil {
		return 0, err
	}

	return s.GetInt(ctx, u.cfg.knobs.Shot)
}

// SetShotNumber sets the shot sequence number.
func (u *Unit) SetShotNumber(ctx context.Context, shot int) error {
	return u.Set(ctx, u.cfg.knobs.ShotSite, u.cfg.knobs.Shot, shot)
}

// Close stops the status monitor and closes every session. Close is idempotent.
func (u *Unit) Close() error {
	if !u.opState.ToClosing() {
		return nil
	}
	defer u.opState.ToClosed()

	u.logger.Debug("close unit")

	var errs []error
	if u.monitor != nil {
		u.cancel()
		errs = append(errs, u.monitor.Close())
	}
	errs = append(errs, u.closeSessions())

	return errors.Join(errs...)
}

func (u *Unit) closeSessions() error {
	var errs []error
	u.sites.Range(func(site int, s *command.Session) bool {
		errs = append(errs, s.Close())
		u.sites.Delete(site)

		return true
	})

	return errors.Join(errs...)
}

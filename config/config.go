// Package config loads a fleet description from YAML and turns it into unit
// and shot options.
//
//	units:
//	  - host: acq2106_001
//	  - host: acq2106_002
//	    ports: {site0: 4320}
//	defaults:
//	  connect_timeout: 3s
//	  poll_interval: 100ms
//	shot:
//	  zombie_timeout: 10s
//	  channels: [1, 2]
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/shot"
	"github.com/arloliu/go-acq/unit"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Fleet is the top level of a fleet file.
type Fleet struct {
	Units    []UnitConfig `yaml:"units"`
	Defaults Defaults     `yaml:"defaults"`
	Shot     ShotConfig   `yaml:"shot"`
}

// UnitConfig describes one unit. Ports and Trace override the defaults.
type UnitConfig struct {
	Host  string    `yaml:"host"`
	Ports acq.Ports `yaml:"ports"`
	Trace *bool     `yaml:"trace"`
}

// Defaults apply to every unit. Zero durations keep the library defaults.
type Defaults struct {
	ConnectTimeout     time.Duration  `yaml:"connect_timeout"`
	SiteJoinTimeout    time.Duration  `yaml:"site_join_timeout"`
	PollInterval       time.Duration  `yaml:"poll_interval"`
	PartialFallback    bool           `yaml:"partial_fallback"`
	InterruptOnAnomaly bool           `yaml:"interrupt_on_anomaly"`
	Trace              bool           `yaml:"trace"`
	Ports              acq.Ports      `yaml:"ports"`
	Knobs              unit.KnobNames `yaml:"knobs"`
}

// ShotConfig holds the shot controller settings. Zero durations keep the
// library defaults.
type ShotConfig struct {
	ZombieTimeout    time.Duration `yaml:"zombie_timeout"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
	LocalDemux       bool          `yaml:"local_demux"`
	Channels         Channels      `yaml:"channels"`
}

// Load reads and validates the fleet file at path.
func Load(path string) (*Fleet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	f, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return f, nil
}

// Parse decodes and validates a fleet description.
func Parse(raw []byte) (*Fleet, error) {
	f := &Fleet{Defaults: Defaults{Knobs: unit.DefaultKnobNames()}}
	if err := yaml.Unmarshal(raw, f); err != nil {
		return nil, err
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return f, nil
}

// Validate checks the fleet description. It does not mutate it.
func (f *Fleet) Validate() error {
	if len(f.Units) == 0 {
		return errors.New("units: at least one unit is required")
	}

	seen := make(map[string]int, len(f.Units))
	for i, u := range f.Units {
		if u.Host == "" {
			return fmt.Errorf("units[%d]: host is required", i)
		}
		if prev, ok := seen[u.Host]; ok {
			return fmt.Errorf("units[%d]: host %q already used by units[%d]", i, u.Host, prev)
		}
		seen[u.Host] = i
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"defaults.connect_timeout", f.Defaults.ConnectTimeout},
		{"defaults.site_join_timeout", f.Defaults.SiteJoinTimeout},
		{"defaults.poll_interval", f.Defaults.PollInterval},
		{"shot.zombie_timeout", f.Shot.ZombieTimeout},
		{"shot.watchdog_interval", f.Shot.WatchdogInterval},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%s: must not be negative", d.name)
		}
	}

	if n := f.Shot.Channels.units; n > 0 && n != len(f.Units) {
		return fmt.Errorf("shot.channels: %d per-unit entries for %d units", n, len(f.Units))
	}

	return nil
}

// Hosts returns the unit hosts in file order.
func (f *Fleet) Hosts() []string {
	hosts := make([]string, len(f.Units))
	for i, u := range f.Units {
		hosts[i] = u.Host
	}

	return hosts
}

// UnitOptions returns the options of unit i, followed by extra.
func (f *Fleet) UnitOptions(i int, extra ...unit.ConfigOption) []unit.ConfigOption {
	d := f.Defaults
	u := f.Units[i]

	trace := d.Trace
	if u.Trace != nil {
		trace = *u.Trace
	}

	opts := []unit.ConfigOption{
		unit.WithPorts(d.Ports.Merge(u.Ports)),
		unit.WithKnobNames(d.Knobs),
		unit.WithTrace(trace),
		unit.WithPartialFallback(d.PartialFallback),
		unit.WithProcessInterrupt(d.InterruptOnAnomaly),
	}
	if d.ConnectTimeout > 0 {
		opts = append(opts, unit.WithConnectTimeout(d.ConnectTimeout))
	}
	if d.SiteJoinTimeout > 0 {
		opts = append(opts, unit.WithSiteJoinTimeout(d.SiteJoinTimeout))
	}
	if d.PollInterval > 0 {
		opts = append(opts, unit.WithPollInterval(d.PollInterval))
	}

	return append(opts, extra...)
}

// ShotOptions returns the shot controller options, followed by extra.
func (f *Fleet) ShotOptions(extra ...shot.ConfigOption) []shot.ConfigOption {
	s := f.Shot

	opts := []shot.ConfigOption{
		shot.WithChannels(s.Channels.ChannelMap),
		shot.WithLocalDemux(s.LocalDemux),
	}
	if s.ZombieTimeout > 0 {
		opts = append(opts, shot.WithZombieTimeout(s.ZombieTimeout))
	}
	if s.WatchdogInterval > 0 {
		opts = append(opts, shot.WithWatchdogInterval(s.WatchdogInterval))
	}

	return append(opts, extra...)
}

// Open connects every unit of the fleet in parallel. extra options are
// applied to every unit after the fleet settings. If any unit fails, the
// units already open are closed.
func (f *Fleet) Open(ctx context.Context, extra ...unit.ConfigOption) ([]*unit.Unit, error) {
	units := make([]*unit.Unit, len(f.Units))

	g, gctx := errgroup.WithContext(ctx)
	for i, uc := range f.Units {
		g.Go(func() error {
			cfg, err := unit.NewConfig(f.UnitOptions(i, extra...)...)
			if err != nil {
				return fmt.Errorf("unit %s: %w", uc.Host, err)
			}

			u, err := unit.Open(gctx, uc.Host, cfg)
			if err != nil {
				return err
			}
			units[i] = u

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, u := range units {
			if u != nil {
				_ = u.Close()
			}
		}

		return nil, err
	}

	return units, nil
}

package unit

import (
	"errors"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/command"
	"github.com/arloliu/go-acq/data"
	"github.com/arloliu/go-acq/logger"
	"github.com/arloliu/go-acq/status"
)

// Config holds the parameters of a unit and of the sessions, monitor and data
// clients it creates.
type Config struct {
	ports acq.Ports
	knobs KnobNames

	// connectTimeout bounds every TCP connect. Defaults to 3 seconds.
	connectTimeout time.Duration

	// siteJoinTimeout bounds the wait for each site session at open time.
	// A site that is not ready by then is left out. Defaults to 10 seconds.
	siteJoinTimeout time.Duration

	// pollInterval is the status wait polling interval. Defaults to 100ms.
	pollInterval time.Duration

	trace            bool
	partialFallback  bool
	processInterrupt bool
	onAnomaly        status.AnomalyHandler

	dialer acq.Dialer
	logger logger.Logger
}

// NewConfig creates a unit configuration with the given options.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	cfg := &Config{
		ports:           acq.DefaultPorts(),
		knobs:           DefaultKnobNames(),
		connectTimeout:  3 * time.Second,
		siteJoinTimeout: 10 * time.Second,
		pollInterval:    100 * time.Millisecond,
		dialer:          acq.DefaultDialer(),
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Ports returns the port map.
func (cfg *Config) Ports() acq.Ports { return cfg.ports }

// Knobs returns the knob names.
func (cfg *Config) Knobs() KnobNames { return cfg.knobs }

// PollInterval returns the status wait polling interval.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

func (cfg *Config) commandConfig(host string, site int) (*command.Config, error) {
	return command.NewConfig(host, cfg.ports.Site(site),
		command.WithSite(site),
		command.WithConnectTimeout(cfg.connectTimeout),
		command.WithTrace(cfg.trace),
		command.WithDialer(cfg.dialer),
		command.WithLogger(cfg.logger),
	)
}

func (cfg *Config) statusConfig() (*status.Config, error) {
	opts := []status.ConfigOption{
		status.WithPollInterval(cfg.pollInterval),
		status.WithConnectTimeout(cfg.connectTimeout),
		status.WithTrace(cfg.trace),
		status.WithDialer(cfg.dialer),
		status.WithLogger(cfg.logger),
	}
	if cfg.onAnomaly != nil {
		opts = append(opts, status.WithAnomalyHandler(cfg.onAnomaly))
	}
	if cfg.processInterrupt {
		opts = append(opts, status.WithProcessInterrupt())
	}

	return status.NewConfig(opts...)
}

func (cfg *Config) dataConfig() (*data.Config, error) {
	return data.NewConfig(
		data.WithConnectTimeout(cfg.connectTimeout),
		data.WithPartialFallback(cfg.partialFallback),
		data.WithDialer(cfg.dialer),
		data.WithLogger(cfg.logger),
	)
}

// ConfigOption is a functional option for Config.
type ConfigOption interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return acq.ErrConfigNil
	}

	return f(cfg)
}

// WithPorts overrides the non-zero ports of the default port map.
func WithPorts(p acq.Ports) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.ports = cfg.ports.Merge(p)
		return nil
	})
}

// WithKnobNames overrides the non-empty knob names of the defaults. The site
// numbers are taken as given.
func WithKnobNames(k KnobNames) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if k.CalHeader < 0 {
			return errors.New("calibration header must not be negative")
		}
		cfg.knobs = k.merge(DefaultKnobNames())

		return nil
	})
}

// WithConnectTimeout sets the TCP connect timeout of every connection.
func WithConnectTimeout(timeout time.Duration) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("connect timeout must be positive")
		}
		cfg.connectTimeout = timeout

		return nil
	})
}

// WithSiteJoinTimeout sets how long open waits for each site session.
func WithSiteJoinTimeout(timeout time.Duration) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("site join timeout must be positive")
		}
		cfg.siteJoinTimeout = timeout

		return nil
	})
}

// WithPollInterval sets the status wait polling interval.
func WithPollInterval(interval time.Duration) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = interval

		return nil
	})
}

// WithTrace enables request and status tracing.
func WithTrace(enabled bool) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.trace = enabled
		return nil
	})
}

// WithPartialFallback makes channel reads keep partial data when a data port
// closes early.
func WithPartialFallback(enabled bool) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.partialFallback = enabled
		return nil
	})
}

// WithAnomalyHandler sets the skipped-ARM handler of the status monitor.
func WithAnomalyHandler(h status.AnomalyHandler) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.onAnomaly = h
		return nil
	})
}

// WithProcessInterrupt makes a skipped-ARM anomaly interrupt the process. It
// replaces a handler set by WithAnomalyHandler.
func WithProcessInterrupt(enabled bool) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.processInterrupt = enabled
		return nil
	})
}

// WithDialer replaces the dialer, mainly for simulated units.
func WithDialer(d acq.Dialer) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if d == nil {
			return errors.New("dialer is nil")
		}
		cfg.dialer = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

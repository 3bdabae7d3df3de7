package status

import (
	"errors"
	"os"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/logger"
)

// AnomalyHandler is invoked once, from the monitor goroutine, when the
// monitor detects a skipped ARM transition.
type AnomalyHandler func(err *acq.FatalAnomalyError)

// Config holds the parameters of a status feed and its monitor.
type Config struct {
	// pollInterval is the edge polling interval of WaitArmed/WaitStopped.
	// Defaults to 100ms.
	pollInterval time.Duration

	// connectTimeout bounds the TCP connect. Defaults to 3 seconds.
	connectTimeout time.Duration

	// trace logs every parsed record.
	trace bool

	onAnomaly AnomalyHandler
	dialer    acq.Dialer
	logger    logger.Logger
}

// NewConfig creates a status configuration with the given options.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	cfg := &Config{
		pollInterval:   100 * time.Millisecond,
		connectTimeout: 3 * time.Second,
		dialer:         acq.DefaultDialer(),
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// PollInterval returns the edge polling interval.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

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

// WithPollInterval sets the interval at which waits check the edge flags and
// the quit/break signals.
func WithPollInterval(interval time.Duration) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = interval

		return nil
	})
}

// WithConnectTimeout sets the TCP connect timeout of the feed.
func WithConnectTimeout(timeout time.Duration) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("connect timeout must be positive")
		}
		cfg.connectTimeout = timeout

		return nil
	})
}

// WithTrace enables logging of every parsed record.
func WithTrace(enabled bool) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.trace = enabled
		return nil
	})
}

// WithAnomalyHandler sets the skipped-ARM handler.
func WithAnomalyHandler(h AnomalyHandler) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.onAnomaly = h
		return nil
	})
}

// WithProcessInterrupt makes a skipped-ARM anomaly interrupt the whole
// process with os.Interrupt, after logging it.
func WithProcessInterrupt() ConfigOption {
	return WithAnomalyHandler(interruptProcess)
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

func interruptProcess(_ *acq.FatalAnomalyError) {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return
	}
	_ = p.Signal(os.Interrupt)
}

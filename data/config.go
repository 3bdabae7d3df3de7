package data

import (
	"errors"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/logger"
)

// Config holds the parameters of a data client.
type Config struct {
	// connectTimeout bounds the TCP connect. Defaults to 3 seconds.
	connectTimeout time.Duration

	// readBufferSize is the size of a single socket read. Defaults to 64KiB.
	readBufferSize int

	// partialFallback returns whatever whole samples arrived when a port
	// closes early, instead of failing with acq.ErrDataUnavailable.
	partialFallback bool

	dialer acq.Dialer
	logger logger.Logger
}

// NewConfig creates a data client configuration with the given options.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	cfg := &Config{
		connectTimeout: 3 * time.Second,
		readBufferSize: 64 * 1024,
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

// PartialFallback reports whether short reads fall back to partial data.
func (cfg *Config) PartialFallback() bool { return cfg.partialFallback }

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

// WithConnectTimeout sets the TCP connect timeout.
func WithConnectTimeout(timeout time.Duration) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("connect timeout must be positive")
		}
		cfg.connectTimeout = timeout

		return nil
	})
}

// WithReadBufferSize sets the size of a single socket read.
func WithReadBufferSize(size int) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if size <= 0 {
			return errors.New("read buffer size must be positive")
		}
		cfg.readBufferSize = size

		return nil
	})
}

// WithPartialFallback makes a short read return the whole samples received
// so far, logging a warning, instead of failing.
func WithPartialFallback(enabled bool) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.partialFallback = enabled
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

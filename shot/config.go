package shot

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/logger"
)

// TriggerFunc fires the trigger of a shot, e.g. through an external trigger
// source. It is called once, after every unit has armed.
type TriggerFunc func(ctx context.Context) error

// Config holds the parameters of a shot controller.
type Config struct {
	// zombieTimeout is how long the watchdog waits for stragglers once some
	// units have finished a wait phase. Defaults to 10 seconds.
	zombieTimeout time.Duration

	// watchdogInterval is the liveness polling interval of the watchdog.
	// Defaults to 500ms.
	watchdogInterval time.Duration

	// trigger replaces the soft trigger of the first unit.
	trigger TriggerFunc

	channels   ChannelMap
	localDemux bool

	logger logger.Logger
}

// NewConfig creates a shot configuration with the given options.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	cfg := &Config{
		zombieTimeout:    10 * time.Second,
		watchdogInterval: 500 * time.Millisecond,
		channels:         AllChannels(),
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// ZombieTimeout returns the straggler timeout of the wait phases.
func (cfg *Config) ZombieTimeout() time.Duration { return cfg.zombieTimeout }

// WatchdogInterval returns the watchdog polling interval.
func (cfg *Config) WatchdogInterval() time.Duration { return cfg.watchdogInterval }

// Channels returns the channel selection of the collect phase.
func (cfg *Config) Channels() ChannelMap { return cfg.channels }

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

// WithZombieTimeout sets how long stragglers may lag behind the first unit to
// finish a wait phase.
func WithZombieTimeout(timeout time.Duration) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("zombie timeout must be positive")
		}
		cfg.zombieTimeout = timeout

		return nil
	})
}

// WithWatchdogInterval sets the watchdog polling interval.
func WithWatchdogInterval(interval time.Duration) ConfigOption {
	return optFunc(func(cfg *Config) error {
		if interval <= 0 {
			return errors.New("watchdog interval must be positive")
		}
		cfg.watchdogInterval = interval

		return nil
	})
}

// WithTrigger sets the trigger action. A nil fn restores the soft trigger.
func WithTrigger(fn TriggerFunc) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.trigger = fn
		return nil
	})
}

// WithChannels sets the channels collected from each unit.
func WithChannels(m ChannelMap) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.channels = m
		return nil
	})
}

// WithLocalDemux demultiplexes on the host when all channels are collected
// from a unit that does not demultiplex itself.
func WithLocalDemux(enabled bool) ConfigOption {
	return optFunc(func(cfg *Config) error {
		cfg.localDemux = enabled
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

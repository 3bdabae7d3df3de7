package command

import (
	"errors"
	"regexp"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/logger"
)

// DefaultPromptPattern matches the prompt terminating every response.
const DefaultPromptPattern = `acq400\.[0-9]+ [0-9]+ >`

// Config holds the parameters of a command session.
type Config struct {
	host string
	port int
	site int

	// connectTimeout bounds the TCP connect. Defaults to 3 seconds.
	connectTimeout time.Duration

	// prompt terminates every response.
	prompt *regexp.Regexp

	// promptCommand enables the prompt right after connect. Empty disables it.
	// Defaults to "prompt on".
	promptCommand string

	// listCommand returns the knob listing. Defaults to "help".
	listCommand string

	// readBufferSize is the size of a single socket read. Defaults to 4096.
	readBufferSize int

	// trace logs every request/response pair.
	trace bool

	dialer acq.Dialer
	logger logger.Logger
}

// NewConfig creates a session configuration for host:port with the given options.
func NewConfig(host string, port int, opts ...ConfigOption) (*Config, error) {
	cfg := &Config{
		host:           host,
		port:           port,
		connectTimeout: 3 * time.Second,
		prompt:         regexp.MustCompile(DefaultPromptPattern),
		promptCommand:  "prompt on",
		listCommand:    "help",
		readBufferSize: 4096,
		dialer:         acq.DefaultDialer(),
		logger:         logger.GetLogger(),
	}

	if host == "" {
		return cfg, errors.New("host is empty")
	}

	if port <= 0 || port > 65535 {
		return cfg, errors.New("port is out of range [1, 65535]")
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Host returns the remote host.
func (cfg *Config) Host() string { return cfg.host }

// Port returns the remote command port.
func (cfg *Config) Port() int { return cfg.port }

// Site returns the site number served by the port.
func (cfg *Config) Site() int { return cfg.site }

// ConfigOption is a functional option for Config.
type ConfigOption interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return acq.ErrConfigNil
	}

	return o.applyFunc(cfg)
}

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithSite records the site number served by the port. It only affects logs
// and error messages.
func WithSite(site int) ConfigOption {
	return newOptFunc("WithSite", func(cfg *Config) error {
		if site < 0 {
			return errors.New("site must not be negative")
		}
		cfg.site = site

		return nil
	})
}

// WithConnectTimeout sets the TCP connect timeout.
func WithConnectTimeout(timeout time.Duration) ConfigOption {
	return newOptFunc("WithConnectTimeout", func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("connect timeout must be positive")
		}
		cfg.connectTimeout = timeout

		return nil
	})
}

// WithPrompt replaces the response terminator pattern.
func WithPrompt(pattern string) ConfigOption {
	return newOptFunc("WithPrompt", func(cfg *Config) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return err
		}
		cfg.prompt = re

		return nil
	})
}

// WithPromptCommand sets the verb sent right after connect to turn the prompt
// on. An empty verb skips the step.
func WithPromptCommand(verb string) ConfigOption {
	return newOptFunc("WithPromptCommand", func(cfg *Config) error {
		cfg.promptCommand = verb
		return nil
	})
}

// WithListCommand sets the verb whose response lists the knobs.
func WithListCommand(verb string) ConfigOption {
	return newOptFunc("WithListCommand", func(cfg *Config) error {
		if verb == "" {
			return errors.New("list command is empty")
		}
		cfg.listCommand = verb

		return nil
	})
}

// WithReadBufferSize sets the size of a single socket read.
func WithReadBufferSize(size int) ConfigOption {
	return newOptFunc("WithReadBufferSize", func(cfg *Config) error {
		if size <= 0 {
			return errors.New("read buffer size must be positive")
		}
		cfg.readBufferSize = size

		return nil
	})
}

// WithTrace enables logging of every request/response pair.
func WithTrace(enabled bool) ConfigOption {
	return newOptFunc("WithTrace", func(cfg *Config) error {
		cfg.trace = enabled
		return nil
	})
}

// WithDialer replaces the dialer, mainly for simulated units.
func WithDialer(d acq.Dialer) ConfigOption {
	return newOptFunc("WithDialer", func(cfg *Config) error {
		if d == nil {
			return errors.New("dialer is nil")
		}
		cfg.dialer = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ConfigOption {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

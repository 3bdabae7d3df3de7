package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-acq/acq"
	"github.com/arloliu/go-acq/internal/util"
	"github.com/arloliu/go-acq/logger"
)

// aLongTimeAgo is a deadline in the past, used to unblock a pending read.
var aLongTimeAgo = time.Unix(1, 0)

// Session is one persistent connection to a site command port.
//
// A session processes at most one outstanding request. Concurrent calls are
// serialized; callers that need parallel access to the same site must dial
// one session per caller.
type Session struct {
	cfg    *Config
	addr   string
	logger logger.Logger

	mu      sync.Mutex // serializes requests
	conn    net.Conn
	rxBuf   []byte // received bytes not consumed by a previous response
	readBuf []byte

	registry *Registry
	opState  acq.AtomicOpState
	desync   atomic.Bool
	metrics  SessionMetrics
}

// Dial connects to the command port described by cfg and discovers its knobs.
//
// The connect itself is bounded by the configured connect timeout. Knob
// discovery is bounded only by ctx.
func Dial(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, acq.ErrConfigNil
	}

	s := &Session{
		cfg:     cfg,
		addr:    net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port)),
		logger:  cfg.logger.With("addr", cfg.host, "site", cfg.site),
		readBuf: make([]byte, cfg.readBufferSize),
	}
	s.opState.ToOpening()

	conn, err := acq.Dial(ctx, cfg.dialer, cfg.host, cfg.port, cfg.connectTimeout)
	if err != nil {
		s.opState.Set(acq.ClosedState)
		return nil, err
	}
	s.conn = conn
	s.opState.ToOpened()

	if err := s.discoverKnobs(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.logger.Debug("command session opened", "knobs", s.registry.Len())

	return s, nil
}

// discoverKnobs enables the prompt and builds the registry from the listing.
func (s *Session) discoverKnobs(ctx context.Context) error {
	if s.cfg.promptCommand != "" {
		if _, err := s.Send(ctx, s.cfg.promptCommand); err != nil {
			return fmt.Errorf("enable prompt: %w", err)
		}
	}

	listing, err := s.Send(ctx, s.cfg.listCommand)
	if err != nil {
		return fmt.Errorf("list knobs: %w", err)
	}
	s.registry = NewRegistry(listing)

	return nil
}

// Addr returns the host:port of the command port.
func (s *Session) Addr() string { return s.addr }

// Site returns the site number served by the session.
func (s *Session) Site() int { return s.cfg.site }

// Knobs returns the knob registry discovered at dial time.
func (s *Session) Knobs() *Registry { return s.registry }

// Metrics returns the session counters.
func (s *Session) Metrics() *SessionMetrics { return &s.metrics }

// Get queries a knob and returns the response with the prompt and surrounding
// whitespace removed.
func (s *Session) Get(ctx context.Context, name string) (string, error) {
	wire, err := s.lookup(name)
	if err != nil {
		return "", err
	}

	return s.Send(ctx, wire)
}

// Set writes value to a knob and returns the response text, which is usually
// empty.
func (s *Session) Set(ctx context.Context, name string, value any) (string, error) {
	wire, err := s.lookup(name)
	if err != nil {
		return "", err
	}

	return s.Send(ctx, wire+"="+fmt.Sprint(value))
}

// GetInt queries a knob and parses its value as an integer.
func (s *Session) GetInt(ctx context.Context, name string) (int, error) {
	resp, err := s.Get(ctx, name)
	if err != nil {
		return 0, err
	}

	v, err := util.ParseInt(Value(resp))
	if err != nil {
		return 0, fmt.Errorf("knob %s: %w", name, err)
	}

	return v, nil
}

// GetFloat queries a knob and parses its value as a float.
func (s *Session) GetFloat(ctx context.Context, name string) (float64, error) {
	resp, err := s.Get(ctx, name)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(Value(resp), 64)
	if err != nil {
		return 0, fmt.Errorf("knob %s: %w", name, err)
	}

	return v, nil
}

// Value extracts the value from a knob response. Some knobs echo their name
// ("SIG:SRC:TRG:0 EXT"); the last field is returned in that case.
func Value(resp string) string {
	fields := strings.Fields(resp)
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	default:
		return fields[len(fields)-1]
	}
}

// Send writes one raw request line and waits for its terminated response.
//
// There is no built-in timeout: a response that never carries the prompt
// blocks until ctx is done. A request interrupted by ctx leaves the framing
// unknown, so the session is marked desynchronized and every later call fails
// with acq.ErrProtocolDesync.
func (s *Session) Send(ctx context.Context, line string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.desync.Load() {
		return "", fmt.Errorf("%s: %w", s.addr, acq.ErrProtocolDesync)
	}
	if !s.opState.IsOpened() {
		return "", acq.ErrConnClosed
	}

	s.metrics.incRequestCount()

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(aLongTimeAgo)
		_ = s.conn.SetWriteDeadline(aLongTimeAgo)
	})
	defer stop()

	resp, err := s.roundTrip(line)
	if err != nil {
		s.metrics.incErrCount()

		if ctxErr := ctx.Err(); ctxErr != nil {
			s.desync.Store(true)
			s.logger.Warn("command interrupted, session desynchronized", "tx", line, "error", ctxErr)

			return "", fmt.Errorf("%s %q: %w: %w", s.addr, line, acq.ErrProtocolDesync, ctxErr)
		}

		if !s.opState.IsOpened() {
			return "", acq.ErrConnClosed
		}

		return "", acq.NewConnectionError("command", s.addr, err)
	}

	if s.cfg.trace {
		s.logger.Info("command trace", "tx", line, "rx", resp)
	}

	return resp, nil
}

func (s *Session) roundTrip(line string) (string, error) {
	n, err := s.conn.Write([]byte(line + "\n"))
	s.metrics.addBytesSent(n)
	if err != nil {
		return "", err
	}

	for {
		if loc := s.cfg.prompt.FindIndex(s.rxBuf); loc != nil {
			resp := string(s.rxBuf[:loc[0]])
			s.rxBuf = append(s.rxBuf[:0], s.rxBuf[loc[1]:]...)

			return strings.TrimSpace(resp), nil
		}

		n, err := s.conn.Read(s.readBuf)
		if n > 0 {
			s.metrics.addBytesRecv(n)
			s.rxBuf = append(s.rxBuf, s.readBuf[:n]...)
		}
		if err != nil {
			return "", err
		}
	}
}

func (s *Session) lookup(name string) (string, error) {
	if s.registry == nil {
		return "", acq.ErrConnClosed
	}

	wire, ok := s.registry.Lookup(name)
	if !ok {
		return "", &acq.UnknownKnobError{Name: name, Addr: s.addr}
	}

	return wire, nil
}

// Close closes the connection. A request blocked in another goroutine fails
// with acq.ErrConnClosed. Close is idempotent.
func (s *Session) Close() error {
	if !s.opState.ToClosing() {
		return nil
	}
	defer s.opState.ToClosed()

	s.logger.Debug("close command session")

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

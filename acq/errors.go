package acq

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is matched by every *ConnectionError.
	ErrConnection = errors.New("connection error")

	// ErrConnClosed indicates that the connection has been closed locally.
	ErrConnClosed = errors.New("connection closed")

	// ErrUnknownKnob indicates that a knob is absent from a session's registry.
	ErrUnknownKnob = errors.New("unknown knob")

	// ErrProtocolDesync indicates that a command session lost track of the
	// request/response framing and must be re-dialed.
	ErrProtocolDesync = errors.New("protocol desync")

	// ErrDataUnavailable indicates that a data port closed before delivering the
	// requested quantity of samples.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrBusy indicates that the unit is already performing a conflicting action.
	ErrBusy = errors.New("unit busy")

	// ErrFatalAnomaly indicates an impossible status transition.
	ErrFatalAnomaly = errors.New("fatal status anomaly")
)

var (
	// ErrQuit is returned from a wait when the monitor has been told to quit.
	ErrQuit = errors.New("quit requested")

	// ErrBreak is returned from a wait aborted by a watchdog break request.
	ErrBreak = errors.New("break requested")
)

var (
	// ErrConfigNil indicates that a nil configuration was provided.
	ErrConfigNil = errors.New("config is nil")

	// ErrNoSite indicates that a unit has no session for the requested site.
	ErrNoSite = errors.New("site not available")

	// ErrInvalidWordSize indicates a sample word size other than 1, 2 or 4 bytes.
	ErrInvalidWordSize = errors.New("invalid word size, should be 1, 2 or 4")

	// ErrInvalidChannel indicates a channel number outside [1, nchan].
	ErrInvalidChannel = errors.New("invalid channel")
)

// ConnectionError reports a connect failure or a read/write failure that was
// not caused by a cooperative shutdown.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

// NewConnectionError wraps err as a *ConnectionError. It returns nil if err is nil.
func NewConnectionError(op string, addr string, err error) error {
	if err == nil {
		return nil
	}

	return &ConnectionError{Op: op, Addr: addr, Err: err}
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// UnknownKnobError reports a knob lookup miss.
type UnknownKnobError struct {
	Name string
	Addr string
}

func (e *UnknownKnobError) Error() string {
	return fmt.Sprintf("unknown knob %q on %s", e.Name, e.Addr)
}

func (e *UnknownKnobError) Is(target error) bool { return target == ErrUnknownKnob }

// DataUnavailableError reports a data port that closed short.
// Want and Got are byte counts.
type DataUnavailableError struct {
	Addr string
	Want int
	Got  int
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("data unavailable from %s: want %d bytes, got %d", e.Addr, e.Want, e.Got)
}

func (e *DataUnavailableError) Is(target error) bool { return target == ErrDataUnavailable }

// BusyError reports an action refused because the unit is already busy.
type BusyError struct {
	Action string
	Knob   string
	Value  string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s refused: %s=%s", e.Action, e.Knob, e.Value)
}

func (e *BusyError) Is(target error) bool { return target == ErrBusy }

// FatalAnomalyError reports a status transition that skipped the ARM state.
type FatalAnomalyError struct {
	Addr string
	Prev int
	Next int
}

func (e *FatalAnomalyError) Error() string {
	return fmt.Sprintf("%s: skipped ARM %d -> %d", e.Addr, e.Prev, e.Next)
}

func (e *FatalAnomalyError) Is(target error) bool { return target == ErrFatalAnomaly }

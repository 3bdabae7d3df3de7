package acq

import "sync/atomic"

// OpState is the open/close lifecycle state of a long-lived handle such as a
// command session or a unit.
type OpState uint32

const (
	ClosedState OpState = iota
	ClosingState
	OpeningState
	OpenedState
)

func (s OpState) String() string {
	switch s {
	case ClosedState:
		return "closed"
	case ClosingState:
		return "closing"
	case OpeningState:
		return "opening"
	case OpenedState:
		return "opened"
	default:
		return "unknown"
	}
}

// AtomicOpState is an OpState safe for concurrent use.
// Its zero value is ClosedState.
type AtomicOpState struct {
	state atomic.Uint32
}

func (st *AtomicOpState) String() string { return st.Get().String() }

// Get returns the current state.
func (st *AtomicOpState) Get() OpState {
	return OpState(st.state.Load())
}

// Set forces the state.
func (st *AtomicOpState) Set(state OpState) {
	st.state.Store(uint32(state))
}

func (st *AtomicOpState) IsClosed() bool { return st.Get() == ClosedState }

func (st *AtomicOpState) IsOpened() bool { return st.Get() == OpenedState }

// ToOpening moves Closed -> Opening.
func (st *AtomicOpState) ToOpening() bool {
	return st.state.CompareAndSwap(uint32(ClosedState), uint32(OpeningState))
}

// ToOpened moves Opening -> Opened. It is a no-op when already opened.
func (st *AtomicOpState) ToOpened() bool {
	if st.IsOpened() {
		return true
	}

	return st.state.CompareAndSwap(uint32(OpeningState), uint32(OpenedState))
}

// ToClosing moves Opened or Opening -> Closing. It returns false if another
// caller is already closing the handle or it was never opened.
func (st *AtomicOpState) ToClosing() bool {
	if st.state.CompareAndSwap(uint32(OpenedState), uint32(ClosingState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(OpeningState), uint32(ClosingState))
}

// ToClosed moves Closing -> Closed. It is a no-op when already closed.
func (st *AtomicOpState) ToClosed() bool {
	if st.IsClosed() {
		return true
	}

	return st.state.CompareAndSwap(uint32(ClosingState), uint32(ClosedState))
}

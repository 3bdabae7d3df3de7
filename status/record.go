package status

import (
	"fmt"
	"regexp"
	"strconv"
)

// State is the capture state reported by a unit.
type State int

const (
	Idle State = iota
	Arm
	RunPre
	RunPost
	PostProcess
	Cleanup
)

// String returns the protocol name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Arm:
		return "ARM"
	case RunPre:
		return "RUNPRE"
	case RunPost:
		return "RUNPOST"
	case PostProcess:
		return "POSTPROCESS"
	case Cleanup:
		return "CLEANUP"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
	}
}

// IsKnown reports whether s is one of the six documented states.
// Unknown values are still valid and are stored as reported.
func (s State) IsKnown() bool { return s >= Idle && s <= Cleanup }

// IsIdle returns if the unit is idle.
func (s State) IsIdle() bool { return s == Idle }

// IsRunning reports whether the unit is past ARM and not yet idle.
func (s State) IsRunning() bool { return s > Arm }

// Record is one parsed status line.
type Record struct {
	State   State
	Pre     int
	Post    int
	Elapsed int
	Demux   int
}

var recordPattern = regexp.MustCompile(`(\d+) (\d+) (\d+) (\d+) (\d+)`)

// ParseRecord extracts a Record from a status line. It reports false when
// the line does not carry five integer fields.
func ParseRecord(line string) (Record, bool) {
	m := recordPattern.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false
	}

	var v [5]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Record{}, false
		}
		v[i] = n
	}

	return Record{State: State(v[0]), Pre: v[1], Post: v[2], Elapsed: v[3], Demux: v[4]}, true
}

// RemoteDemux reports whether the unit demultiplexes data itself.
func (r Record) RemoteDemux() bool { return r.Demux != 0 }

// Samples returns the total number of samples of the current capture.
func (r Record) Samples() int { return r.Pre + r.Post }

// String formats r in wire form.
func (r Record) String() string {
	return fmt.Sprintf("%d %d %d %d %d", int(r.State), r.Pre, r.Post, r.Elapsed, r.Demux)
}

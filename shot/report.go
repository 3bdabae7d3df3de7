package shot

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/go-acq/unit"
	"github.com/google/uuid"
)

// Phase is a step of a shot.
type Phase int

const (
	PhasePrep Phase = iota
	PhaseArm
	PhaseWaitArmed
	PhaseTrigger
	PhaseWaitStopped
	PhaseCollect
)

func (p Phase) String() string {
	switch p {
	case PhasePrep:
		return "prep"
	case PhaseArm:
		return "arm"
	case PhaseWaitArmed:
		return "wait-armed"
	case PhaseTrigger:
		return "trigger"
	case PhaseWaitStopped:
		return "wait-stopped"
	case PhaseCollect:
		return "collect"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// PhaseResult is the outcome of a wait phase.
type PhaseResult struct {
	Phase Phase
	// Done lists the hosts whose wait completed.
	Done []string
	// Zombies lists the hosts whose wait was broken by the watchdog.
	Zombies []string
	// Elapsed is the duration of the phase.
	Elapsed time.Duration
}

// Report describes one shot run by Controller.Run.
type Report struct {
	ID       uuid.UUID
	Started  time.Time
	Duration time.Duration
	// Armed and Stopped list the units that completed each wait phase, named
	// as by Controller.Name.
	Armed   []string
	Stopped []string
	// Excluded maps the name of each excluded unit to the phase it failed.
	Excluded map[string]Phase
	// Data holds one capture per unit, in controller order. Excluded units
	// have a nil entry.
	Data []*unit.Capture
}

func newReport() *Report {
	return &Report{
		ID:       uuid.New(),
		Started:  time.Now(),
		Excluded: make(map[string]Phase),
	}
}

// String formats a one line summary of the report.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "shot %s: armed=%d stopped=%d", r.ID, len(r.Armed), len(r.Stopped))
	for _, host := range slices.Sorted(maps.Keys(r.Excluded)) {
		fmt.Fprintf(&sb, " excluded=%s@%s", host, r.Excluded[host])
	}
	fmt.Fprintf(&sb, " in %s", r.Duration.Round(time.Millisecond))

	return sb.String()
}

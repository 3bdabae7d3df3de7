package shot

import "sync/atomic"

// ControllerMetrics contains atomic counters of a shot controller.
type ControllerMetrics struct {
	// ShotCount is the number of shots run.
	ShotCount atomic.Uint64
	// FailedShotCount is the number of shots that ended with an error.
	FailedShotCount atomic.Uint64
	// ZombieCount is the number of waits broken by the watchdog.
	ZombieCount atomic.Uint64
}

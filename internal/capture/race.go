package capture

import (
	"context"
	"time"
)

// RaceOutcome names the source that settled a FirstOf race.
type RaceOutcome string

const (
	RaceEvent    RaceOutcome = "event"
	RaceTimeout  RaceOutcome = "timeout"
	RaceCanceled RaceOutcome = "canceled"
)

// FirstOf waits until event is closed (or receives), timeout elapses, or ctx
// is done, and reports which happened first. A nil event never fires.
func FirstOf(ctx context.Context, timeout time.Duration, event <-chan struct{}) RaceOutcome {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-event:
		return RaceEvent
	case <-timer.C:
		return RaceTimeout
	case <-ctx.Done():
		return RaceCanceled
	}
}

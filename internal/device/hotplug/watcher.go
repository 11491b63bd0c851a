package hotplug

import (
	"context"
	"log/slog"
	"time"
)

// DefaultDebounce collapses the burst of uevents a single camera produces
// when plugged in (hub, depth, color and audio interfaces).
const DefaultDebounce = 750 * time.Millisecond

// Watch consumes events until ctx is done or events is closed, and calls
// onChange once per debounced burst of matching events.
func Watch(ctx context.Context, events <-chan Event, vendor string, debounce time.Duration, logger *slog.Logger, onChange func()) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Matches(vendor) {
				continue
			}
			logger.Debug("Camera hotplug event", "action", ev.Action, "kobj", ev.KObj)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			onChange()
		}
	}
}

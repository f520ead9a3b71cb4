package single

import (
	"context"
	"time"

	"github.com/surge-downloader/loader/internal/engine/types"
)

// watchdog cancels a transfer context with types.ErrTimeout once the timeout
// elapses, then runs onFire. A zero timeout never fires.
type watchdog struct {
	cancel  context.CancelCauseFunc
	timer   *time.Timer
	timeout time.Duration
}

func newWatchdog(parent context.Context, timeout time.Duration, onFire func()) (context.Context, *watchdog) {
	ctx, cancel := context.WithCancelCause(parent)
	wd := &watchdog{cancel: cancel, timeout: timeout}
	if timeout > 0 {
		wd.timer = time.AfterFunc(timeout, func() {
			cancel(types.ErrTimeout)
			onFire()
		})
	}
	return ctx, wd
}

// Stop disarms the timer and releases the context.
func (wd *watchdog) Stop() {
	if wd == nil {
		return
	}
	if wd.timer != nil {
		wd.timer.Stop()
	}
	wd.cancel(nil)
}

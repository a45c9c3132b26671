package sentinel

import (
	"context"
	"fmt"
	"time"

	"github.com/viewstream/viewstream-go/logger"
)

const (
	DEFAULT_TIMEOUT  = 0
	DEFAULT_INTERVAL = 100 * time.Millisecond
)

type WatchStatus int

const (
	WatchSuccess WatchStatus = iota
	WatchErr
	WatchTimeout
	WatchCanceled
)

func (s WatchStatus) String() string {
	switch s {
	case WatchSuccess:
		return "SUCCESS"
	case WatchErr:
		return "ERROR"
	case WatchCanceled:
		return "CANCELED"
	case WatchTimeout:
		return "TIMEOUT"
	}
	return "<UNSET>"
}

// Sentinel repeatedly checks the status of something on a given interval,
// up to a timeout. StatusFn is called until it reports done or returns an
// error. Context cancelation is supported and invokes OnCancelFn, if set,
// before returning WatchCanceled.
type Sentinel struct {
	StatusFn   func() (done bool, err error)
	OnCancelFn func() error
}

func (s Sentinel) Watch(ctx context.Context, interval, timeout time.Duration) (WatchStatus, error) {
	if s.StatusFn == nil {
		s.StatusFn = func() (bool, error) { return true, nil }
	}
	if interval == 0 {
		interval = DEFAULT_INTERVAL
	}

	var timeoutTimerCh <-chan time.Time
	if timeout != DEFAULT_TIMEOUT {
		timeoutTimer := time.NewTimer(timeout)
		timeoutTimerCh = timeoutTimer.C
		defer timeoutTimer.Stop()
	}

	// first check runs immediately, subsequent ones on the interval
	intervalTimer := time.NewTimer(0)
	defer intervalTimer.Stop()

	for {
		select {
		case <-intervalTimer.C:
			done, err := s.StatusFn()
			if err != nil {
				return WatchErr, err
			}
			if done {
				return WatchSuccess, nil
			}
			// resetting it here so StatusFn is called again after interval time
			_ = intervalTimer.Reset(interval)
		case <-ctx.Done():
			_ = intervalTimer.Stop()
			if s.OnCancelFn != nil {
				if err := s.OnCancelFn(); err != nil {
					return WatchCanceled, err
				}
			}
			return WatchCanceled, ctx.Err()
		case <-timeoutTimerCh:
			_ = intervalTimer.Stop()
			logger.Info().Msgf("watch timed out after %s", timeout.String())
			return WatchTimeout, fmt.Errorf("sentinel timed out")
		}
	}
}

package sentinel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatch(t *testing.T) {
	t.Parallel()
	t.Run("it should return immediately when already done", func(t *testing.T) {
		statusFnCalls := 0
		s := Sentinel{
			StatusFn: func() (bool, error) {
				statusFnCalls++
				return true, nil
			},
		}
		status, err := s.Watch(context.Background(), 0, 0)
		assert.Equal(t, WatchSuccess, status)
		assert.Equal(t, 1, statusFnCalls)
		assert.NoError(t, err)
	})
	t.Run("it should poll until done", func(t *testing.T) {
		statusFnCalls := 0
		s := Sentinel{
			StatusFn: func() (bool, error) {
				statusFnCalls++
				return statusFnCalls >= 3, nil
			},
		}
		status, err := s.Watch(context.Background(), 10*time.Millisecond, 0)
		assert.Equal(t, WatchSuccess, status)
		assert.Equal(t, 3, statusFnCalls)
		assert.NoError(t, err)
	})
	t.Run("it should surface status errors", func(t *testing.T) {
		s := Sentinel{
			StatusFn: func() (bool, error) {
				return false, fmt.Errorf("boom")
			},
		}
		status, err := s.Watch(context.Background(), 10*time.Millisecond, 0)
		assert.Equal(t, WatchErr, status)
		assert.Error(t, err)
	})
	t.Run("it should timeout", func(t *testing.T) {
		statusFnCalls := 0
		s := Sentinel{
			StatusFn: func() (bool, error) {
				statusFnCalls++
				return false, nil
			},
		}
		status, err := s.Watch(context.Background(), 100*time.Millisecond, 500*time.Millisecond)
		assert.Equal(t, WatchTimeout, status)
		assert.Greater(t, statusFnCalls, 1)
		assert.Error(t, err)
	})
	t.Run("it should cancel with context timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		cancelFnCalls := 0
		s := Sentinel{
			StatusFn: func() (bool, error) {
				return false, nil
			},
			OnCancelFn: func() error {
				cancelFnCalls++
				return nil
			},
		}
		status, err := s.Watch(ctx, 10*time.Millisecond, 1*time.Second)
		assert.Equal(t, WatchCanceled, status)
		assert.Equal(t, 1, cancelFnCalls)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

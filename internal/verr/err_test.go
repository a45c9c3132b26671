package verr

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/viewstream/viewstream-go/clientctx"
	vserr "github.com/viewstream/viewstream-go/errors"
)

func TestErrorTaxonomy(t *testing.T) {
	ctx := clientctx.NewContextWithConnId(context.Background(), "conn1")
	ctx = clientctx.NewContextWithCorrelationId(ctx, "corr1")
	ctx = clientctx.NewContextWithQueryId(ctx, "query1")

	t.Run("submission error", func(t *testing.T) {
		err := NewSubmissionError(ctx, ErrSubmitQuery, errors.New("connection refused"), 7)
		assert.True(t, errors.Is(err, vserr.SubmissionError))
		assert.False(t, errors.Is(err, vserr.ExecutionError))
		assert.Equal(t, "conn1", err.ConnectionId())
		assert.Equal(t, "corr1", err.CorrelationId())
		assert.Equal(t, 7, err.EngineStatus())
		assert.Contains(t, err.Error(), "viewstream: submission error: "+ErrSubmitQuery)
		assert.NotNil(t, err.StackTrace())
	})

	t.Run("execution error", func(t *testing.T) {
		err := NewExecutionError(ctx, ErrQueryPump, context.Canceled)
		assert.True(t, errors.Is(err, vserr.ExecutionError))
		assert.Equal(t, "query1", err.QueryId())
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("system fault", func(t *testing.T) {
		err := NewSystemFault(ctx, ErrEngineIdle, nil)
		assert.True(t, errors.Is(err, vserr.SystemFault))
		assert.False(t, err.IsRetryable())
		assert.NotNil(t, err.StackTrace())
	})

	t.Run("wrap preserves existing stack trace", func(t *testing.T) {
		inner := errors.New("inner")
		wrapped := WrapErr(inner, "outer")

		var st stackTracer
		assert.True(t, errors.As(wrapped, &st))
		// the trace should come from the inner error, not a second one
		assert.Equal(t, inner.(stackTracer).StackTrace(), st.StackTrace())
	})
}

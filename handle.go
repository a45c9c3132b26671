package viewstream

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/viewstream/viewstream-go/internal/engine"
	"github.com/viewstream/viewstream-go/internal/sentinel"
	"github.com/viewstream/viewstream-go/internal/verr"
)

// DefaultBatchThreshold is the number of rows buffered per query before an
// intermediate flush to the row handler. It bounds peak memory for large
// result sets while amortizing handler dispatch cost.
const DefaultBatchThreshold = 20

// Status of a completed query. Aliased from the engine so handler code can
// compare against the exported constants.
type Status = engine.Status

const (
	StatusSuccess    = engine.StatusSuccess
	StatusErrGeneric = engine.StatusErrGeneric
	StatusErrNetwork = engine.StatusErrNetwork
	StatusErrHTTP    = engine.StatusErrHTTP
	StatusCanceled   = engine.StatusCanceled
)

// Handle represents one outstanding streaming view query. It is created by
// Client.IssueQuery and mutated only while pumping events, so all methods
// must be called from the goroutine that pumps (FetchNext/Await).
type Handle struct {
	// non-owning back-reference, used only to reach the shared event pump
	client *Client

	// stored consumer callback; shared, never owned. Invoked only through
	// invokeHandler so a fault inside it is contained locally.
	handler   RowHandler
	token     engine.Token
	ctx       context.Context
	threshold int

	// rows accumulated since the last flush
	rawRows []Row

	// count of handler invocations, used by FetchNext to detect progress
	dispatched int

	done          bool
	status        Status
	meta          []byte
	httpStatus    int
	hasHTTPStatus bool
}

// Done reports whether the terminal event has been delivered.
func (h *Handle) Done() bool {
	return h.done
}

// Status returns the terminal result code. It is meaningful only once
// Done() is true.
func (h *Handle) Status() Status {
	return h.status
}

// Meta returns the raw trailing metadata of the query (e.g. total_rows,
// debug info), set at completion. Nil before Done() and when the response
// carried none.
func (h *Handle) Meta() []byte {
	return h.meta
}

// HTTPStatus returns the transport status code of the terminal event. The
// second return is false when no transport response was available.
func (h *Handle) HTTPStatus() (int, bool) {
	return h.httpStatus, h.hasHTTPStatus
}

// FetchNext pumps the event loop until this query makes progress: at least
// one handler invocation (a batch or the completion call). It returns
// immediately once the query is done.
func (h *Handle) FetchNext(ctx context.Context) error {
	if h.done {
		return nil
	}

	seen := h.dispatched
	for !h.done && h.dispatched == seen {
		more, err := h.client.eng.Step(ctx)
		if err != nil {
			return verr.NewExecutionError(h.ctx, verr.ErrQueryPump, err)
		}
		if !more && !h.done && h.dispatched == seen {
			return verr.NewSystemFault(h.ctx, verr.ErrEngineIdle, nil)
		}
	}
	return nil
}

// Await pumps the event loop until the query completes. Cancelling ctx
// requests an early final event from the engine and returns once observed.
func (h *Handle) Await(ctx context.Context) error {
	if h.done {
		return nil
	}

	s := sentinel.Sentinel{
		StatusFn: func() (bool, error) {
			if !h.done {
				// bound each pump slice so the watcher's timers stay live.
				// Context errors are not failures here: an expired slice just
				// means another poll, and a cancelled ctx is handled by the
				// watcher's own cancel branch below
				stepCtx, cancel := context.WithTimeout(ctx, sentinel.DEFAULT_INTERVAL)
				_, err := h.client.eng.Step(stepCtx)
				cancel()
				if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
					return false, err
				}
			}
			return h.done, nil
		},
		OnCancelFn: func() error {
			// request the early final event and drain until it is observed so
			// the handle ends in the completed state
			return h.Close(context.Background())
		},
	}

	status, err := s.Watch(ctx, time.Millisecond, h.client.cfg.QueryTimeout)
	if err != nil {
		return verr.NewExecutionError(h.ctx, verr.ErrQueryPump, err)
	}
	if status != sentinel.WatchSuccess {
		return verr.NewExecutionError(h.ctx, verr.ErrQueryPump, errors.Errorf("watch ended with status %s", status))
	}
	return nil
}

// Close cancels the query if it is still running and pumps until its final
// event has been delivered. Closing a completed handle is a no-op.
func (h *Handle) Close(ctx context.Context) error {
	if h.done {
		return nil
	}

	h.client.eng.Cancel(h.token)
	for !h.done {
		more, err := h.client.eng.Step(ctx)
		if err != nil {
			return verr.NewExecutionError(h.ctx, verr.ErrQueryClose, err)
		}
		if !more {
			break
		}
	}
	return nil
}

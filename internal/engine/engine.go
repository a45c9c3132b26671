package engine

import (
	"context"
)

// Status reported by the engine for a completed query or for a per-row
// document sub-response.
type Status int

const (
	StatusSuccess Status = iota
	StatusErrGeneric
	StatusErrNetwork
	StatusErrHTTP
	StatusCanceled
)

var statusNames []string = []string{"SUCCESS", "GENERIC_ERROR", "NETWORK_ERROR", "HTTP_ERROR", "CANCELED"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "<UNSET>"
	}
	return statusNames[s]
}

// Token identifies one in-flight query. It is registered before Submit
// returns and retired after the final event has been dispatched.
type Token uint64

// DocResponse is the result of an engine-side document fetch for one row.
type DocResponse struct {
	Status Status
	Value  []byte
}

// RowEvent carries one decoded result row. Absent wire fields are nil.
type RowEvent struct {
	Key      []byte
	Value    []byte
	Geometry []byte
	DocID    []byte

	// Doc is set only when the query requested inline documents and the
	// engine attempted a fetch for this row.
	Doc *DocResponse
}

// FinalEvent is the single terminal notification for a query.
type FinalEvent struct {
	Status Status
	Meta   []byte

	// HTTPStatus is zero when no transport response was available.
	HTTPStatus int
}

// Event is either a row event or a final event, never both.
type Event struct {
	Token Token
	Row   *RowEvent
	Final *FinalEvent
}

// Callback is invoked once per event on the goroutine pumping the engine.
// The cookie is the value registered at Submit.
type Callback func(cookie any, evt *Event)

// Request describes one view query.
type Request struct {
	Bucket    string
	DesignDoc string
	View      string

	// Options is a raw query string appended to the view URL, e.g.
	// "limit=10&descending=true".
	Options string

	Spatial     bool
	IncludeDocs bool
}

// Engine submits view queries and delivers their events through callbacks.
// Events are dispatched only from Step or Wait, on the calling goroutine,
// so callback state needs no locking as long as a single goroutine pumps.
type Engine interface {
	// Submit registers a correlation token and starts the query. Rejections
	// are returned synchronously; afterwards the query can only fail through
	// a final event.
	Submit(ctx context.Context, req *Request, cb Callback, cookie any) (Token, error)

	// Step dispatches pending events, blocking for the next one if none are
	// ready. It returns false when no queries remain in flight.
	Step(ctx context.Context) (bool, error)

	// Wait pumps events until no queries remain in flight.
	Wait(ctx context.Context) error

	// Cancel requests an early final event for the given token. It has no
	// effect on already completed queries.
	Cancel(tok Token)

	// InFlight reports the number of queries whose final event has not yet
	// been dispatched.
	InFlight() int

	// Close cancels all in-flight queries and releases the engine.
	Close() error
}

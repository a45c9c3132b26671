package viewstream

import (
	"github.com/viewstream/viewstream-go/internal/engine"
	"github.com/viewstream/viewstream-go/internal/verr"
	"github.com/viewstream/viewstream-go/logger"
)

// dispatchEvent is the engine callback for every query issued by a Client.
// The cookie is the handle registered at submission. A handle moves from
// streaming to completed on its final event; any event after that is a
// broken engine contract and treated as fatal, since ignoring it would
// mean running against released state.
func dispatchEvent(cookie any, evt *engine.Event) {
	h := cookie.(*Handle)

	if h.done {
		logger.WithContext(h.ctx).Error().Msg("dispatch: " + verr.ErrInvalidHandleState)
		panic("viewstream: " + verr.ErrInvalidHandleState)
	}

	if evt.Final != nil {
		h.finalize(evt.Final)
		return
	}
	h.appendRow(evt.Row)
}

// appendRow decodes a row event into the accumulator and flushes once the
// batch threshold is reached.
func (h *Handle) appendRow(r *engine.RowEvent) {
	row := Row{
		Key:      r.Key,
		Value:    r.Value,
		Geometry: r.Geometry,
		ID:       r.DocID,
	}
	// an inline document is attached only when its sub-response succeeded;
	// a per-row fetch failure must not abort the query
	if r.Doc != nil && r.Doc.Status == engine.StatusSuccess {
		row.Doc = r.Doc.Value
	}

	h.rawRows = append(h.rawRows, row)
	if len(h.rawRows) >= h.threshold {
		h.flush()
	}
}

// flush drains the accumulator to the handler as one batch, preserving
// arrival order. The accumulator is reset before the handler runs so the
// handler can inspect the handle without observing rows twice.
func (h *Handle) flush() {
	batch := h.rawRows
	h.rawRows = nil
	h.invokeHandler(batch)
}

// finalize flushes any buffered rows, stamps the write-once terminal
// fields, and delivers the completion call. This is the only transition to
// the completed state and it happens at most once per handle.
func (h *Handle) finalize(f *engine.FinalEvent) {
	if len(h.rawRows) > 0 {
		h.flush()
	}

	h.status = f.Status
	h.meta = f.Meta
	if f.HTTPStatus != 0 {
		h.httpStatus = f.HTTPStatus
		h.hasHTTPStatus = true
	}
	h.done = true

	// distinct "no more rows" notification, always the last dispatch
	h.invokeHandler(nil)
}

// invokeHandler is the containment boundary around consumer code: a panic
// in the handler is logged and swallowed so it never crosses into the
// engine's callback frame or aborts the remaining dispatch sequence.
func (h *Handle) invokeHandler(batch []Row) {
	h.dispatched++

	defer func() {
		if r := recover(); r != nil {
			logger.WithContext(h.ctx).Error().Interface("panic", r).Msg("dispatch: row handler panicked")
		}
	}()

	h.handler(h, batch)
}

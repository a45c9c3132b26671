package viewstream

import (
	"net/url"

	"github.com/viewstream/viewstream-go/internal/engine"
)

// Flags adjust how a query is executed by the engine.
type Flags uint32

const (
	// FlagIncludeDocs asks the engine to fetch the full document for each
	// row. Rows whose fetch fails are delivered with an absent document.
	FlagIncludeDocs Flags = 1 << iota

	// FlagSpatial queries a spatial view; rows may carry a geometry payload.
	FlagSpatial
)

// Query identifies a view and its execution options.
type Query struct {
	DesignDoc string
	View      string

	// Options are passed through to the view endpoint, e.g. limit,
	// descending, startkey/endkey, stale.
	Options url.Values
}

func (q *Query) request(bucket string, flags Flags) *engine.Request {
	opts := ""
	if len(q.Options) > 0 {
		opts = q.Options.Encode()
	}
	return &engine.Request{
		Bucket:      bucket,
		DesignDoc:   q.DesignDoc,
		View:        q.View,
		Options:     opts,
		Spatial:     flags&FlagSpatial != 0,
		IncludeDocs: flags&FlagIncludeDocs != 0,
	}
}

// Row is one decoded result record. Byte fields are nil when the field was
// absent on the wire; an absent field is distinct from an empty one.
type Row struct {
	// Key and Value are the row's emitted key and value as raw JSON.
	Key   []byte
	Value []byte

	// Geometry is set only for spatial view rows.
	Geometry []byte

	// ID is the source document id, when the view emits one.
	ID []byte

	// Doc is the full document payload. It is set only when the query was
	// issued with FlagIncludeDocs and the engine-side fetch succeeded.
	Doc []byte
}

// RowHandler receives the rows of one query. It is called with non-empty
// batches in arrival order, then exactly once with a nil batch to signal
// completion. Terminal fields of the handle (Status, Meta, HTTPStatus) are
// readable from the nil-batch call onward; during data-bearing calls they
// still hold their zero values.
//
// Handlers run on the goroutine pumping the query (FetchNext/Await). A
// panicking handler is logged and contained; it does not stop delivery of
// the remaining batches or the completion call.
type RowHandler func(h *Handle, batch []Row)

package errors

import "github.com/pkg/errors"

// value to be used with errors.Is() to determine if an error chain contains a submission error
var SubmissionError error = errors.New("Submission Error")

// value to be used with errors.Is() to determine if an error chain contains a system fault
var SystemFault error = errors.New("System Fault")

// value to be used with errors.Is() to determine if an error chain contains an execution error
var ExecutionError error = errors.New("Execution Error")

// Base interface for client errors
type ViewStreamError interface {
	// Descriptive message describing the error
	Error() string

	// User specified id to track what happens under a request. Useful to track multiple queries in the same request.
	// Appears in log messages as field corrId. See clientctx.NewContextWithCorrelationId()
	CorrelationId() string

	// Internal id to track what happens under a client. Clients are reused so this would track across queries.
	// Appears in log messages as field connId.
	ConnectionId() string

	// Stack trace associated with the error. May be nil.
	StackTrace() errors.StackTrace

	// Underlying causative error. May be nil.
	Cause() error
}

// An error returned synchronously when the query engine rejects a query at
// issuance. No handle exists and no correlation token is outstanding after
// this error is returned.
// Example: empty design document name, or the store is unreachable.
type ViewSubmissionError interface {
	ViewStreamError

	// Status code reported by the query engine for the rejection.
	EngineStatus() int
}

// A fault in the client itself or a broken engine contract, e.g. an event
// delivered for an already completed query.
type ViewSystemFault interface {
	ViewStreamError

	IsRetryable() bool
}

// Any error that occurs after the query has been accepted by the engine,
// e.g. the event pump being cancelled mid-query.
// Note: a non-success terminal status is not an error; it is surfaced
// through the handle's Status() after completion.
type ViewExecutionError interface {
	ViewStreamError

	// Internal id to track what happens under a query.
	// Appears in log messages as field queryId.
	QueryId() string
}

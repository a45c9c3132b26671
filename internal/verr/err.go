package verr

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/viewstream/viewstream-go/clientctx"
	vserr "github.com/viewstream/viewstream-go/errors"
)

// Error messages
const (
	// System Fault (client errors, broken engine contract)
	ErrInvalidHandleState = "event dispatched to a completed query handle. This should not have happened"
	ErrEngineIdle         = "query engine went idle without delivering a final event"

	// Submission error messages (query rejected at issuance)
	ErrSubmitQuery       = "failed to submit view query"
	ErrEmptyDesignDoc    = "invalid query: empty design document name"
	ErrEmptyView         = "invalid query: empty view name"
	ErrClientClosed      = "client is closed"
	ErrMissingHost       = "invalid config: server hostname is required"
	ErrNilRowHandler     = "a row handler is required"
	ErrInvalidDSNFormat  = "invalid DSN: invalid format"
	ErrInvalidDSNPort    = "invalid DSN: invalid DSN port"
	ErrInvalidDSNTimeout = "invalid DSN: timeout param is not an integer"
	ErrInvalidDSNBatch   = "invalid DSN: batchThreshold param is not an integer"

	// Execution error messages (errors after the query was accepted)
	ErrQueryPump  = "failed to pump view query events"
	ErrQueryClose = "failed to close view query"
)

type viewStreamError struct {
	err           error
	correlationId string
	connectionId  string
	errType       string
}

var _ error = (*viewStreamError)(nil)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newViewStreamError(ctx context.Context, msg string, err error) viewStreamError {
	// create an error with the new message
	if err == nil {
		err = errors.New(msg)
	} else {
		err = errors.WithMessage(err, msg)
	}

	// if the source error does not have a stack trace in its
	// error chain add a stack trace
	var st stackTracer
	if ok := errors.As(err, &st); !ok {
		err = errors.WithStack(err)
	}

	return viewStreamError{
		err:           err,
		correlationId: clientctx.CorrelationIdFromContext(ctx),
		connectionId:  clientctx.ConnIdFromContext(ctx),
		errType:       "unknown",
	}
}

func (e viewStreamError) Error() string {
	return fmt.Sprintf("viewstream: %s: %s", e.errType, e.err.Error())
}

func (e viewStreamError) Cause() error {
	return e.err
}

func (e viewStreamError) StackTrace() errors.StackTrace {
	var st stackTracer
	if ok := errors.As(e.err, &st); ok {
		return st.StackTrace()
	}

	return nil
}

func (e viewStreamError) CorrelationId() string {
	return e.correlationId
}

func (e viewStreamError) ConnectionId() string {
	return e.connectionId
}

// submissionError is returned when the query engine rejects a query at issuance
type submissionError struct {
	viewStreamError
	engineStatus int
}

var _ vserr.ViewSubmissionError = (*submissionError)(nil)

func (e submissionError) Is(err error) bool {
	return err == vserr.SubmissionError
}

func (e submissionError) Unwrap() error {
	return e.err
}

func (e submissionError) EngineStatus() int {
	return e.engineStatus
}

func NewSubmissionError(ctx context.Context, msg string, err error, engineStatus int) *submissionError {
	vErr := newViewStreamError(ctx, msg, err)
	vErr.errType = "submission error"
	return &submissionError{viewStreamError: vErr, engineStatus: engineStatus}
}

// systemFault are issues with the client or a broken engine contract, e.g. events after completion
type systemFault struct {
	viewStreamError
	isRetryable bool
}

var _ vserr.ViewSystemFault = (*systemFault)(nil)

func (e systemFault) Is(err error) bool {
	return err == vserr.SystemFault
}

func (e systemFault) Unwrap() error {
	return e.err
}

func (e systemFault) IsRetryable() bool {
	return e.isRetryable
}

func NewSystemFault(ctx context.Context, msg string, err error) *systemFault {
	vErr := newViewStreamError(ctx, msg, err)
	vErr.errType = "system fault"
	return &systemFault{viewStreamError: vErr, isRetryable: false}
}

// executionError are errors occurring after the query has been accepted, e.g. a cancelled event pump
type executionError struct {
	viewStreamError
	queryId string
}

var _ vserr.ViewExecutionError = (*executionError)(nil)

func (e executionError) Is(err error) bool {
	return err == vserr.ExecutionError
}

func (e executionError) Unwrap() error {
	return e.err
}

func (e executionError) QueryId() string {
	return e.queryId
}

func NewExecutionError(ctx context.Context, msg string, err error) *executionError {
	vErr := newViewStreamError(ctx, msg, err)
	vErr.errType = "execution error"
	return &executionError{viewStreamError: vErr, queryId: clientctx.QueryIdFromContext(ctx)}
}

// wraps an error and adds trace if not already present
func WrapErr(err error, msg string) error {
	var st stackTracer
	if ok := errors.As(err, &st); ok {
		// wrap passed in error in a new error with the message
		return errors.WithMessage(err, msg)
	}

	// wrap passed in error in errors with the message and a stack trace
	return errors.Wrap(err, msg)
}

// adds a stack trace if not already present
func WrapErrf(err error, format string, args ...interface{}) error {
	var st stackTracer
	if ok := errors.As(err, &st); ok {
		// wrap passed in error in a new error with the formatted message
		return errors.WithMessagef(err, format, args...)
	}

	// wrap passed in error in errors with the formatted message and a stack trace
	return errors.Wrapf(err, format, args...)
}

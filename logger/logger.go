package logger

import (
	"context"
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/viewstream/viewstream-go/clientctx"
)

var Log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// enable pretty printing for interactive terminals and json for production.
func init() {
	// for tty terminal enable pretty logs
	if isatty.IsTerminal(os.Stdout.Fd()) && runtime.GOOS != "windows" {
		Log = Log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		// UNIX Time is faster and smaller than most timestamps
		// If you set zerolog.TimeFieldFormat to an empty string,
		// logs will write with UNIX time.
		zerolog.TimeFieldFormat = ""
	}
	// by default only log error
	SetLogLevel(zerolog.WarnLevel)
}

func SetLogLevel(l zerolog.Level) {
	Log = Log.Level(l)
}

func SetLogOutput(w io.Writer) {
	Log = Log.Output(w)
}

func Debug() *zerolog.Event {
	return Log.Debug()
}

func Info() *zerolog.Event {
	return Log.Info()
}

func Warn() *zerolog.Event {
	return Log.Warn()
}

func Error() *zerolog.Event {
	return Log.Error()
}

func Err(err error) *zerolog.Event {
	return Log.Err(err)
}

// WithContext returns a sub-logger stamped with whichever of connId,
// corrId and queryId are carried by ctx. Empty ids are omitted so log
// lines stay compact.
func WithContext(ctx context.Context) *zerolog.Logger {
	lc := Log.With()
	if connId := clientctx.ConnIdFromContext(ctx); connId != "" {
		lc = lc.Str("connId", connId)
	}
	if corrId := clientctx.CorrelationIdFromContext(ctx); corrId != "" {
		lc = lc.Str("corrId", corrId)
	}
	if queryId := clientctx.QueryIdFromContext(ctx); queryId != "" {
		lc = lc.Str("queryId", queryId)
	}
	l := lc.Logger()
	return &l
}

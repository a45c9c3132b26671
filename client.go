package viewstream

import (
	"context"

	"github.com/viewstream/viewstream-go/clientctx"
	"github.com/viewstream/viewstream-go/internal/config"
	"github.com/viewstream/viewstream-go/internal/engine"
	"github.com/viewstream/viewstream-go/internal/utils"
	"github.com/viewstream/viewstream-go/internal/verr"
	"github.com/viewstream/viewstream-go/logger"
)

// Client is the owning context for view queries against one bucket. All
// handles issued by a client share one event pump, so FetchNext, Await and
// Close on any of them must be called from a single pumping goroutine.
// Queries may be issued from any goroutine.
type Client struct {
	cfg    *config.Config
	eng    engine.Engine
	connId string
}

// Open creates a client from a DSN string:
//
//	http(s)://[user:password@]host[:port]/bucket[?param=value]
//
// Supported optional parameters include:
//
//   - timeout: overall query timeout in seconds. Default is no timeout
//   - batchThreshold: rows buffered before an intermediate flush. Default is 20
//   - retries: max transport retries. Default is 4
//   - userAgentEntry: used to identify partners
func Open(dsn string) (*Client, error) {
	cfg, err := config.ParseDSN(dsn)
	if err != nil {
		return nil, verr.WrapErr(err, "viewstream: invalid DSN")
	}
	return newClient(cfg), nil
}

// NewClient creates a client from connection options, e.g.
//
//	client, err := viewstream.NewClient(
//		viewstream.WithServerHostname("localhost"),
//		viewstream.WithBucket("beer-sample"),
//		viewstream.WithCredentials("bob", "secret"),
//	)
func NewClient(options ...ConnOption) (*Client, error) {
	cfg := config.WithDefaults()
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.Host == "" {
		return nil, verr.NewSubmissionError(context.Background(), verr.ErrMissingHost, nil, int(engine.StatusErrGeneric))
	}
	return newClient(cfg), nil
}

func newClient(cfg *config.Config) *Client {
	// detach from the caller's config so later mutations cannot leak in
	cfg = cfg.DeepCopy()
	c := &Client{
		cfg:    cfg,
		eng:    engine.NewHTTPEngine(cfg),
		connId: utils.NewGuid().String(),
	}
	logger.Info().Str("connId", c.connId).Msgf("client created for %s/%s", cfg.BaseURL(), cfg.Bucket)
	return c
}

// IssueQuery submits a streaming view query. The handler is invoked with
// row batches and a final nil batch while the caller pumps the returned
// handle. Rejection by the engine surfaces synchronously as a submission
// error and leaves no handle or correlation token behind.
func (c *Client) IssueQuery(ctx context.Context, q *Query, handler RowHandler, flags Flags) (*Handle, error) {
	ctx = clientctx.NewContextWithConnId(ctx, c.connId)

	if handler == nil {
		return nil, verr.NewSubmissionError(ctx, verr.ErrNilRowHandler, nil, int(engine.StatusErrGeneric))
	}

	h := &Handle{
		client:    c,
		handler:   handler,
		ctx:       ctx,
		threshold: c.cfg.BatchThreshold,
	}
	if h.threshold < 1 {
		h.threshold = DefaultBatchThreshold
	}

	tok, err := c.eng.Submit(ctx, q.request(c.cfg.Bucket, flags), dispatchEvent, h)
	if err != nil {
		return nil, verr.NewSubmissionError(ctx, verr.ErrSubmitQuery, err, int(engine.StatusErrGeneric))
	}

	h.token = tok
	return h, nil
}

// Close cancels all in-flight queries and releases the client.
func (c *Client) Close() error {
	return c.eng.Close()
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/viewstream/viewstream-go/clientctx"
	"github.com/viewstream/viewstream-go/internal/config"
	"github.com/viewstream/viewstream-go/internal/utils"
	"github.com/viewstream/viewstream-go/internal/verr"
	"github.com/viewstream/viewstream-go/logger"
)

// cap on error bodies kept as terminal metadata
const maxErrorBodyBytes = 64 * 1024

type HTTPEngine struct {
	cfg    *config.Config
	client *retryablehttp.Client

	mu       sync.Mutex
	tokenSeq uint64
	inflight map[Token]*inflightQuery
	closed   bool

	events chan *Event
	quit   chan struct{}
}

type inflightQuery struct {
	cb      Callback
	cookie  any
	queryId string
	cancel  context.CancelFunc
}

var _ Engine = (*HTTPEngine)(nil)

func NewHTTPEngine(cfg *config.Config) *HTTPEngine {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.Logger = retryLog{}
	rc.HTTPClient.Timeout = cfg.QueryTimeout
	if t, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
		if cfg.TLSConfig != nil {
			t.TLSClientConfig = cfg.TLSConfig
		}
		if cfg.ConnectTimeout != 0 {
			t.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
		}
	}

	return &HTTPEngine{
		cfg:      cfg,
		client:   rc,
		inflight: make(map[Token]*inflightQuery),
		events:   make(chan *Event, 64),
		quit:     make(chan struct{}),
	}
}

// retryLog adapts the transport's retry logging to zerolog.
type retryLog struct{}

func (retryLog) Error(msg string, kv ...interface{}) { logger.Error().Fields(kv).Msg(msg) }
func (retryLog) Warn(msg string, kv ...interface{})  { logger.Warn().Fields(kv).Msg(msg) }
func (retryLog) Info(msg string, kv ...interface{})  { logger.Info().Fields(kv).Msg(msg) }
func (retryLog) Debug(msg string, kv ...interface{}) { logger.Debug().Fields(kv).Msg(msg) }

var _ retryablehttp.LeveledLogger = retryLog{}

func (e *HTTPEngine) Submit(ctx context.Context, req *Request, cb Callback, cookie any) (Token, error) {
	if req.DesignDoc == "" {
		return 0, errors.New(verr.ErrEmptyDesignDoc)
	}
	if req.View == "" {
		return 0, errors.New(verr.ErrEmptyView)
	}
	if cb == nil {
		return 0, errors.New(verr.ErrNilRowHandler)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, errors.New(verr.ErrClientClosed)
	}
	e.tokenSeq++
	tok := Token(e.tokenSeq)

	// the query may outlive the submitting context; only its ids carry over
	queryId := utils.NewGuid().String()
	qctx := clientctx.NewContextWithQueryId(clientctx.NewContextFromBackground(ctx), queryId)
	qctx, cancel := context.WithCancel(qctx)

	q := &inflightQuery{cb: cb, cookie: cookie, queryId: queryId, cancel: cancel}
	e.inflight[tok] = q
	e.mu.Unlock()

	hreq, err := e.buildRequest(qctx, req)
	if err != nil {
		// the query never started, release the token synchronously
		e.mu.Lock()
		delete(e.inflight, tok)
		e.mu.Unlock()
		cancel()
		return 0, err
	}

	logger.WithContext(qctx).Debug().Msgf("engine: submitting view query %s/%s", req.DesignDoc, req.View)
	go e.run(qctx, tok, req, hreq)

	return tok, nil
}

func (e *HTTPEngine) buildRequest(ctx context.Context, req *Request) (*retryablehttp.Request, error) {
	kind := "_view"
	if req.Spatial {
		kind = "_spatial"
	}
	bucket := req.Bucket
	if bucket == "" {
		bucket = e.cfg.Bucket
	}

	u := fmt.Sprintf("%s/%s/_design/%s/%s/%s",
		e.cfg.BaseURL(), url.PathEscape(bucket), url.PathEscape(req.DesignDoc), kind, url.PathEscape(req.View))
	if req.Options != "" {
		u = u + "?" + req.Options
	}

	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if e.cfg.Username != "" {
		hreq.SetBasicAuth(e.cfg.Username, e.cfg.Password)
	}
	hreq.Header.Set("User-Agent", e.cfg.UserAgent())
	hreq.Header.Set("Accept", "application/json")

	return hreq, nil
}

// run performs the view request and posts the query's events, ending with
// exactly one final event.
func (e *HTTPEngine) run(ctx context.Context, tok Token, req *Request, hreq *retryablehttp.Request) {
	resp, err := e.client.Do(hreq)
	if err != nil {
		final := &FinalEvent{Status: StatusErrNetwork}
		if ctx.Err() != nil {
			final.Status = StatusCanceled
		} else {
			logger.WithContext(ctx).Err(err).Msg("engine: view request failed")
		}
		e.post(&Event{Token: tok, Final: final})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		logger.WithContext(ctx).Warn().Msgf("engine: view request returned HTTP %d", resp.StatusCode)
		e.post(&Event{Token: tok, Final: &FinalEvent{Status: StatusErrHTTP, Meta: body, HTTPStatus: resp.StatusCode}})
		return
	}

	final := e.streamRows(ctx, tok, req, resp.Body)
	final.HTTPStatus = resp.StatusCode
	e.post(&Event{Token: tok, Final: final})
}

// wireRow is the decoded form of one element of the response's rows array.
type wireRow struct {
	ID       string          `json:"id"`
	Key      json.RawMessage `json:"key"`
	Value    json.RawMessage `json:"value"`
	Geometry json.RawMessage `json:"geometry"`
}

// streamRows incrementally decodes the view response, posting a row event
// per row in wire order. Top level fields other than "rows" are collected
// and returned as the terminal metadata.
func (e *HTTPEngine) streamRows(ctx context.Context, tok Token, req *Request, body io.Reader) *FinalEvent {
	dec := json.NewDecoder(body)
	meta := map[string]json.RawMessage{}

	if err := expectDelim(dec, json.Delim('{')); err != nil {
		return e.streamError(ctx, err)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return e.streamError(ctx, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return e.streamError(ctx, fmt.Errorf("unexpected token %v in view response", keyTok))
		}

		if key != "rows" {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return e.streamError(ctx, err)
			}
			meta[key] = raw
			continue
		}

		if err := expectDelim(dec, json.Delim('[')); err != nil {
			return e.streamError(ctx, err)
		}
		for dec.More() {
			var wr wireRow
			if err := dec.Decode(&wr); err != nil {
				return e.streamError(ctx, err)
			}
			e.post(&Event{Token: tok, Row: e.decodeRow(ctx, req, &wr)})
		}
		if err := expectDelim(dec, json.Delim(']')); err != nil {
			return e.streamError(ctx, err)
		}
	}

	final := &FinalEvent{Status: StatusSuccess}
	if len(meta) > 0 {
		if mb, err := json.Marshal(meta); err == nil {
			final.Meta = mb
		}
	}
	if _, hasErr := meta["error"]; hasErr {
		final.Status = StatusErrGeneric
	}
	return final
}

func (e *HTTPEngine) streamError(ctx context.Context, err error) *FinalEvent {
	if ctx.Err() != nil {
		return &FinalEvent{Status: StatusCanceled}
	}
	logger.WithContext(ctx).Err(err).Msg("engine: failed to decode view response")
	return &FinalEvent{Status: StatusErrGeneric}
}

func (e *HTTPEngine) decodeRow(ctx context.Context, req *Request, wr *wireRow) *RowEvent {
	row := &RowEvent{
		Key:      payloadBytes(wr.Key),
		Value:    payloadBytes(wr.Value),
		Geometry: payloadBytes(wr.Geometry),
	}
	if wr.ID != "" {
		row.DocID = []byte(wr.ID)
	}
	if req.IncludeDocs && wr.ID != "" {
		row.Doc = e.fetchDoc(ctx, req, wr.ID)
	}
	return row
}

// payloadBytes maps wire payloads onto the client's absent-vs-present
// convention: zero length and JSON null both decode to nil.
func payloadBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	b := make([]byte, len(raw))
	copy(b, raw)
	return b
}

// fetchDoc retrieves the full document for a row when inline documents were
// requested. A failed fetch leaves the row's document absent, it never
// fails the query.
func (e *HTTPEngine) fetchDoc(ctx context.Context, req *Request, id string) *DocResponse {
	bucket := req.Bucket
	if bucket == "" {
		bucket = e.cfg.Bucket
	}
	u := fmt.Sprintf("%s/%s/%s", e.cfg.BaseURL(), url.PathEscape(bucket), url.PathEscape(id))

	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &DocResponse{Status: StatusErrGeneric}
	}
	if e.cfg.Username != "" {
		hreq.SetBasicAuth(e.cfg.Username, e.cfg.Password)
	}
	hreq.Header.Set("User-Agent", e.cfg.UserAgent())

	resp, err := e.client.Do(hreq)
	if err != nil {
		logger.WithContext(ctx).Err(err).Str("docId", id).Msg("engine: document fetch failed")
		return &DocResponse{Status: StatusErrNetwork}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &DocResponse{Status: StatusErrHTTP}
	}

	val, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DocResponse{Status: StatusErrNetwork}
	}
	return &DocResponse{Status: StatusSuccess, Value: val}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("unexpected token %v in view response, expected %v", tok, want)
	}
	return nil
}

func (e *HTTPEngine) post(evt *Event) {
	select {
	case e.events <- evt:
	case <-e.quit:
	}
}

func (e *HTTPEngine) Step(ctx context.Context) (bool, error) {
	if e.InFlight() == 0 {
		return false, nil
	}

	select {
	case evt := <-e.events:
		e.dispatch(evt)
	case <-ctx.Done():
		return true, ctx.Err()
	case <-e.quit:
		return false, errors.New(verr.ErrClientClosed)
	}

	// drain whatever else is already queued
	for {
		select {
		case evt := <-e.events:
			e.dispatch(evt)
		default:
			return e.InFlight() > 0, nil
		}
	}
}

func (e *HTTPEngine) Wait(ctx context.Context) error {
	for {
		more, err := e.Step(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (e *HTTPEngine) dispatch(evt *Event) {
	e.mu.Lock()
	q := e.inflight[evt.Token]
	e.mu.Unlock()

	if q == nil {
		// exactly one final event per token is the engine contract; an event
		// for a retired token would mean use-after-release
		logger.Error().Uint64("token", uint64(evt.Token)).Msg("engine: event for retired correlation token")
		panic("viewstream: event dispatched for a retired correlation token")
	}

	q.cb(q.cookie, evt)

	if evt.Final != nil {
		// the token is retired only after the final event has been fully
		// processed by the callback
		e.mu.Lock()
		delete(e.inflight, evt.Token)
		e.mu.Unlock()
		q.cancel()
	}
}

func (e *HTTPEngine) Cancel(tok Token) {
	e.mu.Lock()
	q := e.inflight[tok]
	e.mu.Unlock()

	if q != nil {
		logger.Debug().Str("queryId", q.queryId).Msg("engine: cancel requested")
		q.cancel()
	}
}

func (e *HTTPEngine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

func (e *HTTPEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, q := range e.inflight {
		q.cancel()
	}
	e.mu.Unlock()

	close(e.quit)
	return nil
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewstream/viewstream-go/internal/config"
)

func testEngineConfig(t *testing.T, srv *httptest.Server) *config.Config {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := config.WithDefaults()
	cfg.Protocol = u.Scheme
	cfg.Host = u.Hostname()
	cfg.Port = port
	cfg.Bucket = "default"
	cfg.RetryMax = 0
	return cfg
}

type eventCollector struct {
	rows  []*RowEvent
	final *FinalEvent
}

func (c *eventCollector) cb(cookie any, evt *Event) {
	if evt.Final != nil {
		c.final = evt.Final
		return
	}
	c.rows = append(c.rows, evt.Row)
}

func TestStreamRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/default/_design/dd/_view/v1", r.URL.Path)
		assert.Equal(t, "limit=3", r.URL.RawQuery)

		var sb strings.Builder
		sb.WriteString(`{"total_rows":100,"rows":[`)
		for i := 0; i < 3; i++ {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, `{"id":"doc%d","key":"k%d","value":%d}`, i, i, i)
		}
		sb.WriteString(`]}`)
		_, _ = w.Write([]byte(sb.String()))
	}))
	defer srv.Close()

	eng := NewHTTPEngine(testEngineConfig(t, srv))
	defer eng.Close()

	col := &eventCollector{}
	_, err := eng.Submit(context.Background(),
		&Request{DesignDoc: "dd", View: "v1", Options: "limit=3"}, col.cb, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Wait(context.Background()))

	require.Len(t, col.rows, 3)
	for i, row := range col.rows {
		assert.Equal(t, fmt.Sprintf(`"k%d"`, i), string(row.Key))
		assert.Equal(t, fmt.Sprintf("%d", i), string(row.Value))
		assert.Equal(t, fmt.Sprintf("doc%d", i), string(row.DocID))
		assert.Nil(t, row.Geometry)
		assert.Nil(t, row.Doc)
	}

	require.NotNil(t, col.final)
	assert.Equal(t, StatusSuccess, col.final.Status)
	assert.Equal(t, 200, col.final.HTTPStatus)

	var meta map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(col.final.Meta, &meta))
	assert.Equal(t, "100", string(meta["total_rows"]))

	assert.Equal(t, 0, eng.InFlight())
}

func TestAbsentPayloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows":[{"id":"a","key":null,"value":""},{"key":"k"}]}`))
	}))
	defer srv.Close()

	eng := NewHTTPEngine(testEngineConfig(t, srv))
	defer eng.Close()

	col := &eventCollector{}
	_, err := eng.Submit(context.Background(), &Request{DesignDoc: "dd", View: "v"}, col.cb, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Wait(context.Background()))

	require.Len(t, col.rows, 2)
	// JSON null decodes to absent, not empty
	assert.Nil(t, col.rows[0].Key)
	// an empty JSON string is present: its payload is the two quote bytes
	assert.Equal(t, `""`, string(col.rows[0].Value))
	assert.Nil(t, col.rows[1].DocID)
	assert.Nil(t, col.rows[1].Value)
}

func TestViewErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","reason":"missing"}`))
	}))
	defer srv.Close()

	eng := NewHTTPEngine(testEngineConfig(t, srv))
	defer eng.Close()

	col := &eventCollector{}
	_, err := eng.Submit(context.Background(), &Request{DesignDoc: "dd", View: "v"}, col.cb, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Wait(context.Background()))

	assert.Empty(t, col.rows)
	require.NotNil(t, col.final)
	assert.Equal(t, StatusErrHTTP, col.final.Status)
	assert.Equal(t, 404, col.final.HTTPStatus)
	assert.Contains(t, string(col.final.Meta), "not_found")
}

func TestInlineErrorInBody(t *testing.T) {
	// some engines report late errors inside a 200 body
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows":[],"error":"timeout","reason":"indexer"}`))
	}))
	defer srv.Close()

	eng := NewHTTPEngine(testEngineConfig(t, srv))
	defer eng.Close()

	col := &eventCollector{}
	_, err := eng.Submit(context.Background(), &Request{DesignDoc: "dd", View: "v"}, col.cb, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Wait(context.Background()))

	require.NotNil(t, col.final)
	assert.Equal(t, StatusErrGeneric, col.final.Status)
	assert.Equal(t, 200, col.final.HTTPStatus)
	assert.Contains(t, string(col.final.Meta), "timeout")
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cfg := testEngineConfig(t, srv)
	srv.Close() // connection refused from now on

	eng := NewHTTPEngine(cfg)
	defer eng.Close()

	col := &eventCollector{}
	_, err := eng.Submit(context.Background(), &Request{DesignDoc: "dd", View: "v"}, col.cb, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Wait(context.Background()))

	require.NotNil(t, col.final)
	assert.Equal(t, StatusErrNetwork, col.final.Status)
	assert.Equal(t, 0, col.final.HTTPStatus)
}

func TestIncludeDocs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/default/_design/dd/_view/v":
			_, _ = w.Write([]byte(`{"rows":[{"id":"doc0","key":"a","value":1},{"id":"doc1","key":"b","value":2}]}`))
		case "/default/doc0":
			_, _ = w.Write([]byte(`{"name":"zero"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	eng := NewHTTPEngine(testEngineConfig(t, srv))
	defer eng.Close()

	col := &eventCollector{}
	_, err := eng.Submit(context.Background(), &Request{DesignDoc: "dd", View: "v", IncludeDocs: true}, col.cb, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Wait(context.Background()))

	require.Len(t, col.rows, 2)
	require.NotNil(t, col.rows[0].Doc)
	assert.Equal(t, StatusSuccess, col.rows[0].Doc.Status)
	assert.Equal(t, `{"name":"zero"}`, string(col.rows[0].Doc.Value))

	// the failed fetch is reported on the row, not the query
	require.NotNil(t, col.rows[1].Doc)
	assert.Equal(t, StatusErrHTTP, col.rows[1].Doc.Status)
	assert.Nil(t, col.rows[1].Doc.Value)
	require.NotNil(t, col.final)
	assert.Equal(t, StatusSuccess, col.final.Status)
}

func TestSpatialEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/default/_design/dd/_spatial/points", r.URL.Path)
		_, _ = w.Write([]byte(`{"rows":[{"id":"p1","key":[0,1],"value":null,"geometry":{"type":"Point","coordinates":[0,1]}}]}`))
	}))
	defer srv.Close()

	eng := NewHTTPEngine(testEngineConfig(t, srv))
	defer eng.Close()

	col := &eventCollector{}
	_, err := eng.Submit(context.Background(), &Request{DesignDoc: "dd", View: "points", Spatial: true}, col.cb, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Wait(context.Background()))

	require.Len(t, col.rows, 1)
	assert.Contains(t, string(col.rows[0].Geometry), `"Point"`)
	assert.Nil(t, col.rows[0].Value)
}

func TestSubmitRejections(t *testing.T) {
	eng := NewHTTPEngine(config.WithDefaults())
	defer eng.Close()

	cb := func(any, *Event) {}

	t.Run("empty design doc", func(t *testing.T) {
		_, err := eng.Submit(context.Background(), &Request{View: "v"}, cb, nil)
		assert.Error(t, err)
		assert.Equal(t, 0, eng.InFlight())
	})
	t.Run("empty view", func(t *testing.T) {
		_, err := eng.Submit(context.Background(), &Request{DesignDoc: "dd"}, cb, nil)
		assert.Error(t, err)
		assert.Equal(t, 0, eng.InFlight())
	})
	t.Run("closed engine", func(t *testing.T) {
		closed := NewHTTPEngine(config.WithDefaults())
		require.NoError(t, closed.Close())
		_, err := closed.Submit(context.Background(), &Request{DesignDoc: "dd", View: "v"}, cb, nil)
		assert.Error(t, err)
	})
}

func TestCancelMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_rows":2,"rows":[{"id":"doc0","key":"a","value":1}`))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// hold the stream open until the client gives up
		<-r.Context().Done()
	}))
	defer srv.Close()

	eng := NewHTTPEngine(testEngineConfig(t, srv))
	defer eng.Close()

	col := &eventCollector{}
	tok, err := eng.Submit(context.Background(), &Request{DesignDoc: "dd", View: "v"}, col.cb, nil)
	require.NoError(t, err)

	// pump the first row, then cancel
	for len(col.rows) == 0 {
		more, err := eng.Step(context.Background())
		require.NoError(t, err)
		require.True(t, more)
	}
	eng.Cancel(tok)
	require.NoError(t, eng.Wait(context.Background()))

	require.NotNil(t, col.final)
	assert.Equal(t, StatusCanceled, col.final.Status)
	assert.Equal(t, 0, eng.InFlight())
}

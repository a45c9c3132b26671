package viewstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
)

// testViewServer fakes the store's view REST endpoint for tests. Paths
// containing /_design/ serve the configured rows; any other path is treated
// as a document fetch against the docs map.
type testViewServer struct {
	totalRows int
	rows      []testViewRow
	docs      map[string]string

	// non-zero values override the happy path
	status  int
	rawBody string
}

type testViewRow struct {
	ID       string
	Key      any
	Value    any
	Geometry any
}

func (s *testViewServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.URL.Path, "/_design/") {
		s.serveView(w)
		return
	}
	s.serveDoc(w, r)
}

func (s *testViewServer) serveView(w http.ResponseWriter) {
	if s.status != 0 && s.status != http.StatusOK {
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.rawBody))
		return
	}
	if s.rawBody != "" {
		_, _ = w.Write([]byte(s.rawBody))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `{"total_rows":%d,"rows":[`, s.totalRows)
	for i, row := range s.rows {
		if i > 0 {
			sb.WriteString(",")
		}
		obj := map[string]any{}
		if row.ID != "" {
			obj["id"] = row.ID
		}
		if row.Key != nil {
			obj["key"] = row.Key
		}
		if row.Value != nil {
			obj["value"] = row.Value
		}
		if row.Geometry != nil {
			obj["geometry"] = row.Geometry
		}
		b, _ := json.Marshal(obj)
		sb.Write(b)
	}
	sb.WriteString("]}")
	_, _ = w.Write([]byte(sb.String()))
}

func (s *testViewServer) serveDoc(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id := parts[len(parts)-1]
	doc, ok := s.docs[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write([]byte(doc))
}

func initViewTestServer(s *testViewServer) *httptest.Server {
	return httptest.NewServer(s)
}

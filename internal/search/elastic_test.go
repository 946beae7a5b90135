package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boutique_back_end/internal/models"
)

// stubElastic imite les quelques routes Elasticsearch utilisées.
type stubElastic struct {
	mu       sync.Mutex
	indexed  map[string]map[string]any
	lastBody string
	created  bool
}

func (s *stubElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Le client v8 exige cet en-tête pour reconnaître le serveur.
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		_, _ = w.Write([]byte(`{"name":"stub","cluster_name":"test","version":{"number":"8.19.0","build_flavor":"default"},"tagline":"You Know, for Search"}`))
	case r.Method == http.MethodHead && r.URL.Path == "/products":
		if s.created {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/products":
		s.created = true
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case strings.HasPrefix(r.URL.Path, "/products/_doc/"):
		var doc map[string]any
		_ = json.Unmarshal(body, &doc)
		s.indexed[strings.TrimPrefix(r.URL.Path, "/products/_doc/")] = doc
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	case r.URL.Path == "/products/_search":
		s.lastBody = string(body)
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_id":"p2"},{"_id":"p1"}]}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}
}

func newTestElastic(t *testing.T) (*Elastic, *stubElastic) {
	t.Helper()
	stub := &stubElastic{indexed: map[string]map[string]any{}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewElastic(client, "products"), stub
}

func TestEnsureIndexCreatesOnce(t *testing.T) {
	es, stub := newTestElastic(t)
	require.NoError(t, es.EnsureIndex(context.Background()))
	assert.True(t, stub.created)
	require.NoError(t, es.EnsureIndex(context.Background()))
}

func TestIndexProduct(t *testing.T) {
	es, stub := newTestElastic(t)
	p := &models.Product{ID: "p1", Name: "Théière", Description: "en fonte", Price: decimal.RequireFromString("42.00"), Available: true}

	require.NoError(t, es.Index(context.Background(), p))
	require.Contains(t, stub.indexed, "p1")
	assert.Equal(t, "Théière", stub.indexed["p1"]["name"])
	assert.Equal(t, "42", stub.indexed["p1"]["price"])
}

func TestSearchReturnsIDsInOrder(t *testing.T) {
	es, stub := newTestElastic(t)

	ids, err := es.Search(context.Background(), "theiere", 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, ids)
	assert.Contains(t, stub.lastBody, `"multi_match"`)
	assert.Contains(t, stub.lastBody, `"theiere"`)
}

package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiratut/v4/internal/store"
)

func TestNormalizeFilterParamsPrefersNestedParams(t *testing.T) {
	raw := map[string]any{
		"id":   "f1",
		"name": "Go devs",
		"params": map[string]any{
			"text": "golang",
			"area": "1",
		},
	}
	spec := NormalizeFilterParams(raw)
	assert.Equal(t, "golang", spec.Text)
	assert.Equal(t, "1", spec.Area)
}

func TestNormalizeFilterParamsFlatMap(t *testing.T) {
	raw := map[string]any{"text": "golang", "only_with_salary": true}
	spec := NormalizeFilterParams(raw)
	assert.Equal(t, "golang", spec.Text)
	assert.True(t, spec.OnlyWithSalary)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFetchChunkPersistsItemsAndDetectsLastPage(t *testing.T) {
	st := openTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"v1","name":"Go Dev"},{"id":"v2","name":"Rust Dev"}],"pages":1,"page":0,"found":2}`))
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL, MinDelay: time.Millisecond}, srv.Client(), st, nil)
	result, err := f.FetchChunk(context.Background(), ChunkRequest{PageStart: 0, PageEnd: 3, FilterID: "f1"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.LoadedCount)
	assert.Equal(t, 1, result.ProcessedPages)

	rows, err := st.GetRecentVacancies(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFetchChunkRetriesOn500ThenSucceeds(t *testing.T) {
	st := openTestStore(t)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[],"pages":1,"page":0,"found":0}`))
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL, MinDelay: time.Millisecond}, srv.Client(), st, nil)
	result, err := f.FetchChunk(context.Background(), ChunkRequest{PageStart: 0, PageEnd: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedPages)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestFetchChunkAbortsAfterExhaustingRetries(t *testing.T) {
	st := openTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL, MinDelay: time.Millisecond, MaxRetries: 1}, srv.Client(), st, nil)
	_, err := f.FetchChunk(context.Background(), ChunkRequest{PageStart: 0, PageEnd: 1})
	assert.Error(t, err)
}

func TestEstimateTotalPagesCapsAtMax(t *testing.T) {
	st := openTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[],"pages":5000,"page":0,"found":0}`))
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL, MinDelay: time.Millisecond}, srv.Client(), st, nil)
	pages, err := f.EstimateTotalPages(context.Background(), FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, maxEstimatedPages, pages)
}

func TestFetchEmployerReturnsNilOn404(t *testing.T) {
	st := openTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL, MinDelay: time.Millisecond}, srv.Client(), st, nil)
	payload, err := f.FetchEmployer(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestFetchEmployerPersistsOnSuccess(t *testing.T) {
	st := openTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"e1","name":"Acme","alternate_url":"http://x/e1"}`))
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL, MinDelay: time.Millisecond}, srv.Client(), st, nil)
	payload, err := f.FetchEmployer(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "Acme", payload.Name)
}

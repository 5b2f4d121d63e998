package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/fetcher"
	"github.com/kiratut/v4/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCleanupDeletesOldTerminalTasks(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateTask(ctx, "old", "cleanup", nil, nil, 60))
	require.NoError(t, st.UpdateTaskStatus(ctx, "old", store.TaskCompleted, nil, []byte(`{}`)))

	r := &Registry{Store: st, Log: zap.NewNop()}
	params, _ := json.Marshal(map[string]any{"keep_days": -1})
	result, err := r.Cleanup(ctx, store.Task{ID: "job1", Params: params})
	require.NoError(t, err)

	var decoded struct {
		DeletedTasks int64 `json:"deleted_tasks"`
		Vacuumed     bool  `json:"vacuumed"`
	}
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, int64(1), decoded.DeletedTasks)
	assert.False(t, decoded.Vacuumed)
}

func TestCleanupDefaultsKeepDays(t *testing.T) {
	st := openTestStore(t)
	r := &Registry{Store: st, Log: zap.NewNop()}
	result, err := r.Cleanup(context.Background(), store.Task{ID: "job1", Params: []byte(`{}`)})
	require.NoError(t, err)
	assert.Contains(t, string(result), `"deleted_tasks":0`)
}

func TestProcessPipelineIsNoOp(t *testing.T) {
	r := &Registry{Log: zap.NewNop()}
	result, err := r.ProcessPipeline(context.Background(), store.Task{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"no-op"}`, string(result))
}

func newFetcherAgainst(t *testing.T, st *store.Store, handler http.HandlerFunc) *fetcher.Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return fetcher.New(fetcher.Config{BaseURL: srv.URL, MinDelay: time.Millisecond}, srv.Client(), st, nil)
}

func TestLoadVacanciesPersistsAndReportsProgress(t *testing.T) {
	st := openTestStore(t)
	pageCalls := 0
	f := newFetcherAgainst(t, st, func(w http.ResponseWriter, req *http.Request) {
		pageCalls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"v1","name":"Go Dev","alternate_url":"http://x/v1"}],"pages":1,"page":0,"found":1}`))
	})

	r := &Registry{Fetch: f, Store: st, Log: zap.NewNop()}
	params, _ := json.Marshal(map[string]any{"filter_id": "f1", "max_pages": 3})
	result, err := r.LoadVacancies(context.Background(), store.Task{ID: "t1", Params: params})
	require.NoError(t, err)

	var decoded struct {
		VacanciesLoaded int `json:"vacancies_loaded"`
		PagesProcessed  int `json:"pages_processed"`
	}
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, 1, decoded.VacanciesLoaded)
	assert.Equal(t, 1, decoded.PagesProcessed)
	assert.GreaterOrEqual(t, pageCalls, 1)

	rows, err := st.GetRecentVacancies(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Go Dev", rows[0].Title)
}

func TestLoadVacanciesCapsMaxPagesAtDefault(t *testing.T) {
	st := openTestStore(t)
	f := newFetcherAgainst(t, st, func(w http.ResponseWriter, req *http.Request) {
		page, _ := strconv.Atoi(req.URL.Query().Get("page"))
		if page >= defaultMaxPages {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		items := make([]string, 50)
		for i := range items {
			items[i] = fmt.Sprintf(`{"id":"p%d_i%d","name":"Go Dev","alternate_url":"http://x/p%d_i%d"}`, page, i, page, i)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"items":[%s],"pages":0,"page":%d,"found":10000}`, strings.Join(items, ","), page)
	})

	r := &Registry{Fetch: f, Store: st, Log: zap.NewNop()}
	params, _ := json.Marshal(map[string]any{"filter_id": "f1", "max_pages": 5000})
	result, err := r.LoadVacancies(context.Background(), store.Task{ID: "t1", Params: params})
	require.NoError(t, err)

	var decoded struct {
		PagesProcessed int      `json:"pages_processed"`
		Errors         []string `json:"errors,omitempty"`
	}
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Empty(t, decoded.Errors)
	assert.Equal(t, defaultMaxPages, decoded.PagesProcessed)
}

func TestLoadEmployersFetchesMissingOnly(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, err := st.SaveVacancy(ctx, store.VacancyPayload{HHID: "v1", EmployerID: "e1"}, "f1")
	require.NoError(t, err)

	f := newFetcherAgainst(t, st, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"e1","name":"Acme","alternate_url":"http://x/e1"}`))
	})

	r := &Registry{Fetch: f, Store: st, Log: zap.NewNop()}
	result, err := r.LoadEmployers(ctx, store.Task{ID: "t1"})
	require.NoError(t, err)

	var decoded struct {
		Candidates int `json:"candidates"`
		Fetched    int `json:"fetched"`
		Failed     int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, 1, decoded.Candidates)
	assert.Equal(t, 1, decoded.Fetched)
	assert.Equal(t, 0, decoded.Failed)
}

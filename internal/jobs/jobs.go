// Package jobs implements the dispatcher.Handler functions bound to each
// task type (load_vacancies, load_employers, cleanup, process_pipeline):
// chunked work, cooperative cancellation between chunks, and aggregated
// progress reporting.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kiratut/v4/internal/fetcher"
	"github.com/kiratut/v4/internal/store"
)

const (
	defaultMaxPages     = 200
	defaultPagesPerChunk = 5 // ~500 records at 100/page, matches the default chunk size
	employerBatchSize   = 100
)

// Registry wires handler funcs against the fetcher/store so they can be
// registered on a dispatcher.Dispatcher without it importing fetcher itself.
type Registry struct {
	Fetch *fetcher.Fetcher
	Store *store.Store
	Log   *zap.Logger
}

// LoadVacancies drives a filter through FetchChunk in page-range chunks,
// checking for cancellation between chunks so a stopping dispatcher can
// interrupt a long-running load without losing already-saved pages.
// Freezing the dispatcher does not interrupt a load already running.
func (r *Registry) LoadVacancies(ctx context.Context, task store.Task) ([]byte, error) {
	var params struct {
		FilterID string         `json:"filter_id"`
		Filter   map[string]any `json:"filter"`
		MaxPages int            `json:"max_pages"`
	}
	if err := json.Unmarshal(task.Params, &params); err != nil {
		return nil, fmt.Errorf("jobs: decode load_vacancies params: %w", err)
	}

	filterSpec := fetcher.NormalizeFilterParams(params.Filter)

	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if estimated, err := r.Fetch.EstimateTotalPages(ctx, filterSpec); err == nil && estimated > 0 && estimated < maxPages {
		maxPages = estimated
	}
	if maxPages > defaultMaxPages {
		maxPages = defaultMaxPages
	}

	total := struct {
		Loaded int            `json:"vacancies_loaded"`
		Pages  int            `json:"pages_processed"`
		Errors []string       `json:"errors,omitempty"`
		Stats  map[string]int `json:"stats"`
	}{Stats: map[string]int{}}

	for start := 0; start < maxPages; start += defaultPagesPerChunk {
		if err := ctx.Err(); err != nil {
			break
		}
		end := start + defaultPagesPerChunk
		if end > maxPages {
			end = maxPages
		}

		chunk, err := r.Fetch.FetchChunk(ctx, fetcher.ChunkRequest{
			PageStart: start,
			PageEnd:   end,
			Filter:    filterSpec,
			FilterID:  params.FilterID,
			TaskID:    task.ID,
		})
		if err != nil {
			total.Errors = append(total.Errors, err.Error())
			break
		}

		total.Loaded += chunk.LoadedCount
		total.Pages += chunk.ProcessedPages
		total.Errors = append(total.Errors, chunk.Errors...)
		for k, v := range chunk.Stats {
			total.Stats[k] += v
		}

		if err := r.Store.UpdateTaskProgress(ctx, task.ID, mustMarshal(total)); err != nil {
			r.Log.Warn("jobs: update progress", zap.String("task_id", task.ID), zap.Error(err))
		}

		// A page short of the per-page heuristic means FetchChunk already
		// hit the end of results; no point starting another chunk.
		if chunk.ProcessedPages < end-start {
			break
		}
	}

	return mustMarshal(total), nil
}

// LoadEmployers fetches employer records referenced by vacancies but not
// yet persisted, bounded to one batch per invocation.
func (r *Registry) LoadEmployers(ctx context.Context, task store.Task) ([]byte, error) {
	ids, err := r.Store.GetMissingEmployerIDs(ctx, employerBatchSize)
	if err != nil {
		return nil, fmt.Errorf("jobs: get missing employer ids: %w", err)
	}

	var fetched, failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			break
		}
		if _, err := r.Fetch.FetchEmployer(ctx, id); err != nil {
			failed++
			r.Log.Warn("jobs: fetch employer", zap.String("hh_id", id), zap.Error(err))
			continue
		}
		fetched++
	}

	return mustMarshal(map[string]int{
		"candidates": len(ids),
		"fetched":    fetched,
		"failed":     failed,
	}), nil
}

// Cleanup removes terminal tasks past the retention window and optionally
// reclaims freed pages via VACUUM.
func (r *Registry) Cleanup(ctx context.Context, task store.Task) ([]byte, error) {
	var params struct {
		KeepDays int  `json:"keep_days"`
		Vacuum   bool `json:"vacuum"`
	}
	_ = json.Unmarshal(task.Params, &params)
	if params.KeepDays <= 0 {
		params.KeepDays = 30
	}

	cutoff := time.Now().Add(-time.Duration(params.KeepDays) * 24 * time.Hour).Unix()
	deleted, err := r.Store.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("jobs: delete terminal tasks: %w", err)
	}

	if params.Vacuum {
		if err := r.Store.Vacuum(ctx); err != nil {
			r.Log.Warn("jobs: vacuum", zap.Error(err))
		}
	}

	return mustMarshal(map[string]any{
		"deleted_tasks": deleted,
		"vacuumed":      params.Vacuum,
	}), nil
}

// ProcessPipeline is a reserved hook for the host3 analyzer plugin chain.
// No analyzer plugin ships in this core; the hook exists so scheduled
// process_pipeline jobs complete cleanly rather than failing as unknown.
func (r *Registry) ProcessPipeline(ctx context.Context, task store.Task) ([]byte, error) {
	return mustMarshal(map[string]string{"status": "no-op"}), nil
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// Package fetcher drives the upstream vacancy search API to completion
// for a page range, applying rate limiting, retry/backoff, and auth
// rotation, and persisting results through the store.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/kiratut/v4/internal/authregistry"
	"github.com/kiratut/v4/internal/apperrors"
	"github.com/kiratut/v4/internal/backoff"
	"github.com/kiratut/v4/internal/store"
)

const (
	defaultUserAgent    = "hhwatch/1.0"
	safeBrowserUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	perPage             = 100
	lastPageHeuristic   = 50
	maxEstimatedPages   = 2000
	defaultMinDelay     = time.Second
)

// Config configures a Fetcher.
type Config struct {
	BaseURL         string
	UserAgent       string
	MaxRetries      int
	MinDelay        time.Duration
	RateLimitDelay  time.Duration
	RequestTimeout  time.Duration
}

// HTTPDoer is the minimal surface Fetcher needs from an HTTP client,
// satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher implements the FetchChunk / EstimateTotalPages / FetchEmployer
// contract.
type Fetcher struct {
	cfg     Config
	client  HTTPDoer
	store   *store.Store
	auth    *authregistry.Registry
	limiter *rate.Limiter
}

// New constructs a Fetcher. client may be nil to use http.DefaultClient.
func New(cfg Config, client HTTPDoer, st *store.Store, auth *authregistry.Registry) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = defaultMinDelay
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	delay := cfg.MinDelay
	if cfg.RateLimitDelay > delay {
		delay = cfg.RateLimitDelay
	}

	return &Fetcher{
		cfg:     cfg,
		client:  client,
		store:   st,
		auth:    auth,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// FilterSpec is a normalized set of upstream search parameters, taken
// preferentially from a filter's nested "params" object.
type FilterSpec struct {
	Text             string
	Area             string
	ProfessionalRole string
	Experience       string
	Employment       string
	Schedule         string
	Salary           string
	OnlyWithSalary   bool
	SearchPeriod     string
	OrderBy          string
	SearchField      string
}

// NormalizeFilterParams extracts a FilterSpec from a raw filter document
// of the shape {id, name, params:{...}} or a flat map, preferring the
// nested "params" object when present.
func NormalizeFilterParams(raw map[string]any) FilterSpec {
	params := raw
	if nested, ok := raw["params"].(map[string]any); ok {
		params = nested
	}

	var spec FilterSpec
	spec.Text = stringField(params, "text")
	spec.Area = stringField(params, "area")
	spec.ProfessionalRole = stringField(params, "professional_role")
	spec.Experience = stringField(params, "experience")
	spec.Employment = stringField(params, "employment")
	spec.Schedule = stringField(params, "schedule")
	spec.Salary = stringField(params, "salary")
	spec.OnlyWithSalary = boolField(params, "only_with_salary")
	spec.SearchPeriod = firstNonEmpty(stringField(params, "period"), stringField(params, "search_period"))
	spec.OrderBy = stringField(params, "order_by")
	spec.SearchField = stringField(params, "search_field")
	return spec
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		if n, ok := v.(float64); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (spec FilterSpec) queryValues(page int) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("per_page", strconv.Itoa(perPage))
	if spec.Text != "" {
		v.Set("text", spec.Text)
	}
	if spec.Area != "" {
		v.Set("area", spec.Area)
	}
	if spec.ProfessionalRole != "" {
		v.Set("professional_role", spec.ProfessionalRole)
	}
	if spec.Experience != "" {
		v.Set("experience", spec.Experience)
	}
	if spec.Employment != "" {
		v.Set("employment", spec.Employment)
	}
	if spec.Schedule != "" {
		v.Set("schedule", spec.Schedule)
	}
	if spec.Salary != "" {
		v.Set("salary", spec.Salary)
	}
	if spec.OnlyWithSalary {
		v.Set("only_with_salary", "true")
	}
	if spec.SearchPeriod != "" {
		v.Set("period", spec.SearchPeriod)
	}
	if spec.OrderBy != "" {
		v.Set("order_by", spec.OrderBy)
	}
	if spec.SearchField != "" {
		v.Set("search_field", spec.SearchField)
	}
	return v
}

// ChunkRequest is the FetchChunk input.
type ChunkRequest struct {
	PageStart int
	PageEnd   int
	Filter    FilterSpec
	FilterID  string
	TaskID    string
}

// ChunkResult is the FetchChunk output.
type ChunkResult struct {
	LoadedCount     int
	ProcessedPages  int
	Errors          []string
	LastPage        int
	Stats           map[string]int
}

type searchPage struct {
	Items []json.RawMessage `json:"items"`
	Pages int                `json:"pages"`
	Page  int                `json:"page"`
	Found int                `json:"found"`
}

type vacancyItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Area         struct{ Name string `json:"name"` } `json:"area"`
	Employer     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"alternate_url"`
	} `json:"employer"`
	Salary *struct {
		From     *int64 `json:"from"`
		To       *int64 `json:"to"`
		Currency string `json:"currency"`
	} `json:"salary"`
	Experience struct{ Name string `json:"name"` } `json:"experience"`
	Schedule   struct{ Name string `json:"name"` } `json:"schedule"`
	Employment struct{ Name string `json:"name"` } `json:"employment"`
	Snippet    struct {
		Requirement    string `json:"requirement"`
		Responsibility string `json:"responsibility"`
	} `json:"snippet"`
	KeySkills []struct {
		Name string `json:"name"`
	} `json:"key_skills"`
	PublishedAt string `json:"published_at"`
	AlternateURL string `json:"alternate_url"`
}

// FetchChunk drives pages [req.PageStart, req.PageEnd) to completion,
// persisting each vacancy and reporting progress through the store.
func (f *Fetcher) FetchChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error) {
	result := &ChunkResult{Stats: map[string]int{}}
	lastPage := req.PageStart

	for page := req.PageStart; page < req.PageEnd; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		items, truncatedEarly, err := f.fetchPageWithRetry(ctx, req.Filter, page)
		lastPage = page
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("page %d: %v", page, err))
			return result, apperrors.New(apperrors.KindTransport, "fetch chunk aborted", err)
		}

		for _, raw := range items {
			var v vacancyItem
			if err := json.Unmarshal(raw, &v); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("page %d: decode item: %v", page, err))
				continue
			}
			outcome, err := f.store.SaveVacancy(ctx, toPayload(v), req.FilterID)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("page %d: save %s: %v", page, v.ID, err))
				continue
			}
			result.Stats[string(outcome)]++
			if outcome != store.SaveUnchanged {
				result.LoadedCount++
			}
		}
		result.ProcessedPages++

		if req.TaskID != "" {
			progress, _ := json.Marshal(map[string]any{
				"current_page":     page,
				"pages_processed":  result.ProcessedPages,
				"vacancies_loaded": result.LoadedCount,
				"chunk_progress":   float64(page-req.PageStart+1) / float64(req.PageEnd-req.PageStart),
			})
			_ = f.store.UpdateTaskProgress(ctx, req.TaskID, progress)
		}

		if truncatedEarly {
			break
		}
	}

	result.LastPage = lastPage
	return result, nil
}

// toPayload maps an upstream vacancy item into the store's persisted shape.
func toPayload(v vacancyItem) store.VacancyPayload {
	skills := make([]string, 0, len(v.KeySkills))
	for _, s := range v.KeySkills {
		skills = append(skills, s.Name)
	}

	payload := store.VacancyPayload{
		HHID:        v.ID,
		Title:       v.Name,
		CompanyName: v.Employer.Name,
		EmployerID:  v.Employer.ID,
		Experience:  v.Experience.Name,
		Schedule:    v.Schedule.Name,
		Employment:  v.Employment.Name,
		Description: v.Snippet.Requirement + " " + v.Snippet.Responsibility,
		KeySkills:   skills,
		Area:        v.Area.Name,
		URL:         v.AlternateURL,
	}
	if v.Salary != nil {
		payload.SalaryFrom = v.Salary.From
		payload.SalaryTo = v.Salary.To
		payload.Currency = v.Salary.Currency
	}
	if ts, err := time.Parse(time.RFC3339, v.PublishedAt); err == nil {
		unix := ts.Unix()
		payload.PublishedAt = &unix
	}
	return payload
}

// fetchPageWithRetry issues GET /vacancies for one page, handling the
// UA-fallback-on-400, auth-drop-on-401/403, and 429-extra-sleep rules.
func (f *Fetcher) fetchPageWithRetry(ctx context.Context, filter FilterSpec, page int) ([]json.RawMessage, bool, error) {
	policy := backoff.Default()
	policy.MaxRetries = f.cfg.MaxRetries

	userAgent := f.cfg.UserAgent
	dropAuth := false

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}

		items, status, err := f.doSearch(ctx, filter, page, userAgent, dropAuth)
		if err == nil && status == http.StatusOK {
			return items, len(items) < lastPageHeuristic, nil
		}

		switch {
		case status == http.StatusBadRequest && userAgent == f.cfg.UserAgent:
			// One immediate retry with the safe UA; a second 400 is final.
			userAgent = safeBrowserUA
			continue
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			dropAuth = true
			if f.auth != nil {
				f.auth.MarkProviderFailed("download", f.currentProviderName())
			}
		case status == http.StatusTooManyRequests:
			time.Sleep(policy.GetDelay())
		}

		if !policy.ShouldRetry(status, err) {
			if err != nil {
				return nil, false, err
			}
			return nil, false, apperrors.New(apperrors.KindUpstreamServer, fmt.Sprintf("upstream status %d", status), nil)
		}
		policy.WaitAndIncrement()
	}
}

func (f *Fetcher) currentProviderName() string {
	if f.auth == nil {
		return ""
	}
	p := f.auth.ChooseProvider("download")
	if p == nil {
		return ""
	}
	return p.Name
}

func (f *Fetcher) doSearch(ctx context.Context, filter FilterSpec, page int, userAgent string, dropAuth bool) ([]json.RawMessage, int, error) {
	u := f.cfg.BaseURL + "/vacancies?" + filter.queryValues(page).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	if !dropAuth && f.auth != nil {
		for k, v := range f.auth.Headers("download") {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var parsed searchPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resp.StatusCode, err
	}
	return parsed.Items, resp.StatusCode, nil
}

// EstimateTotalPages issues a single minimal query to read the
// upstream-reported page count, bounded at 2000.
func (f *Fetcher) EstimateTotalPages(ctx context.Context, filter FilterSpec) (int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	u := f.cfg.BaseURL + "/vacancies?" + filter.queryValues(0).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if f.auth != nil {
		for k, v := range f.auth.Headers("download") {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, apperrors.New(apperrors.KindTransport, "estimate total pages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.New(apperrors.KindUpstreamServer, fmt.Sprintf("estimate total pages: status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var parsed searchPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}

	if parsed.Pages > maxEstimatedPages {
		return maxEstimatedPages, nil
	}
	return parsed.Pages, nil
}

// FetchEmployer fetches and persists a single employer by hh_id,
// returning nil, nil on a 404.
func (f *Fetcher) FetchEmployer(ctx context.Context, hhID string) (*store.EmployerPayload, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := f.cfg.BaseURL + "/employers/" + url.PathEscape(hhID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, "fetch employer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.KindUpstreamServer, fmt.Sprintf("fetch employer: status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"alternate_url"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	payload := store.EmployerPayload{
		HHID:    raw.ID,
		Name:    raw.Name,
		URL:     raw.URL,
		RawJSON: bytes.TrimSpace(body),
	}
	if err := f.store.SaveEmployer(ctx, payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

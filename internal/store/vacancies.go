package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// VacancyPayload is the normalized shape a Fetcher hands to SaveVacancy.
// It mirrors the essential attributes of a fetched vacancy.
type VacancyPayload struct {
	HHID        string
	Title       string
	CompanyName string
	EmployerID  string
	SalaryFrom  *int64
	SalaryTo    *int64
	Currency    string
	Experience  string
	Schedule    string
	Employment  string
	Description string
	KeySkills   []string
	Area        string
	PublishedAt *int64
	URL         string
}

// SaveOutcome reports whether SaveVacancy inserted, changed, or left a row
// untouched.
type SaveOutcome string

const (
	SaveInserted  SaveOutcome = "inserted"
	SaveChanged   SaveOutcome = "changed"
	SaveUnchanged SaveOutcome = "unchanged"
)

// SaveVacancy upserts a vacancy keyed on hh_id. When an existing row
// already has the same content_hash, no write occurs (SaveUnchanged). On
// first-ever insert, created_at is stamped; on a content change,
// updated_at advances but created_at is preserved.
func (s *Store) SaveVacancy(ctx context.Context, payload VacancyPayload, filterID string) (SaveOutcome, error) {
	hash := ComputeContentHash(payload)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin save vacancy tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingHash string
	err = tx.QueryRowContext(ctx, `SELECT content_hash FROM vacancies WHERE hh_id = ?`, payload.HHID).Scan(&existingHash)
	switch {
	case err == sql.ErrNoRows:
		now := nowUnix()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO vacancies
			 (hh_id, title, company_name, employer_hh_id, salary_from, salary_to, currency,
			  experience, schedule, employment, description, key_skills, area, published_at,
			  url, filter_id, content_hash, created_at, updated_at, is_processed, synced_host2)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
			payload.HHID, payload.Title, payload.CompanyName, nullIfEmpty(payload.EmployerID),
			payload.SalaryFrom, payload.SalaryTo, payload.Currency, payload.Experience,
			payload.Schedule, payload.Employment, payload.Description,
			strings.Join(payload.KeySkills, ","), payload.Area, payload.PublishedAt,
			payload.URL, filterID, hash, now, now)
		if err != nil {
			return "", fmt.Errorf("store: insert vacancy: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("store: commit insert vacancy: %w", err)
		}
		return SaveInserted, nil

	case err != nil:
		return "", fmt.Errorf("store: lookup vacancy: %w", err)
	}

	if existingHash == hash {
		// Unchanged: no write, created_at/updated_at untouched.
		return SaveUnchanged, nil
	}

	now := nowUnix()
	_, err = tx.ExecContext(ctx,
		`UPDATE vacancies SET
			title = ?, company_name = ?, employer_hh_id = ?, salary_from = ?, salary_to = ?,
			currency = ?, experience = ?, schedule = ?, employment = ?, description = ?,
			key_skills = ?, area = ?, published_at = ?, url = ?, filter_id = ?,
			content_hash = ?, updated_at = ?
		 WHERE hh_id = ?`,
		payload.Title, payload.CompanyName, nullIfEmpty(payload.EmployerID), payload.SalaryFrom,
		payload.SalaryTo, payload.Currency, payload.Experience, payload.Schedule, payload.Employment,
		payload.Description, strings.Join(payload.KeySkills, ","), payload.Area, payload.PublishedAt,
		payload.URL, filterID, hash, now, payload.HHID)
	if err != nil {
		return "", fmt.Errorf("store: update vacancy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit update vacancy: %w", err)
	}
	return SaveChanged, nil
}

// VacancyRow is a persisted vacancy record.
type VacancyRow struct {
	ID          int64
	HHID        string
	Title       string
	CompanyName string
	EmployerID  string
	Area        string
	URL         string
	FilterID    string
	ContentHash string
	CreatedAt   int64
	UpdatedAt   int64
	IsProcessed bool
	SyncedHost2 bool
}

// GetRecentVacancies returns the latest vacancies by created_at descending.
func (s *Store) GetRecentVacancies(ctx context.Context, limit int) ([]VacancyRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hh_id, title, company_name, COALESCE(employer_hh_id,''), area, url, filter_id,
		        content_hash, created_at, updated_at, is_processed, synced_host2
		 FROM vacancies ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get recent vacancies: %w", err)
	}
	defer rows.Close()
	return scanVacancyRows(rows)
}

// GetUnprocessedVacancies returns vacancies with is_processed = 0.
func (s *Store) GetUnprocessedVacancies(ctx context.Context, limit int) ([]VacancyRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hh_id, title, company_name, COALESCE(employer_hh_id,''), area, url, filter_id,
		        content_hash, created_at, updated_at, is_processed, synced_host2
		 FROM vacancies WHERE is_processed = 0 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get unprocessed vacancies: %w", err)
	}
	defer rows.Close()
	return scanVacancyRows(rows)
}

// MarkVacancyProcessed sets is_processed = 1 for the given vacancy id.
func (s *Store) MarkVacancyProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE vacancies SET is_processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark vacancy processed: %w", err)
	}
	return nil
}

// GetMissingEmployerIDs returns distinct employer hh_ids referenced by
// vacancies but absent from the employers table.
func (s *Store) GetMissingEmployerIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT v.employer_hh_id FROM vacancies v
		 LEFT JOIN employers e ON e.hh_id = v.employer_hh_id
		 WHERE v.employer_hh_id IS NOT NULL AND v.employer_hh_id != '' AND e.hh_id IS NULL
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get missing employer ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan employer id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetUnsyncedVacancyIDs returns vacancy ids with synced_host2 = 0.
func (s *Store) GetUnsyncedVacancyIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM vacancies WHERE synced_host2 = 0 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get unsynced vacancy ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan vacancy id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkVacanciesSynced sets synced_host2 = 1 for the given ids.
func (s *Store) MarkVacanciesSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE vacancies SET synced_host2 = 1 WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: mark vacancies synced: %w", err)
	}
	return nil
}

// GetUnanalyzedVacancies returns vacancies lacking a plugin_results row for
// pluginName. When newOnly is true, only vacancies with is_processed = 0
// are considered.
func (s *Store) GetUnanalyzedVacancies(ctx context.Context, pluginName string, limit int, newOnly bool) ([]VacancyRow, error) {
	query := `SELECT v.id, v.hh_id, v.title, v.company_name, COALESCE(v.employer_hh_id,''), v.area,
	                 v.url, v.filter_id, v.content_hash, v.created_at, v.updated_at, v.is_processed,
	                 v.synced_host2
	          FROM vacancies v
	          LEFT JOIN plugin_results pr ON pr.vacancy_id = v.id AND pr.plugin_name = ?
	          WHERE pr.id IS NULL`
	args := []any{pluginName}
	if newOnly {
		query += " AND v.is_processed = 0"
	}
	query += " ORDER BY v.created_at ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get unanalyzed vacancies: %w", err)
	}
	defer rows.Close()
	return scanVacancyRows(rows)
}

// SavePluginResult appends an analyzer result for (vacancy_id, plugin_name).
func (s *Store) SavePluginResult(ctx context.Context, vacancyID int64, pluginName string, result []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plugin_results (vacancy_id, plugin_name, result, created_at) VALUES (?, ?, ?, ?)`,
		vacancyID, pluginName, string(result), nowUnix())
	if err != nil {
		return fmt.Errorf("store: save plugin result: %w", err)
	}
	return nil
}

func scanVacancyRows(rows *sql.Rows) ([]VacancyRow, error) {
	var out []VacancyRow
	for rows.Next() {
		var v VacancyRow
		var isProcessed, synced int
		if err := rows.Scan(&v.ID, &v.HHID, &v.Title, &v.CompanyName, &v.EmployerID, &v.Area,
			&v.URL, &v.FilterID, &v.ContentHash, &v.CreatedAt, &v.UpdatedAt, &isProcessed, &synced); err != nil {
			return nil, fmt.Errorf("store: scan vacancy: %w", err)
		}
		v.IsProcessed = isProcessed != 0
		v.SyncedHost2 = synced != 0
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

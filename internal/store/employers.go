package store

import (
	"context"
	"fmt"
)

// EmployerPayload is the shape the Fetcher hands to SaveEmployer.
type EmployerPayload struct {
	HHID    string
	Name    string
	URL     string
	RawJSON []byte
}

// SaveEmployer upserts an employer by hh_id.
func (s *Store) SaveEmployer(ctx context.Context, payload EmployerPayload) error {
	now := nowUnix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employers (hh_id, name, url, raw_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hh_id) DO UPDATE SET
		   name = excluded.name, url = excluded.url, raw_json = excluded.raw_json,
		   updated_at = excluded.updated_at`,
		payload.HHID, payload.Name, payload.URL, string(payload.RawJSON), now, now)
	if err != nil {
		return fmt.Errorf("store: save employer: %w", err)
	}
	return nil
}

// Package hostsync implements the sync_host2 job: uploading synced
// vacancy batches to a downstream host over S3-compatible object
// storage. The host3 analyzer chain is a separate reserved no-op handler
// (see jobs.ProcessPipeline); this package only covers host2.
package hostsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kiratut/v4/internal/store"
)

// Uploader is the downstream-host sink. S3Uploader is the only concrete
// implementation; tests substitute a fake.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Config configures the S3-backed uploader.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// S3Uploader uploads batches as JSON objects under a fixed key prefix.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader builds an uploader using the AWS SDK's default
// credential chain, optionally pointed at an S3-compatible endpoint.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("hostsync: bucket required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("hostsync: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Uploader{client: client, bucket: cfg.Bucket}, nil
}

// Upload puts body at key in the configured bucket.
func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("hostsync: put object %s: %w", key, err)
	}
	return nil
}

// batch is the JSON shape uploaded for a sync run.
type batch struct {
	SyncedAtUnix int64               `json:"synced_at_unix"`
	Vacancies    []store.VacancyRow  `json:"vacancies"`
}

// SyncPending uploads unsynced vacancies in batches of at most batchSize
// and marks them synced on success.
func SyncPending(ctx context.Context, st *store.Store, up Uploader, nowUnix int64, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}

	ids, err := st.GetUnsyncedVacancyIDs(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	rows, err := st.GetRecentVacancies(ctx, len(ids)*2)
	if err != nil {
		return 0, err
	}
	byID := map[int64]store.VacancyRow{}
	for _, r := range rows {
		byID[r.ID] = r
	}

	var selected []store.VacancyRow
	var selectedIDs []int64
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			selected = append(selected, r)
			selectedIDs = append(selectedIDs, id)
		}
	}
	if len(selected) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(batch{SyncedAtUnix: nowUnix, Vacancies: selected})
	if err != nil {
		return 0, err
	}

	key := fmt.Sprintf("host2/batch-%d.json", nowUnix)
	if err := up.Upload(ctx, key, payload); err != nil {
		return 0, err
	}

	if err := st.MarkVacanciesSynced(ctx, selectedIDs); err != nil {
		return 0, err
	}
	return len(selected), nil
}

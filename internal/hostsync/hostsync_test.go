package hostsync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiratut/v4/internal/store"
)

type fakeUploader struct {
	key  string
	body []byte
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.key = key
	f.body = body
	return nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSyncPendingUploadsAndMarksSynced(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.SaveVacancy(ctx, store.VacancyPayload{HHID: "v1", Title: "Go Developer"}, "f1")
	require.NoError(t, err)
	_, err = st.SaveVacancy(ctx, store.VacancyPayload{HHID: "v2", Title: "Rust Developer"}, "f1")
	require.NoError(t, err)

	up := &fakeUploader{}
	count, err := SyncPending(ctx, st, up, 1700000000, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "host2/batch-1700000000.json", up.key)

	var decoded batch
	require.NoError(t, json.Unmarshal(up.body, &decoded))
	assert.Equal(t, int64(1700000000), decoded.SyncedAtUnix)
	assert.Len(t, decoded.Vacancies, 2)

	ids, err := st.GetUnsyncedVacancyIDs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSyncPendingNoOpWhenNothingUnsynced(t *testing.T) {
	st := openTestStore(t)
	up := &fakeUploader{}
	count, err := SyncPending(context.Background(), st, up, 1700000000, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Nil(t, up.body)
}

func TestSyncPendingDoesNotMarkSyncedOnUploadFailure(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, err := st.SaveVacancy(ctx, store.VacancyPayload{HHID: "v1"}, "f1")
	require.NoError(t, err)

	up := &fakeUploader{err: assertErr{}}
	_, err = SyncPending(ctx, st, up, 1700000000, 10)
	assert.Error(t, err)

	ids, err := st.GetUnsyncedVacancyIDs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), Config{})
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "upload failed" }

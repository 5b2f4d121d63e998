package filters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filters.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "filters.json"))
	require.NoError(t, err)

	list, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, list)
}

func TestLoadValidDocument(t *testing.T) {
	path := seedFile(t, `{"filters":[{"id":"f1","name":"Go devs","active":true,"params":{"text":"golang"}}]}`)
	s, err := NewStore(path)
	require.NoError(t, err)

	list, err := s.Load()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "f1", list[0].ID)
	assert.True(t, list[0].Active)
}

func TestLoadInvalidDocumentFailsSchemaValidation(t *testing.T) {
	path := seedFile(t, `{"filters":[{"name":"missing id"}]}`)
	s, err := NewStore(path)
	require.NoError(t, err)

	_, err = s.Load()
	assert.Error(t, err)
}

func TestSetActiveTogglesSingleFilter(t *testing.T) {
	path := seedFile(t, `{"filters":[
		{"id":"f1","name":"A","active":false},
		{"id":"f2","name":"B","active":true}
	]}`)
	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, s.SetActive("f1", true))

	list, err := s.Load()
	require.NoError(t, err)
	byID := map[string]Filter{}
	for _, f := range list {
		byID[f.ID] = f
	}
	assert.True(t, byID["f1"].Active)
	assert.True(t, byID["f2"].Active)
}

func TestSetActiveUnknownIDErrors(t *testing.T) {
	path := seedFile(t, `{"filters":[{"id":"f1","name":"A","active":false}]}`)
	s, err := NewStore(path)
	require.NoError(t, err)

	err = s.SetActive("missing", true)
	assert.Error(t, err)
}

func TestToggleAllSetsEveryFilter(t *testing.T) {
	path := seedFile(t, `{"filters":[
		{"id":"f1","name":"A","active":true},
		{"id":"f2","name":"B","active":false}
	]}`)
	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, s.ToggleAll(false))

	list, err := s.Load()
	require.NoError(t, err)
	for _, f := range list {
		assert.False(t, f.Active)
	}
}

func TestInvertFlipsEveryFilter(t *testing.T) {
	path := seedFile(t, `{"filters":[
		{"id":"f1","name":"A","active":true},
		{"id":"f2","name":"B","active":false}
	]}`)
	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Invert())

	list, err := s.Load()
	require.NoError(t, err)
	byID := map[string]Filter{}
	for _, f := range list {
		byID[f.ID] = f
	}
	assert.False(t, byID["f1"].Active)
	assert.True(t, byID["f2"].Active)
}

func TestWriteCreatesTimestampedBackup(t *testing.T) {
	path := seedFile(t, `{"filters":[{"id":"f1","name":"A","active":false}]}`)
	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, s.SetActive("f1", true))

	matches, err := filepath.Glob(path + ".bak.*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/yaml-translator/internal/jobs"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "translateit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_KVRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "yaml_translations_hi")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "yaml_translations_hi", `{"index":1}`))
	require.NoError(t, store.Set(ctx, "yaml_translations_hi", `{"index":2}`))
	require.NoError(t, store.Set(ctx, "yaml_translations_es", `{}`))
	require.NoError(t, store.Set(ctx, "current_language_key", "hi"))

	got, ok, err := store.Get(ctx, "yaml_translations_hi")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"index":2}`, got)

	keys, err := store.Keys(ctx, "yaml_translations_")
	require.NoError(t, err)
	assert.Equal(t, []string{"yaml_translations_es", "yaml_translations_hi"}, keys)

	require.NoError(t, store.Delete(ctx, "yaml_translations_hi"))
	_, ok, err = store.Get(ctx, "yaml_translations_hi")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_KeysPrefixIsLiteral(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a%b_1", "x"))
	require.NoError(t, store.Set(ctx, "axb_1", "y"))

	keys, err := store.Keys(ctx, "a%b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a%b_1"}, keys)
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := &jobs.DeliveryJob{
		ID:        "job-1",
		Channel:   "telegram",
		DedupeKey: "hi|abc",
		Payload: jobs.Payload{
			LanguageCode: "hi",
			FileName:     "hi.yml",
			EntryCount:   2,
			Content:      "a_1: \"एक\"\na_2: \"दो\"",
		},
		Status:    jobs.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = jobs.StatusFailed
	job.Error = "Bad Request: chat not found"
	job.Attempts = 1
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, jobs.StatusFailed, all[0].Status)
	assert.Equal(t, "Bad Request: chat not found", all[0].Error)
	assert.Equal(t, 1, all[0].Attempts)
	assert.Equal(t, job.Payload, all[0].Payload)

	require.NoError(t, store.DeleteJobData(ctx, "job-1"))
	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Empty(t, all[0].Payload.Content)

	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "translateit.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), "current_language_key", "es"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, ok, err := reopened.Get(context.Background(), "current_language_key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "es", got)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12_more.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

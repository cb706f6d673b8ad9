package state

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/appforge/internal/models"
)

func newTestStore(t *testing.T, dir string, historySize int) *Store {
	t.Helper()
	s, err := NewStore(dir, historySize, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func jobWithID(id string, status models.JobStatus, created time.Time) *models.BuildJob {
	return &models.BuildJob{
		ID:        id,
		PartnerID: "acme",
		Tier:      models.TierBasic,
		Status:    status,
		CreatedAt: created,
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 10)
	job := jobWithID("a", models.StatusQueued, time.Now())

	require.NoError(t, s.Put(job))
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.PartnerID)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 10)
	require.NoError(t, s.Put(jobWithID("a", models.StatusQueued, time.Now())))

	got, err := s.Get("a")
	require.NoError(t, err)
	got.Status = models.StatusFailed

	again, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, again.Status, "caller mutation must not leak into the store")
}

func TestUpdatePersists(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, 10)
	require.NoError(t, s.Put(jobWithID("a", models.StatusQueued, time.Now())))

	require.NoError(t, s.Update("a", func(j *models.BuildJob) {
		j.Status = models.StatusActive
		j.ProgressPercent = 30
	}))

	assert.ErrorIs(t, s.Update("missing", func(*models.BuildJob) {}), ErrNotFound)

	// A fresh store sees the persisted update.
	s2 := newTestStore(t, dir, 10)
	got, err := s2.Get("a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, 30, got.ProgressPercent)
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 10)
	base := time.Now()
	require.NoError(t, s.Put(jobWithID("old", models.StatusCompleted, base.Add(-2*time.Hour))))
	require.NoError(t, s.Put(jobWithID("new", models.StatusQueued, base)))
	require.NoError(t, s.Put(jobWithID("mid", models.StatusFailed, base.Add(-time.Hour))))

	all := s.List("")
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)

	failed := s.List(models.StatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "mid", failed[0].ID)
}

func TestActiveExcludesTerminal(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 10)
	now := time.Now()
	require.NoError(t, s.Put(jobWithID("q", models.StatusQueued, now)))
	require.NoError(t, s.Put(jobWithID("r", models.StatusActive, now)))
	require.NoError(t, s.Put(jobWithID("c", models.StatusCompleted, now)))
	require.NoError(t, s.Put(jobWithID("f", models.StatusFailed, now)))

	active := s.Active()
	ids := make(map[string]bool)
	for _, j := range active {
		ids[j.ID] = true
	}
	assert.Equal(t, map[string]bool{"q": true, "r": true}, ids)
}

func TestTrimEvictsOldestTerminalOnly(t *testing.T) {
	s := newTestStore(t, t.TempDir(), 2)
	base := time.Now()
	require.NoError(t, s.Put(jobWithID("t1", models.StatusCompleted, base.Add(-3*time.Hour))))
	require.NoError(t, s.Put(jobWithID("t2", models.StatusFailed, base.Add(-2*time.Hour))))
	require.NoError(t, s.Put(jobWithID("running", models.StatusActive, base.Add(-4*time.Hour))))
	require.NoError(t, s.Put(jobWithID("t3", models.StatusCancelled, base.Add(-time.Hour))))

	_, err := s.Get("t1")
	assert.ErrorIs(t, err, ErrNotFound, "oldest terminal job is evicted")
	_, err = s.Get("t2")
	assert.NoError(t, err)
	_, err = s.Get("running")
	assert.NoError(t, err, "active jobs are never evicted")
}

func TestReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, 10)
	require.NoError(t, s.Put(jobWithID("a", models.StatusCompleted, time.Now())))

	s2 := newTestStore(t, dir, 10)
	got, err := s2.Get("a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestCorruptStoreFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs.json"), []byte("{broken"), 0o640))

	_, err := NewStore(dir, 10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

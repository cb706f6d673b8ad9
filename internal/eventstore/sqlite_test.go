package eventstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndGetByJobID(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "job-1", TypeJobSubmitted, "", []byte(`{"tier":"basic"}`), nil))
	require.NoError(t, s.Append(ctx, "job-1", TypeStageStarted, "template-processing", []byte(`{"percent":0}`), nil))
	require.NoError(t, s.Append(ctx, "job-2", TypeJobSubmitted, "", []byte(`{}`), nil))

	evs, err := s.GetByJobID(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, TypeJobSubmitted, evs[0].Type())
	assert.Equal(t, TypeStageStarted, evs[1].Type())
	assert.Equal(t, "job-1", evs[0].JobID())
	assert.JSONEq(t, `{"tier":"basic"}`, string(evs[0].Payload()))
	assert.Less(t, evs[0].ID(), evs[1].ID(), "events keep insertion order")
}

func TestAppendWithMetadata(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "job-1", TypeJobStarted, "", []byte(`{}`),
		map[string]string{"attempt": "2"}))

	evs, err := s.GetByJobID(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "2", evs[0].Metadata()["attempt"])
}

func TestGetByJobIDUnknown(t *testing.T) {
	s := newMemoryStore(t)

	evs, err := s.GetByJobID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestGetRange(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "job-1", TypeJobSubmitted, "", []byte(`{}`), nil))
	require.NoError(t, s.Append(ctx, "job-2", TypeJobCompleted, "", []byte(`{}`), nil))

	now := time.Now()
	evs, err := s.GetRange(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	evs, err = s.GetRange(ctx, now.Add(-2*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "job-1", TypeJobFailed, "packaging", []byte(`{"status":"failed"}`), nil))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	evs, err := s2.GetByJobID(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, TypeJobFailed, evs[0].Type())
	assert.Equal(t, "packaging", evs[0].Stage())
}

func TestGetByStage(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "job-1", TypeStageStarted, "template-processing", []byte(`{"percent":5}`), nil))
	require.NoError(t, s.Append(ctx, "job-1", TypeStageCompleted, "template-processing", []byte(`{"percent":35}`), nil))
	require.NoError(t, s.Append(ctx, "job-1", TypeStageStarted, "external-build", []byte(`{"percent":45}`), nil))
	require.NoError(t, s.Append(ctx, "job-2", TypeStageStarted, "template-processing", []byte(`{}`), nil))

	evs, err := s.GetByStage(ctx, "job-1", "template-processing")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, TypeStageStarted, evs[0].Type())
	assert.Equal(t, TypeStageCompleted, evs[1].Type())
	for _, ev := range evs {
		assert.Equal(t, "job-1", ev.JobID())
		assert.Equal(t, "template-processing", ev.Stage())
	}

	evs, err = s.GetByStage(ctx, "job-1", "packaging")
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestRecordMarshalsTypedPayload(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, Record(ctx, s, "job-1", TypeJobRetried, "external-build", RetryPayload{
		AttemptCount: 2,
		DelayMs:      1500,
		Error:        "toolchain exited with code 1",
	}, nil))

	evs, err := s.GetByJobID(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "external-build", evs[0].Stage())

	var p RetryPayload
	require.NoError(t, json.Unmarshal(evs[0].Payload(), &p))
	assert.Equal(t, 2, p.AttemptCount)
	assert.EqualValues(t, 1500, p.DelayMs)
}

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/events"
	"github.com/forgeworks/appforge/internal/eventstore"
	"github.com/forgeworks/appforge/internal/models"
	"github.com/forgeworks/appforge/internal/queue"
	"github.com/forgeworks/appforge/internal/state"
)

type stubRunner struct {
	fn func(ctx context.Context, job *models.BuildJob) error
}

func (r *stubRunner) Run(ctx context.Context, job *models.BuildJob) error {
	if r.fn != nil {
		return r.fn(ctx, job)
	}
	return nil
}

type fixture struct {
	srv   *httptest.Server
	queue *queue.BuildQueue
	store *state.Store
}

func newFixture(t *testing.T, qcfg config.QueueConfig, runner queue.Runner) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := state.NewStore(t.TempDir(), qcfg.HistorySize, log)
	require.NoError(t, err)
	broker := events.NewBroker()
	t.Cleanup(broker.Close)
	es, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })

	q := queue.New(qcfg, runner, store, queue.Opts{Broker: broker, Events: es}, log)
	t.Cleanup(func() { q.Stop(context.Background()) })

	s := New(config.ServerConfig{}, q, store, broker, es, nil, log)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)

	return &fixture{srv: ts, queue: q, store: store}
}

func queueConfig() config.QueueConfig {
	return config.QueueConfig{
		Workers:           1,
		MaxSize:           10,
		HistorySize:       50,
		MaxAttempts:       3,
		RetryBackoff:      config.RetryBackoffFixed,
		RetryInitialDelay: "1ms",
		RetryMaxDelay:     "5ms",
		TierPriorities: map[string]int{
			string(models.TierEnterprise): 100,
			string(models.TierPremium):    50,
			string(models.TierBasic):      10,
		},
	}
}

func submitBody() []byte {
	return []byte(`{
		"partner_id": "acme",
		"tier": "premium",
		"config": {
			"app_name": "Acme Pay",
			"package_name": "com.acme.pay",
			"version": "1.0.0",
			"branding": {
				"primary_color": "#3366CC",
				"secondary_color": "#FF9900",
				"logo": "logo.png"
			}
		}
	}`)
}

func submitJob(t *testing.T, f *fixture) string {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(submitBody()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var sr submitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	require.NotEmpty(t, sr.JobID)
	return sr.JobID
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})

	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitGetAndPosition(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})
	id := submitJob(t, f)

	resp, err := http.Get(f.srv.URL + "/api/v1/jobs/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job models.BuildJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.Equal(t, models.StatusQueued, job.Status)
	assert.Equal(t, 50, job.Priority)

	resp, err = http.Get(f.srv.URL + "/api/v1/jobs/" + id + "/position")
	require.NoError(t, err)
	defer resp.Body.Close()
	var pos map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pos))
	assert.Equal(t, 1, pos["position"])
}

func TestSubmitInvalidConfig(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})

	body := []byte(`{"partner_id": "acme", "config": {"app_name": ""}}`)
	resp, err := http.Post(f.srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var er errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, string(models.KindValidation), er.Kind)
}

func TestSubmitMalformedBody(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})

	resp, err := http.Post(f.srv.URL+"/api/v1/jobs", "application/json", strings.NewReader("{broken"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitQueueFull(t *testing.T) {
	cfg := queueConfig()
	cfg.MaxSize = 1
	f := newFixture(t, cfg, &stubRunner{})

	submitJob(t, f)
	resp, err := http.Post(f.srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(submitBody()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestGetUnknownJob(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})

	resp, err := http.Get(f.srv.URL + "/api/v1/jobs/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelLifecycle(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})
	id := submitJob(t, f)

	del := func(id string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/v1/jobs/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := del(id)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = del(id)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "cancelling a finished job conflicts")

	resp = del("nope")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})
	id := submitJob(t, f)
	require.NoError(t, f.queue.Cancel(id))
	submitJob(t, f)

	resp, err := http.Get(f.srv.URL + "/api/v1/jobs?status=cancelled")
	require.NoError(t, err)
	defer resp.Body.Close()

	var jobs []models.BuildJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})
	submitJob(t, f)

	resp, err := http.Get(f.srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats models.QueueStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Waiting)
}

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})
	id := submitJob(t, f)

	resp, err := http.Get(f.srv.URL + "/api/v1/jobs/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var evs []struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&evs))
	require.NotEmpty(t, evs)
	assert.Equal(t, eventstore.TypeJobSubmitted, evs[0].Type)

	// Submission events carry no stage, so a stage filter excludes them.
	resp2, err := http.Get(f.srv.URL + "/api/v1/jobs/" + id + "/events?stage=template-processing")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var filtered []json.RawMessage
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&filtered))
	assert.Empty(t, filtered)
}

func TestProgressStreamTerminalJob(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})
	id := submitJob(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.queue.Start(ctx)

	require.Eventually(t, func() bool {
		j, err := f.store.Get(id)
		return err == nil && j.Status == models.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	resp, err := http.Get(f.srv.URL + "/api/v1/jobs/" + id + "/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// A terminal job replays its final state and closes the stream.
	sc := bufio.NewScanner(resp.Body)
	var line string
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "data: ") {
			line = sc.Text()
			break
		}
	}
	require.NotEmpty(t, line)

	var ev models.ProgressEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
	assert.Equal(t, id, ev.JobID)
	assert.Equal(t, models.StatusCompleted, ev.Status)
	assert.Equal(t, 100, ev.Percent)
}

func TestProgressUnknownJob(t *testing.T) {
	f := newFixture(t, queueConfig(), &stubRunner{})

	resp, err := http.Get(f.srv.URL + "/api/v1/jobs/nope/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/events"
	"github.com/forgeworks/appforge/internal/models"
	"github.com/forgeworks/appforge/internal/state"
)

type stubRunner struct {
	mu    sync.Mutex
	order []string
	fn    func(ctx context.Context, job *models.BuildJob) error
}

func (r *stubRunner) Run(ctx context.Context, job *models.BuildJob) error {
	r.mu.Lock()
	r.order = append(r.order, job.ID)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ctx, job)
	}
	return nil
}

func (r *stubRunner) ranOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func testQueueConfig() config.QueueConfig {
	cfg := config.QueueConfig{
		Workers:           1,
		MaxSize:           10,
		HistorySize:       50,
		MaxAttempts:       3,
		RetryBackoff:      config.RetryBackoffFixed,
		RetryInitialDelay: "1ms",
		RetryMaxDelay:     "5ms",
	}
	cfg.TierPriorities = map[string]int{
		string(models.TierEnterprise): 100,
		string(models.TierPremium):    50,
		string(models.TierBasic):      10,
	}
	return cfg
}

func newTestQueue(t *testing.T, cfg config.QueueConfig, runner Runner, opts Opts) (*BuildQueue, *state.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := state.NewStore(t.TempDir(), cfg.HistorySize, log)
	require.NoError(t, err)
	return New(cfg, runner, store, opts, log), store
}

func submission(tier models.Tier) *models.BuildJob {
	return &models.BuildJob{
		PartnerID: "acme",
		Tier:      tier,
		Config: models.PartnerConfig{
			AppName:     "Acme Pay",
			PackageName: "com.acme.pay",
			Version:     "1.0.0",
			Branding: models.BrandingConfig{
				PrimaryColor:   "#3366CC",
				SecondaryColor: "#FFFFFF",
				Logo:           "logo.png",
			},
		},
	}
}

func waitForStatus(t *testing.T, store *state.Store, id string, want models.JobStatus) *models.BuildJob {
	t.Helper()
	var job *models.BuildJob
	require.Eventually(t, func() bool {
		j, err := store.Get(id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestSubmitRejectsInvalidConfig(t *testing.T) {
	q, _ := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{})

	job := submission(models.TierBasic)
	job.Config.AppName = ""
	_, err := q.Submit(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSubmitAssignsIDPriorityAndDefaults(t *testing.T) {
	q, store := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{})

	id, err := q.Submit(context.Background(), submission(models.TierEnterprise))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, job.Status)
	assert.Equal(t, 100, job.Priority)
	assert.Equal(t, models.BuildDebug, job.BuildKind, "build kind defaults to debug")
	assert.False(t, job.CreatedAt.IsZero())
}

func TestSubmitRejectsDuplicateID(t *testing.T) {
	q, _ := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{})

	job := submission(models.TierBasic)
	job.ID = "partner-chosen-id"
	_, err := q.Submit(context.Background(), job)
	require.NoError(t, err)

	dup := submission(models.TierBasic)
	dup.ID = "partner-chosen-id"
	_, err = q.Submit(context.Background(), dup)
	assert.ErrorIs(t, err, ErrDuplicateJob)

	// The id stays taken even after the first job finishes.
	require.NoError(t, q.Cancel("partner-chosen-id"))
	again := submission(models.TierBasic)
	again.ID = "partner-chosen-id"
	_, err = q.Submit(context.Background(), again)
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestSetTierPrioritiesAppliesToNewSubmissions(t *testing.T) {
	q, _ := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{})

	before := submission(models.TierBasic)
	_, err := q.Submit(context.Background(), before)
	require.NoError(t, err)

	q.SetTierPriorities(map[string]int{string(models.TierBasic): 900})

	after := submission(models.TierBasic)
	_, err = q.Submit(context.Background(), after)
	require.NoError(t, err)

	assert.Equal(t, 10, before.Priority, "admitted jobs keep their priority")
	assert.Equal(t, 900, after.Priority)
	assert.Equal(t, 1, q.PositionOf(after.ID))
}

func TestSubmitQueueFull(t *testing.T) {
	cfg := testQueueConfig()
	cfg.MaxSize = 1
	q, _ := newTestQueue(t, cfg, &stubRunner{}, Opts{})

	_, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)
	_, err = q.Submit(context.Background(), submission(models.TierBasic))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestSubmitAfterStop(t *testing.T) {
	q, _ := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{})
	q.Stop(context.Background())

	_, err := q.Submit(context.Background(), submission(models.TierBasic))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDispatchOrderByTierThenSubmission(t *testing.T) {
	runner := &stubRunner{}
	q, store := newTestQueue(t, testQueueConfig(), runner, Opts{})

	basicID, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)
	entID, err := q.Submit(context.Background(), submission(models.TierEnterprise))
	require.NoError(t, err)
	premID, err := q.Submit(context.Background(), submission(models.TierPremium))
	require.NoError(t, err)

	assert.Equal(t, 1, q.PositionOf(entID))
	assert.Equal(t, 2, q.PositionOf(premID))
	assert.Equal(t, 3, q.PositionOf(basicID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	waitForStatus(t, store, basicID, models.StatusCompleted)
	assert.Equal(t, []string{entID, premID, basicID}, runner.ranOrder())
	assert.Equal(t, 0, q.PositionOf(entID), "dispatched jobs have no queue position")
}

func TestEqualPrioritySubmissionOrder(t *testing.T) {
	q, _ := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Submit(context.Background(), submission(models.TierPremium))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i, id := range ids {
		assert.Equal(t, i+1, q.PositionOf(id))
	}
}

func TestTransientFailureRetriesUntilExhaustion(t *testing.T) {
	runner := &stubRunner{
		fn: func(ctx context.Context, job *models.BuildJob) error {
			return models.NewFatalStageError(models.StageBuild,
				fmt.Errorf("%w: toolchain exited with code 1", models.ErrExecutor))
		},
	}
	cfg := testQueueConfig()
	cfg.MaxAttempts = 3
	q, store := newTestQueue(t, cfg, runner, Opts{})

	id, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	job := waitForStatus(t, store, id, models.StatusFailed)
	assert.Equal(t, 3, job.AttemptCount, "the attempt budget is spent before failing")
	assert.Equal(t, models.KindExecutor, job.ErrorKind)
	assert.Len(t, runner.ranOrder(), 3)
}

func TestNonTransientFailureDoesNotRetry(t *testing.T) {
	runner := &stubRunner{
		fn: func(ctx context.Context, job *models.BuildJob) error {
			return models.NewFatalStageError(models.StageInjection,
				fmt.Errorf("%w: placeholder not found", models.ErrInjection))
		},
	}
	q, store := newTestQueue(t, testQueueConfig(), runner, Opts{})

	id, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	job := waitForStatus(t, store, id, models.StatusFailed)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Equal(t, models.KindInjection, job.ErrorKind)
}

func TestRecoveryAfterTransientFailure(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	runner := &stubRunner{
		fn: func(ctx context.Context, job *models.BuildJob) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return models.NewFatalStageError(models.StageBuild,
					fmt.Errorf("%w: transient", models.ErrExecutor))
			}
			return nil
		},
	}
	q, store := newTestQueue(t, testQueueConfig(), runner, Opts{})

	id, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	job := waitForStatus(t, store, id, models.StatusCompleted)
	assert.Equal(t, 2, job.AttemptCount)
	assert.Empty(t, job.LastError, "a completed job carries no error")
	assert.Equal(t, 100, job.ProgressPercent)
}

func TestCancelWaitingJob(t *testing.T) {
	q, store := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{})

	id, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)

	require.NoError(t, q.Cancel(id))
	assert.Equal(t, 0, q.PositionOf(id))

	job, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, job.Status)

	assert.ErrorIs(t, q.Cancel(id), ErrJobTerminal)
}

func TestCancelActiveJob(t *testing.T) {
	started := make(chan struct{})
	runner := &stubRunner{
		fn: func(ctx context.Context, job *models.BuildJob) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	q, store := newTestQueue(t, testQueueConfig(), runner, Opts{})

	id, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	<-started
	require.NoError(t, q.Cancel(id))

	job := waitForStatus(t, store, id, models.StatusCancelled)
	assert.Equal(t, models.StatusCancelled, job.Status)
}

func TestNoConcurrentExecutionOfSameJob(t *testing.T) {
	var mu sync.Mutex
	running := map[string]int{}
	overlaps := 0
	runner := &stubRunner{
		fn: func(ctx context.Context, job *models.BuildJob) error {
			mu.Lock()
			running[job.ID]++
			if running[job.ID] > 1 {
				overlaps++
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			running[job.ID]--
			mu.Unlock()
			return nil
		},
	}
	cfg := testQueueConfig()
	cfg.Workers = 4
	cfg.MaxSize = 100
	q, store := newTestQueue(t, cfg, runner, Opts{})

	var ids []string
	for i := 0; i < 20; i++ {
		id, err := q.Submit(context.Background(), submission(models.TierBasic))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	for _, id := range ids {
		waitForStatus(t, store, id, models.StatusCompleted)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, overlaps, "a job id must never run on two workers at once")
	assert.Len(t, runner.ranOrder(), 20)
}

func TestCancelDuringDispatchHandoff(t *testing.T) {
	runner := &stubRunner{
		fn: func(ctx context.Context, job *models.BuildJob) error {
			time.Sleep(time.Millisecond)
			return nil
		},
	}
	cfg := testQueueConfig()
	cfg.Workers = 2
	cfg.MaxSize = 100
	q, _ := newTestQueue(t, cfg, runner, Opts{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	// Cancel right after submit so some calls land while the job is between
	// the heap and a worker's active registration. A live job must never be
	// reported unknown.
	for i := 0; i < 50; i++ {
		id, err := q.Submit(context.Background(), submission(models.TierBasic))
		require.NoError(t, err)
		if cerr := q.Cancel(id); cerr != nil {
			assert.ErrorIs(t, cerr, ErrJobTerminal, "cancel of job %s", id)
		}
	}
}

func TestCancelUnknownJob(t *testing.T) {
	q, _ := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{})
	assert.ErrorIs(t, q.Cancel("nope"), ErrUnknownJob)
}

func TestStats(t *testing.T) {
	runner := &stubRunner{}
	q, store := newTestQueue(t, testQueueConfig(), runner, Opts{})

	id, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)

	s := q.Stats()
	assert.Equal(t, 1, s.Waiting)
	assert.Equal(t, 1, s.Total)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	waitForStatus(t, store, id, models.StatusCompleted)
	require.Eventually(t, func() bool {
		s := q.Stats()
		return s.Completed == 1 && s.Waiting == 0 && s.Active == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestQueuedProgressEventPublished(t *testing.T) {
	broker := events.NewBroker()
	defer broker.Close()
	q, _ := newTestQueue(t, testQueueConfig(), &stubRunner{}, Opts{Broker: broker})

	ch, unsub := broker.Subscribe("", 8)
	defer unsub()

	id, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, id, ev.JobID)
		assert.Equal(t, models.StatusQueued, ev.Status)
		assert.Equal(t, "job accepted", ev.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress event received")
	}
}

func TestTerminalProgressEventPublished(t *testing.T) {
	broker := events.NewBroker()
	defer broker.Close()
	runner := &stubRunner{}
	q, store := newTestQueue(t, testQueueConfig(), runner, Opts{Broker: broker})

	id, err := q.Submit(context.Background(), submission(models.TierBasic))
	require.NoError(t, err)

	ch, unsub := broker.Subscribe(id, 8)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	waitForStatus(t, store, id, models.StatusCompleted)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Status == models.StatusCompleted {
				assert.Equal(t, 100, ev.Percent)
				return
			}
		case <-deadline:
			t.Fatal("no terminal progress event received")
		}
	}
}

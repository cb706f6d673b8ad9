// Package queue accepts build jobs, orders them by partner tier, and drives
// a bounded worker pool through the orchestrator. Retry of transient
// failures lives here, not in the stages: a stage reports what broke, the
// queue decides whether to run the job again.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/events"
	"github.com/forgeworks/appforge/internal/eventstore"
	"github.com/forgeworks/appforge/internal/metrics"
	"github.com/forgeworks/appforge/internal/models"
	"github.com/forgeworks/appforge/internal/retry"
	"github.com/forgeworks/appforge/internal/state"
)

var (
	ErrQueueFull    = errors.New("build queue is full")
	ErrQueueClosed  = errors.New("build queue is closed")
	ErrUnknownJob   = errors.New("unknown job")
	ErrJobTerminal  = errors.New("job already finished")
	ErrDuplicateJob = errors.New("job id already submitted")
)

// Runner executes one job to completion. The orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, job *models.BuildJob) error
}

// BuildQueue manages job admission, ordering and execution.
type BuildQueue struct {
	cfg      config.QueueConfig
	log      *slog.Logger
	runner   Runner
	store    *state.Store
	broker   *events.Broker
	events   eventstore.Store
	recorder metrics.Recorder
	policy   retry.Policy

	mu          sync.Mutex
	waiting     waitingHeap
	waitingByID map[string]*waitingJob
	active      map[string]context.CancelFunc
	seq         uint64
	completed   int
	failed      int
	cancelled   int

	wake     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	stopped  bool
	wg       sync.WaitGroup
}

// Opts carries the optional collaborators.
type Opts struct {
	Broker   *events.Broker
	Events   eventstore.Store
	Recorder metrics.Recorder
}

func New(cfg config.QueueConfig, runner Runner, store *state.Store, opts Opts, log *slog.Logger) *BuildQueue {
	if runner == nil {
		panic("queue.New: runner is required")
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Events == nil {
		opts.Events = eventstore.NoopStore{}
	}
	return &BuildQueue{
		cfg:         cfg,
		log:         log.With(slog.String("component", "queue")),
		runner:      runner,
		store:       store,
		broker:      opts.Broker,
		events:      opts.Events,
		recorder:    opts.Recorder,
		policy:      retry.FromConfig(cfg),
		waitingByID: make(map[string]*waitingJob),
		active:      make(map[string]context.CancelFunc),
		wake:        make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the worker pool.
func (q *BuildQueue) Start(ctx context.Context) {
	q.log.Info("starting build queue",
		slog.Int("workers", q.cfg.Workers),
		slog.Int("max_size", q.cfg.MaxSize))
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop shuts the queue down: no new admissions, active jobs canceled,
// workers joined.
func (q *BuildQueue) Stop(ctx context.Context) {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		cancels := make([]context.CancelFunc, 0, len(q.active))
		for _, c := range q.active {
			cancels = append(cancels, c)
		}
		q.mu.Unlock()

		close(q.stopChan)
		for _, c := range cancels {
			c()
		}

		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			q.log.Warn("queue stop timed out waiting for workers")
		}
	})
}

// Submit validates and admits a job. On success the job ID is returned and
// the job is durably recorded before any worker can claim it.
func (q *BuildQueue) Submit(ctx context.Context, job *models.BuildJob) (string, error) {
	if vr := config.ValidateSubmission(job.PartnerID, job.Config); !vr.Valid() {
		return "", vr.Err()
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.BuildKind == "" {
		job.BuildKind = models.BuildDebug
	}
	job.Status = models.StatusQueued
	job.CreatedAt = time.Now().UTC()

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	if len(q.waiting) >= q.cfg.MaxSize {
		q.mu.Unlock()
		return "", ErrQueueFull
	}
	if _, dup := q.waitingByID[job.ID]; dup {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	if _, dup := q.active[job.ID]; dup {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	if _, err := q.store.Get(job.ID); err == nil {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	job.Priority = q.cfg.PriorityFor(job.Tier)
	q.seq++
	w := &waitingJob{job: job, seq: q.seq}
	heap.Push(&q.waiting, w)
	q.waitingByID[job.ID] = w
	depth := len(q.waiting)
	q.mu.Unlock()

	if err := q.store.Put(job); err != nil {
		q.log.Error("job persist failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
	_ = eventstore.Record(ctx, q.events, job.ID, eventstore.TypeJobSubmitted, "", eventstore.SubmitPayload{
		PartnerID: job.PartnerID,
		Tier:      string(job.Tier),
		BuildKind: string(job.BuildKind),
		Priority:  job.Priority,
	}, nil)
	q.publish(models.ProgressEvent{
		JobID:   job.ID,
		Status:  models.StatusQueued,
		Message: "job accepted",
	})
	q.recorder.SetQueueDepth(depth)
	q.signal()

	q.log.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("partner_id", job.PartnerID),
		slog.String("tier", string(job.Tier)),
		slog.Int("priority", job.Priority),
		slog.Int("position", depth))
	return job.ID, nil
}

// SetTierPriorities swaps the tier priority table used for new submissions.
// Jobs already admitted keep the priority they were admitted with.
func (q *BuildQueue) SetTierPriorities(tiers map[string]int) {
	q.mu.Lock()
	q.cfg.TierPriorities = tiers
	q.mu.Unlock()
}

// Cancel stops a job. A waiting job is removed from the queue immediately;
// an active job is canceled cooperatively and finishes at the next stage
// boundary. A known non-terminal job found in neither set is mid-handoff
// between the heap and a worker, so the lookup is retried briefly.
func (q *BuildQueue) Cancel(id string) error {
	deadline := time.Now().Add(time.Second)
	for {
		q.mu.Lock()
		if w, ok := q.waitingByID[id]; ok {
			heap.Remove(&q.waiting, w.index)
			delete(q.waitingByID, id)
			depth := len(q.waiting)
			q.mu.Unlock()
			q.recorder.SetQueueDepth(depth)
			q.finalize(w.job, models.StatusCancelled, nil, "cancelled while queued")
			return nil
		}
		if cancel, ok := q.active[id]; ok {
			q.mu.Unlock()
			cancel()
			return nil
		}
		q.mu.Unlock()

		job, err := q.store.Get(id)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownJob, id)
		}
		if job.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrJobTerminal, id, job.Status)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrUnknownJob, id)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Job returns a copy of the job record.
func (q *BuildQueue) Job(id string) (*models.BuildJob, error) {
	return q.store.Get(id)
}

// PositionOf reports the 1-based dispatch position of a waiting job, or 0 if
// the job is not waiting.
func (q *BuildQueue) PositionOf(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	target, ok := q.waitingByID[id]
	if !ok {
		return 0
	}
	pos := 1
	for _, w := range q.waiting {
		if w != target && w.before(target) {
			pos++
		}
	}
	return pos
}

// Stats returns a point-in-time snapshot of queue counters.
func (q *BuildQueue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := models.QueueStats{
		Waiting:   len(q.waiting),
		Active:    len(q.active),
		Completed: q.completed,
		Failed:    q.failed,
		Cancelled: q.cancelled,
	}
	s.Total = s.Waiting + s.Active + s.Completed + s.Failed + s.Cancelled
	return s
}

func (q *BuildQueue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()
	log := q.log.With(slog.String("worker", workerID))

	for {
		w := q.pop()
		if w == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.stopChan:
				return
			case <-q.wake:
				continue
			}
		}
		q.processJob(ctx, w.job, log)
	}
}

func (q *BuildQueue) pop() *waitingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) == 0 {
		return nil
	}
	w := heap.Pop(&q.waiting).(*waitingJob)
	delete(q.waitingByID, w.job.ID)
	q.recorder.SetQueueDepth(len(q.waiting))
	if len(q.waiting) > 0 {
		q.signal() // wake another worker for the remaining backlog
	}
	return w
}

// processJob runs one job through the orchestrator, retrying transient
// failures until the attempt budget runs out. The worker owns the job for
// the whole retry sequence; it never returns to the heap.
func (q *BuildQueue) processJob(ctx context.Context, job *models.BuildJob, log *slog.Logger) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	q.active[job.ID] = cancel
	q.recorder.SetActiveWorkers(len(q.active))
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.active, job.ID)
		q.recorder.SetActiveWorkers(len(q.active))
		q.mu.Unlock()
	}()

	q.recorder.ObserveQueueWait(time.Since(job.CreatedAt))

	for {
		job.AttemptCount++
		now := time.Now().UTC()
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		job.Status = models.StatusActive
		job.CurrentStage = ""
		job.ProgressPercent = 0
		q.persist(job)
		_ = eventstore.Record(jobCtx, q.events, job.ID, eventstore.TypeJobStarted, "",
			eventstore.StagePayload{}, map[string]string{"attempt": fmt.Sprint(job.AttemptCount)})

		err := q.runner.Run(jobCtx, job)
		if err == nil {
			q.finalize(job, models.StatusCompleted, nil, "")
			return
		}

		var se *models.StageError
		isStage := errors.As(err, &se)
		if jobCtx.Err() != nil || (isStage && se.Kind == models.StageErrorCanceled) {
			q.finalize(job, models.StatusCancelled, err, "cancelled")
			return
		}

		transient := isStage && se.Transient()
		if !transient || job.AttemptCount >= q.policy.MaxAttempts {
			if transient {
				q.recorder.IncRetryExhausted(string(se.Stage))
			}
			q.finalize(job, models.StatusFailed, err, "")
			return
		}

		stage := string(se.Stage)
		delay := q.policy.Delay(job.AttemptCount)
		q.recorder.IncJobRetry(stage)
		_ = eventstore.Record(jobCtx, q.events, job.ID, eventstore.TypeJobRetried, stage, eventstore.RetryPayload{
			AttemptCount: job.AttemptCount,
			DelayMs:      delay.Milliseconds(),
			Error:        err.Error(),
		}, nil)
		log.Warn("transient build error, retrying",
			slog.String("job_id", job.ID),
			slog.Int("attempt", job.AttemptCount),
			slog.Int("max_attempts", q.policy.MaxAttempts),
			slog.String("stage", stage),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		job.Status = models.StatusQueued
		job.LastError = err.Error()
		job.ErrorKind = models.KindOf(err)
		q.persist(job)
		q.publish(models.ProgressEvent{
			JobID:   job.ID,
			Status:  models.StatusQueued,
			Stage:   se.Stage,
			Percent: job.ProgressPercent,
			Message: fmt.Sprintf("retrying after %s failure", stage),
			Error:   err.Error(),
		})

		select {
		case <-time.After(delay):
		case <-jobCtx.Done():
			q.finalize(job, models.StatusCancelled, jobCtx.Err(), "cancelled during retry wait")
			return
		}
	}
}

// finalize moves a job into a terminal state exactly once and fans the
// outcome out to the store, broker, event log and metrics.
func (q *BuildQueue) finalize(job *models.BuildJob, status models.JobStatus, err error, message string) {
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	if err != nil {
		job.LastError = err.Error()
		job.ErrorKind = models.KindOf(err)
	}
	if status == models.StatusCompleted {
		job.ProgressPercent = 100
		job.LastError = ""
		job.ErrorKind = models.KindNone
	}
	q.persist(job)

	q.mu.Lock()
	switch status {
	case models.StatusCompleted:
		q.completed++
	case models.StatusFailed:
		q.failed++
	case models.StatusCancelled:
		q.cancelled++
	}
	q.mu.Unlock()

	var durationMs int64
	if job.StartedAt != nil {
		durationMs = now.Sub(*job.StartedAt).Milliseconds()
	}
	eventType := eventstore.TypeJobCompleted
	switch status {
	case models.StatusFailed:
		eventType = eventstore.TypeJobFailed
	case models.StatusCancelled:
		eventType = eventstore.TypeJobCancelled
	}
	_ = eventstore.Record(context.Background(), q.events, job.ID, eventType, string(job.CurrentStage), eventstore.OutcomePayload{
		Status:       string(status),
		ErrorKind:    string(job.ErrorKind),
		Error:        job.LastError,
		AttemptCount: job.AttemptCount,
		DurationMs:   durationMs,
	}, nil)

	ev := models.ProgressEvent{
		JobID:     job.ID,
		Status:    status,
		Stage:     job.CurrentStage,
		Percent:   job.ProgressPercent,
		Message:   message,
		Error:     job.LastError,
		Timestamp: now,
	}
	q.publish(ev)
	q.recorder.IncBuildOutcome(string(status))

	q.log.Info("job finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(status)),
		slog.Int("attempts", job.AttemptCount),
		slog.String("error", job.LastError))
}

func (q *BuildQueue) persist(job *models.BuildJob) {
	if err := q.store.Put(job); err != nil {
		q.log.Error("job persist failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

func (q *BuildQueue) publish(ev models.ProgressEvent) {
	if q.broker == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.broker.Publish(ctx, ev); err != nil {
		q.log.Warn("progress publish failed", slog.String("job_id", ev.JobID), slog.String("error", err.Error()))
	}
}

func (q *BuildQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

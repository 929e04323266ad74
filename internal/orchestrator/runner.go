package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/dusk-indust/mailmerge/internal/tabular"
	"go.uber.org/zap"
)

// Option configures a Runner.
type Option func(*Runner)

// WithConfig sets the run policy. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(r *Runner) {
		r.cfg = cfg.withDefaults()
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver adds an event observer. Observers see every status
// transition and progress tick of every job.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithRecorder sets the provenance recorder called after each terminal
// transition.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// Runner is the merge job orchestrator. Adapters are injected through the
// constructor so concurrent jobs never share hidden client state.
type Runner struct {
	store     jobs.Store
	templates TemplateSource
	grids     GridSource
	producer  ArtifactProducer

	cfg       Config
	logger    *zap.Logger
	observers []Observer
	recorder  Recorder

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	wg      sync.WaitGroup
}

// NewRunner wires a Runner over the given store and adapters.
func NewRunner(store jobs.Store, templates TemplateSource, grids GridSource, producer ArtifactProducer, opts ...Option) *Runner {
	r := &Runner{
		store:     store,
		templates: templates,
		grids:     grids,
		producer:  producer,
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		running:   make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the job store the runner writes to.
func (r *Runner) Store() jobs.Store { return r.store }

// Submit validates req and stores a new pending job.
func (r *Runner) Submit(ctx context.Context, req Request) (*jobs.Job, error) {
	if strings.TrimSpace(req.TemplateID) == "" {
		return nil, fmt.Errorf("%w: templateId is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.DataSourceID) == "" {
		return nil, fmt.Errorf("%w: dataSourceId is required", ErrInvalidRequest)
	}
	rng := req.Range
	if rng == "" {
		rng = r.cfg.DefaultRange
	}
	parsed, err := tabular.ParseRange(rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	job := jobs.New(req.TemplateID, req.DataSourceID, parsed.String())
	if err := r.store.Create(ctx, job); err != nil {
		return nil, err
	}
	r.emit(ProgressEvent{JobID: job.ID, Kind: EventStatus, Status: jobs.StatusPending})
	r.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("template_id", job.TemplateID),
		zap.String("data_source_id", job.DataSourceID),
	)
	return &job, nil
}

// Start runs the job in the background. Wait and Close wait for it.
func (r *Runner) Start(jobID string, sink ProgressSink) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Run(context.Background(), jobID, sink); err != nil {
			r.logger.Debug("background run ended with error", zap.String("job_id", jobID), zap.Error(err))
		}
	}()
}

// Cancel stops a job. A running job stops issuing rows and ends failed with
// the canceled kind; a pending job is failed immediately.
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	// r.mu is held across the store write so a concurrent Run either sees
	// the failed job or registers first and is canceled through its context.
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.running[jobID]; ok {
		cancel(merge.ErrCanceled)
		r.logger.Info("job cancellation requested", zap.String("job_id", jobID))
		return nil
	}

	now := time.Now().UTC()
	job, err := r.store.Update(ctx, jobID, func(j *jobs.Job) error {
		if !j.Status.CanTransition(jobs.StatusFailed) {
			return fmt.Errorf("job %q is %s: %w", jobID, j.Status, ErrJobFinished)
		}
		j.Status = jobs.StatusFailed
		j.ErrorMessage = merge.ErrCanceled.Error()
		j.ErrorKind = merge.KindCanceled
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	r.emitStatus(job)
	r.logger.Info("job canceled before running", zap.String("job_id", jobID))
	return nil
}

// Wait blocks until every run started with Start has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels every running job and waits for background runs to end.
func (r *Runner) Close() error {
	r.mu.Lock()
	for _, cancel := range r.running {
		cancel(merge.ErrCanceled)
	}
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

// acquire takes the per-job execution lock. The returned abort cancels the
// run with a cause.
func (r *Runner) acquire(ctx context.Context, jobID string) (context.Context, context.CancelCauseFunc, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.running[jobID]; busy {
		return nil, nil, nil, fmt.Errorf("job %q: %w", jobID, ErrJobRunning)
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	r.running[jobID] = cancel
	release := func() {
		r.mu.Lock()
		delete(r.running, jobID)
		r.mu.Unlock()
		cancel(nil)
	}
	return runCtx, cancel, release, nil
}

// Run executes a pending job to a terminal state. It returns the final job
// snapshot; the error is non-nil when the job failed or could not start.
func (r *Runner) Run(ctx context.Context, jobID string, sink ProgressSink) (*jobs.Job, error) {
	runCtx, abort, release, err := r.acquire(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer release()
	runCtx = merge.WithJobID(runCtx, jobID)

	// Job records are written even after cancellation so the accounting
	// stays consistent.
	persist := context.WithoutCancel(ctx)
	progress := newProgressTracker(sink)
	log := r.logger.With(zap.String("job_id", jobID))

	now := time.Now().UTC()
	job, err := r.store.Update(persist, jobID, func(j *jobs.Job) error {
		if j.Status != jobs.StatusPending {
			return fmt.Errorf("job %q is %s: %w", jobID, j.Status, ErrJobNotPending)
		}
		j.Status = jobs.StatusProcessing
		j.StartedAt = &now
		j.Progress = progressStarted
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("job processing")
	r.emitStatus(job)
	r.reportProgress(job, progress, progressStarted, 0, "")

	policy := retryPolicy{
		timeout:     r.cfg.CallTimeout,
		maxAttempts: r.cfg.MaxAttempts,
		backoff:     r.cfg.RetryBackoff,
		logger:      log,
	}

	rows, err := r.loadRows(runCtx, policy, job)
	if err != nil {
		return r.fail(persist, log, job, merge.Template{}, r.cause(runCtx, err))
	}
	job, err = r.store.Update(persist, jobID, func(j *jobs.Job) error {
		j.TotalRecords = len(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.reportProgress(job, progress, progressDataLoaded, 0, "")

	var tmpl merge.Template
	err = policy.do(runCtx, "fetch template", func(ctx context.Context) error {
		var ferr error
		tmpl, ferr = r.templates.FetchTemplate(ctx, job.TemplateID)
		return ferr
	})
	if err != nil {
		return r.fail(persist, log, job, merge.Template{}, r.cause(runCtx, err))
	}
	r.reportProgress(job, progress, progressTemplateLoaded, 0, "")

	log.Info("rows loaded", zap.Int("total_records", len(rows)), zap.String("template", tmpl.DisplayName))

	tasks := make([]rowTask, len(rows))
	for i, row := range rows {
		tasks[i] = rowTask{Sequence: i + 1, Row: row}
	}

	var (
		aggMu     sync.Mutex
		processed int
	)
	fan := &rowFanOut{
		workers: r.cfg.Workers,
		work: func(ctx context.Context, task rowTask) rowResult {
			res := r.produceRow(ctx, policy, tmpl, task)
			// Expired credentials fail every later row as well, so the
			// job stops instead of recording them one by one.
			var ae *merge.AuthExpiredError
			if res.Err != nil && errors.As(res.Err, &ae) {
				abort(ae)
				return rowResult{Abandoned: true}
			}
			return res
		},
		collect: func(res rowResult) error {
			aggMu.Lock()
			defer aggMu.Unlock()

			processed++
			n := processed
			pct := rowPercent(n, len(rows))
			updated, uerr := r.store.Update(persist, jobID, func(j *jobs.Job) error {
				j.ProcessedRecords = n
				if res.Err != nil {
					j.FailedRecords++
					j.RowErrors = append(j.RowErrors, jobs.RowError{Sequence: res.Sequence, Message: res.Err.Error()})
				} else {
					j.Artifacts = append(j.Artifacts, jobs.Artifact{Sequence: res.Sequence, Name: res.Ref.Name, URL: res.Ref.URL})
				}
				if pct > j.Progress {
					j.Progress = pct
				}
				return nil
			})
			if uerr != nil {
				return fmt.Errorf("record row %d: %w", res.Sequence, uerr)
			}

			msg := ""
			if res.Err != nil {
				msg = res.Err.Error()
				log.Warn("row failed", zap.Int("sequence", res.Sequence), zap.Error(res.Err))
			}
			r.reportProgress(updated, progress, pct, res.Sequence, msg)
			return nil
		},
	}

	_, err = fan.Run(runCtx, tasks)
	if err != nil {
		return r.fail(persist, log, job, tmpl, err)
	}
	if runCtx.Err() != nil {
		return r.fail(persist, log, job, tmpl, r.cause(runCtx, runCtx.Err()))
	}

	done := time.Now().UTC()
	job, err = r.store.Update(persist, jobID, func(j *jobs.Job) error {
		if !j.Status.CanTransition(jobs.StatusCompleted) {
			return fmt.Errorf("job %q is %s: %w", jobID, j.Status, ErrJobNotPending)
		}
		sort.SliceStable(j.Artifacts, func(a, b int) bool {
			return j.Artifacts[a].Sequence < j.Artifacts[b].Sequence
		})
		sort.SliceStable(j.RowErrors, func(a, b int) bool {
			return j.RowErrors[a].Sequence < j.RowErrors[b].Sequence
		})
		j.Status = jobs.StatusCompleted
		j.Progress = progressDone
		j.CompletedAt = &done
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("job completed",
		zap.Int("processed_records", job.ProcessedRecords),
		zap.Int("artifacts", len(job.Artifacts)),
		zap.Int("failed_records", job.FailedRecords),
	)
	// Lineage is recorded before the terminal event is published.
	r.record(persist, log, tmpl, job)
	progress.complete()
	r.emitStatus(job)
	return job, nil
}

// loadRows fetches the grid for the job's range and converts it to rows.
func (r *Runner) loadRows(ctx context.Context, policy retryPolicy, job *jobs.Job) ([]merge.DataRow, error) {
	rng, err := tabular.ParseRange(job.Range)
	if err != nil {
		return nil, err
	}
	var grid tabular.Grid
	err = policy.do(ctx, "fetch grid", func(ctx context.Context) error {
		var ferr error
		grid, ferr = r.grids.FetchGrid(ctx, job.DataSourceID, rng)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("load data source %q: %w", job.DataSourceID, err)
	}
	_, rows, err := tabular.LoadRows(grid)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// produceRow renders and produces one row. Panics and errors stay inside
// the row.
func (r *Runner) produceRow(ctx context.Context, policy retryPolicy, tmpl merge.Template, task rowTask) (res rowResult) {
	defer func() {
		if p := recover(); p != nil {
			res = rowResult{Err: &merge.ArtifactProductionError{Sequence: task.Sequence, Err: fmt.Errorf("panic: %v", p)}}
		}
	}()

	rendered := merge.Substitute(tmpl.RawContent, task.Row)

	var ref merge.ArtifactRef
	err := policy.do(ctx, "produce artifact", func(ctx context.Context) error {
		var perr error
		ref, perr = r.producer.Produce(ctx, tmpl, rendered, task.Sequence, task.Row)
		if perr != nil {
			return perr
		}
		return ref.Validate()
	})
	if err != nil {
		if ctx.Err() != nil {
			return rowResult{Abandoned: true}
		}
		return rowResult{Err: &merge.ArtifactProductionError{Sequence: task.Sequence, Err: err}}
	}
	return rowResult{Ref: ref}
}

// cause prefers the cancellation or auth-expiry cause over the error it
// produced.
func (r *Runner) cause(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	if c := context.Cause(ctx); c != nil && (errors.Is(c, merge.ErrCanceled) || merge.IsAuthExpired(c)) {
		return c
	}
	return fmt.Errorf("%w: %w", merge.ErrCanceled, ctx.Err())
}

// fail moves the job to failed with the error's kind.
func (r *Runner) fail(ctx context.Context, log *zap.Logger, job *jobs.Job, tmpl merge.Template, cause error) (*jobs.Job, error) {
	done := time.Now().UTC()
	kind := merge.Classify(cause)
	updated, err := r.store.Update(ctx, job.ID, func(j *jobs.Job) error {
		if !j.Status.CanTransition(jobs.StatusFailed) {
			return fmt.Errorf("job %q is %s: %w", j.ID, j.Status, ErrJobNotPending)
		}
		sort.SliceStable(j.Artifacts, func(a, b int) bool {
			return j.Artifacts[a].Sequence < j.Artifacts[b].Sequence
		})
		j.Status = jobs.StatusFailed
		j.ErrorMessage = cause.Error()
		j.ErrorKind = kind
		j.CompletedAt = &done
		return nil
	})
	if err != nil {
		return nil, errors.Join(cause, err)
	}

	if kind == merge.KindCanceled {
		log.Info("job canceled", zap.Int("processed_records", updated.ProcessedRecords))
	} else {
		log.Error("job failed", zap.String("error_kind", string(kind)), zap.Error(cause))
	}
	if tmpl.ID == "" {
		tmpl = merge.Template{ID: updated.TemplateID, DisplayName: updated.TemplateID}
	}
	r.record(ctx, log, tmpl, updated)
	r.emitStatus(updated)
	return updated, cause
}

func (r *Runner) record(ctx context.Context, log *zap.Logger, tmpl merge.Template, job *jobs.Job) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordJob(ctx, tmpl, *job); err != nil {
		log.Warn("lineage record failed", zap.Error(err))
	}
}

// reportProgress advances the tracker and publishes the value.
func (r *Runner) reportProgress(job *jobs.Job, t *progressTracker, pct, seq int, msg string) {
	delivered := t.report(pct)
	r.emit(ProgressEvent{
		JobID:     job.ID,
		Kind:      EventProgress,
		Status:    job.Status,
		Percent:   delivered,
		Processed: job.ProcessedRecords,
		Total:     job.TotalRecords,
		Sequence:  seq,
		Message:   msg,
	})
}

func (r *Runner) emitStatus(job *jobs.Job) {
	r.emit(ProgressEvent{
		JobID:     job.ID,
		Kind:      EventStatus,
		Status:    job.Status,
		Percent:   job.Progress,
		Processed: job.ProcessedRecords,
		Total:     job.TotalRecords,
		Message:   job.ErrorMessage,
	})
}

func (r *Runner) emit(ev ProgressEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	for _, o := range r.observers {
		o.Emit(ev)
	}
}

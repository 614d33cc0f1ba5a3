// Package scheduler runs the worker's job loop: one job per enabled
// machine, polling or subscribing to its telemetry source, pushing
// every sample through the engine and persisting the outcome.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/bus"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/config"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/engine"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/ingest"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/metrics"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/monitor"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/storage"
)

// Store is the slice of the repository the registry needs.
type Store interface {
	GetMachine(ctx context.Context, unitID string) (storage.MachineRecord, error)
	ListEnabledMachines(ctx context.Context) ([]storage.MachineRecord, error)
	SetMachineStatus(ctx context.Context, unitID, status string, reason []byte) error
	UpsertCurrentState(ctx context.Context, rec storage.StateRecord) error
	RecordStateChange(ctx context.Context, rec storage.StateRecord) error
	CreateAlert(ctx context.Context, alert storage.AlertRecord) error
	GetLastAlert(ctx context.Context, machineID string) (time.Time, error)
}

// Publisher is satisfied by bus.Publisher.
type Publisher interface {
	Publish(subject string, payload any) error
}

// StateCache is satisfied by cache.Cache.
type StateCache interface {
	SetCurrentState(ctx context.Context, rec storage.StateRecord) error
	Invalidate(ctx context.Context, machineID string) error
}

// SourceFactory is satisfied by ingest.Builder.
type SourceFactory interface {
	Build(ctx context.Context, machineID string, spec ingest.SourceSpec) (ingest.Source, error)
}

type Options struct {
	Store      Store
	Engine     *engine.Engine
	Sources    SourceFactory
	Publisher  Publisher
	Cache      StateCache
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Defaults   config.DefaultsConfig
	Allowlist  ingest.Allowlist
	Limits     ingest.Limits
	Workers    int
	JobTimeout time.Duration
	Cooldown   time.Duration
}

type Registry struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	queue chan JobRun

	store      Store
	engine     *engine.Engine
	sources    SourceFactory
	publisher  Publisher
	cache      StateCache
	metrics    *metrics.Metrics
	log        *slog.Logger
	defaults   config.DefaultsConfig
	allowlist  ingest.Allowlist
	limits     ingest.Limits
	suppressor *monitor.Suppressor
	jobTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

type Job struct {
	machineID string
	kind      string
	interval  time.Duration
	source    ingest.Source
	stop      chan struct{}

	// run guards the watermark and keeps a slow poll from overlapping
	// with the next tick of the same machine.
	run   sync.Mutex
	since time.Time
}

type JobInfo struct {
	MachineID           string `json:"machineId"`
	Kind                string `json:"kind"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
}

type JobRun struct {
	job *Job
}

func NewRegistry(opts Options) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := &Registry{
		jobs:       map[string]*Job{},
		queue:      make(chan JobRun, 128),
		store:      opts.Store,
		engine:     opts.Engine,
		sources:    opts.Sources,
		publisher:  opts.Publisher,
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		log:        log,
		defaults:   opts.Defaults,
		allowlist:  opts.Allowlist,
		limits:     opts.Limits,
		suppressor: monitor.NewSuppressor(opts.Cooldown),
		jobTimeout: jobTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := 0; i < workers; i++ {
		go reg.worker()
	}
	return reg
}

func (r *Registry) Stop() {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		close(job.stop)
		_ = job.source.Close()
	}
	r.jobs = map[string]*Job{}
	r.metrics.ActiveJobs.Set(0)
}

// ScheduleMachine resolves a machine record into a running job. SQL
// sources are validated against the live telemetry database first; a
// machine that fails validation is marked INVALID and not scheduled.
func (r *Registry) ScheduleMachine(ctx context.Context, rec storage.MachineRecord) error {
	spec, err := ingest.ParseSourceSpec(rec.SourceJSON)
	if err != nil {
		r.markInvalid(ctx, rec.UnitID, err)
		return err
	}

	pollSeconds := rec.PollIntervalSeconds
	if pollSeconds <= 0 {
		pollSeconds = r.defaults.PollIntervalSeconds
	}
	if err := r.limits.ValidatePollSeconds(pollSeconds); err != nil {
		r.markInvalid(ctx, rec.UnitID, err)
		return err
	}

	thresholds, err := r.resolveThresholds(rec)
	if err != nil {
		r.markInvalid(ctx, rec.UnitID, err)
		return err
	}

	zones := rec.ZoneCount
	if zones <= 0 {
		zones = r.defaults.ZoneCount
	}

	source, err := r.sources.Build(ctx, rec.UnitID, spec)
	if err != nil {
		r.markInvalid(ctx, rec.UnitID, err)
		return err
	}
	if sqlSrc, ok := source.(*ingest.SQLSource); ok {
		if err := ingest.RuntimeValidateSQL(ctx, sqlSrc.Client(), spec, r.allowlist, r.limits); err != nil {
			_ = source.Close()
			r.markInvalid(ctx, rec.UnitID, err)
			return err
		}
	}

	if err := r.engine.Register(rec.UnitID, thresholds, zones); err != nil {
		_ = source.Close()
		r.markInvalid(ctx, rec.UnitID, err)
		return err
	}

	if last, err := r.store.GetLastAlert(ctx, rec.UnitID); err == nil {
		r.suppressor.Seed(rec.UnitID, last)
	}

	job := &Job{
		machineID: rec.UnitID,
		kind:      source.Kind(),
		interval:  time.Duration(pollSeconds) * time.Second,
		source:    source,
		stop:      make(chan struct{}),
		since:     time.Now().UTC().Add(-thresholds.Lookback()),
	}

	r.mu.Lock()
	if existing, ok := r.jobs[rec.UnitID]; ok {
		close(existing.stop)
		_ = existing.source.Close()
	}
	r.jobs[rec.UnitID] = job
	r.metrics.ActiveJobs.Set(float64(len(r.jobs)))
	r.mu.Unlock()

	switch src := source.(type) {
	case ingest.Streamer:
		if err := src.Start(func(sample classify.Sample) {
			r.process(job.machineID, sample)
		}, func(err error) {
			r.metrics.PollErrors.WithLabelValues(job.machineID).Inc()
			r.log.Warn("stream payload rejected", "machineId", job.machineID, "error", err)
		}); err != nil {
			r.Unschedule(job.machineID)
			r.markInvalid(ctx, rec.UnitID, err)
			return err
		}
	case ingest.Fetcher:
		go r.runTicker(job)
	default:
		r.Unschedule(job.machineID)
		err := fmt.Errorf("source kind %s is neither polled nor streamed", source.Kind())
		r.markInvalid(ctx, rec.UnitID, err)
		return err
	}

	if rec.Status != storage.MachineStatusActive {
		if err := r.store.SetMachineStatus(ctx, rec.UnitID, storage.MachineStatusActive, nil); err != nil {
			r.log.Warn("status update failed", "machineId", rec.UnitID, "error", err)
		}
	}
	r.log.Info("machine scheduled", "machineId", rec.UnitID, "kind", job.kind, "pollIntervalSeconds", pollSeconds)
	return nil
}

func (r *Registry) resolveThresholds(rec storage.MachineRecord) (classify.Thresholds, error) {
	var override *classify.Thresholds
	if len(rec.ThresholdsJSON) > 0 {
		var t classify.Thresholds
		if err := json.Unmarshal(rec.ThresholdsJSON, &t); err != nil {
			return classify.Thresholds{}, fmt.Errorf("decode thresholds: %w", err)
		}
		override = &t
	}
	merged := config.MergeThresholds(r.defaults.Thresholds, override)
	if err := merged.Validate(); err != nil {
		return classify.Thresholds{}, err
	}
	return merged, nil
}

func (r *Registry) markInvalid(ctx context.Context, unitID string, cause error) {
	reason, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := r.store.SetMachineStatus(ctx, unitID, storage.MachineStatusInvalid, reason); err != nil {
		r.log.Error("status update failed", "machineId", unitID, "error", err)
	}
	r.log.Warn("machine not schedulable", "machineId", unitID, "error", cause)
}

func (r *Registry) Unschedule(machineID string) {
	r.mu.Lock()
	job, ok := r.jobs[machineID]
	if ok {
		close(job.stop)
		delete(r.jobs, machineID)
	}
	r.metrics.ActiveJobs.Set(float64(len(r.jobs)))
	r.mu.Unlock()
	if !ok {
		return
	}
	_ = job.source.Close()
	r.engine.Drop(machineID)
	r.suppressor.Reset(machineID)
	r.log.Info("machine unscheduled", "machineId", machineID)
}

// Reconcile brings one machine's job in line with its stored record.
// Called on machine.* events and from the reload endpoint.
func (r *Registry) Reconcile(ctx context.Context, machineID string) error {
	rec, err := r.store.GetMachine(ctx, machineID)
	if errors.Is(err, storage.ErrNotFound) {
		r.Unschedule(machineID)
		if r.cache != nil {
			_ = r.cache.Invalidate(ctx, machineID)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load machine %s: %w", machineID, err)
	}
	if !rec.Enabled {
		r.Unschedule(machineID)
		return nil
	}
	return r.ScheduleMachine(ctx, rec)
}

// ReloadAll replaces the job set with the currently enabled machines.
func (r *Registry) ReloadAll(ctx context.Context) (int, error) {
	machines, err := r.store.ListEnabledMachines(ctx)
	if err != nil {
		return 0, fmt.Errorf("list enabled machines: %w", err)
	}
	desired := make(map[string]bool, len(machines))
	scheduled := 0
	for _, rec := range machines {
		desired[rec.UnitID] = true
		if err := r.ScheduleMachine(ctx, rec); err != nil {
			continue
		}
		scheduled++
	}
	r.mu.Lock()
	var stale []string
	for id := range r.jobs {
		if !desired[id] {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()
	for _, id := range stale {
		r.Unschedule(id)
	}
	return scheduled, nil
}

func (r *Registry) ListJobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]JobInfo, 0, len(r.jobs))
	for id, job := range r.jobs {
		jobs = append(jobs, JobInfo{
			MachineID:           id,
			Kind:                job.kind,
			PollIntervalSeconds: int(job.interval / time.Second),
		})
	}
	return jobs
}

func (r *Registry) runTicker(job *Job) {
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()
	// first poll without waiting a full interval
	select {
	case r.queue <- JobRun{job: job}:
	case <-job.stop:
		return
	case <-r.ctx.Done():
		return
	}
	for {
		select {
		case <-ticker.C:
			select {
			case r.queue <- JobRun{job: job}:
			default:
				r.log.Warn("job queue full, tick dropped", "machineId", job.machineID)
			}
		case <-job.stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) worker() {
	for {
		select {
		case run := <-r.queue:
			r.execute(run)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) execute(run JobRun) {
	job := run.job
	if !job.run.TryLock() {
		return
	}
	defer job.run.Unlock()

	fetcher, ok := job.source.(ingest.Fetcher)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.jobTimeout)
	defer cancel()

	samples, err := fetcher.Fetch(ctx, job.since, r.limits.MaxFetchRows)
	if err != nil {
		r.metrics.PollErrors.WithLabelValues(job.machineID).Inc()
		r.log.Error("poll failed", "machineId", job.machineID, "error", err)
		return
	}
	for _, sample := range samples {
		if sample.Timestamp.After(job.since) {
			job.since = sample.Timestamp
		}
		r.process(job.machineID, sample)
	}
}

// process pushes one sample through the engine and fans the outcome
// out to storage, cache, bus and metrics. Invalid samples are counted
// and logged; they never become states.
func (r *Registry) process(machineID string, sample classify.Sample) {
	ctx, cancel := context.WithTimeout(r.ctx, r.jobTimeout)
	defer cancel()

	start := time.Now()
	eval, err := r.engine.Evaluate(sample)
	r.metrics.EvaluateSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.InvalidSamples.WithLabelValues(machineID).Inc()
		r.log.Warn("sample rejected", "machineId", machineID, "ts", sample.Timestamp, "error", err)
		return
	}
	r.metrics.Samples.WithLabelValues(machineID).Inc()
	r.metrics.Classifications.WithLabelValues(string(eval.Result.State)).Inc()

	explanation, err := json.Marshal(eval.Result.Explanation)
	if err != nil {
		r.log.Error("explanation encode failed", "machineId", machineID, "error", err)
	}
	rec := storage.StateRecord{
		MachineID:     machineID,
		TSUTC:         sample.Timestamp,
		State:         string(eval.Result.State),
		PreviousState: string(eval.Previous),
		MeanTemp:      eval.Result.Explanation.MeanTemp,
		Trend:         eval.Result.Explanation.Trend,
		Explanation:   explanation,
	}
	if err := r.store.UpsertCurrentState(ctx, rec); err != nil {
		r.log.Error("current state write failed", "machineId", machineID, "error", err)
	}
	if r.cache != nil {
		if err := r.cache.SetCurrentState(ctx, rec); err != nil {
			r.log.Warn("cache update failed", "machineId", machineID, "error", err)
		}
	}

	if !eval.Changed {
		return
	}
	r.metrics.StateChanges.WithLabelValues(machineID).Inc()
	if err := r.store.RecordStateChange(ctx, rec); err != nil {
		r.log.Error("state change write failed", "machineId", machineID, "error", err)
	}
	if r.publisher != nil {
		event := bus.StateChangeEvent{
			UnitID:   machineID,
			From:     string(eval.Previous),
			To:       string(eval.Result.State),
			TS:       sample.Timestamp,
			MeanTemp: eval.Result.Explanation.MeanTemp,
			Trend:    eval.Result.Explanation.Trend,
		}
		if err := r.publisher.Publish(bus.SubjectStateChanged, event); err != nil {
			r.log.Error("state change publish failed", "machineId", machineID, "error", err)
		}
	}
	r.log.Info("state changed", "machineId", machineID, "from", string(eval.Previous), "to", string(eval.Result.State), "ts", sample.Timestamp)

	if eval.Result.State == classify.StateUnknown {
		r.alertUnknown(ctx, machineID, sample, eval)
	}
}

func (r *Registry) alertUnknown(ctx context.Context, machineID string, sample classify.Sample, eval engine.Evaluation) {
	now := time.Now().UTC()
	if !r.suppressor.Allow(machineID, now) {
		return
	}
	message := fmt.Sprintf("machine entered UNKNOWN from %s: %s", orNone(string(eval.Previous)), eval.Result.Explanation.Summary())
	explanation, _ := json.Marshal(eval.Result.Explanation)
	if err := r.store.CreateAlert(ctx, storage.AlertRecord{
		MachineID:   machineID,
		TSUTC:       now,
		State:       string(eval.Result.State),
		Message:     message,
		Explanation: explanation,
	}); err != nil {
		r.log.Error("alert write failed", "machineId", machineID, "error", err)
	}
	if r.publisher != nil {
		event := bus.AlertEvent{
			UnitID:  machineID,
			State:   string(eval.Result.State),
			Message: message,
			TS:      now,
		}
		if err := r.publisher.Publish(bus.SubjectAlert, event); err != nil {
			r.log.Error("alert publish failed", "machineId", machineID, "error", err)
		}
	}
	r.log.Warn("alert raised", "machineId", machineID, "message", message)
}

func orNone(state string) string {
	if state == "" {
		return "(none)"
	}
	return state
}

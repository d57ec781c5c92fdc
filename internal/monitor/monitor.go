package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/ElasticProvisioner/attribution/internal/slurm"
	"github.com/ElasticProvisioner/attribution/internal/store/model"
	"github.com/ElasticProvisioner/attribution/pkg/metrics"
)

// Monitor polls the scheduler and walks finished jobs through the
// tracker to submission.
type Monitor struct {
	cfg       *Config
	client    slurm.Client
	tracker   *Tracker
	submitter Submitter
}

func New(cfg *Config, client slurm.Client, tracker *Tracker, submitter Submitter) *Monitor {
	return &Monitor{
		cfg:       cfg,
		client:    client,
		tracker:   tracker,
		submitter: submitter,
	}
}

// Run polls until the context is cancelled. A failed cycle is logged and
// the next tick tries again; the monitor never dies on scheduler hiccups.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.tracker.Restore(ctx); err != nil {
		return err
	}

	pollTicker := jitterbug.New(m.cfg.PollInterval.Duration, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer pollTicker.Stop()

	zap.S().Named("monitor").Infof("polling scheduler every %s", m.cfg.PollInterval.Duration)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
		}
		m.runCycle(ctx)
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	rows, err := m.client.Queue(ctx)
	if err != nil {
		metrics.IncreaseSchedulerCallMetric("squeue", "error")
		zap.S().Named("monitor").Warnf("queue poll failed, skipping cycle: %s", err)
		return
	}
	metrics.IncreaseSchedulerCallMetric("squeue", "ok")

	seen := m.tracker.Observe(ctx, rows)
	m.resolveDeparted(ctx, seen)
	m.submitTerminal(ctx)

	if deleted, err := m.tracker.Prune(ctx, m.cfg.Retention.Duration); err != nil {
		zap.S().Named("monitor").Warnf("pruning failed: %s", err)
	} else if deleted > 0 {
		zap.S().Named("monitor").Infof("pruned %d finished jobs", deleted)
	}

	for state, count := range m.tracker.Counts() {
		metrics.UpdateJobStateCountMetric(state, count)
	}
}

// resolveDeparted asks accounting about pending jobs that vanished from
// the queue between two polls.
func (m *Monitor) resolveDeparted(ctx context.Context, seen map[string]bool) {
	departed := m.tracker.Departed(seen)
	if len(departed) == 0 {
		return
	}

	states, err := m.client.States(ctx, departed)
	if err != nil {
		metrics.IncreaseSchedulerCallMetric("sacct", "error")
		zap.S().Named("monitor").Warnf("accounting lookup failed: %s", err)
		return
	}
	metrics.IncreaseSchedulerCallMetric("sacct", "ok")
	m.tracker.ResolveDeparted(ctx, departed, states)
}

// submitTerminal resolves output paths for finished jobs and submits
// their logs. A job becomes submitted only once delivery is acknowledged
// or permanently rejected; transient failures leave it terminal for the
// next cycle. The submitted record is durable, so a restarted monitor
// never re-submits an acknowledged job.
func (m *Monitor) submitTerminal(ctx context.Context) {
	for _, job := range m.tracker.TerminalJobs() {
		if job.OutputPath == "" {
			path, ok := m.resolveOutputPath(ctx, job)
			if !ok {
				continue
			}
			job.OutputPath = path
		}

		err := m.submitter.Submit(ctx, job.OutputPath, job.User, job.ID)
		switch {
		case err == nil:
			metrics.IncreaseSubmissionsMetric("delivered")
			zap.S().Named("monitor").Infof("submitted log of job %s (%s)", job.ID, job.OutputPath)
		case errors.As(err, new(*ErrSubmissionRejected)):
			// a rejected request will never succeed; record it as done
			metrics.IncreaseSubmissionsMetric("rejected")
			zap.S().Named("monitor").Warnf("service rejected log of job %s: %s", job.ID, err)
		default:
			metrics.IncreaseSubmissionsMetric("failed")
			zap.S().Named("monitor").Errorf("failed to deliver log of job %s, will retry: %s", job.ID, err)
			continue
		}

		if err := m.tracker.MarkSubmitted(ctx, job.ID); err != nil {
			zap.S().Named("monitor").Errorf("failed to record submission of job %s: %s", job.ID, err)
		}
	}
}

// resolveOutputPath asks scontrol for the job's stdout path. Het
// components carry their output metadata on the base job.
func (m *Monitor) resolveOutputPath(ctx context.Context, job model.Job) (string, bool) {
	queryID := job.ID
	if job.Kind == string(slurm.JobIDHetComponent) && job.BaseID != "" {
		queryID = job.BaseID
	}

	path, err := m.client.OutputPath(ctx, queryID)
	if err != nil {
		metrics.IncreaseSchedulerCallMetric("scontrol", "error")
		m.tracker.BumpResolveAttempts(ctx, job.ID, err.Error())
		return "", false
	}
	metrics.IncreaseSchedulerCallMetric("scontrol", "ok")
	m.tracker.SetOutputPath(ctx, job.ID, path)
	return path, true
}

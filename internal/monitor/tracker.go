package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ElasticProvisioner/attribution/internal/slurm"
	"github.com/ElasticProvisioner/attribution/internal/store"
	"github.com/ElasticProvisioner/attribution/internal/store/model"
)

// Tracker holds the monitor's view of the scheduler's jobs. Every state
// transition is written to the store before it is visible in memory, so
// a restarted monitor picks up exactly where it stopped and a job whose
// submission was recorded is never submitted again.
type Tracker struct {
	mu                 sync.Mutex
	jobs               map[string]*model.Job
	store              store.Store
	maxResolveAttempts int
}

func NewTracker(s store.Store, maxResolveAttempts int) *Tracker {
	return &Tracker{
		jobs:               make(map[string]*model.Job),
		store:              s,
		maxResolveAttempts: maxResolveAttempts,
	}
}

// Restore seeds the in-memory view from the store.
func (t *Tracker) Restore(ctx context.Context) error {
	jobs, err := t.store.Job().List(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range jobs {
		job := jobs[i]
		t.jobs[job.ID] = &job
	}
	zap.S().Named("tracker").Infof("restored %d tracked jobs", len(jobs))
	return nil
}

// Observe folds one squeue snapshot into the tracked set and returns the
// set of job IDs seen in it. Array summary rows are skipped; their tasks
// show up under their own IDs.
func (t *Tracker) Observe(ctx context.Context, rows []slurm.JobRow) map[string]bool {
	seen := make(map[string]bool, len(rows))

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, row := range rows {
		id, err := slurm.ParseJobID(row.ID)
		if err != nil {
			zap.S().Named("tracker").Warnf("skipping malformed job id %q", row.ID)
			continue
		}
		if !id.Actionable() {
			continue
		}
		seen[row.ID] = true

		job, known := t.jobs[row.ID]
		if !known {
			// a job pruned from memory may still have a durable record;
			// adopting it keeps a stale queue row from resurrecting a
			// submitted job as pending
			if stored, err := t.store.Job().Get(ctx, row.ID); err == nil {
				job = stored
			} else {
				job = &model.Job{
					ID:        row.ID,
					Kind:      string(id.Kind),
					BaseID:    id.Base,
					Name:      row.Name,
					User:      row.User,
					Partition: row.Partition,
					State:     model.JobStatePending,
				}
			}
			t.jobs[row.ID] = job
		}

		// Submitted and unresolved jobs are done; a stale squeue row
		// never moves them back.
		if job.State == model.JobStateSubmitted || job.State == model.JobStateUnresolved {
			continue
		}

		job.SlurmState = row.State
		if slurm.IsTerminalState(row.State) {
			job.State = model.JobStateTerminal
		}
		t.persist(ctx, job)
	}

	return seen
}

// Departed returns pending jobs absent from the last queue snapshot.
// Their final state has to come from accounting.
func (t *Tracker) Departed(seen map[string]bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	for id, job := range t.jobs {
		if job.State == model.JobStatePending && !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResolveDeparted applies accounting states to jobs that left the queue.
// A job accounting does not know yet burns one resolve attempt; when the
// attempts are exhausted the job is written off as unresolved.
func (t *Tracker) ResolveDeparted(ctx context.Context, queried []string, states map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range queried {
		job, ok := t.jobs[id]
		if !ok || job.State != model.JobStatePending {
			continue
		}

		state, found := states[id]
		if !found {
			t.bumpResolveAttemptsLocked(ctx, job, "accounting has no record")
			continue
		}

		job.SlurmState = state
		if slurm.IsTerminalState(state) {
			job.State = model.JobStateTerminal
			job.ResolveAttempts = 0
		}
		t.persist(ctx, job)
	}
}

// TerminalJobs returns copies of jobs awaiting submission.
func (t *Tracker) TerminalJobs() []model.Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	var jobs []model.Job
	for _, job := range t.jobs {
		if job.State == model.JobStateTerminal {
			jobs = append(jobs, *job)
		}
	}
	return jobs
}

// SetOutputPath records a job's resolved stdout path.
func (t *Tracker) SetOutputPath(ctx context.Context, id, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return
	}
	job.OutputPath = path
	job.ResolveAttempts = 0
	t.persist(ctx, job)
}

// BumpResolveAttempts burns one metadata-lookup attempt for a terminal
// job and reports whether the job was written off.
func (t *Tracker) BumpResolveAttempts(ctx context.Context, id, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return false
	}
	return t.bumpResolveAttemptsLocked(ctx, job, reason)
}

func (t *Tracker) bumpResolveAttemptsLocked(ctx context.Context, job *model.Job, reason string) bool {
	job.ResolveAttempts++
	if job.ResolveAttempts >= t.maxResolveAttempts {
		zap.S().Named("tracker").Warnf("giving up on job %s after %d attempts: %s",
			job.ID, job.ResolveAttempts, reason)
		job.State = model.JobStateUnresolved
	}
	t.persist(ctx, job)
	return job.State == model.JobStateUnresolved
}

// MarkSubmitted durably records that this job's log has been delivered.
// The store write happens before the in-memory transition, so a monitor
// restarted at any later point will not submit the job again.
func (t *Tracker) MarkSubmitted(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.State != model.JobStateTerminal {
		return nil
	}

	now := time.Now()
	updated := *job
	updated.State = model.JobStateSubmitted
	updated.SubmittedAt = &now
	stored, err := t.store.Job().Upsert(ctx, updated)
	if err != nil {
		return err
	}
	*job = *stored
	return nil
}

// Prune drops submitted and unresolved jobs older than the retention
// window, from the store and the in-memory view.
func (t *Tracker) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	states := []string{model.JobStateSubmitted, model.JobStateUnresolved}

	deleted, err := t.store.Job().DeleteBefore(ctx, states, cutoff)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, job := range t.jobs {
		if (job.State == model.JobStateSubmitted || job.State == model.JobStateUnresolved) &&
			job.UpdatedAt.Before(cutoff) {
			delete(t.jobs, id)
		}
	}
	return deleted, nil
}

// Counts returns the number of tracked jobs per state.
func (t *Tracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[string]int)
	for _, job := range t.jobs {
		counts[job.State]++
	}
	return counts
}

// Jobs returns a copy of every tracked job.
func (t *Tracker) Jobs() model.JobList {
	t.mu.Lock()
	defer t.mu.Unlock()

	jobs := make(model.JobList, 0, len(t.jobs))
	for _, job := range t.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// persist writes the job through to the store and adopts the stored
// row's update time, so in-memory retention sees the same clock the
// durable rows do. A failed write is logged and retried implicitly on
// the next transition; only the submitted transition requires the write
// to succeed first.
func (t *Tracker) persist(ctx context.Context, job *model.Job) {
	stored, err := t.store.Job().Upsert(ctx, *job)
	if err != nil {
		zap.S().Named("tracker").Errorf("failed to persist job %s: %s", job.ID, err)
		return
	}
	job.UpdatedAt = stored.UpdatedAt
}

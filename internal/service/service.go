// Package service implements the attribution service proper: submission
// tracking, splitlog resolution, path safety and the read-only
// introspection snapshots. The coalescing and caching discipline lives in
// internal/cache; this layer decides what to ask the cache for.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ElasticProvisioner/attribution/internal/analyzer"
	"github.com/ElasticProvisioner/attribution/internal/cache"
	"github.com/ElasticProvisioner/attribution/internal/events"
	"go.uber.org/zap"
)

// JobMode distinguishes plain single-file jobs from splitlog jobs, whose
// Slurm output references a directory of per-cycle log files.
type JobMode string

const (
	JobModeSingle   JobMode = "single"
	JobModeSplitlog JobMode = "splitlog"
)

// TrackedJob is one submitted log the service knows about.
type TrackedJob struct {
	LogPath     string    `json:"log_path"`
	User        string    `json:"user"`
	JobID       string    `json:"job_id,omitempty"`
	Mode        JobMode   `json:"mode"`
	LogsDir     string    `json:"logs_dir,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type SubmitResult struct {
	Mode    JobMode `json:"mode"`
	LogPath string  `json:"log_path"`
	LogsDir string  `json:"logs_dir,omitempty"`
}

type AnalysisResult struct {
	Mode    JobMode          `json:"mode"`
	LogFile string           `json:"log_file"`
	Result  *analyzer.Result `json:"result"`
}

type Stats struct {
	Cache       cache.Stats `json:"cache"`
	TrackedJobs int         `json:"tracked_jobs"`
}

type AttributionService struct {
	cache    *cache.Cache
	producer *events.EventProducer // nil disables result export
	root     string

	mu   sync.Mutex
	jobs map[string]*TrackedJob // keyed by submitted log path
}

// NewAttributionService resolves the allowed root once at construction; a
// missing root is an unrecoverable configuration error.
func NewAttributionService(allowedRoot string, c *cache.Cache, producer *events.EventProducer) (*AttributionService, error) {
	abs, err := filepath.Abs(allowedRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed root %q: %w", allowedRoot, err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("allowed root %q not accessible: %w", allowedRoot, err)
	}

	return &AttributionService{
		cache:    c,
		producer: producer,
		root:     root,
		jobs:     make(map[string]*TrackedJob),
	}, nil
}

// SubmitLog registers a log file for analysis. When a job ID is supplied
// and the Slurm output references a logs directory, the job is tracked in
// splitlog mode; per-cycle files under that directory are then analyzed
// individually via AnalyzeLog. Submission is idempotent per log path.
func (s *AttributionService) SubmitLog(ctx context.Context, logPath, user, jobID string) (*SubmitResult, error) {
	resolved, err := s.resolveLogFile(logPath)
	if err != nil {
		return nil, err
	}

	mode := JobModeSingle
	logsDir := ""
	if jobID != "" {
		if dir, ok := s.detectLogsDir(resolved); ok {
			mode = JobModeSplitlog
			logsDir = dir
		}
	}

	s.mu.Lock()
	s.jobs[resolved] = &TrackedJob{
		LogPath:     resolved,
		User:        user,
		JobID:       jobID,
		Mode:        mode,
		LogsDir:     logsDir,
		SubmittedAt: time.Now(),
	}
	s.mu.Unlock()

	zap.S().Named("service").Infow("log submitted",
		"log_path", resolved, "user", user, "job_id", jobID, "mode", mode)

	if mode == JobModeSingle {
		// warm the cache so the first GET is usually a hit
		go func() {
			if _, err := s.cache.Request(context.Background(), resolved, resolved); err != nil {
				zap.S().Named("service").Warnf("warm-up analysis of %s failed: %s", resolved, err)
			}
		}()
	}

	return &SubmitResult{Mode: mode, LogPath: resolved, LogsDir: logsDir}, nil
}

// AnalyzeLog returns the attribution result for a log, computing it on a
// cache miss. In splitlog mode, file selects a per-cycle log under the
// job's logs directory (latest by mtime when empty) and restart selects a
// workload restart section; each combination is an independent cache key.
// For single-file jobs the file and restart parameters are ignored, so a
// request with them hits the same cached result as one without.
func (s *AttributionService) AnalyzeLog(ctx context.Context, logPath, file string, restart *int) (*AnalysisResult, error) {
	resolved, err := s.resolveLogFile(logPath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	job := s.jobs[resolved]
	s.mu.Unlock()

	target := resolved
	mode := JobModeSingle
	key := resolved
	if job != nil && job.Mode == JobModeSplitlog {
		mode = JobModeSplitlog
		target, err = s.resolveSplitlogFile(job, file)
		if err != nil {
			return nil, err
		}
		key = cacheKey(target, restart)
	}

	result, err := s.cache.Request(ctx, key, target)
	if err != nil {
		return nil, err
	}

	s.exportResult(job, resolved, result)

	return &AnalysisResult{Mode: mode, LogFile: target, Result: result}, nil
}

// cacheKey composes the cache key from the analyzed file and the optional
// restart index. Different restarts of the same file never coalesce.
func cacheKey(path string, restart *int) string {
	if restart == nil {
		return path
	}
	return fmt.Sprintf("%s#%d", path, *restart)
}

func (s *AttributionService) exportResult(job *TrackedJob, logPath string, result *analyzer.Result) {
	if s.producer == nil {
		return
	}

	ev := events.ResultEvent{
		LogPath:     logPath,
		ResultID:    result.ResultID,
		Module:      result.Module,
		State:       result.State,
		Attribution: result.Attribution,
	}
	if job != nil {
		ev.User = job.User
		ev.JobID = job.JobID
	}

	data, err := json.Marshal(ev)
	if err != nil {
		zap.S().Named("service").Warnf("failed to serialize result event: %s", err)
		return
	}
	if err := s.producer.Write(context.Background(), events.ResultMessageKind, bytes.NewReader(data)); err != nil {
		zap.S().Named("service").Warnf("failed to export result event: %s", err)
	}
}

// Jobs returns a snapshot of all tracked jobs.
func (s *AttributionService) Jobs() []TrackedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]TrackedJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	return jobs
}

func (s *AttributionService) Stats() Stats {
	s.mu.Lock()
	tracked := len(s.jobs)
	s.mu.Unlock()
	return Stats{
		Cache:       s.cache.Stats(),
		TrackedJobs: tracked,
	}
}

func (s *AttributionService) InFlight() []cache.InFlightInfo {
	return s.cache.InFlight()
}

// Package cache guarantees at-most-one concurrent analysis per log file
// and remembers results across requests and, through the ledger, across
// service restarts.
//
// All cache-state transitions happen under one mutex. Filesystem stats and
// the analyzer call itself run outside the lock, but a key is reserved in
// the in-flight table before any of them start, so concurrent callers for
// the same key always coalesce instead of racing. An in-flight entry is
// removed in the same critical section that publishes its cache entry;
// there is no window in which a request can observe neither.
package cache

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ElasticProvisioner/attribution/internal/analyzer"
	"github.com/ElasticProvisioner/attribution/internal/store"
	"github.com/ElasticProvisioner/attribution/internal/store/model"
	"github.com/ElasticProvisioner/attribution/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultGracePeriod is the window after first caching during which
	// results are served without re-statting the file. It absorbs trailing
	// writes at the tail of a log still being flushed.
	DefaultGracePeriod = 600 * time.Second
	// DefaultMaxFileAge bounds cache growth: entries whose file mtime is
	// older are never served, not even inside the grace window.
	DefaultMaxFileAge = 14 * 24 * time.Hour
)

// Fingerprint is the (mtime, size) pair used as a cheap proxy for file
// content identity. ModTime is unix nanoseconds so fingerprints compare
// with ==.
type Fingerprint struct {
	ModTime int64
	Size    int64
}

func statFile(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{ModTime: info.ModTime().UnixNano(), Size: info.Size()}, nil
}

// Entry is one cached analysis result.
type Entry struct {
	Key           string
	Path          string
	Fingerprint   Fingerprint
	Result        *analyzer.Result
	FirstCachedAt time.Time
}

type inFlight struct {
	key     string
	path    string
	started time.Time
	waiters int

	done   chan struct{}
	result *analyzer.Result
	err    error
}

// InFlightInfo is a read-only snapshot of one running computation.
type InFlightInfo struct {
	Key       string    `json:"key"`
	Path      string    `json:"path"`
	Waiters   int       `json:"waiters"`
	StartedAt time.Time `json:"started_at"`
}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Hits            uint64 `json:"cache_hits"`
	Misses          uint64 `json:"cache_misses"`
	Coalesced       uint64 `json:"coalesced_requests"`
	Computes        uint64 `json:"computes"`
	ComputeFailures uint64 `json:"compute_failures"`
	Size            int    `json:"cache_size"`
	InFlight        int    `json:"in_flight"`
}

type ErrFileUnreadable struct {
	error
}

func NewErrFileUnreadable(path string, err error) *ErrFileUnreadable {
	return &ErrFileUnreadable{fmt.Errorf("cannot stat %s: %w", path, err)}
}

type Option func(*Cache)

func WithGracePeriod(d time.Duration) Option {
	return func(c *Cache) {
		c.grace = d
	}
}

func WithMaxFileAge(d time.Duration) Option {
	return func(c *Cache) {
		c.maxFileAge = d
	}
}

// WithStore enables ledger persistence. Without it the cache is purely
// in-memory and empty after every restart.
func WithStore(s store.Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// WithClock and WithStatFunc are test seams.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithStatFunc(stat func(path string) (Fingerprint, error)) Option {
	return func(c *Cache) {
		c.stat = stat
	}
}

type Cache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	inflight map[string]*inFlight

	analyzer   analyzer.Analyzer
	store      store.Store
	grace      time.Duration
	maxFileAge time.Duration
	now        func() time.Time
	stat       func(path string) (Fingerprint, error)

	hits            uint64
	misses          uint64
	coalesced       uint64
	computes        uint64
	computeFailures uint64
}

func New(a analyzer.Analyzer, opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*Entry),
		inflight:   make(map[string]*inFlight),
		analyzer:   a,
		grace:      DefaultGracePeriod,
		maxFileAge: DefaultMaxFileAge,
		now:        time.Now,
		stat:       statFile,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request returns the analysis result for the file at path, cached under
// key. Concurrent requests for the same key share a single computation.
// A canceled caller context detaches that caller only; the computation
// finishes for the remaining waiters.
func (c *Cache) Request(ctx context.Context, key, path string) (*analyzer.Result, error) {
	c.mu.Lock()

	if fl, ok := c.inflight[key]; ok {
		fl.waiters++
		c.coalesced++
		metrics.IncreaseCoalesced()
		c.mu.Unlock()
		return await(ctx, fl)
	}

	now := c.now()
	if e, ok := c.entries[key]; ok {
		if c.agedOut(now, e.Fingerprint) {
			delete(c.entries, key)
			metrics.SetCacheSize(len(c.entries))
		} else if now.Sub(e.FirstCachedAt) < c.grace {
			// still in the grace window: serve without touching the filesystem
			c.hits++
			metrics.IncreaseCacheHits()
			c.mu.Unlock()
			return e.Result, nil
		}
	}

	// Reserve the key before any filesystem access so later arrivals
	// attach to this computation instead of racing the stat.
	fl := &inFlight{key: key, path: path, started: now, waiters: 1, done: make(chan struct{})}
	c.inflight[key] = fl
	metrics.SetInflightCount(len(c.inflight))
	c.mu.Unlock()

	go c.compute(fl)
	return await(ctx, fl)
}

func (c *Cache) compute(fl *inFlight) {
	fp, statErr := c.stat(fl.path)

	c.mu.Lock()
	if e, ok := c.entries[fl.key]; ok && statErr == nil {
		if e.Fingerprint == fp && !c.agedOut(c.now(), fp) {
			// grace elapsed but the file is unchanged: validated hit
			c.hits++
			metrics.IncreaseCacheHits()
			c.resolveLocked(fl, e.Result, nil)
			c.mu.Unlock()
			return
		}
		// changed underneath us: invalidate and recompute
		delete(c.entries, fl.key)
		metrics.SetCacheSize(len(c.entries))
	}
	c.misses++
	metrics.IncreaseCacheMisses()

	if statErr != nil {
		delete(c.entries, fl.key)
		metrics.SetCacheSize(len(c.entries))
		c.resolveLocked(fl, nil, NewErrFileUnreadable(fl.path, statErr))
		c.mu.Unlock()
		return
	}

	c.computes++
	metrics.IncreaseComputes()
	c.mu.Unlock()

	// The analyzer bounds its own runtime; a caller hanging up must not
	// cancel the computation for the remaining waiters.
	result, err := c.analyzer.Analyze(context.Background(), fl.path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// failures are never cached; the next request retries
		c.computeFailures++
		metrics.IncreaseComputeFailed()
		c.resolveLocked(fl, nil, err)
		return
	}

	c.entries[fl.key] = &Entry{
		Key:           fl.key,
		Path:          fl.path,
		Fingerprint:   fp,
		Result:        result,
		FirstCachedAt: c.now(),
	}
	metrics.SetCacheSize(len(c.entries))
	c.resolveLocked(fl, result, nil)
}

// resolveLocked publishes the outcome and removes the in-flight entry in
// the caller's critical section, together with any cache-entry write.
func (c *Cache) resolveLocked(fl *inFlight, result *analyzer.Result, err error) {
	fl.result = result
	fl.err = err
	delete(c.inflight, fl.key)
	metrics.SetInflightCount(len(c.inflight))
	close(fl.done)
}

func (c *Cache) agedOut(now time.Time, fp Fingerprint) bool {
	return now.Sub(time.Unix(0, fp.ModTime)) > c.maxFileAge
}

func await(ctx context.Context, fl *inFlight) (*analyzer.Result, error) {
	select {
	case <-fl.done:
		return fl.result, fl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:            c.hits,
		Misses:          c.misses,
		Coalesced:       c.coalesced,
		Computes:        c.computes,
		ComputeFailures: c.computeFailures,
		Size:            len(c.entries),
		InFlight:        len(c.inflight),
	}
}

// InFlight returns a snapshot of the currently running computations.
func (c *Cache) InFlight() []InFlightInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos := make([]InFlightInfo, 0, len(c.inflight))
	for _, fl := range c.inflight {
		infos = append(infos, InFlightInfo{
			Key:       fl.key,
			Path:      fl.path,
			Waiters:   fl.waiters,
			StartedAt: fl.started,
		})
	}
	return infos
}

// SaveLedger serializes the full entry set to the store. Called on
// graceful shutdown; a crash loses in-memory entries, which is the
// documented trade-off of file-backed-on-shutdown persistence.
func (c *Cache) SaveLedger(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	rows := make(model.CacheEntryList, 0, len(c.entries))
	for _, e := range c.entries {
		serialized, err := e.Result.Marshal()
		if err != nil {
			zap.S().Named("cache").Warnf("dropping unserializable entry %s: %s", e.Key, err)
			continue
		}
		rows = append(rows, model.CacheEntry{
			Key:           e.Key,
			Path:          e.Path,
			FileModTime:   e.Fingerprint.ModTime,
			FileSize:      e.Fingerprint.Size,
			Result:        serialized,
			FirstCachedAt: e.FirstCachedAt,
		})
	}
	c.mu.Unlock()

	// the delete-and-insert rewrite runs under one transaction so a
	// failed save keeps the previous ledger intact
	txCtx, err := c.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}
	if err := c.store.Ledger().Replace(txCtx, rows); err != nil {
		_, _ = store.Rollback(txCtx)
		return err
	}
	if _, err := store.Commit(txCtx); err != nil {
		return err
	}
	zap.S().Named("cache").Infof("saved %d cache entries to ledger", len(rows))
	return nil
}

// LoadLedger restores persisted entries, re-validating each against the
// file's current (mtime, size) and age. Stale or aged-out rows are dropped
// at load time rather than trusted. Returns the number of restored entries.
func (c *Cache) LoadLedger(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	rows, err := c.store.Ledger().List(ctx)
	if err != nil {
		return 0, err
	}

	now := c.now()
	restored := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		fp, err := c.stat(row.Path)
		if err != nil {
			zap.S().Named("cache").Debugf("dropping ledger entry %s: %s", row.Key, err)
			continue
		}
		if fp.ModTime != row.FileModTime || fp.Size != row.FileSize || c.agedOut(now, fp) {
			zap.S().Named("cache").Debugf("dropping stale ledger entry %s", row.Key)
			continue
		}
		result, err := analyzer.Unmarshal(row.Result)
		if err != nil {
			zap.S().Named("cache").Warnf("dropping corrupt ledger entry %s: %s", row.Key, err)
			continue
		}
		c.entries[row.Key] = &Entry{
			Key:           row.Key,
			Path:          row.Path,
			Fingerprint:   fp,
			Result:        result,
			FirstCachedAt: row.FirstCachedAt,
		}
		restored++
	}
	metrics.SetCacheSize(len(c.entries))
	metrics.SetLedgerRestored(restored)
	return restored, nil
}

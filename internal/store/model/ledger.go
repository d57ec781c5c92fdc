package model

import "time"

// CacheEntry is one persisted analysis-cache record. The key is the cache
// key (path, possibly composed with a splitlog segment and restart index);
// the fingerprint columns are the file's (mtime, size) captured when the
// result was computed. Rows are rewritten wholesale on graceful shutdown
// and re-validated against the filesystem on load.
type CacheEntry struct {
	Key           string `gorm:"primaryKey"`
	Path          string
	FileModTime   int64 // unix nanoseconds
	FileSize      int64
	Result        string // serialized analyzer result
	FirstCachedAt time.Time
}

type CacheEntryList []CacheEntry

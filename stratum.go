// Package stratum is an embedded, ordered key-value storage engine built
// on a log-structured merge tree: writes land in a write-ahead log and an
// in-memory MemTable, and are periodically flushed to immutable, sorted
// SSTable files that are merged in the background by size-tiered
// compaction.
//
// Example usage:
//
//	db, err := stratum.Open("/path/to/database", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Put([]byte("key"), []byte("value")); err != nil {
//		log.Printf("put failed: %v", err)
//	}
//
//	value, found, err := db.Get([]byte("key"))
//	if found {
//		fmt.Printf("value: %s\n", string(value))
//	}
package stratum

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lsmkit/stratum/internal/config"
	"github.com/lsmkit/stratum/internal/engine"
	"github.com/lsmkit/stratum/internal/errs"
	"github.com/lsmkit/stratum/internal/metrics"
)

// Config is an alias for config.Config, re-exported for caller convenience.
type Config = config.Config

// DefaultConfig returns a Config populated with default values. Re-exported
// for caller convenience.
var DefaultConfig = config.DefaultConfig

// Sentinel errors a caller can match with errors.Is against the Kind
// carried by *errs.Error. NotFound is intentionally not one of these:
// Get's (nil, false, nil) result already distinguishes "absent" from
// "failed" without forcing callers through errors.Is.
var (
	// ErrAlreadyOpen is returned by Open when dataDir is already held
	// open by another DB in this process or another process.
	ErrAlreadyOpen = errs.ErrAlreadyOpen
	// ErrInvalidArgument is returned for an empty key or an out-of-range
	// config value.
	ErrInvalidArgument = &errs.Error{Kind: errs.InvalidArgument, Msg: "invalid argument"}
)

// DB is a thread-safe handle onto a single open storage engine instance.
// Any number of DBs obtained via Clone may be used concurrently from
// separate goroutines: Get and Scan observe a consistent snapshot of the
// MemTable and installed SSTable set, and writes are serialized
// internally.
type DB struct {
	mu     sync.RWMutex
	engine *engine.Engine
}

// Open opens or creates a database at dataDir. A nil cfg uses
// DefaultConfig(). The directory is created if it doesn't exist; if it
// already holds a database, recovery replays the write-ahead log and
// reconciles the SSTable set against the manifest before Open returns.
//
// Open fails with ErrAlreadyOpen if dataDir is already held open.
func Open(dataDir string, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.DataDir = dataDir
	e, err := engine.Open(dataDir, *cfg, log.New(log.Writer(), "stratum: ", log.LstdFlags))
	if err != nil {
		return nil, err
	}
	return &DB{engine: e}, nil
}

// Put upserts key to value, replacing any prior value or tombstone. key
// must be non-empty; a nil value is stored as an empty value.
func (db *DB) Put(key, value []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Put(key, value, nil)
}

// PutWithTTL upserts key to value, to expire ttl from now. A non-positive
// ttl expires the entry immediately.
func (db *DB) PutWithTTL(key, value []byte, ttl time.Duration) error {
	expiry := time.Now().Add(ttl).Unix()
	return db.PutWithExpiry(key, value, expiry)
}

// PutWithExpiry upserts key to value, to expire at the given absolute
// unix-second instant.
func (db *DB) PutWithExpiry(key, value []byte, expiresAtUnixSec int64) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Put(key, value, &expiresAtUnixSec)
}

// Get returns the live value for key. found is false for a missing,
// deleted, or expired key; err is non-nil only on an underlying I/O or
// corruption failure, never for a negative lookup.
func (db *DB) Get(key []byte) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Get(key)
}

// Delete tombstones key. Deleting a missing key is not an error.
func (db *DB) Delete(key []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Delete(key)
}

// TTL returns the time remaining before key expires, and false if key
// does not exist, carries no expiry, or has already expired.
func (db *DB) TTL(key []byte) (time.Duration, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.TTL(key)
}

// Scan returns an Iterator over every live key in [start, end) in
// ascending order. A nil start or end is unbounded on that side.
func (db *DB) Scan(start, end []byte) (*engine.Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Scan(start, end)
}

// Flush forces the active MemTable to an SSTable immediately, rather than
// waiting for it to cross its configured byte threshold.
func (db *DB) Flush() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Flush()
}

// Compact runs size-tiered compaction to a fixed point, merging every
// tier that currently holds enough tables to qualify.
func (db *DB) Compact() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Compact()
}

// Metrics returns a point-in-time snapshot of the engine's operation
// counters, uptime, and derived ops-per-second rate.
func (db *DB) Metrics() metrics.Snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Metrics.Snapshot(time.Now())
}

// Collector returns a prometheus.Collector mirroring this database's
// metrics, so a host process that already runs a Prometheus registry can
// register it directly instead of polling Metrics().
func (db *DB) Collector() prometheus.Collector {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return metrics.NewCollector(db.engine.Metrics)
}

// Clone returns a new DB sharing this one's underlying engine. The clone
// is independently safe for concurrent use. Calling Close on any one of
// them closes the shared engine for all of them.
// This is O(1): no state is duplicated, only the engine pointer.
func (db *DB) Clone() *DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return &DB{engine: db.engine}
}

// Close stops background workers, flushes any live MemTable, syncs the
// data directory, and releases the exclusive open lock. After Close, db
// and any DB obtained from it via Clone must not be used again.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.engine.Close()
}

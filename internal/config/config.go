// Package config provides configuration structures and defaults for stratum.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	defaultMemtableFlushThresholdBytes  = 4 * 1024 * 1024
	defaultBloomFalsePositiveRate       = 0.01
	defaultBloomExpectedEntriesPerTable = 100_000
	defaultCompactionTierSizeRatio      = 4
	defaultCompactionFilesPerTier       = 4
	defaultSSTableIndexStride           = 16
)

// Config holds all tunable parameters for stratum's durability, memory, and
// compaction behavior. Field names mirror the options enumerated in the
// engine's external interface.
type Config struct {
	// DataDir is the directory backing the engine's WAL, SSTables, and
	// manifest.
	DataDir string `validate:"required"`

	// MemtableFlushThresholdBytes triggers a flush once the active MemTable's
	// byte size reaches this value.
	MemtableFlushThresholdBytes int `validate:"gte=4096"`

	// BloomFalsePositiveRate is the target false-positive rate for each
	// SSTable's Bloom filter.
	BloomFalsePositiveRate float64 `validate:"gt=0,lt=1"`

	// BloomExpectedEntriesPerSSTable sizes each Bloom filter's bit array.
	BloomExpectedEntriesPerSSTable int `validate:"gte=1"`

	// CompactionTierSizeRatio is the size multiplier between adjacent
	// size-tiered compaction tiers.
	CompactionTierSizeRatio int `validate:"gte=2"`

	// CompactionFilesPerTier is the number of SSTables a tier accumulates
	// before a compaction merges them into the next tier.
	CompactionFilesPerTier int `validate:"gte=2"`

	// SyncOnWrite fsyncs the WAL file after every append. Disabling this
	// trades durability for throughput.
	SyncOnWrite bool

	// SSTableIndexStride is the number of data entries between sparse index
	// entries.
	SSTableIndexStride int `validate:"gte=1"`

	// BackgroundCompaction runs flush and compaction on dedicated
	// goroutines rather than synchronously on the calling write path.
	BackgroundCompaction bool
}

// DefaultConfig returns a Config populated with default values. DataDir must
// still be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		MemtableFlushThresholdBytes:    defaultMemtableFlushThresholdBytes,
		BloomFalsePositiveRate:         defaultBloomFalsePositiveRate,
		BloomExpectedEntriesPerSSTable: defaultBloomExpectedEntriesPerTable,
		CompactionTierSizeRatio:        defaultCompactionTierSizeRatio,
		CompactionFilesPerTier:         defaultCompactionFilesPerTier,
		SyncOnWrite:                    true,
		SSTableIndexStride:             defaultSSTableIndexStride,
		BackgroundCompaction:           true,
	}
}

// FillDefaults sets any zero-value fields in c to their default values,
// leaving explicit zero-valued booleans (SyncOnWrite, BackgroundCompaction)
// untouched since false is a meaningful value for those.
func (c *Config) FillDefaults() {
	def := DefaultConfig()
	if c.MemtableFlushThresholdBytes == 0 {
		c.MemtableFlushThresholdBytes = def.MemtableFlushThresholdBytes
	}
	if c.BloomFalsePositiveRate == 0 {
		c.BloomFalsePositiveRate = def.BloomFalsePositiveRate
	}
	if c.BloomExpectedEntriesPerSSTable == 0 {
		c.BloomExpectedEntriesPerSSTable = def.BloomExpectedEntriesPerSSTable
	}
	if c.CompactionTierSizeRatio == 0 {
		c.CompactionTierSizeRatio = def.CompactionTierSizeRatio
	}
	if c.CompactionFilesPerTier == 0 {
		c.CompactionFilesPerTier = def.CompactionFilesPerTier
	}
	if c.SSTableIndexStride == 0 {
		c.SSTableIndexStride = def.SSTableIndexStride
	}
}

var validate = validator.New()

// Validate enforces the struct-tag bounds above, returning a descriptive
// error naming the offending field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

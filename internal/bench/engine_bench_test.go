package bench

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/lsmkit/stratum"
)

func writeCfg(dir string) *stratum.Config {
	cfg := stratum.DefaultConfig()
	cfg.DataDir = dir
	cfg.MemtableFlushThresholdBytes = 32 * 1024 * 1024
	cfg.CompactionFilesPerTier = 6
	cfg.SSTableIndexStride = 32
	return cfg
}

func readCfg(dir string) *stratum.Config {
	cfg := stratum.DefaultConfig()
	cfg.DataDir = dir
	cfg.MemtableFlushThresholdBytes = 64 * 1024 * 1024
	cfg.CompactionFilesPerTier = 4
	cfg.SSTableIndexStride = 64
	return cfg
}

func setupBenchDB(b *testing.B, cfg func(dir string) *stratum.Config) (*stratum.DB, func()) {
	tmpDir := filepath.Join(os.TempDir(), fmt.Sprintf("stratum_bench_%d", rand.Int63()))
	db, err := stratum.Open(tmpDir, cfg(tmpDir))
	if err != nil {
		b.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func generateKey(i int) []byte {
	return fmt.Appendf(nil, "key_%010d", i)
}

func generateValue(size int) []byte {
	value := make([]byte, size)
	for i := range value {
		value[i] = byte(rand.Intn(256))
	}
	return value
}

func BenchmarkWrite(b *testing.B) {
	db, cleanup := setupBenchDB(b, writeCfg)
	defer cleanup()

	value := generateValue(1024)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		key := generateKey(i)
		if err := db.Put(key, value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func BenchmarkRead(b *testing.B) {
	db, cleanup := setupBenchDB(b, readCfg)
	defer cleanup()

	value := generateValue(1024)
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		if err := db.Put(generateKey(i), value); err != nil {
			b.Fatalf("Pre-populate put failed: %v", err)
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		key := generateKey(i % numKeys)
		_, found, err := db.Get(key)
		if err != nil {
			b.Fatalf("Get failed: %v", err)
		}
		if !found {
			b.Fatalf("key not found")
		}
	}
}

func BenchmarkRandomRead(b *testing.B) {
	db, cleanup := setupBenchDB(b, readCfg)
	defer cleanup()

	value := generateValue(1024)
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		if err := db.Put(generateKey(i), value); err != nil {
			b.Fatalf("Pre-populate put failed: %v", err)
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		key := generateKey(rand.Intn(numKeys))
		_, found, err := db.Get(key)
		if err != nil {
			b.Fatalf("Get failed: %v", err)
		}
		if !found {
			b.Fatalf("key not found")
		}
	}
}

func BenchmarkConcurrentRead(b *testing.B) {
	db, cleanup := setupBenchDB(b, readCfg)
	defer cleanup()

	value := generateValue(1024)
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		if err := db.Put(generateKey(i), value); err != nil {
			b.Fatalf("Pre-populate put failed: %v", err)
		}
	}

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		clone := db.Clone()
		for pb.Next() {
			key := generateKey(rand.Intn(numKeys))
			_, found, err := clone.Get(key)
			if err != nil {
				b.Fatalf("Get failed: %v", err)
			}
			if !found {
				b.Fatalf("key not found")
			}
		}
	})
}

func BenchmarkConcurrentWrite(b *testing.B) {
	db, cleanup := setupBenchDB(b, writeCfg)
	defer cleanup()

	value := generateValue(1024)

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		clone := db.Clone()
		i := 0
		for pb.Next() {
			key := fmt.Appendf(nil, "key_%d_%d", rand.Int63(), i)
			if err := clone.Put(key, value); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
			i++
		}
	})
}

func BenchmarkScan(b *testing.B) {
	db, cleanup := setupBenchDB(b, readCfg)
	defer cleanup()

	value := generateValue(256)
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		if err := db.Put(generateKey(i), value); err != nil {
			b.Fatalf("Pre-populate put failed: %v", err)
		}
	}

	start := generateKey(0)
	end := generateKey(numKeys)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		it, err := db.Scan(start, end)
		if err != nil {
			b.Fatalf("Scan failed: %v", err)
		}
		count := 0
		for it.Next() {
			count++
		}
		if count != numKeys {
			b.Fatalf("expected %d keys, got %d", numKeys, count)
		}
	}
}

package engine

import "time"

const ttlSweepInterval = 5 * time.Second

// flushWorker drains flushC, signalled by the write path once the
// active MemTable crosses its byte threshold. It runs the actual
// flush off the write path, the way the teacher's compaction
// goroutine keeps merge I/O off Put's hot path.
func (e *Engine) flushWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopc:
			return
		case <-e.flushC:
			e.mu.Lock()
			err := e.flushLocked()
			e.mu.Unlock()
			if err != nil {
				e.logger.Printf("engine: background flush failed: %v", err)
				continue
			}
			select {
			case e.compactC <- struct{}{}:
			default:
			}
		}
	}
}

// compactWorker runs size-tiered compaction whenever signalled (a
// flush just landed a new table) or, failing that, on a slow backstop
// timer, so a tier that fills up without a concurrent flush still gets
// compacted eventually.
func (e *Engine) compactWorker() {
	defer e.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopc:
			return
		case <-e.compactC:
			e.runCompactionRound()
		case <-ticker.C:
			e.runCompactionRound()
		}
	}
}

func (e *Engine) runCompactionRound() {
	if err := e.Compact(); err != nil {
		e.logger.Printf("engine: background compaction failed: %v", err)
	}
}

// ttlSweepWorker proactively tombstones keys whose TTL has passed,
// rather than relying solely on lazy detection at read time or on a
// key's eventual participation in a bottom-level compaction. The TTL
// index only covers keys set with an expiry since this Engine opened
// (it is not persisted), so this is a best-effort accelerator, not the
// durable expiry mechanism — Get's own ExpiredAt check and bottom-tier
// compaction's drop rule remain authoritative.
func (e *Engine) ttlSweepWorker() {
	defer e.wg.Done()
	ticker := time.NewTicker(ttlSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopc:
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

func (e *Engine) sweepExpired() {
	now := time.Now().Unix()

	e.mu.RLock()
	expired := e.ttlIndex.CollectExpired(now)
	e.mu.RUnlock()

	for _, key := range expired {
		if err := e.Delete(key); err != nil {
			e.logger.Printf("engine: ttl sweep delete of %q failed: %v", key, err)
		}
	}
}

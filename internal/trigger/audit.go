package trigger

import (
	"sync"
	"sync/atomic"
	"time"

	"polyedge/internal/logger"
)

// AuditRecord captures one trigger evaluation for observability.
type AuditRecord struct {
	TriggerID string    `json:"trigger_id"`
	EventID   string    `json:"event_id"`
	Matched   bool      `json:"matched"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// AuditSink receives drained audit records, typically the store.
type AuditSink interface {
	AppendAudit(records []AuditRecord) error
}

// AuditTrail buffers evaluation records and drains them to a sink in
// the background. Record never blocks evaluation: when the buffer is
// full the record is dropped and counted.
type AuditTrail struct {
	ch      chan AuditRecord
	dropped atomic.Int64

	mu     sync.RWMutex
	recent []AuditRecord
	max    int

	wg   sync.WaitGroup
	stop chan struct{}
}

func NewAuditTrail(buffer, retain int) *AuditTrail {
	if buffer <= 0 {
		buffer = 1024
	}
	if retain <= 0 {
		retain = 1000
	}
	return &AuditTrail{
		ch:   make(chan AuditRecord, buffer),
		max:  retain,
		stop: make(chan struct{}),
	}
}

// Start launches the drain loop. sink may be nil, in which case records
// are only retained in memory.
func (a *AuditTrail) Start(sink AuditSink, flushEvery time.Duration) {
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}
	a.wg.Add(1)
	go a.drain(sink, flushEvery)
}

func (a *AuditTrail) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// Record enqueues fire-and-forget; a full buffer drops the record.
func (a *AuditTrail) Record(rec AuditRecord) {
	select {
	case a.ch <- rec:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns how many records were discarded due to backpressure.
func (a *AuditTrail) Dropped() int64 {
	return a.dropped.Load()
}

// Recent returns up to limit retained records, newest last.
func (a *AuditTrail) Recent(limit int) []AuditRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := a.recent
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	cp := make([]AuditRecord, len(out))
	copy(cp, out)
	return cp
}

func (a *AuditTrail) drain(sink AuditSink, flushEvery time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	var batch []AuditRecord
	flush := func() {
		if len(batch) == 0 {
			return
		}
		a.retain(batch)
		if sink != nil {
			if err := sink.AppendAudit(batch); err != nil {
				logger.Warnf("audit trail: sink append failed: %v", err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-a.ch:
			batch = append(batch, rec)
			if len(batch) >= 256 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stop:
			for {
				select {
				case rec := <-a.ch:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (a *AuditTrail) retain(batch []AuditRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recent = append(a.recent, batch...)
	if len(a.recent) > a.max {
		a.recent = a.recent[len(a.recent)-a.max:]
	}
}

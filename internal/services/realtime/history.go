package realtime

import (
	"context"
	"log"
	"sync"

	"syncspace/internal/models"
)

// HistoryWriter appends accepted changes to the change log from a small
// worker pool, keeping the append off the protocol's hot path. It is
// strictly best-effort: a full queue drops the record with a warning and a
// failed insert is logged and forgotten. The protocol's correctness lives
// in the documents.version column, not here.
type HistoryWriter struct {
	changeLog ChangeLog

	jobs    chan *models.ChangeRecord
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHistoryWriter creates the pool without starting it.
func NewHistoryWriter(changeLog ChangeLog, numWorkers, queueSize int) *HistoryWriter {
	ctx, cancel := context.WithCancel(context.Background())

	return &HistoryWriter{
		changeLog: changeLog,
		jobs:      make(chan *models.ChangeRecord, queueSize),
		workers:   numWorkers,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start spawns the worker goroutines.
func (w *HistoryWriter) Start() {
	log.Printf("🔧 Starting change-history writer pool with %d workers", w.workers)

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
}

func (w *HistoryWriter) worker(id int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case rec, ok := <-w.jobs:
			if !ok {
				return
			}
			if err := w.changeLog.Append(context.Background(), rec); err != nil {
				log.Printf("  History worker %d error: %v", id, err)
			}
		}
	}
}

// Submit queues one record; never blocks the caller.
func (w *HistoryWriter) Submit(rec *models.ChangeRecord) {
	select {
	case w.jobs <- rec:
	default:
		log.Printf("⚠️  Change-history queue full, dropping record for document %s v%d",
			rec.DocumentID, rec.Version)
	}
}

// Shutdown stops the workers after they finish their current job.
func (w *HistoryWriter) Shutdown() {
	w.cancel()
	w.wg.Wait()
	log.Println("✓ Change-history writer pool stopped")
}

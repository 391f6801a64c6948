package matrix

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tessera/domain"
)

// BatchKind distinguishes the two persistence operations.
type BatchKind string

const (
	BatchSave   BatchKind = "save"
	BatchDelete BatchKind = "delete"
)

// SyncStatus tracks a batch from commit to acknowledgement.
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncConfirmed SyncStatus = "confirmed"
	SyncFailed    SyncStatus = "failed"
)

// Batch is one asynchronous write handed to the gateway.
type Batch struct {
	ID     int        `json:"id"`
	Kind   BatchKind  `json:"kind"`
	Cells  int        `json:"cells"`
	Status SyncStatus `json:"status"`
	Err    string     `json:"error,omitempty"`
}

type syncJob struct {
	id      int
	kind    BatchKind
	entries []domain.Entry
	cells   []domain.Cell
}

// Syncer forwards committed changes to a Gateway on a single background
// worker so batches reach it in commit order. Committing never waits on the
// gateway: batches queue without bound and a backlog above the configured
// depth is only logged. Failures are recorded on the batch and logged; nothing
// is rolled back.
type Syncer struct {
	gw      Gateway
	year    int
	logger  *log.Logger
	timeout time.Duration
	backlog int

	mu      sync.Mutex
	closed  bool
	queue   []syncJob
	batches []Batch

	notify chan struct{}
	done   chan struct{}
}

// NewSyncer starts the worker. backlog is the queue depth above which a
// warning is logged.
func NewSyncer(gw Gateway, year int, logger *log.Logger, backlog int, timeout time.Duration) *Syncer {
	if logger == nil {
		panic("matrix.NewSyncer: logger is nil")
	}
	if backlog <= 0 {
		backlog = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Syncer{
		gw:      gw,
		year:    year,
		logger:  logger,
		timeout: timeout,
		backlog: backlog,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Save queues entries for persistence and returns the batch id.
func (s *Syncer) Save(entries []domain.Entry) int {
	return s.submit(syncJob{kind: BatchSave, entries: entries})
}

// Delete queues cells for removal and returns the batch id.
func (s *Syncer) Delete(cells []domain.Cell) int {
	return s.submit(syncJob{kind: BatchDelete, cells: cells})
}

func (s *Syncer) submit(job syncJob) int {
	size := len(job.entries) + len(job.cells)

	s.mu.Lock()
	job.id = len(s.batches) + 1
	b := Batch{ID: job.id, Kind: job.kind, Cells: size, Status: SyncPending}
	if s.closed {
		b.Status = SyncFailed
		b.Err = "syncer closed"
		s.batches = append(s.batches, b)
		s.mu.Unlock()
		s.logger.WithFields(log.Fields{"batch": job.id, "kind": job.kind}).Warn("matrix.sync.closed")
		return job.id
	}
	s.batches = append(s.batches, b)
	s.queue = append(s.queue, job)
	depth := len(s.queue)
	s.mu.Unlock()

	if depth == s.backlog+1 {
		s.logger.WithFields(log.Fields{"batch": job.id, "queued": depth}).Warn("matrix.sync.backlog")
	}
	s.wake()
	return job.id
}

func (s *Syncer) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Syncer) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.notify
			continue
		}
		j := s.queue[0]
		s.queue[0] = syncJob{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.apply(j)
	}
}

func (s *Syncer) apply(j syncJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	var err error
	switch j.kind {
	case BatchSave:
		err = s.gw.SaveEntries(ctx, j.entries)
	case BatchDelete:
		err = s.gw.DeleteEntries(ctx, s.year, j.cells)
	}
	cancel()

	s.mu.Lock()
	b := &s.batches[j.id-1]
	if err != nil {
		b.Status = SyncFailed
		b.Err = err.Error()
	} else {
		b.Status = SyncConfirmed
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"batch": j.id,
			"kind":  j.kind,
			"cells": len(j.entries) + len(j.cells),
			"year":  s.year,
		}).Error("matrix.sync.failed")
	}
}

// Batches returns a copy of every batch submitted so far.
func (s *Syncer) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

// Close stops accepting batches and waits for queued ones to finish.
func (s *Syncer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
	<-s.done
}

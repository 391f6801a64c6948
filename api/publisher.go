package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tessera/domain"
)

// PublisherConfig sizes the event publishing pool.
type PublisherConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// DefaultPublisherConfig returns the pool sizing used when nothing is configured.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Workers:        4,
		Buffer:         256,
		Timeout:        30 * time.Second,
		HandoffTimeout: 15 * time.Millisecond,
	}
}

// Publisher hands matrix events to a sink from a bounded worker pool so that
// request handlers never wait on the event transport. When the buffer is
// saturated the event is published inline.
type Publisher struct {
	sink   EventSink
	log    *log.Logger
	cfg    PublisherConfig
	jobs   chan domain.Event
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPublisher starts the worker goroutines. It panics on a nil logger.
func NewPublisher(sink EventSink, logger *log.Logger, cfg PublisherConfig) *Publisher {
	if logger == nil {
		panic("Logger is not initialized")
	}
	def := DefaultPublisherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	p := &Publisher{
		sink: sink,
		log:  logger,
		cfg:  cfg,
		jobs: make(chan domain.Event, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return p
}

func (p *Publisher) worker(id int) {
	defer p.wg.Done()
	for ev := range p.jobs {
		if err := p.publish(ev); err != nil {
			p.log.WithFields(log.Fields{
				"user":   ev.UserID,
				"type":   ev.Type,
				"event":  ev.ID,
				"worker": id,
			}).Errorf("publish failed: %v", err)
		}
	}
}

func (p *Publisher) publish(ev domain.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()
	return p.sink.Publish(ctx, ev)
}

// Publish queues the event, falling back to a synchronous publish when the
// pool cannot accept it within the handoff timeout.
func (p *Publisher) Publish(ev domain.Event) error {
	if p == nil || p.sink == nil {
		return nil
	}
	if p.tryEnqueue(ev) {
		return nil
	}
	p.log.Warn("publish buffer saturated; processing inline")
	return p.publish(ev)
}

func (p *Publisher) tryEnqueue(ev domain.Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- ev:
		return true
	default:
	}

	if p.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case p.jobs <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

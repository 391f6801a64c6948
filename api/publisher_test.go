package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"tessera/domain"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []string
}

func (s *blockingSink) Publish(_ context.Context, ev domain.Event) error {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, ev.ID)
	s.mu.Unlock()
	return nil
}

func (s *blockingSink) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func TestPublisherDeliversQueuedEvents(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{}
	p := NewPublisher(sink, logger, PublisherConfig{Workers: 2, Buffer: 4})

	for _, id := range []string{"a", "b", "c"} {
		if err := p.Publish(domain.Event{ID: id}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	p.Close()

	if n := len(sink.Events()); n != 3 {
		t.Fatalf("expected 3 events after close, got %d", n)
	}
}

func TestPublisherFallsBackInlineWhenSaturated(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &blockingSink{release: make(chan struct{})}
	p := NewPublisher(sink, logger, PublisherConfig{Workers: 1, Buffer: 0, HandoffTimeout: 10 * time.Millisecond})

	done := make(chan error, 2)
	go func() { done <- p.Publish(domain.Event{ID: "first"}) }()
	// the worker picks up the first event and blocks inside the sink
	time.Sleep(30 * time.Millisecond)
	go func() { done <- p.Publish(domain.Event{ID: "inline"}) }()

	time.Sleep(50 * time.Millisecond)
	close(sink.release)

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("publish: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("publish did not complete")
		}
	}
	p.Close()

	if ids := sink.IDs(); len(ids) != 2 {
		t.Fatalf("expected both events delivered, got %v", ids)
	}
	saturated := false
	for _, e := range hook.AllEntries() {
		if e.Message == "publish buffer saturated; processing inline" {
			saturated = true
		}
	}
	if !saturated {
		t.Fatal("expected saturation warning")
	}
}

func TestPublisherLogsSinkFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &recordingSink{err: errors.New("queue down")}
	p := NewPublisher(sink, logger, PublisherConfig{Workers: 1, Buffer: 1})

	if err := p.Publish(domain.Event{ID: "x", UserID: "u"}); err != nil {
		t.Fatalf("queued publish should not fail: %v", err)
	}
	p.Close()

	entry := hook.LastEntry()
	if entry == nil || entry.Data["user"] != "u" || entry.Data["event"] != "x" {
		t.Fatalf("expected failure log with event fields, got %#v", entry)
	}
}

func TestPublisherAfterCloseRunsInline(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{}
	p := NewPublisher(sink, logger, PublisherConfig{Workers: 1, Buffer: 1})
	p.Close()
	p.Close()

	if err := p.Publish(domain.Event{ID: "late"}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	if n := len(sink.Events()); n != 1 {
		t.Fatalf("expected inline delivery after close, got %d", n)
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	if err := p.Publish(domain.Event{}); err != nil {
		t.Fatalf("nil publisher: %v", err)
	}
	p.Close()
}

func TestNewPublisherPanicsWithoutLogger(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewPublisher(&recordingSink{}, nil, PublisherConfig{})
}

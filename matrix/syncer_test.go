package matrix

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"tessera/domain"
)

func TestSyncerPreservesCommitOrder(t *testing.T) {
	gw := &fakeGateway{}
	logger, _ := test.NewNullLogger()
	s := NewSyncer(gw, 2025, logger, 1, time.Second)

	for i := 0; i < 5; i++ {
		s.Save([]domain.Entry{{TaskID: "t", DayIndex: i, Hour: 0, Year: 2025}})
		s.Delete([]domain.Cell{{DayIndex: i, Hour: 0}})
	}
	s.Close()

	if len(gw.order) != 10 {
		t.Fatalf("expected 10 gateway calls, got %d", len(gw.order))
	}
	for i, k := range gw.order {
		want := BatchSave
		if i%2 == 1 {
			want = BatchDelete
		}
		if k != want {
			t.Fatalf("call %d = %v, want %v", i, k, want)
		}
	}
	for i, b := range s.Batches() {
		if b.ID != i+1 || b.Status != SyncConfirmed || b.Cells != 1 {
			t.Fatalf("unexpected batch %+v", b)
		}
	}
}

func TestSyncerRejectsAfterClose(t *testing.T) {
	gw := &fakeGateway{}
	logger, hook := test.NewNullLogger()
	s := NewSyncer(gw, 2025, logger, 0, 0)
	s.Close()
	s.Close()

	id := s.Save([]domain.Entry{{TaskID: "t"}})
	b := s.Batches()
	if id != 1 || len(b) != 1 || b[0].Status != SyncFailed || b[0].Err != "syncer closed" {
		t.Fatalf("unexpected batches %+v", b)
	}
	if len(gw.order) != 0 {
		t.Fatal("closed syncer must not reach the gateway")
	}
	if last := hook.LastEntry(); last == nil || last.Message != "matrix.sync.closed" {
		t.Fatalf("expected closed warning, got %+v", last)
	}
}

func TestNewSyncerPanicsWithoutLogger(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewSyncer(&fakeGateway{}, 2025, nil, 1, time.Second)
}

// stalledGateway holds every save until release is closed.
type stalledGateway struct {
	*fakeGateway
	release chan struct{}
}

func (g *stalledGateway) SaveEntries(ctx context.Context, entries []domain.Entry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.release:
	}
	return g.fakeGateway.SaveEntries(ctx, entries)
}

func TestConfirmDoesNotWaitOnStalledGateway(t *testing.T) {
	gw := &stalledGateway{
		fakeGateway: &fakeGateway{tasks: domain.DefaultTasks()},
		release:     make(chan struct{}),
	}
	logger, hook := test.NewNullLogger()
	s, err := NewSession(Identity{UserID: "user-1"}, gw, Options{
		Year:        2025,
		Logger:      logger,
		SyncBuffer:  1,
		SyncTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	var worst time.Duration
	for day := 0; day < 4; day++ {
		if !s.SelectTask("deep-work") || !s.PointerDown(Key(day, 9)) {
			t.Fatalf("could not start gesture on day %d", day)
		}
		s.PointerUp()
		start := time.Now()
		if !s.ConfirmEntry() {
			t.Fatalf("confirm on day %d", day)
		}
		if d := time.Since(start); d > worst {
			worst = d
		}
	}
	if worst > 200*time.Millisecond {
		t.Fatalf("confirm blocked on persistence for %v", worst)
	}
	if len(s.Cells()) != 4 {
		t.Fatalf("expected local state to hold every confirm, got %v", s.Cells())
	}

	backlogged := false
	for _, e := range hook.AllEntries() {
		if e.Message == "matrix.sync.backlog" {
			backlogged = true
		}
	}
	if !backlogged {
		t.Fatal("expected a backlog warning")
	}

	close(gw.release)
	s.Close()
	for _, b := range s.SyncBatches() {
		if b.Status != SyncConfirmed {
			t.Fatalf("batch %d not confirmed after release: %+v", b.ID, b)
		}
	}
	if len(gw.saves) != 4 {
		t.Fatalf("expected 4 saves, got %d", len(gw.saves))
	}
}

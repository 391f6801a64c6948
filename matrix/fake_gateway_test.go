package matrix

import (
	"context"
	"errors"
	"sync"

	"tessera/domain"
)

type fakeGateway struct {
	mu      sync.Mutex
	tasks   []domain.Task
	entries []domain.Entry
	created []domain.Task
	renamed map[string]string
	saves   [][]domain.Entry
	deletes [][]domain.Cell
	order   []BatchKind
	saveErr error
}

func (f *fakeGateway) LoadTasks(ctx context.Context) ([]domain.Task, error) {
	return f.tasks, nil
}

func (f *fakeGateway) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeGateway) RenameTask(ctx context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renamed == nil {
		f.renamed = map[string]string{}
	}
	f.renamed[id] = name
	return nil
}

func (f *fakeGateway) LoadEntries(ctx context.Context, year int) ([]domain.Entry, error) {
	return f.entries, nil
}

func (f *fakeGateway) SaveEntries(ctx context.Context, entries []domain.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, BatchSave)
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, entries)
	return nil
}

func (f *fakeGateway) DeleteEntries(ctx context.Context, year int, cells []domain.Cell) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, BatchDelete)
	f.deletes = append(f.deletes, cells)
	return nil
}

var errGatewayDown = errors.New("gateway down")

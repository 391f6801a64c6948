package matrix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"tessera/domain"
)

var (
	// ErrNoIdentity is returned when a session is opened without a resolved user.
	ErrNoIdentity = errors.New("session requires an authenticated identity")
	// ErrUnknownTask is returned for operations naming a task the registry lacks.
	ErrUnknownTask = errors.New("unknown task")
)

// Mode is the interaction state of a session.
type Mode int

const (
	ModeIdle Mode = iota
	ModeEntry
	ModeClear
)

func (m Mode) String() string {
	switch m {
	case ModeEntry:
		return "entry"
	case ModeClear:
		return "clear"
	default:
		return "idle"
	}
}

// Identity is the resolved user a session acts for.
type Identity struct {
	UserID string
	Token  string
}

// Gateway persists tasks and entries on behalf of a session.
type Gateway interface {
	LoadTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	RenameTask(ctx context.Context, id, name string) error
	LoadEntries(ctx context.Context, year int) ([]domain.Entry, error)
	SaveEntries(ctx context.Context, entries []domain.Entry) error
	DeleteEntries(ctx context.Context, year int, cells []domain.Cell) error
}

// Options tune a session. Zero values pick defaults.
type Options struct {
	Year        int
	Now         func() time.Time
	Logger      *log.Logger
	// SyncBuffer is the persistence queue depth above which a backlog warning
	// is logged. Commits never wait on the queue.
	SyncBuffer  int
	SyncTimeout time.Duration
}

// State is a read-only snapshot of the interaction state.
type State struct {
	Mode        Mode
	ActiveTask  string
	Pending     []CellKey
	Dragging    bool
	UndoDepth   int
	UndoVisible bool
}

// Session is one user's editing session over a single year of the grid.
// All methods must be called from the owning goroutine; only persistence
// runs in the background.
type Session struct {
	identity Identity
	gw       Gateway
	year     int
	logger   *log.Logger

	registry *Registry
	cells    CellMap
	pending  *Selection
	undo     *UndoStack
	sync     *Syncer

	mode     Mode
	active   string
	dragging bool
}

// NewSession opens a session for identity. Call Hydrate to load state.
func NewSession(identity Identity, gw Gateway, opts Options) (*Session, error) {
	if identity.UserID == "" {
		return nil, ErrNoIdentity
	}
	if gw == nil {
		return nil, errors.New("session requires a gateway")
	}
	if opts.Year == 0 {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		opts.Year = now().Year()
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Session{
		identity: identity,
		gw:       gw,
		year:     opts.Year,
		logger:   opts.Logger,
		registry: NewRegistry(nil),
		cells:    make(CellMap),
		pending:  NewSelection(),
		undo:     NewUndoStack(opts.Now),
		sync:     NewSyncer(gw, opts.Year, opts.Logger, opts.SyncBuffer, opts.SyncTimeout),
	}, nil
}

// Hydrate replaces the registry and cell map with the gateway's view.
func (s *Session) Hydrate(ctx context.Context) error {
	tasks, err := s.gw.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	entries, err := s.gw.LoadEntries(ctx, s.year)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	s.registry = NewRegistry(tasks)
	s.cells = FromEntries(entries)
	s.reset()
	return nil
}

// Identity returns the user the session acts for.
func (s *Session) Identity() Identity { return s.identity }

// Year returns the year being edited.
func (s *Session) Year() int { return s.year }

// State returns a snapshot of the interaction state.
func (s *Session) State() State {
	return State{
		Mode:        s.mode,
		ActiveTask:  s.active,
		Pending:     s.pending.Keys(),
		Dragging:    s.dragging,
		UndoDepth:   s.undo.Len(),
		UndoVisible: s.undo.Visible(),
	}
}

// Cells returns a copy of the cell map.
func (s *Session) Cells() CellMap { return s.cells.Clone() }

// Tasks returns the registry in order.
func (s *Session) Tasks() []domain.Task { return s.registry.Tasks() }

// UndoItems returns the undo stack, oldest first.
func (s *Session) UndoItems() []UndoItem { return s.undo.Items() }

// SyncBatches reports the persistence status of every committed batch.
func (s *Session) SyncBatches() []Batch { return s.sync.Batches() }

// Analytics projects the current cell map.
func (s *Session) Analytics(sortSegments bool) Projection {
	return Project(s.cells, s.registry.Tasks(), sortSegments)
}

// AddTask creates a task with the next palette color and shortcut. The task
// stays in the registry even if the gateway rejects it.
func (s *Session) AddTask(ctx context.Context, name string) (domain.Task, error) {
	t, ok := s.registry.Add(name)
	if !ok {
		return domain.Task{}, errors.New("task name is required")
	}
	stored, err := s.gw.CreateTask(ctx, t)
	if err != nil {
		return t, err
	}
	if stored.ID == t.ID {
		s.registry.Put(stored)
		t = stored
	}
	return t, nil
}

// RenameTask renames a task locally and through the gateway.
func (s *Session) RenameTask(ctx context.Context, id, name string) error {
	if !s.registry.Rename(id, name) {
		return ErrUnknownTask
	}
	return s.gw.RenameTask(ctx, id, strings.TrimSpace(name))
}

// SelectTask enters entry mode for id from idle. Selecting the active task
// again cancels the gesture; any other selection while a mode is active is
// ignored.
func (s *Session) SelectTask(id string) bool {
	switch s.mode {
	case ModeIdle:
		if _, ok := s.registry.Get(id); !ok {
			return false
		}
		s.mode = ModeEntry
		s.active = id
		s.pending.Reset()
		s.dragging = false
		return true
	case ModeEntry:
		if id == s.active {
			return s.Cancel()
		}
	}
	return false
}

// PointerDown starts a drag at k.
func (s *Session) PointerDown(k CellKey) bool {
	if !k.Valid() {
		return false
	}
	switch s.mode {
	case ModeIdle:
		if !s.cells.Has(k) {
			return false
		}
		s.mode = ModeClear
	case ModeEntry:
	case ModeClear:
		if !s.cells.Has(k) {
			return false
		}
	}
	s.pending.Reset(k)
	s.dragging = true
	return true
}

// PointerEnter extends the drag to k. In clear mode only assigned cells join.
func (s *Session) PointerEnter(k CellKey) bool {
	if !s.dragging || !k.Valid() {
		return false
	}
	switch s.mode {
	case ModeEntry:
		return s.pending.Add(k)
	case ModeClear:
		if s.cells.Has(k) {
			return s.pending.Add(k)
		}
	}
	return false
}

// PointerUp ends the drag. Pending cells and mode are kept.
func (s *Session) PointerUp() {
	s.dragging = false
}

// SecondaryClick deselects k in an active mode. From idle it removes an
// assigned cell immediately and records it for undo.
func (s *Session) SecondaryClick(k CellKey) bool {
	if !k.Valid() {
		return false
	}
	switch s.mode {
	case ModeEntry, ModeClear:
		return s.pending.Remove(k)
	}
	taskID, ok := s.cells[k]
	if !ok {
		return false
	}
	delete(s.cells, k)
	s.undo.Push(UndoItem{Key: k, TaskID: taskID})
	s.sync.Delete([]domain.Cell{{DayIndex: k.Day, Hour: k.Hour}})
	return true
}

// ConfirmEntry assigns the active task to every pending cell, overwriting
// existing assignments, and returns to idle. Overwrites are not undoable.
func (s *Session) ConfirmEntry() bool {
	if s.mode != ModeEntry || s.pending.Len() == 0 {
		return false
	}
	keys := s.pending.Keys()
	entries := make([]domain.Entry, 0, len(keys))
	for _, k := range keys {
		s.cells[k] = s.active
		entries = append(entries, domain.Entry{TaskID: s.active, DayIndex: k.Day, Hour: k.Hour, Year: s.year})
	}
	s.sync.Save(entries)
	s.reset()
	return true
}

// ConfirmClear removes every pending cell, pushing each removed assignment on
// the undo stack in selection order, and returns to idle.
func (s *Session) ConfirmClear() bool {
	if s.mode != ModeClear || s.pending.Len() == 0 {
		return false
	}
	keys := s.pending.Keys()
	items := make([]UndoItem, 0, len(keys))
	cells := make([]domain.Cell, 0, len(keys))
	for _, k := range keys {
		taskID, ok := s.cells[k]
		if !ok {
			continue
		}
		items = append(items, UndoItem{Key: k, TaskID: taskID})
		cells = append(cells, domain.Cell{DayIndex: k.Day, Hour: k.Hour})
		delete(s.cells, k)
	}
	s.undo.Push(items...)
	if len(cells) > 0 {
		s.sync.Delete(cells)
	}
	s.reset()
	return true
}

// Confirm commits the gesture of whichever mode is active.
func (s *Session) Confirm() bool {
	switch s.mode {
	case ModeEntry:
		return s.ConfirmEntry()
	case ModeClear:
		return s.ConfirmClear()
	}
	return false
}

// Cancel discards the pending selection and returns to idle without touching
// the cell map.
func (s *Session) Cancel() bool {
	if s.mode == ModeIdle {
		return false
	}
	s.reset()
	return true
}

// ClearSelection empties the pending set while staying in entry mode.
func (s *Session) ClearSelection() bool {
	if s.mode != ModeEntry {
		return false
	}
	s.pending.Reset()
	return true
}

// Undo restores the most recently removed assignment.
func (s *Session) Undo() bool {
	item, ok := s.undo.Pop()
	if !ok {
		return false
	}
	s.cells[item.Key] = item.TaskID
	s.sync.Save([]domain.Entry{{TaskID: item.TaskID, DayIndex: item.Key.Day, Hour: item.Key.Hour, Year: s.year}})
	return true
}

// HandleKey maps a key name to an operation: enter confirms, escape cancels,
// ctrl+z or meta+z undoes and a task shortcut selects that task.
func (s *Session) HandleKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "enter":
		return s.Confirm()
	case "escape", "esc":
		return s.Cancel()
	case "ctrl+z", "meta+z", "cmd+z":
		return s.Undo()
	}
	if t, ok := s.registry.ByShortcut(key); ok {
		return s.SelectTask(t.ID)
	}
	return false
}

// Close waits for outstanding persistence and releases the session.
func (s *Session) Close() {
	s.sync.Close()
}

func (s *Session) reset() {
	s.mode = ModeIdle
	s.active = ""
	s.pending.Reset()
	s.dragging = false
}

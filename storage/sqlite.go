package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tessera/domain"
)

// SQLite is a single-file store for local use. It implements Backend.
type SQLite struct {
	db    *sql.DB
	names TableNames
}

// OpenSQLite opens (or creates) the database at path and migrates it. Use
// ":memory:" for an ephemeral database.
func OpenSQLite(ctx context.Context, path string, names TableNames) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s := &SQLite{db: db, names: names}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	n := s.names
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + n.Users + ` (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			last_task_order TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS ` + n.Tasks + ` (
			user_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			shortcut TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			PRIMARY KEY(user_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS ` + n.Entries + ` (
			user_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			day_index INTEGER NOT NULL,
			hour INTEGER NOT NULL,
			task_id TEXT NOT NULL,
			PRIMARY KEY(user_id, year, day_index, hour)
		);`,
		`CREATE TABLE IF NOT EXISTS ` + n.Friendships + ` (
			id TEXT PRIMARY KEY,
			requester_id TEXT NOT NULL,
			addressee_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + n.Friendships + `_pair ON ` + n.Friendships + `(requester_id, addressee_id);`,
		`CREATE TABLE IF NOT EXISTS ` + n.Goals + ` (
			user_id TEXT NOT NULL,
			id TEXT NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			progress INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL,
			PRIMARY KEY(user_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS ` + n.Achievements + ` (
			user_id TEXT NOT NULL,
			achievement_key TEXT NOT NULL,
			unlocked_at TEXT NOT NULL,
			PRIMARY KEY(user_id, achievement_key)
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- users ---

func (s *SQLite) CreateUser(ctx context.Context, u domain.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	existing, err := s.UserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrEmailTaken
	}
	order, _ := json.Marshal(u.LastTaskOrder)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.names.Users+` (id, email, full_name, avatar_url, password_hash, last_task_order, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, email, u.FullName, u.AvatarURL, u.PasswordHash, string(order), formatTime(u.CreatedAt))
	return err
}

const userColumns = `id, email, full_name, avatar_url, password_hash, last_task_order, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u         domain.User
		order     string
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.AvatarURL, &u.PasswordHash, &order, &createdAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(order), &u.LastTaskOrder)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (s *SQLite) userWhere(ctx context.Context, clause string, arg any) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM `+s.names.Users+` WHERE `+clause, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *SQLite) UserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.userWhere(ctx, `id = ?`, id)
}

func (s *SQLite) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.userWhere(ctx, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *SQLite) SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []domain.User{}
	if q == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = -1
	}
	like := "%" + q + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM `+s.names.Users+` WHERE email LIKE ? OR lower(full_name) LIKE ? ORDER BY email LIMIT ?`,
		like, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *SQLite) SetLastTaskOrder(ctx context.Context, userID string, order []string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+s.names.Users+` SET last_task_order = ? WHERE id = ?`, string(data), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- tasks ---

func (s *SQLite) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, color, shortcut FROM `+s.names.Tasks+` WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.Shortcut); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLite) CreateTasks(ctx context.Context, userID string, tasks []domain.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM `+s.names.Tasks+` WHERE user_id = ?`, userID).Scan(&next); err != nil {
		return err
	}
	for _, t := range tasks {
		res, err := tx.ExecContext(ctx,
			`UPDATE `+s.names.Tasks+` SET name = ?, color = ?, shortcut = ? WHERE user_id = ? AND id = ?`,
			t.Name, t.Color, t.Shortcut, userID, t.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+s.names.Tasks+` (user_id, id, name, color, shortcut, position) VALUES (?, ?, ?, ?, ?, ?)`,
			userID, t.ID, t.Name, t.Color, t.Shortcut, next); err != nil {
			return err
		}
		next++
	}
	return tx.Commit()
}

func (s *SQLite) UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	var t domain.Task
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, color, shortcut FROM `+s.names.Tasks+` WHERE user_id = ? AND id = ?`, userID, taskID).
		Scan(&t.ID, &t.Name, &t.Color, &t.Shortcut)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	t = upd.Apply(t)
	_, err = s.db.ExecContext(ctx,
		`UPDATE `+s.names.Tasks+` SET name = ?, color = ?, shortcut = ? WHERE user_id = ? AND id = ?`,
		t.Name, t.Color, t.Shortcut, userID, taskID)
	return t, err
}

func (s *SQLite) DeleteTask(ctx context.Context, userID, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.names.Tasks+` WHERE user_id = ? AND id = ?`, userID, taskID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- entries ---

func (s *SQLite) FetchEntries(ctx context.Context, userID string, year int) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, day_index, hour, year FROM `+s.names.Entries+` WHERE user_id = ? AND year = ? ORDER BY day_index, hour`,
		userID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []domain.Entry{}
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.TaskID, &e.DayIndex, &e.Hour, &e.Year); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLite) SaveEntries(ctx context.Context, userID string, entries []domain.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+s.names.Entries+` (user_id, year, day_index, hour, task_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, year, day_index, hour) DO UPDATE SET task_id = excluded.task_id`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, userID, e.Year, e.DayIndex, e.Hour, e.TaskID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) DeleteEntries(ctx context.Context, userID string, year int, cells []domain.Cell) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range cells {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+s.names.Entries+` WHERE user_id = ? AND year = ? AND day_index = ? AND hour = ?`,
			userID, year, c.DayIndex, c.Hour); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- friendships ---

const friendshipColumns = `id, requester_id, addressee_id, status, created_at, updated_at`

func scanFriendship(row interface{ Scan(...any) error }) (domain.Friendship, error) {
	var (
		f                domain.Friendship
		status           string
		created, updated string
	)
	if err := row.Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &status, &created, &updated); err != nil {
		return domain.Friendship{}, err
	}
	f.Status = domain.FriendshipStatus(status)
	f.CreatedAt = parseTime(created)
	f.UpdatedAt = parseTime(updated)
	return f, nil
}

func (s *SQLite) FriendshipsFor(ctx context.Context, userID string) ([]domain.Friendship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+friendshipColumns+` FROM `+s.names.Friendships+` WHERE requester_id = ? OR addressee_id = ? ORDER BY created_at`,
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Friendship{}
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLite) FriendshipBetween(ctx context.Context, a, b string) (*domain.Friendship, error) {
	f, err := scanFriendship(s.db.QueryRowContext(ctx,
		`SELECT `+friendshipColumns+` FROM `+s.names.Friendships+`
		WHERE (requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)`,
		a, b, b, a))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLite) SaveFriendship(ctx context.Context, f domain.Friendship) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.names.Friendships+` (`+friendshipColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		f.ID, f.RequesterID, f.AddresseeID, string(f.Status), formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	return err
}

func (s *SQLite) DeleteFriendship(ctx context.Context, f domain.Friendship) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+s.names.Friendships+` WHERE id = ?`, f.ID)
	return err
}

// --- goals ---

func (s *SQLite) FetchGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, category, progress, completed FROM `+s.names.Goals+` WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	goals := []domain.Goal{}
	for rows.Next() {
		var g domain.Goal
		if err := rows.Scan(&g.ID, &g.Title, &g.Category, &g.Progress, &g.Completed); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *SQLite) CreateGoal(ctx context.Context, userID string, g domain.Goal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.names.Goals+` (user_id, id, title, category, progress, completed, position)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM `+s.names.Goals+` WHERE user_id = ?))`,
		userID, g.ID, g.Title, g.Category, domain.ClampProgress(g.Progress), g.Completed, userID)
	return err
}

func (s *SQLite) UpdateGoal(ctx context.Context, userID, goalID string, upd domain.GoalUpdate) (domain.Goal, error) {
	var g domain.Goal
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, category, progress, completed FROM `+s.names.Goals+` WHERE user_id = ? AND id = ?`, userID, goalID).
		Scan(&g.ID, &g.Title, &g.Category, &g.Progress, &g.Completed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Goal{}, ErrNotFound
	}
	if err != nil {
		return domain.Goal{}, err
	}
	g = upd.Apply(g)
	_, err = s.db.ExecContext(ctx,
		`UPDATE `+s.names.Goals+` SET title = ?, category = ?, progress = ?, completed = ? WHERE user_id = ? AND id = ?`,
		g.Title, g.Category, g.Progress, g.Completed, userID, goalID)
	return g, err
}

func (s *SQLite) DeleteGoal(ctx context.Context, userID, goalID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.names.Goals+` WHERE user_id = ? AND id = ?`, userID, goalID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- achievements ---

func (s *SQLite) FetchAchievements(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT achievement_key, unlocked_at FROM `+s.names.Achievements+` WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]time.Time{}
	for rows.Next() {
		var key, at string
		if err := rows.Scan(&key, &at); err != nil {
			return nil, err
		}
		out[key] = parseTime(at)
	}
	return out, rows.Err()
}

func (s *SQLite) UnlockAchievement(ctx context.Context, userID, key string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.names.Achievements+` (user_id, achievement_key, unlocked_at) VALUES (?, ?, ?) ON CONFLICT(user_id, achievement_key) DO NOTHING`,
		userID, key, formatTime(at))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

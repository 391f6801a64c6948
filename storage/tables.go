package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"tessera/domain"
)

const (
	userPartition  = "user"
	emailPartition = "email"
	// maxTransactionActions is the Table service limit for one batch.
	maxTransactionActions = 100
)

// Tables stores every entity in Azure Table storage. Per-user entities are
// partitioned by user id.
type Tables struct {
	users        *aztables.Client
	tasks        *aztables.Client
	entries      *aztables.Client
	friendships  *aztables.Client
	goals        *aztables.Client
	achievements *aztables.Client
}

// NewTables connects to the tables named in names.
func NewTables(connStr string, names TableNames) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		users:        svc.NewClient(names.Users),
		tasks:        svc.NewClient(names.Tasks),
		entries:      svc.NewClient(names.Entries),
		friendships:  svc.NewClient(names.Friendships),
		goals:        svc.NewClient(names.Goals),
		achievements: svc.NewClient(names.Achievements),
	}, nil
}

type userEntity struct {
	aztables.Entity
	Email         string `json:"Email"`
	FullName      string `json:"FullName"`
	AvatarURL     string `json:"AvatarURL"`
	PasswordHash  string `json:"PasswordHash"`
	LastTaskOrder string `json:"LastTaskOrder"`
	CreatedAt     string `json:"CreatedAt"`
}

type emailEntity struct {
	aztables.Entity
	UserID string `json:"UserID"`
}

type taskEntity struct {
	aztables.Entity
	Name     string `json:"Name"`
	Color    string `json:"Color"`
	Shortcut string `json:"Shortcut"`
	Position int    `json:"Position"`
}

type entryEntity struct {
	aztables.Entity
	TaskID   string `json:"TaskID"`
	Year     int    `json:"Year"`
	DayIndex int    `json:"DayIndex"`
	Hour     int    `json:"Hour"`
}

type friendshipEntity struct {
	aztables.Entity
	FriendshipID string `json:"FriendshipID"`
	RequesterID  string `json:"RequesterID"`
	AddresseeID  string `json:"AddresseeID"`
	Status       string `json:"Status"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
}

type goalEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	Category  string `json:"Category"`
	Progress  int    `json:"Progress"`
	Completed bool   `json:"Completed"`
	Position  int    `json:"Position"`
}

type achievementEntity struct {
	aztables.Entity
	UnlockedAt string `json:"UnlockedAt"`
}

func entryRowKey(year, day, hour int) string {
	return fmt.Sprintf("%04d-%03d-%02d", year, day, hour)
}

// odataString quotes s for use inside an OData filter literal.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func isAlreadyExists(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.EntityAlreadyExists)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (s *Tables) listPartition(ctx context.Context, client *aztables.Client, filter string, fn func([]byte) error) error {
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Tables) upsert(ctx context.Context, client *aztables.Client, ent any) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = client.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// --- users ---

func (s *Tables) CreateUser(ctx context.Context, u domain.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	idx, err := json.Marshal(emailEntity{
		Entity: aztables.Entity{PartitionKey: emailPartition, RowKey: email},
		UserID: u.ID,
	})
	if err != nil {
		return err
	}
	if _, err := s.users.AddEntity(ctx, idx, nil); err != nil {
		if isAlreadyExists(err) {
			return ErrEmailTaken
		}
		return err
	}

	order, _ := json.Marshal(u.LastTaskOrder)
	ent := userEntity{
		Entity:        aztables.Entity{PartitionKey: userPartition, RowKey: u.ID},
		Email:         email,
		FullName:      u.FullName,
		AvatarURL:     u.AvatarURL,
		PasswordHash:  u.PasswordHash,
		LastTaskOrder: string(order),
		CreatedAt:     formatTime(u.CreatedAt),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.users.AddEntity(ctx, payload, nil)
	return err
}

func decodeUser(data []byte) (*domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	u := &domain.User{
		ID:           ent.RowKey,
		Email:        ent.Email,
		FullName:     ent.FullName,
		AvatarURL:    ent.AvatarURL,
		PasswordHash: ent.PasswordHash,
		CreatedAt:    parseTime(ent.CreatedAt),
	}
	if ent.LastTaskOrder != "" {
		_ = json.Unmarshal([]byte(ent.LastTaskOrder), &u.LastTaskOrder)
	}
	return u, nil
}

func (s *Tables) UserByID(ctx context.Context, id string) (*domain.User, error) {
	resp, err := s.users.GetEntity(ctx, userPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return decodeUser(resp.Value)
}

func (s *Tables) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	resp, err := s.users.GetEntity(ctx, emailPartition, strings.ToLower(strings.TrimSpace(email)), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var idx emailEntity
	if err := json.Unmarshal(resp.Value, &idx); err != nil {
		return nil, err
	}
	return s.UserByID(ctx, idx.UserID)
}

// SearchUsers scans the user partition for a case-insensitive substring match
// on email or name.
func (s *Tables) SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []domain.User{}
	if q == "" {
		return out, nil
	}
	errDone := errors.New("done")
	err := s.listPartition(ctx, s.users, "PartitionKey eq "+odataString(userPartition), func(data []byte) error {
		u, err := decodeUser(data)
		if err != nil {
			return err
		}
		if strings.Contains(strings.ToLower(u.Email), q) || strings.Contains(strings.ToLower(u.FullName), q) {
			out = append(out, *u)
			if limit > 0 && len(out) >= limit {
				return errDone
			}
		}
		return nil
	})
	if err != nil && err != errDone {
		return nil, err
	}
	return out, nil
}

func (s *Tables) SetLastTaskOrder(ctx context.Context, userID string, order []string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"PartitionKey":  userPartition,
		"RowKey":        userID,
		"LastTaskOrder": string(data),
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.users.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

// --- tasks ---

func (s *Tables) fetchTaskEntities(ctx context.Context, userID string) ([]taskEntity, error) {
	var out []taskEntity
	err := s.listPartition(ctx, s.tasks, "PartitionKey eq "+odataString(userID), func(data []byte) error {
		var ent taskEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		out = append(out, ent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Tables) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	ents, err := s.fetchTaskEntities(ctx, userID)
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(ents))
	for _, ent := range ents {
		tasks = append(tasks, domain.Task{ID: ent.RowKey, Name: ent.Name, Color: ent.Color, Shortcut: ent.Shortcut})
	}
	return tasks, nil
}

// CreateTasks appends tasks after the user's existing ones. A task whose id
// already exists is replaced in place.
func (s *Tables) CreateTasks(ctx context.Context, userID string, tasks []domain.Task) error {
	existing, err := s.fetchTaskEntities(ctx, userID)
	if err != nil {
		return err
	}
	positions := make(map[string]int, len(existing))
	next := 0
	for _, ent := range existing {
		positions[ent.RowKey] = ent.Position
		if ent.Position >= next {
			next = ent.Position + 1
		}
	}

	actions := make([]aztables.TransactionAction, 0, len(tasks))
	for _, t := range tasks {
		pos, ok := positions[t.ID]
		if !ok {
			pos = next
			positions[t.ID] = pos
			next++
		}
		payload, err := json.Marshal(taskEntity{
			Entity:   aztables.Entity{PartitionKey: userID, RowKey: t.ID},
			Name:     t.Name,
			Color:    t.Color,
			Shortcut: t.Shortcut,
			Position: pos,
		})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeInsertReplace, Entity: payload})
	}
	return s.submit(ctx, s.tasks, actions)
}

func (s *Tables) UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	resp, err := s.tasks.GetEntity(ctx, userID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, ErrNotFound
		}
		return domain.Task{}, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	t := upd.Apply(domain.Task{ID: ent.RowKey, Name: ent.Name, Color: ent.Color, Shortcut: ent.Shortcut})
	ent.Name, ent.Color, ent.Shortcut = t.Name, t.Color, t.Shortcut
	if err := s.upsert(ctx, s.tasks, ent); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Tables) DeleteTask(ctx context.Context, userID, taskID string) error {
	_, err := s.tasks.DeleteEntity(ctx, userID, taskID, nil)
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

// --- entries ---

func (s *Tables) FetchEntries(ctx context.Context, userID string, year int) ([]domain.Entry, error) {
	filter := fmt.Sprintf("PartitionKey eq %s and RowKey ge '%04d-' and RowKey lt '%04d-'", odataString(userID), year, year+1)
	entries := []domain.Entry{}
	err := s.listPartition(ctx, s.entries, filter, func(data []byte) error {
		var ent entryEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		entries = append(entries, domain.Entry{TaskID: ent.TaskID, DayIndex: ent.DayIndex, Hour: ent.Hour, Year: ent.Year})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Tables) SaveEntries(ctx context.Context, userID string, entries []domain.Entry) error {
	entries = dedupeEntries(entries)
	actions := make([]aztables.TransactionAction, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(entryEntity{
			Entity:   aztables.Entity{PartitionKey: userID, RowKey: entryRowKey(e.Year, e.DayIndex, e.Hour)},
			TaskID:   e.TaskID,
			Year:     e.Year,
			DayIndex: e.DayIndex,
			Hour:     e.Hour,
		})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeInsertReplace, Entity: payload})
	}
	return s.submit(ctx, s.entries, actions)
}

// DeleteEntries removes cells one by one; cells that are already empty are skipped.
func (s *Tables) DeleteEntries(ctx context.Context, userID string, year int, cells []domain.Cell) error {
	for _, c := range cells {
		if _, err := s.entries.DeleteEntity(ctx, userID, entryRowKey(year, c.DayIndex, c.Hour), nil); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

func (s *Tables) submit(ctx context.Context, client *aztables.Client, actions []aztables.TransactionAction) error {
	for start := 0; start < len(actions); start += maxTransactionActions {
		end := start + maxTransactionActions
		if end > len(actions) {
			end = len(actions)
		}
		if _, err := client.SubmitTransaction(ctx, actions[start:end], nil); err != nil {
			return err
		}
	}
	return nil
}

// --- friendships ---
// Each friendship is stored twice, once in each participant's partition with
// the other participant as row key.

func decodeFriendship(data []byte) (domain.Friendship, error) {
	var ent friendshipEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Friendship{}, err
	}
	return domain.Friendship{
		ID:          ent.FriendshipID,
		RequesterID: ent.RequesterID,
		AddresseeID: ent.AddresseeID,
		Status:      domain.FriendshipStatus(ent.Status),
		CreatedAt:   parseTime(ent.CreatedAt),
		UpdatedAt:   parseTime(ent.UpdatedAt),
	}, nil
}

func (s *Tables) FriendshipsFor(ctx context.Context, userID string) ([]domain.Friendship, error) {
	out := []domain.Friendship{}
	err := s.listPartition(ctx, s.friendships, "PartitionKey eq "+odataString(userID), func(data []byte) error {
		f, err := decodeFriendship(data)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Tables) FriendshipBetween(ctx context.Context, a, b string) (*domain.Friendship, error) {
	resp, err := s.friendships.GetEntity(ctx, a, b, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	f, err := decodeFriendship(resp.Value)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Tables) SaveFriendship(ctx context.Context, f domain.Friendship) error {
	for _, side := range [][2]string{{f.RequesterID, f.AddresseeID}, {f.AddresseeID, f.RequesterID}} {
		ent := friendshipEntity{
			Entity:       aztables.Entity{PartitionKey: side[0], RowKey: side[1]},
			FriendshipID: f.ID,
			RequesterID:  f.RequesterID,
			AddresseeID:  f.AddresseeID,
			Status:       string(f.Status),
			CreatedAt:    formatTime(f.CreatedAt),
			UpdatedAt:    formatTime(f.UpdatedAt),
		}
		if err := s.upsert(ctx, s.friendships, ent); err != nil {
			return err
		}
	}
	return nil
}

func (s *Tables) DeleteFriendship(ctx context.Context, f domain.Friendship) error {
	for _, side := range [][2]string{{f.RequesterID, f.AddresseeID}, {f.AddresseeID, f.RequesterID}} {
		if _, err := s.friendships.DeleteEntity(ctx, side[0], side[1], nil); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

// --- goals ---

func (s *Tables) fetchGoalEntities(ctx context.Context, userID string) ([]goalEntity, error) {
	var out []goalEntity
	err := s.listPartition(ctx, s.goals, "PartitionKey eq "+odataString(userID), func(data []byte) error {
		var ent goalEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		out = append(out, ent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func goalFromEntity(ent goalEntity) domain.Goal {
	return domain.Goal{ID: ent.RowKey, Title: ent.Title, Category: ent.Category, Progress: ent.Progress, Completed: ent.Completed}
}

func (s *Tables) FetchGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	ents, err := s.fetchGoalEntities(ctx, userID)
	if err != nil {
		return nil, err
	}
	goals := make([]domain.Goal, 0, len(ents))
	for _, ent := range ents {
		goals = append(goals, goalFromEntity(ent))
	}
	return goals, nil
}

func (s *Tables) CreateGoal(ctx context.Context, userID string, g domain.Goal) error {
	ents, err := s.fetchGoalEntities(ctx, userID)
	if err != nil {
		return err
	}
	pos := 0
	if n := len(ents); n > 0 {
		pos = ents[n-1].Position + 1
	}
	payload, err := json.Marshal(goalEntity{
		Entity:    aztables.Entity{PartitionKey: userID, RowKey: g.ID},
		Title:     g.Title,
		Category:  g.Category,
		Progress:  domain.ClampProgress(g.Progress),
		Completed: g.Completed,
		Position:  pos,
	})
	if err != nil {
		return err
	}
	_, err = s.goals.AddEntity(ctx, payload, nil)
	return err
}

func (s *Tables) UpdateGoal(ctx context.Context, userID, goalID string, upd domain.GoalUpdate) (domain.Goal, error) {
	resp, err := s.goals.GetEntity(ctx, userID, goalID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Goal{}, ErrNotFound
		}
		return domain.Goal{}, err
	}
	var ent goalEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Goal{}, err
	}
	g := upd.Apply(goalFromEntity(ent))
	ent.Title, ent.Category, ent.Progress, ent.Completed = g.Title, g.Category, g.Progress, g.Completed
	if err := s.upsert(ctx, s.goals, ent); err != nil {
		return domain.Goal{}, err
	}
	return g, nil
}

func (s *Tables) DeleteGoal(ctx context.Context, userID, goalID string) error {
	_, err := s.goals.DeleteEntity(ctx, userID, goalID, nil)
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

// --- achievements ---

func (s *Tables) FetchAchievements(ctx context.Context, userID string) (map[string]time.Time, error) {
	out := map[string]time.Time{}
	err := s.listPartition(ctx, s.achievements, "PartitionKey eq "+odataString(userID), func(data []byte) error {
		var ent achievementEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		out[ent.RowKey] = parseTime(ent.UnlockedAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UnlockAchievement records key for the user and reports whether it was new.
func (s *Tables) UnlockAchievement(ctx context.Context, userID, key string, at time.Time) (bool, error) {
	payload, err := json.Marshal(achievementEntity{
		Entity:     aztables.Entity{PartitionKey: userID, RowKey: key},
		UnlockedAt: formatTime(at),
	})
	if err != nil {
		return false, err
	}
	if _, err := s.achievements.AddEntity(ctx, payload, nil); err != nil {
		if isAlreadyExists(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

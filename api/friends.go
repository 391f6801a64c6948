package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tessera/domain"
	"tessera/matrix"
)

const searchLimit = 20

const (
	actionSearch  = "search"
	actionRequest = "request"
	actionRespond = "respond"
	actionRemove  = "remove"
)

type friendsAction struct {
	Action       string `json:"action"`
	Query        string `json:"query,omitempty"`
	AddresseeID  string `json:"addresseeId,omitempty"`
	FriendshipID string `json:"friendshipId,omitempty"`
	Status       string `json:"status,omitempty"`
	FriendID     string `json:"friendId,omitempty"`
}

// userSummary is the public view of another account.
type userSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type friendRequest struct {
	ID          string       `json:"id"`
	User        *userSummary `json:"user"`
	RequesterID string       `json:"requester_id,omitempty"`
	AddresseeID string       `json:"addressee_id,omitempty"`
}

type friendsResponse struct {
	Friends     []domain.Friend `json:"friends"`
	Incoming    []friendRequest `json:"incoming"`
	Outgoing    []friendRequest `json:"outgoing"`
	Leaderboard []domain.Friend `json:"leaderboard"`
}

type friendDashboard struct {
	Tasks            []domain.Task       `json:"tasks"`
	CellData         map[string]string   `json:"cellData"`
	TimeDistribution map[string]int      `json:"timeDistribution"`
	TotalHours       int                 `json:"totalHours"`
	PieChartSegments []matrix.PieSegment `json:"pieChartSegments"`
	WeeklyData       []matrix.WeekBucket `json:"weeklyData"`
}

var errForbidden = errors.New("forbidden")

func summarize(u *domain.User) *userSummary {
	if u == nil {
		return nil
	}
	return &userSummary{ID: u.ID, Email: u.Email, FullName: u.FullName, Avatar: u.AvatarURL}
}

// hoursThisWeek counts the user's entries in the week containing today.
func hoursThisWeek(ctx context.Context, cfg *Config, userID string) (int, error) {
	now := cfg.now()
	entries, err := cfg.Store.FetchEntries(ctx, userID, now.Year())
	if err != nil {
		return 0, err
	}
	week := dayIndex(now) / 7
	n := 0
	for _, e := range entries {
		if e.DayIndex/7 == week {
			n++
		}
	}
	return n, nil
}

func getFriends(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		ctx := c.Request().Context()
		friendships, err := cfg.Store.FriendshipsFor(ctx, userID)
		if err != nil {
			return serverError(c, cfg, err)
		}

		resp := friendsResponse{
			Friends:  []domain.Friend{},
			Incoming: []friendRequest{},
			Outgoing: []friendRequest{},
		}
		for _, f := range friendships {
			otherID := f.Other(userID)
			other, err := cfg.Store.UserByID(ctx, otherID)
			if err != nil {
				return serverError(c, cfg, err)
			}
			switch {
			case f.Status == domain.FriendshipAccepted:
				friend := domain.Friend{ID: otherID, FriendshipID: f.ID, Status: f.Status}
				if other != nil {
					friend.Name = other.DisplayName()
					friend.Avatar = other.AvatarURL
				}
				if friend.HoursThisWeek, err = hoursThisWeek(ctx, cfg, otherID); err != nil {
					return serverError(c, cfg, err)
				}
				resp.Friends = append(resp.Friends, friend)
			case f.Status == domain.FriendshipPending && f.AddresseeID == userID:
				resp.Incoming = append(resp.Incoming, friendRequest{ID: f.ID, User: summarize(other), RequesterID: f.RequesterID})
			case f.Status == domain.FriendshipPending:
				resp.Outgoing = append(resp.Outgoing, friendRequest{ID: f.ID, User: summarize(other), AddresseeID: f.AddresseeID})
			}
		}

		self := domain.Friend{ID: userID, Status: domain.FriendshipAccepted}
		if me, err := cfg.Store.UserByID(ctx, userID); err == nil && me != nil {
			self.Name = me.DisplayName()
			self.Avatar = me.AvatarURL
		}
		if self.HoursThisWeek, err = hoursThisWeek(ctx, cfg, userID); err != nil {
			return serverError(c, cfg, err)
		}
		resp.Leaderboard = append([]domain.Friend{self}, resp.Friends...)
		sort.SliceStable(resp.Leaderboard, func(i, j int) bool {
			return resp.Leaderboard[i].HoursThisWeek > resp.Leaderboard[j].HoursThisWeek
		})
		return c.JSON(http.StatusOK, resp)
	}
}

func postFriends(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		var req friendsAction
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		switch req.Action {
		case actionSearch:
			return searchFriends(c, cfg, userID, req)
		case actionRequest:
			return requestFriend(c, cfg, userID, req)
		case actionRespond:
			return respondFriend(c, cfg, userID, req)
		case actionRemove:
			return removeFriend(c, cfg, userID, req)
		}
		return jsonError(c, http.StatusBadRequest, "Unknown action")
	}
}

func searchFriends(c echo.Context, cfg *Config, userID string, req friendsAction) error {
	q := strings.TrimSpace(req.Query)
	out := []userSummary{}
	if q == "" {
		return c.JSON(http.StatusOK, dataResponse{Data: out})
	}
	users, err := cfg.Store.SearchUsers(c.Request().Context(), q, searchLimit+1)
	if err != nil {
		return serverError(c, cfg, err)
	}
	for i := range users {
		if users[i].ID == userID {
			continue
		}
		out = append(out, *summarize(&users[i]))
		if len(out) == searchLimit {
			break
		}
	}
	return c.JSON(http.StatusOK, dataResponse{Data: out})
}

func requestFriend(c echo.Context, cfg *Config, userID string, req friendsAction) error {
	ctx := c.Request().Context()
	target := strings.TrimSpace(req.AddresseeID)
	if target == "" {
		return jsonError(c, http.StatusBadRequest, "Missing addresseeId")
	}
	if target == userID {
		return jsonError(c, http.StatusBadRequest, "Cannot befriend yourself")
	}
	other, err := cfg.Store.UserByID(ctx, target)
	if err != nil {
		return serverError(c, cfg, err)
	}
	if other == nil {
		return jsonError(c, http.StatusNotFound, "User not found")
	}
	existing, err := cfg.Store.FriendshipBetween(ctx, userID, target)
	if err != nil {
		return serverError(c, cfg, err)
	}
	if existing != nil {
		return c.JSON(http.StatusOK, dataResponse{Data: existing})
	}
	now := cfg.now().UTC()
	f := domain.Friendship{
		ID:          uuid.NewString(),
		RequesterID: userID,
		AddresseeID: target,
		Status:      domain.FriendshipPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := cfg.Store.SaveFriendship(ctx, f); err != nil {
		return serverError(c, cfg, err)
	}
	return c.JSON(http.StatusOK, dataResponse{Data: f})
}

func respondFriend(c echo.Context, cfg *Config, userID string, req friendsAction) error {
	ctx := c.Request().Context()
	if req.FriendshipID == "" {
		return jsonError(c, http.StatusBadRequest, "Missing friendshipId")
	}
	status := domain.FriendshipStatus(req.Status)
	if !status.Valid() || status == domain.FriendshipPending {
		return jsonError(c, http.StatusBadRequest, "Invalid status")
	}
	friendships, err := cfg.Store.FriendshipsFor(ctx, userID)
	if err != nil {
		return serverError(c, cfg, err)
	}
	var found *domain.Friendship
	for i := range friendships {
		if friendships[i].ID == req.FriendshipID {
			found = &friendships[i]
			break
		}
	}
	if found == nil {
		return jsonError(c, http.StatusNotFound, "Friend request not found")
	}
	if found.AddresseeID != userID {
		return jsonError(c, http.StatusForbidden, "Forbidden")
	}
	found.Status = status
	found.UpdatedAt = cfg.now().UTC()
	if err := cfg.Store.SaveFriendship(ctx, *found); err != nil {
		return serverError(c, cfg, err)
	}
	return c.JSON(http.StatusOK, dataResponse{Data: found})
}

func removeFriend(c echo.Context, cfg *Config, userID string, req friendsAction) error {
	ctx := c.Request().Context()
	if req.FriendID == "" {
		return jsonError(c, http.StatusBadRequest, "Missing friendId")
	}
	existing, err := cfg.Store.FriendshipBetween(ctx, userID, req.FriendID)
	if err != nil {
		return serverError(c, cfg, err)
	}
	if existing == nil {
		return jsonError(c, http.StatusNotFound, "Friend not found")
	}
	if err := cfg.Store.DeleteFriendship(ctx, *existing); err != nil {
		return serverError(c, cfg, err)
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

// canView reports whether viewer may see target's matrix.
func canView(ctx context.Context, cfg *Config, viewer, target string) error {
	if viewer == target {
		return nil
	}
	f, err := cfg.Store.FriendshipBetween(ctx, viewer, target)
	if err != nil {
		return err
	}
	if f == nil || f.Status != domain.FriendshipAccepted {
		return errForbidden
	}
	return nil
}

func getFriendDashboard(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		viewerID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		targetID := c.Param("id")
		ctx := c.Request().Context()
		if err := canView(ctx, cfg, viewerID, targetID); err != nil {
			if errors.Is(err, errForbidden) {
				cfg.Logger.WithField("viewer", viewerID).WithField("target", targetID).Debug("friend dashboard denied")
				return jsonError(c, http.StatusForbidden, "Forbidden")
			}
			return serverError(c, cfg, err)
		}
		year, ok := yearParam(c, cfg)
		if !ok {
			return jsonError(c, http.StatusBadRequest, "Invalid year")
		}

		tasks, err := cfg.Store.FetchTasks(ctx, targetID)
		if err != nil {
			return serverError(c, cfg, err)
		}
		entries, err := cfg.Store.FetchEntries(ctx, targetID, year)
		if err != nil {
			return serverError(c, cfg, err)
		}
		cells := matrix.FromEntries(entries)
		proj := matrix.Project(cells, tasks, false)

		cellData := make(map[string]string, len(cells))
		for k, taskID := range cells {
			cellData[k.String()] = taskID
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return c.JSON(http.StatusOK, friendDashboard{
			Tasks:            tasks,
			CellData:         cellData,
			TimeDistribution: proj.TimeDistribution,
			TotalHours:       proj.TotalHours,
			PieChartSegments: proj.PieChartSegments,
			WeeklyData:       proj.WeeklyData,
		})
	}
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tessera/domain"
	"tessera/storage"
)

type createGoalRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Progress int    `json:"progress"`
}

type updateGoalRequest struct {
	GoalID  string            `json:"goalId"`
	Updates domain.GoalUpdate `json:"updates"`
}

type goalIDRequest struct {
	GoalID string `json:"goalId"`
}

func getGoals(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		goals, err := cfg.Store.FetchGoals(c.Request().Context(), userID)
		if err != nil {
			return serverError(c, cfg, err)
		}
		if goals == nil {
			goals = []domain.Goal{}
		}
		return c.JSON(http.StatusOK, dataResponse{Data: goals})
	}
}

func postGoal(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		var req createGoalRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return jsonError(c, http.StatusBadRequest, "Missing title")
		}
		progress := domain.ClampProgress(req.Progress)
		goal := domain.Goal{
			ID:        uuid.NewString(),
			Title:     title,
			Category:  strings.TrimSpace(req.Category),
			Progress:  progress,
			Completed: progress == 100,
		}
		if err := cfg.Store.CreateGoal(c.Request().Context(), userID, goal); err != nil {
			return serverError(c, cfg, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: goal})
	}
}

func putGoal(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		var req updateGoalRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		if req.GoalID == "" {
			return jsonError(c, http.StatusBadRequest, "Missing goalId")
		}
		goal, err := cfg.Store.UpdateGoal(c.Request().Context(), userID, req.GoalID, req.Updates)
		if errors.Is(err, storage.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "Goal not found")
		}
		if err != nil {
			return serverError(c, cfg, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: goal})
	}
}

func deleteGoal(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		var req goalIDRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		if req.GoalID == "" {
			return jsonError(c, http.StatusBadRequest, "Missing goalId")
		}
		err = cfg.Store.DeleteGoal(c.Request().Context(), userID, req.GoalID)
		if errors.Is(err, storage.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "Goal not found")
		}
		if err != nil {
			return serverError(c, cfg, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

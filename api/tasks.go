package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tessera/domain"
	"tessera/storage"
)

type tasksResponse struct {
	Data          []domain.Task `json:"data"`
	LastTaskOrder []string      `json:"last_task_order"`
}

type createTaskRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Shortcut string `json:"shortcut"`
}

type updateTaskRequest struct {
	TaskID  string            `json:"taskId"`
	Updates domain.TaskUpdate `json:"updates"`
}

type taskIDRequest struct {
	TaskID string `json:"taskId"`
}

type taskOrderRequest struct {
	Order []string `json:"order"`
}

func getTasks(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, cfg.Logger, "/api/tasks")
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := authenticate(c, cfg.Auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return unauthorized(c)
		}

		storeStart := time.Now()
		tasks, fetchErr := cfg.Store.FetchTasks(ctx, userID)
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			return serverError(c, cfg, fetchErr)
		}
		user, userErr := cfg.Store.UserByID(ctx, userID)
		metrics.ObserveStore(time.Since(storeStart))
		if userErr != nil {
			metrics.SetErrorStage("storage")
			return serverError(c, cfg, userErr)
		}
		metrics.SetItems(len(tasks))

		resp := tasksResponse{Data: tasks}
		if user != nil && len(user.LastTaskOrder) > 0 {
			resp.LastTaskOrder = user.LastTaskOrder
		}
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		task := domain.Task{
			ID:       strings.TrimSpace(req.ID),
			Name:     strings.TrimSpace(req.Name),
			Color:    req.Color,
			Shortcut: req.Shortcut,
		}
		if task.Name == "" {
			return jsonError(c, http.StatusBadRequest, "Missing name")
		}
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		if task.Color == "" {
			task.Color = domain.DefaultTaskColor
		}
		if err := cfg.Store.CreateTasks(c.Request().Context(), userID, []domain.Task{task}); err != nil {
			return serverError(c, cfg, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: task})
	}
}

func putTask(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		if req.TaskID == "" {
			return jsonError(c, http.StatusBadRequest, "Missing taskId")
		}
		if req.Updates.Name != nil && strings.TrimSpace(*req.Updates.Name) == "" {
			return jsonError(c, http.StatusBadRequest, "Missing name")
		}
		task, err := cfg.Store.UpdateTask(c.Request().Context(), userID, req.TaskID, req.Updates)
		if errors.Is(err, storage.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "Task not found")
		}
		if err != nil {
			return serverError(c, cfg, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: task})
	}
}

func deleteTask(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		var req taskIDRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		if req.TaskID == "" {
			return jsonError(c, http.StatusBadRequest, "Missing taskId")
		}
		err = cfg.Store.DeleteTask(c.Request().Context(), userID, req.TaskID)
		if errors.Is(err, storage.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "Task not found")
		}
		if err != nil {
			return serverError(c, cfg, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func putTaskOrder(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		var req taskOrderRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		if req.Order == nil {
			req.Order = []string{}
		}
		err = cfg.Store.SetLastTaskOrder(c.Request().Context(), userID, req.Order)
		if errors.Is(err, storage.ErrNotFound) {
			return unauthorized(c)
		}
		if err != nil {
			return serverError(c, cfg, err)
		}
		return c.JSON(http.StatusOK, successResponse{Success: true, Count: len(req.Order)})
	}
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"tessera/matrix"
)

type analyticsResponse struct {
	Year int `json:"year"`
	matrix.Projection
}

func getAnalytics(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), cfg.Logger, "/api/analytics")
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		userID, authErr := authenticate(c, cfg.Auth)
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return unauthorized(c)
		}
		year, ok := yearParam(c, cfg)
		if !ok {
			metrics.SetErrorStage("invalid_year")
			return jsonError(c, http.StatusBadRequest, "Invalid year")
		}
		sortSegments, _ := strconv.ParseBool(c.QueryParam("sort"))

		storeStart := time.Now()
		tasks, fetchErr := cfg.Store.FetchTasks(ctx, userID)
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			return serverError(c, cfg, fetchErr)
		}
		entries, fetchErr := cfg.Store.FetchEntries(ctx, userID, year)
		metrics.ObserveStore(time.Since(storeStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			return serverError(c, cfg, fetchErr)
		}
		metrics.SetItems(len(entries))

		proj := matrix.Project(matrix.FromEntries(entries), tasks, sortSegments)
		return c.JSON(http.StatusOK, analyticsResponse{Year: year, Projection: proj})
	}
}

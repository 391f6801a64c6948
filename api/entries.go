package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tessera/domain"
)

const idempotencyHeader = "Idempotency-Key"

type saveEntriesRequest struct {
	Entries []domain.Entry `json:"entries"`
}

type saveEntriesResponse struct {
	Data      []domain.Entry `json:"data"`
	Duplicate bool           `json:"duplicate,omitempty"`
}

type deleteEntriesRequest struct {
	Cells []domain.Cell `json:"cells"`
	Year  int           `json:"year"`
}

func getEntries(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), cfg.Logger, "/api/entries")
		c.SetRequest(c.Request().WithContext(ctx))
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
		year, ok := yearParam(c, cfg)
		if !ok {
			metrics.SetErrorStage("invalid_year")
			return jsonError(c, http.StatusBadRequest, "Invalid year")
		}

		storeStart := time.Now()
		entries, fetchErr := cfg.Store.FetchEntries(ctx, userID, year)
		metrics.ObserveStore(time.Since(storeStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			return serverError(c, cfg, fetchErr)
		}
		if entries == nil {
			entries = []domain.Entry{}
		}
		metrics.SetItems(len(entries))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, dataResponse{Data: entries})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postEntries(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), cfg.Logger, "/api/entries")
		c.SetRequest(c.Request().WithContext(ctx))
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

		var req saveEntriesRequest
		if decErr := decodeBody(c, &req); decErr != nil {
			metrics.SetErrorStage("decode")
			return jsonError(c, http.StatusBadRequest, decErr.Error())
		}
		if len(req.Entries) == 0 {
			metrics.SetErrorStage("validate")
			return jsonError(c, http.StatusBadRequest, "No entries provided")
		}
		defaultYear := cfg.now().Year()
		for i := range req.Entries {
			e := &req.Entries[i]
			if e.Year == 0 {
				e.Year = defaultYear
			}
			if e.TaskID == "" || !validYear(e.Year) || !validCell(e.DayIndex, e.Hour) {
				metrics.SetErrorStage("validate")
				return jsonError(c, http.StatusBadRequest, "Invalid entry")
			}
		}
		metrics.SetItems(len(req.Entries))

		counts := countByYear(req.Entries)
		years := sortedYears(counts)
		key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
		claimed := false
		if key != "" && cfg.Deduper != nil {
			fresh, dedupeErr := cfg.Deduper.Claim(ctx, userID, years, key, len(req.Entries))
			if dedupeErr != nil {
				cfg.Logger.WithField("user", userID).WithError(dedupeErr).Warn("dedupe unavailable; applying entries")
			} else if !fresh {
				return c.JSON(http.StatusOK, saveEntriesResponse{Data: req.Entries, Duplicate: true})
			} else {
				claimed = true
			}
		}

		storeStart := time.Now()
		saveErr := cfg.Store.SaveEntries(ctx, userID, req.Entries)
		metrics.ObserveStore(time.Since(storeStart))
		if saveErr != nil {
			if claimed {
				if rerr := cfg.Deduper.Release(context.Background(), userID, years, key); rerr != nil {
					cfg.Logger.Errorf("dedupe rollback failed, err : %v, key: %s, user: %s", rerr, key, userID)
				}
			}
			metrics.SetErrorStage("storage")
			return serverError(c, cfg, saveErr)
		}

		publishEntryEvents(cfg, userID, domain.EntriesSaved, counts)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, saveEntriesResponse{Data: req.Entries})
		metrics.ObserveEncode(time.Since(encodeStart))
		return err
	}
}

func deleteEntries(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), cfg.Logger, "/api/entries")
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		userID, authErr := authenticate(c, cfg.Auth)
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return unauthorized(c)
		}

		var req deleteEntriesRequest
		if decErr := decodeBody(c, &req); decErr != nil {
			metrics.SetErrorStage("decode")
			return jsonError(c, http.StatusBadRequest, decErr.Error())
		}
		if len(req.Cells) == 0 {
			metrics.SetErrorStage("validate")
			return jsonError(c, http.StatusBadRequest, "No cells provided")
		}
		year := req.Year
		if year == 0 {
			var ok bool
			if year, ok = yearParam(c, cfg); !ok {
				metrics.SetErrorStage("invalid_year")
				return jsonError(c, http.StatusBadRequest, "Invalid year")
			}
		}
		if !validYear(year) {
			metrics.SetErrorStage("invalid_year")
			return jsonError(c, http.StatusBadRequest, "Invalid year")
		}
		for _, cell := range req.Cells {
			if !validCell(cell.DayIndex, cell.Hour) {
				metrics.SetErrorStage("validate")
				return jsonError(c, http.StatusBadRequest, "Invalid cell")
			}
		}
		metrics.SetItems(len(req.Cells))

		storeStart := time.Now()
		delErr := cfg.Store.DeleteEntries(ctx, userID, year, req.Cells)
		metrics.ObserveStore(time.Since(storeStart))
		if delErr != nil {
			metrics.SetErrorStage("storage")
			return serverError(c, cfg, delErr)
		}

		publishEntryEvents(cfg, userID, domain.EntriesDeleted, map[int]int{year: len(req.Cells)})
		return c.JSON(http.StatusOK, successResponse{Success: true, Count: len(req.Cells)})
	}
}

func countByYear(entries []domain.Entry) map[int]int {
	out := make(map[int]int, 1)
	for _, e := range entries {
		out[e.Year]++
	}
	return out
}

func sortedYears(counts map[int]int) []int {
	years := make([]int, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// publishEntryEvents emits one event per affected year.
func publishEntryEvents(cfg *Config, userID, typ string, counts map[int]int) {
	if cfg.Events == nil {
		return
	}
	for _, y := range sortedYears(counts) {
		ev := domain.Event{
			ID:     uuid.NewString(),
			Type:   typ,
			UserID: userID,
			Year:   y,
			Count:  counts[y],
			Time:   cfg.clock.next(cfg.now()),
		}
		if err := cfg.Events.Publish(ev); err != nil {
			cfg.Logger.WithFields(log.Fields{
				"user":  userID,
				"type":  typ,
				"year":  y,
				"event": ev.ID,
			}).WithError(err).Error("event publish failed")
		}
	}
}

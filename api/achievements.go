package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tessera/domain"
)

func getAchievements(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		unlocked, err := cfg.Store.FetchAchievements(c.Request().Context(), userID)
		if err != nil {
			return serverError(c, cfg, err)
		}
		out := make([]domain.Achievement, 0, len(domain.Achievements))
		for _, def := range domain.Achievements {
			a := domain.Achievement{AchievementDef: def}
			if at, ok := unlocked[def.Key]; ok {
				at := at
				a.Unlocked = true
				a.UnlockedAt = &at
			}
			out = append(out, a)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: out})
	}
}

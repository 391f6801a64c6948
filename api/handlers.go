package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"tessera/matrix"
)

const maxBodySize = 1 << 20

var errInvalidBody = errors.New("invalid body")

// Config carries the dependencies of the HTTP handlers.
type Config struct {
	Store   Storage
	Auth    Authenticator
	Deduper Deduper       // optional
	Events  *Publisher    // optional
	Unlocks *UnlockBroker // optional; enables the achievement stream
	Logger  *log.Logger

	SecureCookie bool
	TokenTTL     time.Duration
	BcryptCost   int
	Now          func() time.Time

	clock *eventClock
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, cfg Config) {
	if cfg.Store == nil || cfg.Auth == nil {
		panic("api.Register: store and authenticator are required")
	}
	if cfg.Logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	cfg.clock = &eventClock{}
	c := &cfg

	e.POST("/api/auth", postAuth(c))
	e.GET("/api/auth", getAuth(c))
	e.POST("/api/auth/signout", signOut(c))
	e.GET("/api/auth/signout", signOut(c))

	e.GET("/api/tasks", getTasks(c))
	e.POST("/api/tasks", postTask(c))
	e.PUT("/api/tasks", putTask(c))
	e.DELETE("/api/tasks", deleteTask(c))
	e.PUT("/api/tasks/order", putTaskOrder(c))

	e.GET("/api/entries", getEntries(c))
	e.POST("/api/entries", postEntries(c))
	e.DELETE("/api/entries", deleteEntries(c))

	e.GET("/api/analytics", getAnalytics(c))

	e.GET("/api/friends", getFriends(c))
	e.POST("/api/friends", postFriends(c))
	e.GET("/api/friends/:id", getFriendDashboard(c))

	e.GET("/api/goals", getGoals(c))
	e.POST("/api/goals", postGoal(c))
	e.PUT("/api/goals", putGoal(c))
	e.DELETE("/api/goals", deleteGoal(c))

	e.GET("/api/achievements", getAchievements(c))
	if cfg.Unlocks != nil {
		e.GET("/api/achievements/stream", streamAchievements(c))
	}

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}

func unauthorized(c echo.Context) error {
	return jsonError(c, http.StatusUnauthorized, "Unauthorized")
}

// serverError logs err against the request and answers 500.
func serverError(c echo.Context, cfg *Config, err error) error {
	cfg.Logger.WithFields(log.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).WithError(err).Error("request failed")
	return jsonError(c, http.StatusInternalServerError, "Server error")
}

// decodeBody strictly decodes a bounded JSON request body into dst.
func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errInvalidBody
	}
	return nil
}

// yearParam reads ?year=, defaulting to the current year.
func yearParam(c echo.Context, cfg *Config) (int, bool) {
	raw := strings.TrimSpace(c.QueryParam("year"))
	if raw == "" {
		return cfg.now().Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || !validYear(year) {
		return 0, false
	}
	return year, true
}

func validYear(year int) bool {
	return year >= 1970 && year <= 9999
}

func validCell(day, hour int) bool {
	return matrix.Key(day, hour).Valid()
}

// dayIndex is the zero-based day of the year for t.
func dayIndex(t time.Time) int {
	return t.YearDay() - 1
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"tessera/domain"
	"tessera/storage"
)

const authModeSignup = "signup"

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Mode     string `json:"mode"`
}

type authResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

func postAuth(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req authRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, err.Error())
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Email == "" || req.Password == "" {
			return jsonError(c, http.StatusBadRequest, "Missing email or password")
		}

		ctx := c.Request().Context()
		var (
			user *domain.User
			err  error
		)
		if req.Mode == authModeSignup {
			user, err = signUp(ctx, cfg, req)
		} else {
			user, err = signIn(ctx, cfg, req)
		}
		if err != nil {
			if errors.Is(err, storage.ErrEmailTaken) {
				return jsonError(c, http.StatusBadRequest, "Email already in use")
			}
			if errors.Is(err, errInvalidCredentials) {
				return jsonError(c, http.StatusBadRequest, "Invalid credentials")
			}
			return serverError(c, cfg, err)
		}

		token, err := cfg.Auth.IssueToken(user.ID, user.Email)
		if err != nil {
			return serverError(c, cfg, err)
		}
		c.SetCookie(sessionCookie(cfg, token, int(cfg.TokenTTL.Seconds())))
		return c.JSON(http.StatusOK, authResponse{User: user, Token: token})
	}
}

var errInvalidCredentials = errors.New("invalid credentials")

func signUp(ctx context.Context, cfg *Config, req authRequest) (*domain.User, error) {
	existing, err := cfg.Store.UserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, storage.ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		CreatedAt:    cfg.now().UTC(),
	}
	if err := cfg.Store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if err := cfg.Store.CreateTasks(ctx, user.ID, domain.DefaultTasks()); err != nil {
		cfg.Logger.WithField("user", user.ID).WithError(err).Warn("default task seed failed")
	}
	cfg.Logger.WithField("user", user.ID).Info("user signed up")
	return &user, nil
}

func signIn(ctx context.Context, cfg *Config, req authRequest) (*domain.User, error) {
	user, err := cfg.Store.UserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}
	return user, nil
}

func getAuth(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}
		user, err := cfg.Store.UserByID(c.Request().Context(), userID)
		if err != nil {
			return serverError(c, cfg, err)
		}
		if user == nil {
			return unauthorized(c)
		}
		return c.JSON(http.StatusOK, authResponse{User: user, Token: rawTokenFromRequest(c.Request())})
	}
}

func signOut(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.SetCookie(sessionCookie(cfg, "", -1))
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

func sessionCookie(cfg *Config, token string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

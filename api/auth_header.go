package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const tokenCookieName = "token"

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// bearerTokenFromString extracts a compact JWT from an Authorization value.
func bearerTokenFromString(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(trimmed, " ")
	if !ok || scheme != "Bearer" {
		return "", errBadAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// authHeaderFromRequest returns the Authorization header, or synthesises one
// from the session cookie when the header is absent.
func authHeaderFromRequest(req *http.Request) string {
	if h := req.Header.Get(echo.HeaderAuthorization); h != "" {
		return h
	}
	if ck, err := req.Cookie(tokenCookieName); err == nil && ck.Value != "" {
		return "Bearer " + ck.Value
	}
	return ""
}

// rawTokenFromRequest returns the token the caller authenticated with.
func rawTokenFromRequest(req *http.Request) string {
	token, err := bearerTokenFromString(authHeaderFromRequest(req))
	if err != nil {
		return ""
	}
	return token
}

func authenticate(c echo.Context, auth Authenticator) (string, error) {
	return auth.UserIDFromAuthHeader(authHeaderFromRequest(c.Request()))
}

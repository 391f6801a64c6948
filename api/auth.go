package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	// DefaultTokenTTL is the lifetime of issued session tokens.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Auth issues HS256 session tokens and validates them. When JWKS is set,
// RS256 tokens from that external issuer are accepted as well.
type Auth struct {
	Secret   []byte
	TokenTTL time.Duration
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance. It panics on an empty secret.
func NewAuth(secret []byte, ttl time.Duration, jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	if len(secret) == 0 {
		panic("api.NewAuth: signing secret must be set")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	methods := []string{"HS256"}
	if jwks != nil {
		methods = append(methods, "RS256")
	}
	return &Auth{
		Secret:      secret,
		TokenTTL:    ttl,
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods(methods), jwt.WithoutClaimsValidation()),
		keyCacheTTL: defaultJWKSCacheTTL,
		now:         time.Now,
	}
}

// IssueToken signs a session token for the user.
func (a *Auth) IssueToken(userID, email string) (string, error) {
	if userID == "" {
		return "", errors.New("missing user id")
	}
	now := a.now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"id":    userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(a.TokenTTL).Unix(),
	}
	if a.Issuer != "" {
		claims["iss"] = a.Issuer
	}
	if a.Audience != "" {
		claims["aud"] = a.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer validates a compact token and returns its subject.
func (a *Auth) UserIDFromBearer(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", errBadAuthorization
	}

	parsedToken, err := a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return a.Secret, nil
		case *jwt.SigningMethodRSA:
			return a.keyForToken(t)
		}
		return nil, errors.New("invalid signing method")
	})
	if err != nil {
		return "", err
	}

	// time-based claims are checked against the injectable clock below
	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := a.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return "", errors.New("invalid issuer")
	}

	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id, nil
	}
	return "", errors.New("missing sub")
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"tessera/domain"
	"tessera/storage"
)

var testNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

type testServer struct {
	e     *echo.Echo
	store *storage.SQLite
	auth  *Auth
	hook  *test.Hook
	cfg   Config
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), ":memory:", storage.DefaultTableNames())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	auth := NewAuth([]byte("test-secret"), time.Hour, nil, "", "")
	auth.now = func() time.Time { return testNow }

	cfg := Config{
		Store:      store,
		Auth:       auth,
		Logger:     logger,
		BcryptCost: bcrypt.MinCost,
		Now:        func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &testServer{e: newEcho(cfg), store: store, auth: auth, hook: hook, cfg: cfg}
}

func newEcho(cfg Config) *echo.Echo {
	e := echo.New()
	Register(e, cfg)
	return e
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithHeaders(t, method, path, body, token, nil)
}

func (s *testServer) doWithHeaders(t *testing.T, method, path string, body any, token string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf.Write(raw)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

// signUp registers a user through the API and returns its id and token.
func (s *testServer) signUp(t *testing.T, email, name string) (string, string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth", map[string]string{
		"email": email, "password": "hunter22", "name": name, "mode": "signup",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("signup %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var resp authResponse
	decodeResponse(t, rec, &resp)
	if resp.User == nil || resp.Token == "" {
		t.Fatalf("signup returned no user or token: %s", rec.Body.String())
	}
	return resp.User.ID, resp.Token
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	decodeResponse(t, rec, &resp)
	return resp.Error
}

// Package config reads the service configuration from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tessera/storage"
)

const (
	DriverAzure  = "azure"
	DriverSQLite = "sqlite"
)

// Config is everything the serve, worker and init-storage commands need.
type Config struct {
	Driver         string
	ConnString     string
	SQLitePath     string
	Tables         storage.TableNames
	EventsQueue    string
	RedisConn      string
	CacheTTL       time.Duration
	DeduperTTL     time.Duration
	JWTSecret      string
	TokenTTL       time.Duration
	JWKSURL        string
	Audience       string
	Issuer         string
	PublishWorkers int
	PublishBuffer  int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
	Port           string
	CookieSecure   bool
	Debug          bool

	PollInterval time.Duration
	MaxDequeue   int
	Channel      string
}

// Lookup matches os.LookupEnv.
type Lookup func(string) (string, bool)

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through env and validates it.
func LoadFrom(env Lookup) (Config, error) {
	r := reader{env: env}
	cfg := Config{
		Driver:     strings.ToLower(r.envString("STORAGE_DRIVER", DriverAzure)),
		ConnString: r.envString("STORAGE_CONNECTION_STRING", ""),
		SQLitePath: r.envString("SQLITE_PATH", "tessera.db"),
		Tables: storage.TableNames{
			Users:        r.envString("USERS_TABLE", "users"),
			Tasks:        r.envString("TASKS_TABLE", "tasks"),
			Entries:      r.envString("ENTRIES_TABLE", "entries"),
			Friendships:  r.envString("FRIENDSHIPS_TABLE", "friendships"),
			Goals:        r.envString("GOALS_TABLE", "goals"),
			Achievements: r.envString("ACHIEVEMENTS_TABLE", "achievements"),
		},
		EventsQueue:    r.envString("EVENTS_QUEUE", "entry-events"),
		RedisConn:      r.envString("REDIS_CONNECTION_STRING", ""),
		CacheTTL:       r.envDur("CACHE_TTL", 10*time.Minute),
		DeduperTTL:     r.envDur("DEDUPER_TTL", 24*time.Hour),
		JWTSecret:      r.envString("JWT_SECRET", "changeme"),
		TokenTTL:       r.envDur("TOKEN_TTL", 7*24*time.Hour),
		JWKSURL:        r.envString("AUTH_JWKS_URL", ""),
		Audience:       r.envString("AUTH_AUDIENCE", ""),
		Issuer:         r.envString("AUTH_ISSUER", ""),
		PublishWorkers: r.envInt("PUBLISH_WORKERS", 4),
		PublishBuffer:  r.envInt("PUBLISH_BUFFER", 256),
		PublishTimeout: r.envDur("PUBLISH_TIMEOUT", 30*time.Second),
		HandoffTimeout: r.envDur("PUBLISH_HANDOFF_TIMEOUT", 15*time.Millisecond),
		Port:           r.envString("PORT", "8080"),
		CookieSecure:   r.envBool("COOKIE_SECURE", false),
		Debug:          r.envBool("DEBUG", false),
		PollInterval:   r.envDur("WORKER_POLL_INTERVAL", time.Second),
		MaxDequeue:     r.envInt("WORKER_MAX_DEQUEUE", 5),
		Channel:        r.envString("ACHIEVEMENTS_CHANNEL", "achievements"),
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverAzure:
		if c.ConnString == "" {
			return errors.New("missing STORAGE_CONNECTION_STRING")
		}
		if c.EventsQueue == "" {
			return errors.New("missing EVENTS_QUEUE")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Driver)
	}
	for _, name := range c.Tables.All() {
		if name == "" {
			return errors.New("table names must not be empty")
		}
	}
	if c.JWTSecret == "" {
		return errors.New("missing JWT_SECRET")
	}
	if c.PublishWorkers <= 0 || c.PublishBuffer <= 0 {
		return errors.New("publisher workers and buffer must be greater than zero")
	}
	if c.MaxDequeue <= 0 {
		return errors.New("invalid WORKER_MAX_DEQUEUE: must be greater than zero")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// RedisOptions parses RedisConn. It accepts a redis:// URL or the
// "host:port,password=...,ssl=true" form. A nil result means redis is off.
func (c Config) RedisOptions() (*redis.Options, error) {
	return ParseRedis(c.RedisConn)
}

// ParseRedis parses a redis connection string.
func ParseRedis(conn string) (*redis.Options, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, nil
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.TrimSpace(parts[0]) == "" || strings.Contains(parts[0], "=") {
		return nil, fmt.Errorf("invalid REDIS_CONNECTION_STRING: missing address")
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}

type reader struct {
	env  Lookup
	errs []error
}

func (r *reader) lookup(key string) (string, bool) {
	v, ok := r.env(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) envString(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

func (r *reader) envInt(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) envDur(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	if d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: must be greater than zero", key))
		return def
	}
	return d
}

func (r *reader) envBool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

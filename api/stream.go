package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tessera/domain"
)

const (
	unlockStreamBuffer = 8
	resubscribeDelay   = time.Second
)

// UnlockBroker fans achievement unlocks out to the streams of the user who
// earned them.
type UnlockBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.AchievementUnlocked]struct{}
}

func NewUnlockBroker() *UnlockBroker {
	return &UnlockBroker{subs: make(map[string]map[chan domain.AchievementUnlocked]struct{})}
}

func (b *UnlockBroker) subscribe(userID string) chan domain.AchievementUnlocked {
	ch := make(chan domain.AchievementUnlocked, unlockStreamBuffer)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan domain.AchievementUnlocked]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *UnlockBroker) unsubscribe(userID string, ch chan domain.AchievementUnlocked) {
	b.mu.Lock()
	delete(b.subs[userID], ch)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
	b.mu.Unlock()
}

// Broadcast delivers u to every open stream of its user. Slow streams miss
// the notification rather than block the caller.
func (b *UnlockBroker) Broadcast(u domain.AchievementUnlocked) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sent := 0
	for ch := range b.subs[u.UserID] {
		select {
		case ch <- u:
			sent++
		default:
		}
	}
	return sent
}

// SubscribeUnlocks relays unlock notifications from a redis channel into
// broker until ctx is cancelled, resubscribing if the channel closes.
func SubscribeUnlocks(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, broker *UnlockBroker) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var u domain.AchievementUnlocked
				if err := sonic.UnmarshalString(msg.Payload, &u); err != nil || u.UserID == "" {
					logger.WithField("channel", channel).Errorf("unable to parse unlock: %v", err)
					continue
				}
				broker.Broadcast(u)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(resubscribeDelay)
	}
}

// streamAchievements holds a server-sent event stream open and writes one
// "achievement" event per unlock. Browsers cannot set headers on an
// EventSource, so a token query parameter is accepted as well.
func streamAchievements(cfg *Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if token := c.QueryParam("token"); token != "" && req.Header.Get(echo.HeaderAuthorization) == "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
		userID, err := authenticate(c, cfg.Auth)
		if err != nil {
			return unauthorized(c)
		}

		res := c.Response()
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return jsonError(c, http.StatusInternalServerError, "Stream unsupported")
		}
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		ch := cfg.Unlocks.subscribe(userID)
		defer cfg.Unlocks.unsubscribe(userID, ch)

		if _, err := res.Write([]byte(": connected\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		ctx := req.Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case u := <-ch:
				data, err := sonic.Marshal(u)
				if err != nil {
					cfg.Logger.WithError(err).Error("encode unlock")
					continue
				}
				if _, err := res.Write([]byte("event: achievement\ndata: ")); err != nil {
					return nil
				}
				if _, err := res.Write(data); err != nil {
					return nil
				}
				if _, err := res.Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

package worker

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tessera/domain"
)

// DefaultChannel is the Redis channel unlock notifications are published on.
const DefaultChannel = "achievements"

type eventApplier interface {
	Apply(ctx context.Context, ev domain.Event) ([]domain.AchievementUnlocked, error)
}

// Processor applies events and announces resulting unlocks on Redis.
type Processor struct {
	applier eventApplier
	redis   *redis.Client
	channel string
	log     *log.Logger
}

// NewProcessor builds a processor. rc may be nil, in which case unlocks are
// only logged.
func NewProcessor(applier eventApplier, rc *redis.Client, channel string, logger *log.Logger) *Processor {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Processor{applier: applier, redis: rc, channel: channel, log: logger}
}

// Process applies ev. Notification failures are logged and do not fail the event.
func (p *Processor) Process(ctx context.Context, ev domain.Event) error {
	unlocked, err := p.applier.Apply(ctx, ev)
	for _, u := range unlocked {
		p.log.WithFields(log.Fields{"user": u.UserID, "achievement": u.Key}).Info("achievement unlocked")
		if p.redis == nil {
			continue
		}
		payload, merr := sonic.MarshalString(u)
		if merr != nil {
			p.log.WithError(merr).Error("encode unlock notification")
			continue
		}
		if perr := p.redis.Publish(ctx, p.channel, payload).Err(); perr != nil {
			p.log.Errorf("Unable to publish unlock %s to %s", u.Key, p.channel)
		}
	}
	return err
}

// Publish lets the processor act as the API's event sink when no queue sits
// between them.
func (p *Processor) Publish(ctx context.Context, ev domain.Event) error {
	return p.Process(ctx, ev)
}

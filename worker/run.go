package worker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"tessera/storage"
)

// Source delivers queued messages.
type Source interface {
	Receive(ctx context.Context) (*storage.Message, error)
	Delete(ctx context.Context, msg *storage.Message) error
}

// RunOptions tune the polling loop.
type RunOptions struct {
	PollInterval time.Duration
	// MaxDequeue is how many deliveries a failing message gets before it is dropped.
	MaxDequeue int64
}

func (o RunOptions) withDefaults() RunOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxDequeue <= 0 {
		o.MaxDequeue = 5
	}
	return o
}

// Run consumes src until ctx is cancelled.
func Run(ctx context.Context, src Source, p *Processor, logger *log.Logger, opts RunOptions) error {
	opts = opts.withDefaults()
	logger.Infof("worker started, poll: %v, max dequeue: %d", opts.PollInterval, opts.MaxDequeue)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		handled, err := Step(ctx, src, p, logger, opts)
		if err != nil {
			logger.WithError(err).Error("worker step failed")
		}
		if handled {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.PollInterval):
		}
	}
}

// Step handles at most one message. It reports whether a message was received.
func Step(ctx context.Context, src Source, p *Processor, logger *log.Logger, opts RunOptions) (bool, error) {
	opts = opts.withDefaults()
	msg, err := src.Receive(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}
	entry := logger.WithFields(log.Fields{"message": msg.ID, "dequeued": msg.Dequeued})

	ev, err := storage.DecodeEvent(msg.Body)
	if err != nil {
		entry.WithError(err).Error("dropping undecodable message")
		return true, deleteMessage(ctx, src, msg, entry)
	}
	entry = entry.WithFields(log.Fields{"user": ev.UserID, "type": ev.Type, "event": ev.ID})

	if err := p.Process(ctx, ev); err != nil {
		if msg.Dequeued >= opts.MaxDequeue {
			entry.WithError(err).Error("dropping event after repeated failures")
			return true, deleteMessage(ctx, src, msg, entry)
		}
		entry.WithError(err).Warn("event failed; leaving for redelivery")
		return true, nil
	}
	entry.Debug("event applied")
	return true, deleteMessage(ctx, src, msg, entry)
}

func deleteMessage(ctx context.Context, src Source, msg *storage.Message, entry *log.Entry) error {
	if err := src.Delete(ctx, msg); err != nil {
		entry.WithError(err).Error("delete message failed")
		return err
	}
	return nil
}

package control

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Watcher applies policy commands published on a redis channel
type Watcher struct {
	redisClient *redis.Client
	controller  Controller
	logger      *zap.Logger
	channel     string
	key         string
}

// NewWatcher creates a watcher. key holds the policy JSON loaded at start,
// channel carries commands.
func NewWatcher(opts *redis.Options, channel, key string, controller Controller, logger *zap.Logger) *Watcher {
	return &Watcher{
		redisClient: redis.NewClient(opts),
		controller:  controller,
		logger:      logger,
		channel:     channel,
		key:         key,
	}
}

// Start loads the stored policy and subscribes to commands. It returns once
// the subscription is set up; commands are handled until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("Starting redis control watcher",
		zap.String("channel", w.channel),
		zap.String("key", w.key))

	w.reload(ctx)

	pubsub := w.redisClient.Subscribe(ctx, w.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				w.handle([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// handle applies one command payload
func (w *Watcher) handle(payload []byte) {
	cmd, err := ParseCommand(payload)
	if err != nil {
		w.logger.Warn("Ignoring invalid control command", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	if err := cmd.Apply(w.controller); err != nil {
		w.logger.Warn("Control command failed", zap.String("op", cmd.Op), zap.Error(err))
		return
	}
	w.logger.Info("Applied control command", zap.String("op", cmd.Op), zap.String("channel", cmd.Channel))
}

// reload applies the policy stored under the key, if any
func (w *Watcher) reload(ctx context.Context) {
	val, err := w.redisClient.Get(ctx, w.key).Result()
	if errors.Is(err, redis.Nil) {
		w.logger.Info("No stored policy in redis, keeping current policy")
		return
	} else if err != nil {
		w.logger.Warn("Failed to fetch stored policy", zap.Error(err))
		return
	}

	var p filter.Policy
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		w.logger.Warn("Invalid stored policy JSON", zap.Error(err))
		return
	}
	if err := w.controller.ApplyPolicy(p); err != nil {
		w.logger.Warn("Invalid stored policy", zap.Error(err))
	}
}

// Close closes the redis client
func (w *Watcher) Close() error {
	return w.redisClient.Close()
}

package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// DefaultChannelPrefix namespaces progress channels.
const DefaultChannelPrefix = "stockimport:progress:"

// RedisBus is a core.Bus over Redis pub/sub, so a client can follow a job
// running on another instance.
type RedisBus struct {
	rdb    *redis.Client
	prefix string
	buffer int
	logger *slog.Logger
}

// NewRedisBus returns a bus publishing on prefix+jobID.
func NewRedisBus(rdb *redis.Client, prefix string, logger *slog.Logger) *RedisBus {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{rdb: rdb, prefix: prefix, buffer: DefaultBuffer, logger: logger}
}

// Channel returns the Redis channel for jobID.
func (b *RedisBus) Channel(jobID string) string {
	return b.prefix + jobID
}

// Publish implements core.Bus.
func (b *RedisBus) Publish(ctx context.Context, s core.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.Channel(s.JobID), payload).Err(); err != nil {
		return fmt.Errorf("publish snapshot %s/%d: %w", s.JobID, s.Seq, err)
	}
	return nil
}

// Subscribe implements core.Bus. The subscription is confirmed before it
// returns, so no snapshot published afterwards is missed.
func (b *RedisBus) Subscribe(ctx context.Context, jobID string) (<-chan core.Snapshot, func(), error) {
	ps := b.rdb.Subscribe(ctx, b.Channel(jobID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", jobID, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan core.Snapshot, b.buffer)

	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				s, err := decodeSnapshot(msg.Payload)
				if err != nil {
					b.logger.Warn("dropping malformed progress message",
						"channel", msg.Channel,
						"error", err,
					)
					continue
				}
				offer(out, s)
				if s.Terminal {
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

func decodeSnapshot(payload string) (core.Snapshot, error) {
	var s core.Snapshot
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.JobID == "" {
		return core.Snapshot{}, errors.New("decode snapshot: missing job id")
	}
	return s, nil
}

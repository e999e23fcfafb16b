package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SeenCache remembers fingerprints that were already stored so repeat
// fetches can skip the insert round trip. It is an optimization only: the
// (source_id, fingerprint) unique index stays the source of truth.
type SeenCache interface {
	// Unseen returns the subset of fps not known for sourceID.
	Unseen(ctx context.Context, sourceID uuid.UUID, fps []string) ([]string, error)
	Mark(ctx context.Context, sourceID uuid.UUID, fps []string) error
}

type nopSeen struct{}

func (nopSeen) Unseen(_ context.Context, _ uuid.UUID, fps []string) ([]string, error) {
	return fps, nil
}

func (nopSeen) Mark(context.Context, uuid.UUID, []string) error { return nil }

type RedisSeen struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisSeen(rdb redis.UniversalClient, ttl time.Duration) *RedisSeen {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisSeen{rdb: rdb, ttl: ttl, prefix: "stancefeed:seen:"}
}

func (s *RedisSeen) key(sourceID uuid.UUID, fp string) string {
	return fmt.Sprintf("%s%s:%s", s.prefix, sourceID, fp)
}

func (s *RedisSeen) Unseen(ctx context.Context, sourceID uuid.UUID, fps []string) ([]string, error) {
	if len(fps) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(fps))
	for i, fp := range fps {
		cmds[i] = pipe.Exists(ctx, s.key(sourceID, fp))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fps, fmt.Errorf("seen cache lookup: %w", err)
	}
	out := make([]string, 0, len(fps))
	for i, cmd := range cmds {
		if cmd.Val() == 0 {
			out = append(out, fps[i])
		}
	}
	return out, nil
}

func (s *RedisSeen) Mark(ctx context.Context, sourceID uuid.UUID, fps []string) error {
	if len(fps) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for _, fp := range fps {
		pipe.SetNX(ctx, s.key(sourceID, fp), 1, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seen cache mark: %w", err)
	}
	return nil
}

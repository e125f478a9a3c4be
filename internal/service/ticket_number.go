package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TicketNumberGenerator yields human-readable ticket numbers in the
// PREFIX-YEAR-NNNN format. Implementations must be safe for concurrent
// use.
type TicketNumberGenerator interface {
	Next(ctx context.Context, now time.Time) (string, error)
}

// RedisSequence issues sequential numbers from a per-year Redis counter,
// so concurrent instances never collide. When Redis is unreachable it
// falls back to a UUID-derived suffix rather than failing the creation.
type RedisSequence struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisSequence constructs the generator. A nil client always takes
// the fallback path.
func NewRedisSequence(client *redis.Client, prefix string, logger *zap.Logger) *RedisSequence {
	if prefix == "" {
		prefix = "TKT"
	}
	return &RedisSequence{client: client, prefix: prefix, logger: logger}
}

// Next returns the next ticket number for the year of now.
func (g *RedisSequence) Next(ctx context.Context, now time.Time) (string, error) {
	year := now.Year()
	if g.client != nil {
		seq, err := g.client.Incr(ctx, fmt.Sprintf("ticket:seq:%d", year)).Result()
		if err == nil {
			return fmt.Sprintf("%s-%d-%04d", g.prefix, year, seq), nil
		}
		if g.logger != nil {
			g.logger.Warn("ticket sequence unavailable, falling back to derived number", zap.Error(err))
		}
	}
	return g.derivedNumber(year), nil
}

// derivedNumber keeps the PREFIX-YEAR shape but swaps the sequence for a
// random suffix. Collisions are left to the unique index on ticket_number.
func (g *RedisSequence) derivedNumber(year int) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%d-%s", g.prefix, year, suffix)
}

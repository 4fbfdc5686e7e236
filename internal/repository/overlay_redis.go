package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	drepo "BarPilot/internal/domain/repository"
)

// RedisOverlayBoard reads higher-timeframe overlay directions published by
// upstream collaborators and peer timeframe instances. The board is the
// only cross-instance surface and it is strictly read-only here: the
// engine never writes overlay keys.
//
// Key layout: <prefix>:overlay:<symbol> is a hash of timeframe -> "-1|0|1".
type RedisOverlayBoard struct {
	client *redis.Client
	prefix string
}

func NewRedisOverlayBoard(client *redis.Client, prefix string) *RedisOverlayBoard {
	return &RedisOverlayBoard{client: client, prefix: prefix}
}

func (b *RedisOverlayBoard) Directions(ctx context.Context, symbol string) (map[string]int, error) {
	key := fmt.Sprintf("%s:overlay:%s", b.prefix, symbol)
	raw, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("overlay board read %s: %w", key, err)
	}
	out := make(map[string]int, len(raw))
	for tf, v := range raw {
		dir, perr := strconv.Atoi(v)
		if perr != nil || dir < -1 || dir > 1 {
			// Malformed entries are skipped, not guessed at.
			continue
		}
		out[tf] = dir
	}
	return out, nil
}

var _ drepo.OverlayBoard = (*RedisOverlayBoard)(nil)

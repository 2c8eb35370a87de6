package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/repository"
)

func leaderboardKey(rt model.RatingType) string {
	return "leaderboard:" + rt
}

// SetScore records a player's displayed rating on the sorted-set index.
func (c *Client) SetScore(ctx context.Context, rt model.RatingType, playerID int, displayed float64) error {
	err := c.rdb.ZAdd(ctx, leaderboardKey(rt), redis.Z{
		Score:  displayed,
		Member: strconv.Itoa(playerID),
	}).Err()
	if err != nil {
		return fmt.Errorf("set leaderboard score: %w", err)
	}
	return nil
}

// Rank returns the player's zero-based position from the top of the board
// and the board's size.
func (c *Client) Rank(ctx context.Context, rt model.RatingType, playerID int) (int, int, error) {
	key := leaderboardKey(rt)
	rank, err := c.rdb.ZRevRank(ctx, key, strconv.Itoa(playerID)).Result()
	if err == redis.Nil {
		return 0, 0, repository.ErrNotRanked
	}
	if err != nil {
		return 0, 0, fmt.Errorf("leaderboard rank: %w", err)
	}
	size, err := c.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("leaderboard size: %w", err)
	}
	return int(rank), int(size), nil
}

// Remove drops a player from the board.
func (c *Client) Remove(ctx context.Context, rt model.RatingType, playerID int) error {
	if err := c.rdb.ZRem(ctx, leaderboardKey(rt), strconv.Itoa(playerID)).Err(); err != nil {
		return fmt.Errorf("remove from leaderboard: %w", err)
	}
	return nil
}

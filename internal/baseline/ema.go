package baseline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const emaTTL = 30 * 24 * time.Hour

// updateEMA folds the current deviation into the user's rolling exponential
// moving average kept in Redis, returning the updated value. A missing key
// seeds the average with the current observation.
func updateEMA(rdb *redis.Client, userID int32, kind string, current, alpha float64) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf("user:%d:baseline_ema:%s", userID, kind)
	prevStr, err := rdb.Get(ctx, key).Result()

	if err == redis.Nil {
		if err := rdb.Set(ctx, key, current, emaTTL).Err(); err != nil {
			return 0, fmt.Errorf("Failed to set initial EMA: %w", err)
		}
		return current, nil
	} else if err != nil {
		return 0, fmt.Errorf("Could not get previous EMA: %w", err)
	}

	prevEMA, err := strconv.ParseFloat(prevStr, 64)
	if err != nil {
		return 0, fmt.Errorf("Invalid previous EMA value: %w", err)
	}

	newEMA := alpha*current + (1-alpha)*prevEMA
	if err := rdb.Set(ctx, key, newEMA, emaTTL).Err(); err != nil {
		return 0, fmt.Errorf("Could not store new EMA: %w", err)
	}

	return newEMA, nil
}

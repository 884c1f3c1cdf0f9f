package baseline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"activity-analytics/internal/store"

	"github.com/redis/go-redis/v9"
)

const hourHistogramTTL = 14 * 24 * time.Hour

func hourHistogramKey(userID int32) string {
	return fmt.Sprintf("user:%d:activity_hours", userID)
}

// recordActivityHours folds a window of events into the user's rolling
// hour-of-day histogram.
func recordActivityHours(rdb *redis.Client, userID int32, logs []store.LogRow) error {
	if len(logs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := hourHistogramKey(userID)
	for _, l := range logs {
		if err := rdb.HIncrBy(ctx, key, strconv.Itoa(l.Timestamp.UTC().Hour()), 1).Err(); err != nil {
			return fmt.Errorf("Failed to update activity hours: %w", err)
		}
	}
	rdb.Expire(ctx, key, hourHistogramTTL)
	return nil
}

// histogramOutsideFraction derives the user's habitual outside-work-hours
// fraction from the rolling histogram. ok is false when no history has
// accumulated yet, in which case the caller keeps its recomputed baseline.
func histogramOutsideFraction(rdb *redis.Client, userID int32) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fields, err := rdb.HGetAll(ctx, hourHistogramKey(userID)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("Could not read activity hours: %w", err)
	}

	total := 0
	outside := 0
	for field, raw := range fields {
		hour, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		count, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		total += count
		if hour < 8 || hour >= 18 {
			outside += count
		}
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(outside) / float64(total), true, nil
}

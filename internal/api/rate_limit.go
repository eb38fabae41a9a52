package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// importRateWindow 是导入频控的固定窗口长度。
const importRateWindow = time.Hour

// rateCounter 是频控需要的 Redis 切面，便于测试替换。
type rateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// bumpImportCount 递增用户在当前窗口内的导入次数并返回新值。
// 窗口 TTL 只在首次计数时设置，过期后整窗重置。
func bumpImportCount(ctx context.Context, client rateCounter, userID uint) (int64, error) {
	key := fmt.Sprintf("rate:import:%d", userID)
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %q: %w", key, err)
	}
	if count == 1 {
		_ = client.Expire(ctx, key, importRateWindow).Err()
	}
	return count, nil
}

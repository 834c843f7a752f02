// 文件: pkg/perps/cache_repo.go
// 标记价格 Redis 缓存
//
// 【读路径】行情 UI 和强平机器人高频读标记价，不该打到 MySQL；
// 撮合每次更新标记价后尽力写一份到 Redis，读侧未命中回源市场记录

package perps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const markPriceTTL = 10 * time.Second

type MarkPriceCache struct {
	rds *redis.Client
}

func NewMarkPriceCache(rds *redis.Client) *MarkPriceCache {
	return &MarkPriceCache{rds: rds}
}

func markPriceKey(mint string) string {
	return fmt.Sprintf("perp:mark:%s", mint)
}

// Set 写入标记价格
func (c *MarkPriceCache) Set(ctx context.Context, mint string, price uint64) error {
	return c.rds.Set(ctx, markPriceKey(mint), strconv.FormatUint(price, 10), markPriceTTL).Err()
}

// Get 读取标记价格，未命中返回 (0, false, nil)
func (c *MarkPriceCache) Get(ctx context.Context, mint string) (uint64, bool, error) {
	val, err := c.rds.Get(ctx, markPriceKey(mint)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	price, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}

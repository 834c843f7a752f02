// 文件: pkg/platform/cache_repo.go
// 平台配置 Redis 缓存层
//
// 【设计模式】装饰器模式
// 配置被每笔买卖读取，Redis 挡掉绝大多数 DB 查询
// 写路径: 先写 DB，成功后删缓存 (Cache Aside)

package platform

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKey = "platform:config"
	cacheTTL = 5 * time.Minute
)

var _ Repository = (*CachedRepository)(nil)

// CachedRepository Redis 缓存装饰器
type CachedRepository struct {
	repo  Repository
	redis *redis.Client
}

func NewCachedRepository(repo Repository, rds *redis.Client) *CachedRepository {
	return &CachedRepository{repo: repo, redis: rds}
}

func (r *CachedRepository) Create(ctx context.Context, cfg *Config) error {
	if err := r.repo.Create(ctx, cfg); err != nil {
		return err
	}
	r.redis.Del(ctx, cacheKey)
	return nil
}

func (r *CachedRepository) Get(ctx context.Context) (*Config, error) {
	// 1. 查缓存
	data, err := r.redis.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var cfg Config
		if json.Unmarshal(data, &cfg) == nil {
			return &cfg, nil
		}
	}

	// 2. Cache miss，查底层
	cfg, err := r.repo.Get(ctx)
	if err != nil {
		return nil, err
	}

	// 3. 回填
	if data, err := json.Marshal(cfg); err == nil {
		r.redis.Set(ctx, cacheKey, data, cacheTTL)
	}
	return cfg, nil
}

func (r *CachedRepository) Update(ctx context.Context, cfg *Config) error {
	if err := r.repo.Update(ctx, cfg); err != nil {
		return err
	}
	// 配置变更立即可见，删缓存而不是改缓存
	r.redis.Del(ctx, cacheKey)
	return nil
}

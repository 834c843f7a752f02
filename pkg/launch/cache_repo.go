// 文件: pkg/launch/cache_repo.go
// 发射记录 Redis 缓存层 (装饰器)
//
// 曲线状态每笔交易都在变，只做短 TTL 缓存挡读流量；
// 写路径先写 DB 再删缓存 (Cache Aside)

package launch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	launchCacheKey = "launch:mint:%s"
	launchCacheTTL = 30 * time.Second
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

func (r *CachedRepository) CreateLaunch(ctx context.Context, l *TokenLaunch) error {
	return r.repo.CreateLaunch(ctx, l)
}

func (r *CachedRepository) GetLaunch(ctx context.Context, mint string) (*TokenLaunch, error) {
	key := fmt.Sprintf(launchCacheKey, mint)

	data, err := r.redis.Get(ctx, key).Bytes()
	if err == nil {
		var l TokenLaunch
		if json.Unmarshal(data, &l) == nil {
			return &l, nil
		}
	}

	l, err := r.repo.GetLaunch(ctx, mint)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(l); err == nil {
		r.redis.Set(ctx, key, data, launchCacheTTL)
	}
	return l, nil
}

func (r *CachedRepository) UpdateLaunch(ctx context.Context, l *TokenLaunch) error {
	if err := r.repo.UpdateLaunch(ctx, l); err != nil {
		return err
	}
	r.redis.Del(ctx, fmt.Sprintf(launchCacheKey, l.Mint))
	return nil
}

// 持仓读写直接穿透 (读少写多，缓存不划算)

func (r *CachedRepository) GetPosition(ctx context.Context, owner, mint string) (*UserPosition, error) {
	return r.repo.GetPosition(ctx, owner, mint)
}

func (r *CachedRepository) SavePosition(ctx context.Context, p *UserPosition) error {
	return r.repo.SavePosition(ctx, p)
}

// Package cache 提供 Redis 缓存操作的封装
// 处理 JWT 黑名单、AI 请求限流等需要快速访问的数据
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-pc-server/internal/config"
)

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ==================== JWT 黑名单 ====================
// 用户登出后 Token 加入黑名单，在剩余有效期内拒绝使用

// BlacklistToken 将 Token 加入黑名单
// 存储 Token 的哈希值而不是原始 Token
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的 SHA256 哈希
//   - expireAt: Token 本身的过期时间，作为黑名单条目的 TTL
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// Token 已经过期，无需加入黑名单
		return nil
	}
	return c.client.Set(ctx, "token:blacklist:"+tokenHash, 1, ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的 SHA256 哈希
//
// 返回:
//   - bool: 是否在黑名单中（Redis 出错时按不在黑名单处理）
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	exists, err := c.client.Exists(ctx, "token:blacklist:"+tokenHash).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// ==================== AI 请求限流 ====================
// 固定窗口计数器：每用户每分钟一个计数 Key

// IncrAIRequests 累加用户在当前窗口内的 AI 请求数
// 第一次累加时设置 1 分钟过期，窗口结束后计数自动清零
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - int64: 累加后的计数
//   - error: Redis 操作错误
func (c *RedisCache) IncrAIRequests(ctx context.Context, userID int64) (int64, error) {
	key := fmt.Sprintf("ratelimit:ai:%d", userID)

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	// NX 只在 Key 没有 TTL 时设置，避免每次请求都重置窗口
	pipe.ExpireNX(ctx, key, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

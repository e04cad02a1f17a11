package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cvision/internal/config"
	"cvision/internal/constants"
	"cvision/internal/types"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// Redis 文件去重和岗位向量缓存
type Redis struct {
	Client *redis.Client
	cfg    *config.RedisConfig
}

// FileMD5Key 文件 MD5 -> 简历 ID 映射的 key
func FileMD5Key(md5Hex string) string {
	return fmt.Sprintf(constants.KeyFileMD5ToResumeID, md5Hex)
}

// JobEmbeddingsKey 岗位视图向量 HASH 的 key
func JobEmbeddingsKey(jobID string) string {
	return fmt.Sprintf(constants.KeyJobViewEmbeddings, jobID)
}

// NewRedis 创建客户端、挂载 OpenTelemetry 钩子并 Ping
func NewRedis(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:   cfg.MaxRetries,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, cfg: cfg}, nil
}

// Close 关闭连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 健康检查
func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) dedupTTL() time.Duration {
	days := r.cfg.DedupExpireDays
	if days <= 0 {
		days = 365
	}
	return time.Duration(days) * 24 * time.Hour
}

func (r *Redis) jobCacheTTL() time.Duration {
	if r.cfg.JobCacheHours <= 0 {
		return constants.JobEmbeddingCacheTTL
	}
	return time.Duration(r.cfg.JobCacheHours) * time.Hour
}

// CheckAndSetFileMD5 原子地登记文件 MD5。
// 首次出现返回 exists=false；已存在时返回先前登记的简历 ID。
func (r *Redis) CheckAndSetFileMD5(ctx context.Context, md5Hex, resumeID string) (existingID string, exists bool, err error) {
	key := FileMD5Key(md5Hex)
	ok, err := r.Client.SetNX(ctx, key, resumeID, r.dedupTTL()).Result()
	if err != nil {
		return "", false, fmt.Errorf("登记文件MD5失败: %w", err)
	}
	if ok {
		pipe := r.Client.Pipeline()
		pipe.SAdd(ctx, constants.KeyFileMD5Set, md5Hex)
		pipe.ExpireNX(ctx, constants.KeyFileMD5Set, r.dedupTTL())
		if _, err := pipe.Exec(ctx); err != nil {
			return "", false, fmt.Errorf("写入MD5集合失败: %w", err)
		}
		return "", false, nil
	}

	existingID, err = r.Client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", true, fmt.Errorf("获取已存在的简历ID失败: %w", err)
	}
	return existingID, true, nil
}

// RemoveFileMD5 处理失败时回滚去重登记，允许同一文件重新提交
func (r *Redis) RemoveFileMD5(ctx context.Context, md5Hex string) error {
	pipe := r.Client.Pipeline()
	pipe.Del(ctx, FileMD5Key(md5Hex))
	pipe.SRem(ctx, constants.KeyFileMD5Set, md5Hex)
	_, err := pipe.Exec(ctx)
	return err
}

// SetJobEmbeddings 缓存岗位视图向量，HASH 的 field 为视图名
func (r *Redis) SetJobEmbeddings(ctx context.Context, jobID string, emb types.ViewEmbeddings) error {
	fields, err := EncodeViewEmbeddings(emb)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	key := JobEmbeddingsKey(jobID)
	pipe := r.Client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, r.jobCacheTTL())
	_, err = pipe.Exec(ctx)
	return err
}

// GetJobEmbeddings 读取岗位向量缓存，未命中返回 ErrNotFound
func (r *Redis) GetJobEmbeddings(ctx context.Context, jobID string) (types.ViewEmbeddings, error) {
	fields, err := r.Client.HGetAll(ctx, JobEmbeddingsKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return DecodeViewEmbeddings(fields)
}

// EncodeViewEmbeddings 视图向量 -> HASH 字段，空向量跳过
func EncodeViewEmbeddings(emb types.ViewEmbeddings) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(emb))
	for view, vec := range emb {
		if len(vec) == 0 {
			continue
		}
		b, err := json.Marshal(vec)
		if err != nil {
			return nil, fmt.Errorf("序列化视图 %s 向量失败: %w", view, err)
		}
		fields[string(view)] = string(b)
	}
	return fields, nil
}

// DecodeViewEmbeddings HASH 字段 -> 视图向量
func DecodeViewEmbeddings(fields map[string]string) (types.ViewEmbeddings, error) {
	emb := make(types.ViewEmbeddings, len(fields))
	for name, raw := range fields {
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("解析视图 %s 向量失败: %w", name, err)
		}
		emb[types.View(name)] = vec
	}
	return emb, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cvision/internal/config"
	"cvision/internal/logger"
)

// ErrNotFound 记录或缓存不存在
var ErrNotFound = errors.New("记录不存在")

// Storage 聚合所有存储依赖。未配置或初始化失败的组件为 nil，调用方按 nil 降级
type Storage struct {
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
	Qdrant   *Qdrant
	MySQL    *MySQL
	Redis    *Redis
}

// NewStorage 按配置初始化各组件。部分失败只记录警告，全部失败时返回错误
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	log := logger.Component("storage")

	s := &Storage{}
	var initErrors []string
	record := func(name string, err error) {
		log.Warn().Err(err).Str("target", name).Msg("存储组件初始化失败")
		initErrors = append(initErrors, fmt.Sprintf("%s: %v", name, err))
	}

	var err error
	if cfg.MinIO.Endpoint != "" {
		if s.MinIO, err = NewMinIO(&cfg.MinIO); err != nil {
			record("MinIO", err)
		}
	}
	if cfg.RabbitMQ.URL != "" {
		if s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ); err != nil {
			record("RabbitMQ", err)
		} else if err = s.RabbitMQ.SetupTopology(); err != nil {
			record("RabbitMQ topology", err)
		}
	}
	if cfg.Qdrant.Endpoint != "" {
		if s.Qdrant, err = NewQdrant(&cfg.Qdrant); err != nil {
			record("Qdrant", err)
		}
	}
	if cfg.MySQL.DSN != "" || cfg.MySQL.Host != "" {
		if s.MySQL, err = NewMySQL(&cfg.MySQL); err != nil {
			record("MySQL", err)
		}
	}
	if cfg.Redis.Address != "" {
		if s.Redis, err = NewRedis(&cfg.Redis); err != nil {
			record("Redis", err)
		}
	}

	if s.MinIO == nil && s.RabbitMQ == nil && s.Qdrant == nil && s.MySQL == nil && s.Redis == nil {
		return nil, fmt.Errorf("所有存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}
	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := logger.Component("storage")
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
}

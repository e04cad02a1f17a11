package processor

import (
	"cvision/internal/ai"
	"cvision/internal/config"
	"cvision/internal/logger"
	"cvision/internal/storage"

	"github.com/rs/zerolog"
)

// Components 服务依赖的外部组件，均可为空，为空时对应步骤跳过
type Components struct {
	Words     WordExtractor
	Text      TextExtractor
	Embedder  TextEmbedder
	Provider  ai.Provider
	Resumes   ResumeRepository
	Jobs      JobRepository
	Objects   ObjectStore
	Dedup     DedupCache
	JobCache  JobEmbeddingCache
	Vectors   VectorIndex
	Publisher EventPublisher
}

// Settings 服务配置
type Settings struct {
	Pipeline config.PipelineConfig
	Matcher  config.MatcherConfig
	Events   config.RabbitMQConfig
	Logger   zerolog.Logger
}

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// NewComponents 应用组件选项
func NewComponents(opts ...ComponentOpt) *Components {
	c := &Components{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultSettings 使用默认配置
func DefaultSettings() *Settings {
	cfg := config.DefaultConfig()
	return &Settings{
		Pipeline: cfg.Pipeline,
		Matcher:  cfg.Matcher,
		Events:   cfg.RabbitMQ,
		Logger:   logger.Component("processor"),
	}
}

// NewSettings 在默认配置上应用设置选项
func NewSettings(opts ...SettingOpt) *Settings {
	s := DefaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ----- 组件选项 -----

// WithWordExtractor 设置 PDF 词抽取器
func WithWordExtractor(e WordExtractor) ComponentOpt {
	return func(c *Components) {
		c.Words = e
	}
}

// WithTextExtractor 设置纯文本兜底抽取器
func WithTextExtractor(e TextExtractor) ComponentOpt {
	return func(c *Components) {
		c.Text = e
	}
}

// WithEmbedder 设置向量化组件
func WithEmbedder(e TextEmbedder) ComponentOpt {
	return func(c *Components) {
		c.Embedder = e
	}
}

// WithProvider 设置字段抽取用的大模型
func WithProvider(p ai.Provider) ComponentOpt {
	return func(c *Components) {
		c.Provider = p
	}
}

func WithResumeRepository(r ResumeRepository) ComponentOpt {
	return func(c *Components) {
		c.Resumes = r
	}
}

func WithJobRepository(r JobRepository) ComponentOpt {
	return func(c *Components) {
		c.Jobs = r
	}
}

func WithObjectStore(o ObjectStore) ComponentOpt {
	return func(c *Components) {
		c.Objects = o
	}
}

func WithDedupCache(d DedupCache) ComponentOpt {
	return func(c *Components) {
		c.Dedup = d
	}
}

func WithJobEmbeddingCache(j JobEmbeddingCache) ComponentOpt {
	return func(c *Components) {
		c.JobCache = j
	}
}

func WithVectorIndex(v VectorIndex) ComponentOpt {
	return func(c *Components) {
		c.Vectors = v
	}
}

func WithEventPublisher(p EventPublisher) ComponentOpt {
	return func(c *Components) {
		c.Publisher = p
	}
}

// WithStorage 把已连接的存储组件接入服务。
// 未连接的组件保持为空接口，避免 typed nil 被当成可用依赖。
func WithStorage(s *storage.Storage) ComponentOpt {
	return func(c *Components) {
		if s == nil {
			return
		}
		if s.MySQL != nil {
			c.Resumes = s.MySQL
			c.Jobs = s.MySQL
		}
		if s.MinIO != nil {
			c.Objects = s.MinIO
		}
		if s.Redis != nil {
			c.Dedup = s.Redis
			c.JobCache = s.Redis
		}
		if s.Qdrant != nil {
			c.Vectors = s.Qdrant
		}
		if s.RabbitMQ != nil {
			c.Publisher = s.RabbitMQ
		}
	}
}

// ----- 设置选项 -----

// WithPipelineConfig 设置流水线阈值
func WithPipelineConfig(cfg config.PipelineConfig) SettingOpt {
	return func(s *Settings) {
		s.Pipeline = cfg
	}
}

// WithMatcherConfig 设置打分配置
func WithMatcherConfig(cfg config.MatcherConfig) SettingOpt {
	return func(s *Settings) {
		s.Matcher = cfg
	}
}

// WithEventsConfig 设置事件投递的交换机和路由键
func WithEventsConfig(cfg config.RabbitMQConfig) SettingOpt {
	return func(s *Settings) {
		s.Events = cfg
	}
}

// WithLogger 设置日志器
func WithLogger(l zerolog.Logger) SettingOpt {
	return func(s *Settings) {
		s.Logger = l
	}
}

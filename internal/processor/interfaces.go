package processor

import (
	"context"

	"cvision/internal/extraction"
	"cvision/internal/parser"
	"cvision/internal/storage"
	"cvision/internal/storage/models"
	"cvision/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"gorm.io/datatypes"
)

// TextEmbedder 文本向量化
type TextEmbedder interface {
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)
	GetDimensions() int
}

// WordExtractor 从数字 PDF 中抽取带坐标的词
type WordExtractor interface {
	ExtractWords(ctx context.Context, data []byte) ([]types.Word, error)
}

// TextExtractor 抽取整篇纯文本，作为词抽取失败时的兜底
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, uri string) (string, error)
}

// ResumeRepository 简历持久化，SaveResume 与 outbox 事件在同一事务中写入
type ResumeRepository interface {
	SaveResume(ctx context.Context, resume *models.ParsedResume, event *models.OutboxMessage) error
	UpdateResumeFields(ctx context.Context, resumeID string, updates map[string]interface{}) error
	GetResume(ctx context.Context, resumeID string) (*models.ParsedResume, error)
	GetResumeByMD5(ctx context.Context, md5Hex string) (*models.ParsedResume, error)
	GetResumesByIDs(ctx context.Context, ids []string) ([]models.ParsedResume, error)
	ListResumes(ctx context.Context, limit, offset int) ([]models.ParsedResume, error)
}

// JobRepository 岗位需求持久化
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.JobRequirement) error
	GetJob(ctx context.Context, jobID string) (*models.JobRequirement, error)
	UpdateJobStatus(ctx context.Context, jobID, status, errMsg string) error
	SaveJobEmbeddings(ctx context.Context, jobID string, views, embeddings datatypes.JSON, status string, event *models.OutboxMessage) error
}

// ObjectStore 原始文件和结构化 JSON 的对象存储
type ObjectStore interface {
	PutOriginal(ctx context.Context, resumeID, filename string, data []byte) (string, error)
	PutStructured(ctx context.Context, resumeID string, resume *types.Resume) (string, error)
	GetOriginal(ctx context.Context, key string) ([]byte, error)
}

// DedupCache 文件 MD5 去重
type DedupCache interface {
	CheckAndSetFileMD5(ctx context.Context, md5Hex, resumeID string) (existingID string, exists bool, err error)
	RemoveFileMD5(ctx context.Context, md5Hex string) error
}

// JobEmbeddingCache 岗位向量缓存
type JobEmbeddingCache interface {
	SetJobEmbeddings(ctx context.Context, jobID string, emb types.ViewEmbeddings) error
	GetJobEmbeddings(ctx context.Context, jobID string) (types.ViewEmbeddings, error)
}

// VectorIndex 简历视图向量索引
type VectorIndex interface {
	UpsertResumeViews(ctx context.Context, resumeID, resumeFile string, emb types.ViewEmbeddings) ([]string, error)
	SearchResumes(ctx context.Context, view types.View, vector []float64, limit int) ([]storage.SearchResult, error)
}

// EventPublisher 直接投递消息（异步抽取任务）
type EventPublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}, persistent bool) error
}

// 编译期检查实现
var (
	_ TextEmbedder      = (*parser.OpenAIEmbedder)(nil)
	_ WordExtractor     = (*extraction.PDFWordExtractor)(nil)
	_ TextExtractor     = (*extraction.EinoTextExtractor)(nil)
	_ ResumeRepository  = (*storage.MySQL)(nil)
	_ JobRepository     = (*storage.MySQL)(nil)
	_ ObjectStore       = (*storage.MinIO)(nil)
	_ DedupCache        = (*storage.Redis)(nil)
	_ JobEmbeddingCache = (*storage.Redis)(nil)
	_ VectorIndex       = (*storage.Qdrant)(nil)
	_ EventPublisher    = (*storage.RabbitMQ)(nil)
)

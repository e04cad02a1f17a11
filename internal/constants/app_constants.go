package constants

import "time"

const (
	// PipelineVersion 结构化流水线版本，写入数据库用于追溯
	PipelineVersion = "1.0"

	// KeywordTableVersion 章节关键词表版本
	KeywordTableVersion = "2024-01"
	// ActionVerbTableVersion 项目切分用的动词表版本
	ActionVerbTableVersion = "2024-01"

	// JobEmbeddingCacheTTL 岗位向量缓存时长
	JobEmbeddingCacheTTL = 24 * time.Hour

	// DefaultCandidateCount 推荐结果默认条数
	DefaultCandidateCount = 5
)

// 事件类型，写入 outbox 后由 relay 投递
const (
	EventResumeStructured = "resume.structured"
	EventJobEmbedded      = "job.embedded"
)

// 岗位需求状态
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

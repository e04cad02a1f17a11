package storage

import "time"

// ResumeUploadedMessage 异步抽取任务：原始文件已在 MinIO 中
type ResumeUploadedMessage struct {
	ResumeID          string    `json:"resume_id"`
	OriginalFilename  string    `json:"original_filename"`
	OriginalObjectKey string    `json:"original_object_key"`
	FileMD5           string    `json:"file_md5,omitempty"`
	SubmittedAt       time.Time `json:"submitted_at"`
}

// ResumeStructuredEvent 简历结构化完成事件
type ResumeStructuredEvent struct {
	ResumeID        string   `json:"resume_id"`
	OriginalFile    string   `json:"original_file"`
	CandidateName   string   `json:"candidate_name,omitempty"`
	EmbeddedViews   []string `json:"embedded_views"`
	PipelineVersion string   `json:"pipeline_version"`
}

// JobEmbeddedEvent 岗位向量化完成事件
type JobEmbeddedEvent struct {
	JobID         string   `json:"job_id"`
	JobTitle      string   `json:"job_title"`
	EmbeddedViews []string `json:"embedded_views"`
}

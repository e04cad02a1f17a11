package models

import (
	"encoding/json"
	"fmt"
	"time"

	"cvision/internal/types"

	"gorm.io/datatypes"
)

// 简历处理状态
const (
	ResumeStatusStructured = "structured" // 已结构化，未写入向量
	ResumeStatusEmbedded   = "embedded"   // 已结构化并写入向量
)

// ParsedResume 结构化后的简历。最终简历、视图和视图向量都以 JSON 存储
type ParsedResume struct {
	ResumeID            string         `gorm:"type:char(36);primaryKey"`
	FileMD5             string         `gorm:"type:char(32);uniqueIndex:idx_parsed_resumes_file_md5"`
	OriginalFilename    string         `gorm:"type:varchar(255)"`
	OriginalObjectKey   string         `gorm:"type:varchar(512)"`
	StructuredObjectKey string         `gorm:"type:varchar(512)"`
	CandidateName       string         `gorm:"type:varchar(255)"`
	CandidateEmail      string         `gorm:"type:varchar(255);index:idx_parsed_resumes_email"`
	ResumeJSON          datatypes.JSON `gorm:"type:json"`
	ViewsJSON           datatypes.JSON `gorm:"type:json"`
	EmbeddingsJSON      datatypes.JSON `gorm:"type:json"`
	PipelineVersion     string         `gorm:"type:varchar(20)"`
	Status              string         `gorm:"type:varchar(20);default:'structured';index:idx_parsed_resumes_status"`
	CreatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ParsedResume) TableName() string {
	return "parsed_resumes"
}

// Resume 反序列化最终简历
func (p *ParsedResume) Resume() (*types.Resume, error) {
	var r types.Resume
	if err := decodeJSON(p.ResumeJSON, &r); err != nil {
		return nil, fmt.Errorf("解析简历 %s 的 resume_json 失败: %w", p.ResumeID, err)
	}
	return &r, nil
}

// ToCandidate 转换为打分用的候选人。向量缺失时 Embeddings 为空 map，打分阶段按缺失视图处理
func (p *ParsedResume) ToCandidate() (types.Candidate, error) {
	c := types.Candidate{
		CandidateID: p.ResumeID,
		ResumeFile:  p.OriginalFilename,
		Views:       types.Views{},
		Embeddings:  types.ViewEmbeddings{},
	}
	if err := decodeJSON(p.ViewsJSON, &c.Views); err != nil {
		return c, fmt.Errorf("解析简历 %s 的视图失败: %w", p.ResumeID, err)
	}
	if err := decodeJSON(p.EmbeddingsJSON, &c.Embeddings); err != nil {
		return c, fmt.Errorf("解析简历 %s 的向量失败: %w", p.ResumeID, err)
	}
	return c, nil
}

// JobRequirement HR 录入的岗位需求
type JobRequirement struct {
	JobID          string         `gorm:"type:char(36);primaryKey"`
	JobTitle       string         `gorm:"type:varchar(255);not null"`
	JobDescription string         `gorm:"type:text;not null"`
	SkillsJSON     datatypes.JSON `gorm:"type:json"`
	Experience     string         `gorm:"type:varchar(100)"`
	CandidateCount int            `gorm:"default:5"`
	Status         string         `gorm:"type:varchar(20);default:'pending';index:idx_job_requirements_status"`
	ViewsJSON      datatypes.JSON `gorm:"type:json"`
	EmbeddingsJSON datatypes.JSON `gorm:"type:json"`
	ErrorMessage   string         `gorm:"type:text"`
	CreatedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobRequirement) TableName() string {
	return "job_requirements"
}

// NewJobRequirement 从表单构造岗位记录，candidateCount <= 0 时取默认值
func NewJobRequirement(jobID string, form types.JobDescriptionForm, candidateCount int, status string) (*JobRequirement, error) {
	skills, err := ToJSON(form.Skills)
	if err != nil {
		return nil, err
	}
	if candidateCount <= 0 {
		candidateCount = 5
	}
	return &JobRequirement{
		JobID:          jobID,
		JobTitle:       form.JobTitle,
		JobDescription: form.JobDescription,
		SkillsJSON:     skills,
		Experience:     form.Experience,
		CandidateCount: candidateCount,
		Status:         status,
	}, nil
}

// Form 还原岗位表单
func (j *JobRequirement) Form() (types.JobDescriptionForm, error) {
	form := types.JobDescriptionForm{
		JobTitle:       j.JobTitle,
		JobDescription: j.JobDescription,
		Skills:         []string{},
		Experience:     j.Experience,
	}
	if err := decodeJSON(j.SkillsJSON, &form.Skills); err != nil {
		return form, fmt.Errorf("解析岗位 %s 的技能失败: %w", j.JobID, err)
	}
	return form, nil
}

// Embeddings 岗位视图向量；未嵌入时返回 nil
func (j *JobRequirement) Embeddings() (types.ViewEmbeddings, error) {
	if len(j.EmbeddingsJSON) == 0 {
		return nil, nil
	}
	var emb types.ViewEmbeddings
	if err := decodeJSON(j.EmbeddingsJSON, &emb); err != nil {
		return nil, fmt.Errorf("解析岗位 %s 的向量失败: %w", j.JobID, err)
	}
	return emb, nil
}

// ToJSON 序列化为 datatypes.JSON
func ToJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化 JSON 失败: %w", err)
	}
	return datatypes.JSON(b), nil
}

// decodeJSON 空值和 JSON null 视为零值
func decodeJSON(data datatypes.JSON, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

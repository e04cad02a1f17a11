package handler

import (
	"context"
	"encoding/json"
	"time"

	"cvision/internal/logger"
	"cvision/internal/processor"
	"cvision/internal/storage/models"
	"cvision/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// JobHandler 岗位需求与推荐接口
type JobHandler struct {
	svc    *processor.JobService
	logger zerolog.Logger
}

// NewJobHandler 创建岗位处理器
func NewJobHandler(svc *processor.JobService) *JobHandler {
	return &JobHandler{
		svc:    svc,
		logger: logger.Component("job_handler"),
	}
}

// JobResponse 岗位需求的对外表示
type JobResponse struct {
	JobID          string                   `json:"job_id"`
	Form           types.JobDescriptionForm `json:"form"`
	CandidateCount int                      `json:"candidate_count"`
	Status         string                   `json:"status"`
	EmbeddedViews  []string                 `json:"embedded_views"`
	ErrorMessage   string                   `json:"error_message,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

func toJobResponse(job *models.JobRequirement) (JobResponse, error) {
	form, err := job.Form()
	if err != nil {
		return JobResponse{}, err
	}
	emb, err := job.Embeddings()
	if err != nil {
		return JobResponse{}, err
	}
	return JobResponse{
		JobID:          job.JobID,
		Form:           form,
		CandidateCount: job.CandidateCount,
		Status:         job.Status,
		EmbeddedViews:  processor.ViewNames(emb),
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
	}, nil
}

// HandleCreateJob 创建岗位需求
// POST /api/v1/jobs
func (h *JobHandler) HandleCreateJob(ctx context.Context, c *app.RequestContext) {
	var req processor.CreateJobRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		writeBadRequest(c, "请求体不是合法的 JSON")
		return
	}
	job, err := h.svc.Create(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	resp, err := toJobResponse(job)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, consts.StatusCreated, job.JobID, resp)
}

// HandleGetJob 查询岗位需求
// GET /api/v1/jobs/:job_id
func (h *JobHandler) HandleGetJob(ctx context.Context, c *app.RequestContext) {
	job, err := h.svc.Get(ctx, c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp, err := toJobResponse(job)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, consts.StatusOK, job.JobID, resp)
}

// HandleEmbedJob 岗位向量化
// POST /api/v1/jobs/:job_id/embed
func (h *JobHandler) HandleEmbedJob(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	emb, err := h.svc.Embed(ctx, jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("岗位向量化失败")
		writeError(c, err)
		return
	}
	writeOK(c, consts.StatusOK, jobID, map[string]interface{}{
		"embedded_views": processor.ViewNames(emb),
	})
}

// HandleRecommend 为岗位推荐候选人
// GET /api/v1/jobs/:job_id/recommendations
func (h *JobHandler) HandleRecommend(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	results, err := h.svc.Recommend(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, consts.StatusOK, jobID, results)
}

// HandleRank 对请求中给出的候选人直接排序
// POST /api/v1/rank
func (h *JobHandler) HandleRank(ctx context.Context, c *app.RequestContext) {
	var req processor.RankRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		writeBadRequest(c, "请求体不是合法的 JSON")
		return
	}
	results, err := h.svc.Rank(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, consts.StatusOK, "", results)
}

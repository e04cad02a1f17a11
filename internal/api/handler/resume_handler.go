package handler

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"cvision/internal/logger"
	"cvision/internal/processor"
	"cvision/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// ResumeHandler 简历抽取相关接口
type ResumeHandler struct {
	svc    *processor.ResumeService
	logger zerolog.Logger
}

// NewResumeHandler 创建简历处理器
func NewResumeHandler(svc *processor.ResumeService) *ResumeHandler {
	return &ResumeHandler{
		svc:    svc,
		logger: logger.Component("resume_handler"),
	}
}

// ResumeResponse 查询简历的响应
type ResumeResponse struct {
	ResumeID         string        `json:"resume_id"`
	OriginalFilename string        `json:"original_filename"`
	CandidateName    string        `json:"candidate_name"`
	Status           string        `json:"status"`
	PipelineVersion  string        `json:"pipeline_version"`
	CreatedAt        time.Time     `json:"created_at"`
	Resume           *types.Resume `json:"resume"`
}

// readUpload 读取 multipart 中的 file 字段
func (h *ResumeHandler) readUpload(c *app.RequestContext) ([]byte, string, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: 文件未找到", processor.ErrInvalidInput)
	}
	if err := h.svc.Pipeline().CheckSize(int(fileHeader.Size)); err != nil {
		return nil, "", err
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("读取上传文件失败: %w", err)
	}
	return data, fileHeader.Filename, nil
}

// HandleExtract 上传并结构化简历。async=true 时只入队，返回 202
// POST /api/v1/resumes/extract
func (h *ResumeHandler) HandleExtract(ctx context.Context, c *app.RequestContext) {
	data, filename, err := h.readUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}

	async, _ := strconv.ParseBool(c.Query("async"))
	if async {
		res, err := h.svc.Submit(ctx, data, filename)
		if err != nil {
			h.logger.Warn().Err(err).Str("file", filename).Msg("异步提交失败")
			writeError(c, err)
			return
		}
		status := consts.StatusAccepted
		if res.Duplicate {
			status = consts.StatusOK
		}
		writeOK(c, status, res.ResumeID, res)
		return
	}

	res, err := h.svc.Extract(ctx, data, filename)
	if err != nil {
		h.logger.Warn().Err(err).Str("file", filename).Msg("简历抽取失败")
		writeError(c, err)
		return
	}
	writeOK(c, consts.StatusOK, res.ResumeID, res)
}

// HandleLines 返回整理后的行，便于调试阈值
// POST /api/v1/resumes/lines
func (h *ResumeHandler) HandleLines(ctx context.Context, c *app.RequestContext) {
	data, filename, err := h.readUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}
	lines, err := h.svc.Pipeline().Lines(ctx, data, filename)
	if err != nil {
		writeError(c, err)
		return
	}
	if lines == nil {
		lines = []types.Line{}
	}
	writeOK(c, consts.StatusOK, "", lines)
}

// ResumeSummary 列表中的一条简历
type ResumeSummary struct {
	ResumeID         string    `json:"resume_id"`
	OriginalFilename string    `json:"original_filename"`
	CandidateName    string    `json:"candidate_name"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// HandleListResumes 分页列出简历
// GET /api/v1/resumes?limit=20&offset=0
func (h *ResumeHandler) HandleListResumes(ctx context.Context, c *app.RequestContext) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		writeBadRequest(c, "limit 必须是整数")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		writeBadRequest(c, "offset 必须是整数")
		return
	}
	rows, err := h.svc.List(ctx, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]ResumeSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, ResumeSummary{
			ResumeID:         r.ResumeID,
			OriginalFilename: r.OriginalFilename,
			CandidateName:    r.CandidateName,
			Status:           r.Status,
			CreatedAt:        r.CreatedAt,
		})
	}
	writeOK(c, consts.StatusOK, "", out)
}

// HandleGetResume 查询已保存的简历
// GET /api/v1/resumes/:resume_id
func (h *ResumeHandler) HandleGetResume(ctx context.Context, c *app.RequestContext) {
	resumeID := c.Param("resume_id")
	if resumeID == "" {
		writeBadRequest(c, "resume_id 不能为空")
		return
	}
	rec, err := h.svc.Get(ctx, resumeID)
	if err != nil {
		writeError(c, err)
		return
	}
	resume, err := rec.Resume()
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, consts.StatusOK, rec.ResumeID, ResumeResponse{
		ResumeID:         rec.ResumeID,
		OriginalFilename: rec.OriginalFilename,
		CandidateName:    rec.CandidateName,
		Status:           rec.Status,
		PipelineVersion:  rec.PipelineVersion,
		CreatedAt:        rec.CreatedAt,
		Resume:           resume,
	})
}

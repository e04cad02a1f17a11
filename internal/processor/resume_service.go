package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cvision/internal/constants"
	"cvision/internal/recommender"
	"cvision/internal/storage"
	"cvision/internal/storage/models"
	"cvision/internal/tracing"
	"cvision/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// 简历处理结果状态
const (
	StatusDuplicate = "duplicate"
	StatusQueued    = "queued"
)

// ExtractResult 一次抽取请求的结果
type ExtractResult struct {
	ResumeID      string        `json:"resume_id"`
	Duplicate     bool          `json:"duplicate"`
	Status        string        `json:"status"`
	EmbeddedViews []string      `json:"embedded_views,omitempty"`
	Resume        *types.Resume `json:"resume,omitempty"`
}

// ResumeService 简历抽取服务：去重 -> 结构化 -> 向量化 -> 持久化
type ResumeService struct {
	pipeline *Pipeline
	comps    *Components
	settings *Settings
	logger   zerolog.Logger
}

// NewResumeService 创建简历服务
func NewResumeService(comps *Components, settings *Settings) *ResumeService {
	if comps == nil {
		comps = NewComponents()
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	return &ResumeService{
		pipeline: NewPipeline(comps, settings),
		comps:    comps,
		settings: settings,
		logger:   settings.Logger,
	}
}

// Pipeline 返回底层流水线
func (s *ResumeService) Pipeline() *Pipeline {
	return s.pipeline
}

// FileMD5 文件内容的 MD5，去重使用
func FileMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func newResumeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Must(uuid.NewV4()).String()
	}
	return id.String()
}

// Extract 同步抽取。相同文件再次上传直接返回已有记录
func (s *ResumeService) Extract(ctx context.Context, data []byte, filename string) (*ExtractResult, error) {
	ctx, span := tracer.Start(ctx, "ResumeService.Extract",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("resume.filename", filename),
			attribute.Int("resume.size", len(data)),
		))
	defer span.End()

	if err := s.pipeline.CheckSize(len(data)); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	md5Hex := FileMD5(data)
	resumeID := newResumeID()
	span.SetAttributes(attribute.String("resume.md5", md5Hex))

	if dup := s.findDuplicate(ctx, md5Hex, resumeID); dup != nil {
		span.SetAttributes(attribute.Bool("resume.duplicate", true), attribute.String("resume.id", dup.ResumeID))
		return dup, nil
	}
	span.SetAttributes(attribute.String("resume.id", resumeID))

	resume, err := s.pipeline.ExtractResume(ctx, data, filename)
	if err != nil {
		s.releaseMD5(ctx, md5Hex)
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return nil, err
	}

	var originalKey string
	if s.comps.Objects != nil {
		originalKey, err = s.comps.Objects.PutOriginal(ctx, resumeID, filename, data)
		if err != nil {
			s.releaseMD5(ctx, md5Hex)
			tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
			return nil, NewStorageError(resumeID, "put_original", err.Error())
		}
	}

	result, err := s.persist(ctx, resumeMeta{
		ResumeID:          resumeID,
		Filename:          filename,
		FileMD5:           md5Hex,
		OriginalObjectKey: originalKey,
	}, resume)
	if err != nil {
		s.releaseMD5(ctx, md5Hex)
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}
	return result, nil
}

// findDuplicate Redis 优先；Redis 不可用或出错时回退到 MySQL 的 file_md5 唯一索引
func (s *ResumeService) findDuplicate(ctx context.Context, md5Hex, resumeID string) *ExtractResult {
	var existingID string
	checked := false
	if s.comps.Dedup != nil {
		id, exists, err := s.comps.Dedup.CheckAndSetFileMD5(ctx, md5Hex, resumeID)
		if err != nil {
			s.logger.Warn().Err(err).Str("md5", md5Hex).Msg("Redis 去重检查失败，回退到数据库")
		} else {
			checked = true
			if exists {
				existingID = id
			}
		}
	}
	if !checked && s.comps.Resumes != nil {
		rec, err := s.comps.Resumes.GetResumeByMD5(ctx, md5Hex)
		switch {
		case err == nil:
			existingID = rec.ResumeID
		case !errors.Is(err, storage.ErrNotFound):
			s.logger.Warn().Err(err).Str("md5", md5Hex).Msg("数据库去重检查失败")
		}
	}
	if existingID == "" {
		return nil
	}

	s.logger.Info().Str("md5", md5Hex).Str("resume_id", existingID).Msg("重复上传，返回已有简历")
	result := &ExtractResult{ResumeID: existingID, Duplicate: true, Status: StatusDuplicate}
	if s.comps.Resumes == nil {
		return result
	}
	rec, err := s.comps.Resumes.GetResume(ctx, existingID)
	if err != nil {
		// 先到的请求可能还没提交
		return result
	}
	if r, err := rec.Resume(); err == nil {
		result.Resume = r
	}
	result.Status = rec.Status
	return result
}

// releaseMD5 处理失败时撤销去重登记，允许重新上传
func (s *ResumeService) releaseMD5(ctx context.Context, md5Hex string) {
	if s.comps.Dedup == nil || md5Hex == "" {
		return
	}
	if err := s.comps.Dedup.RemoveFileMD5(context.WithoutCancel(ctx), md5Hex); err != nil {
		s.logger.Warn().Err(err).Str("md5", md5Hex).Msg("撤销去重登记失败")
	}
}

type resumeMeta struct {
	ResumeID          string
	Filename          string
	FileMD5           string
	OriginalObjectKey string
}

// persist 生成视图和向量，写入 MySQL（含 outbox 事件）、Qdrant 和结构化 JSON。
// 向量化失败不阻断保存，缺失的视图在打分时按缺失处理。
func (s *ResumeService) persist(ctx context.Context, meta resumeMeta, resume *types.Resume) (*ExtractResult, error) {
	ctx, span := tracer.Start(ctx, "ResumeService.Persist",
		trace.WithAttributes(attribute.String("resume.id", meta.ResumeID)))
	defer span.End()

	views := recommender.ResumeToViews(resume)
	emb, err := EmbedViews(ctx, s.comps.Embedder, views)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		s.logger.Warn().Err(err).Str("resume_id", meta.ResumeID).Msg("简历向量化失败，仅保存结构化结果")
	}
	embedded := ViewNames(emb)

	resumeJSON, err := models.ToJSON(resume)
	if err != nil {
		return nil, NewStorageError(meta.ResumeID, "encode", err.Error())
	}
	viewsJSON, err := models.ToJSON(views)
	if err != nil {
		return nil, NewStorageError(meta.ResumeID, "encode", err.Error())
	}
	embJSON, err := models.ToJSON(emb)
	if err != nil {
		return nil, NewStorageError(meta.ResumeID, "encode", err.Error())
	}

	result := &ExtractResult{
		ResumeID:      meta.ResumeID,
		Status:        models.ResumeStatusStructured,
		EmbeddedViews: embedded,
		Resume:        resume,
	}

	if s.comps.Resumes != nil {
		event, err := models.NewOutboxMessage(meta.ResumeID, constants.EventResumeStructured,
			s.settings.Events.ResumeEventsExchange, s.settings.Events.StructuredRoutingKey,
			storage.ResumeStructuredEvent{
				ResumeID:        meta.ResumeID,
				OriginalFile:    meta.Filename,
				CandidateName:   resume.Profile.Name,
				EmbeddedViews:   embedded,
				PipelineVersion: constants.PipelineVersion,
			})
		if err != nil {
			return nil, NewStorageError(meta.ResumeID, "encode", err.Error())
		}
		record := &models.ParsedResume{
			ResumeID:          meta.ResumeID,
			FileMD5:           meta.FileMD5,
			OriginalFilename:  meta.Filename,
			OriginalObjectKey: meta.OriginalObjectKey,
			CandidateName:     resume.Profile.Name,
			CandidateEmail:    resume.Profile.Email,
			ResumeJSON:        resumeJSON,
			ViewsJSON:         viewsJSON,
			EmbeddingsJSON:    embJSON,
			PipelineVersion:   constants.PipelineVersion,
			Status:            models.ResumeStatusStructured,
		}
		if err := s.comps.Resumes.SaveResume(ctx, record, event); err != nil {
			return nil, NewStorageError(meta.ResumeID, "save_resume", err.Error())
		}
	}

	updates := map[string]interface{}{}
	if s.comps.Vectors != nil && len(emb) > 0 {
		ids, err := s.comps.Vectors.UpsertResumeViews(ctx, meta.ResumeID, meta.Filename, emb)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			s.logger.Warn().Err(err).Str("resume_id", meta.ResumeID).Msg("写入向量库失败")
		} else if len(ids) > 0 {
			result.Status = models.ResumeStatusEmbedded
			updates["status"] = models.ResumeStatusEmbedded
		}
	}
	if s.comps.Objects != nil {
		key, err := s.comps.Objects.PutStructured(ctx, meta.ResumeID, resume)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
			s.logger.Warn().Err(err).Str("resume_id", meta.ResumeID).Msg("上传结构化 JSON 失败")
		} else {
			updates["structured_object_key"] = key
		}
	}
	if s.comps.Resumes != nil && len(updates) > 0 {
		if err := s.comps.Resumes.UpdateResumeFields(ctx, meta.ResumeID, updates); err != nil {
			s.logger.Warn().Err(err).Str("resume_id", meta.ResumeID).Msg("更新简历状态失败")
		}
	}

	s.logger.Info().
		Str("resume_id", meta.ResumeID).
		Str("status", result.Status).
		Strs("embedded_views", embedded).
		Msg("简历处理完成")
	return result, nil
}

// Submit 异步抽取：只保存原始文件并投递 uploaded 消息，由消费者完成后续步骤
func (s *ResumeService) Submit(ctx context.Context, data []byte, filename string) (*ExtractResult, error) {
	ctx, span := tracer.Start(ctx, "ResumeService.Submit",
		trace.WithAttributes(attribute.String("resume.filename", filename)))
	defer span.End()

	if s.comps.Objects == nil || s.comps.Publisher == nil {
		return nil, fmt.Errorf("%w: 异步抽取需要对象存储和消息队列", ErrNotConfigured)
	}
	if err := s.pipeline.CheckSize(len(data)); err != nil {
		return nil, err
	}
	if _, err := DetectFormat(filename, data); err != nil {
		return nil, err
	}

	md5Hex := FileMD5(data)
	resumeID := newResumeID()
	if dup := s.findDuplicate(ctx, md5Hex, resumeID); dup != nil {
		return dup, nil
	}

	key, err := s.comps.Objects.PutOriginal(ctx, resumeID, filename, data)
	if err != nil {
		s.releaseMD5(ctx, md5Hex)
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return nil, NewStorageError(resumeID, "put_original", err.Error())
	}

	msg := storage.ResumeUploadedMessage{
		ResumeID:          resumeID,
		OriginalFilename:  filename,
		OriginalObjectKey: key,
		FileMD5:           md5Hex,
		SubmittedAt:       time.Now(),
	}
	if err := s.comps.Publisher.PublishJSON(ctx, s.settings.Events.ResumeEventsExchange, s.settings.Events.UploadedRoutingKey, msg, true); err != nil {
		s.releaseMD5(ctx, md5Hex)
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		return nil, NewStorageError(resumeID, "publish", err.Error())
	}
	return &ExtractResult{ResumeID: resumeID, Status: StatusQueued}, nil
}

// HandleUploadedMessage uploaded 队列的消费函数。
// 返回 false 表示临时失败需要重投；格式错误或抽取失败的消息直接确认。
func (s *ResumeService) HandleUploadedMessage(ctx context.Context, body []byte) bool {
	ctx, span := tracer.Start(ctx, "ResumeService.HandleUploaded", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var msg storage.ResumeUploadedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		s.logger.Error().Err(err).Str("body", tracing.TruncateString(string(body), 200)).Msg("无法解析 uploaded 消息，丢弃")
		return true
	}
	if msg.ResumeID == "" || msg.OriginalObjectKey == "" {
		s.logger.Error().Str("resume_id", msg.ResumeID).Msg("uploaded 消息缺少必要字段，丢弃")
		return true
	}
	if s.comps.Objects == nil {
		s.logger.Error().Str("resume_id", msg.ResumeID).Msg("未配置对象存储，无法处理 uploaded 消息")
		return true
	}
	span.SetAttributes(attribute.String("resume.id", msg.ResumeID))
	log := s.logger.With().Str("resume_id", msg.ResumeID).Str("file", msg.OriginalFilename).Logger()

	data, err := s.comps.Objects.GetOriginal(ctx, msg.OriginalObjectKey)
	if err != nil {
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeObjectStore, attribute.String("object.key", msg.OriginalObjectKey))
		tracing.RecordRabbitMQNack(span, msg.ResumeID, "requeue: download original failed")
		log.Warn().Err(err).Msg("下载原始文件失败，稍后重试")
		return false
	}

	resume, err := s.pipeline.ExtractResume(ctx, data, msg.OriginalFilename)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		log.Error().Err(err).Msg("简历抽取失败")
		s.releaseMD5(ctx, msg.FileMD5)
		return true
	}

	md5Hex := msg.FileMD5
	if md5Hex == "" {
		md5Hex = FileMD5(data)
	}
	if _, err := s.persist(ctx, resumeMeta{
		ResumeID:          msg.ResumeID,
		Filename:          msg.OriginalFilename,
		FileMD5:           md5Hex,
		OriginalObjectKey: msg.OriginalObjectKey,
	}, resume); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		tracing.RecordRabbitMQNack(span, msg.ResumeID, "requeue: persist failed")
		log.Warn().Err(err).Msg("保存简历失败，稍后重试")
		return false
	}
	return true
}

// Get 读取已保存的简历
func (s *ResumeService) Get(ctx context.Context, resumeID string) (*models.ParsedResume, error) {
	if s.comps.Resumes == nil {
		return nil, fmt.Errorf("%w: 未配置数据库", ErrNotConfigured)
	}
	rec, err := s.comps.Resumes.GetResume(ctx, resumeID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrResumeNotFound, resumeID)
	}
	if err != nil {
		return nil, NewStorageError(resumeID, "get_resume", err.Error())
	}
	return rec, nil
}

// 列表分页
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// List 按创建时间倒序分页列出简历，不含正文和向量
func (s *ResumeService) List(ctx context.Context, limit, offset int) ([]models.ParsedResume, error) {
	if s.comps.Resumes == nil {
		return nil, fmt.Errorf("%w: 未配置数据库", ErrNotConfigured)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.comps.Resumes.ListResumes(ctx, limit, offset)
	if err != nil {
		return nil, NewStorageError("", "list_resumes", err.Error())
	}
	return rows, nil
}

// EmbedViews 按 AllViews 顺序批量嵌入非空视图。embedder 为空时返回空结果
func EmbedViews(ctx context.Context, embedder TextEmbedder, views types.Views) (types.ViewEmbeddings, error) {
	emb := types.ViewEmbeddings{}
	if embedder == nil {
		return emb, nil
	}
	var (
		names []types.View
		texts []string
	)
	for _, v := range types.AllViews {
		if text := views[v]; strings.TrimSpace(text) != "" {
			names = append(names, v)
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return emb, nil
	}

	vectors, err := embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return emb, err
	}
	if len(vectors) != len(texts) {
		return emb, fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(vectors))
	}
	for i, name := range names {
		if len(vectors[i]) > 0 {
			emb[name] = vectors[i]
		}
	}
	return emb, nil
}

// ViewNames 按 AllViews 顺序列出有向量的视图
func ViewNames(emb types.ViewEmbeddings) []string {
	names := make([]string, 0, len(emb))
	for _, v := range types.AllViews {
		if len(emb[v]) > 0 {
			names = append(names, string(v))
		}
	}
	return names
}

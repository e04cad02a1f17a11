package processor

import (
	"context"
	"errors"
	"fmt"

	"cvision/internal/constants"
	"cvision/internal/recommender"
	"cvision/internal/storage"
	"cvision/internal/storage/models"
	"cvision/internal/tracing"
	"cvision/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateJobRequest 创建岗位需求
type CreateJobRequest struct {
	types.JobDescriptionForm
	CandidateCount int `json:"candidateCount" validate:"omitempty,min=1,max=100"`
}

// RankRequest 无状态排序：调用方直接给出岗位和候选人
type RankRequest struct {
	Job           types.JobDescriptionForm `json:"job"`
	JobEmbeddings types.ViewEmbeddings     `json:"job_embeddings,omitempty"`
	Candidates    []types.Candidate        `json:"candidates" validate:"required,min=1,dive"`
	TopK          int                      `json:"top_k" validate:"omitempty,min=1"`
}

// JobService 岗位需求：创建、向量化、推荐候选人
type JobService struct {
	comps    *Components
	settings *Settings
	matcher  *recommender.Matcher
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewJobService 创建岗位服务
func NewJobService(comps *Components, settings *Settings) *JobService {
	if comps == nil {
		comps = NewComponents()
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	return &JobService{
		comps:    comps,
		settings: settings,
		matcher:  recommender.NewMatcher(settings.Matcher),
		validate: validator.New(),
		logger:   settings.Logger,
	}
}

// Create 校验表单并保存为 pending 状态
func (s *JobService) Create(ctx context.Context, req CreateJobRequest) (*models.JobRequirement, error) {
	if s.comps.Jobs == nil {
		return nil, fmt.Errorf("%w: 未配置数据库", ErrNotConfigured)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("", err.Error())
	}

	jobID := uuid.NewString()
	job, err := models.NewJobRequirement(jobID, req.JobDescriptionForm, req.CandidateCount, constants.JobStatusPending)
	if err != nil {
		return nil, NewStorageError(jobID, "encode", err.Error())
	}
	if err := s.comps.Jobs.CreateJob(ctx, job); err != nil {
		return nil, NewStorageError(jobID, "create_job", err.Error())
	}
	s.logger.Info().Str("job_id", jobID).Str("title", job.JobTitle).Msg("岗位需求已创建")
	return job, nil
}

func (s *JobService) getJob(ctx context.Context, jobID string) (*models.JobRequirement, error) {
	if s.comps.Jobs == nil {
		return nil, fmt.Errorf("%w: 未配置数据库", ErrNotConfigured)
	}
	job, err := s.comps.Jobs.GetJob(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, NewStorageError(jobID, "get_job", err.Error())
	}
	return job, nil
}

// Get 读取岗位需求
func (s *JobService) Get(ctx context.Context, jobID string) (*models.JobRequirement, error) {
	return s.getJob(ctx, jobID)
}

// Embed 生成岗位视图并向量化。状态 pending -> processing -> completed/failed
func (s *JobService) Embed(ctx context.Context, jobID string) (types.ViewEmbeddings, error) {
	ctx, span := tracer.Start(ctx, "JobService.Embed",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	if s.comps.Embedder == nil {
		return nil, fmt.Errorf("%w: 未配置向量化服务", ErrNotConfigured)
	}
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	form, err := job.Form()
	if err != nil {
		return nil, NewStorageError(jobID, "decode", err.Error())
	}
	if err := s.comps.Jobs.UpdateJobStatus(ctx, jobID, constants.JobStatusProcessing, ""); err != nil {
		return nil, NewStorageError(jobID, "update_status", err.Error())
	}

	views := recommender.JobToViews(form)
	emb, err := EmbedViews(ctx, s.comps.Embedder, views)
	if err == nil && len(emb[types.ViewFullText]) == 0 {
		err = errors.New("full_text 视图没有生成向量")
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		s.markFailed(ctx, jobID, err)
		return nil, NewEmbeddingError(jobID, err.Error())
	}

	viewsJSON, err := models.ToJSON(views)
	if err != nil {
		return nil, NewStorageError(jobID, "encode", err.Error())
	}
	embJSON, err := models.ToJSON(emb)
	if err != nil {
		return nil, NewStorageError(jobID, "encode", err.Error())
	}
	embedded := ViewNames(emb)
	event, err := models.NewOutboxMessage(jobID, constants.EventJobEmbedded,
		s.settings.Events.JobEventsExchange, s.settings.Events.JobEmbeddedRoutingKey,
		storage.JobEmbeddedEvent{JobID: jobID, JobTitle: form.JobTitle, EmbeddedViews: embedded})
	if err != nil {
		return nil, NewStorageError(jobID, "encode", err.Error())
	}
	if err := s.comps.Jobs.SaveJobEmbeddings(ctx, jobID, viewsJSON, embJSON, constants.JobStatusCompleted, event); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		s.markFailed(ctx, jobID, err)
		return nil, NewStorageError(jobID, "save_embeddings", err.Error())
	}

	if s.comps.JobCache != nil {
		if err := s.comps.JobCache.SetJobEmbeddings(ctx, jobID, emb); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("缓存岗位向量失败")
		}
	}
	s.logger.Info().Str("job_id", jobID).Strs("embedded_views", embedded).Msg("岗位向量化完成")
	return emb, nil
}

func (s *JobService) markFailed(ctx context.Context, jobID string, cause error) {
	if err := s.comps.Jobs.UpdateJobStatus(context.WithoutCancel(ctx), jobID, constants.JobStatusFailed, cause.Error()); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("更新岗位失败状态出错")
	}
}

// jobEmbeddings 缓存优先，未命中时读数据库并回填缓存
func (s *JobService) jobEmbeddings(ctx context.Context, job *models.JobRequirement) (types.ViewEmbeddings, error) {
	if s.comps.JobCache != nil {
		emb, err := s.comps.JobCache.GetJobEmbeddings(ctx, job.JobID)
		if err == nil && len(emb) > 0 {
			return emb, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("读取岗位向量缓存失败")
		}
	}
	emb, err := job.Embeddings()
	if err != nil {
		return nil, NewStorageError(job.JobID, "decode", err.Error())
	}
	if len(emb) > 0 && s.comps.JobCache != nil {
		if err := s.comps.JobCache.SetJobEmbeddings(ctx, job.JobID, emb); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("回填岗位向量缓存失败")
		}
	}
	return emb, nil
}

// Recommend 用 full_text 向量召回候选简历，再用多视图打分重排，返回前 CandidateCount 个
func (s *JobService) Recommend(ctx context.Context, jobID string) ([]types.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "JobService.Recommend",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	emb, err := s.jobEmbeddings(ctx, job)
	if err != nil {
		return nil, err
	}
	query := emb[types.ViewFullText]
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobEmbeddingsMissing, jobID)
	}
	if s.comps.Vectors == nil || s.comps.Resumes == nil {
		return nil, fmt.Errorf("%w: 推荐需要向量库和数据库", ErrNotConfigured)
	}

	limit := s.settings.Matcher.RetrievalLimit
	hits, err := s.comps.Vectors.SearchResumes(ctx, types.ViewFullText, query, limit)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, NewStorageError(jobID, "search", err.Error())
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ResumeID)
	}
	span.SetAttributes(attribute.Int("recommend.retrieved", len(ids)))
	if len(ids) == 0 {
		return []types.MatchResult{}, nil
	}

	records, err := s.comps.Resumes.GetResumesByIDs(ctx, ids)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewStorageError(jobID, "load_resumes", err.Error())
	}
	candidates := make([]types.Candidate, 0, len(records))
	for i := range records {
		c, err := records[i].ToCandidate()
		if err != nil {
			s.logger.Warn().Err(err).Str("resume_id", records[i].ResumeID).Msg("跳过无法解析的简历")
			continue
		}
		candidates = append(candidates, c)
	}

	form, err := job.Form()
	if err != nil {
		return nil, NewStorageError(jobID, "decode", err.Error())
	}
	count := job.CandidateCount
	if count <= 0 {
		count = constants.DefaultCandidateCount
	}
	return s.matcher.RankCandidates(ctx, recommender.NewJobContext(form, emb), candidates, count, s.settings.Matcher.Workers)
}

// Rank 直接对给定候选人排序。未提供岗位向量时现场嵌入岗位视图
func (s *JobService) Rank(ctx context.Context, req RankRequest) ([]types.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "JobService.Rank",
		trace.WithAttributes(attribute.Int("rank.candidates", len(req.Candidates))))
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("", err.Error())
	}
	emb := req.JobEmbeddings
	if len(emb) == 0 && s.comps.Embedder != nil {
		var err error
		emb, err = EmbedViews(ctx, s.comps.Embedder, recommender.JobToViews(req.Job))
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
			return nil, NewEmbeddingError("", err.Error())
		}
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.settings.Matcher.TopK
	}
	return s.matcher.RankCandidates(ctx, recommender.NewJobContext(req.Job, emb), req.Candidates, topK, s.settings.Matcher.Workers)
}

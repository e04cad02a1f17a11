package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cvision/internal/config"
	"cvision/internal/logger"
	"cvision/internal/tracing"
	"cvision/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var qdrantTracer = otel.Tracer("cvision/storage/qdrant")

// QdrantPointIDNamespace 生成确定性 point ID 的命名空间。同一 (简历, 视图) 总是得到同一个 ID，重复写入即覆盖
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("3b0f6d8e-2a71-4c55-9f0e-6c1d2b8a7e41"))

// PointID (简历ID, 视图) -> point ID
func PointID(resumeID string, view types.View) string {
	return uuid.NewV5(QdrantPointIDNamespace, fmt.Sprintf("resume:%s:view:%s", resumeID, view)).String()
}

// SearchResult 一个检索结果
type SearchResult struct {
	ID       string
	ResumeID string
	Score    float32
	Payload  map[string]interface{}
}

// Qdrant 通过 HTTP 接口访问 Qdrant。每份简历每个视图一个 point
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	apiKey         string
	httpClient     *http.Client
}

// QdrantOption 构造选项
type QdrantOption func(*Qdrant)

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建客户端并确保集合存在
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}
	q := &Qdrant{
		endpoint:       cfg.Endpoint,
		collectionName: cfg.Collection,
		vectorSize:     cfg.Dimension,
		distanceMetric: "Cosine",
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
	if q.endpoint == "" {
		q.endpoint = "http://localhost:6333"
	}
	if q.collectionName == "" {
		q.collectionName = "resume_views"
	}
	if q.vectorSize <= 0 {
		q.vectorSize = 384
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(context.Background()); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", q.collectionName, err)
	}
	return q, nil
}

// ensureCollectionExists 集合不存在时创建，并为 resume_id/view 建 payload 索引
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collectionName, nil, &info)
	if status == http.StatusNotFound {
		return q.createCollection(ctx)
	}
	if err != nil {
		return err
	}

	vec := info.Result.Config.Params.Vectors
	if vec.Size != q.vectorSize || vec.Distance != q.distanceMetric {
		logger.Warn().
			Int("existing_size", vec.Size).Str("existing_distance", vec.Distance).
			Int("size", q.vectorSize).Str("distance", q.distanceMetric).
			Msg("现有Qdrant集合配置与当前配置不匹配")
	}
	return nil
}

func (q *Qdrant) createCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collectionName, body, nil); err != nil {
		return fmt.Errorf("创建集合失败: %w", err)
	}
	for _, field := range []string{"resume_id", "view"} {
		index := map[string]interface{}{"field_name": field, "field_schema": "keyword"}
		if _, err := q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/index", q.collectionName), index, nil); err != nil {
			return fmt.Errorf("创建 payload 索引 %s 失败: %w", field, err)
		}
	}
	logger.Info().Str("collection", q.collectionName).Int("size", q.vectorSize).Msg("已创建Qdrant集合")
	return nil
}

// UpsertResumeViews 写入一份简历的视图向量，缺失或维度不符的视图跳过。返回写入的 point ID
func (q *Qdrant) UpsertResumeViews(ctx context.Context, resumeID, resumeFile string, emb types.ViewEmbeddings) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.UpsertResumeViews",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.collection", q.collectionName),
			attribute.String("resume.id", resumeID),
		))
	defer span.End()

	points := make([]map[string]interface{}, 0, len(types.AllViews))
	ids := make([]string, 0, len(types.AllViews))
	for _, view := range types.AllViews {
		vec := emb[view]
		if len(vec) == 0 {
			continue
		}
		if len(vec) != q.vectorSize {
			span.AddEvent("skip_view", trace.WithAttributes(
				attribute.String("view", string(view)),
				attribute.Int("dim", len(vec)),
			))
			continue
		}
		id := PointID(resumeID, view)
		ids = append(ids, id)
		points = append(points, map[string]interface{}{
			"id":     id,
			"vector": vec,
			"payload": map[string]interface{}{
				"resume_id":   resumeID,
				"resume_file": resumeFile,
				"view":        string(view),
			},
		})
	}
	span.SetAttributes(attribute.Int("points.count", len(points)))
	if len(points) == 0 {
		span.SetStatus(codes.Ok, "no points to store")
		return ids, nil
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName)
	if _, err := q.doRequest(ctx, http.MethodPut, path, map[string]interface{}{"points": points}, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// SearchResumes 在指定视图上检索最相似的简历，每份简历只返回一次
func (q *Qdrant) SearchResumes(ctx context.Context, view types.View, vector []float64, limit int) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.SearchResumes",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.collection", q.collectionName),
			attribute.String("search.view", string(view)),
			attribute.Int("search.limit", limit),
		))
	defer span.End()

	if len(vector) != q.vectorSize {
		err := fmt.Errorf("查询向量维度(%d)与配置维度(%d)不匹配", len(vector), q.vectorSize)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	req := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "view", "match": map[string]interface{}{"value": string(view)}},
			},
		},
	}
	var resp struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collectionName)
	if _, err := q.doRequest(ctx, http.MethodPost, path, req, &resp); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	seen := make(map[string]bool, len(resp.Result))
	results := make([]SearchResult, 0, len(resp.Result))
	for _, p := range resp.Result {
		resumeID, _ := p.Payload["resume_id"].(string)
		if resumeID == "" || seen[resumeID] {
			continue
		}
		seen[resumeID] = true
		results = append(results, SearchResult{
			ID:       fmt.Sprint(p.ID),
			ResumeID: resumeID,
			Score:    p.Score,
			Payload:  p.Payload,
		})
	}
	span.SetAttributes(attribute.Int("search.results.count", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// doRequest 发送 JSON 请求并解析响应。非 2xx 时返回错误，同时返回状态码便于调用方区分 404
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}
		reader = bytes.NewReader(payload)
		span.SetAttributes(attribute.Int("http.request.body.size", len(payload)))
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return 0, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, tracing.TruncateString(string(respBody), 512))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return resp.StatusCode, err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return resp.StatusCode, err
		}
	}
	span.SetStatus(codes.Ok, "")
	return resp.StatusCode, nil
}

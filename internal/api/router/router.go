package router

import (
	"context"
	"errors"
	"time"

	"cvision/internal/api/handler"
	"cvision/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
)

// APIKeyHeader 接口鉴权使用的请求头
const APIKeyHeader = "X-API-Key"

var errInvalidAPIKey = errors.New("invalid api key")

// NewServer 创建带链路追踪和访问日志的 hertz 服务。请求体上限比上传限制多留 1MB 给 multipart 开销
func NewServer(cfg config.ServerConfig, maxUploadMB int) *server.Hertz {
	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize((maxUploadMB+1)<<20),
		server.WithExitWaitTime(5*time.Second),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(accessLog)
	return h
}

func accessLog(ctx context.Context, c *app.RequestContext) {
	start := time.Now()
	c.Next(ctx)
	hlog.CtxInfof(ctx, "%s %s -> %d (%s)", c.Method(), c.Path(), c.Response.StatusCode(), time.Since(start))
}

// apiKeyAuth keys 为空时不校验
func apiKeyAuth(keys []string) []app.HandlerFunc {
	if len(keys) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return []app.HandlerFunc{keyauth.New(
		keyauth.WithKeyLookUp("header:"+APIKeyHeader, ""),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			if _, ok := allowed[key]; ok {
				return true, nil
			}
			return false, errInvalidAPIKey
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"success": false, "error": err.Error()})
		}),
	)}
}

// RegisterRoutes 注册 API 路由。/health 不需要鉴权
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler, jobHandler *handler.JobHandler, apiKeys []string) {
	api := h.Group("/api/v1")

	api.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	secured := api.Group("", apiKeyAuth(apiKeys)...)

	secured.POST("/resumes/extract", resumeHandler.HandleExtract)
	secured.POST("/resumes/lines", resumeHandler.HandleLines)
	secured.GET("/resumes", resumeHandler.HandleListResumes)
	secured.GET("/resumes/:resume_id", resumeHandler.HandleGetResume)

	secured.POST("/jobs", jobHandler.HandleCreateJob)
	secured.GET("/jobs/:job_id", jobHandler.HandleGetJob)
	secured.POST("/jobs/:job_id/embed", jobHandler.HandleEmbedJob)
	secured.GET("/jobs/:job_id/recommendations", jobHandler.HandleRecommend)

	secured.POST("/rank", jobHandler.HandleRank)
}

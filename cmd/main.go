package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cvision/internal/ai"
	"cvision/internal/api/handler"
	"cvision/internal/api/router"
	"cvision/internal/config"
	"cvision/internal/extraction"
	"cvision/internal/logger"
	"cvision/internal/outbox"
	"cvision/internal/parser"
	"cvision/internal/processor"
	"cvision/internal/storage"
	"cvision/internal/tracing"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"   //nolint:gochecknoglobals
	serviceName = "cvision" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时按默认路径查找")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		hlog.Fatalf("加载配置失败: %v", err)
	}
	if err := logger.Init(logger.Config(cfg.Logger)); err != nil {
		hlog.Fatalf("初始化日志失败: %v", err)
	}
	log := logger.Component("main")
	log.Info().Str("service", serviceName).Str("version", version).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("初始化链路追踪失败，继续运行")
		shutdownTracing = func(context.Context) error { return nil }
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("存储不可用，仅提供无状态接口")
		storageManager = &storage.Storage{}
	}
	defer storageManager.Close()

	provider, err := ai.SelectProvider(ctx, cfg.AI)
	if err != nil {
		log.Warn().Err(err).Msg("初始化大模型失败，字段抽取只使用规则")
		provider = ai.NoProvider{}
	}

	compOpts := []processor.ComponentOpt{
		processor.WithStorage(storageManager),
		processor.WithProvider(provider),
	}
	if embedder, err := parser.NewOpenAIEmbedder(cfg.Embedding); err != nil {
		log.Warn().Err(err).Msg("未启用向量化，推荐接口不可用")
	} else {
		compOpts = append(compOpts, processor.WithEmbedder(embedder))
	}
	extractTimeout := time.Duration(cfg.Pipeline.ExtractTimeoutSeconds) * time.Second
	if textExtractor, err := extraction.NewEinoTextExtractor(ctx, extractTimeout); err != nil {
		log.Warn().Err(err).Msg("Eino PDF 文本兜底不可用")
	} else {
		compOpts = append(compOpts, processor.WithTextExtractor(textExtractor))
	}

	comps := processor.NewComponents(compOpts...)
	settings := processor.NewSettings(
		processor.WithPipelineConfig(cfg.Pipeline),
		processor.WithMatcherConfig(cfg.Matcher),
		processor.WithEventsConfig(cfg.RabbitMQ),
	)
	resumeService := processor.NewResumeService(comps, settings)
	jobService := processor.NewJobService(comps, settings)

	var relay *outbox.MessageRelay
	if storageManager.MySQL != nil && storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.MySQL, storageManager.RabbitMQ)
		relay.Start(ctx)
		log.Info().Msg("消息中继服务已启动")
	}

	var consumersDone []<-chan struct{}
	if storageManager.RabbitMQ != nil && storageManager.MinIO != nil {
		workers := cfg.RabbitMQ.ConsumerWorkers
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			done, err := storageManager.RabbitMQ.StartConsumer(ctx, cfg.RabbitMQ.UploadedQueue, cfg.RabbitMQ.PrefetchCount, resumeService.HandleUploadedMessage)
			if err != nil {
				log.Error().Err(err).Int("worker", i).Msg("启动上传消费者失败")
				break
			}
			consumersDone = append(consumersDone, done)
		}
		log.Info().Int("workers", len(consumersDone)).Str("queue", cfg.RabbitMQ.UploadedQueue).Msg("上传消费者已启动")
	}

	h := router.NewServer(cfg.Server, cfg.Pipeline.MaxUploadMB)
	router.RegisterRoutes(h,
		handler.NewResumeHandler(resumeService),
		handler.NewJobHandler(jobService),
		cfg.Server.APIKeys,
	)
	if len(cfg.Server.APIKeys) == 0 {
		log.Warn().Msg("未配置 api_keys，接口不做鉴权")
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")
		if err := h.Run(); err != nil {
			log.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务器关闭失败")
	}

	cancel()
	for _, done := range consumersDone {
		<-done
	}
	if relay != nil {
		relay.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("关闭链路追踪失败")
	}
	log.Info().Msg("优雅退出完成")
}

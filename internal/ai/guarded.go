package ai

import (
	"context"
	"time"

	"cvision/internal/logger"
	"cvision/internal/tracing"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// GuardOptions 限流与熔断参数，零值使用默认
type GuardOptions struct {
	QPM          int
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// GuardedProvider 给任意 Provider 加上 QPM 限流和熔断
type GuardedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedProvider 包装 Provider
func NewGuardedProvider(inner Provider, opts GuardOptions) *GuardedProvider {
	if opts.QPM <= 0 {
		opts.QPM = 60
	}
	if opts.MinRequests == 0 {
		opts.MinRequests = 3
	}
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = 0.6
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	burst := opts.QPM / 10
	if burst < 1 {
		burst = 1
	}
	log := logger.Component("ai")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= opts.MinRequests && failureRatio >= opts.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("熔断器状态变化")
		},
	})

	return &GuardedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(opts.QPM)/60.0), burst),
		breaker: breaker,
	}
}

// Name 实现 Provider
func (g *GuardedProvider) Name() string { return g.inner.Name() }

// Generate 等待令牌后在熔断器内调用
func (g *GuardedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("ai-provider").Start(ctx, "ai.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.provider", g.inner.Name()),
		attribute.String("ai.prompt", tracing.SafePrompt(prompt)),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeTimeout)
		return "", err
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Generate(ctx, prompt)
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return "", err
	}
	text := out.(string)
	span.SetAttributes(attribute.Int("ai.response_length", len(text)))
	return text, nil
}

// State 熔断器当前状态
func (g *GuardedProvider) State() gobreaker.State {
	return g.breaker.State()
}

package outbox // 发件箱模式：业务数据和事件同一事务落库，由 relay 异步投递到消息队列

import (
	"context"
	"sync"
	"time"

	"cvision/internal/logger"
	"cvision/internal/storage/models"
	"cvision/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5 // 达到后标记为 FAILED，不再投递
)

// Store 锁定一批待投递消息，handle 修改消息状态后由 Store 保存
type Store interface {
	ProcessPendingOutbox(ctx context.Context, limit int, handle func(ctx context.Context, msg *models.OutboxMessage)) (int, error)
}

// Publisher 消息发布器
type Publisher interface {
	PublishMessage(ctx context.Context, exchange, routingKey string, body []byte, persistent bool) error
}

// MessageRelay 轮询 outbox 表并投递消息
type MessageRelay struct {
	store           Store
	publisher       Publisher
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	tracer          trace.Tracer

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// Option relay 选项
type Option func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) Option {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每批数量
func WithBatchSize(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewMessageRelay 创建 relay
func NewMessageRelay(store Store, publisher Publisher, opts ...Option) *MessageRelay {
	r := &MessageRelay{
		store:           store,
		publisher:       publisher,
		logger:          logger.Component("outbox"),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		tracer:          otel.Tracer("cvision/outbox"),
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 在后台轮询，ctx 取消或 Stop 后退出
func (r *MessageRelay) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.pollingInterval).Msg("MessageRelay starting")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		defer close(r.stopped)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case <-ticker.C:
				if _, err := r.ProcessOnce(ctx); err != nil {
					r.logger.Error().Err(err).Msg("处理 outbox 消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	<-r.stopped
	r.logger.Info().Msg("MessageRelay stopped")
}

// ProcessOnce 处理一批消息，返回本批处理的条数
func (r *MessageRelay) ProcessOnce(ctx context.Context) (int, error) {
	n, err := r.store.ProcessPendingOutbox(ctx, r.batchSize, r.publish)
	if n > 0 {
		r.logger.Debug().Int("count", n).Msg("outbox 批次处理完成")
	}
	return n, err
}

// publish 投递单条消息并就地更新状态
func (r *MessageRelay) publish(ctx context.Context, msg *models.OutboxMessage) {
	ctx, span := r.tracer.Start(ctx, "outbox.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", msg.TargetExchange),
			attribute.String("messaging.rabbitmq.routing_key", msg.TargetRoutingKey),
			attribute.String("outbox.event_type", msg.EventType),
			attribute.String("outbox.aggregate_id", msg.AggregateID),
		))
	defer span.End()

	err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		msg.RetryCount++
		msg.ErrorMessage = err.Error()
		if msg.RetryCount >= maxRetryCount {
			msg.Status = models.OutboxStatusFailed
		}
		r.logger.Warn().Err(err).
			Uint64("id", msg.ID).
			Str("aggregate_id", msg.AggregateID).
			Int("retries", msg.RetryCount).
			Msg("投递 outbox 消息失败")
		return
	}

	now := time.Now()
	msg.Status = models.OutboxStatusSent
	msg.ProcessedAt = &now
	msg.ErrorMessage = ""
}

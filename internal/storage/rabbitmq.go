package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cvision/internal/config"
	"cvision/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RabbitMQ 连接和 channel 池。已声明的 exchange/queue/binding 记录在本地，避免重复声明
type RabbitMQ struct {
	conn        *amqp.Connection
	channelPool sync.Pool
	mu          sync.Mutex
	declared    map[string]bool
	publishMu   sync.Mutex
	cfg         *config.RabbitMQConfig
	logger      zerolog.Logger
}

// NewRabbitMQ 建立连接并验证可以打开 channel
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:     conn,
		declared: make(map[string]bool),
		cfg:      cfg,
		logger:   logger.Component("rabbitmq"),
	}
	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, err := conn.Channel()
			if err != nil {
				mq.logger.Error().Err(err).Msg("创建RabbitMQ通道失败")
				return nil
			}
			return ch
		},
	}

	ch := mq.getChannel()
	if ch == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(ch)

	mq.logger.Info().Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

func (r *RabbitMQ) getChannel() *amqp.Channel {
	if ch, ok := r.channelPool.Get().(*amqp.Channel); ok && ch != nil && !ch.IsClosed() {
		return ch
	}
	ch, err := r.conn.Channel()
	if err != nil {
		r.logger.Error().Err(err).Msg("创建新RabbitMQ通道失败")
		return nil
	}
	return ch
}

func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil && !ch.IsClosed() {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// declareOnce 同一个 key 只执行一次声明
func (r *RabbitMQ) declareOnce(key string, declare func(ch *amqp.Channel) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared[key] {
		return nil
	}
	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)
	if err := declare(ch); err != nil {
		return err
	}
	r.declared[key] = true
	return nil
}

// EnsureExchange 声明持久化的 exchange
func (r *RabbitMQ) EnsureExchange(name, kind string) error {
	if name == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	return r.declareOnce("exchange:"+name, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("声明exchange %s 失败: %w", name, err)
		}
		r.logger.Debug().Str("exchange", name).Msg("已确保exchange存在")
		return nil
	})
}

// EnsureQueue 声明持久化队列
func (r *RabbitMQ) EnsureQueue(name string) error {
	return r.declareOnce("queue:"+name, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("声明队列 %s 失败: %w", name, err)
		}
		r.logger.Debug().Str("queue", name).Msg("已确保队列存在")
		return nil
	})
}

// BindQueue 绑定队列到 exchange
func (r *RabbitMQ) BindQueue(queue, exchange, routingKey string) error {
	key := fmt.Sprintf("binding:%s:%s:%s", exchange, queue, routingKey)
	return r.declareOnce(key, func(ch *amqp.Channel) error {
		if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("绑定队列 %s 到 %s 失败: %w", queue, exchange, err)
		}
		return nil
	})
}

// SetupTopology 声明简历和岗位事件的 exchange，以及异步抽取的上传队列
func (r *RabbitMQ) SetupTopology() error {
	for _, ex := range []string{r.cfg.ResumeEventsExchange, r.cfg.JobEventsExchange} {
		if err := r.EnsureExchange(ex, amqp.ExchangeTopic); err != nil {
			return err
		}
	}
	if err := r.EnsureQueue(r.cfg.UploadedQueue); err != nil {
		return err
	}
	return r.BindQueue(r.cfg.UploadedQueue, r.cfg.ResumeEventsExchange, r.cfg.UploadedRoutingKey)
}

// PublishMessage 发布消息到 exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte, persistent bool) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}
	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: mode,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// PublishJSON 序列化后发布
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}, persistent bool) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	return r.PublishMessage(ctx, exchange, routingKey, body, persistent)
}

// StartConsumer 以手动确认方式消费队列，handler 返回 false 时消息重新入队。
// ctx 取消后消费协程退出，返回的 channel 随之关闭。
func (r *RabbitMQ) StartConsumer(ctx context.Context, queue string, prefetch int, handler func(context.Context, []byte) bool) (<-chan struct{}, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("创建消费通道失败: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ch.Close()
		r.logger.Info().Str("queue", queue).Int("prefetch", prefetch).Msg("RabbitMQ消费者已启动")

		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Str("queue", queue).Msg("RabbitMQ消费者已停止")
				return
			case d, ok := <-deliveries:
				if !ok {
					r.logger.Warn().Str("queue", queue).Msg("RabbitMQ投递通道已关闭")
					return
				}
				if handler(ctx, d.Body) {
					if err := d.Ack(false); err != nil {
						r.logger.Error().Err(err).Msg("确认消息失败")
					}
				} else if err := d.Nack(false, true); err != nil {
					r.logger.Error().Err(err).Msg("拒绝消息失败")
				}
			}
		}
	}()
	return done, nil
}

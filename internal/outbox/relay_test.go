package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cvision/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	messages []models.OutboxMessage
}

func (s *memStore) ProcessPendingOutbox(ctx context.Context, limit int, handle func(context.Context, *models.OutboxMessage)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.messages {
		if n == limit {
			break
		}
		if s.messages[i].Status != models.OutboxStatusPending {
			continue
		}
		handle(ctx, &s.messages[i])
		n++
	}
	return n, nil
}

func (s *memStore) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Status
	}
	return out
}

type stubPublisher struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (p *stubPublisher) PublishMessage(_ context.Context, exchange, routingKey string, body []byte, persistent bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, exchange+"/"+routingKey+":"+string(body))
	return nil
}

func pending(id uint64) models.OutboxMessage {
	return models.OutboxMessage{
		ID:               id,
		AggregateID:      "r1",
		EventType:        "resume.structured",
		Payload:          `{"resume_id":"r1"}`,
		TargetExchange:   "cvision.resume.events",
		TargetRoutingKey: "resume.structured",
		Status:           models.OutboxStatusPending,
	}
}

func TestProcessOncePublishesAndMarksSent(t *testing.T) {
	store := &memStore{messages: []models.OutboxMessage{pending(1), pending(2)}}
	pub := &stubPublisher{}
	relay := NewMessageRelay(store, pub)

	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{models.OutboxStatusSent, models.OutboxStatusSent}, store.statuses())
	require.Len(t, pub.sent, 2)
	assert.Equal(t, `cvision.resume.events/resume.structured:{"resume_id":"r1"}`, pub.sent[0])
	assert.NotNil(t, store.messages[0].ProcessedAt)
}

func TestProcessOnceRespectsBatchSize(t *testing.T) {
	store := &memStore{messages: []models.OutboxMessage{pending(1), pending(2), pending(3)}}
	relay := NewMessageRelay(store, &stubPublisher{}, WithBatchSize(2))

	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, models.OutboxStatusPending, store.messages[2].Status)
}

func TestPublishFailureRetriesThenFails(t *testing.T) {
	store := &memStore{messages: []models.OutboxMessage{pending(1)}}
	relay := NewMessageRelay(store, &stubPublisher{err: errors.New("broker down")})

	for i := 1; i < maxRetryCount; i++ {
		_, err := relay.ProcessOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, models.OutboxStatusPending, store.messages[0].Status, "未达到最大重试次数前保持 PENDING")
		assert.Equal(t, i, store.messages[0].RetryCount)
	}

	_, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusFailed, store.messages[0].Status)
	assert.Equal(t, "broker down", store.messages[0].ErrorMessage)
}

func TestStartAndStop(t *testing.T) {
	store := &memStore{messages: []models.OutboxMessage{pending(1)}}
	relay := NewMessageRelay(store, &stubPublisher{}, WithPollingInterval(10*time.Millisecond))

	relay.Start(context.Background())
	assert.Eventually(t, func() bool {
		return store.statuses()[0] == models.OutboxStatusSent
	}, time.Second, 10*time.Millisecond)
	relay.Stop()
	relay.Stop() // 重复调用安全
}

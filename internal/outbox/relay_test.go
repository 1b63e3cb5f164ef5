package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/storage/models"
)

type published struct {
	exchange, routingKey, body string
	persistent                 bool
}

type fakePublisher struct {
	mu   sync.Mutex
	fail error
	sent []published
}

func (f *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, message []byte, persistent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, published{exchange, routingKey, string(message), persistent})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	m, err := storage.Open(sqlite.Open(filepath.Join(t.TempDir(), "outbox.db")), storage.OpenOptions{DBName: "outbox_test", DBSystem: "sqlite", LogLevel: 1})
	require.NoError(t, err)
	sqlDB, err := m.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { m.Close() })
	return m.DB()
}

func seed(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, db.Create(&models.OutboxMessage{
			AggregateID:      "profile-1",
			EventType:        constants.EventProfileChanged,
			Payload:          `{"profile_id":"profile-1"}`,
			TargetExchange:   "match.events",
			TargetRoutingKey: "profile.changed",
			Status:           constants.OutboxStatusPending,
		}).Error)
	}
}

func statuses(t *testing.T, db *gorm.DB) []models.OutboxMessage {
	t.Helper()
	var msgs []models.OutboxMessage
	require.NoError(t, db.Order("id asc").Find(&msgs).Error)
	return msgs
}

func TestProcessPendingPublishesInBatches(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, 3)
	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, zerolog.Nop(), Options{BatchSize: 2})
	ctx := context.Background()

	n, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "没有待发送消息")

	require.Equal(t, 3, pub.count())
	assert.Equal(t, published{"match.events", "profile.changed", `{"profile_id":"profile-1"}`, true}, pub.sent[0])
	for _, msg := range statuses(t, db) {
		assert.Equal(t, constants.OutboxStatusSent, msg.Status)
		assert.NotNil(t, msg.ProcessedAt)
		assert.Empty(t, msg.ErrorMessage)
	}
}

func TestProcessPendingMarksFailedAfterMaxRetries(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, 1)
	pub := &fakePublisher{fail: errors.New("channel closed")}
	relay := NewMessageRelay(db, pub, zerolog.Nop(), Options{MaxRetries: 2})
	ctx := context.Background()

	_, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	msgs := statuses(t, db)
	assert.Equal(t, constants.OutboxStatusPending, msgs[0].Status)
	assert.Equal(t, 1, msgs[0].RetryCount)
	assert.Equal(t, "channel closed", msgs[0].ErrorMessage)

	_, err = relay.ProcessPending(ctx)
	require.NoError(t, err)
	msgs = statuses(t, db)
	assert.Equal(t, constants.OutboxStatusFailed, msgs[0].Status)
	assert.Equal(t, 2, msgs[0].RetryCount)

	// FAILED 的消息不再被拾取
	pub.fail = nil
	n, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, pub.count())
}

func TestStartStop(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, 2)
	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, zerolog.Nop(), Options{PollingInterval: 10 * time.Millisecond})

	relay.Start(context.Background())
	assert.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	relay.Stop()
	relay.Stop()
}

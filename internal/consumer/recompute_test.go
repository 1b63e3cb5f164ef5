package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-engine-go/internal/service"
	"match-engine-go/internal/storage"
)

type fakeRecomputer struct {
	mu    sync.Mutex
	errs  []error // 依次返回，用完后返回 nil
	calls []string
}

func (f *fakeRecomputer) Recompute(_ context.Context, userID, profileID string) (*service.MatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+"/"+profileID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &service.MatchResponse{ProfileID: profileID}, nil
}

type fakeSubscriber struct {
	queues   []string
	prefetch int
	handlers []func(context.Context, []byte) bool
	fail     error
}

func (f *fakeSubscriber) StartConsumer(_ context.Context, queue string, prefetch int, handler func(context.Context, []byte) bool) error {
	if f.fail != nil {
		return f.fail
	}
	f.queues = append(f.queues, queue)
	f.prefetch = prefetch
	f.handlers = append(f.handlers, handler)
	return nil
}

func event(t *testing.T, userID, profileID string) []byte {
	t.Helper()
	b, err := json.Marshal(storage.ProfileChangedEvent{UserID: userID, ProfileID: profileID, Version: 2, ChangedAt: time.Now().UTC()})
	require.NoError(t, err)
	return b
}

func newConsumer(rec Recomputer, sub Subscriber) *RecomputeConsumer {
	return NewRecomputeConsumer(sub, rec, zerolog.Nop(), Options{
		Queue:         "q.match_recompute",
		Workers:       3,
		Prefetch:      5,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	})
}

func TestHandleRecomputesProfile(t *testing.T) {
	rec := &fakeRecomputer{}
	c := newConsumer(rec, &fakeSubscriber{})

	assert.True(t, c.Handle(context.Background(), event(t, "user-1", "p-1")))
	assert.Equal(t, []string{"user-1/p-1"}, rec.calls)
}

func TestHandleRetriesTransientFailures(t *testing.T) {
	rec := &fakeRecomputer{errs: []error{errors.New("db busy"), errors.New("db busy")}}
	c := newConsumer(rec, &fakeSubscriber{})

	assert.True(t, c.Handle(context.Background(), event(t, "user-1", "p-1")))
	assert.Len(t, rec.calls, 3)
}

func TestHandleRequeuesAfterRetriesExhausted(t *testing.T) {
	boom := errors.New("db down")
	rec := &fakeRecomputer{errs: []error{boom, boom, boom, boom}}
	c := newConsumer(rec, &fakeSubscriber{})

	assert.False(t, c.Handle(context.Background(), event(t, "user-1", "p-1")), "重试用尽后重新入队")
	assert.Len(t, rec.calls, 3)
}

func TestHandleAcksMissingProfile(t *testing.T) {
	rec := &fakeRecomputer{errs: []error{service.ErrProfileNotFound}}
	c := newConsumer(rec, &fakeSubscriber{})

	assert.True(t, c.Handle(context.Background(), event(t, "user-1", "gone")))
	assert.Len(t, rec.calls, 1, "档案不存在不重试")
}

func TestHandleDropsMalformedMessages(t *testing.T) {
	rec := &fakeRecomputer{}
	c := newConsumer(rec, &fakeSubscriber{})

	assert.True(t, c.Handle(context.Background(), []byte("not json")))
	assert.True(t, c.Handle(context.Background(), []byte(`{"user_id":"u"}`)))
	assert.Empty(t, rec.calls)
}

func TestStartRegistersWorkers(t *testing.T) {
	sub := &fakeSubscriber{}
	rec := &fakeRecomputer{}
	c := newConsumer(rec, sub)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"q.match_recompute", "q.match_recompute", "q.match_recompute"}, sub.queues)
	assert.Equal(t, 5, sub.prefetch)

	assert.True(t, sub.handlers[0](context.Background(), event(t, "user-1", "p-1")))
	assert.Len(t, rec.calls, 1)

	failing := newConsumer(rec, &fakeSubscriber{fail: errors.New("channel closed")})
	assert.Error(t, failing.Start(context.Background()))
}

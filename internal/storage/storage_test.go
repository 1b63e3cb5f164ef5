package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/storage/models"
)

func newTestMySQL(t *testing.T) *MySQL {
	t.Helper()
	m, err := Open(sqlite.Open(filepath.Join(t.TempDir(), "match.db")), OpenOptions{DBName: "match_test", DBSystem: "sqlite", LogLevel: 1})
	require.NoError(t, err, "打开测试数据库失败")
	sqlDB, err := m.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { m.Close() })
	return m
}

func outboxMessages(t *testing.T, m *MySQL) []models.OutboxMessage {
	t.Helper()
	var msgs []models.OutboxMessage
	require.NoError(t, m.DB().Order("id asc").Find(&msgs).Error)
	return msgs
}

func TestProfileRepositoryWritesOutboxInSameTransaction(t *testing.T) {
	m := newTestMySQL(t)
	repo := NewProfileRepository(m, "match.events", "profile.changed")
	ctx := context.Background()

	p, err := repo.CreateProfile(ctx, "user-1", map[string]any{"title": "Driver", "skills": []any{"Driving"}})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ProfileID)
	assert.Equal(t, 1, p.Version)

	updated, err := repo.UpdateProfile(ctx, "user-1", p.ProfileID, map[string]any{"title": "Senior Driver"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	rec, err := updated.Record()
	require.NoError(t, err)
	assert.Equal(t, "Senior Driver", rec["title"])

	msgs := outboxMessages(t, m)
	require.Len(t, msgs, 2, "创建和编辑各写一条发件箱消息")
	for i, msg := range msgs {
		assert.Equal(t, constants.EventProfileChanged, msg.EventType)
		assert.Equal(t, constants.OutboxStatusPending, msg.Status)
		assert.Equal(t, "match.events", msg.TargetExchange)
		assert.Equal(t, "profile.changed", msg.TargetRoutingKey)
		assert.Equal(t, p.ProfileID, msg.AggregateID)

		var evt ProfileChangedEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, "user-1", evt.UserID)
		assert.Equal(t, p.ProfileID, evt.ProfileID)
		assert.Equal(t, i+1, evt.Version)
	}
}

func TestProfileRepositoryOwnership(t *testing.T) {
	m := newTestMySQL(t)
	repo := NewProfileRepository(m, "match.events", "profile.changed")
	ctx := context.Background()

	p, err := repo.CreateProfile(ctx, "user-1", map[string]any{"title": "Cook"})
	require.NoError(t, err)
	_, err = repo.CreateProfile(ctx, "user-2", map[string]any{"title": "Guard"})
	require.NoError(t, err)

	_, err = repo.GetProfile(ctx, "user-2", p.ProfileID)
	assert.ErrorIs(t, err, ErrNotFound, "不能读取他人的档案")

	_, err = repo.UpdateProfile(ctx, "user-2", p.ProfileID, map[string]any{"title": "x"})
	assert.ErrorIs(t, err, ErrNotFound, "不能编辑他人的档案")
	assert.Len(t, outboxMessages(t, m), 2, "失败的编辑不写发件箱")

	list, err := repo.ListProfiles(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ProfileID, list[0].ProfileID)
}

func TestJobRepository(t *testing.T) {
	m := newTestMySQL(t)
	repo := NewJobRepository(m)
	ctx := context.Background()

	_, err := repo.SaveJob(ctx, map[string]any{"id": "job-02", "title": "Cook", "companyName": "Dosa Point"})
	require.NoError(t, err)
	_, err = repo.SaveJob(ctx, map[string]any{"id": "job-01", "title": "Driver", "status": "Closed"})
	require.NoError(t, err)
	generated, err := repo.SaveJob(ctx, map[string]any{"title": "Guard"})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.JobID)

	jobs, err := repo.ListActiveJobs(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, j := range jobs {
		ids = append(ids, j.JobID)
	}
	assert.NotContains(t, ids, "job-01", "closed 岗位不参与匹配")
	assert.Contains(t, ids, "job-02")
	assert.Len(t, ids, 2)

	// 覆盖写入
	_, err = repo.SaveJob(ctx, map[string]any{"id": "job-01", "title": "Delivery Driver"})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateJobStatus(ctx, "job-02", "CLOSED"))

	jobs, err = repo.ListActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	var driver *models.Job
	for i := range jobs {
		if jobs[i].JobID == "job-01" {
			driver = &jobs[i]
		}
	}
	require.NotNil(t, driver)
	assert.Equal(t, "Delivery Driver", driver.Title)

	rec, err := driver.Record()
	require.NoError(t, err)
	assert.Equal(t, "job-01", rec["id"])
	assert.Equal(t, "active", rec["status"])

	assert.ErrorIs(t, repo.UpdateJobStatus(ctx, "missing", "closed"), ErrNotFound)
}

func TestJobMatchUpsertAndCleanup(t *testing.T) {
	m := newTestMySQL(t)
	ctx := context.Background()

	_, err := m.GetJobMatch(ctx, "u", "p")
	assert.ErrorIs(t, err, ErrNotFound)

	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	require.NoError(t, m.UpsertJobMatch(ctx, &models.JobMatch{UserID: "u", ProfileID: "p", Version: 1, Matches: datatypes.JSON(`[{"id":"a"}]`), UpdatedAt: old}))
	require.NoError(t, m.UpsertJobMatch(ctx, &models.JobMatch{UserID: "u", ProfileID: "p", Version: 2, Matches: datatypes.JSON(`[{"id":"b"}]`), UpdatedAt: old}))
	require.NoError(t, m.UpsertJobMatch(ctx, &models.JobMatch{UserID: "u", ProfileID: "fresh", Matches: datatypes.JSON(`[]`)}))

	got, err := m.GetJobMatch(ctx, "u", "p")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"b"}]`, string(got.Matches), "后写覆盖先写")
	assert.Equal(t, 2, got.Version)

	n, err := m.DeleteStaleJobMatches(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = m.GetJobMatch(ctx, "u", "fresh")
	assert.NoError(t, err)

	require.NoError(t, m.DeleteJobMatch(ctx, "u", "fresh"))
	_, err = m.GetJobMatch(ctx, "u", "fresh")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeSentOutbox(t *testing.T) {
	m := newTestMySQL(t)
	ctx := context.Background()

	longAgo := time.Now().UTC().Add(-96 * time.Hour)
	recent := time.Now().UTC()
	for _, msg := range []*models.OutboxMessage{
		{AggregateID: "a", EventType: "e", Payload: "{}", TargetExchange: "x", TargetRoutingKey: "k", Status: constants.OutboxStatusSent, ProcessedAt: &longAgo},
		{AggregateID: "b", EventType: "e", Payload: "{}", TargetExchange: "x", TargetRoutingKey: "k", Status: constants.OutboxStatusSent, ProcessedAt: &recent},
		{AggregateID: "c", EventType: "e", Payload: "{}", TargetExchange: "x", TargetRoutingKey: "k", Status: constants.OutboxStatusPending},
	} {
		require.NoError(t, m.DB().Create(msg).Error)
	}

	n, err := m.PurgeSentOutbox(ctx, time.Now().UTC().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, outboxMessages(t, m), 2)
}

func TestRedisFastTier(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	ctx := context.Background()

	key := constants.MatchResultKey("u1", "p1")
	assert.Equal(t, "app:match:result:u1:p1", key)

	_, err = r.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Set(ctx, key, `[]`, time.Hour))
	val, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[]`, val)
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(2 * time.Hour)
	_, err = r.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound, "过期后视为未命中")

	require.NoError(t, r.Set(ctx, key, `[]`, 0))
	require.NoError(t, r.Del(ctx, key))
	assert.False(t, mr.Exists(key))
	assert.NoError(t, r.Ping(ctx))
}

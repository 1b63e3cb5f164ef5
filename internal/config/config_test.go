package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-engine-go/internal/matching"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err, "无法创建临时目录")
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644), "无法写入临时配置文件")
	return configPath
}

// TestLoadConfigMergesDefaults 验证文件中未出现的字段保留默认值
func TestLoadConfigMergesDefaults(t *testing.T) {
	configPath := writeTempConfig(t, `
server:
  address: ":9090"
rabbitmq:
  url: "amqp://user:pass@mq:5672/"
  prefetch_count: 20
matching:
  skill_gate: soft
  min_match_threshold: 0.5
  max_results: 50
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err, "加载配置不应返回错误")
	require.NotNil(t, config)

	assert.Equal(t, ":9090", config.Server.Address)
	assert.Equal(t, "10s", config.Server.ShutdownTimeout, "未配置的字段使用默认值")
	assert.Equal(t, "amqp://user:pass@mq:5672/", config.RabbitMQ.URL)
	assert.Equal(t, 20, config.RabbitMQ.PrefetchCount)
	assert.Equal(t, "match.events", config.RabbitMQ.MatchEventsExchange)
	assert.Equal(t, 600, config.RateLimit.IPRequestsPerMinute)

	assert.Equal(t, matching.SkillGateSoft, config.Matching.SkillGate)
	assert.Equal(t, 0.5, config.Matching.MinMatchThreshold)
	assert.Equal(t, 50, config.Matching.MaxResults)
	assert.Equal(t, matching.DefaultPolicy().Weights, config.Matching.Weights, "权重未配置时保留默认值")
	assert.NoError(t, config.Validate())
}

// TestLoadConfigEnvOverrides 验证环境变量覆盖
func TestLoadConfigEnvOverrides(t *testing.T) {
	configPath := writeTempConfig(t, `
redis:
  address: "localhost:6379"
`)
	t.Setenv(EnvRedisAddress, "redis.internal:6380")
	t.Setenv(EnvMySQLPassword, "s3cret")
	t.Setenv(EnvRabbitMQURL, "amqp://mq.internal:5672/")

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", config.Redis.Address)
	assert.Equal(t, "s3cret", config.MySQL.Password)
	assert.Equal(t, "amqp://mq.internal:5672/", config.RabbitMQ.URL)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "配置文件不存在")
}

// TestLoadConfigWithIncorrectSyntax 验证 YAML 语法错误时返回解析错误
func TestLoadConfigWithIncorrectSyntax(t *testing.T) {
	configPath := writeTempConfig(t, `
server:
  address: [":8080"
`)
	_, err := LoadConfig(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "解析配置文件失败")
}

func TestValidate(t *testing.T) {
	config := createDefaultConfig()
	require.NoError(t, config.Validate(), "默认配置应当合法")

	config.RateLimit.RequestsPerMinute = 0
	config.RateLimit.IPRequestsPerMinute = 0
	config.Cache.FastTTL = "one hour"
	config.Tracing.Enabled = true
	config.Matching.Weights.Low.Location = 0.9

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit.requests_per_minute")
	assert.Contains(t, err.Error(), "rate_limit.ip_requests_per_minute")
	assert.Contains(t, err.Error(), "cache.fast_ttl")
	assert.Contains(t, err.Error(), "tracing.endpoint")
	assert.Contains(t, err.Error(), "matching: weights.low")
}

func TestCreateSampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, CreateSampleConfig(path))
	assert.Error(t, CreateSampleConfig(path), "已存在的文件不会被覆盖")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.NoError(t, config.Validate())
	assert.Equal(t, matching.DefaultPolicy().TitleCategories, config.Matching.TitleCategories)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, GetDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("bogus", time.Minute))
}

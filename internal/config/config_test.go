package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "无法写入临时配置文件")
	return path
}

// TestLoadConfigOverlaysDefaults YAML 只覆盖给出的字段，其余保持默认值
func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeTempConfig(t, `
rabbitmq:
  url: "amqp://guest:guest@mq:5672/"
  prefetch_count: 20
pipeline:
  merge_lines_y_threshold: 14
matcher:
  top_k: 10
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err, "加载合法配置不应返回错误")
	require.NotNil(t, cfg)

	assert.Equal(t, 20, cfg.RabbitMQ.PrefetchCount, "PrefetchCount 应来自 YAML")
	assert.Equal(t, "resume.uploaded", cfg.RabbitMQ.UploadedRoutingKey, "未配置的字段应保留默认值")
	assert.Equal(t, 14.0, cfg.Pipeline.MergeLinesYThreshold)
	assert.Equal(t, 3.0, cfg.Pipeline.LineYThreshold)
	assert.Equal(t, 10, cfg.Matcher.TopK)
	assert.Equal(t, 0.45, cfg.Matcher.Weights.Phrases, "权重默认值不应被改变")
}

// TestLoadConfigWithIncorrectIndentation 缩进错误时 YAML 解析应失败
func TestLoadConfigWithIncorrectIndentation(t *testing.T) {
	path := writeTempConfig(t, `
rabbitmq:
  prefetch_count: 10
   url: "amqp://x"
`)
	_, err := LoadConfig(path)
	require.Error(t, err, "缩进错误的配置应当报错")
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "server:\n  address: \":9000\"\n")
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("API_KEY", "secret")
	t.Setenv("MATCHER_TOP_K", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "or-key", cfg.AI.OpenRouter.APIKey)
	assert.Equal(t, "gm-key", cfg.AI.Gemini.APIKey)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Contains(t, cfg.Server.APIKeys, "secret")
	assert.Equal(t, 7, cfg.Matcher.TopK)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Matcher.TopK = 0
	require.Error(t, cfg.Validate(), "top_k 必须大于 0")

	cfg = DefaultConfig()
	cfg.Matcher.Weights.Skills = -0.1
	require.Error(t, cfg.Validate(), "负权重应被拒绝")

	require.NoError(t, DefaultConfig().Validate(), "默认配置必须合法")
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	w := DefaultConfig().Matcher.Weights
	sum := w.Phrases + w.FullText + w.Skills + w.Experience + w.Education + w.Certifications
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, GetDuration("5s", time.Second))
	assert.Equal(t, time.Second, GetDuration("", time.Second))
	assert.Equal(t, time.Second, GetDuration("bogus", time.Second))
}

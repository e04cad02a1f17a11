// Package ai 封装字段抽取用的大模型调用。
// 启动时按固定优先级选出一个 Provider，没有可用的 key 时显式返回 NoProvider。
package ai

import (
	"context"
	"errors"
	"time"

	"cvision/internal/config"
	"cvision/internal/logger"
)

var (
	// ErrNoProvider 没有配置任何大模型
	ErrNoProvider = errors.New("no ai provider configured")
	// ErrInvalidJSON 模型输出不是预期的 JSON
	ErrInvalidJSON = errors.New("ai response is not valid json")
	// ErrEmptyResponse 模型返回空内容
	ErrEmptyResponse = errors.New("ai response is empty")
)

// SystemPrompt 所有抽取请求共用的系统提示词
const SystemPrompt = "You are a helpful AI assistant that extracts structured data from resumes."

// Provider 大模型能力：输入提示词，返回原始文本
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// NoProvider 未配置时的占位实现，所有调用都返回 ErrNoProvider
type NoProvider struct{}

// Name 实现 Provider
func (NoProvider) Name() string { return "none" }

// Generate 实现 Provider
func (NoProvider) Generate(context.Context, string) (string, error) { return "", ErrNoProvider }

// Available 是否为真实可用的 Provider
func Available(p Provider) bool {
	if p == nil {
		return false
	}
	_, none := p.(NoProvider)
	return !none
}

// SelectProvider 按 OpenRouter > OpenAI > Gemini 选择第一个配置了 key 的供应商，
// 并包上限流和熔断。
func SelectProvider(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	var (
		p   Provider
		err error
	)
	switch {
	case cfg.OpenRouter.APIKey != "":
		p = NewOpenAICompatProvider("openrouter", cfg.OpenRouter, timeout)
	case cfg.OpenAI.APIKey != "":
		p = NewOpenAICompatProvider("openai", cfg.OpenAI, timeout)
	case cfg.Gemini.APIKey != "":
		p, err = NewGeminiProvider(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
	default:
		logger.Warn().Msg("未配置大模型 key，AI 抽取将被跳过")
		return NoProvider{}, nil
	}

	logger.Info().Str("provider", p.Name()).Msg("已选择大模型供应商")
	return NewGuardedProvider(p, GuardOptions{
		QPM:          cfg.QPM,
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
		OpenTimeout:  time.Duration(cfg.BreakerOpenSeconds) * time.Second,
	}), nil
}

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSONBlock 去掉模型输出外层的 markdown 代码块
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// GenerateJSON 调用模型并把输出解析到 v
func GenerateJSON(ctx context.Context, p Provider, prompt string, v any) error {
	raw, err := p.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	cleaned := CleanJSONBlock(raw)
	if cleaned == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrExtractionFailed     = errors.New("简历抽取失败")
	ErrEmptyDocument        = errors.New("文档没有可用文本")
	ErrUnsupportedFormat    = errors.New("不支持的文件格式")
	ErrFileTooLarge         = errors.New("文件超过大小限制")
	ErrEmbeddingFailed      = errors.New("向量化失败")
	ErrStorageFailed        = errors.New("存储操作失败")
	ErrInvalidInput         = errors.New("输入参数不合法")
	ErrResumeNotFound       = errors.New("简历不存在")
	ErrJobNotFound          = errors.New("岗位不存在")
	ErrJobEmbeddingsMissing = errors.New("岗位尚未向量化")
	ErrNotConfigured        = errors.New("依赖组件未配置")
)

// PipelineError 带上下文的处理错误
type PipelineError struct {
	DocumentID string
	Op         string
	BaseErr    error
	Detail     string
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, ID:%s): %s", e.BaseErr, e.Op, e.DocumentID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, ID:%s)", e.BaseErr, e.Op, e.DocumentID)
}

func (e *PipelineError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewExtractionError(id, detail string) error {
	return &PipelineError{DocumentID: id, Op: "extract", BaseErr: ErrExtractionFailed, Detail: detail}
}

func NewEmbeddingError(id, detail string) error {
	return &PipelineError{DocumentID: id, Op: "embed", BaseErr: ErrEmbeddingFailed, Detail: detail}
}

func NewStorageError(id, op, detail string) error {
	return &PipelineError{DocumentID: id, Op: op, BaseErr: ErrStorageFailed, Detail: detail}
}

func NewValidationError(id, detail string) error {
	return &PipelineError{DocumentID: id, Op: "validate", BaseErr: ErrInvalidInput, Detail: detail}
}

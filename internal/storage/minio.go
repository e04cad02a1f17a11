package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cvision/internal/config"
	"cvision/internal/logger"
	"cvision/internal/types"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
)

// MinIO 保存原始上传文件和结构化 JSON
type MinIO struct {
	client          *minio.Client
	cfg             *config.MinIOConfig
	originalsBucket string
	parsedBucket    string
	logger          zerolog.Logger
}

// OriginalObjectKey 原始文件对象键，例如 resume/{id}/original.pdf
func OriginalObjectKey(resumeID, filename string) string {
	return fmt.Sprintf("resume/%s/original%s", resumeID, strings.ToLower(filepath.Ext(filename)))
}

// StructuredObjectKey 结构化简历对象键
func StructuredObjectKey(resumeID string) string {
	return fmt.Sprintf("resume/%s/structured.json", resumeID)
}

func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// NewMinIO 创建客户端，确保两个存储桶存在并按需设置过期规则
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:          client,
		cfg:             cfg,
		originalsBucket: cfg.OriginalsBucket,
		parsedBucket:    cfg.ParsedBucket,
		logger:          logger.Component("minio"),
	}

	ctx := context.Background()
	for _, bucket := range []string{m.originalsBucket, m.parsedBucket} {
		if err := m.ensureBucketExists(ctx, bucket); err != nil {
			return nil, err
		}
		if cfg.ExpireDays > 0 {
			if err := m.setupBucketLifecycle(ctx, bucket, "expire-"+bucket, cfg.ExpireDays); err != nil {
				m.logger.Warn().Err(err).Str("bucket", bucket).Msg("设置存储桶生命周期失败")
			}
		}
	}

	m.logger.Info().Str("endpoint", cfg.Endpoint).Msg("MinIO客户端初始化成功")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.cfg.Location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucket, err)
	}
	m.logger.Info().Str("bucket", bucket).Msg("已创建存储桶")
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucket, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucket, lc)
}

func (m *MinIO) put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象 %s/%s 失败: %w", bucket, key, err)
	}
	m.logger.Debug().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("对象已上传")
	return nil
}

// PutOriginal 上传原始简历文件，返回对象键
func (m *MinIO) PutOriginal(ctx context.Context, resumeID, filename string, data []byte) (string, error) {
	key := OriginalObjectKey(resumeID, filename)
	if err := m.put(ctx, m.originalsBucket, key, data, getContentType(filepath.Ext(filename))); err != nil {
		return "", err
	}
	return key, nil
}

// PutStructured 上传结构化简历 JSON，返回对象键
func (m *MinIO) PutStructured(ctx context.Context, resumeID string, resume *types.Resume) (string, error) {
	data, err := json.MarshalIndent(resume, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化结构化简历失败: %w", err)
	}
	key := StructuredObjectKey(resumeID)
	if err := m.put(ctx, m.parsedBucket, key, data, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// GetOriginal 下载原始文件
func (m *MinIO) GetOriginal(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.originalsBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.originalsBucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.originalsBucket, key, err)
	}
	return data, nil
}

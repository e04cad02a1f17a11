package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cvision/internal/config"
	"cvision/internal/logger"
	"cvision/internal/processor"
	"cvision/internal/recommender"
	"cvision/internal/types"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const rankedResultsFile = "ranked_results.json"

// jobInput 岗位文件：job 与 posting 二选一，embeddings 为空时现场嵌入
type jobInput struct {
	Job        *types.JobDescriptionForm `json:"job,omitempty"`
	Posting    *types.JobPostingForm     `json:"posting,omitempty"`
	Embeddings types.ViewEmbeddings      `json:"embeddings,omitempty"`
}

func (in jobInput) context() (recommender.JobContext, error) {
	switch {
	case in.Posting != nil:
		return recommender.JobContext{
			Form:       recommender.PostingToForm(*in.Posting),
			Views:      recommender.PostingToViews(*in.Posting),
			Embeddings: in.Embeddings,
		}, nil
	case in.Job != nil:
		return recommender.NewJobContext(*in.Job, in.Embeddings), nil
	default:
		return recommender.JobContext{}, fmt.Errorf("岗位文件必须包含 job 或 posting")
	}
}

func isResumeFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

func runRank(args []string) error {
	fs := pflag.NewFlagSet("rank", pflag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	dir := fs.StringP("dir", "d", "", "简历目录 (必填)")
	jobPath := fs.StringP("job", "j", "", "岗位 JSON 文件 (必填)")
	outDir := fs.StringP("out", "o", ".", "ranked_results.json 输出目录")
	topK := fs.IntP("top", "k", 0, "保留前 K 个，默认取配置")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *jobPath == "" {
		return fmt.Errorf("rank 需要 --dir 和 --job")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	svc, embedder := newService(ctx, cfg, true)

	raw, err := os.ReadFile(*jobPath)
	if err != nil {
		return fmt.Errorf("读取岗位文件失败: %w", err)
	}
	var in jobInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("解析岗位文件失败: %w", err)
	}
	job, err := in.context()
	if err != nil {
		return err
	}
	if len(job.Embeddings) == 0 && embedder != nil {
		if job.Embeddings, err = processor.EmbedViews(ctx, embedder, job.Views); err != nil {
			return fmt.Errorf("岗位向量化失败: %w", err)
		}
	}

	candidates, err := loadCandidates(ctx, svc, embedder, cfg, *dir)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("目录 %s 中没有可处理的简历", *dir)
	}

	k := *topK
	if k <= 0 {
		k = cfg.Matcher.TopK
	}
	matcher := recommender.NewMatcher(cfg.Matcher)
	results, err := matcher.RankCandidates(ctx, job, candidates, k, cfg.Matcher.Workers)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	outPath := filepath.Join(*outDir, rankedResultsFile)
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}
	defer f.Close()
	if err := writeJSON(f, results); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "已排序 %d 份简历，结果写入 %s\n", len(candidates), outPath)
	return nil
}

// loadCandidates 并发结构化并嵌入目录中的简历。单个文件失败只跳过
func loadCandidates(ctx context.Context, svc *processor.ResumeService, embedder processor.TextEmbedder, cfg *config.Config, dir string) ([]types.Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isResumeFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	log := logger.Component("cli")
	slots := make([]*types.Candidate, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Pipeline.BatchWorkers > 0 {
		g.SetLimit(cfg.Pipeline.BatchWorkers)
	}
	for i, name := range files {
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				log.Warn().Err(err).Str("file", name).Msg("读取简历失败，跳过")
				return nil
			}
			resume, err := svc.Pipeline().ExtractResume(gctx, data, name)
			if err != nil {
				log.Warn().Err(err).Str("file", name).Msg("结构化失败，跳过")
				return nil
			}
			views := recommender.ResumeToViews(resume)
			var emb types.ViewEmbeddings
			if embedder != nil {
				if emb, err = processor.EmbedViews(gctx, embedder, views); err != nil {
					log.Warn().Err(err).Str("file", name).Msg("简历向量化失败，只使用词面打分")
				}
			}
			slots[i] = &types.Candidate{
				CandidateID: uuid.NewString(),
				ResumeFile:  name,
				Views:       views,
				Embeddings:  emb,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]types.Candidate, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	return candidates, nil
}

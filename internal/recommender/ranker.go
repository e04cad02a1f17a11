package recommender

import (
	"context"
	"sort"

	"cvision/internal/logger"
	"cvision/internal/types"

	"golang.org/x/sync/errgroup"
)

// DefaultTopK 默认返回的候选人数
const DefaultTopK = 50

// RankCandidates 并发为每个候选人打分，按 match_score 降序稳定排序（同分保持输入顺序），截取前 topK
func (m *Matcher) RankCandidates(ctx context.Context, job JobContext, candidates []types.Candidate, topK, workers int) ([]types.MatchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	results := make([]types.MatchResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.ScorePair(job, candidates[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].MatchScore > results[b].MatchScore
	})
	if len(results) > topK {
		results = results[:topK]
	}

	logger.Ctx(ctx).Debug().Int("candidates", len(candidates)).Int("returned", len(results)).Msg("候选人排序完成")
	return results, nil
}

package sectioning

import (
	"math"
	"strings"

	"cvision/internal/extraction"
	"cvision/internal/logger"
	"cvision/internal/types"

	"github.com/rs/zerolog"
)

// 路由后合并的默认阈值
const (
	DefaultMergeYThreshold      = 12.0
	DefaultEducationVerticalGap = 10.0
	DefaultEducationAlign       = 40.0
)

// 路由后合并特有的规则名
const (
	RulePageMismatch = "page_mismatch"
	RuleVerticalGap  = "vertical_gap"
	RuleSentenceEnd  = "sentence_end"
)

// mergeRules 路由后的续行规则；prev 是累积中的缓冲行
func mergeRules(yThreshold float64) []extraction.Rule {
	return []extraction.Rule{
		{Name: RulePageMismatch, Stop: func(prev, cur *types.Line) bool { return prev.Page != cur.Page }},
		{Name: extraction.RuleSectionMismatch, Stop: func(prev, cur *types.Line) bool { return prev.Section != cur.Section }},
		{Name: extraction.RuleSectionHeader, Stop: func(prev, cur *types.Line) bool { return prev.IsSectionHeader || cur.IsSectionHeader }},
		{Name: extraction.RuleBullet, Stop: func(_, cur *types.Line) bool { return cur.IsBullet }},
		{Name: RuleVerticalGap, Stop: func(prev, cur *types.Line) bool { return cur.Top-prev.Bottom > yThreshold }},
		{Name: RuleSentenceEnd, Stop: func(prev, _ *types.Line) bool {
			t := strings.TrimSpace(prev.Text)
			return strings.HasSuffix(t, ".") || strings.HasSuffix(t, ":") || strings.HasSuffix(t, ";")
		}},
	}
}

// LineMerger 路由之后的合并：续行拼接与教育条目换行合并
type LineMerger struct {
	yThreshold float64
	eduGap     float64
	eduAlign   float64
	logger     zerolog.Logger
}

// LineMergerOption 配置项
type LineMergerOption func(*LineMerger)

// WithMergeYThreshold 续行的最大垂直间距
func WithMergeYThreshold(y float64) LineMergerOption {
	return func(m *LineMerger) {
		if y > 0 {
			m.yThreshold = y
		}
	}
}

// WithEducationThresholds 教育条目合并的间距与对齐阈值
func WithEducationThresholds(gap, align float64) LineMergerOption {
	return func(m *LineMerger) {
		if gap > 0 {
			m.eduGap = gap
		}
		if align > 0 {
			m.eduAlign = align
		}
	}
}

// NewLineMerger 创建合并器
func NewLineMerger(opts ...LineMergerOption) *LineMerger {
	m := &LineMerger{
		yThreshold: DefaultMergeYThreshold,
		eduGap:     DefaultEducationVerticalGap,
		eduAlign:   DefaultEducationAlign,
		logger:     logger.Component("line_merger"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MergeLines 把同章节内的续行累积到缓冲行，直到某条规则阻止
func (m *LineMerger) MergeLines(lines []types.Line) []types.Line {
	if len(lines) == 0 {
		return nil
	}
	rules := mergeRules(m.yThreshold)

	out := make([]types.Line, 0, len(lines))
	buffer := lines[0]
	for _, cur := range lines[1:] {
		if r, stopped := extraction.FirstStop(rules, &buffer, &cur); stopped {
			m.logger.Debug().Str("rule", r.Name).Str("line_id", cur.LineID).Msg("merge_lines stop")
			out = append(out, buffer)
			buffer = cur
			continue
		}
		buffer.Text = strings.TrimRight(buffer.Text, " \t") + " " + strings.TrimLeft(cur.Text, " \t")
		buffer.X0 = math.Min(buffer.X0, cur.X0)
		buffer.X1 = math.Max(buffer.X1, cur.X1)
		buffer.Bottom = cur.Bottom
	}
	return append(out, buffer)
}

// MergeEducationWrapped 教育章节内成对合并换行。
// 不检查年份和冒号：教育行几乎都带这些。
func (m *LineMerger) MergeEducationWrapped(lines []types.Line) []types.Line {
	out := make([]types.Line, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		cur := lines[i]
		if i+1 < len(lines) && m.educationWrap(&cur, &lines[i+1]) {
			next := lines[i+1]
			cur.Text = cur.Text + " " + next.Text
			cur.X1 = math.Max(cur.X1, next.X1)
			cur.Bottom = next.Bottom
			m.logger.Debug().Str("rule", "education_wrap").Str("line_id", cur.LineID).Msg("education merge")
			i++
		}
		out = append(out, cur)
	}
	return out
}

func (m *LineMerger) educationWrap(cur, next *types.Line) bool {
	return cur.Section == types.SectionEducation &&
		next.Section == types.SectionEducation &&
		!cur.IsSectionHeader && !next.IsSectionHeader &&
		extraction.Adjacent(cur, next, m.eduGap, m.eduAlign)
}

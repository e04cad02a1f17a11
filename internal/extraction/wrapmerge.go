package extraction

import (
	"math"

	"cvision/internal/logger"
	"cvision/internal/types"

	"github.com/rs/zerolog"
)

// Stage 0 默认阈值
const (
	DefaultWrapVerticalGap    = 8.0
	DefaultWrapAlignThreshold = 40.0
)

// Decision 一次合并判断的结果
type Decision struct {
	Rule  string
	Merge bool
	Drop  bool
}

// WrapMerger 把被排版折断的视觉行拼回逻辑行
type WrapMerger struct {
	rules          []Rule
	verticalGap    float64
	alignThreshold float64
	logger         zerolog.Logger
}

// WrapOption WrapMerger 的配置项
type WrapOption func(*WrapMerger)

// WithWrapThresholds 设置垂直间距和对齐阈值，非正数忽略
func WithWrapThresholds(verticalGap, alignThreshold float64) WrapOption {
	return func(m *WrapMerger) {
		if verticalGap > 0 {
			m.verticalGap = verticalGap
		}
		if alignThreshold > 0 {
			m.alignThreshold = alignThreshold
		}
	}
}

// WithWrapRules 替换停止规则列表
func WithWrapRules(rules ...Rule) WrapOption {
	return func(m *WrapMerger) {
		m.rules = rules
	}
}

// WithWrapLogger 设置日志
func WithWrapLogger(l zerolog.Logger) WrapOption {
	return func(m *WrapMerger) {
		m.logger = l
	}
}

// NewWrapMerger 创建 Stage 0 合并器
func NewWrapMerger(opts ...WrapOption) *WrapMerger {
	m := &WrapMerger{
		rules:          DefaultWrapRules(),
		verticalGap:    DefaultWrapVerticalGap,
		alignThreshold: DefaultWrapAlignThreshold,
		logger:         logger.Component("wrap_merger"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Decide 判断 cur 是否应吸收 next
func (m *WrapMerger) Decide(cur, next *types.Line) Decision {
	if r, stopped := FirstStop(m.rules, cur, next); stopped {
		return Decision{Rule: r.Name, Drop: r.Drop}
	}
	if !Adjacent(cur, next, m.verticalGap, m.alignThreshold) {
		return Decision{Rule: RuleNotAdjacent}
	}
	return Decision{Rule: RuleWrap, Merge: true}
}

// Merge 顺序扫描并链式合并：合并后的行继续与下一行比较，
// 因此对输出再次调用 Merge 不会产生新的合并。
func (m *WrapMerger) Merge(lines []types.Line) []types.Line {
	out := make([]types.Line, 0, len(lines))
	for i := 0; i < len(lines); {
		cur := lines[i]
		j := i + 1
		dropped := false
		for j < len(lines) {
			next := lines[j]
			d := m.Decide(&cur, &next)
			m.logger.Debug().
				Str("rule", d.Rule).
				Str("line_id", cur.LineID).
				Str("next_id", next.LineID).
				Bool("merge", d.Merge).
				Msg("wrap decision")
			if d.Drop {
				dropped = true
				break
			}
			if !d.Merge {
				break
			}
			cur = joinWrapped(cur, next)
			j++
		}
		if !dropped {
			out = append(out, cur)
		}
		i = j
	}
	return out
}

func joinWrapped(cur, next types.Line) types.Line {
	cur.Text = cur.Text + " " + next.Text
	cur.X1 = math.Max(cur.X1, next.X1)
	cur.Bottom = next.Bottom
	return cur
}

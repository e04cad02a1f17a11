// Package postprocess 把拼接好的行整理成结构化简历，并补充画像、技能分桶和匹配信号。
package postprocess

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"cvision/internal/extraction"
	"cvision/internal/logger"
	"cvision/internal/sectioning"
	"cvision/internal/types"

	"github.com/rs/zerolog"
)

// 要点续行的默认阈值
const (
	DefaultBulletVerticalGap = 10.0
	DefaultBulletIndentDiff  = 30.0
)

// 要点续行特有的规则名
const (
	RuleEmbeddedBullet  = "embedded_bullet"
	RuleNotContinuation = "not_continuation"
)

var monthOrYearRe = regexp.MustCompile(`(?i)\b(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC|\d{4})\b`)

// SplitEmbeddedBullets 把一行里夹带的多个 • 拆成独立的要点行，其余字段原样保留
func SplitEmbeddedBullets(lines []types.Line) []types.Line {
	out := make([]types.Line, 0, len(lines))
	for _, l := range lines {
		if !strings.Contains(l.Text, "•") {
			out = append(out, l)
			continue
		}
		for _, part := range strings.Split(l.Text, "•") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			piece := l
			piece.Text = "• " + part
			piece.IsBullet = true
			out = append(out, piece)
		}
	}
	return out
}

// looksLikeContinuation 判断一行文本是否像上一条要点的延续
func looksLikeContinuation(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(t)
	if unicode.IsLower(first) {
		return true
	}
	if monthOrYearRe.MatchString(t) {
		return false
	}
	if isAllUpper(t) && utf8.RuneCountInString(t) < 40 {
		return false
	}
	return true
}

// isAllUpper 至少有一个字母且没有小写字母
func isAllUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// bulletRules 要点续行的停止规则，只看下一行的属性以及它和当前要点的几何关系
func bulletRules(verticalGap, indentDiff float64) []extraction.Rule {
	return []extraction.Rule{
		{Name: extraction.RuleSectionHeader, Stop: func(_, next *types.Line) bool { return next.IsSectionHeader }},
		{Name: extraction.RuleBullet, Stop: func(_, next *types.Line) bool { return next.IsBullet }},
		{Name: extraction.RuleSectionMismatch, Stop: func(cur, next *types.Line) bool { return cur.Section != next.Section }},
		{Name: sectioning.RulePageMismatch, Stop: func(cur, next *types.Line) bool { return cur.Page != next.Page }},
		{Name: extraction.RuleRoleOrDate, Stop: func(_, next *types.Line) bool { return extraction.IsRoleOrDate(next.Text) }},
		{Name: extraction.RuleCategoryLine, Stop: func(_, next *types.Line) bool { return extraction.IsCategoryLine(next.Text) }},
		{Name: RuleEmbeddedBullet, Stop: func(_, next *types.Line) bool { return strings.Contains(next.Text, "•") }},
		{Name: sectioning.RuleVerticalGap, Stop: func(cur, next *types.Line) bool {
			return math.Abs(next.Top-cur.Bottom) > verticalGap
		}},
		{Name: RuleNotContinuation, Stop: func(cur, next *types.Line) bool {
			return math.Abs(next.X0-cur.X0) > indentDiff && !looksLikeContinuation(next.Text)
		}},
	}
}

// BulletMerger 要点行吸收其后被折断的续行
type BulletMerger struct {
	rules  []extraction.Rule
	logger zerolog.Logger
}

// BulletOption 配置项
type BulletOption func(*bulletSettings)

type bulletSettings struct {
	verticalGap float64
	indentDiff  float64
	logger      zerolog.Logger
}

// WithBulletThresholds 设置垂直间距和缩进差阈值，非正数忽略
func WithBulletThresholds(verticalGap, indentDiff float64) BulletOption {
	return func(s *bulletSettings) {
		if verticalGap > 0 {
			s.verticalGap = verticalGap
		}
		if indentDiff > 0 {
			s.indentDiff = indentDiff
		}
	}
}

// WithBulletLogger 设置日志
func WithBulletLogger(l zerolog.Logger) BulletOption {
	return func(s *bulletSettings) {
		s.logger = l
	}
}

// NewBulletMerger 创建要点续行合并器
func NewBulletMerger(opts ...BulletOption) *BulletMerger {
	s := bulletSettings{
		verticalGap: DefaultBulletVerticalGap,
		indentDiff:  DefaultBulletIndentDiff,
		logger:      logger.Component("bullet_merger"),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &BulletMerger{rules: bulletRules(s.verticalGap, s.indentDiff), logger: s.logger}
}

// MergeBulletContinuations 要点行连续吸收后续行，直到某条规则停止；被吸收的行不再输出
func (m *BulletMerger) MergeBulletContinuations(lines []types.Line) []types.Line {
	out := make([]types.Line, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		cur := lines[i]
		if !cur.IsBullet {
			out = append(out, cur)
			continue
		}
		for i+1 < len(lines) {
			next := &lines[i+1]
			if r, stopped := extraction.FirstStop(m.rules, &cur, next); stopped {
				m.logger.Debug().Str("rule", r.Name).Str("line_id", cur.LineID).Str("next_id", next.LineID).Msg("bullet continuation stop")
				break
			}
			m.logger.Debug().Str("rule", extraction.RuleWrap).Str("line_id", cur.LineID).Str("next_id", next.LineID).Msg("bullet continuation merge")
			cur.Text = strings.TrimRight(cur.Text, " \t") + " " + strings.TrimLeft(next.Text, " \t")
			cur.X1 = math.Max(cur.X1, next.X1)
			cur.Bottom = next.Bottom
			i++
		}
		out = append(out, cur)
	}
	return out
}

// DropEmptyLines 去掉空白行
func DropEmptyLines(lines []types.Line) []types.Line {
	out := make([]types.Line, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.Text) != "" {
			out = append(out, l)
		}
	}
	return out
}

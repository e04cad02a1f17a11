package extraction

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"cvision/internal/types"
)

// 规则名，写入 debug 日志，便于回溯每一次合并/不合并的原因
const (
	RuleSectionHeader   = "section_header"
	RuleEmptyText       = "empty_text"
	RuleSectionMismatch = "section_mismatch"
	RuleBullet          = "bullet"
	RuleCategoryLine    = "category_line"
	RuleRoleOrDate      = "role_or_date"
	RuleNotAdjacent     = "not_adjacent"
	RuleWrap            = "wrap"
)

// categoryPrefixRunes 类别标签（"Languages: ..."）中冒号出现的最大位置
const categoryPrefixRunes = 40

var roleOrDateRe = regexp.MustCompile(`(?i)(Intern|Engineer|Member|Developer|Researcher|Lead|Manager)|(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)|(19|20)\d{2}|Present`)

// Rule 一条命名的停止规则。Stop 返回 true 表示这一对行不能合并；
// Drop 为 true 时命中规则意味着丢弃当前行。
type Rule struct {
	Name string
	Stop func(cur, next *types.Line) bool
	Drop bool
}

// FirstStop 按优先级评估规则，返回第一条命中的规则
func FirstStop(rules []Rule, cur, next *types.Line) (Rule, bool) {
	for _, r := range rules {
		if r.Stop(cur, next) {
			return r, true
		}
	}
	return Rule{}, false
}

// IsCategoryLine 前 40 个字符内出现冒号
func IsCategoryLine(text string) bool {
	if utf8.RuneCountInString(text) <= categoryPrefixRunes {
		return strings.Contains(text, ":")
	}
	return strings.Contains(string([]rune(text)[:categoryPrefixRunes]), ":")
}

// IsRoleOrDate 包含职位词、月份缩写、年份或 Present
func IsRoleOrDate(text string) bool {
	return roleOrDateRe.MatchString(text)
}

// StripBulletGlyphs 去掉首尾的要点符号和空白
func StripBulletGlyphs(text string) string {
	return strings.TrimSpace(strings.Trim(text, "• "))
}

// 以下是换行合并共用的规则

func sectionHeaderRule() Rule {
	return Rule{Name: RuleSectionHeader, Stop: func(cur, next *types.Line) bool {
		return cur.IsSectionHeader || next.IsSectionHeader
	}}
}

func emptyTextRule() Rule {
	return Rule{Name: RuleEmptyText, Drop: true, Stop: func(cur, _ *types.Line) bool {
		return StripBulletGlyphs(cur.Text) == ""
	}}
}

// 只有两行都已分配章节时才比较
func sectionMismatchRule() Rule {
	return Rule{Name: RuleSectionMismatch, Stop: func(cur, next *types.Line) bool {
		return cur.Section != types.SectionNone && next.Section != types.SectionNone && cur.Section != next.Section
	}}
}

func bulletRule() Rule {
	return Rule{Name: RuleBullet, Stop: func(cur, next *types.Line) bool {
		return cur.IsBullet || next.IsBullet
	}}
}

func categoryLineRule() Rule {
	return Rule{Name: RuleCategoryLine, Stop: func(cur, next *types.Line) bool {
		return IsCategoryLine(cur.Text) || IsCategoryLine(next.Text)
	}}
}

func roleOrDateRule() Rule {
	return Rule{Name: RuleRoleOrDate, Stop: func(cur, next *types.Line) bool {
		return IsRoleOrDate(cur.Text) || IsRoleOrDate(next.Text)
	}}
}

// DefaultWrapRules Stage 0 换行合并的停止规则，顺序即优先级
func DefaultWrapRules() []Rule {
	return []Rule{
		sectionHeaderRule(),
		emptyTextRule(),
		sectionMismatchRule(),
		bulletRule(),
		categoryLineRule(),
		roleOrDateRule(),
	}
}

// Adjacent 同页、垂直距离和左对齐都在阈值内
func Adjacent(cur, next *types.Line, verticalGap, alignThreshold float64) bool {
	return cur.Page == next.Page &&
		math.Abs(next.Top-cur.Bottom) <= verticalGap &&
		math.Abs(next.X0-cur.X0) <= alignThreshold
}

// Package sectioning 负责章节头识别、按章节路由以及路由后的行合并
package sectioning

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"cvision/internal/constants"
	"cvision/internal/types"
)

// KeywordTable 章节关键词表。手工维护的封闭列表，随版本号演进
type KeywordTable struct {
	Version  string
	Priority []types.Section
	Keywords map[types.Section][]string
}

// DefaultKeywordTable 当前版本的关键词表
var DefaultKeywordTable = KeywordTable{
	Version: constants.KeywordTableVersion,
	Priority: []types.Section{
		types.SectionExperience,
		types.SectionProjects,
		types.SectionSkills,
		types.SectionEducation,
		types.SectionCertifications,
		types.SectionVolunteering,
		types.SectionProfile,
		types.SectionOther,
	},
	Keywords: map[types.Section][]string{
		types.SectionProfile:        {"profile", "summary", "professional summary", "about", "objective", "career objective"},
		types.SectionEducation:      {"education", "academic"},
		types.SectionExperience:     {"experience", "work experience", "employment", "relevant experience", "internship", "internships", "training"},
		types.SectionProjects:       {"projects", "project", "academic projects"},
		types.SectionSkills:         {"skills", "technical skills", "skillset", "softskills"},
		types.SectionCertifications: {"certifications", "certification", "achievements"},
		types.SectionVolunteering:   {"volunteering", "volunteer"},
		types.SectionOther:          {"interests", "languages", "coursework", "activities"},
	},
}

// maxHeaderRunes 推断标题的最大长度
const maxHeaderRunes = 45

var (
	headerSeparatorRe = regexp.MustCompile(`[|/&]`)
	nonLetterRe       = regexp.MustCompile(`[^a-z\s]`)
	spacesRe          = regexp.MustCompile(`\s+`)
)

// HeaderDetector 编译后的关键词表
type HeaderDetector struct {
	priority []types.Section
	patterns map[types.Section][]*regexp.Regexp
}

// NewHeaderDetector 编译关键词表，关键词按单词边界匹配
func NewHeaderDetector(table KeywordTable) *HeaderDetector {
	d := &HeaderDetector{
		priority: table.Priority,
		patterns: make(map[types.Section][]*regexp.Regexp, len(table.Keywords)),
	}
	for section, kws := range table.Keywords {
		for _, kw := range kws {
			d.patterns[section] = append(d.patterns[section], regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
		}
	}
	return d
}

// NormalizeHeader 小写，分隔符和非字母替换为空格，压缩空白
func NormalizeHeader(text string) string {
	t := strings.ToLower(text)
	t = headerSeparatorRe.ReplaceAllString(t, " ")
	t = nonLetterRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(spacesRe.ReplaceAllString(t, " "))
}

// Detect 返回标题中出现的所有章节，按优先级排序。
// "EXPERIENCE & SKILLS" -> [experience skills]
func (d *HeaderDetector) Detect(text string) []types.Section {
	t := NormalizeHeader(text)
	if t == "" {
		return nil
	}
	var out []types.Section
	for _, section := range d.priority {
		for _, re := range d.patterns[section] {
			if re.MatchString(t) {
				out = append(out, section)
				break
			}
		}
	}
	return out
}

// LooksLikeHeader 已被标记，或者是短的全大写行且没有句读符号
func LooksLikeHeader(line types.Line) bool {
	if line.IsSectionHeader {
		return true
	}
	text := strings.TrimSpace(line.Text)
	if utf8.RuneCountInString(text) > maxHeaderRunes || strings.ContainsAny(text, ".,:;") {
		return false
	}
	cased := false
	for _, r := range text {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

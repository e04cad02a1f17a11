package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"cvision/internal/types"
)

// 纯文本行的合成几何：行号 i 只计保留下来的非空行，间距恒定
const (
	plaintextLineStep   = 10.0
	plaintextLineHeight = 5.0
)

// PlaintextToLines 按换行拆分纯文本，每个非空行生成一条合成的 Line
func PlaintextToLines(text string) []types.Line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []types.Line
	for _, raw := range strings.Split(text, "\n") {
		t := strings.TrimSpace(raw)
		if t == "" {
			continue
		}
		i := len(lines)
		lines = append(lines, types.Line{
			LineID:   fmt.Sprintf("l%d", i),
			Page:     1,
			Text:     t,
			Top:      float64(i) * plaintextLineStep,
			Bottom:   float64(i)*plaintextLineStep + plaintextLineHeight,
			IsBullet: strings.HasPrefix(t, "-") || strings.HasPrefix(t, "•") || strings.HasPrefix(t, "*"),
		})
	}
	return lines
}

// inlineHeaderRe 纯文本里常见的内联章节标题，只认全大写
var inlineHeaderRe = regexp.MustCompile(`\b(WORK EXPERIENCE|EXPERIENCE|EDUCATION|TECHNICAL SKILLS|SKILLS|ACADEMIC PROJECTS|PROJECTS|CERTIFICATIONS)\b`)

// AdaptPlaintextLines 把 "… EDUCATION XYZ University" 这样的内联标题拆成
// 前缀行、标题行、内容行三段，几何信息沿用原行。
// 整行本身就是标题时不拆，交给章节路由处理复合标题。
func AdaptPlaintextLines(lines []types.Line) []types.Line {
	out := make([]types.Line, 0, len(lines))
	for _, l := range lines {
		loc := inlineHeaderRe.FindStringIndex(l.Text)
		if loc == nil || isShortUpper(l.Text) {
			out = append(out, l)
			continue
		}

		prefix := strings.TrimSpace(l.Text[:loc[0]])
		rest := strings.TrimSpace(l.Text[loc[1]:])

		if prefix != "" {
			p := l
			p.LineID = l.LineID + "-0"
			p.Text = prefix
			out = append(out, p)
		}

		h := l
		h.LineID = l.LineID + "-1"
		h.Text = l.Text[loc[0]:loc[1]]
		h.IsSectionHeader = true
		h.IsBullet = false
		out = append(out, h)

		if rest != "" {
			c := l
			c.LineID = l.LineID + "-2"
			c.Text = rest
			c.IsSectionHeader = false
			c.IsBullet = strings.HasPrefix(rest, "-") || strings.HasPrefix(rest, "•") || strings.HasPrefix(rest, "*")
			out = append(out, c)
		}
	}
	return out
}

// isShortUpper 至少一个字母且字母全大写、长度不超过 45、不含句读符号
func isShortUpper(text string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) > 45 || strings.ContainsAny(t, ".,:;") {
		return false
	}
	cased := false
	for _, r := range t {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

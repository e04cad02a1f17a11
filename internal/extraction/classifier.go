package extraction

import (
	"regexp"

	"cvision/internal/types"
)

var (
	bulletRe        = regexp.MustCompile(`^\s*[•\-*]\s+`)
	sectionHeaderRe = regexp.MustCompile(`(?i)^(Education|Experience|Projects|Technical Skills|Certifications)`)
)

// ClassifyLines 标记要点行和显式章节头。已有的标记保留
func ClassifyLines(lines []types.Line) []types.Line {
	for i := range lines {
		lines[i].IsBullet = lines[i].IsBullet || bulletRe.MatchString(lines[i].Text)
		lines[i].IsSectionHeader = lines[i].IsSectionHeader || sectionHeaderRe.MatchString(lines[i].Text)
	}
	return lines
}

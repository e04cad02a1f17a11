package postprocess

import (
	"regexp"
	"sort"
	"strings"

	"cvision/internal/types"
)

var (
	bulletGlyphRe  = regexp.MustCompile("[•·●▪►❖\uf0b7]")
	bulletSplitRe  = regexp.MustCompile("(?:\\s+|^)[•·●▪►❖\uf0b7]\\s+")
	nonLetterRe    = regexp.MustCompile(`[^A-Za-z ]`)
	// 行首的要点符号：• 后可不跟空格，- 和 * 必须跟空格
	bulletPrefixRe = regexp.MustCompile(`^(?:\s*(?:•\s*|[\-*]\s+))+`)
)

// normalizeLineText 统一要点符号并压缩空白
func normalizeLineText(text string) string {
	text = bulletGlyphRe.ReplaceAllString(text, "•")
	return strings.Join(strings.Fields(text), " ")
}

// isProbableName 不超过 5 个词且去掉非字母后全是字母
func isProbableName(text string) bool {
	if len(strings.Fields(text)) > 5 {
		return false
	}
	letters := strings.ReplaceAll(nonLetterRe.ReplaceAllString(text, ""), " ", "")
	return letters != ""
}

// trimBullet 去掉行首的要点符号，与行分类识别的符号一致
func trimBullet(text string) string {
	return strings.TrimSpace(bulletPrefixRe.ReplaceAllString(text, ""))
}

// Structure 按章节把行归入结构化简历。
// 第一个真正章节头之前的内容属于 profile；没有章节头时全部归入 profile。
func Structure(lines []types.Line) *types.StructuredResume {
	out := types.NewStructuredResume()

	sorted := make([]types.Line, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.X0 < b.X0
	})
	for i := range sorted {
		sorted[i].Text = normalizeLineText(sorted[i].Text)
	}

	firstHeader := -1
	for i, l := range sorted {
		if l.IsSectionHeader && l.Section.IsReal() {
			firstHeader = i
			break
		}
	}

	if firstHeader < 0 {
		for _, l := range sorted {
			if l.Text != "" {
				out.Profile.Raw = append(out.Profile.Raw, l.Text)
			}
		}
		return out
	}

	for _, l := range sorted[:firstHeader] {
		if l.IsSectionHeader || l.Text == "" {
			continue
		}
		if isProbableName(l.Text) {
			out.Profile.Raw = append([]string{l.Text}, out.Profile.Raw...)
		} else {
			out.Profile.Raw = append(out.Profile.Raw, l.Text)
		}
	}

	var (
		current = types.SectionNone
		curExp  = -1
		curProj = -1
	)
	for _, l := range sorted[firstHeader:] {
		if l.IsSectionHeader {
			current = l.Section
			curExp, curProj = -1, -1
			continue
		}
		text := l.Text
		if text == "" {
			continue
		}

		// 复合标题下右栏的行已被路由到第二个章节，以行自身的章节为准
		section := current
		if l.Section != types.SectionNone && l.Section != current {
			section = l.Section
		}
		if section == types.SectionNone {
			section = types.SectionOther
		}

		switch section {
		case types.SectionEducation:
			out.Education = append(out.Education, types.EducationEntry{Entry: text})

		case types.SectionExperience:
			if !l.IsBullet {
				parts := bulletSplitRe.Split(text, -1)
				entry := types.ExperienceEntry{Header: strings.TrimSpace(parts[0]), Bullets: []string{}}
				for _, p := range parts[1:] {
					if p = strings.TrimSpace(p); p != "" {
						entry.Bullets = append(entry.Bullets, p)
					}
				}
				out.Experience = append(out.Experience, entry)
				curExp = len(out.Experience) - 1
				continue
			}
			if curExp < 0 {
				out.Experience = append(out.Experience, types.ExperienceEntry{Bullets: []string{}})
				curExp = len(out.Experience) - 1
			}
			out.Experience[curExp].Bullets = append(out.Experience[curExp].Bullets, trimBullet(text))

		case types.SectionProjects:
			if curProj >= 0 {
				out.Projects[curProj].Bullets = append(out.Projects[curProj].Bullets, trimBullet(text))
				continue
			}
			chunks := SplitCompoundProjectLine(trimBullet(text))
			if len(chunks) == 0 {
				continue
			}
			curProj = len(out.Projects)
			for _, c := range chunks {
				out.Projects = append(out.Projects, types.ProjectEntry{Title: c, Bullets: []string{}})
			}

		case types.SectionSkills:
			out.Skills.Raw = append(out.Skills.Raw, text)

		case types.SectionCertifications:
			out.Certifications = append(out.Certifications, trimBullet(text))

		default:
			out.Other = append(out.Other, text)
		}
	}
	return out
}

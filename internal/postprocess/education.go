package postprocess

import (
	"regexp"
	"strings"

	"cvision/internal/types"
)

var (
	// 新院校的起点：出现年份区间（或到 Present）
	educationBoundaryRe = regexp.MustCompile(`(19|20)\d{2}\s*[–—-]\s*((19|20)\d{2}|Present)`)
	yearRangeRe         = regexp.MustCompile(`(19|20)\d{2}\s*[–—-]\s*(19|20)\d{2}`)
	cgpaRe              = regexp.MustCompile(`(?i)(CGPA|GPA)\s*[:\-]?\s*([0-9]+(\.[0-9]+)?)`)
	percentRe           = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%`)
)

// SplitEducationEntries 只在新院校处切分。成绩、学位这类行始终并入当前条目
func SplitEducationEntries(entries []types.EducationEntry) []types.EducationEntry {
	out := make([]types.EducationEntry, 0, len(entries))
	buffer := ""
	for _, e := range entries {
		text := strings.TrimSpace(e.Entry)
		if text == "" {
			continue
		}
		if educationBoundaryRe.MatchString(text) && buffer != "" {
			out = append(out, types.EducationEntry{Entry: buffer})
			buffer = text
			continue
		}
		buffer = strings.TrimSpace(buffer + " " + text)
	}
	if buffer != "" {
		out = append(out, types.EducationEntry{Entry: buffer})
	}
	return out
}

// NormalizeEducation 抽取日期和成绩；院校保留原文，学位和专业暂不拆分
func NormalizeEducation(entries []types.EducationEntry) []types.Education {
	out := make([]types.Education, 0, len(entries))
	for _, e := range entries {
		raw := strings.TrimSpace(e.Entry)
		if raw == "" {
			continue
		}
		out = append(out, types.Education{
			Institution: raw,
			Dates:       yearRangeRe.FindString(raw),
			Score:       extractScore(raw),
		})
	}
	return out
}

// extractScore CGPA 优先于百分比
func extractScore(text string) string {
	if m := cgpaRe.FindStringSubmatch(text); m != nil {
		return "CGPA: " + m[2]
	}
	if m := percentRe.FindStringSubmatch(text); m != nil {
		return m[1] + "%"
	}
	return ""
}

package postprocess

import (
	"regexp"
	"strings"

	"cvision/internal/constants"
)

// ProjectVerbsVersion 项目动词表版本，随 ProjectVerbs 一起修改
const ProjectVerbsVersion = constants.ActionVerbTableVersion

// ProjectVerbs 项目描述开头常见的动词，出现在标题之后即视为新项目开始
var ProjectVerbs = []string{
	"Built", "Developed", "Implemented", "Designed", "Created",
	"Architected", "Deployed", "Led", "Constructed",
}

// 标题至少两个大写开头的词，避免把 "Built an ..." 这样的句子当成标题
const projectTitlePattern = `(?:[A-Z][A-Za-z0-9]+(?:[\-/][A-Za-z0-9]+)?)(?:\s+[A-Z][A-Za-z0-9]+(?:[\-/][A-Za-z0-9]+)?)+`

var (
	projectStartRe = regexp.MustCompile(`(?:^|\s)(?P<title>` + projectTitlePattern + `)\s+(?:` + strings.Join(ProjectVerbs, "|") + `)\b`)
	titleGroup     = projectStartRe.SubexpIndex("title")
)

// SplitCompoundProjectLine 把一段包含多个项目的文字切成多个项目块。
// 识别不到两个以上的项目起点时原样返回；第一个起点之前的文字并入第一块。
func SplitCompoundProjectLine(text string) []string {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}

	matches := projectStartRe.FindAllStringSubmatchIndex(t, -1)
	if len(matches) <= 1 {
		return []string{t}
	}

	chunks := make([]string, 0, len(matches))
	for i := range matches {
		start := matches[i][2*titleGroup]
		if i == 0 {
			start = 0
		}
		end := len(t)
		if i+1 < len(matches) {
			end = matches[i+1][2*titleGroup]
		}
		if chunk := strings.TrimSpace(t[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

package postprocess

import (
	"regexp"
	"strings"

	"cvision/internal/types"
)

var embeddedBulletRe = regexp.MustCompile("[•\uf0b7]\\s*")

// splitEmbedded 第一段保留为标题，其余非空段作为要点
func splitEmbedded(text string) (string, []string, bool) {
	parts := embeddedBulletRe.Split(text, -1)
	if len(parts) <= 1 {
		return text, nil, false
	}
	var bullets []string
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			bullets = append(bullets, p)
		}
	}
	return strings.TrimSpace(parts[0]), bullets, true
}

// ExtractEmbeddedBullets 经历抬头和项目标题里残留的要点拆出来追加到 bullets
func ExtractEmbeddedBullets(s *types.StructuredResume) {
	for i := range s.Experience {
		exp := &s.Experience[i]
		if header, bullets, ok := splitEmbedded(exp.Header); ok {
			exp.Header = header
			exp.Bullets = append(exp.Bullets, bullets...)
		}
	}
	for i := range s.Projects {
		proj := &s.Projects[i]
		if title, bullets, ok := splitEmbedded(proj.Title); ok {
			proj.Title = title
			proj.Bullets = append(proj.Bullets, bullets...)
		}
	}
}

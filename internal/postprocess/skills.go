package postprocess

import (
	"context"
	"fmt"
	"strings"

	"cvision/internal/ai"
	"cvision/internal/logger"
	"cvision/internal/types"

	"github.com/rs/zerolog"
)

// SkillTableVersion 技能分桶表版本
const SkillTableVersion = "2024-01"

// skillBucket 分桶名和关键词，按输出顺序排列
type skillBucket struct {
	Name     string
	Keywords []string
}

var skillBuckets = []skillBucket{
	{Name: "languages", Keywords: []string{"python", "java", "c++", "javascript"}},
	{Name: "frameworks", Keywords: []string{"react", "spring", "fastapi"}},
	{Name: "databases", Keywords: []string{"mysql", "postgresql", "mongodb"}},
	{Name: "cloud_devops", Keywords: []string{"docker", "kubernetes", "aws"}},
	{Name: "concepts", Keywords: []string{"dsa", "ml", "nlp", "os"}},
}

const skillsPromptTemplate = `Extract the list of technical skills mentioned in the following resume skills section.
Return ONLY a JSON array of strings, for example ["Go", "Kubernetes"]. Return [] if there are none.

Skills section:
%s`

// CategorizeSkills 小写子串匹配分桶，同一桶内关键词只出现一次
func CategorizeSkills(raw []string) types.SkillBuckets {
	found := make(map[string][]string, len(skillBuckets))
	for _, line := range raw {
		lower := strings.ToLower(line)
		for _, b := range skillBuckets {
			for _, kw := range b.Keywords {
				if strings.Contains(lower, kw) {
					found[b.Name] = append(found[b.Name], kw)
				}
			}
		}
	}
	return types.SkillBuckets{
		Languages:   dedupe(found["languages"]),
		Frameworks:  dedupe(found["frameworks"]),
		Databases:   dedupe(found["databases"]),
		CloudDevops: dedupe(found["cloud_devops"]),
		Concepts:    dedupe(found["concepts"]),
		AIDetected:  []string{},
	}
}

// SkillCategorizer 规则分桶，配置了大模型时额外做一次技能识别
type SkillCategorizer struct {
	provider ai.Provider
	logger   zerolog.Logger
}

// NewSkillCategorizer provider 可以为 nil
func NewSkillCategorizer(provider ai.Provider) *SkillCategorizer {
	if provider == nil {
		provider = ai.NoProvider{}
	}
	return &SkillCategorizer{provider: provider, logger: logger.Component("skills")}
}

// Categorize 大模型失败时 AIDetected 为空，不影响规则分桶
func (c *SkillCategorizer) Categorize(ctx context.Context, raw []string) types.SkillBuckets {
	buckets := CategorizeSkills(raw)
	if !ai.Available(c.provider) || len(raw) == 0 {
		return buckets
	}

	var detected []string
	prompt := fmt.Sprintf(skillsPromptTemplate, strings.Join(raw, "\n"))
	if err := ai.GenerateJSON(ctx, c.provider, prompt, &detected); err != nil {
		c.logger.Warn().Err(err).Str("provider", c.provider.Name()).Msg("AI 技能识别失败，跳过")
		return buckets
	}

	cleaned := make([]string, 0, len(detected))
	for _, s := range detected {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	buckets.AIDetected = dedupe(cleaned)
	return buckets
}

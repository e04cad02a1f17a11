package postprocess

import (
	"context"

	"cvision/internal/ai"
	"cvision/internal/types"
)

// Builder 把结构化中间记录映射成最终输出
type Builder struct {
	profile *ProfileParser
	skills  *SkillCategorizer
}

// NewBuilder provider 为 nil 时只走规则
func NewBuilder(provider ai.Provider) *Builder {
	return &Builder{
		profile: NewProfileParser(provider),
		skills:  NewSkillCategorizer(provider),
	}
}

// BuildFinalResume 输出 schema v1，字段名保持稳定
func (b *Builder) BuildFinalResume(ctx context.Context, s *types.StructuredResume) *types.Resume {
	signals := s.Signals
	if signals.Phrases == nil {
		signals.Phrases = []string{}
	}
	return &types.Resume{
		Profile:        b.profile.Parse(ctx, s.Profile.Raw),
		Education:      NormalizeEducation(s.Education),
		Experience:     nonNilExperience(s.Experience),
		Projects:       nonNilProjects(s.Projects),
		Skills:         b.skills.Categorize(ctx, s.Skills.Raw),
		Certifications: nonNil(s.Certifications),
		Other:          nonNil(s.Other),
		Signals:        signals,
	}
}

// BuildFinalResume 不使用大模型的便捷入口
func BuildFinalResume(ctx context.Context, s *types.StructuredResume) *types.Resume {
	return NewBuilder(nil).BuildFinalResume(ctx, s)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilExperience(in []types.ExperienceEntry) []types.ExperienceEntry {
	if in == nil {
		return []types.ExperienceEntry{}
	}
	for i := range in {
		in[i].Bullets = nonNil(in[i].Bullets)
	}
	return in
}

func nonNilProjects(in []types.ProjectEntry) []types.ProjectEntry {
	if in == nil {
		return []types.ProjectEntry{}
	}
	for i := range in {
		in[i].Bullets = nonNil(in[i].Bullets)
	}
	return in
}

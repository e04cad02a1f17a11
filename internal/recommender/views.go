// Package recommender 负责文本视图构建、候选人打分和排序
package recommender

import (
	"fmt"
	"strings"

	"cvision/internal/types"
)

func norm(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// join 归一化后拼接非空片段
func join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = norm(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func labeled(label string, items []string, sep string) string {
	if len(items) == 0 {
		return ""
	}
	return label + ": " + strings.Join(items, sep)
}

// ResumeToViews 把最终简历投影成七个文本视图
func ResumeToViews(r *types.Resume) types.Views {
	skills := join(
		labeled("languages", r.Skills.Languages, ", "),
		labeled("frameworks", r.Skills.Frameworks, ", "),
		labeled("databases", r.Skills.Databases, ", "),
		labeled("cloud_devops", r.Skills.CloudDevops, ", "),
		labeled("concepts", r.Skills.Concepts, ", "),
		labeled("ai_detected", r.Skills.AIDetected, ", "),
	)

	var expParts []string
	for _, e := range r.Experience {
		expParts = append(expParts, e.Header)
		expParts = append(expParts, e.Bullets...)
	}
	experience := join(expParts...)

	var projParts []string
	for _, p := range r.Projects {
		projParts = append(projParts, p.Title)
		projParts = append(projParts, p.Bullets...)
	}
	projects := join(projParts...)

	var eduParts []string
	for _, e := range r.Education {
		eduParts = append(eduParts, e.Institution, e.Degree, e.Field, e.Dates, e.Score)
	}
	education := join(eduParts...)

	certifications := join(r.Certifications...)
	phrases := join(r.Signals.Phrases...)

	fullText := norm(r.Signals.FullText)
	if fullText == "" {
		fullText = join(skills, experience, projects, education, certifications)
	}

	return types.Views{
		types.ViewSkills:         skills,
		types.ViewExperience:     experience,
		types.ViewProjects:       projects,
		types.ViewEducation:      education,
		types.ViewCertifications: certifications,
		types.ViewPhrases:        phrases,
		types.ViewFullText:       fullText,
	}
}

// JobToViews HR 表单的视图：技能同时作为 phrases，全文是标题、描述、技能和经验的拼接
func JobToViews(form types.JobDescriptionForm) types.Views {
	skills := join(form.Skills...)
	return types.Views{
		types.ViewSkills:         skills,
		types.ViewExperience:     norm(form.Experience),
		types.ViewProjects:       "",
		types.ViewEducation:      "",
		types.ViewCertifications: "",
		types.ViewPhrases:        skills,
		types.ViewFullText:       join(form.JobTitle, form.JobDescription, skills, form.Experience),
	}
}

// PostingToViews 完整岗位描述的视图
func PostingToViews(p types.JobPostingForm) types.Views {
	title := norm(p.Title)
	edu := norm(p.Education)

	mustHave := labeled("Must have", p.MustHaveSkills, ", ")
	niceToHave := labeled("Nice to have", p.NiceToHaveSkills, ", ")
	keywords := labeled("Keywords", p.Keywords, ", ")
	responsibilities := labeled("Responsibilities", p.Responsibilities, " ")
	minExp := ""
	if p.MinExperienceYears != nil {
		minExp = fmt.Sprintf("Min experience: %d years", *p.MinExperienceYears)
	}

	full := norm(p.FullText)
	if full == "" {
		titlePart, eduPart := "", ""
		if title != "" {
			titlePart = "Title: " + title
		}
		if edu != "" {
			eduPart = "Education: " + edu
		}
		full = join(titlePart, mustHave, niceToHave, minExp, eduPart, responsibilities, keywords)
	}

	skills := join(mustHave, niceToHave, keywords)
	return types.Views{
		types.ViewSkills:         skills,
		types.ViewExperience:     join(responsibilities, minExp),
		types.ViewProjects:       "",
		types.ViewEducation:      edu,
		types.ViewCertifications: "",
		types.ViewPhrases:        skills,
		types.ViewFullText:       full,
	}
}

// PostingToForm 转换成打分使用的表单，必备技能即表单技能
func PostingToForm(p types.JobPostingForm) types.JobDescriptionForm {
	experience := ""
	if p.MinExperienceYears != nil {
		experience = fmt.Sprintf("%d years", *p.MinExperienceYears)
	}
	description := p.FullText
	if strings.TrimSpace(description) == "" {
		description = strings.Join(p.Responsibilities, " ")
	}
	return types.JobDescriptionForm{
		JobTitle:       p.Title,
		JobDescription: description,
		Skills:         append([]string(nil), p.MustHaveSkills...),
		Experience:     experience,
	}
}

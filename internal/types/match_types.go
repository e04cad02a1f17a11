package types

// View 文本视图名称
type View string

const (
	ViewSkills         View = "skills"
	ViewExperience     View = "experience"
	ViewProjects       View = "projects"
	ViewEducation      View = "education"
	ViewCertifications View = "certifications"
	ViewPhrases        View = "phrases"
	ViewFullText       View = "full_text"
)

// AllViews 七个视图，顺序固定，嵌入时按此顺序批量请求
var AllViews = []View{
	ViewSkills,
	ViewExperience,
	ViewProjects,
	ViewEducation,
	ViewCertifications,
	ViewPhrases,
	ViewFullText,
}

// Views 视图名 -> 归一化后的文本
type Views map[View]string

// Texts 按 AllViews 顺序返回文本
func (v Views) Texts() []string {
	out := make([]string, len(AllViews))
	for i, name := range AllViews {
		out[i] = v[name]
	}
	return out
}

// ViewEmbeddings 视图名 -> 向量；缺失的视图不出现在 map 中
type ViewEmbeddings map[View][]float64

// JobDescriptionForm HR 录入的岗位需求表单
type JobDescriptionForm struct {
	JobTitle       string   `json:"jobTitle" validate:"required"`
	JobDescription string   `json:"jobDescription" validate:"required,min=20"`
	Skills         []string `json:"skills" validate:"required,min=1,dive,required"`
	Experience     string   `json:"experience" validate:"required"`
}

// JobPostingForm 更完整的岗位描述形式，可转换成 JobDescriptionForm 参与打分
type JobPostingForm struct {
	Title              string   `json:"title"`
	MustHaveSkills     []string `json:"must_have_skills"`
	NiceToHaveSkills   []string `json:"nice_to_have_skills"`
	MinExperienceYears *int     `json:"min_experience_years,omitempty"`
	Education          string   `json:"education"`
	Responsibilities   []string `json:"responsibilities"`
	Keywords           []string `json:"keywords"`
	FullText           string   `json:"full_text"`
}

// Candidate 已结构化并已嵌入的候选人
type Candidate struct {
	CandidateID string         `json:"candidate_id"`
	ResumeFile  string         `json:"resume_file,omitempty"`
	Views       Views          `json:"views"`
	Embeddings  ViewEmbeddings `json:"embeddings"`
}

// MatchBreakdown 分数拆解
type MatchBreakdown struct {
	Semantic         float64           `json:"semantic"`
	LexicalOverlap   float64           `json:"lexical_overlap"`
	LexicalComponent float64           `json:"lexical_component"`
	Penalty          float64           `json:"penalty"`
	MissingMustHave  []string          `json:"missing_must_have"`
	Similarities     map[View]*float64 `json:"similarities"`
}

// MatchResult 单个 (候选人, 岗位) 的打分结果，不持久化
type MatchResult struct {
	CandidateID string         `json:"candidate_id"`
	ResumeFile  string         `json:"resume_file,omitempty"`
	RawScore    float64        `json:"raw_score"`
	MatchScore  int            `json:"match_score"`
	Explanation string         `json:"explanation"`
	Breakdown   MatchBreakdown `json:"breakdown"`
}

package types

// Section 简历章节，封闭枚举
type Section string

const (
	SectionNone           Section = "" // 尚未路由
	SectionProfile        Section = "profile"
	SectionEducation      Section = "education"
	SectionExperience     Section = "experience"
	SectionProjects       Section = "projects"
	SectionSkills         Section = "skills"
	SectionCertifications Section = "certifications"
	SectionVolunteering   Section = "volunteering"
	SectionOther          Section = "other"
)

// IsReal 结构化阶段认可的“真正”章节头
func (s Section) IsReal() bool {
	switch s {
	case SectionEducation, SectionExperience, SectionProjects, SectionSkills, SectionCertifications:
		return true
	}
	return false
}

// Word PDF 中抽取出的单个带坐标的词。坐标为页内坐标，原点左上，top/bottom 向下递增
type Word struct {
	Page   int     `json:"page"`
	Text   string  `json:"text"`
	X0     float64 `json:"x0"`
	X1     float64 `json:"x1"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Line 视觉行。流水线各阶段会原地修改文本和包围盒，直到结构化阶段消费
type Line struct {
	LineID          string  `json:"line_id"`
	Page            int     `json:"page"`
	Text            string  `json:"text"`
	X0              float64 `json:"x0"`
	X1              float64 `json:"x1"`
	Top             float64 `json:"top"`
	Bottom          float64 `json:"bottom"`
	IsBullet        bool    `json:"is_bullet"`
	IsSectionHeader bool    `json:"is_section_header"`
	Section         Section `json:"section,omitempty"`
}

// EducationEntry 未归一化的教育条目
type EducationEntry struct {
	Entry string `json:"entry"`
}

// ExperienceEntry 工作经历：一行抬头 + 若干要点
type ExperienceEntry struct {
	Header  string   `json:"header"`
	Bullets []string `json:"bullets"`
}

// ProjectEntry 项目经历
type ProjectEntry struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// RawProfile 第一个章节头之前的原始行
type RawProfile struct {
	Raw []string `json:"raw"`
}

// RawSkills 技能章节原始行
type RawSkills struct {
	Raw []string `json:"raw"`
}

// Signals 供匹配引擎使用的信号
type Signals struct {
	Phrases  []string `json:"phrases"`
	FullText string   `json:"full_text"`
}

// StructuredResume 结构化阶段产出的中间记录，后续阶段只做原地补充
type StructuredResume struct {
	Profile        RawProfile        `json:"profile"`
	Education      []EducationEntry  `json:"education"`
	Experience     []ExperienceEntry `json:"experience"`
	Projects       []ProjectEntry    `json:"projects"`
	Skills         RawSkills         `json:"skills"`
	Certifications []string          `json:"certifications"`
	Other          []string          `json:"other"`
	Signals        Signals           `json:"signals"`
}

// NewStructuredResume 所有切片非 nil，保证 JSON 输出为 [] 而不是 null
func NewStructuredResume() *StructuredResume {
	return &StructuredResume{
		Profile:        RawProfile{Raw: []string{}},
		Education:      []EducationEntry{},
		Experience:     []ExperienceEntry{},
		Projects:       []ProjectEntry{},
		Skills:         RawSkills{Raw: []string{}},
		Certifications: []string{},
		Other:          []string{},
		Signals:        Signals{Phrases: []string{}},
	}
}

// SchemaVersion 最终输出结构的版本号，下游依赖字段名稳定
const SchemaVersion = "v1"

// Profile 解析后的个人信息
type Profile struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Location string   `json:"location"`
	Links    []string `json:"links"`
	Summary  string   `json:"summary"`
}

// Education 归一化后的教育条目。degree/field 暂不抽取
type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	Dates       string `json:"dates"`
	Score       string `json:"score"`
}

// SkillBuckets 分桶后的技能
type SkillBuckets struct {
	Languages   []string `json:"languages"`
	Frameworks  []string `json:"frameworks"`
	Databases   []string `json:"databases"`
	CloudDevops []string `json:"cloud_devops"`
	Concepts    []string `json:"concepts"`
	AIDetected  []string `json:"ai_detected"`
}

// Resume 最终输出（schema v1）
type Resume struct {
	Profile        Profile           `json:"profile"`
	Education      []Education       `json:"education"`
	Experience     []ExperienceEntry `json:"experience"`
	Projects       []ProjectEntry    `json:"projects"`
	Skills         SkillBuckets      `json:"skills"`
	Certifications []string          `json:"certifications"`
	Other          []string          `json:"other"`
	Signals        Signals           `json:"signals"`
}

package sectioning

import (
	"testing"

	"cvision/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "experience skills", NormalizeHeader("EXPERIENCE & SKILLS"))
	assert.Equal(t, "work experience", NormalizeHeader("  Work/Experience: "))
	assert.Equal(t, "skills", NormalizeHeader("SKILLS 2024"))
}

func TestDetectOrdersByPriority(t *testing.T) {
	d := NewHeaderDetector(DefaultKeywordTable)

	assert.Equal(t, []types.Section{types.SectionExperience, types.SectionSkills}, d.Detect("SKILLS | EXPERIENCE"))
	assert.Equal(t, []types.Section{types.SectionExperience}, d.Detect("RELEVANT EXPERIENCE"))
	assert.Equal(t, []types.Section{types.SectionProjects, types.SectionEducation}, d.Detect("ACADEMIC PROJECTS"))
	assert.Empty(t, d.Detect("JOHN DOE"))
	assert.Empty(t, d.Detect("SKILLFUL"), "关键词按单词边界匹配")
}

func TestLooksLikeHeader(t *testing.T) {
	assert.True(t, LooksLikeHeader(types.Line{Text: "EXPERIENCE"}))
	assert.True(t, LooksLikeHeader(types.Line{Text: "Projects", IsSectionHeader: true}))
	assert.False(t, LooksLikeHeader(types.Line{Text: "Experience"}))
	assert.False(t, LooksLikeHeader(types.Line{Text: "CGPA: 8.5"}), "含冒号")
	assert.False(t, LooksLikeHeader(types.Line{Text: "2019 – 2023"}), "没有字母")
	assert.False(t, LooksLikeHeader(types.Line{Text: "A VERY LONG ALL CAPS LINE THAT KEEPS GOING ON AND ON"}))
}

func TestRouteCompoundHeader(t *testing.T) {
	r := NewRouter()
	lines := r.AssignSections([]types.Line{
		{LineID: "l0", Text: "EXPERIENCE SKILLS", X0: 10},
		{LineID: "l1", Text: "Backend developer at Acme", X0: 10},
		{LineID: "l2", Text: "Go, Kafka, Redis", X0: 350},
	})
	require.Len(t, lines, 3)

	assert.True(t, lines[0].IsSectionHeader)
	assert.Equal(t, types.SectionExperience, lines[0].Section)
	assert.Equal(t, types.SectionExperience, lines[1].Section)
	assert.Equal(t, types.SectionSkills, lines[2].Section)
}

func TestRouteIsPure(t *testing.T) {
	r := NewRouter()
	start := NewRouterState()

	next, header := r.Route(start, types.Line{Text: "EDUCATION"})
	assert.Equal(t, []types.Section{types.SectionProfile}, start.Sections, "输入状态不应被修改")
	assert.Equal(t, []types.Section{types.SectionEducation}, next.Sections)
	assert.Equal(t, types.SectionEducation, header.Section)

	// 识别不出章节的全大写行沿用当前章节
	after, unknown := r.Route(next, types.Line{Text: "JOHN DOE"})
	assert.Equal(t, next.Sections, after.Sections)
	assert.Equal(t, types.SectionEducation, unknown.Section)

	_, content := r.Route(RouterState{}, types.Line{Text: "hello"})
	assert.Equal(t, types.SectionProfile, content.Section, "空状态按初始状态处理")
}

func TestRouteUnknownCapsLineStaysContent(t *testing.T) {
	r := NewRouter()
	lines := r.AssignSections([]types.Line{
		{LineID: "l0", Text: "JOHN DOE"},
		{LineID: "l1", Text: "SKILLS"},
		{LineID: "l2", Text: "PYTHON GO DOCKER"},
		{LineID: "l3", Text: "EXPERIENCE"},
		{LineID: "l4", Text: "GOOGLE"},
		{LineID: "l5", Text: "AWARDS", IsSectionHeader: true},
	})
	require.Len(t, lines, 6)

	assert.False(t, lines[0].IsSectionHeader, "姓名不是标题")
	assert.Equal(t, types.SectionProfile, lines[0].Section)
	assert.True(t, lines[1].IsSectionHeader)
	assert.False(t, lines[2].IsSectionHeader, "全大写的技能行按内容处理")
	assert.Equal(t, types.SectionSkills, lines[2].Section)
	assert.False(t, lines[4].IsSectionHeader, "公司名按内容处理")
	assert.Equal(t, types.SectionExperience, lines[4].Section)

	// 已被标记的标题行即使识别不出章节也保持标题，章节沿用当前状态
	assert.True(t, lines[5].IsSectionHeader)
	assert.Equal(t, types.SectionExperience, lines[5].Section)
}

func TestRouterPageMidOption(t *testing.T) {
	r := NewRouter(WithPageMidX(100))
	lines := r.AssignSections([]types.Line{
		{Text: "PROJECTS & CERTIFICATIONS"},
		{Text: "AWS Certified", X0: 150},
	})
	assert.Equal(t, types.SectionCertifications, lines[1].Section)
}

func eduLine(id, text string, top float64) types.Line {
	return types.Line{LineID: id, Page: 1, Text: text, Top: top, Bottom: top + 5, Section: types.SectionEducation}
}

func TestMergeLinesChains(t *testing.T) {
	header := eduLine("l0", "EDUCATION", 0)
	header.IsSectionHeader = true
	lines := []types.Line{
		header,
		eduLine("l1", "XYZ University", 10),
		eduLine("l2", "2019 – 2023", 20),
		eduLine("l3", "CGPA: 8.5", 30),
	}
	out := NewLineMerger().MergeLines(lines)
	require.Len(t, out, 2)
	assert.Equal(t, "EDUCATION", out[0].Text)
	assert.Equal(t, "XYZ University 2019 – 2023 CGPA: 8.5", out[1].Text)
	assert.Equal(t, 35.0, out[1].Bottom)
}

func TestMergeLinesStops(t *testing.T) {
	m := NewLineMerger()

	a := eduLine("a", "Finished the thesis.", 10)
	b := eduLine("b", "next sentence", 20)
	assert.Len(t, m.MergeLines([]types.Line{a, b}), 2, "句号结尾不合并")

	c := eduLine("c", "far away", 40)
	a.Text = "no period"
	assert.Len(t, m.MergeLines([]types.Line{a, c}), 2, "间距超过阈值")

	d := eduLine("d", "• bullet", 20)
	d.IsBullet = true
	assert.Len(t, m.MergeLines([]types.Line{a, d}), 2)

	e := eduLine("e", "other section", 20)
	e.Section = types.SectionSkills
	assert.Len(t, m.MergeLines([]types.Line{a, e}), 2)

	f := eduLine("f", "next page", 20)
	f.Page = 2
	assert.Len(t, m.MergeLines([]types.Line{a, f}), 2)

	assert.Nil(t, m.MergeLines(nil))
}

func TestMergeEducationWrappedIsPairwise(t *testing.T) {
	lines := []types.Line{
		eduLine("l0", "B.Tech Computer Science", 0),
		eduLine("l1", "XYZ Institute 2019-2023", 8),
		eduLine("l2", "CGPA: 9.0", 16),
	}
	out := NewLineMerger().MergeEducationWrapped(lines)
	require.Len(t, out, 2)
	assert.Equal(t, "B.Tech Computer Science XYZ Institute 2019-2023", out[0].Text)
	assert.Equal(t, "CGPA: 9.0", out[1].Text)
}

func TestMergeEducationWrappedSkipsOtherSections(t *testing.T) {
	a := eduLine("l0", "Go", 0)
	a.Section = types.SectionSkills
	b := eduLine("l1", "Rust", 8)
	b.Section = types.SectionSkills
	out := NewLineMerger(WithEducationThresholds(100, 100)).MergeEducationWrapped([]types.Line{a, b})
	assert.Len(t, out, 2)
}

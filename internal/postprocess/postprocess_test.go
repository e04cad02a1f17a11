package postprocess

import (
	"context"
	"testing"

	"cvision/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(id string, text string, x0, top, bottom float64, section types.Section) types.Line {
	return types.Line{LineID: id, Page: 1, Text: text, X0: x0, X1: x0 + 200, Top: top, Bottom: bottom, Section: section}
}

func header(id, text string, top float64, section types.Section) types.Line {
	l := line(id, text, 10, top, top+5, section)
	l.IsSectionHeader = true
	return l
}

func bullet(id, text string, x0, top, bottom float64, section types.Section) types.Line {
	l := line(id, text, x0, top, bottom, section)
	l.IsBullet = true
	return l
}

func TestSplitEmbeddedBullets(t *testing.T) {
	in := []types.Line{
		line("l0", "Go • Docker •  • Redis", 10, 0, 5, types.SectionSkills),
		line("l1", "plain", 10, 10, 15, types.SectionSkills),
	}
	out := SplitEmbeddedBullets(in)
	require.Len(t, out, 4)
	assert.Equal(t, "• Go", out[0].Text)
	assert.Equal(t, "• Docker", out[1].Text)
	assert.Equal(t, "• Redis", out[2].Text)
	for _, l := range out[:3] {
		assert.True(t, l.IsBullet)
		assert.Equal(t, "l0", l.LineID, "其余字段保持不变")
		assert.Equal(t, types.SectionSkills, l.Section)
	}
	assert.Equal(t, "plain", out[3].Text)
}

func TestMergeBulletContinuationsChainsAndStops(t *testing.T) {
	exp := types.SectionExperience
	in := []types.Line{
		bullet("l0", "• Built service", 20, 100, 110, exp),
		line("l1", "handling payments", 30, 112, 122, exp),
		line("l2", "and refunds", 60, 124, 134, exp),
		line("l3", "ACME CORP", 60, 136, 146, exp),
		bullet("l4", "• Another", 20, 148, 158, exp),
	}
	m := NewBulletMerger()
	out := m.MergeBulletContinuations(in)

	require.Len(t, out, 3)
	assert.Equal(t, "• Built service handling payments and refunds", out[0].Text)
	assert.Equal(t, 134.0, out[0].Bottom)
	assert.Equal(t, "ACME CORP", out[1].Text, "缩进不同且全大写的行不是续行")
	assert.Equal(t, "• Another", out[2].Text)

	again := m.MergeBulletContinuations(out)
	assert.Equal(t, out, again, "重复执行结果不变")
}

func TestMergeBulletContinuationsStopRules(t *testing.T) {
	exp := types.SectionExperience
	cases := []struct {
		name string
		next types.Line
	}{
		{"vertical gap", line("n", "far away text", 20, 200, 210, exp)},
		{"role or date", line("n", "Software Engineer", 20, 112, 122, exp)},
		{"category", line("n", "Tools: Go", 20, 112, 122, exp)},
		{"section mismatch", line("n", "continues here", 20, 112, 122, types.SectionSkills)},
		{"embedded bullet", line("n", "foo • bar", 20, 112, 122, exp)},
		{"header", header("n", "SKILLS", 112, exp)},
	}
	m := NewBulletMerger()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := m.MergeBulletContinuations([]types.Line{bullet("b", "• Did things", 20, 100, 110, exp), tc.next})
			assert.Len(t, out, 2)
		})
	}
}

func TestLooksLikeContinuation(t *testing.T) {
	assert.True(t, looksLikeContinuation("and more"))
	assert.False(t, looksLikeContinuation("Jan 2020"))
	assert.False(t, looksLikeContinuation("GOOGLE"))
	assert.True(t, looksLikeContinuation("Kubernetes clusters"))
	assert.False(t, looksLikeContinuation("  "))
}

func TestDropEmptyLines(t *testing.T) {
	out := DropEmptyLines([]types.Line{{Text: " "}, {Text: "x"}, {Text: ""}})
	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0].Text)
}

func TestSplitCompoundProjectLine(t *testing.T) {
	chunks := SplitCompoundProjectLine("Resume Parser Built a PDF tool. Chat App Developed with React")
	assert.Equal(t, []string{"Resume Parser Built a PDF tool.", "Chat App Developed with React"}, chunks)

	assert.Equal(t, []string{"Built an internal dashboard"}, SplitCompoundProjectLine("  Built an internal dashboard "))
	assert.Nil(t, SplitCompoundProjectLine("   "))

	chunks = SplitCompoundProjectLine("Projects: Resume Parser Built X. Chat App Developed Y")
	require.Len(t, chunks, 2)
	assert.Equal(t, "Projects: Resume Parser Built X.", chunks[0], "第一个起点之前的文字并入第一块")
}

func TestStructure(t *testing.T) {
	exp, proj := types.SectionExperience, types.SectionProjects
	lines := []types.Line{
		line("c", "jane@example.com | +1 555 123 4567 | Pune", 10, 0, 5, types.SectionProfile),
		line("n", "Jane Doe", 10, 10, 15, types.SectionProfile),
		header("h1", "EXPERIENCE", 20, exp),
		line("e1", "Backend Engineer, Acme • Built APIs • Cut latency", 10, 30, 35, exp),
		bullet("e2", "● Owned   on-call", 20, 40, 45, exp),
		header("h2", "PROJECTS", 50, proj),
		line("p1", "Resume Parser Built a PDF tool. Chat App Developed with React", 10, 60, 65, proj),
		bullet("p2", "• Added tests", 20, 70, 75, proj),
		header("h3", "SKILLS", 80, types.SectionSkills),
		line("s1", "Python, Go", 10, 90, 95, types.SectionSkills),
		header("h4", "EDUCATION", 100, types.SectionEducation),
		line("ed", "MIT 2020–2024", 10, 110, 115, types.SectionEducation),
		header("h5", "CERTIFICATIONS", 120, types.SectionCertifications),
		bullet("ce", "• AWS SAA", 20, 130, 135, types.SectionCertifications),
	}

	s := Structure(lines)
	assert.Equal(t, []string{"Jane Doe", "jane@example.com | +1 555 123 4567 | Pune"}, s.Profile.Raw)

	require.Len(t, s.Experience, 1)
	assert.Equal(t, "Backend Engineer, Acme", s.Experience[0].Header)
	assert.Equal(t, []string{"Built APIs", "Cut latency", "Owned on-call"}, s.Experience[0].Bullets)

	require.Len(t, s.Projects, 2)
	assert.Equal(t, "Resume Parser Built a PDF tool.", s.Projects[0].Title)
	assert.Equal(t, []string{"Added tests"}, s.Projects[0].Bullets, "要点只挂到第一个项目")
	assert.Equal(t, "Chat App Developed with React", s.Projects[1].Title)
	assert.Empty(t, s.Projects[1].Bullets)

	assert.Equal(t, []string{"Python, Go"}, s.Skills.Raw)
	assert.Equal(t, []types.EducationEntry{{Entry: "MIT 2020–2024"}}, s.Education)
	assert.Equal(t, []string{"AWS SAA"}, s.Certifications)
	assert.Empty(t, s.Other)
}

func TestStructureWithoutHeadersGoesToProfile(t *testing.T) {
	s := Structure([]types.Line{
		line("a", "second", 10, 10, 15, types.SectionProfile),
		line("b", "first", 10, 0, 5, types.SectionProfile),
		line("c", "  ", 10, 20, 25, types.SectionProfile),
	})
	assert.Equal(t, []string{"first", "second"}, s.Profile.Raw)
	assert.NotNil(t, s.Experience)
}

func TestStructureBulletWithoutOpenEntry(t *testing.T) {
	s := Structure([]types.Line{
		header("h", "EXPERIENCE", 0, types.SectionExperience),
		bullet("b", "• Orphan bullet", 20, 10, 15, types.SectionExperience),
	})
	require.Len(t, s.Experience, 1)
	assert.Equal(t, "", s.Experience[0].Header)
	assert.Equal(t, []string{"Orphan bullet"}, s.Experience[0].Bullets)
}

func TestStructureStripsPlaintextBulletGlyphs(t *testing.T) {
	exp := types.SectionExperience
	s := Structure([]types.Line{
		header("h", "EXPERIENCE", 0, exp),
		line("e", "GOOGLE", 10, 10, 15, exp),
		bullet("b1", "- Built payment service", 20, 20, 25, exp),
		bullet("b2", "* Ran on-call", 20, 30, 35, exp),
		header("c", "CERTIFICATIONS", 40, types.SectionCertifications),
		bullet("c1", "- AWS SAA", 20, 50, 55, types.SectionCertifications),
	})
	require.Len(t, s.Experience, 1)
	assert.Equal(t, "GOOGLE", s.Experience[0].Header)
	assert.Equal(t, []string{"Built payment service", "Ran on-call"}, s.Experience[0].Bullets)
	assert.Equal(t, []string{"AWS SAA"}, s.Certifications)
}

func TestStructureHonoursCompoundHeaderColumns(t *testing.T) {
	exp := types.SectionExperience
	s := Structure([]types.Line{
		header("h", "EXPERIENCE SKILLS", 0, exp),
		line("l", "Acme Corp Intern", 10, 10, 15, exp),
		line("r", "Python Docker Kubernetes", 350, 10, 15, types.SectionSkills),
		bullet("b", "• Built services", 20, 20, 25, exp),
	})
	require.Len(t, s.Experience, 1)
	assert.Equal(t, "Acme Corp Intern", s.Experience[0].Header)
	assert.Equal(t, []string{"Built services"}, s.Experience[0].Bullets, "右栏的行不打断左栏条目")
	assert.Equal(t, []string{"Python Docker Kubernetes"}, s.Skills.Raw)
}

func TestSplitEducationEntriesKeepsScoreWithInstitution(t *testing.T) {
	out := SplitEducationEntries([]types.EducationEntry{{Entry: "MIT 2020–2024 CGPA: 9.1"}, {Entry: "Diploma 91%"}})
	assert.Equal(t, []types.EducationEntry{{Entry: "MIT 2020–2024 CGPA: 9.1 Diploma 91%"}}, out)

	out = SplitEducationEntries([]types.EducationEntry{
		{Entry: "MIT 2020–2024"},
		{Entry: "B.Tech"},
		{Entry: "  "},
		{Entry: "City School 2018 - Present"},
	})
	assert.Equal(t, []types.EducationEntry{{Entry: "MIT 2020–2024 B.Tech"}, {Entry: "City School 2018 - Present"}}, out)
}

func TestNormalizeEducation(t *testing.T) {
	out := NormalizeEducation([]types.EducationEntry{
		{Entry: "XYZ University 2019 – 2023 CGPA: 8.5"},
		{Entry: "ABC School 2017—2019 92.4 %"},
		{Entry: "Some College"},
		{Entry: ""},
	})
	require.Len(t, out, 3)
	assert.Equal(t, types.Education{Institution: "XYZ University 2019 – 2023 CGPA: 8.5", Dates: "2019 – 2023", Score: "CGPA: 8.5"}, out[0])
	assert.Equal(t, "2017—2019", out[1].Dates)
	assert.Equal(t, "92.4%", out[1].Score)
	assert.Equal(t, "", out[2].Dates)
	assert.Equal(t, "", out[2].Score)

	gpa := NormalizeEducation([]types.EducationEntry{{Entry: "State U gpa - 3.8"}})
	assert.Equal(t, "CGPA: 3.8", gpa[0].Score)
}

func TestExtractPhrasesDedupOrder(t *testing.T) {
	s := types.NewStructuredResume()
	s.Education = []types.EducationEntry{{Entry: "XYZ University 2019 – 2023 CGPA: 8.5"}}
	s.Experience = []types.ExperienceEntry{{Header: "Machine Learning Engineer", Bullets: []string{"Built REST APIs using Go and Docker"}}}
	s.Skills.Raw = []string{"Python, Machine Learning Engineer"}

	ExtractPhrases(s)
	assert.Equal(t, []string{
		"XYZ University 2019",
		"2023 CGPA: 8.5",
		"Machine Learning Engineer",
		"Built REST APIs",
	}, s.Signals.Phrases)
	assert.Equal(t,
		"XYZ University 2019 – 2023 CGPA: 8.5 Machine Learning Engineer Built REST APIs using Go and Docker Python, Machine Learning Engineer",
		s.Signals.FullText)
}

func TestExtractPhrasesEmpty(t *testing.T) {
	s := types.NewStructuredResume()
	ExtractPhrases(s)
	assert.NotNil(t, s.Signals.Phrases)
	assert.Empty(t, s.Signals.Phrases)
	assert.Equal(t, "", s.Signals.FullText)
}

func TestExtractEmbeddedBullets(t *testing.T) {
	s := types.NewStructuredResume()
	s.Experience = []types.ExperienceEntry{{Header: "Dev at X • shipped A • fixed B", Bullets: []string{"kept"}}}
	s.Projects = []types.ProjectEntry{{Title: "Tool", Bullets: []string{}}}

	ExtractEmbeddedBullets(s)
	assert.Equal(t, "Dev at X", s.Experience[0].Header)
	assert.Equal(t, []string{"kept", "shipped A", "fixed B"}, s.Experience[0].Bullets)
	assert.Equal(t, "Tool", s.Projects[0].Title)
	assert.Empty(t, s.Projects[0].Bullets)
}

func TestCategorizeSkills(t *testing.T) {
	b := CategorizeSkills([]string{"Python, Java, JavaScript, React", "Docker and AWS; MySQL", "python3"})
	assert.Equal(t, []string{"python", "java", "javascript"}, b.Languages)
	assert.Equal(t, []string{"react"}, b.Frameworks)
	assert.Equal(t, []string{"mysql"}, b.Databases)
	assert.Equal(t, []string{"docker", "aws"}, b.CloudDevops)
	assert.Empty(t, b.Concepts)
	assert.NotNil(t, b.AIDetected)
}

type fakeProvider struct {
	out string
	err error
}

func (f fakeProvider) Name() string { return "fake" }

func (f fakeProvider) Generate(context.Context, string) (string, error) { return f.out, f.err }

func TestSkillCategorizerAI(t *testing.T) {
	c := NewSkillCategorizer(fakeProvider{out: "```json\n[\"Go\", \" \", \"Go\", \"gRPC\"]\n```"})
	b := c.Categorize(t.Context(), []string{"Go, gRPC"})
	assert.Equal(t, []string{"Go", "gRPC"}, b.AIDetected)

	c = NewSkillCategorizer(fakeProvider{out: "nope"})
	b = c.Categorize(t.Context(), []string{"Go"})
	assert.Empty(t, b.AIDetected, "失败时跳过 AI 识别")
}

var profileLines = []string{
	"Jane Doe",
	"jane@example.com | +1 555 123 4567 | Pune (India)",
	"https://github.com/jane https://github.com/jane",
}

func TestParseProfileFallback(t *testing.T) {
	p := NewProfileParser(nil).Parse(t.Context(), profileLines)
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "jane@example.com", p.Email)
	assert.Equal(t, "+1 555 123 4567", p.Phone)
	assert.Equal(t, "Pune", p.Location)
	assert.Equal(t, []string{"https://github.com/jane"}, p.Links)
	assert.Equal(t, "Jane Doe\njane@example.com | +1 555 123 4567 | Pune (India)\nhttps://github.com/jane https://github.com/jane", p.Summary)
}

func TestParseProfileLocationParenthesis(t *testing.T) {
	p := NewProfileParser(nil).Parse(t.Context(), []string{"jane doe", "Springfield (IL)"})
	assert.Equal(t, "", p.Name, "首行不是首字母大写的姓名")
	assert.Equal(t, "Springfield", p.Location)
}

func TestParseProfileWithAI(t *testing.T) {
	parser := NewProfileParser(fakeProvider{out: "```json {\"name\":\"Jane D\",\"location\":null,\"summary\":\"Engineer.\"}```"})
	p := parser.Parse(t.Context(), profileLines)
	assert.Equal(t, "Jane D", p.Name)
	assert.Equal(t, "", p.Location)
	assert.Equal(t, "Engineer.", p.Summary)
	assert.Equal(t, "jane@example.com", p.Email, "邮箱始终来自正则")

	parser = NewProfileParser(fakeProvider{out: "garbage"})
	p = parser.Parse(t.Context(), profileLines)
	assert.Equal(t, "Jane Doe", p.Name, "AI 失败时回退到正则")
}

func TestBuildFinalResume(t *testing.T) {
	s := types.NewStructuredResume()
	s.Profile.Raw = []string{"Jane Doe"}
	s.Education = []types.EducationEntry{{Entry: "XYZ University 2019 – 2023 CGPA: 8.5"}}
	s.Experience = []types.ExperienceEntry{{Header: "Dev"}}
	s.Skills.Raw = []string{"Python"}

	r := BuildFinalResume(t.Context(), s)
	assert.Equal(t, "Jane Doe", r.Profile.Name)
	require.Len(t, r.Education, 1)
	assert.Equal(t, "CGPA: 8.5", r.Education[0].Score)
	assert.NotNil(t, r.Experience[0].Bullets)
	assert.Equal(t, []string{"python"}, r.Skills.Languages)
	assert.NotNil(t, r.Projects)
	assert.NotNil(t, r.Signals.Phrases)
}

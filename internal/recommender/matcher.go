package recommender

import (
	"math"
	"regexp"
	"strings"

	"cvision/internal/config"
	"cvision/internal/types"
)

var tokenRe = regexp.MustCompile(`(?i)[a-z0-9+#.\-]{2,}`)

// Cosine 余弦相似度；长度不一致或存在零向量时为 0
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Tokenize 小写去重后的词元，保持首次出现顺序
func Tokenize(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tokenRe.FindAllString(text, -1) {
		t = strings.ToLower(t)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Jaccard 两个词元集合的交并比，任一为空时为 0
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	union := len(setA)
	inter := 0
	seenB := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seenB[t]; dup {
			continue
		}
		seenB[t] = struct{}{}
		if _, ok := setA[t]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// ScoreToPercentage 固定的 logistic 校准，输出 [0,100]
func ScoreToPercentage(raw float64) int {
	adjusted := 1 / (1 + math.Exp(-6*(raw-0.15)))
	score := int(math.Round(adjusted * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// BuildExplanation 列出最多 5 个在简历全文中出现的岗位词
func BuildExplanation(form types.JobDescriptionForm, resumeViews types.Views) string {
	jdText := strings.Join([]string{form.JobTitle, form.JobDescription, strings.Join(form.Skills, " ")}, " ")
	resumeText := strings.ToLower(resumeViews[types.ViewFullText])

	var matched []string
	for _, t := range Tokenize(jdText) {
		if strings.Contains(resumeText, t) {
			matched = append(matched, t)
			if len(matched) == 5 {
				break
			}
		}
	}
	if len(matched) == 0 {
		return "Matched based on overall profile similarity."
	}
	return "Matched due to relevance in " + strings.Join(matched, ", ") + "."
}

// JobContext 一个岗位打分所需的全部输入，岗位只嵌入一次
type JobContext struct {
	Form       types.JobDescriptionForm
	Views      types.Views
	Embeddings types.ViewEmbeddings
}

// NewJobContext 从表单构建视图
func NewJobContext(form types.JobDescriptionForm, embeddings types.ViewEmbeddings) JobContext {
	return JobContext{Form: form, Views: JobToViews(form), Embeddings: embeddings}
}

type weightedView struct {
	view   types.View
	weight float64
}

// Matcher 无状态打分器，可并发使用
type Matcher struct {
	weights       []weightedView
	penalty       float64
	lexicalBoost  float64
	minViewTokens int
}

// NewMatcher 使用配置中的权重
func NewMatcher(cfg config.MatcherConfig) *Matcher {
	w := cfg.Weights
	return &Matcher{
		weights: []weightedView{
			{types.ViewPhrases, w.Phrases},
			{types.ViewFullText, w.FullText},
			{types.ViewSkills, w.Skills},
			{types.ViewExperience, w.Experience},
			{types.ViewEducation, w.Education},
			{types.ViewCertifications, w.Certifications},
		},
		penalty:       cfg.MustHavePenalty,
		lexicalBoost:  cfg.LexicalBoost,
		minViewTokens: cfg.MinViewTokens,
	}
}

// DefaultMatcher 锁定权重的打分器
func DefaultMatcher() *Matcher {
	return NewMatcher(config.DefaultConfig().Matcher)
}

func (m *Matcher) validText(text string) bool {
	return len(strings.Fields(text)) >= m.minViewTokens
}

// ScorePair 计算单个候选人对岗位的分数
func (m *Matcher) ScorePair(job JobContext, c types.Candidate) types.MatchResult {
	sims := make(map[types.View]*float64, len(m.weights))
	var total, totalW float64
	for _, wv := range m.weights {
		if wv.weight <= 0 {
			continue
		}
		rv, jv := c.Embeddings[wv.view], job.Embeddings[wv.view]
		if rv == nil || jv == nil || !m.validText(c.Views[wv.view]) || !m.validText(job.Views[wv.view]) {
			sims[wv.view] = nil
			continue
		}
		s := Cosine(rv, jv)
		sims[wv.view] = &s
		total += wv.weight * s
		totalW += wv.weight
	}

	semantic := 0.0
	if totalW > 0 {
		semantic = total / totalW
	}

	lex := Jaccard(Tokenize(strings.Join(job.Form.Skills, " ")), Tokenize(c.Views[types.ViewPhrases]))
	lexical := m.lexicalBoost * lex

	resumeText := strings.ToLower(c.Views[types.ViewFullText])
	missing := []string{}
	for _, sk := range job.Form.Skills {
		sk = strings.ToLower(sk)
		if !strings.Contains(resumeText, sk) {
			missing = append(missing, sk)
		}
	}
	penalty := 0.0
	if len(job.Form.Skills) > 0 {
		penalty = m.penalty * float64(len(missing)) / float64(len(job.Form.Skills))
	}

	raw := semantic + lexical - penalty
	return types.MatchResult{
		CandidateID: c.CandidateID,
		ResumeFile:  c.ResumeFile,
		RawScore:    raw,
		MatchScore:  ScoreToPercentage(raw),
		Explanation: BuildExplanation(job.Form, c.Views),
		Breakdown: types.MatchBreakdown{
			Semantic:         semantic,
			LexicalOverlap:   lex,
			LexicalComponent: lexical,
			Penalty:          penalty,
			MissingMustHave:  missing,
			Similarities:     sims,
		},
	}
}

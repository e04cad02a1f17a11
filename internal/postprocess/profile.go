package postprocess

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"cvision/internal/ai"
	"cvision/internal/logger"
	"cvision/internal/types"

	"github.com/rs/zerolog"
)

// profileContextLines 发给大模型的最多行数
const profileContextLines = 20

var (
	emailRe        = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	phoneRe        = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{8,}`)
	urlRe          = regexp.MustCompile(`https?://\S+`)
	nameRe         = regexp.MustCompile(`^[A-Z][a-z]+(?:\s[A-Z][a-z]+)+$`)
	cityRe         = regexp.MustCompile(`(?i)(San Francisco|New York|Los Angeles|Chicago|London|Mumbai|Delhi|Bangalore|Pune)`)
	cityBeforePare = regexp.MustCompile(`([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\s*\(`)
)

const profilePromptTemplate = `Extract the following from this resume header text:
1. Name
2. Location (City, Country)
3. Summary (A short 2-3 sentence professional bio/summary based on the text. ALWAYS generate a professional summary based on the role/experience, even if no explicit summary section exists).

Resume Header/Context:
%s

Return ONLY valid JSON in this format:
{ "name": "Name Here", "location": "City, Country", "summary": "Professional summary here..." }

If not found, use null for fields.`

type aiProfile struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Summary  *string `json:"summary"`
}

// ProfileParser 解析个人信息。邮箱、电话和链接始终用正则；姓名、地点和简介优先用大模型
type ProfileParser struct {
	provider ai.Provider
	logger   zerolog.Logger
}

// NewProfileParser provider 可以为 nil
func NewProfileParser(provider ai.Provider) *ProfileParser {
	if provider == nil {
		provider = ai.NoProvider{}
	}
	return &ProfileParser{provider: provider, logger: logger.Component("profile")}
}

// Parse 大模型不可用或失败时退回正则启发式
func (p *ProfileParser) Parse(ctx context.Context, raw []string) types.Profile {
	profile := types.Profile{
		Email:   firstMatch(emailRe, raw),
		Phone:   strings.TrimSpace(firstMatch(phoneRe, raw)),
		Links:   extractLinks(raw),
		Summary: strings.Join(raw, "\n"),
	}

	if extracted, ok := p.extractWithAI(ctx, raw); ok {
		profile.Name = deref(extracted.Name)
		profile.Location = deref(extracted.Location)
		if s := deref(extracted.Summary); s != "" {
			profile.Summary = s
		}
		return profile
	}

	profile.Name = fallbackName(raw)
	profile.Location = fallbackLocation(raw)
	return profile
}

func (p *ProfileParser) extractWithAI(ctx context.Context, raw []string) (aiProfile, bool) {
	var out aiProfile
	if !ai.Available(p.provider) {
		return out, false
	}
	header := raw
	if len(header) > profileContextLines {
		header = header[:profileContextLines]
	}
	prompt := fmt.Sprintf(profilePromptTemplate, strings.Join(header, "\n"))
	if err := ai.GenerateJSON(ctx, p.provider, prompt, &out); err != nil {
		p.logger.Warn().Err(err).Str("provider", p.provider.Name()).Msg("AI 个人信息抽取失败，回退到正则")
		return out, false
	}
	return out, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func firstMatch(re *regexp.Regexp, lines []string) string {
	for _, l := range lines {
		if m := re.FindString(l); m != "" {
			return m
		}
	}
	return ""
}

func extractLinks(lines []string) []string {
	var links []string
	for _, l := range lines {
		links = append(links, urlRe.FindAllString(l, -1)...)
	}
	return dedupe(links)
}

func fallbackName(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	first := strings.TrimSpace(lines[0])
	if nameRe.MatchString(first) {
		return first
	}
	return ""
}

func fallbackLocation(lines []string) string {
	for _, l := range lines {
		if m := cityRe.FindStringSubmatch(l); m != nil {
			return m[1]
		}
		if m := cityBeforePare.FindStringSubmatch(l); m != nil {
			return m[1]
		}
	}
	return ""
}

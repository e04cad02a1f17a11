package postprocess

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"cvision/internal/types"
)

var (
	phraseSplitRe   = regexp.MustCompile(`[•|,\n;/()]+`)
	capitalPhraseRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,4})\b`)
	techLikeRe      = regexp.MustCompile(`^\b([A-Za-z0-9+#.\-]{2,})\b`)
)

var phraseStopwords = map[string]struct{}{
	"and": {}, "or": {}, "with": {}, "using": {}, "for": {},
	"of": {}, "in": {}, "to": {}, "on": {}, "by": {},
}

func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// phrasesFromText 每个分块里取大写短语和连续的技术词
func phrasesFromText(text string) []string {
	var phrases []string
	for _, chunk := range phraseSplitRe.Split(text, -1) {
		chunk = normalizeSpace(chunk)
		if utf8.RuneCountInString(chunk) < 3 {
			continue
		}

		for _, m := range capitalPhraseRe.FindAllStringSubmatch(chunk, -1) {
			p := normalizeSpace(m[1])
			if len(strings.Fields(p)) >= 2 {
				phrases = append(phrases, p)
			}
		}

		var buf []string
		flush := func() {
			if len(buf) >= 2 {
				phrases = append(phrases, strings.Join(buf, " "))
			}
			buf = buf[:0]
		}
		for _, tok := range strings.Fields(chunk) {
			if _, stop := phraseStopwords[strings.ToLower(tok)]; stop {
				flush()
				continue
			}
			if techLikeRe.MatchString(tok) {
				buf = append(buf, tok)
			} else {
				flush()
			}
		}
		flush()
	}
	return phrases
}

// ExtractPhrases 计算匹配信号：去重后的短语（首次出现顺序）和全文
func ExtractPhrases(s *types.StructuredResume) {
	var phrases, parts []string
	add := func(text string) {
		if text == "" {
			return
		}
		phrases = append(phrases, phrasesFromText(text)...)
		parts = append(parts, text)
	}

	for _, e := range s.Education {
		add(e.Entry)
	}
	for _, exp := range s.Experience {
		add(exp.Header)
		for _, b := range exp.Bullets {
			add(b)
		}
	}
	for _, p := range s.Projects {
		add(p.Title)
		for _, b := range p.Bullets {
			add(b)
		}
	}
	for _, raw := range s.Skills.Raw {
		add(raw)
	}
	for _, c := range s.Certifications {
		add(c)
	}
	for _, o := range s.Other {
		add(o)
	}

	s.Signals = types.Signals{
		Phrases:  dedupe(phrases),
		FullText: normalizeSpace(strings.Join(parts, " ")),
	}
}

// dedupe 保持首次出现顺序，结果非 nil
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

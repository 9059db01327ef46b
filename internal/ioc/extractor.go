// Package ioc extracts typed, confidence-scored indicators of compromise
// from raw article text.
package ioc

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"threatfeed/internal/model"
)

// Match is one extracted indicator candidate before persistence.
type Match struct {
	Type            model.IndicatorType
	Value           string
	NormalizedValue string
	Context         string
	Confidence      float64
}

// contextWindow is the number of characters kept on each side of a match.
const contextWindow = 50

// pattern couples an indicator type with its matcher and scoring rule.
// Patterns run in a fixed priority order so overlaps resolve
// deterministically: CVEs first, then IPs, hashes longest-first (a SHA-256
// substring must not be tagged as MD5), URLs before domains.
type pattern struct {
	typ   model.IndicatorType
	re    *regexp.Regexp
	score func(value string) float64
}

var patterns = []pattern{
	{model.IndicatorCVE, regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,7}`), func(string) float64 { return 1.0 }},
	{model.IndicatorIP, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), scoreIP},
	{model.IndicatorSHA256, regexp.MustCompile(`\b[A-Fa-f0-9]{64}\b`), scoreHash},
	{model.IndicatorSHA1, regexp.MustCompile(`\b[A-Fa-f0-9]{40}\b`), scoreHash},
	{model.IndicatorMD5, regexp.MustCompile(`\b[A-Fa-f0-9]{32}\b`), scoreHash},
	{model.IndicatorURL, regexp.MustCompile(`(?i)https?://(?:www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b(?:[-a-zA-Z0-9()@:%_\+.~#?&/=]*)`), func(string) float64 { return 0.85 }},
	{model.IndicatorEmail, regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`), func(string) float64 { return 0.75 }},
	{model.IndicatorDomain, regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9][a-z0-9-]{0,61}[a-z0-9]\b`), scoreDomain},
}

// falsePositives lists syntactically valid values known not to be genuine
// indicators.
var falsePositives = map[string]struct{}{
	"example.com":     {},
	"localhost":       {},
	"127.0.0.1":       {},
	"0.0.0.0":         {},
	"255.255.255.255": {},
}

// Extract returns the deduplicated indicators found in text, in extraction
// order (pattern priority, then position). A normalized value appears at
// most once across the whole article.
func Extract(text string) []Match {
	var out []Match
	seen := map[string]struct{}{}

	for _, p := range patterns {
		var skip func(value string) bool
		if p.typ == model.IndicatorDomain {
			// Hostnames already captured as part of a URL match are not
			// reported again as bare domains.
			urlHosts := map[string]struct{}{}
			for _, m := range out {
				if m.Type != model.IndicatorURL {
					continue
				}
				if u, err := url.Parse(m.Value); err == nil && u.Hostname() != "" {
					urlHosts[strings.ToLower(u.Hostname())] = struct{}{}
				}
			}
			skip = func(value string) bool {
				_, ok := urlHosts[strings.ToLower(value)]
				return ok
			}
		}
		out = extractPattern(text, p, out, seen, skip)
	}
	return out
}

func extractPattern(text string, p pattern, out []Match, seen map[string]struct{}, skip func(string) bool) []Match {
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		normalized := strings.ToLower(strings.TrimSpace(value))

		if _, dup := seen[normalized]; dup {
			continue
		}
		if _, fp := falsePositives[normalized]; fp {
			continue
		}
		if skip != nil && skip(value) {
			continue
		}

		out = append(out, Match{
			Type:            p.typ,
			Value:           value,
			NormalizedValue: normalized,
			Context:         contextAround(text, loc[0], loc[1]),
			Confidence:      p.score(value),
		})
		seen[normalized] = struct{}{}
	}
	return out
}

// contextAround widens [start, end) by contextWindow characters on each
// side. It walks rune by rune so the window never splits a multi-byte
// character.
func contextAround(text string, start, end int) string {
	from := start
	for i := 0; i < contextWindow && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for i := 0; i < contextWindow && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return strings.TrimSpace(text[from:to])
}

var strictHexRe = regexp.MustCompile(`^[a-fA-F0-9]+$`)

func scoreHash(value string) float64 {
	if strictHexRe.MatchString(value) {
		return 0.95
	}
	return 0.7
}

func scoreIP(value string) float64 {
	if isPrivateIP(value) {
		return 0.5
	}
	return 0.9
}

func scoreDomain(value string) float64 {
	if strings.Contains(value, ".") && !strings.Contains(value, " ") {
		return 0.8
	}
	return 0.6
}

func isPrivateIP(ip string) bool {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return false
	}
	first, _ := strconv.Atoi(parts[0])
	second, _ := strconv.Atoi(parts[1])
	switch {
	case first == 10:
		return true
	case first == 172 && second >= 16 && second <= 31:
		return true
	case first == 192 && second == 168:
		return true
	}
	return false
}

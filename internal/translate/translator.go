// Package translate renders article text into the target language while
// guaranteeing technical tokens survive byte-identical.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Backend performs the actual translation call.
type Backend interface {
	Translate(ctx context.Context, text, fromLang, toLang string) (string, error)
}

// Result is the outcome of translating one field. On backend failure Text
// carries the original input so the pipeline can continue with raw text.
type Result struct {
	Text       string
	Confidence float64
	Success    bool
}

// preservePatterns is the fixed, ordered set of token shapes that must
// never reach the translation backend: each match is swapped for a
// placeholder before the call and restored afterwards.
var preservePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)CVE-\d{4}-\d+`),
	regexp.MustCompile(`\b[A-Fa-f0-9]{64}\b`),
	regexp.MustCompile(`\b[A-Fa-f0-9]{40}\b`),
	regexp.MustCompile(`\b[A-Fa-f0-9]{32}\b`),
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	regexp.MustCompile(`(?i)https?://[^\s]+`),
	regexp.MustCompile(`[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(?:\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)+`),
	regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`),
}

// Translator translates fields to a fixed target language.
type Translator struct {
	backend    Backend
	targetLang string
	maxChars   int
	delay      time.Duration
	sleep      func(time.Duration)
}

// New constructs a translator. maxChars caps the tokenized text sent to the
// backend; delay spaces out sequential batch calls to respect rate limits.
func New(backend Backend, targetLang string, maxChars int, delay time.Duration) *Translator {
	if targetLang == "" {
		targetLang = "es"
	}
	if maxChars <= 0 {
		maxChars = 5000
	}
	return &Translator{
		backend:    backend,
		targetLang: targetLang,
		maxChars:   maxChars,
		delay:      delay,
		sleep:      time.Sleep,
	}
}

// Translate converts text from lang to the target language. Text already in
// the target language passes through with confidence 1. Backend failure is
// degraded, not fatal: the original text comes back with confidence 0.
func (t *Translator) Translate(ctx context.Context, text, lang string) Result {
	if lang == t.targetLang {
		return Result{Text: text, Confidence: 1.0, Success: true}
	}

	// Swap technical tokens for call-scoped placeholders so the backend
	// never sees them.
	preserved := map[string]string{}
	processed := text
	placeholderIndex := 0
	for _, re := range preservePatterns {
		processed = re.ReplaceAllStringFunc(processed, func(match string) string {
			placeholder := fmt.Sprintf("__PRESERVE_%d__", placeholderIndex)
			preserved[placeholder] = match
			placeholderIndex++
			return placeholder
		})
	}

	if utf8.RuneCountInString(processed) > t.maxChars {
		processed = string([]rune(processed)[:t.maxChars])
		slog.Warn("text truncated for translation", "max_chars", t.maxChars)
	}

	translated, err := t.backend.Translate(ctx, processed, lang, t.targetLang)
	if err != nil {
		slog.Error("translation failed, keeping original text", "err", err)
		return Result{Text: text, Confidence: 0.0, Success: false}
	}

	for placeholder, original := range preserved {
		translated = strings.Replace(translated, placeholder, original, 1)
	}

	return Result{Text: translated, Confidence: 0.85, Success: true}
}

// TranslateBatch translates fields sequentially with a short delay between
// backend calls. One field's failure does not affect the others.
func (t *Translator) TranslateBatch(ctx context.Context, texts []string, lang string) []Result {
	results := make([]Result, 0, len(texts))
	for i, text := range texts {
		if i > 0 && t.delay > 0 {
			t.sleep(t.delay)
		}
		results = append(results, t.Translate(ctx, text, lang))
	}
	return results
}

// Package language classifies the dominant language of article text.
package language

import (
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// minLength is the floor, in characters, below which statistical detection
// is unreliable.
const minLength = 10

// iso3to1 maps the classifier's ISO 639-3 output to the small set of
// 2-letter codes the rest of the system understands.
var iso3to1 = map[string]string{
	"eng": "en",
	"spa": "es",
	"fra": "fr",
	"deu": "de",
	"ita": "it",
	"por": "pt",
	"rus": "ru",
	"jpn": "ja",
	"kor": "ko",
	"cmn": "zh",
}

// Detect returns the 2-letter language code for text. It never fails:
// short input, an unmapped code, or an unreliable classification all
// default to "en".
func Detect(text string) string {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minLength {
		return "en"
	}
	info := whatlanggo.Detect(text)
	code, ok := iso3to1[info.Lang.Iso6393()]
	if !ok {
		return "en"
	}
	return code
}

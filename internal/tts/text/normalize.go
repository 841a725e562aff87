// Package text normalises request text before it reaches a synthesis engine.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNumberForWords is the largest integer spelled out; larger numbers are
// left as digits.
const MaxNumberForWords = 999_999_999

const (
	numberPattern     = `\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`
	urlPattern        = `https?://\S+`
	emailPattern      = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	referencePattern  = `\[\d+\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	whitespacePattern = `\s+`
	spaceBeforePunct  = `\s+([,.;:!?])`

	// Preserved tokens are swapped for private-use runes, which no other
	// pattern matches.
	placeholderBase = 0xE000
	maxPlaceholders = 0x1900
)

// Preprocessor expands abbreviations and numbers, strips reference markers and
// tidies punctuation so the engine reads text the way a person would.
type Preprocessor struct {
	numbers      *regexp.Regexp
	urls         *regexp.Regexp
	emails       *regexp.Regexp
	references   *regexp.Regexp
	whitespace   *regexp.Regexp
	looseSpacing *regexp.Regexp

	abbreviations *strings.Replacer
	punctuation   *strings.Replacer
}

// NewPreprocessor compiles the patterns once; a Preprocessor is safe for
// concurrent use.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		numbers:      regexp.MustCompile(numberPattern),
		urls:         regexp.MustCompile(urlPattern),
		emails:       regexp.MustCompile(emailPattern),
		references:   regexp.MustCompile(referencePattern),
		whitespace:   regexp.MustCompile(whitespacePattern),
		looseSpacing: regexp.MustCompile(spaceBeforePunct),
		abbreviations: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Missus",
			"Ms.", "Miz",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Co.", "Company",
			"Ltd.", "Limited",
			"Corp.", "Corporation",
			"Inc.", "Incorporated",
			"e.g.", "for example",
			"i.e.", "that is",
			"etc.", "et cetera",
			"vs.", "versus",
		),
		punctuation: strings.NewReplacer(
			"—", ", ",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
			"&", " and ",
			"%", " percent",
		),
	}
}

// Normalize returns text ready for synthesis. URLs and email addresses pass
// through untouched.
func (p *Preprocessor) Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	preserved, tokens := p.preserve(input)

	out := p.abbreviations.Replace(preserved)
	out = p.references.ReplaceAllString(out, "")
	out = p.punctuation.Replace(out)
	out = p.numbers.ReplaceAllStringFunc(out, numberToWords)
	out = collapseRepeatedPunctuation(out)
	out = p.whitespace.ReplaceAllString(out, " ")
	out = strings.TrimSpace(p.looseSpacing.ReplaceAllString(out, "$1"))
	out = ensureSentenceEnding(out)

	return p.restore(out, tokens)
}

func (p *Preprocessor) preserve(input string) (string, []string) {
	var tokens []string

	keep := func(match string) string {
		if len(tokens) >= maxPlaceholders {
			return match
		}

		tokens = append(tokens, match)

		return string(rune(placeholderBase + len(tokens) - 1))
	}

	out := p.urls.ReplaceAllStringFunc(input, keep)
	out = p.emails.ReplaceAllStringFunc(out, keep)

	return out, tokens
}

func (p *Preprocessor) restore(input string, tokens []string) string {
	if len(tokens) == 0 {
		return input
	}

	var builder strings.Builder

	builder.Grow(len(input))

	for _, r := range input {
		index := int(r) - placeholderBase
		if index >= 0 && index < len(tokens) {
			builder.WriteString(tokens[index])

			continue
		}

		builder.WriteRune(r)
	}

	return builder.String()
}

// collapseRepeatedPunctuation turns "!!!" into "!" and "?!?" into "?", keeping
// "..." intact.
func collapseRepeatedPunctuation(input string) string {
	var builder strings.Builder

	builder.Grow(len(input))

	var last rune

	for _, r := range input {
		if isSentencePunct(r) && isSentencePunct(last) && !(r == '.' && last == '.') {
			continue
		}

		builder.WriteRune(r)

		last = r
	}

	return builder.String()
}

func isSentencePunct(r rune) bool {
	switch r {
	case '.', '!', '?', ',', ';', ':':
		return true
	default:
		return false
	}
}

func ensureSentenceEnding(input string) string {
	if input == "" {
		return input
	}

	last, _ := utf8.DecodeLastRuneInString(input)

	switch {
	case last == '.' || last == '!' || last == '?':
		return input
	case unicode.IsLetter(last) || unicode.IsDigit(last) || last == '"' || last == '\'' || last == ')':
		return input + "."
	case unicode.IsPunct(last):
		return strings.TrimRightFunc(input, unicode.IsPunct) + "."
	default:
		return input + "."
	}
}

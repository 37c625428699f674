package pdf

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

var (
	cjkTerminal   = regexp.MustCompile(`[。！？；]`)
	mixedTerminal = regexp.MustCompile(`[。！？；]|\.\s|[!?;]`)
)

// splitKeeping splits s after every match of re, keeping the delimiter with
// the sentence it ends. A trailing fragment without a delimiter is kept.
func splitKeeping(s string, re *regexp.Regexp) []string {
	var out []string
	start := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		out = append(out, s[start:loc[1]])
		start = loc[1]
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// keepSentences trims each sentence and drops those of one rune or less.
func keepSentences(parts []string) []string {
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) > 1 {
			out = append(out, p)
		}
	}
	return out
}

// SplitChinese splits a line on CJK terminal punctuation (。！？；).
func SplitChinese(line string) []string {
	return keepSentences(splitKeeping(line, cjkTerminal))
}

// SplitMixed splits a line on CJK punctuation or Latin . ! ? ; terminators.
func SplitMixed(line string) []string {
	return keepSentences(splitKeeping(line, mixedTerminal))
}

// splitEnglish splits a line on periods, restoring the period on every
// sentence that had one.
func splitEnglish(line string) []string {
	parts := strings.Split(line, ".")
	var out []string
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i < len(parts)-1 {
			p += "."
		}
		out = append(out, p)
	}
	return out
}

// isEnglish reports whether the line is detected as English.
func isEnglish(line string) bool {
	return whatlanggo.DetectLang(line) == whatlanggo.Eng
}

func chineseText(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		for _, s := range SplitChinese(line) {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func mixedText(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		var sentences []string
		if isEnglish(line) {
			sentences = splitEnglish(line)
		} else {
			sentences = SplitMixed(line)
		}
		for _, s := range sentences {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

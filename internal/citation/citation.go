// Package citation defines the records produced when scanning a paper for
// citations of a target publication.
package citation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sentiment is how a citing paper characterizes the target publication.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Neutral  Sentiment = "neutral"
	Negative Sentiment = "negative"
)

// sentimentAliases maps labels models tend to emit to a Sentiment, checked
// in order so that prefix matches are deterministic.
var sentimentAliases = []struct {
	label     string
	sentiment Sentiment
}{
	{"positive", Positive},
	{"negative", Negative},
	{"neutral", Neutral},
	{"正面", Positive},
	{"积极", Positive},
	{"负面", Negative},
	{"消极", Negative},
	{"中性", Neutral},
	{"✅", Positive},
	{"❌", Negative},
	{"⚠", Neutral},
	{"pos", Positive},
	{"neg", Negative},
	{"neu", Neutral},
}

// ParseSentiment normalizes a model label. The second return value is false
// when the label was not recognized, in which case Neutral is returned.
func ParseSentiment(label string) (Sentiment, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return Neutral, false
	}
	for _, a := range sentimentAliases {
		if key == a.label {
			return a.sentiment, true
		}
	}
	// Labels such as "✅正面" or "Positive (supportive)". A label that only
	// contains an alias further in, like "not positive", stays unknown.
	for _, a := range sentimentAliases {
		if rest, ok := strings.CutPrefix(key, a.label); ok && endsWord(a.label, rest) {
			return a.sentiment, true
		}
	}
	return Neutral, false
}

// endsWord reports whether an alias matched as a prefix stands on its own.
// Emoji and CJK aliases may run straight into the following text.
func endsWord(alias, rest string) bool {
	if last, _ := utf8.DecodeLastRuneInString(alias); last >= utf8.RuneSelf {
		return true
	}
	next, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(next)
}

// Citation is one passage in a citing paper that refers to the target publication.
type Citation struct {
	Quote     string    `json:"quote"`
	Sentiment Sentiment `json:"sentiment"`
	Page      string    `json:"page"`
}

// Paper is the classifier's view of a citing paper.
type Paper struct {
	Title     string     `json:"title"`
	Journal   string     `json:"journal"`
	Authors   []string   `json:"authors"`
	Citations []Citation `json:"citations"`
}

// Package spam screens sanitized notification bodies against an ordered
// list of content rules. The first matching rule decides the verdict, so
// rule order is part of the contract: a body mentioning both viagra and
// bitcoin is categorized "medical", not "crypto".
package spam

import (
	"regexp"
)

// Verdict is the classification outcome. Category and Pattern are only set
// when Spam is true; Pattern records the rule source for the audit trail.
type Verdict struct {
	Spam     bool
	Category string
	Pattern  string
}

// rule pairs a category with its match predicate. Most rules are compiled
// regexes; the repetition rule is a rune scan because RE2 has no
// backreferences.
type rule struct {
	category string
	pattern  string
	matches  func(string) bool
}

// rx builds a regex-backed rule. Compilation failures are programmer errors
// and panic at package init.
func rx(category, pattern string) rule {
	re := regexp.MustCompile(pattern)
	return rule{category: category, pattern: pattern, matches: re.MatchString}
}

// rules is evaluated strictly in order; keep new entries at the position
// their precedence demands rather than appending.
var rules = []rule{
	rx("markup", `(?i)(<a\s+href|\[url[=\]]|\[link[=\]]|\[[^\]]+\]\(https?://)`),
	rx("medical", `(?i)\b(viagra|cialis|levitra|online\s+pharmacy|pharmacy\s+online|weight\s+loss\s+pills?|diet\s+pills?|no\s+prescription|prescription[-\s]free)\b`),
	rx("gambling", `(?i)\b(casino|jackpot|slot\s+machines?|betting|poker|roulette|lottery|bet\s+now|free\s+spins?)\b`),
	rx("crypto", `(?i)\b(bitcoin|btc|ethereum|crypto(currency)?|altcoins?|nft\s+drop|token\s+sale|airdrop)\b`),
	rx("currency", `(?i)([$€£¥]\s?\d[\d,.]*|\b\d[\d,.]*\s?(usd|eur|gbp|sek|dollars?|euros?)\b)`),
	rx("adult", `(?i)\b(xxx|porn|nude|adult\s+content|onlyfans|escorts?)\b`),
	rx("promotion", `(?i)\b(limited\s+time\s+offer|act\s+now|click\s+here|buy\s+now|order\s+now|special\s+promotion|exclusive\s+deal|don'?t\s+miss|free\s+gift)\b`),
	rx("scheme", `(?i)\b(get\s+rich|make\s+money\s+fast|work\s+from\s+home|passive\s+income|double\s+your\s+(money|income)|financial\s+freedom|pyramid\s+scheme|mlm)\b`),
	{
		category: "repetition",
		pattern:  `(.)\1{4,}`,
		matches:  func(s string) bool { return hasRepeatRun(s, repeatRunLength) },
	},
	rx("charset", `[\p{Cyrillic}\p{Han}\p{Hiragana}\p{Katakana}\p{Arabic}\p{Hebrew}\p{Thai}\p{Hangul}]{5,}`),
	rx("injection", `(?i)(<script|javascript:|vbscript:|\bon\w+\s*=|eval\s*\(|document\.cookie|base64,)`),
	rx("messenger", `(?i)\b(whats\s?app|telegram|signal\s+me|viber|dm\s+me|contact\s+me\s+on|text\s+me\s+at)\b`),
}

// repeatRunLength is the repeated-character threshold ("!!!!!", "aaaaa").
const repeatRunLength = 5

// Classify evaluates the sanitized body against the rule list and returns
// the first match. Bodies are expected post-sanitization; the injection rule
// still catches markers that survive or evade the sanitizer.
func Classify(body string) Verdict {
	for _, r := range rules {
		if r.matches(body) {
			return Verdict{Spam: true, Category: r.category, Pattern: r.pattern}
		}
	}
	return Verdict{}
}

// hasRepeatRun reports whether s contains n or more identical consecutive
// runes. Comparison is by rune so multi-byte characters count once.
func hasRepeatRun(s string, n int) bool {
	var prev rune
	count := 0
	for _, r := range s {
		if r == prev {
			count++
		} else {
			prev = r
			count = 1
		}
		if count >= n {
			return true
		}
	}
	return false
}

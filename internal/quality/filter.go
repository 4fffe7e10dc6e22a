package quality

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule identifies which ladder rule decided a candidate
type Rule string

const (
	RuleEmptyText     Rule = "empty_text"
	RuleShortText     Rule = "short_text"
	RuleLengthRatio   Rule = "length_ratio"
	RuleFunctionWords Rule = "function_words"
	RuleLanguage      Rule = "language_detection"
	RuleSharedTokens  Rule = "shared_entities"
	RuleSentenceCount Rule = "sentence_count"
	RuleParagraphs    Rule = "paragraph_count"
	RuleExhausted     Rule = "no_rule_matched"
)

// Decision is the outcome of evaluating one candidate pair, tagged with the
// rule that produced it so runs can report per-rule counts.
type Decision struct {
	Accepted bool `json:"accepted"`
	Rule     Rule `json:"rule"`
}

// FilterConfig tunes the quality ladder thresholds
type FilterConfig struct {
	ShortTextTokenLimit  int     `json:"short_text_token_limit" yaml:"short_text_token_limit"`
	ShortTextMinRatio    float64 `json:"short_text_min_ratio" yaml:"short_text_min_ratio"`
	MinLengthRatio       float64 `json:"min_length_ratio" yaml:"min_length_ratio"`
	MaxSentenceCountDiff int     `json:"max_sentence_count_diff" yaml:"max_sentence_count_diff"`
	EntityCacheSize      int     `json:"entity_cache_size" yaml:"entity_cache_size"`
}

// DefaultFilterConfig returns the ladder thresholds used in production
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		ShortTextTokenLimit:  10,
		ShortTextMinRatio:    0.5,
		MinLengthRatio:       0.2,
		MaxSentenceCountDiff: 1,
		EntityCacheSize:      DefaultEntityCacheSize,
	}
}

// Function words that any genuine running text in the language is overwhelmingly
// likely to contain at least one of. Token sets carry punctuation as scraped,
// so membership is tested against raw lowercase tokens.
var (
	commonEnglishWords = tokenSet("the and of to in is for on that by a are you we with as at from have")
	commonWelshWords   = tokenSet("y a i yn o ar mae am gyda bod gan ei yr yng chi yw")
)

var sentenceEndPattern = regexp.MustCompile(`[.!?]+`)

// Filter decides whether an English block and a Welsh block are plausibly
// translations of each other. It runs an ordered ladder of heuristics; the
// first conclusive rule decides, inconclusive rules fall through. No single
// signal is reliable for short, list-like government content, so cheap
// structural proxies run before language detection.
type Filter struct {
	config   *FilterConfig
	detector LanguageDetector
	entities *EntityExtractor
}

// NewFilter creates a quality filter. A nil detector selects the lingua-backed
// production detector; a nil config selects DefaultFilterConfig.
func NewFilter(detector LanguageDetector, config *FilterConfig) (*Filter, error) {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if detector == nil {
		detector = NewLinguaDetector()
	}

	entities, err := NewEntityExtractor(config.EntityCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating quality filter: %w", err)
	}

	return &Filter{
		config:   config,
		detector: detector,
		entities: entities,
	}, nil
}

// Accept reports whether the pair passes the ladder
func (f *Filter) Accept(english, welsh string) bool {
	return f.Evaluate(english, welsh).Accepted
}

// Evaluate runs the ladder and reports the deciding rule. It is a pure
// function of its inputs: evaluating the same pair twice yields the same
// decision.
func (f *Filter) Evaluate(english, welsh string) Decision {
	enTokens := strings.Fields(english)
	cyTokens := strings.Fields(welsh)
	enLen, cyLen := len(enTokens), len(cyTokens)

	// The length ratio below is undefined for empty texts
	if enLen == 0 || cyLen == 0 {
		return Decision{Accepted: false, Rule: RuleEmptyText}
	}

	ratio := float64(min(enLen, cyLen)) / float64(max(enLen, cyLen))

	// Very short texts pass on length symmetry alone
	if enLen < f.config.ShortTextTokenLimit && cyLen < f.config.ShortTextTokenLimit &&
		ratio > f.config.ShortTextMinRatio {
		return Decision{Accepted: true, Rule: RuleShortText}
	}

	if ratio < f.config.MinLengthRatio {
		return Decision{Accepted: false, Rule: RuleLengthRatio}
	}

	// Each side must carry at least one of its own language's function words
	if !intersects(lowerTokenSet(enTokens), commonEnglishWords) ||
		!intersects(lowerTokenSet(cyTokens), commonWelshWords) {
		return Decision{Accepted: false, Rule: RuleFunctionWords}
	}

	// Best effort: only a conclusive detection of both texts can reject, and
	// only when neither side confirms its expected language
	if enLang, enOK := f.detector.Detect(english); enOK {
		if cyLang, cyOK := f.detector.Detect(welsh); cyOK {
			if enLang != LanguageEnglish && cyLang != LanguageWelsh {
				return Decision{Accepted: false, Rule: RuleLanguage}
			}
		}
	}

	enEntities, enNumerals := f.entities.Extract(english)
	cyEntities, cyNumerals := f.entities.Extract(welsh)
	if intersects(enEntities, cyEntities) || intersects(enNumerals, cyNumerals) {
		return Decision{Accepted: true, Rule: RuleSharedTokens}
	}

	enSentences := countSentenceRuns(english)
	cySentences := countSentenceRuns(welsh)
	if abs(enSentences-cySentences) <= f.config.MaxSentenceCountDiff {
		return Decision{Accepted: true, Rule: RuleSentenceCount}
	}

	if countParagraphs(english) == countParagraphs(welsh) {
		return Decision{Accepted: true, Rule: RuleParagraphs}
	}

	return Decision{Accepted: false, Rule: RuleExhausted}
}

// EntityCacheLen exposes the memoization cache size for monitoring
func (f *Filter) EntityCacheLen() int {
	return f.entities.CacheLen()
}

func tokenSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

func lowerTokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(t)] = true
	}
	return set
}

func intersects(a, b map[string]bool) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

// countSentenceRuns counts runs of sentence-terminal punctuation, a cheap
// stand-in for sentence count
func countSentenceRuns(text string) int {
	return len(sentenceEndPattern.FindAllStringIndex(text, -1))
}

// countParagraphs counts blank-line separated segments
func countParagraphs(text string) int {
	return len(strings.Split(text, "\n\n"))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

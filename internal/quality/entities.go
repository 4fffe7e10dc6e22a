package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEntityCacheSize bounds the per-text memoization cache
const DefaultEntityCacheSize = 1000

var digitRunPattern = regexp.MustCompile(`\d+`)

// extraction holds the derived token sets for one distinct text value
type extraction struct {
	entities map[string]bool
	numerals map[string]bool
}

// EntityExtractor derives probable proper nouns and numeral tokens from a
// text. Extraction is a pure function of the text, so results are memoized
// in a bounded LRU cache keyed by the text value.
type EntityExtractor struct {
	cache *lru.Cache[string, *extraction]
}

// NewEntityExtractor creates an extractor with the given cache capacity.
// Non-positive capacities fall back to DefaultEntityCacheSize.
func NewEntityExtractor(capacity int) (*EntityExtractor, error) {
	if capacity <= 0 {
		capacity = DefaultEntityCacheSize
	}

	cache, err := lru.New[string, *extraction](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating entity cache: %w", err)
	}

	return &EntityExtractor{cache: cache}, nil
}

// Extract returns the probable-entity set and the numeral set for a text.
// Entities are whitespace tokens whose first rune is upper case and that are
// longer than one rune, case-folded. Numerals are contiguous digit runs
// anywhere in the text. The returned maps are shared with the cache and must
// not be mutated.
func (e *EntityExtractor) Extract(text string) (entities, numerals map[string]bool) {
	if cached, ok := e.cache.Get(text); ok {
		return cached.entities, cached.numerals
	}

	ext := extract(text)
	e.cache.Add(text, ext)
	return ext.entities, ext.numerals
}

// CacheLen reports how many distinct texts are currently memoized
func (e *EntityExtractor) CacheLen() int {
	return e.cache.Len()
}

func extract(text string) *extraction {
	ext := &extraction{
		entities: make(map[string]bool),
		numerals: make(map[string]bool),
	}

	for _, word := range strings.Fields(text) {
		first, _ := utf8.DecodeRuneInString(word)
		if unicode.IsUpper(first) && utf8.RuneCountInString(word) > 1 {
			ext.entities[strings.ToLower(word)] = true
		}
	}

	for _, run := range digitRunPattern.FindAllString(text, -1) {
		ext.numerals[run] = true
	}

	return ext
}

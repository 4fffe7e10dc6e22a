package corpus

import "fmt"

// LanguagePair links an English page to its Welsh translation. It is produced
// during pair discovery and consumed exactly once during scraping.
type LanguagePair struct {
	EnglishURL string `json:"english_url"`
	WelshURL   string `json:"welsh_url"`
}

// Candidate is one index-aligned pair of content blocks scraped from the two
// pages of a LanguagePair. Alignment is positional: block i of the English
// page is paired with block i of the Welsh page.
type Candidate struct {
	English   string `json:"english"`
	Welsh     string `json:"welsh"`
	SourceURL string `json:"source_url"`
	Index     int    `json:"index"`
}

// Pair is an accepted candidate in its output form. Field order matches the
// key order of the corpus file records.
type Pair struct {
	En  string `json:"en"`
	Cy  string `json:"cy"`
	URL string `json:"url"`
}

// Validate checks that a pair carries the fields the corpus file requires.
func (p *Pair) Validate() error {
	if p.En == "" {
		return fmt.Errorf("pair is missing English text")
	}
	if p.Cy == "" {
		return fmt.Errorf("pair is missing Welsh text")
	}
	if p.URL == "" {
		return fmt.Errorf("pair is missing source URL")
	}
	return nil
}

// Validate checks that both sides of a language pair are present.
func (lp *LanguagePair) Validate() error {
	if lp.EnglishURL == "" {
		return fmt.Errorf("language pair is missing English URL")
	}
	if lp.WelshURL == "" {
		return fmt.Errorf("language pair is missing Welsh URL")
	}
	return nil
}

package scraping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/Caia-Tech/bitext-miner/pkg/corpus"
)

// ErrRobotsDisallowed is returned when robots.txt blocks a fetch
var ErrRobotsDisallowed = errors.New("blocked by robots.txt")

// PairResolver locates the Welsh counterpart of an English page by following
// the language switcher link.
type PairResolver struct {
	client  *Client
	limiter *RateLimiter
	gate    *ComplianceGate
	config  *ResolverConfig
}

// ResolverConfig configures language link detection
type ResolverConfig struct {
	LinkSelector string `json:"link_selector" yaml:"link_selector"`
	LinkText     string `json:"link_text" yaml:"link_text"`
}

// DefaultResolverConfig returns the selector and anchor text used by
// gov.wales pages
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{
		LinkSelector: "a.language-link",
		LinkText:     "Cymraeg",
	}
}

// NewPairResolver creates a new pair resolver
func NewPairResolver(client *Client, limiter *RateLimiter, gate *ComplianceGate, config *ResolverConfig) *PairResolver {
	if config == nil {
		config = DefaultResolverConfig()
	}

	return &PairResolver{
		client:  client,
		limiter: limiter,
		gate:    gate,
		config:  config,
	}
}

// Resolve fetches the English page and looks for its Welsh counterpart link.
// A nil pair with a nil error means the page has no Welsh version, which is a
// normal outcome, not a failure.
func (pr *PairResolver) Resolve(ctx context.Context, englishURL string) (*corpus.LanguagePair, error) {
	if pr.gate != nil {
		allowed, err := pr.gate.Allowed(ctx, englishURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrRobotsDisallowed
		}
	}

	if pr.limiter != nil {
		if err := pr.limiter.Wait(ctx, englishURL); err != nil {
			return nil, err
		}
	}

	resp, err := pr.client.Do(ctx, englishURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", englishURL, err)
	}

	var welshHref string
	doc.Find(pr.config.LinkSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if s.Text() != pr.config.LinkText {
			return true
		}
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return true
		}
		welshHref = href
		return false
	})

	if welshHref == "" {
		return nil, nil
	}

	welshURL, err := resolveHref(resp.URL, welshHref)
	if err != nil {
		return nil, fmt.Errorf("resolving welsh link %q: %w", welshHref, err)
	}

	log.Debug().
		Str("english_url", englishURL).
		Str("welsh_url", welshURL).
		Msg("Resolved language pair")

	return &corpus.LanguagePair{
		EnglishURL: englishURL,
		WelshURL:   welshURL,
	}, nil
}

// resolveHref resolves a possibly relative href against the page URL
func resolveHref(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}

	return base.ResolveReference(ref).String(), nil
}

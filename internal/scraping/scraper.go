package scraping

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// ContentScraper extracts announcement text blocks from article pages. Markup
// is converted to markdown with anchor tags reduced to their text, so link
// noise never reaches the quality filter.
type ContentScraper struct {
	client    *Client
	limiter   *RateLimiter
	gate      *ComplianceGate
	converter *md.Converter
	config    *ScraperConfig
}

// ScraperConfig configures content block extraction
type ScraperConfig struct {
	ContentSelector string   `json:"content_selector" yaml:"content_selector"`
	StripTags       []string `json:"strip_tags" yaml:"strip_tags"`
}

// DefaultScraperConfig returns the selector used by gov.wales announcement
// pages
func DefaultScraperConfig() *ScraperConfig {
	return &ScraperConfig{
		ContentSelector: "div.announcement-item__article",
		StripTags:       []string{"a"},
	}
}

// NewContentScraper creates a new content scraper
func NewContentScraper(client *Client, limiter *RateLimiter, gate *ComplianceGate, config *ScraperConfig) *ContentScraper {
	if config == nil {
		config = DefaultScraperConfig()
	}

	converter := md.NewConverter("", true, nil)
	if len(config.StripTags) > 0 {
		converter.AddRules(md.Rule{
			Filter: config.StripTags,
			Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
				return md.String(content)
			},
		})
	}

	return &ContentScraper{
		client:    client,
		limiter:   limiter,
		gate:      gate,
		converter: converter,
		config:    config,
	}
}

// Scrape fetches pageURL and returns the text of each announcement block in
// document order. A page with no matching blocks yields an empty slice.
func (cs *ContentScraper) Scrape(ctx context.Context, pageURL string) ([]string, error) {
	if cs.gate != nil {
		allowed, err := cs.gate.Allowed(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrRobotsDisallowed
		}
	}

	if cs.limiter != nil {
		if err := cs.limiter.Wait(ctx, pageURL); err != nil {
			return nil, err
		}
	}

	body, err := cs.client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	// A failed block becomes an empty string rather than being skipped:
	// downstream pairing is positional, so dropping one here would misalign
	// every block after it.
	var blocks []string
	doc.Find(cs.config.ContentSelector).Each(func(i int, s *goquery.Selection) {
		blockHTML, err := goquery.OuterHtml(s)
		if err != nil {
			log.Warn().Err(err).Str("url", pageURL).Int("block", i).Msg("Failed to serialize content block")
			blocks = append(blocks, "")
			return
		}

		text, err := cs.converter.ConvertString(blockHTML)
		if err != nil {
			text, err = plainText(blockHTML)
			if err != nil {
				log.Warn().Err(err).Str("url", pageURL).Int("block", i).Msg("Failed to extract content block")
				blocks = append(blocks, "")
				return
			}
		}

		blocks = append(blocks, strings.TrimSpace(text))
	})

	log.Debug().
		Str("url", pageURL).
		Int("blocks", len(blocks)).
		Msg("Scraped content blocks")

	return blocks, nil
}

package pipeline

import (
	"time"
)

// RunReport aggregates the health counters of one mining run. Every page and
// candidate ends up in exactly one counter per stage, so the numbers add up
// whether a run succeeds or is cut short.
type RunReport struct {
	RunID      string        `json:"run_id"`
	SitemapURL string        `json:"sitemap_url"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	// Phase one: discovery and pair resolution
	URLsDiscovered    int64 `json:"urls_discovered"`
	PairsResolved     int64 `json:"pairs_resolved"`
	PagesWithoutWelsh int64 `json:"pages_without_welsh"`
	ResolveFailures   int64 `json:"resolve_failures"`
	PagesDisallowed   int64 `json:"pages_disallowed"`

	// Phase two: scraping, filtering, writing
	PairsScraped      int64 `json:"pairs_scraped"`
	ScrapeFailures    int64 `json:"scrape_failures"`
	BlockMismatches   int64 `json:"block_mismatches"`
	CandidatesChecked int64 `json:"candidates_checked"`
	PairsAccepted     int64 `json:"pairs_accepted"`
	PairsRejected     int64 `json:"pairs_rejected"`
	PairsWritten      int64 `json:"pairs_written"`
	WriteFailures     int64 `json:"write_failures"`

	// Deciding rule name -> number of candidates it decided
	RuleDecisions map[string]int64 `json:"rule_decisions"`
}

func newRunReport(runID, sitemapURL string) *RunReport {
	return &RunReport{
		RunID:         runID,
		SitemapURL:    sitemapURL,
		StartedAt:     time.Now(),
		RuleDecisions: make(map[string]int64),
	}
}

// Clone returns a deep copy safe to hand outside the pipeline
func (r *RunReport) Clone() *RunReport {
	if r == nil {
		return nil
	}

	clone := *r
	clone.RuleDecisions = make(map[string]int64, len(r.RuleDecisions))
	for rule, count := range r.RuleDecisions {
		clone.RuleDecisions[rule] = count
	}
	return &clone
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Caia-Tech/bitext-miner/internal/output"
	"github.com/Caia-Tech/bitext-miner/internal/quality"
	"github.com/Caia-Tech/bitext-miner/internal/scraping"
	"github.com/Caia-Tech/bitext-miner/internal/sitemap"
	"github.com/Caia-Tech/bitext-miner/pkg/corpus"
	"github.com/Caia-Tech/bitext-miner/pkg/logging"
)

// Orchestrator drives a mining run: enumerate the sitemap, resolve language
// pairs with a bounded worker pool, and only then scrape, filter, and write.
// The phase boundary is a hard barrier, so a run that dies during resolution
// never writes a partial corpus.
type Orchestrator struct {
	enumerator *sitemap.Enumerator
	resolver   *scraping.PairResolver
	scraper    *scraping.ContentScraper
	filter     *quality.Filter
	writer     *output.Writer
	events     *EventBus
	config     *OrchestratorConfig

	reportMu sync.RWMutex
	report   *RunReport
}

// OrchestratorConfig configures a mining run
type OrchestratorConfig struct {
	SitemapURL string `json:"sitemap_url" yaml:"sitemap_url"`
	Workers    int    `json:"workers" yaml:"workers"`
}

// DefaultOrchestratorConfig returns default orchestrator configuration
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		SitemapURL: "https://gov.wales/sitemap.xml",
		Workers:    20,
	}
}

// NewOrchestrator creates a new pipeline orchestrator
func NewOrchestrator(
	enumerator *sitemap.Enumerator,
	resolver *scraping.PairResolver,
	scraper *scraping.ContentScraper,
	filter *quality.Filter,
	writer *output.Writer,
	events *EventBus,
	config *OrchestratorConfig,
) *Orchestrator {
	if config == nil {
		config = DefaultOrchestratorConfig()
	}

	return &Orchestrator{
		enumerator: enumerator,
		resolver:   resolver,
		scraper:    scraper,
		filter:     filter,
		writer:     writer,
		events:     events,
		config:     config,
	}
}

// Run executes one complete mining run and returns its report. The report is
// also available from Report while the run is in flight.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	runID := uuid.New().String()

	o.reportMu.Lock()
	o.report = newRunReport(runID, o.config.SitemapURL)
	o.reportMu.Unlock()

	logger := logging.GetRunLogger("pipeline", runID)
	logger.Info().
		Str("sitemap_url", o.config.SitemapURL).
		Int("workers", o.config.Workers).
		Msg("Mining run started")

	o.publish(NewMiningEvent(EventRunStarted, runID, o.config.SitemapURL))

	urls, err := o.enumerator.Enumerate(ctx, o.config.SitemapURL)
	if err != nil {
		o.finishReport()
		o.publish(NewMiningEvent(EventRunFailed, runID, o.config.SitemapURL).WithPhase(PhaseEnumerate).WithError(err))
		return o.Report(), fmt.Errorf("enumerating sitemap: %w", err)
	}

	o.updateReport(func(r *RunReport) { r.URLsDiscovered = int64(len(urls)) })
	logger.Info().Int("urls", len(urls)).Msg("Sitemap enumeration finished")

	pairs := o.resolvePairs(ctx, runID, logger, urls)
	o.minePairs(ctx, runID, logger, pairs)

	o.finishReport()

	if err := ctx.Err(); err != nil {
		o.publish(NewMiningEvent(EventRunFailed, runID, o.config.SitemapURL).WithError(err))
		return o.Report(), err
	}

	o.publish(NewMiningEvent(EventRunCompleted, runID, o.config.SitemapURL))

	report := o.Report()
	logger.Info().
		Int64("pairs_resolved", report.PairsResolved).
		Int64("candidates_checked", report.CandidatesChecked).
		Int64("pairs_written", report.PairsWritten).
		Dur("duration", report.Duration).
		Msg("Mining run completed")

	return report, nil
}

// Report returns a snapshot of the current run's counters
func (o *Orchestrator) Report() *RunReport {
	o.reportMu.RLock()
	defer o.reportMu.RUnlock()
	return o.report.Clone()
}

// resolvePairs maps page URLs to language pairs with a bounded worker pool.
// It returns only after every worker has drained, which is the barrier that
// keeps phase two from starting early.
func (o *Orchestrator) resolvePairs(ctx context.Context, runID string, logger zerolog.Logger, urls []string) []*corpus.LanguagePair {
	o.publish(NewMiningEvent(EventPhaseStarted, runID, "").WithPhase(PhaseResolve))
	start := time.Now()

	jobs := make(chan string, o.config.Workers)
	var mu sync.Mutex
	var pairs []*corpus.LanguagePair

	var wg sync.WaitGroup
	for i := 0; i < o.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageURL := range jobs {
				if ctx.Err() != nil {
					continue
				}

				pair, err := o.resolver.Resolve(ctx, pageURL)
				switch {
				case errors.Is(err, scraping.ErrRobotsDisallowed):
					o.updateReport(func(r *RunReport) { r.PagesDisallowed++ })
				case err != nil:
					o.updateReport(func(r *RunReport) { r.ResolveFailures++ })
					o.publish(NewMiningEvent(EventPageFailed, runID, pageURL).WithPhase(PhaseResolve).WithError(err))
					logger.Warn().Err(err).Str("url", pageURL).Msg("Pair resolution failed")
				case pair == nil:
					o.updateReport(func(r *RunReport) { r.PagesWithoutWelsh++ })
				default:
					o.updateReport(func(r *RunReport) { r.PairsResolved++ })
					o.publish(NewMiningEvent(EventPairResolved, runID, pageURL).WithPhase(PhaseResolve))
					mu.Lock()
					pairs = append(pairs, pair)
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, pageURL := range urls {
		select {
		case jobs <- pageURL:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)

	wg.Wait()

	o.publish(NewMiningEvent(EventPhaseCompleted, runID, "").WithPhase(PhaseResolve))
	logger.Info().
		Int("pairs", len(pairs)).
		Dur("phase_duration", time.Since(start)).
		Msg("Pair resolution phase finished")

	return pairs
}

// minePairs scrapes, filters, and writes resolved pairs with a bounded worker
// pool.
func (o *Orchestrator) minePairs(ctx context.Context, runID string, logger zerolog.Logger, pairs []*corpus.LanguagePair) {
	o.publish(NewMiningEvent(EventPhaseStarted, runID, "").WithPhase(PhaseScrape))
	start := time.Now()

	jobs := make(chan *corpus.LanguagePair, o.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < o.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pair := range jobs {
				if ctx.Err() != nil {
					continue
				}
				o.minePair(ctx, runID, logger, pair)
			}
		}()
	}

feed:
	for _, pair := range pairs {
		select {
		case jobs <- pair:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)

	wg.Wait()

	o.publish(NewMiningEvent(EventPhaseCompleted, runID, "").WithPhase(PhaseScrape))
	logger.Info().Dur("phase_duration", time.Since(start)).Msg("Scrape phase finished")
}

// minePair scrapes both sides of a pair, aligns blocks by position, and runs
// each candidate through the quality filter. When the sides disagree on block
// count the extra blocks are dropped.
func (o *Orchestrator) minePair(ctx context.Context, runID string, logger zerolog.Logger, pair *corpus.LanguagePair) {
	englishBlocks, err := o.scrapeSide(ctx, runID, logger, pair.EnglishURL)
	if err != nil {
		return
	}

	welshBlocks, err := o.scrapeSide(ctx, runID, logger, pair.WelshURL)
	if err != nil {
		return
	}

	o.updateReport(func(r *RunReport) { r.PairsScraped++ })

	if len(englishBlocks) != len(welshBlocks) {
		o.updateReport(func(r *RunReport) { r.BlockMismatches++ })
		logger.Warn().
			Str("english_url", pair.EnglishURL).
			Str("welsh_url", pair.WelshURL).
			Int("english_blocks", len(englishBlocks)).
			Int("welsh_blocks", len(welshBlocks)).
			Msg("Block counts differ, extra blocks dropped")
	}

	count := min(len(englishBlocks), len(welshBlocks))
	for i := 0; i < count; i++ {
		o.checkCandidate(runID, logger, &corpus.Candidate{
			English:   englishBlocks[i],
			Welsh:     welshBlocks[i],
			SourceURL: pair.EnglishURL,
			Index:     i,
		})
	}
}

func (o *Orchestrator) scrapeSide(ctx context.Context, runID string, logger zerolog.Logger, pageURL string) ([]string, error) {
	blocks, err := o.scraper.Scrape(ctx, pageURL)
	if err != nil {
		if errors.Is(err, scraping.ErrRobotsDisallowed) {
			o.updateReport(func(r *RunReport) { r.PagesDisallowed++ })
		} else {
			o.updateReport(func(r *RunReport) { r.ScrapeFailures++ })
			o.publish(NewMiningEvent(EventPageFailed, runID, pageURL).WithPhase(PhaseScrape).WithError(err))
			logger.Warn().Err(err).Str("url", pageURL).Msg("Content scrape failed")
		}
		return nil, err
	}

	return blocks, nil
}

func (o *Orchestrator) checkCandidate(runID string, logger zerolog.Logger, candidate *corpus.Candidate) {
	decision := o.filter.Evaluate(candidate.English, candidate.Welsh)

	o.updateReport(func(r *RunReport) {
		r.CandidatesChecked++
		r.RuleDecisions[string(decision.Rule)]++
		if decision.Accepted {
			r.PairsAccepted++
		} else {
			r.PairsRejected++
		}
	})

	if !decision.Accepted {
		o.publish(NewMiningEvent(EventPairRejected, runID, candidate.SourceURL).WithRule(decision.Rule))
		return
	}

	pair := &corpus.Pair{
		En:  candidate.English,
		Cy:  candidate.Welsh,
		URL: candidate.SourceURL,
	}

	if err := o.writer.Append(pair); err != nil {
		o.updateReport(func(r *RunReport) { r.WriteFailures++ })
		o.publish(NewMiningEvent(EventPageFailed, runID, candidate.SourceURL).WithPhase(PhaseWrite).WithError(err))
		logger.Error().Err(err).Str("url", candidate.SourceURL).Msg("Failed to write accepted pair")
		return
	}

	o.publish(NewMiningEvent(EventPairAccepted, runID, candidate.SourceURL).WithRule(decision.Rule))
}

func (o *Orchestrator) updateReport(fn func(*RunReport)) {
	o.reportMu.Lock()
	if o.report != nil {
		fn(o.report)
	}
	o.reportMu.Unlock()
}

func (o *Orchestrator) finishReport() {
	written := o.writer.Count()
	o.updateReport(func(r *RunReport) {
		r.PairsWritten = written
		r.FinishedAt = time.Now()
		r.Duration = r.FinishedAt.Sub(r.StartedAt)
	})
}

func (o *Orchestrator) publish(event *MiningEvent) {
	if o.events != nil {
		o.events.Publish(event)
	}
}

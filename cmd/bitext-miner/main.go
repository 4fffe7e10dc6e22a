// Package main provides the entry point for the bitext miner CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Caia-Tech/bitext-miner/internal/api"
	"github.com/Caia-Tech/bitext-miner/internal/config"
	"github.com/Caia-Tech/bitext-miner/internal/output"
	"github.com/Caia-Tech/bitext-miner/internal/pipeline"
	"github.com/Caia-Tech/bitext-miner/internal/quality"
	"github.com/Caia-Tech/bitext-miner/internal/scraping"
	"github.com/Caia-Tech/bitext-miner/internal/sitemap"
	"github.com/Caia-Tech/bitext-miner/pkg/logging"
)

const version = "1.0.0"

var (
	configFile   string
	sitemapURL   string
	workers      int
	requestDelay time.Duration
	outputDir    string
	devMode      bool
	serveStatus  bool
)

var rootCmd = &cobra.Command{
	Use:   "bitext-miner",
	Short: "Mines English/Welsh sentence pairs from gov.wales announcements",
	Long: `bitext-miner walks the gov.wales sitemap, pairs English announcement
pages with their Welsh versions, and writes aligned text pairs as JSONL
for parallel corpus construction.`,
	SilenceUsage: true,
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Run a complete mining pass",
	RunE:  runMine,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bitext-miner %s\n", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "bitext-miner.yaml"
		if len(args) > 0 {
			path = args[0]
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}

		fmt.Printf("✅ Wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	mineCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	mineCmd.Flags().StringVar(&sitemapURL, "sitemap", "", "Sitemap URL to enumerate")
	mineCmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size per phase")
	mineCmd.Flags().DurationVar(&requestDelay, "delay", 0, "Delay between requests to the same host (e.g. 500ms)")
	mineCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the result file")
	mineCmd.Flags().BoolVar(&devMode, "dev", false, "Use development defaults (debug logging, fewer workers)")
	mineCmd.Flags().BoolVar(&serveStatus, "serve", false, "Serve the status API while mining")

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logging.SetupLogger(cfg.LogConfig()); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	logger := logging.GetLogger("main")

	fmt.Println("⛏️  BITEXT MINER")
	fmt.Println("================")
	fmt.Printf("Mining English/Welsh pairs from %s\n", cfg.Mining.SitemapURL)
	fmt.Printf("Workers: %d, request delay: %s\n\n", cfg.Mining.Workers, cfg.RequestDelay())

	client := scraping.NewClient(cfg.ClientConfig())
	limiter := scraping.NewRateLimiter(cfg.RequestDelay())
	gate := scraping.NewComplianceGate(client, cfg.ComplianceConfig())

	enumerator, err := sitemap.NewEnumerator(client, limiter, cfg.EnumeratorConfig())
	if err != nil {
		return fmt.Errorf("creating sitemap enumerator: %w", err)
	}

	resolver := scraping.NewPairResolver(client, limiter, gate, cfg.ResolverConfig())
	scraper := scraping.NewContentScraper(client, limiter, gate, cfg.ScraperConfig())

	filter, err := quality.NewFilter(nil, cfg.FilterConfig())
	if err != nil {
		return fmt.Errorf("creating quality filter: %w", err)
	}

	writer, err := output.NewWriter(cfg.WriterConfig())
	if err != nil {
		return fmt.Errorf("creating result writer: %w", err)
	}
	defer writer.Close()

	events := pipeline.NewEventBus(cfg.Events.BufferSize, cfg.Events.Workers)
	defer events.Close()

	orch := pipeline.NewOrchestrator(enumerator, resolver, scraper, filter, writer, events, cfg.OrchestratorConfig())

	if serveStatus || cfg.Server.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		server := api.NewServer(api.NewHandlers(orch, events, enumerator, limiter, writer), &api.ServerOptions{
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		})

		go func() {
			if err := server.Listen(addr); err != nil {
				logger.Error().Err(err).Str("addr", addr).Msg("Status server stopped")
			}
		}()
		defer server.Shutdown()

		fmt.Printf("📡 Status API listening on http://%s\n\n", addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := orch.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && report != nil {
			fmt.Println("\n⚠️  MINING RUN INTERRUPTED")
			fmt.Println("==========================")
			printSummary(report, writer.Path())
		}
		return fmt.Errorf("mining run failed: %w", err)
	}

	fmt.Printf("\n🎉 MINING RUN COMPLETED\n")
	fmt.Printf("=======================\n")
	printSummary(report, writer.Path())
	logger.Info().Str("run_id", report.RunID).Int64("pairs", report.PairsWritten).Msg("Mining run finished")

	return nil
}

// loadConfig resolves the effective configuration from file, environment, and
// flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if devMode && configFile == "" {
		cfg = config.Development()
	} else {
		cfg, err = config.LoadOrDefault(configFile)
		if err != nil {
			return nil, err
		}
		if devMode {
			cfg.Logging.Level = "debug"
			cfg.Logging.Format = "pretty"
		}
	}

	if cmd.Flags().Changed("sitemap") {
		cfg.Mining.SitemapURL = sitemapURL
	}
	if cmd.Flags().Changed("workers") {
		cfg.Mining.Workers = workers
	}
	if cmd.Flags().Changed("delay") {
		cfg.Mining.RequestDelayMs = int(requestDelay.Milliseconds())
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Output.Dir = outputDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func printSummary(report *pipeline.RunReport, outputPath string) {
	fmt.Printf("• Run ID: %s\n", report.RunID)
	fmt.Printf("• Duration: %s\n", report.Duration.Round(time.Millisecond))
	fmt.Printf("• URLs discovered: %d\n", report.URLsDiscovered)
	fmt.Printf("• Pairs resolved: %d (no Welsh version: %d, failures: %d, robots-blocked: %d)\n",
		report.PairsResolved, report.PagesWithoutWelsh, report.ResolveFailures, report.PagesDisallowed)
	fmt.Printf("• Page pairs scraped: %d (failures: %d, block mismatches: %d)\n",
		report.PairsScraped, report.ScrapeFailures, report.BlockMismatches)
	fmt.Printf("• Candidates checked: %d\n", report.CandidatesChecked)
	fmt.Printf("• Accepted: %d, rejected: %d\n", report.PairsAccepted, report.PairsRejected)
	fmt.Printf("• Pairs written: %d (%s)\n", report.PairsWritten, outputPath)

	if report.WriteFailures > 0 {
		fmt.Printf("• ⚠️  Write failures: %d\n", report.WriteFailures)
	}

	if len(report.RuleDecisions) > 0 {
		fmt.Printf("\n📊 Rule decisions:\n")

		rules := make([]string, 0, len(report.RuleDecisions))
		for rule := range report.RuleDecisions {
			rules = append(rules, rule)
		}
		sort.Strings(rules)

		for _, rule := range rules {
			fmt.Printf("   • %s: %d\n", rule, report.RuleDecisions[rule])
		}
	}
}

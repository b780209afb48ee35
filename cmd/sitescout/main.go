package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/inventory"
	"github.com/PentesterFlow/SiteScout/internal/logger"
	"github.com/PentesterFlow/SiteScout/internal/output"
	"github.com/PentesterFlow/SiteScout/internal/progress"
	"github.com/PentesterFlow/SiteScout/internal/shutdown"
	"github.com/PentesterFlow/SiteScout/pkg/crawler"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Display flags
	showProgress bool
	noProgress   bool

	// Config command flags
	globalConfig bool
	forceWrite   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sitescout",
		Short: "SiteScout - Website Discovery Crawler",
		Long: `SiteScout - A breadth-first crawler that maps a website for automated testing.

Starting from a seed URL it visits every same-origin page within a depth and
page budget and records titles, links, forms and interactive elements.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a website",
		Long:  "Crawl a website from the given seed URL (or the configured target) and write its inventory.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCrawl,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}

	configValidateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigValidate,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (default: bot.yaml or the user config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	registerCrawlFlags(crawlCmd)
	crawlCmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress bar during crawling")
	crawlCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bar (use logging instead)")

	configInitCmd.Flags().BoolVar(&globalConfig, "global", false, "Write the per-user config file")
	configInitCmd.Flags().BoolVarP(&forceWrite, "force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	config, _, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if err := applyCrawlFlags(cmd, config); err != nil {
		return err
	}
	if len(args) == 1 {
		config.Target = args[0]
	}
	if config.Target == "" {
		return fmt.Errorf("no target: pass a URL or set target in the config file")
	}

	enableProgress := showProgress && !noProgress && !verbose && !debug
	switch {
	case debug:
		config.Log.Level = "trace"
	case verbose:
		config.Log.Level = "debug"
	case enableProgress:
		config.Log.Level = "warn"
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logger.ParseLevel(config.Log.Level)
	if err != nil {
		level = logger.InfoLevel
	}
	log := logger.New(logger.Config{
		Level:  level,
		Pretty: config.Log.Pretty,
	})

	h := shutdown.New(shutdown.Config{
		Timeout: 30 * time.Second,
		OnInterrupt: func(sig os.Signal) {
			fmt.Fprintf(os.Stderr, "\nReceived %s, finishing in-flight pages...\n", sig)
		},
		OnForce: func() {
			fmt.Fprintln(os.Stderr, "Forced exit")
			os.Exit(130)
		},
	})

	writers, err := openWriters(h, config, log)
	if err != nil {
		h.Close()
		return err
	}
	h.Register("output", func(_ context.Context) error { return writers.Close() })

	c, err := crawler.New(
		crawler.WithConfig(config),
		crawler.WithLogger(log),
		crawler.WithPageHook(func(rec inventory.PageRecord) {
			if err := writers.WritePage(rec); err != nil {
				log.Warn().Err(err).Str("url", rec.URL.String()).Msg("failed to write page")
			}
		}),
	)
	if err != nil {
		h.Close()
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	var display *progress.Display
	stopProgress := func() {}
	if enableProgress {
		display = progress.New()
		display.Start(config.Target)
		stopProgress = watchProgress(c, display, 200*time.Millisecond)
	} else {
		printBanner(config)
	}

	startTime := time.Now()
	inv, runErr := c.Run(h.Context(), config.Target)
	duration := time.Since(startTime)
	stopProgress()

	if runErr != nil {
		for _, err := range h.Close() {
			log.Warn().Err(err).Msg("cleanup failed")
		}
		if errors.IsSeedError(runErr) {
			return runErr
		}
		return fmt.Errorf("crawl failed: %w", runErr)
	}

	if err := writers.WriteInventory(inv); err != nil {
		log.Error().Err(err).Msg("failed to write inventory")
	}

	if display != nil {
		display.PrintSummary(os.Stderr, duration, inv.Metadata.TruncatedByBudget)
	} else {
		printSummary(inv, duration)
		log.StatsEvent(c.Metrics().Snapshot().Summary())
	}

	for _, err := range h.Close() {
		log.Warn().Err(err).Msg("cleanup failed")
	}
	return nil
}

// openWriters opens the document writer plus the optional page store and
// event stream.
func openWriters(h *shutdown.Handler, config *crawler.Config, log *logger.Logger) (output.Multi, error) {
	doc, err := output.Open(config.Output)
	if err != nil {
		return nil, err
	}
	writers := output.Multi{doc}

	if config.Output.BoltPath != "" {
		store, err := output.NewBoltWriter(config.Output.BoltPath)
		if err != nil {
			writers.Close()
			return nil, err
		}
		writers = append(writers, store)
	}

	if config.Output.EventsURL != "" {
		ctx, cancel := context.WithTimeout(h.Context(), 10*time.Second)
		stream, err := output.DialEventStream(ctx, config.Output.EventsURL, nil, log.WithComponent("events").Zerolog())
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("url", config.Output.EventsURL).Msg("event stream disabled")
		} else {
			writers = append(writers, stream)
		}
	}

	return writers, nil
}

// watchProgress polls the crawler until the returned stop function is called.
func watchProgress(c *crawler.Crawler, display *progress.Display, interval time.Duration) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	update := func() {
		if p, ok := c.Progress(); ok {
			display.Update(progress.Counts{
				Recorded: p.Recorded,
				Failed:   p.Failed,
				Pending:  p.Pending,
				InFlight: p.InFlight,
				Forms:    p.Forms,
				Budget:   p.Budget,
			})
		}
	}

	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				update()
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		<-finished
		display.Stop()
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "bot.yaml"
	switch {
	case len(args) == 1:
		path = args[0]
	case globalConfig:
		path = crawler.UserConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !forceWrite {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := crawler.DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	explicit := configFile
	if len(args) == 1 {
		explicit = args[0]
	}

	config, path, err := loadConfig(explicit)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("no configuration file found")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s is valid\n", path)
	return nil
}

// loadConfig reads the named or discovered config file, falling back to the
// defaults when there is none.
func loadConfig(explicit string) (*crawler.Config, string, error) {
	path, err := crawler.FindConfigFile(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return crawler.DefaultConfig(), "", nil
	}

	config, err := crawler.LoadFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}
	return config, path, nil
}

func printBanner(config *crawler.Config) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║                        SiteScout v1.0                        ║")
	fmt.Fprintln(os.Stderr, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Target:      %s\n", config.Target)
	fmt.Fprintf(os.Stderr, "Engine:      %s\n", config.Engine)
	fmt.Fprintf(os.Stderr, "Depth:       %d\n", config.Depth)
	fmt.Fprintf(os.Stderr, "Max Pages:   %d\n", config.MaxPages)
	fmt.Fprintf(os.Stderr, "Concurrency: %d\n", config.Concurrency)
	fmt.Fprintln(os.Stderr)
}

func printSummary(inv *inventory.Inventory, duration time.Duration) {
	stats := inv.Stats()

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║                       Crawl Summary                          ║")
	fmt.Fprintln(os.Stderr, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Duration:        %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Pages Recorded:  %d\n", stats.Pages)
	fmt.Fprintf(os.Stderr, "Failed:          %d\n", stats.Failed)
	fmt.Fprintf(os.Stderr, "Max Depth:       %d\n", stats.MaxDepth)
	fmt.Fprintf(os.Stderr, "Links:           %d\n", stats.Links)
	fmt.Fprintf(os.Stderr, "Forms:           %d\n", stats.Forms)
	fmt.Fprintf(os.Stderr, "Elements:        %d\n", stats.Elements)
	switch {
	case inv.Metadata.Interrupted:
		fmt.Fprintln(os.Stderr, "Stopped:         interrupted")
	case inv.Metadata.TimedOut:
		fmt.Fprintln(os.Stderr, "Stopped:         crawl timeout")
	case inv.Metadata.TruncatedByBudget:
		fmt.Fprintln(os.Stderr, "Stopped:         page budget reached")
	}
	fmt.Fprintln(os.Stderr)

	if len(stats.FailedURLs) > 0 {
		fmt.Fprintln(os.Stderr, "Failed Pages:")
		count := min(len(stats.FailedURLs), 10)
		for _, u := range stats.FailedURLs[:count] {
			fmt.Fprintf(os.Stderr, "  %s\n", u)
		}
		if len(stats.FailedURLs) > count {
			fmt.Fprintf(os.Stderr, "  ... and %d more\n", len(stats.FailedURLs)-count)
		}
		fmt.Fprintln(os.Stderr)
	}
}

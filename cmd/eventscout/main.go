package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/eventscout/internal/config"
	"github.com/TobiSchelling/eventscout/internal/database"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/pipeline"
	"github.com/TobiSchelling/eventscout/internal/server"
	"github.com/TobiSchelling/eventscout/internal/tracing"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "eventscout",
	Short:   "Daily local event digests",
	Long:    "eventscout searches event sources, reviews what it finds with a swarm of checks, and sends a short daily digest.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			setLogFlags(verbose)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		setLogFlags(verbose || strings.EqualFold(cfg.Logging.Level, "debug"))
		return nil
	},
}

func setLogFlags(debug bool) {
	if debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(digestsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(interestsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("eventscout", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/eventscout/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set your city, sources, LLM provider and delivery.")
		fmt.Println("API keys are read from the environment variables it names.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		lastRun, _ := db.GetLastRunDate()
		if lastRun == "" {
			lastRun = "never"
		}

		fmt.Printf("Today: %s (%s)\n", database.GetToday(cfg.TimeLocation()), cfg.Location.City)
		fmt.Printf("Last completed run: %s\n\n", lastRun)
		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Failed: %d\n", stats.FailedRuns)
		fmt.Printf("  Days with runs: %d\n", stats.PeriodsWithRuns)
		fmt.Println("\nOutput:")
		fmt.Printf("  Events stored: %d\n", stats.TotalEvents)
		fmt.Printf("  Digests: %d (%d delivered)\n", stats.Digests, stats.DeliveredDigests)
		fmt.Println("\nInterests:")
		fmt.Printf("  Total: %d\n", stats.TotalInterests)
		fmt.Printf("  Active: %d\n", stats.ActiveInterests)
		return nil
	},
}

// --- run command ---

var (
	dryRun       bool
	noDB         bool
	withResearch bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the workflow: search -> review -> research -> synthesize, then deliver",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		tp, err := setupTracing(ctx)
		if err != nil {
			return err
		}
		defer shutdownTracing(tp)

		var db *database.DB
		if !noDB && !dryRun {
			db, err = openDB()
			if err != nil {
				return err
			}
			defer db.Close()
		}

		pipe, err := pipeline.Build(cfg, db, nil)
		if err != nil {
			return err
		}

		result := pipe.Run(ctx, pipeline.Options{
			Research: withResearch,
			DryRun:   dryRun,
			NoDB:     noDB,
		})
		printResult(result)

		if dryRun {
			fmt.Println("\n--- Digest preview ---")
			fmt.Println(result.Digest.Subject)
			fmt.Println()
			fmt.Println(result.Digest.Text)
		} else if db != nil {
			fmt.Println("\nRun complete! Run 'eventscout serve' to view the digest.")
		}
		if result.Failed() {
			return fmt.Errorf("run %s finished with errors", result.RunID)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and compose only; no database writes and no delivery")
	runCmd.Flags().BoolVar(&noDB, "no-db", false, "Skip persistence but still deliver")
	runCmd.Flags().BoolVar(&withResearch, "research", false, "Enable the deep research phase for this run")
}

func printResult(result *pipeline.Result) {
	fmt.Printf("Run %s for %s\n", result.RunID, database.FormatPeriodDisplay(result.PeriodID))
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- events command ---

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the most recently stored events",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		events, err := db.LatestEvents(eventsLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events stored yet. Run 'eventscout run' first.")
			return nil
		}

		loc := cfg.TimeLocation()
		for i, e := range events {
			fmt.Printf("%2d. %s\n", i+1, e.Title)
			var details []string
			if e.Location != "" {
				details = append(details, e.Location)
			}
			if e.Start != nil {
				details = append(details, e.Start.In(loc).Format("Mon, Jan 2 at 3:04 PM"))
			}
			if e.Source != "" {
				details = append(details, e.Source)
			}
			if len(details) > 0 {
				fmt.Printf("    %s\n", strings.Join(details, " | "))
			}
			if e.URL != "" {
				fmt.Printf("    %s\n", e.URL)
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Number of events to show")
}

// --- digests command ---

var digestsCmd = &cobra.Command{
	Use:   "digests",
	Short: "List stored digests and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		digests, err := db.GetAllDigests()
		if err != nil {
			return err
		}
		if len(digests) == 0 {
			fmt.Println("No digests yet.")
		}
		for _, d := range digests {
			mark := " "
			if d.Delivered {
				mark = "*"
			}
			fmt.Printf("  %s %s  %s\n", mark, d.PeriodID, d.Subject)
			fmt.Printf("      run %s, %d events, %s\n", d.RunID, d.EventCount, d.Phase)
		}

		reports, err := db.GetRecentReports(5)
		if err != nil {
			return err
		}
		if len(reports) > 0 {
			fmt.Println("\nRecent runs:")
			for _, r := range reports {
				line := fmt.Sprintf("  %s  %-8s found=%d reviewed=%d iterations=%d %s",
					r.PeriodID, r.Phase, r.EventsFound, r.EventsReviewed, r.Iterations,
					(time.Duration(r.DurationMS) * time.Millisecond).String())
				if r.Error != nil {
					line += "  error: " + *r.Error
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

// --- serve command ---

var (
	servePort int
	runEvery  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if runEvery > 0 {
			tp, err := setupTracing(ctx)
			if err != nil {
				return err
			}
			defer shutdownTracing(tp)

			pipe, err := pipeline.Build(cfg, db, reg)
			if err != nil {
				return err
			}
			go runPeriodically(ctx, pipe, runEvery)
		}

		port := servePort
		if !cmd.Flags().Changed("port") && cfg.Server.Port > 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, reg, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().DurationVar(&runEvery, "run-every", 0, "Also run the workflow on this interval (e.g. 24h)")
}

// runPeriodically runs the workflow on every tick until ctx is done.
func runPeriodically(ctx context.Context, pipe *pipeline.Pipeline, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := pipe.Run(ctx, pipeline.Options{})
			log.Printf("Scheduled run %s finished in phase %s", result.RunID, result.Phase)
		}
	}
}

// --- interests command ---

var interestsCmd = &cobra.Command{
	Use:   "interests",
	Short: "Manage the interests that boost event relevance",
}

var interestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all interests",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := db.GetAllInterests()
		if err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No interests defined. Add one with: eventscout interests add")
			return nil
		}

		fmt.Println("Interests:")
		fmt.Println()
		for _, in := range items {
			icon := " "
			if in.IsActive {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s (weight %d)\n", in.ID, icon, in.Title, in.Weight)
			if in.Description != nil && *in.Description != "" {
				fmt.Printf("        %s\n", event.Truncate(*in.Description, 60))
			}
			if len(in.Keywords) > 0 {
				fmt.Printf("        keywords: %s\n", strings.Join(in.Keywords, ", "))
			}
		}
		return nil
	},
}

var (
	interestKeywords []string
	interestWeight   int
)

var interestsAddCmd = &cobra.Command{
	Use:   "add [title] [description]",
	Short: "Add a new interest",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		title := args[0]
		description := ""
		if len(args) > 1 {
			description = args[1]
		}

		id, err := db.InsertInterest(title, description, interestKeywords, interestWeight)
		if err != nil {
			return err
		}
		fmt.Printf("Added interest [%d]: %s\n", id, title)
		return nil
	},
}

var interestsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove an interest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		in, err := lookupInterest(db, args[0])
		if err != nil {
			return err
		}
		if err := db.DeleteInterest(in.ID); err != nil {
			return err
		}
		fmt.Printf("Removed interest [%d]: %s\n", in.ID, in.Title)
		return nil
	},
}

var interestsToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle an interest's active state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		in, err := lookupInterest(db, args[0])
		if err != nil {
			return err
		}
		if err := db.ToggleInterest(in.ID); err != nil {
			return err
		}
		newState := "disabled"
		if !in.IsActive {
			newState = "enabled"
		}
		fmt.Printf("Interest [%d] %s: %s\n", in.ID, in.Title, newState)
		return nil
	},
}

func init() {
	interestsAddCmd.Flags().StringSliceVarP(&interestKeywords, "keywords", "k", nil, "Keywords that mark a matching event")
	interestsAddCmd.Flags().IntVarP(&interestWeight, "weight", "w", database.DefaultInterestWeight, "Relevance boost for matching events")

	interestsCmd.AddCommand(interestsListCmd)
	interestsCmd.AddCommand(interestsAddCmd)
	interestsCmd.AddCommand(interestsRemoveCmd)
	interestsCmd.AddCommand(interestsToggleCmd)
}

func lookupInterest(db *database.DB, arg string) (*database.Interest, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid interest ID: %s", arg)
	}
	in, err := db.GetInterest(id)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, fmt.Errorf("interest %d not found", id)
	}
	return in, nil
}

func setupTracing(ctx context.Context) (*tracing.Provider, error) {
	tp, err := tracing.Setup(ctx, tracing.Config{
		Enabled:  cfg.Telemetry.TracingEnabled,
		Endpoint: cfg.Telemetry.OTLPEndpoint,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	return tp, nil
}

func shutdownTracing(tp *tracing.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Printf("Warning: %v", err)
	}
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "eventscout.db")
	return database.Open(dbPath)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/story-archiver/internal/config"
	"github.com/jonathan/story-archiver/internal/db"
	"github.com/jonathan/story-archiver/internal/fetchers/archive"
	"github.com/jonathan/story-archiver/internal/fetchers/remote"
	"github.com/jonathan/story-archiver/internal/observability"
	"github.com/jonathan/story-archiver/internal/schemas"
	"github.com/jonathan/story-archiver/internal/updating"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Incrementally update the worktree against the remote site",
	Long: `Walk story keys from the persisted cursor, compare each remote story
against the current archive, and write changed stories to the worktree.

Configuration can be loaded from a JSON file using --config. Command-line
arguments override config file values.`,
	RunE: runUpdate,
}

var (
	updateConfigPath   string
	updateWorkdir      string
	updateArchive      string
	updateBaseURL      string
	updateToken        string
	updateRetries      int
	updateSkips        int
	updateSuccessDelay int
	updateSkippedDelay int
	updateFailureDelay int
	updateWorkers      int
	updateDatabaseURL  string
	updateBlacklist    string
	updateVerbose      bool
)

func init() {
	updateCmd.Flags().StringVar(&updateConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	updateCmd.Flags().StringVarP(&updateWorkdir, "workdir", "w", "", "Working directory for the cursor and fetched stories")
	updateCmd.Flags().StringVarP(&updateArchive, "archive", "a", "", "Path to the current archive zip")
	updateCmd.Flags().StringVar(&updateBaseURL, "base-url", "", "Remote site base URL (defaults to ARCHIVER_BASE_URL env var)")
	updateCmd.Flags().StringVar(&updateToken, "token", "", "Remote API token (defaults to ARCHIVER_TOKEN env var)")
	updateCmd.Flags().IntVar(&updateRetries, "retries", 0, "Consecutive failures before giving up")
	updateCmd.Flags().IntVar(&updateSkips, "skips", 0, "Consecutive absent stories before stopping")
	updateCmd.Flags().IntVar(&updateSuccessDelay, "success-delay", 0, "Seconds to wait after a selected story")
	updateCmd.Flags().IntVar(&updateSkippedDelay, "skipped-delay", 0, "Seconds to wait after a skipped story")
	updateCmd.Flags().IntVar(&updateFailureDelay, "failure-delay", 0, "Seconds to wait after a failed story")
	updateCmd.Flags().IntVar(&updateWorkers, "workers", 0, "Index load parallelism (0 for GOMAXPROCS)")
	updateCmd.Flags().StringVar(&updateDatabaseURL, "db-url", "", "PostgreSQL connection URL for run bookkeeping (optional)")
	updateCmd.Flags().StringVar(&updateBlacklist, "blacklist", "", "YAML opt-out list of story and author ids")
	updateCmd.Flags().BoolVarP(&updateVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(updateCmd)
}

func updateConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if updateConfigPath != "" {
		loadedCfg, err := config.LoadConfig(updateConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loadedCfg.Validate(); err != nil {
			return cfg, err
		}
		cfg = *loadedCfg
		if updateVerbose {
			fmt.Fprintf(os.Stdout, "Loaded config from: %s\n", updateConfigPath)
		}
	}

	// CLI overrides, only when the flag was explicitly set
	if cmd.Flags().Changed("workdir") {
		cfg.Workdir = updateWorkdir
	}
	if cmd.Flags().Changed("archive") {
		cfg.Archive = updateArchive
	}
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = updateBaseURL
	}
	if cmd.Flags().Changed("token") {
		cfg.Token = updateToken
	}
	if cmd.Flags().Changed("retries") {
		cfg.Retries = updateRetries
	}
	if cmd.Flags().Changed("skips") {
		cfg.Skips = updateSkips
	}
	if cmd.Flags().Changed("success-delay") {
		cfg.SuccessDelay = updateSuccessDelay
	}
	if cmd.Flags().Changed("skipped-delay") {
		cfg.SkippedDelay = updateSkippedDelay
	}
	if cmd.Flags().Changed("failure-delay") {
		cfg.FailureDelay = updateFailureDelay
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = updateWorkers
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = updateDatabaseURL
	}
	if cmd.Flags().Changed("blacklist") {
		cfg.Blacklist = updateBlacklist
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = updateVerbose
	}

	defaults := config.Config{
		Workdir:      "worktree/update",
		Retries:      updating.DefaultRetries,
		Skips:        updating.DefaultSkips,
		SuccessDelay: int(updating.DefaultSuccessDelay / time.Second),
		SkippedDelay: int(updating.DefaultSkippedDelay / time.Second),
		FailureDelay: int(updating.DefaultFailureDelay / time.Second),
	}
	cfg = cfg.MergeWithDefaults(defaults)
	cfg.FromEnv()

	if cfg.BaseURL == "" {
		return cfg, fmt.Errorf("--base-url is required (via flag, config, or %s)", config.EnvBaseURL)
	}
	if cfg.Archive == "" {
		return cfg, fmt.Errorf("--archive is required (via flag or config)")
	}

	return cfg, nil
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := updateConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	fmt.Fprintf(os.Stdout, "Loading archive index from %s...\n", cfg.Archive)
	archiveFetcher, err := archive.Open(cfg.Archive, &archive.Options{Workers: cfg.Workers})
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFetcher.Close()

	stories, err := archiveFetcher.Len()
	if err != nil {
		return fmt.Errorf("failed to count archive stories: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Archive contains %d stories\n", stories)

	verifier, err := schemas.NewMetaVerifier()
	if err != nil {
		return err
	}

	remoteFetcher, err := remote.NewFetcher(ctx, remote.Options{
		BaseURL:  cfg.BaseURL,
		Token:    cfg.Token,
		Verifier: verifier,
	})
	if err != nil {
		return fmt.Errorf("failed to create remote fetcher: %w", err)
	}
	defer remoteFetcher.Close()

	counting := &updating.CountingObserver{}
	observers := updating.MultiObserver{updating.NewLogObserver(nil), counting}

	cursor, err := updating.LoadCursor(updating.CursorPath(cfg.Workdir))
	if err != nil {
		return err
	}

	runStatus := "completed"
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		runID, err := database.CreateRun(ctx, cfg.Workdir, cursor.Key)
		if err != nil {
			return err
		}
		defer func() {
			// Best effort; the run record must not mask the run error.
			completeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := database.CompleteRun(completeCtx, runID, runStatus); err != nil {
				logrus.WithField("error", err).Warn("failed to complete run record")
			}
		}()

		observers = append(observers, db.NewRunObserver(database, runID, nil))
	}

	blacklist, err := config.LoadBlacklist(cfg.Blacklist)
	if err != nil {
		return err
	}
	var exclude func(int) bool
	if blacklist.Len() > 0 {
		exclude = blacklist.ExcludesKey
	}

	task, err := updating.NewTask(updating.Config{
		Archive:  archiveFetcher,
		Remote:   remoteFetcher,
		Workdir:  cfg.Workdir,
		Retries:  cfg.Retries,
		Skips:    cfg.Skips,
		Observer: observers,
		Exclude:  exclude,
		Delays: updating.Delays{
			Success: time.Duration(cfg.SuccessDelay) * time.Second,
			Skipped: time.Duration(cfg.SkippedDelay) * time.Second,
			Failure: time.Duration(cfg.FailureDelay) * time.Second,
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Updating from key %d\n", task.Cursor().Key)
	runErr := task.Run(ctx)
	if runErr != nil {
		runStatus = "failed"
	}

	fmt.Fprintf(os.Stdout, "Update stopped at key %d: %d selected, %d skipped, %d failed\n",
		task.Cursor().Key, counting.Selected, counting.Skipped, counting.Failed)
	if cfg.Verbose {
		printer := observability.NewPrinter(os.Stdout)
		printer.PrintRunSummary(task.Cursor().Key, counting.Selected, counting.Skipped, counting.Failed)
	}

	return runErr
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/fetchers/archive"
	"github.com/jonathan/story-archiver/internal/fetchers/remote"
	"github.com/jonathan/story-archiver/internal/observability"
	"github.com/jonathan/story-archiver/internal/schemas"
	"github.com/jonathan/story-archiver/internal/writing"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <key>",
	Short: "Fetch a single story and write it to a directory",
	Long: `Fetch one story by key, either from the remote site or from an archive
zip, and write its meta and payload into the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var (
	fetchArchive string
	fetchBaseURL string
	fetchToken   string
	fetchOut     string
)

func init() {
	fetchCmd.Flags().StringVarP(&fetchArchive, "archive", "a", "", "Fetch from this archive zip instead of the remote site")
	fetchCmd.Flags().StringVar(&fetchBaseURL, "base-url", "", "Remote site base URL (defaults to ARCHIVER_BASE_URL env var)")
	fetchCmd.Flags().StringVar(&fetchToken, "token", "", "Remote API token (defaults to ARCHIVER_TOKEN env var)")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "Output directory (required)")

	fetchCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(fetchCmd)
}

func fetchSource(ctx context.Context) (fetchers.Source, error) {
	if fetchArchive != "" {
		return archive.Open(fetchArchive, nil)
	}

	if fetchBaseURL == "" {
		fetchBaseURL = os.Getenv("ARCHIVER_BASE_URL")
	}
	if fetchToken == "" {
		fetchToken = os.Getenv("ARCHIVER_TOKEN")
	}
	if fetchBaseURL == "" {
		return nil, fmt.Errorf("either --archive or --base-url must be provided")
	}

	verifier, err := schemas.NewMetaVerifier()
	if err != nil {
		return nil, err
	}
	return remote.NewFetcher(ctx, remote.Options{
		BaseURL:  fetchBaseURL,
		Token:    fetchToken,
		Verifier: verifier,
	})
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid story key %q: %w", args[0], err)
	}

	source, err := fetchSource(ctx)
	if err != nil {
		return err
	}
	defer source.Close()

	s, err := fetchers.FetchWith(source, key, fetchers.Prefetch{Meta: true, Data: true})
	if err != nil {
		return fmt.Errorf("failed to fetch story %d: %w", key, err)
	}

	writer := writing.NewDirectoryWriter(
		writing.StoryPath(filepath.Join(fetchOut, "meta")),
		writing.StoryPath(filepath.Join(fetchOut, "data")),
	)
	if err := writer.Write(s); err != nil {
		return fmt.Errorf("failed to write story: %w", err)
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintStory(s)
	fmt.Fprintf(os.Stdout, "Story written to %s\n", fetchOut)

	return nil
}

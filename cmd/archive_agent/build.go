package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/story-archiver/internal/building"
	"github.com/jonathan/story-archiver/internal/config"
	"github.com/jonathan/story-archiver/internal/fetchers/archive"
	"github.com/jonathan/story-archiver/internal/fetchers/directory"
	"github.com/jonathan/story-archiver/internal/story"
	"github.com/jonathan/story-archiver/internal/writing"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Assemble a new archive from the worktree and the previous archive",
	Long: `Merge the update worktree over the previous archive into a freshly
written archive zip. Stories listed in the blacklist are left out; stories
whose payload only exists in the previous archive keep that payload.`,
	RunE: runBuild,
}

var (
	buildWorkdir   string
	buildPrevious  string
	buildOutput    string
	buildBlacklist string
	buildExtras    []string
	buildWorkers   int
)

func init() {
	buildCmd.Flags().StringVarP(&buildWorkdir, "workdir", "w", "worktree/update", "Update worktree to read stories from")
	buildCmd.Flags().StringVarP(&buildPrevious, "previous", "p", "", "Previous archive zip to carry stories from")
	buildCmd.Flags().StringVarP(&buildOutput, "out", "o", "", "Output archive zip path (required)")
	buildCmd.Flags().StringVar(&buildBlacklist, "blacklist", "", "YAML opt-out list of story and author ids")
	buildCmd.Flags().StringArrayVar(&buildExtras, "extra", nil, "Extra file to pack into the archive root (repeatable)")
	buildCmd.Flags().IntVar(&buildWorkers, "workers", 0, "Index load parallelism (0 for GOMAXPROCS)")

	buildCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(buildCmd)
}

func loadExtras(paths []string) ([]writing.Extra, error) {
	extras := make([]writing.Extra, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read extra file: %w", err)
		}
		extras = append(extras, writing.Extra{
			Name: filepath.Base(path),
			Data: data,
		})
	}
	return extras, nil
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blacklist, err := config.LoadBlacklist(buildBlacklist)
	if err != nil {
		return err
	}

	extras, err := loadExtras(buildExtras)
	if err != nil {
		return err
	}

	var previous *archive.Fetcher
	if buildPrevious != "" {
		fmt.Fprintf(os.Stdout, "Loading previous archive from %s...\n", buildPrevious)
		previous, err = archive.Open(buildPrevious, &archive.Options{Workers: buildWorkers})
		if err != nil {
			return fmt.Errorf("failed to open previous archive: %w", err)
		}
		defer previous.Close()
	}

	worktree := directory.NewFetcher(
		filepath.Join(buildWorkdir, "meta"),
		filepath.Join(buildWorkdir, "epub"),
		story.FormatEPUB, story.PurityClean,
	)

	indexPath := buildOutput + ".index"
	writer, err := writing.NewArchiveWriter(buildOutput, indexPath, extras)
	if err != nil {
		return err
	}

	task, err := building.NewTask(building.Options{
		Worktree:  worktree,
		Previous:  previous,
		Writer:    writer,
		Blacklist: blacklist,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Building %s...\n", buildOutput)
	result, runErr := task.Run(ctx)
	if err := writer.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	if err := os.Remove(indexPath); err != nil {
		return fmt.Errorf("failed to remove index scratch file: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Successfully built archive\n")
	fmt.Fprintf(os.Stdout, "Stories: %d written (%d carried, %d revived)\n",
		result.Written, result.Carried, result.Revived)
	fmt.Fprintf(os.Stdout, "Left out: %d blacklisted, %d missing payloads\n",
		result.Excluded, result.Missing)

	return nil
}

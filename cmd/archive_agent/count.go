package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathan/story-archiver/internal/config"
	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/fetchers/archive"
	"github.com/jonathan/story-archiver/internal/fetchers/directory"
	"github.com/jonathan/story-archiver/internal/story"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the stories in an archive or worktree",
	Long: `Count stories in an archive zip or an update worktree. With --words the
word counts from story meta are summed as well, which reads every meta
entry and takes noticeably longer on a full archive.`,
	RunE: runCount,
}

var (
	countArchive   string
	countWorkdir   string
	countBlacklist string
	countWords     bool
)

func init() {
	countCmd.Flags().StringVarP(&countArchive, "archive", "a", "", "Archive zip to count")
	countCmd.Flags().StringVarP(&countWorkdir, "workdir", "w", "", "Update worktree to count")
	countCmd.Flags().StringVar(&countBlacklist, "blacklist", "", "YAML opt-out list to apply before counting")
	countCmd.Flags().BoolVar(&countWords, "words", false, "Also sum word counts from story meta")

	rootCmd.AddCommand(countCmd)
}

type countSource interface {
	fetchers.Source
	Keys() ([]int, error)
}

func runCount(cmd *cobra.Command, _ []string) error {
	if countArchive == "" && countWorkdir == "" {
		return fmt.Errorf("either --archive or --workdir must be provided")
	}
	if countArchive != "" && countWorkdir != "" {
		return fmt.Errorf("--archive and --workdir are mutually exclusive; provide only one")
	}

	blacklist, err := config.LoadBlacklist(countBlacklist)
	if err != nil {
		return err
	}

	var source countSource
	if countArchive != "" {
		source, err = archive.Open(countArchive, nil)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
	} else {
		source = directory.NewFetcher(
			filepath.Join(countWorkdir, "meta"),
			filepath.Join(countWorkdir, "epub"),
		)
	}
	defer source.Close()

	keys, err := source.Keys()
	if err != nil {
		return err
	}

	stories := 0
	excluded := 0
	var words int64

	for _, key := range keys {
		if blacklist.ExcludesKey(key) {
			excluded++
			continue
		}

		if !countWords && blacklist.Len() == 0 {
			stories++
			continue
		}

		s, err := fetchers.Fetch(source, key)
		if err != nil {
			return fmt.Errorf("failed to fetch story %d: %w", key, err)
		}
		listed, err := blacklist.Excludes(s)
		if err != nil {
			return fmt.Errorf("blacklist check for story %d: %w", key, err)
		}
		if listed {
			excluded++
			continue
		}
		stories++

		if countWords {
			meta, err := s.Meta()
			if err != nil {
				return fmt.Errorf("failed to read meta for story %d: %w", key, err)
			}
			if n, ok := meta.Int("words"); ok {
				words += n
			} else {
				words += chapterWords(meta)
			}
		}
	}

	fmt.Fprintf(os.Stdout, "Stories: %d\n", stories)
	if excluded > 0 {
		fmt.Fprintf(os.Stdout, "Blacklisted: %d\n", excluded)
	}
	if countWords {
		fmt.Fprintf(os.Stdout, "Words: %d\n", words)
	}

	return nil
}

// chapterWords sums per-chapter word counts for meta without a
// top-level total.
func chapterWords(meta story.Meta) int64 {
	var total int64
	for _, raw := range meta.Chapters() {
		chapter, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if n, ok := story.Meta(chapter).Int("words"); ok {
			total += n
		}
	}
	return total
}

// Package building assembles a release archive from an update worktree
// and the previous archive.
package building

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/story-archiver/internal/config"
	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/fetchers/archive"
	"github.com/jonathan/story-archiver/internal/fetchers/directory"
	"github.com/jonathan/story-archiver/internal/story"
	"github.com/jonathan/story-archiver/internal/writing"
)

// Options configures a build. Worktree and Writer are required;
// Previous supplies payloads for stories the worktree only has meta
// for, and for stories the update never touched.
type Options struct {
	Worktree  *directory.Fetcher
	Previous  *archive.Fetcher
	Writer    *writing.ArchiveWriter
	Blacklist *config.Blacklist
	Log       logrus.FieldLogger
}

// Result summarizes a completed build.
type Result struct {
	Written  int
	Carried  int // taken unchanged from the previous archive
	Revived  int // worktree meta joined with the previous payload
	Excluded int // dropped by the blacklist
	Missing  int // no payload anywhere, left out
}

// Task merges the worktree over the previous archive into a new one.
type Task struct {
	opts Options
}

// NewTask validates the options.
func NewTask(opts Options) (*Task, error) {
	if opts.Worktree == nil {
		return nil, fmt.Errorf("worktree fetcher is required")
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("archive writer is required")
	}
	if opts.Blacklist == nil {
		opts.Blacklist = &config.Blacklist{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Task{opts: opts}, nil
}

// keys returns the union of worktree and previous archive keys,
// ascending. The writer requires ascending order.
func (t *Task) keys() ([]int, error) {
	seen := make(map[int]struct{})

	wtKeys, err := t.opts.Worktree.Keys()
	if err != nil {
		return nil, err
	}
	for _, k := range wtKeys {
		seen[k] = struct{}{}
	}

	if t.opts.Previous != nil {
		prevKeys, err := t.opts.Previous.Keys()
		if err != nil {
			return nil, err
		}
		for _, k := range prevKeys {
			seen[k] = struct{}{}
		}
	}

	keys := make([]int, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys, nil
}

// pick resolves the story to pack for a key, preferring worktree meta
// and falling back to the previous archive for missing payloads.
func (t *Task) pick(key int) (*story.Story, bool, error) {
	wt, err := t.opts.Worktree.Fetch(key)
	if err != nil && !fetchers.IsInvalidStory(err) {
		return nil, false, err
	}

	var prev *story.Story
	if t.opts.Previous != nil {
		prev, err = fetchers.Fetch(t.opts.Previous, key)
		if err != nil && !fetchers.IsInvalidStory(err) {
			return nil, false, err
		}
	}

	if wt == nil {
		return prev, false, nil
	}

	if _, err := wt.Meta(); fetchers.IsInvalidStory(err) {
		// Payload without meta, the update never writes this shape.
		return prev, false, nil
	} else if err != nil {
		return nil, false, err
	}

	if _, err := wt.Data(); err == nil {
		return wt, false, nil
	} else if !fetchers.IsInvalidStory(err) {
		return nil, false, err
	}

	// Meta-only worktree entry; join with the stored payload.
	if prev == nil {
		return nil, false, nil
	}
	data, err := prev.Data()
	if err != nil {
		return nil, false, err
	}
	return wt.Merge(story.Overrides{Data: data}), true, nil
}

// Run writes every selected story to the new archive. The caller still
// owns the writer and must Close it, so extras land even after a
// partial build fails.
func (t *Task) Run(ctx context.Context) (*Result, error) {
	keys, err := t.keys()
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if t.opts.Blacklist.ExcludesKey(key) {
			result.Excluded++
			continue
		}

		s, revived, err := t.pick(key)
		if err != nil {
			return result, fmt.Errorf("resolve story %d: %w", key, err)
		}
		if s == nil {
			t.opts.Log.WithField("key", key).Warn("story has no payload, leaving out")
			result.Missing++
			continue
		}

		excluded, err := t.opts.Blacklist.Excludes(s)
		if err != nil {
			return result, fmt.Errorf("blacklist check for story %d: %w", key, err)
		}
		if excluded {
			result.Excluded++
			continue
		}

		if err := t.opts.Writer.Write(s); err != nil {
			return result, fmt.Errorf("write story %d: %w", key, err)
		}
		result.Written++
		switch {
		case revived:
			result.Revived++
		case s.Flavors.Has(story.SourceArchive):
			result.Carried++
		}
	}

	return result, nil
}

// Package updating drives the incremental synchronization loop: read
// the cursor, fetch old and new, select, stamp, persist, advance. The
// loop is strictly sequential; one key is fully processed before the
// next begins, which bounds the request rate and makes the cursor a
// crash-consistent checkpoint.
package updating

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/selection"
	"github.com/jonathan/story-archiver/internal/stamping"
	"github.com/jonathan/story-archiver/internal/story"
	"github.com/jonathan/story-archiver/internal/writing"
)

// Budget and delay defaults. The delays are deliberate: one spammy
// synchronous client would not take the site down, but it might make
// its owners want to prevent archiving altogether.
const (
	DefaultRetries = 10
	DefaultSkips   = 500

	DefaultSuccessDelay = 5 * time.Second
	DefaultSkippedDelay = 2 * time.Second
	DefaultFailureDelay = 300 * time.Second

	cursorFile = "state.json"
)

// Delays are the rate-limit sleeps after each kind of cycle outcome.
type Delays struct {
	Success time.Duration
	Skipped time.Duration
	Failure time.Duration
}

// DefaultDelays returns the stock delay policy.
func DefaultDelays() Delays {
	return Delays{
		Success: DefaultSuccessDelay,
		Skipped: DefaultSkippedDelay,
		Failure: DefaultFailureDelay,
	}
}

// ErrInvariant marks logic errors that retrying cannot fix. The run
// terminates immediately when one surfaces.
var ErrInvariant = errors.New("invariant violation")

// Config assembles a Task. Archive, Remote, and Workdir are required;
// everything else has defaults.
type Config struct {
	// Archive serves the old side of each diff.
	Archive fetchers.Source

	// Remote serves the new side of each diff.
	Remote fetchers.Source

	Selector selection.Selector
	Stamper  *stamping.UpdateStamper

	// Workdir holds the cursor and the per-flavor output directories.
	Workdir string

	Retries  int
	Skips    int
	Delays   Delays
	Observer Observer

	// Exclude skips a key without contacting either source, for
	// blacklisted stories. Excluded keys still advance the cursor and
	// spend skip budget, keeping the run bounded.
	Exclude func(key int) bool

	// Sleep overrides the delay implementation, mainly for tests.
	Sleep func(context.Context, time.Duration)
}

// Task updates the archive one story at a time.
type Task struct {
	cfg    Config
	cursor *Cursor

	metaWriter writing.Writer
	skipWriter writing.Writer
	epubWriter writing.Writer
	htmlWriter writing.Writer
	jsonWriter writing.Writer
}

// NewTask prepares the worktree and loads the cursor.
func NewTask(cfg Config) (*Task, error) {
	if cfg.Archive == nil || cfg.Remote == nil {
		return nil, fmt.Errorf("archive and remote sources are required")
	}
	if cfg.Workdir == "" {
		return nil, fmt.Errorf("workdir is required")
	}

	if cfg.Selector == nil {
		cfg.Selector = selection.NewUpdateSelector(nil)
	}
	if cfg.Stamper == nil {
		cfg.Stamper = stamping.NewUpdateStamper(nil)
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Skips <= 0 {
		cfg.Skips = DefaultSkips
	}
	if cfg.Delays == (Delays{}) {
		cfg.Delays = DefaultDelays()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	if err := os.MkdirAll(cfg.Workdir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	cursor, err := LoadCursor(CursorPath(cfg.Workdir))
	if err != nil {
		return nil, err
	}

	metaPath := writing.StoryPath(filepath.Join(cfg.Workdir, "meta"))
	t := &Task{
		cfg:        cfg,
		cursor:     cursor,
		metaWriter: writing.NewDirectoryWriter(metaPath, nil),
		skipWriter: writing.NewDirectoryWriter(writing.StoryPath(filepath.Join(cfg.Workdir, "skip")), nil),
		epubWriter: writing.NewDirectoryWriter(metaPath, writing.StoryPath(filepath.Join(cfg.Workdir, "epub"))),
		htmlWriter: writing.NewDirectoryWriter(metaPath, writing.StoryPath(filepath.Join(cfg.Workdir, "html"))),
		jsonWriter: writing.NewDirectoryWriter(metaPath, writing.StoryPath(filepath.Join(cfg.Workdir, "json"))),
	}
	return t, nil
}

// Cursor exposes the task's checkpoint, mainly for reporting.
func (t *Task) Cursor() *Cursor {
	return t.cursor
}

// fetch retrieves a story, mapping "no such story" to absence.
func (t *Task) fetch(src fetchers.Source, key int) (*story.Story, error) {
	s, err := fetchers.Fetch(src, key)
	if err != nil {
		if fetchers.IsInvalidStory(err) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// copyArchiveMeta carries the bookkeeping sub-map from the old story
// into the new one. The remote source must never produce archive meta
// itself; if it does, something upstream is leaking internal fields and
// the run must stop.
func (t *Task) copyArchiveMeta(old, new *story.Story) error {
	if old == nil || new == nil {
		return nil
	}

	newMeta, err := new.Meta()
	if err != nil {
		if fetchers.IsInvalidStory(err) {
			return nil
		}
		return err
	}

	if newMeta.HasArchive() {
		return fmt.Errorf("%w: new story %d contains archive meta", ErrInvariant, new.Key)
	}

	oldMeta, err := old.Meta()
	if err != nil {
		if fetchers.IsInvalidStory(err) {
			return nil
		}
		return err
	}

	archive, ok := oldMeta.Sub(story.ArchiveKey)
	if !ok {
		return nil
	}

	newMeta[story.ArchiveKey] = map[string]any(archive.Clone())
	return nil
}

// write routes the story to the sink matching its flavors.
func (t *Task) write(s *story.Story) error {
	switch {
	case s.Flavors.Has(story.SourceArchive):
		return t.metaWriter.Write(s)
	case s.Flavors.Has(story.FormatHTML):
		return t.htmlWriter.Write(s)
	case s.Flavors.Has(story.FormatJSON):
		return t.jsonWriter.Write(s)
	case s.Flavors.Has(story.FormatEPUB):
		return t.epubWriter.Write(s)
	default:
		return fmt.Errorf("%w: unsupported story flavor for key %d", ErrInvariant, s.Key)
	}
}

// update runs one full cycle for a key and returns the selected story,
// if any.
func (t *Task) update(key int) (*story.Story, error) {
	old, err := t.fetch(t.cfg.Archive, key)
	if err != nil {
		return nil, err
	}
	new, err := t.fetch(t.cfg.Remote, key)
	if err != nil {
		return nil, err
	}

	if err := t.copyArchiveMeta(old, new); err != nil {
		return nil, err
	}

	selected, status, err := t.cfg.Selector.Select(old, new)
	if err != nil {
		return nil, err
	}

	// A revived story keeps its stored payload but takes the fresh
	// meta: server-side details may have changed even though the
	// freshness timestamp did not. This assumes the remote never
	// changes a payload without advancing the timestamp.
	if selected != nil && status == story.StatusRevived && new != nil {
		newMeta, err := new.Meta()
		if err != nil {
			return nil, err
		}
		selected = selected.Merge(story.Overrides{Meta: newMeta})
	}

	if selected != nil {
		if err := t.cfg.Stamper.Stamp(selected); err != nil {
			return nil, err
		}
		if err := t.write(selected); err != nil {
			return nil, err
		}
		return selected, nil
	}

	if new != nil {
		return nil, t.skipWriter.Write(new)
	}
	if old != nil {
		return nil, t.skipWriter.Write(old)
	}
	return nil, nil
}

// Run drives the update loop until a budget is exhausted, the context
// is cancelled, or an invariant is violated. The cursor only advances
// after a fully successful cycle.
func (t *Task) Run(ctx context.Context) error {
	retried := 0
	skipped := 0

	for skipped < t.cfg.Skips && retried < t.cfg.Retries {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := t.cursor.Key
		t.cfg.Observer.OnAttempt(key, skipped, retried)

		if t.cfg.Exclude != nil && t.cfg.Exclude(key) {
			t.cursor.Key++
			if err := t.cursor.Save(); err != nil {
				return err
			}
			skipped++
			t.cfg.Observer.OnSkipped(key, nil)
			continue
		}

		selected, err := t.update(key)
		if err != nil {
			if errors.Is(err, ErrInvariant) {
				return err
			}
			retried++
			t.cfg.Observer.OnFailure(key, err)
			t.cfg.Sleep(ctx, t.cfg.Delays.Failure)
			continue
		}

		retried = 0
		t.cursor.Key++
		if err := t.cursor.Save(); err != nil {
			return err
		}

		if selected != nil {
			skipped = 0
			t.cfg.Observer.OnSuccess(key, selected)
			t.cfg.Sleep(ctx, t.cfg.Delays.Success)
		} else {
			skipped++
			t.cfg.Observer.OnSkipped(key, nil)
			t.cfg.Sleep(ctx, t.cfg.Delays.Skipped)
		}
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

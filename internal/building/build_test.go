package building

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/story-archiver/internal/config"
	"github.com/jonathan/story-archiver/internal/fetchers/archive"
	"github.com/jonathan/story-archiver/internal/fetchers/directory"
	"github.com/jonathan/story-archiver/internal/story"
	"github.com/jonathan/story-archiver/internal/writing"
)

type entry struct {
	key      int
	title    string
	authorID int
	data     string
	metaOnly bool
}

// writeWorktree lays out entries the way the update task does: meta
// files always, data files unless the entry is meta-only.
func writeWorktree(t *testing.T, entries []entry) (string, string) {
	t.Helper()
	dir := t.TempDir()
	metaDir := filepath.Join(dir, "meta")
	dataDir := filepath.Join(dir, "epub")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	for _, e := range entries {
		meta := metaFor(e)
		raw, err := json.Marshal(meta)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(metaDir, strconv.Itoa(e.key)), raw, 0o644))
		if !e.metaOnly {
			require.NoError(t, os.WriteFile(filepath.Join(dataDir, strconv.Itoa(e.key)), []byte(e.data), 0o644))
		}
	}
	return metaDir, dataDir
}

func metaFor(e entry) story.Meta {
	title := e.title
	if title == "" {
		title = fmt.Sprintf("Story %d", e.key)
	}
	return story.Meta{
		"id":     e.key,
		"title":  title,
		"author": map[string]any{"id": e.authorID, "name": "author"},
		"chapters": []any{
			map[string]any{"id": 1},
		},
	}
}

// buildPrevious packs entries into an archive on disk and opens it.
func buildPrevious(t *testing.T, entries []entry) *archive.Fetcher {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "previous.zip")

	w, err := writing.NewArchiveWriter(path, filepath.Join(dir, "previous.index"), nil)
	require.NoError(t, err)
	for _, e := range entries {
		s, err := story.New(e.key, nil, metaFor(e), []byte(e.data), story.SourceArchive, story.FormatEPUB)
		require.NoError(t, err)
		require.NoError(t, w.Write(s))
	}
	require.NoError(t, w.Close())

	f, err := archive.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func newBuildTask(t *testing.T, opts Options) (*Task, string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "out.zip")

	w, err := writing.NewArchiveWriter(out, filepath.Join(dir, "out.index"), nil)
	require.NoError(t, err)
	opts.Writer = w

	task, err := NewTask(opts)
	require.NoError(t, err)
	return task, out
}

func archiveKeys(t *testing.T, path string) []int {
	t.Helper()
	f, err := archive.Open(path, nil)
	require.NoError(t, err)
	defer f.Close()

	keys, err := f.Keys()
	require.NoError(t, err)
	return keys
}

func TestRun_WorktreeOnly(t *testing.T) {
	metaDir, dataDir := writeWorktree(t, []entry{
		{key: 1, data: "one"},
		{key: 3, data: "three"},
	})
	task, out := newBuildTask(t, Options{
		Worktree: directory.NewFetcher(metaDir, dataDir, story.FormatEPUB, story.PurityClean),
	})

	result, err := task.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, task.opts.Writer.Close())

	assert.Equal(t, &Result{Written: 2}, result)
	assert.Equal(t, []int{1, 3}, archiveKeys(t, out))
}

func TestRun_CarriesFromPrevious(t *testing.T) {
	metaDir, dataDir := writeWorktree(t, []entry{
		{key: 2, data: "fresh two"},
	})
	previous := buildPrevious(t, []entry{
		{key: 1, data: "stored one"},
		{key: 2, data: "stale two"},
	})

	task, out := newBuildTask(t, Options{
		Worktree: directory.NewFetcher(metaDir, dataDir, story.FormatEPUB, story.PurityClean),
		Previous: previous,
	})

	result, err := task.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, task.opts.Writer.Close())

	assert.Equal(t, 2, result.Written)
	assert.Equal(t, 1, result.Carried)

	f, err := archive.Open(out, nil)
	require.NoError(t, err)
	defer f.Close()

	data, err := f.FetchData(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh two"), data)
	data, err = f.FetchData(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("stored one"), data)
}

func TestRun_RevivesMetaOnlyEntries(t *testing.T) {
	metaDir, dataDir := writeWorktree(t, []entry{
		{key: 1, title: "Fresh Title", metaOnly: true},
	})
	previous := buildPrevious(t, []entry{
		{key: 1, title: "Old Title", data: "stored payload"},
	})

	task, out := newBuildTask(t, Options{
		Worktree: directory.NewFetcher(metaDir, dataDir, story.FormatEPUB, story.PurityClean),
		Previous: previous,
	})

	result, err := task.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, task.opts.Writer.Close())

	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 1, result.Revived)

	f, err := archive.Open(out, nil)
	require.NoError(t, err)
	defer f.Close()

	meta, err := f.FetchMeta(1)
	require.NoError(t, err)
	title, _ := meta.String("title")
	assert.Equal(t, "Fresh Title", title)
	data, err := f.FetchData(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("stored payload"), data)
}

func TestRun_MetaOnlyWithoutPrevious(t *testing.T) {
	metaDir, dataDir := writeWorktree(t, []entry{
		{key: 1, metaOnly: true},
	})
	task, _ := newBuildTask(t, Options{
		Worktree: directory.NewFetcher(metaDir, dataDir, story.FormatEPUB, story.PurityClean),
	})

	result, err := task.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, task.opts.Writer.Close())

	assert.Equal(t, 0, result.Written)
	assert.Equal(t, 1, result.Missing)
}

func TestRun_Blacklist(t *testing.T) {
	metaDir, dataDir := writeWorktree(t, []entry{
		{key: 1, data: "one"},
		{key: 2, authorID: 7, data: "two"},
		{key: 3, data: "three"},
	})

	blPath := filepath.Join(t.TempDir(), "blacklist.yml")
	require.NoError(t, os.WriteFile(blPath, []byte("stories: [1]\nauthors: [7]\n"), 0o644))
	bl, err := config.LoadBlacklist(blPath)
	require.NoError(t, err)

	task, out := newBuildTask(t, Options{
		Worktree:  directory.NewFetcher(metaDir, dataDir, story.FormatEPUB, story.PurityClean),
		Blacklist: bl,
	})

	result, err := task.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, task.opts.Writer.Close())

	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 2, result.Excluded)
	assert.Equal(t, []int{3}, archiveKeys(t, out))
}

func TestRun_ExtrasSurvivePartialBuild(t *testing.T) {
	metaDir, dataDir := writeWorktree(t, nil)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.zip")

	w, err := writing.NewArchiveWriter(out, filepath.Join(dir, "out.index"), []writing.Extra{
		{Name: "readme.md", Data: []byte("# archive")},
	})
	require.NoError(t, err)

	task, err := NewTask(Options{
		Worktree: directory.NewFetcher(metaDir, dataDir, story.FormatEPUB, story.PurityClean),
		Writer:   w,
	})
	require.NoError(t, err)

	_, err = task.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "readme.md")
}

func TestNewTask_RequiresWorktreeAndWriter(t *testing.T) {
	_, err := NewTask(Options{})
	assert.ErrorContains(t, err, "worktree fetcher is required")

	metaDir, dataDir := writeWorktree(t, nil)
	_, err = NewTask(Options{
		Worktree: directory.NewFetcher(metaDir, dataDir),
	})
	assert.ErrorContains(t, err, "archive writer is required")
}

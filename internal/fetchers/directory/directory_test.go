package directory

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/story"
)

func writeWorktree(t *testing.T, meta map[int]string, data map[int]string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "meta")
	dataPath := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(metaPath, 0o755))
	require.NoError(t, os.MkdirAll(dataPath, 0o755))

	for key, contents := range meta {
		name := filepath.Join(metaPath, strconv.Itoa(key))
		require.NoError(t, os.WriteFile(name, []byte(contents), 0o644))
	}
	for key, contents := range data {
		name := filepath.Join(dataPath, strconv.Itoa(key))
		require.NoError(t, os.WriteFile(name, []byte(contents), 0o644))
	}
	return metaPath, dataPath
}

func TestKeys_Union(t *testing.T) {
	metaPath, dataPath := writeWorktree(t,
		map[int]string{3: `{"id": 3}`, 1: `{"id": 1}`},
		map[int]string{2: "payload", 3: "payload"},
	)
	fetcher := NewFetcher(metaPath, dataPath)

	keys, err := fetcher.Keys()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, keys)

	n, err := fetcher.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestKeys_RejectsStrayFiles(t *testing.T) {
	metaPath, dataPath := writeWorktree(t, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(metaPath, "notes.txt"), []byte("x"), 0o644))

	fetcher := NewFetcher(metaPath, dataPath)
	_, err := fetcher.Keys()
	assert.ErrorIs(t, err, fetchers.ErrStorySource)
	assert.ErrorContains(t, err, "not a story key")
}

func TestFetchMeta(t *testing.T) {
	metaPath, dataPath := writeWorktree(t,
		map[int]string{7: `{"id": 7, "title": "Seven"}`},
		nil,
	)
	fetcher := NewFetcher(metaPath, dataPath)

	meta, err := fetcher.FetchMeta(7)
	require.NoError(t, err)
	title, _ := meta.String("title")
	assert.Equal(t, "Seven", title)
}

func TestFetchMeta_Missing(t *testing.T) {
	metaPath, dataPath := writeWorktree(t, nil, nil)
	fetcher := NewFetcher(metaPath, dataPath)

	_, err := fetcher.FetchMeta(7)
	assert.True(t, fetchers.IsInvalidStory(err))
}

func TestFetchMeta_BadJSON(t *testing.T) {
	metaPath, dataPath := writeWorktree(t, map[int]string{7: `not json`}, nil)
	fetcher := NewFetcher(metaPath, dataPath)

	_, err := fetcher.FetchMeta(7)
	assert.ErrorIs(t, err, fetchers.ErrStorySource)
}

func TestFetchData(t *testing.T) {
	metaPath, dataPath := writeWorktree(t, nil, map[int]string{7: "payload"})
	fetcher := NewFetcher(metaPath, dataPath)

	data, err := fetcher.FetchData(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestFetchData_NoDataDir(t *testing.T) {
	metaPath, _ := writeWorktree(t, map[int]string{7: `{"id": 7}`}, nil)
	fetcher := NewFetcher(metaPath, "")

	_, err := fetcher.FetchData(7)
	assert.True(t, fetchers.IsInvalidStory(err))
}

func TestStories_OrderedAndFlavored(t *testing.T) {
	metaPath, dataPath := writeWorktree(t,
		map[int]string{2: `{"id": 2}`, 1: `{"id": 1}`},
		map[int]string{1: "one", 2: "two"},
	)
	fetcher := NewFetcher(metaPath, dataPath, story.FormatEPUB, story.PurityClean)

	stories, err := fetcher.Stories()
	require.NoError(t, err)
	require.Len(t, stories, 2)

	assert.Equal(t, 1, stories[0].Key)
	assert.Equal(t, 2, stories[1].Key)
	assert.True(t, stories[0].Flavors.Has(story.FormatEPUB))
	assert.True(t, stories[0].Flavors.Has(story.PurityClean))

	// Lazy until read.
	assert.False(t, stories[0].HasMeta())
	data, err := stories[0].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

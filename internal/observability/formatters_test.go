package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/story-archiver/internal/story"
)

func TestPrintStory(t *testing.T) {
	meta := story.Meta{
		"id":    129,
		"title": "A Story",
		"author": map[string]any{
			"id":   7,
			"name": "the author",
		},
		"words":    50000,
		"likes":    90,
		"dislikes": 10,
		"chapters": []any{
			map[string]any{"id": 1},
			map[string]any{"id": 2},
		},
	}
	s, err := story.New(129, nil, meta, []byte("data"), story.StatusUpdated)
	require.NoError(t, err)

	var buf bytes.Buffer
	NewPrinter(&buf).PrintStory(s)

	out := buf.String()
	assert.Contains(t, out, "STORY 129")
	assert.Contains(t, out, "Title:     A Story")
	assert.Contains(t, out, "Author:    the author")
	assert.Contains(t, out, "Status:    updated")
	assert.Contains(t, out, "Words:     50000")
	assert.Contains(t, out, "Approval:  90%")
	assert.Contains(t, out, "Chapters:  2")
}

func TestPrintStory_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintStory(nil)
	assert.Empty(t, buf.String())
}

type failingLoader struct{}

func (failingLoader) FetchMeta(key int) (story.Meta, error) {
	return nil, errors.New("connection refused")
}

func (failingLoader) FetchData(key int) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestPrintStory_MetaUnavailable(t *testing.T) {
	s, err := story.New(5, failingLoader{}, nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	NewPrinter(&buf).PrintStory(s)

	out := buf.String()
	assert.Contains(t, out, "STORY 5")
	assert.Contains(t, out, "meta unavailable")
}

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRunSummary(300, 12, 250, 1)

	out := buf.String()
	assert.Contains(t, out, "UPDATE RUN SUMMARY")
	assert.Contains(t, out, "Cursor:    300")
	assert.Contains(t, out, "Selected:  12")
	assert.Contains(t, out, "Skipped:   250")
	assert.Contains(t, out, "Failed:    1")
}

func TestPrintArchiveInfo(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintArchiveInfo("archive.zip", 1234)

	out := buf.String()
	assert.Contains(t, out, "ARCHIVE")
	assert.Contains(t, out, "Path:      archive.zip")
	assert.Contains(t, out, "Stories:   1234")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	NewPrinter(&buf).printBox("TITLE", string(long))
	assert.Contains(t, buf.String(), "...")
}

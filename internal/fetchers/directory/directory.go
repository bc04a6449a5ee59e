// Package directory serves stories from per-key files on disk, as laid
// out by the update worktree: one meta file and one data file per key,
// each named by the story's decimal key.
package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/story"
)

// Fetcher reads stories from a meta directory and a data directory.
// Either may be empty, in which case that side is never found.
type Fetcher struct {
	metaPath string
	dataPath string
	flavors  []story.Flavor
	length   int
	counted  bool
}

// NewFetcher returns a directory fetcher. Flavors are applied to every
// story it produces.
func NewFetcher(metaPath, dataPath string, flavors ...story.Flavor) *Fetcher {
	return &Fetcher{
		metaPath: metaPath,
		dataPath: dataPath,
		flavors:  flavors,
	}
}

// keysIn lists the story keys found in one directory.
func keysIn(dir string) ([]int, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fetchers.NewSourceError(0, fmt.Sprintf("path is not a directory: %s", dir), err)
	}

	keys := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			return nil, fetchers.NewSourceError(0, fmt.Sprintf("path is not a file: %s", filepath.Join(dir, entry.Name())), nil)
		}
		key, err := strconv.Atoi(entry.Name())
		if err != nil {
			return nil, fetchers.NewSourceError(0, fmt.Sprintf("name is not a story key: %s", entry.Name()), err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Keys lists every story key across both directories, ascending.
func (f *Fetcher) Keys() ([]int, error) {
	seen := make(map[int]struct{})

	for _, dir := range []string{f.metaPath, f.dataPath} {
		keys, err := keysIn(dir)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
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

// Len returns the number of stories available. The count is cached
// after the first call.
func (f *Fetcher) Len() (int, error) {
	if !f.counted {
		keys, err := f.Keys()
		if err != nil {
			return 0, err
		}
		f.length = len(keys)
		f.counted = true
	}
	return f.length, nil
}

func readFile(key int, dir string) ([]byte, error) {
	if dir == "" {
		return nil, fetchers.NewInvalidStory(key, "file does not exist")
	}

	data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fetchers.NewInvalidStory(key, "file does not exist")
		}
		return nil, fetchers.NewSourceError(key, "unable to read file", err)
	}
	return data, nil
}

// FetchMeta reads and parses the meta file for a key.
func (f *Fetcher) FetchMeta(key int) (story.Meta, error) {
	data, err := readFile(key, f.metaPath)
	if err != nil {
		return nil, err
	}

	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fetchers.NewSourceError(key, "meta file is not valid JSON", err)
	}
	return meta, nil
}

// FetchData reads the data file for a key.
func (f *Fetcher) FetchData(key int) ([]byte, error) {
	return readFile(key, f.dataPath)
}

// Prefetch defers both fields; directory reads are cheap but iteration
// should not touch files it does not need.
func (f *Fetcher) Prefetch() fetchers.Prefetch {
	return fetchers.Prefetch{}
}

// Flavors returns the flavors configured at construction.
func (f *Fetcher) Flavors() []story.Flavor {
	return f.flavors
}

// Fetch builds a lazy story backed by this fetcher.
func (f *Fetcher) Fetch(key int) (*story.Story, error) {
	return fetchers.Fetch(f, key)
}

// Stories yields every story in the directories, ordered by key.
func (f *Fetcher) Stories() ([]*story.Story, error) {
	keys, err := f.Keys()
	if err != nil {
		return nil, err
	}

	stories := make([]*story.Story, 0, len(keys))
	for _, key := range keys {
		s, err := f.Fetch(key)
		if err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	return stories, nil
}

// Close is a no-op; the fetcher holds no descriptors between reads.
func (f *Fetcher) Close() error {
	return nil
}

// Package archive loads a packaged archive release and serves its
// key to meta index as a story source. The index is parsed once at open
// time into a backend chosen for the archive's size; payloads stay in
// the container and are read on demand.
package archive

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/story"
)

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// indexName is the index entry inside an archive container.
const indexName = "index.json"

// DefaultBoltThreshold is the uncompressed index size, in bytes, above
// which the disk-backed store is chosen over the in-memory backend.
const DefaultBoltThreshold = 1 << 30

// Options tunes archive opening.
type Options struct {
	// Backend overrides automatic backend selection.
	Backend Backend

	// Workers bounds the index parse pool. Zero means GOMAXPROCS.
	Workers int

	// BoltThreshold overrides DefaultBoltThreshold. Negative disables
	// the disk-backed store entirely.
	BoltThreshold int64

	// BoltPath is where the disk-backed store lives when selected. An
	// empty path uses a temporary file.
	BoltPath string
}

// Fetcher serves stories from an existing archive release. It is the
// "old" side of every update cycle. Not safe for concurrent use.
type Fetcher struct {
	container *zip.ReadCloser
	files     map[string]*zip.File
	backend   Backend
	paths     map[int]string
	open      bool
}

// Open reads an archive container and loads its index.
func Open(path string, opts *Options) (*Fetcher, error) {
	if opts == nil {
		opts = &Options{}
	}

	container, err := zip.OpenReader(path)
	if err != nil {
		return nil, fetchers.NewSourceError(0, "archive is not a valid container", err)
	}

	f := &Fetcher{
		container: container,
		files:     make(map[string]*zip.File, len(container.File)),
		paths:     make(map[int]string),
	}
	for _, file := range container.File {
		f.files[file.Name] = file
	}

	if err := f.load(opts); err != nil {
		_ = f.Close()
		return nil, err
	}

	f.open = true
	return f, nil
}

func (f *Fetcher) load(opts *Options) error {
	index, ok := f.files[indexName]
	if !ok {
		return fetchers.NewSourceError(0, "archive is missing the index", nil)
	}

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = selectBackend(index, opts)
		if err != nil {
			return fetchers.NewSourceError(0, "could not create index backend", err)
		}
	}
	f.backend = backend

	reader, err := index.Open()
	if err != nil {
		return fetchers.NewSourceError(0, "could not open the index", err)
	}
	defer reader.Close()

	if err := loadIndex(reader, backend, opts.Workers); err != nil {
		return fetchers.NewSourceError(0, "could not load the index", err)
	}
	return nil
}

// selectBackend picks a backend from the index's uncompressed size so
// very large archives never hold the whole mapping in memory.
func selectBackend(index *zip.File, opts *Options) (Backend, error) {
	threshold := opts.BoltThreshold
	if threshold == 0 {
		threshold = DefaultBoltThreshold
	}

	if threshold > 0 && index.UncompressedSize64 > uint64(threshold) {
		return NewBoltBackend(opts.BoltPath)
	}
	return NewMemoryBackend(), nil
}

// lookup returns the encoded entry for a key.
func (f *Fetcher) lookup(key int) ([]byte, error) {
	if !f.open {
		return nil, fetchers.NewSourceError(key, "fetcher is closed", nil)
	}

	blob, err := f.backend.Get(key)
	if err != nil {
		return nil, fetchers.NewSourceError(key, "index backend failed", err)
	}
	if blob == nil {
		return nil, fetchers.NewInvalidStory(key, "story does not exist")
	}
	return blob, nil
}

// Validate confirms a key exists in the index.
func (f *Fetcher) Validate(key int) (int, error) {
	if _, err := f.lookup(key); err != nil {
		return 0, err
	}
	return key, nil
}

// FetchMeta returns a copy of the indexed meta for a key. The entry's
// own id must match the requested key; a mismatch means the index is
// corrupt, which is a source error rather than a missing story.
func (f *Fetcher) FetchMeta(key int) (story.Meta, error) {
	blob, err := f.lookup(key)
	if err != nil {
		return nil, err
	}

	meta, err := decodeEntry(blob)
	if err != nil {
		return nil, fetchers.NewSourceError(key, "index entry is corrupt", err)
	}

	id, ok := meta.Int("id")
	if !ok {
		return nil, fetchers.NewSourceError(key, "index entry is missing an id", nil)
	}
	if id != int64(key) {
		return nil, fetchers.NewSourceError(key, fmt.Sprintf("index entry id %d does not match key", id), nil)
	}

	if path, ok := meta.ArchivePath(); ok {
		f.paths[key] = path
	}

	return meta, nil
}

// FetchData reads the story payload from the container. The payload path
// comes from a per-key cache populated on the first meta read, so
// repeated payload lookups skip re-parsing the entry.
func (f *Fetcher) FetchData(key int) ([]byte, error) {
	path, ok := f.paths[key]
	if !ok {
		meta, err := f.FetchMeta(key)
		if err != nil {
			return nil, err
		}
		if path, ok = meta.ArchivePath(); !ok {
			return nil, fetchers.NewSourceError(key, "index is missing a path value", nil)
		}
	}

	file, ok := f.files[path]
	if !ok {
		return nil, fetchers.NewSourceError(key, fmt.Sprintf("archive is missing file %s", path), nil)
	}

	data, err := readZipFile(file)
	if err != nil {
		return nil, fetchers.NewSourceError(key, "archive is corrupt", err)
	}
	return data, nil
}

// Keys lists every story key in the index, ascending.
func (f *Fetcher) Keys() ([]int, error) {
	if !f.open {
		return nil, fetchers.NewSourceError(0, "fetcher is closed", nil)
	}
	return f.backend.Keys()
}

// Len returns the number of indexed stories.
func (f *Fetcher) Len() (int, error) {
	if !f.open {
		return 0, fetchers.NewSourceError(0, "fetcher is closed", nil)
	}
	return f.backend.Len()
}

// Prefetch keeps bulk iteration cheap: meta comes from the index, data
// stays in the container until asked for.
func (f *Fetcher) Prefetch() fetchers.Prefetch {
	return fetchers.Prefetch{Meta: true, Data: false}
}

// Flavors identifies stories served from an archive release.
func (f *Fetcher) Flavors() []story.Flavor {
	return []story.Flavor{
		story.SourceArchive,
		story.FormatEPUB,
		story.PurityClean,
	}
}

// Fetch builds a lazy story backed by this fetcher.
func (f *Fetcher) Fetch(key int) (*story.Story, error) {
	return fetchers.Fetch(f, key)
}

// Close releases the container and the index backend. Subsequent reads
// return a source error rather than stale data.
func (f *Fetcher) Close() error {
	f.open = false
	f.paths = nil

	var firstErr error
	if f.backend != nil {
		firstErr = f.backend.Close()
		f.backend = nil
	}
	if f.container != nil {
		if err := f.container.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		f.container = nil
	}
	return firstErr
}

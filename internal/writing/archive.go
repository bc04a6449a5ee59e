package writing

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jonathan/story-archiver/internal/story"
)

// Extra is an out-of-band file appended to a snapshot, such as a readme
// or changelog.
type Extra struct {
	Name string
	Data []byte
}

// ArchiveWriter streams a brand-new archive snapshot: one payload entry
// per story plus an incrementally written index, so the whole archive
// never sits in memory. Each key is written at most once, in ascending
// order, and the writer refuses to reuse an existing target path.
type ArchiveWriter struct {
	archiveFile *os.File
	archive     *zip.Writer
	indexFile   *os.File
	indexPath   string
	extras      []Extra

	paths   map[string]struct{}
	lastKey int
	started bool
	closed  bool
}

// NewArchiveWriter opens a snapshot at archivePath with its side-channel
// index at indexPath. Both paths must not already exist and the archive
// must use the .zip extension.
func NewArchiveWriter(archivePath, indexPath string, extras []Extra) (*ArchiveWriter, error) {
	if filepath.Ext(archivePath) != ".zip" {
		return nil, fmt.Errorf("archive path must end in .zip: %s", archivePath)
	}

	archiveFile, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create archive %s: %w", archivePath, err)
	}

	indexFile, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		_ = archiveFile.Close()
		return nil, fmt.Errorf("create index %s: %w", indexPath, err)
	}

	if _, err := indexFile.WriteString("{\n"); err != nil {
		_ = archiveFile.Close()
		_ = indexFile.Close()
		return nil, fmt.Errorf("start index stream: %w", err)
	}

	return &ArchiveWriter{
		archiveFile: archiveFile,
		archive:     zip.NewWriter(archiveFile),
		indexFile:   indexFile,
		indexPath:   indexPath,
		extras:      extras,
		paths:       make(map[string]struct{}),
		lastKey:     -1,
	}, nil
}

// Write appends one story to the snapshot. The story's key must match
// its meta id and exceed every previously written key; the payload path
// and data format are derived when the meta does not already carry them.
func (w *ArchiveWriter) Write(s *story.Story) error {
	if w.closed {
		return fmt.Errorf("archive writer is closed")
	}
	if s.Key <= w.lastKey {
		return fmt.Errorf("key %d out of order after %d", s.Key, w.lastKey)
	}

	sourceMeta, err := s.Meta()
	if err != nil {
		return err
	}
	id, ok := sourceMeta.Int("id")
	if !ok || id != int64(s.Key) {
		return fmt.Errorf("meta id %d does not match key %d", id, s.Key)
	}

	data, err := s.Data()
	if err != nil {
		return err
	}

	meta := sourceMeta.Clone()

	path, ok := meta.ArchivePath()
	if !ok {
		if path, err = SlugPath(s); err != nil {
			return err
		}
		meta.Archive()[story.PathKey] = path
	}
	if _, dup := w.paths[path]; dup {
		return fmt.Errorf("path already written: %s", path)
	}

	if _, tagged := s.Flavors["format"]; !tagged {
		s.Flavors.Apply(formatFor(path))
	}

	if err := w.writeIndexEntry(s.Key, meta); err != nil {
		return err
	}

	// Payloads are packaged documents and compress poorly; store them.
	entry, err := w.archive.CreateHeader(&zip.FileHeader{
		Name:   path,
		Method: zip.Store,
	})
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", path, err)
	}
	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", path, err)
	}

	w.paths[path] = struct{}{}
	w.lastKey = s.Key
	return nil
}

func formatFor(path string) story.DataFormat {
	switch filepath.Ext(path) {
	case ".fpub":
		return story.FormatFPUB
	case ".html":
		return story.FormatHTML
	case ".json":
		return story.FormatJSON
	default:
		return story.FormatEPUB
	}
}

// writeIndexEntry appends one line to the index stream: the quoted key,
// a compact JSON object, and a separating comma before each entry after
// the first.
func (w *ArchiveWriter) writeIndexEntry(key int, meta story.Meta) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal index entry %d: %w", key, err)
	}

	line := ""
	if w.started {
		line = ",\n"
	}
	line += strconv.Quote(strconv.Itoa(key)) + ": " + string(encoded)

	if _, err := w.indexFile.WriteString(line); err != nil {
		return fmt.Errorf("write index entry %d: %w", key, err)
	}

	w.started = true
	return nil
}

// Close finalizes the index stream, appends any extras, stores the
// index itself as a compressed entry, and closes both files. The writer
// is unusable afterwards.
func (w *ArchiveWriter) Close() error {
	if w.closed {
		return fmt.Errorf("archive writer is closed")
	}
	w.closed = true

	if _, err := w.indexFile.WriteString("\n}\n"); err != nil {
		return fmt.Errorf("finish index stream: %w", err)
	}

	for _, extra := range w.extras {
		entry, err := w.archive.CreateHeader(&zip.FileHeader{
			Name:   extra.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("create extra entry %s: %w", extra.Name, err)
		}
		if _, err := entry.Write(extra.Data); err != nil {
			return fmt.Errorf("write extra entry %s: %w", extra.Name, err)
		}
	}

	if err := w.packIndex(); err != nil {
		return err
	}

	if err := w.archive.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := w.archiveFile.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}
	return nil
}

// packIndex copies the finished index stream into the container as a
// deflated entry.
func (w *ArchiveWriter) packIndex() error {
	if _, err := w.indexFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind index: %w", err)
	}

	entry, err := w.archive.CreateHeader(&zip.FileHeader{
		Name:   "index.json",
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("create index entry: %w", err)
	}
	if _, err := io.Copy(entry, w.indexFile); err != nil {
		return fmt.Errorf("pack index: %w", err)
	}

	return w.indexFile.Close()
}

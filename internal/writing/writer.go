// Package writing persists stories, either as per-key files in a
// worktree or as a complete streamed archive snapshot.
package writing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jonathan/story-archiver/internal/story"
)

// Writer saves a story to somewhere.
type Writer interface {
	Write(s *story.Story) error
}

// PathMapper maps a story to a file path. An empty result disables that
// side of the write.
type PathMapper func(*story.Story) (string, error)

// StoryPath maps stories to dir/<key>.
func StoryPath(dir string) PathMapper {
	return func(s *story.Story) (string, error) {
		return filepath.Join(dir, strconv.Itoa(s.Key)), nil
	}
}

// DirectoryWriter writes story meta and data to the file system.
// Writing of either side is enabled by its mapper being non-nil.
type DirectoryWriter struct {
	metaPath  PathMapper
	dataPath  PathMapper
	overwrite bool
	makeDirs  bool
}

// NewDirectoryWriter returns a writer that refuses to overwrite
// existing files and creates parent directories as needed.
func NewDirectoryWriter(metaPath, dataPath PathMapper) *DirectoryWriter {
	return &DirectoryWriter{
		metaPath: metaPath,
		dataPath: dataPath,
		makeDirs: true,
	}
}

// checkTarget verifies the path may be written to, creating the parent
// directory if enabled.
func (w *DirectoryWriter) checkTarget(path string) error {
	if !w.overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("would overwrite: %s", path)
		}
	}

	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("parent is not a directory: %s", parent)
		}
		return nil
	case os.IsNotExist(err) && w.makeDirs:
		return os.MkdirAll(parent, 0o755)
	default:
		return err
	}
}

func (w *DirectoryWriter) writeFile(contents []byte, path string) error {
	if err := w.checkTarget(path); err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0o644)
}

// Write saves the story's meta as pretty-printed JSON and its data as
// raw bytes, to whichever paths are mapped.
func (w *DirectoryWriter) Write(s *story.Story) error {
	var metaPath, dataPath string
	var err error

	if w.metaPath != nil {
		if metaPath, err = w.metaPath(s); err != nil {
			return err
		}
	}
	if w.dataPath != nil {
		if dataPath, err = w.dataPath(s); err != nil {
			return err
		}
	}

	if metaPath != "" {
		meta, err := s.Meta()
		if err != nil {
			return err
		}
		contents, err := json.MarshalIndent(meta, "", "    ")
		if err != nil {
			return fmt.Errorf("marshal meta for key %d: %w", s.Key, err)
		}
		if err := w.writeFile(contents, metaPath); err != nil {
			return err
		}
	}

	if dataPath != "" {
		data, err := s.Data()
		if err != nil {
			return err
		}
		if err := w.writeFile(data, dataPath); err != nil {
			return err
		}
	}

	return nil
}

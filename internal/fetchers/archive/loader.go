package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/story-archiver/internal/story"
)

// Index lines can carry an entire story meta object, chapters included.
const maxLineBytes = 64 << 20

// initialLineBytes is the scanner's starting buffer size.
const initialLineBytes = 64 << 10

type rawEntry struct {
	key  int
	frag []byte
}

type encEntry struct {
	key  int
	blob []byte
}

// loadIndex streams index entries from r into the backend. Parsing and
// re-encoding are CPU-bound and independent per entry, so they run on a
// bounded worker pool; the backend is fed from a single goroutine.
func loadIndex(r io.Reader, backend Backend, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(context.Background())
	jobs := make(chan rawEntry, workers*2)
	results := make(chan encEntry, workers*2)

	g.Go(func() error {
		defer close(jobs)
		return scanEntries(ctx, r, jobs)
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return encodeEntries(ctx, jobs, results)
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		for entry := range results {
			if err := backend.Put(entry.key, entry.blob); err != nil {
				return err
			}
		}
		return backend.Flush()
	})

	return g.Wait()
}

// scanEntries reads the index line by line and emits key/fragment pairs.
func scanEntries(ctx context.Context, r io.Reader, jobs chan<- rawEntry) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialLineBytes), maxLineBytes)

	for scanner.Scan() {
		entry, ok, err := splitEntry(scanner.Bytes())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		select {
		case jobs <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	return nil
}

// encodeEntries parses fragments and re-encodes them for storage.
func encodeEntries(ctx context.Context, jobs <-chan rawEntry, results chan<- encEntry) error {
	for entry := range jobs {
		var meta map[string]any
		if err := json.Unmarshal(entry.frag, &meta); err != nil {
			return fmt.Errorf("index entry %d is not a valid object: %w", entry.key, err)
		}

		blob, err := encodeEntry(story.Meta(meta))
		if err != nil {
			return fmt.Errorf("encode index entry %d: %w", entry.key, err)
		}

		select {
		case results <- encEntry{key: entry.key, blob: blob}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// splitEntry turns one index line into a key and a JSON object fragment.
// Delimiter lines (the object braces, blank lines) are skipped. The
// fragment bytes are copied since the scanner reuses its buffer.
func splitEntry(line []byte) (rawEntry, bool, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return rawEntry{}, false, nil
	}
	if len(trimmed) == 1 && (trimmed[0] == '{' || trimmed[0] == '}') {
		return rawEntry{}, false, nil
	}

	colon := findUnescapedColon(trimmed)
	if colon < 0 {
		return rawEntry{}, false, fmt.Errorf("index line has no key separator: %q", clip(trimmed))
	}

	rawKey := bytes.Trim(bytes.TrimSpace(trimmed[:colon]), `"`)
	key, err := strconv.Atoi(string(rawKey))
	if err != nil {
		return rawEntry{}, false, fmt.Errorf("index key %q is not an integer", rawKey)
	}

	frag := bytes.TrimSpace(trimmed[colon+1:])
	frag = bytes.TrimSuffix(frag, []byte(","))
	frag = bytes.TrimSpace(frag)

	if len(frag) < 2 || frag[0] != '{' || frag[len(frag)-1] != '}' {
		return rawEntry{}, false, fmt.Errorf("index entry %d is not an object fragment", key)
	}

	out := make([]byte, len(frag))
	copy(out, frag)

	return rawEntry{key: key, frag: out}, true, nil
}

// findUnescapedColon returns the offset of the first ':' that sits
// outside a JSON string, or -1.
func findUnescapedColon(line []byte) int {
	inString := false
	escaped := false

	for i, c := range line {
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case c == ':' && !inString:
			return i
		}
	}
	return -1
}

func clip(b []byte) string {
	const max = 40
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

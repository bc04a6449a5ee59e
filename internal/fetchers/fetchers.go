// Package fetchers defines the source contract for producing stories,
// eagerly or lazily, and the shared fetch error taxonomy.
package fetchers

import (
	"github.com/jonathan/story-archiver/internal/story"
)

// Prefetch controls which story fields a fetch populates eagerly.
type Prefetch struct {
	Meta bool
	Data bool
}

// Source produces stories for integer keys. Implementations declare
// default prefetch behavior and a default flavor set for new stories.
type Source interface {
	// FetchMeta returns the story meta for a key.
	FetchMeta(key int) (story.Meta, error)

	// FetchData returns the story payload for a key.
	FetchData(key int) ([]byte, error)

	// Prefetch returns the source's default prefetch hints.
	Prefetch() Prefetch

	// Flavors returns the flavors applied to stories from this source.
	Flavors() []story.Flavor

	// Close releases any resources held by the source. A closed source
	// returns a source error from all fetches.
	Close() error
}

// Fetch builds a story from a source, populating fields according to the
// source's prefetch defaults.
func Fetch(src Source, key int) (*story.Story, error) {
	return FetchWith(src, key, src.Prefetch())
}

// FetchWith builds a story from a source with explicit prefetch flags,
// overriding the source's defaults.
func FetchWith(src Source, key int, pre Prefetch) (*story.Story, error) {
	var meta story.Meta
	var data []byte
	var err error

	if pre.Meta {
		meta, err = src.FetchMeta(key)
		if err != nil {
			return nil, err
		}
	}

	if pre.Data {
		data, err = src.FetchData(key)
		if err != nil {
			return nil, err
		}
	}

	return story.New(key, src, meta, data, src.Flavors()...)
}

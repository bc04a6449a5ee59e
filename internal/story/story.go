// Package story defines the archived unit of content: a keyed record with
// lazily populated meta and data, plus its classification flavors.
package story

import (
	"errors"
)

// ErrNoSource is returned when constructing a lazy story without a loader.
var ErrNoSource = errors.New("story must contain a loader if lazy")

// Loader populates story fields on demand. It is satisfied by every
// fetcher implementation.
type Loader interface {
	FetchMeta(key int) (Meta, error)
	FetchData(key int) ([]byte, error)
}

// Story represents a single archived story. Meta and data are replaced
// wholesale on update, never mutated through the story.
type Story struct {
	Key     int
	Flavors FlavorSet

	loader Loader
	meta   Meta
	data   []byte
}

// New constructs a story. A story must carry a loader, or both meta and
// data; anything less cannot be populated and is rejected.
func New(key int, loader Loader, meta Meta, data []byte, flavors ...Flavor) (*Story, error) {
	if loader == nil && (meta == nil || data == nil) {
		return nil, ErrNoSource
	}

	return &Story{
		Key:     key,
		Flavors: NewFlavorSet(flavors...),
		loader:  loader,
		meta:    meta,
		data:    data,
	}, nil
}

// HasMeta reports whether meta has been populated.
func (s *Story) HasMeta() bool {
	return s.meta != nil
}

// HasData reports whether data has been populated.
func (s *Story) HasData() bool {
	return s.data != nil
}

// IsFetched reports whether no more fetches are necessary.
func (s *Story) IsFetched() bool {
	return s.HasMeta() && s.HasData()
}

// Meta returns the story meta, fetching it from the loader on first
// access. A successful fetch is cached and the loader is not consulted
// again.
func (s *Story) Meta() (Meta, error) {
	if s.meta == nil {
		meta, err := s.loader.FetchMeta(s.Key)
		if err != nil {
			return nil, err
		}
		s.meta = meta
	}
	return s.meta, nil
}

// Data returns the story data, fetching it from the loader on first
// access. A successful fetch is cached and the loader is not consulted
// again.
func (s *Story) Data() ([]byte, error) {
	if s.data == nil {
		data, err := s.loader.FetchData(s.Key)
		if err != nil {
			return nil, err
		}
		s.data = data
	}
	return s.data, nil
}

// Overrides selects fields to replace when merging. Nil fields keep the
// current value.
type Overrides struct {
	Key     *int
	Loader  Loader
	Meta    Meta
	Data    []byte
	Flavors FlavorSet
}

// Merge returns a shallow copy of the story with the given overrides
// applied. The copy always gets its own flavor set.
func (s *Story) Merge(o Overrides) *Story {
	out := &Story{
		Key:     s.Key,
		Flavors: s.Flavors.Clone(),
		loader:  s.loader,
		meta:    s.meta,
		data:    s.data,
	}

	if o.Key != nil {
		out.Key = *o.Key
	}
	if o.Loader != nil {
		out.loader = o.Loader
	}
	if o.Meta != nil {
		out.meta = o.Meta
	}
	if o.Data != nil {
		out.data = o.Data
	}
	if o.Flavors != nil {
		out.Flavors = o.Flavors.Clone()
	}

	return out
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/story-archiver/internal/story"
)

// Blacklist holds author and story opt-outs. Blacklisted stories are
// left out of built archives but never deleted from the worktree, so an
// opt-out can be reversed.
type Blacklist struct {
	Stories []int `yaml:"stories"`
	Authors []int `yaml:"authors"`

	stories map[int]struct{}
	authors map[int]struct{}
}

// LoadBlacklist reads an opt-out list from a YAML file. An empty path
// yields an empty blacklist.
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := &Blacklist{}
	if path == "" {
		bl.index()
		return bl, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, bl); err != nil {
		return nil, fmt.Errorf("failed to parse blacklist YAML: %w", err)
	}

	bl.index()
	return bl, nil
}

func (bl *Blacklist) index() {
	bl.stories = make(map[int]struct{}, len(bl.Stories))
	for _, key := range bl.Stories {
		bl.stories[key] = struct{}{}
	}
	bl.authors = make(map[int]struct{}, len(bl.Authors))
	for _, id := range bl.Authors {
		bl.authors[id] = struct{}{}
	}
}

// Len returns the number of listed stories and authors.
func (bl *Blacklist) Len() int {
	return len(bl.stories) + len(bl.authors)
}

// ExcludesKey reports whether the story key itself is listed.
func (bl *Blacklist) ExcludesKey(key int) bool {
	_, ok := bl.stories[key]
	return ok
}

// Excludes reports whether a story is opted out, either by its own key
// or by its author's id.
func (bl *Blacklist) Excludes(s *story.Story) (bool, error) {
	if bl.ExcludesKey(s.Key) {
		return true, nil
	}
	if len(bl.authors) == 0 {
		return false, nil
	}

	meta, err := s.Meta()
	if err != nil {
		return false, err
	}
	author, ok := meta.Sub("author")
	if !ok {
		return false, nil
	}
	id, ok := author.Int("id")
	if !ok {
		return false, nil
	}
	_, listed := bl.authors[int(id)]
	return listed, nil
}

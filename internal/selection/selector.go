// Package selection decides how a story should evolve between an old
// archive snapshot and a fresh fetch. It is the only component that
// assigns update statuses.
package selection

import (
	"fmt"

	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/story"
)

// DateMapper derives the freshness value used to compare story
// versions. The bool is false when the story carries no timestamp.
type DateMapper func(*story.Story) (int64, bool, error)

// LatestModified is the default date mapper: the most recent
// modification timestamp of the story or any of its chapters.
func LatestModified(s *story.Story) (int64, bool, error) {
	meta, err := s.Meta()
	if err != nil {
		return 0, false, err
	}
	latest, ok := story.LatestModified(meta)
	return latest, ok, nil
}

// Selector picks one of the two supplied stories, or neither.
type Selector interface {
	// Select returns the story to keep and its update status. A nil
	// story means neither side survived filtering.
	Select(old, new *story.Story) (*story.Story, story.UpdateStatus, error)
}

// UpdateSelector selects the new story if it needs to be updated. The
// returned story carries an update status flavor. Data is not fetched
// from new stories unless they have changed.
type UpdateSelector struct {
	dates   DateMapper
	refetch bool
}

// NewUpdateSelector returns a selector using the given date mapper, or
// LatestModified when nil.
func NewUpdateSelector(dates DateMapper) *UpdateSelector {
	if dates == nil {
		dates = LatestModified
	}
	return &UpdateSelector{dates: dates}
}

// NewRefetchSelector returns a selector that always prefers the new
// story when one is available, skipping the freshness comparison.
func NewRefetchSelector(dates DateMapper) *UpdateSelector {
	s := NewUpdateSelector(dates)
	s.refetch = true
	return s
}

// filterEmpty treats a story with no recorded chapters as absent.
func (sel *UpdateSelector) filterEmpty(s *story.Story) (*story.Story, error) {
	if s == nil {
		return nil, nil
	}

	meta, err := s.Meta()
	if err != nil {
		if fetchers.IsInvalidStory(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(meta.Chapters()) == 0 {
		return nil, nil
	}
	return s, nil
}

// filterInvalid treats a story whose meta or data cannot be fetched as
// absent. This covers content that became inaccessible, such as
// password-protected stories.
func (sel *UpdateSelector) filterInvalid(s *story.Story) (*story.Story, error) {
	if _, err := s.Meta(); err != nil {
		if fetchers.IsInvalidStory(err) {
			return nil, nil
		}
		return nil, err
	}
	if _, err := s.Data(); err != nil {
		if fetchers.IsInvalidStory(err) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// filterUnchanged keeps the new story only if it is strictly newer than
// the old one. In refetch mode the new story always survives.
func (sel *UpdateSelector) filterUnchanged(old, new *story.Story) (*story.Story, error) {
	if sel.refetch {
		return new, nil
	}

	oldDate, ok, err := sel.dates(old)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("missing old date for key %d", old.Key)
	}

	newDate, ok, err := sel.dates(new)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("missing new date for key %d", new.Key)
	}

	if oldDate < newDate {
		return new, nil
	}
	return nil, nil
}

func flavored(s *story.Story, status story.UpdateStatus) (*story.Story, story.UpdateStatus, error) {
	s.Flavors.Apply(status)
	return s, status, nil
}

// Select classifies the old/new pair. An unchanged but reachable new
// story revives the old record; a new story that vanished entirely
// marks the old record deleted.
func (sel *UpdateSelector) Select(old, new *story.Story) (*story.Story, story.UpdateStatus, error) {
	old, err := sel.filterEmpty(old)
	if err != nil {
		return nil, 0, err
	}
	new, err = sel.filterEmpty(new)
	if err != nil {
		return nil, 0, err
	}

	deleted := old != nil && new == nil

	if old != nil {
		if old, err = sel.filterInvalid(old); err != nil {
			return nil, 0, err
		}
	}

	if old != nil && new != nil {
		if new, err = sel.filterUnchanged(old, new); err != nil {
			return nil, 0, err
		}
	}

	if new != nil {
		if new, err = sel.filterInvalid(new); err != nil {
			return nil, 0, err
		}
		deleted = old != nil && new == nil
	}

	switch {
	case old == nil && new != nil:
		return flavored(new, story.StatusCreated)
	case old != nil && new == nil && !deleted:
		return flavored(old, story.StatusRevived)
	case old != nil && new != nil:
		return flavored(new, story.StatusUpdated)
	case old != nil && new == nil && deleted:
		return flavored(old, story.StatusDeleted)
	default:
		return nil, 0, nil
	}
}

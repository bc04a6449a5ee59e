// Package stamping adds archive bookkeeping fields to stories.
package stamping

import (
	"time"

	"github.com/jonathan/story-archiver/internal/story"
)

// Clock supplies the current time, injectable for tests.
type Clock func() time.Time

// UpdateStamper refreshes archive bookkeeping according to a story's
// update status. Each timestamp is written only for the statuses that
// logically imply it; existing values outside those are left alone.
type UpdateStamper struct {
	clock Clock
}

// NewUpdateStamper returns a stamper using the given clock, or
// time.Now when nil.
func NewUpdateStamper(clock Clock) *UpdateStamper {
	if clock == nil {
		clock = time.Now
	}
	return &UpdateStamper{clock: clock}
}

// fields maps each update status to the bookkeeping fields it implies.
// date_checked is always refreshed regardless of status.
var fields = map[story.UpdateStatus][]string{
	story.StatusCreated: {story.DateCreated, story.DateFetched, story.DateUpdated},
	story.StatusUpdated: {story.DateFetched, story.DateUpdated},
	story.StatusRevived: {story.DateFetched},
	story.StatusDeleted: {},
}

// Stamp applies the bookkeeping stamp to the story's meta.
func (st *UpdateStamper) Stamp(s *story.Story) error {
	meta, err := s.Meta()
	if err != nil {
		return err
	}

	now := st.clock().UTC().Format(time.RFC3339)
	archive := meta.Archive()
	archive[story.DateChecked] = now

	for _, flavor := range s.Flavors {
		status, ok := flavor.(story.UpdateStatus)
		if !ok {
			continue
		}
		for _, field := range fields[status] {
			archive[field] = now
		}
	}

	return nil
}

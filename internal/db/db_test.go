package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/story-archiver/internal/story"
	"github.com/jonathan/story-archiver/internal/updating"
)

var _ updating.Observer = (*RunObserver)(nil)

func TestRunType(t *testing.T) {
	run := Run{
		ID:       uuid.New(),
		Workdir:  "worktree/update",
		StartKey: 300,
		Status:   "running",
	}

	assert.Equal(t, "worktree/update", run.Workdir)
	assert.Equal(t, 300, run.StartKey)
	assert.Equal(t, "running", run.Status)
	assert.Nil(t, run.CompletedAt)
}

func TestNewRunObserver_Defaults(t *testing.T) {
	o := NewRunObserver(nil, uuid.New(), nil)
	assert.Equal(t, 10*time.Second, o.Timeout)
	assert.NotNil(t, o.log)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "selected", outcomeOf(nil))

	s, err := story.New(1, nil, story.Meta{"id": 1}, []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "selected", outcomeOf(s))

	s.Flavors.Apply(story.StatusCreated)
	assert.Equal(t, "created", outcomeOf(s))

	s.Flavors.Apply(story.StatusDeleted)
	assert.Equal(t, "deleted", outcomeOf(s))
}

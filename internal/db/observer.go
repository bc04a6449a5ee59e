package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/story-archiver/internal/story"
)

// RunObserver records update task outcomes against a run. Recording is
// best effort; a database hiccup must not fail the update itself.
type RunObserver struct {
	db    *DB
	runID uuid.UUID
	log   logrus.FieldLogger

	// Timeout bounds each insert. Defaults to 10 seconds.
	Timeout time.Duration
}

// NewRunObserver returns an observer recording outcomes for runID.
func NewRunObserver(db *DB, runID uuid.UUID, log logrus.FieldLogger) *RunObserver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RunObserver{db: db, runID: runID, log: log, Timeout: 10 * time.Second}
}

func (o *RunObserver) record(key int, outcome, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()

	if err := o.db.RecordOutcome(ctx, o.runID, key, outcome, detail); err != nil {
		o.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Warn("failed to record story outcome")
	}
}

func (o *RunObserver) OnAttempt(key, skipped, retried int) {}

func (o *RunObserver) OnSuccess(key int, s *story.Story) {
	o.record(key, outcomeOf(s), "")
}

// outcomeOf derives the stored outcome from the story's status flavor.
func outcomeOf(s *story.Story) string {
	if s != nil {
		if flavor, ok := s.Flavors["status"]; ok {
			return flavor.String()
		}
	}
	return "selected"
}

func (o *RunObserver) OnSkipped(key int, s *story.Story) {
	o.record(key, "skipped", "")
}

func (o *RunObserver) OnFailure(key int, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	o.record(key, "failed", detail)
}

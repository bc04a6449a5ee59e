package updating

import (
	"github.com/sirupsen/logrus"

	"github.com/jonathan/story-archiver/internal/story"
)

// Observer receives task progress events. Calls are synchronous and
// happen on the task's own goroutine; implementations must not block
// for long.
type Observer interface {
	OnAttempt(key, skipped, retried int)
	OnSuccess(key int, s *story.Story)
	OnSkipped(key int, s *story.Story)
	OnFailure(key int, err error)
}

// NopObserver ignores all events. It is the default when no observer is
// configured.
type NopObserver struct{}

func (NopObserver) OnAttempt(int, int, int) {}

func (NopObserver) OnSuccess(int, *story.Story) {}

func (NopObserver) OnSkipped(int, *story.Story) {}

func (NopObserver) OnFailure(int, error) {}

// MultiObserver fans each event out to every member in order.
type MultiObserver []Observer

func (m MultiObserver) OnAttempt(key, skipped, retried int) {
	for _, o := range m {
		o.OnAttempt(key, skipped, retried)
	}
}

func (m MultiObserver) OnSuccess(key int, s *story.Story) {
	for _, o := range m {
		o.OnSuccess(key, s)
	}
}

func (m MultiObserver) OnSkipped(key int, s *story.Story) {
	for _, o := range m {
		o.OnSkipped(key, s)
	}
}

func (m MultiObserver) OnFailure(key int, err error) {
	for _, o := range m {
		o.OnFailure(key, err)
	}
}

// LogObserver emits structured log lines for every task event.
type LogObserver struct {
	Log logrus.FieldLogger
}

// NewLogObserver returns an observer logging through the given logger,
// or the standard logger when nil.
func NewLogObserver(log logrus.FieldLogger) *LogObserver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogObserver{Log: log}
}

func (o *LogObserver) OnAttempt(key, skipped, retried int) {
	o.Log.WithFields(logrus.Fields{
		"key":     key,
		"skipped": skipped,
		"retried": retried,
	}).Debug("attempting story")
}

func (o *LogObserver) OnSuccess(key int, s *story.Story) {
	o.Log.WithFields(logrus.Fields{
		"key":    key,
		"status": statusOf(s),
	}).Info("story selected")
}

func (o *LogObserver) OnSkipped(key int, s *story.Story) {
	o.Log.WithField("key", key).Debug("story skipped")
}

func (o *LogObserver) OnFailure(key int, err error) {
	o.Log.WithFields(logrus.Fields{
		"key":   key,
		"error": err,
	}).Warn("story update failed")
}

// CountingObserver tallies outcomes for an end-of-run summary.
type CountingObserver struct {
	Selected int
	Skipped  int
	Failed   int
}

func (c *CountingObserver) OnAttempt(key, skipped, retried int) {}

func (c *CountingObserver) OnSuccess(key int, s *story.Story) {
	c.Selected++
}

func (c *CountingObserver) OnSkipped(key int, s *story.Story) {
	c.Skipped++
}

func (c *CountingObserver) OnFailure(key int, err error) {
	c.Failed++
}

func statusOf(s *story.Story) string {
	if s == nil {
		return ""
	}
	if flavor, ok := s.Flavors["status"]; ok {
		return flavor.String()
	}
	return ""
}

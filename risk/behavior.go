package risk

import (
	"time"

	"fimon/logger"
)

// BehaviorModel scores how unusual it is for a path to change.
type BehaviorModel interface {
	Score(path string, now time.Time) float64
}

// ConstantBehavior returns the same score for every path. It is used when
// no change history is kept.
type ConstantBehavior float64

func (c ConstantBehavior) Score(string, time.Time) float64 {
	return clip(float64(c))
}

// HistorySource is the read side of the change history.
type HistorySource interface {
	ChangeCount(path string, since time.Time) (int, error)
	CycleCount(since time.Time) (int, error)
}

// HistoryBehavior derives the score from how often the path changed in the
// recent window: paths that rarely change score high, paths that churn every
// cycle score low. A zero window consults the whole history.
type HistoryBehavior struct {
	source   HistorySource
	window   time.Duration
	fallback float64
}

func NewHistoryBehavior(source HistorySource, window time.Duration, fallback float64) *HistoryBehavior {
	return &HistoryBehavior{source: source, window: window, fallback: clip(fallback)}
}

func (h *HistoryBehavior) Score(path string, now time.Time) float64 {
	if h == nil || h.source == nil {
		return 0.5
	}
	var since time.Time
	if h.window > 0 {
		since = now.Add(-h.window)
	}
	cycles, err := h.source.CycleCount(since)
	if err != nil {
		logger.Debugf("Change history unavailable: %v", err)
		return h.fallback
	}
	if cycles == 0 {
		return h.fallback
	}
	changes, err := h.source.ChangeCount(path, since)
	if err != nil {
		logger.Debugf("Change history unavailable for %s: %v", path, err)
		return h.fallback
	}
	return clip(1 - float64(changes)/float64(cycles))
}

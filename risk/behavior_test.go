package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeHistory struct {
	cycles  int
	changes map[string]int
	err     error
}

func (f fakeHistory) ChangeCount(path string, since time.Time) (int, error) {
	return f.changes[path], f.err
}

func (f fakeHistory) CycleCount(since time.Time) (int, error) {
	return f.cycles, f.err
}

func TestConstantBehaviorClipped(t *testing.T) {
	assert.Equal(t, 0.5, ConstantBehavior(0.5).Score("/x", time.Now()))
	assert.Equal(t, 1.0, ConstantBehavior(3).Score("/x", time.Now()))
	assert.Equal(t, 0.0, ConstantBehavior(-1).Score("/x", time.Now()))
}

func TestHistoryBehavior(t *testing.T) {
	src := fakeHistory{cycles: 10, changes: map[string]int{"/var/log/app.log": 10, "/etc/hosts": 1}}
	h := NewHistoryBehavior(src, 24*time.Hour, 0.5)

	assert.InDelta(t, 0.0, h.Score("/var/log/app.log", weekdayNoon), 1e-9)
	assert.InDelta(t, 0.9, h.Score("/etc/hosts", weekdayNoon), 1e-9)
	assert.InDelta(t, 1.0, h.Score("/usr/bin/ls", weekdayNoon), 1e-9)
}

func TestHistoryBehaviorFallback(t *testing.T) {
	assert.Equal(t, 0.4, NewHistoryBehavior(fakeHistory{}, time.Hour, 0.4).Score("/x", weekdayNoon))
	assert.Equal(t, 0.4, NewHistoryBehavior(fakeHistory{cycles: 3, err: errors.New("locked")}, time.Hour, 0.4).Score("/x", weekdayNoon))
}

func TestBehaviorPlugsIntoScorer(t *testing.T) {
	src := fakeHistory{cycles: 4, changes: map[string]int{"/srv/app/cache.db": 4}}
	s := newScorer(WithBehavior(NewHistoryBehavior(src, time.Hour, 0.5)))
	a := s.Score(Change{Path: "/srv/app/cache.db", Type: "modified"})
	assert.Equal(t, 0.0, a.Factors.Behavior)
}

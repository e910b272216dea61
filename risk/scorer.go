package risk

import (
	"time"

	"fimon/config"
	"fimon/fuzzy"
	"fimon/snapshot"
	"fimon/utils"
)

// RuleScorer combines five table-driven sub-scores with convex weights.
type RuleScorer struct {
	cfg       config.RiskConfig
	weights   config.Weights
	locations *locationTable
	behavior  BehaviorModel
	fuzzy     fuzzy.Hasher
	now       func() time.Time
}

type Option func(*RuleScorer)

// WithBehavior replaces the constant behavior score.
func WithBehavior(model BehaviorModel) Option {
	return func(s *RuleScorer) {
		if model != nil {
			s.behavior = model
		}
	}
}

// WithClock fixes the time used for the temporal factor.
func WithClock(now func() time.Time) Option {
	return func(s *RuleScorer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRuleScorer builds a scorer from validated risk configuration.
func NewRuleScorer(cfg config.RiskConfig, opts ...Option) *RuleScorer {
	s := &RuleScorer{
		cfg:       cfg,
		weights:   cfg.Weights.Normalized(),
		locations: newLocationTable(cfg.Locations, cfg.DefaultLocation),
		behavior:  ConstantBehavior(cfg.Behavior.Default),
		now:       time.Now,
	}
	if h, ok := fuzzy.Lookup(fuzzy.Default); ok {
		s.fuzzy = h
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RuleScorer) Score(change Change) Assessment {
	now := s.now()
	rec := change.Record()
	mime := ""
	if rec != nil {
		mime = rec.MimeType
	}

	location, category := s.locations.lookup(change.Path)
	f := Factors{
		FileType:        fileTypeScore(s.cfg, change.Path, mime),
		Location:        clip(location),
		Temporal:        s.temporal(now),
		ChangeMagnitude: s.magnitude(change, location),
		Behavior:        clip(s.behavior.Score(change.Path, now)),
	}
	w := s.weights
	score := clip(f.FileType*w.FileType +
		f.Location*w.Location +
		f.Temporal*w.Temporal +
		f.ChangeMagnitude*w.ChangeMagnitude +
		f.Behavior*w.Behavior)

	return Assessment{
		Path:       change.Path,
		ChangeType: change.Type,
		Score:      score,
		Level:      s.level(score),
		HighRisk:   score >= s.cfg.Threshold,
		Category:   category,
		Factors:    f,
	}
}

func (s *RuleScorer) level(score float64) Level {
	switch {
	case score >= s.cfg.CriticalLevel:
		return Critical
	case score >= s.cfg.Threshold:
		return High
	case score >= s.cfg.MediumLevel:
		return Medium
	default:
		return Low
	}
}

// temporal rates changes outside business hours and on weekends higher.
// Business hours are inclusive at both ends.
func (s *RuleScorer) temporal(now time.Time) float64 {
	t := s.cfg.Temporal
	score := t.Base
	hour := now.Hour()
	if hour < t.BusinessHourStart || hour > t.BusinessHourEnd {
		score += t.AfterHours
	}
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		score += t.Weekend
	}
	return clip(score)
}

func (s *RuleScorer) magnitude(change Change, location float64) float64 {
	m := s.cfg.Magnitude
	switch change.Type {
	case snapshot.Deleted:
		return clip(m.Deleted)
	case snapshot.Created:
		if location >= m.SensitiveLocation {
			return clip(m.NewSensitive)
		}
		return clip(m.New)
	default:
		return clip(m.Modified + (m.Deleted-m.Modified)*s.rewriteRatio(change))
	}
}

// rewriteRatio estimates how much of the content changed from the fuzzy
// digests on both sides. A complete rewrite moves a modification halfway
// towards a deletion.
func (s *RuleScorer) rewriteRatio(change Change) float64 {
	if s.fuzzy == nil || change.Current == nil || change.Baseline == nil {
		return 0
	}
	return fuzzy.Divergence(s.fuzzy, change.Baseline.FuzzyHash, change.Current.FuzzyHash, s.cfg.Magnitude.FuzzyMaxDistance) / 2
}

// Assess scores every path of a change set. Keys are the relative paths
// used in the change set; assessed paths are made absolute against root.
func Assess(s Scorer, root string, cs snapshot.ChangeSet, baseline, current *snapshot.Snapshot) map[string]Assessment {
	out := make(map[string]Assessment, cs.Total())
	cs.Each(func(rel string, kind snapshot.ChangeType) {
		change := Change{Path: utils.AbsolutePath(root, rel), Type: kind}
		if rec, ok := current.Get(rel); ok {
			change.Current = &rec
		}
		if rec, ok := baseline.Get(rel); ok {
			change.Baseline = &rec
		}
		out[rel] = s.Score(change)
	})
	return out
}

// HighRiskPaths returns the set of relative paths flagged high risk.
func HighRiskPaths(assessments map[string]Assessment) map[string]bool {
	out := make(map[string]bool)
	for rel, a := range assessments {
		if a.HighRisk {
			out[rel] = true
		}
	}
	return out
}

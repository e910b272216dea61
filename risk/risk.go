package risk

import (
	"fimon/snapshot"
)

// Level buckets a score for display and filtering.
type Level string

const (
	Low      Level = "low"
	Medium   Level = "medium"
	High     Level = "high"
	Critical Level = "critical"
)

// Change is the unit being scored. Path is the absolute path of the file;
// Current and Baseline are nil when the file is absent on that side.
type Change struct {
	Path     string
	Type     snapshot.ChangeType
	Current  *snapshot.FileRecord
	Baseline *snapshot.FileRecord
}

// Record returns the most recent fingerprint available for the change.
func (c Change) Record() *snapshot.FileRecord {
	if c.Current != nil {
		return c.Current
	}
	return c.Baseline
}

// Factors are the five sub-scores, each in [0,1].
type Factors struct {
	FileType        float64 `json:"file_type"`
	Location        float64 `json:"location"`
	Temporal        float64 `json:"temporal"`
	ChangeMagnitude float64 `json:"change_magnitude"`
	Behavior        float64 `json:"behavior"`
}

// Assessment is the scored result for one change.
type Assessment struct {
	Path       string              `json:"path"`
	ChangeType snapshot.ChangeType `json:"change_type"`
	Score      float64             `json:"score"`
	Level      Level               `json:"level"`
	HighRisk   bool                `json:"high_risk"`
	Category   string              `json:"location_category,omitempty"`
	Factors    Factors             `json:"factors"`
}

// Scorer assigns a risk assessment to a change. The rule-based scorer is the
// only implementation; a learned model would satisfy the same interface.
type Scorer interface {
	Score(change Change) Assessment
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

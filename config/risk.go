package config

import (
	"fmt"
	"strings"
)

// Weights are the convex combination applied to the five risk factors.
type Weights struct {
	FileType        float64 `json:"file_type" toml:"file_type" yaml:"file_type"`
	Location        float64 `json:"location" toml:"location" yaml:"location"`
	Temporal        float64 `json:"temporal" toml:"temporal" yaml:"temporal"`
	ChangeMagnitude float64 `json:"change_magnitude" toml:"change_magnitude" yaml:"change_magnitude"`
	Behavior        float64 `json:"behavior" toml:"behavior" yaml:"behavior"`
}

// Sum is the total weight.
func (w Weights) Sum() float64 {
	return w.FileType + w.Location + w.Temporal + w.ChangeMagnitude + w.Behavior
}

// Normalized scales the weights so they sum to one.
func (w Weights) Normalized() Weights {
	sum := w.Sum()
	if sum <= 0 {
		return w
	}
	return Weights{
		FileType:        w.FileType / sum,
		Location:        w.Location / sum,
		Temporal:        w.Temporal / sum,
		ChangeMagnitude: w.ChangeMagnitude / sum,
		Behavior:        w.Behavior / sum,
	}
}

// LocationCategory groups path fragments that share a location risk.
type LocationCategory struct {
	Name     string   `json:"name" toml:"name" yaml:"name"`
	Patterns []string `json:"patterns" toml:"patterns" yaml:"patterns"`
	Score    float64  `json:"score" toml:"score" yaml:"score"`
}

type MagnitudeScores struct {
	Modified     float64 `json:"modified" toml:"modified" yaml:"modified"`
	Deleted      float64 `json:"deleted" toml:"deleted" yaml:"deleted"`
	New          float64 `json:"new" toml:"new" yaml:"new"`
	NewSensitive float64 `json:"new_sensitive" toml:"new_sensitive" yaml:"new_sensitive"`
	// SensitiveLocation is the location score at or above which a new file
	// counts as planted in a sensitive place.
	SensitiveLocation float64 `json:"sensitive_location" toml:"sensitive_location" yaml:"sensitive_location"`
	// FuzzyMaxDistance is the TLSH distance treated as a full rewrite.
	FuzzyMaxDistance int `json:"fuzzy_max_distance" toml:"fuzzy_max_distance" yaml:"fuzzy_max_distance"`
}

type TemporalScores struct {
	Base              float64 `json:"base" toml:"base" yaml:"base"`
	AfterHours        float64 `json:"after_hours" toml:"after_hours" yaml:"after_hours"`
	Weekend           float64 `json:"weekend" toml:"weekend" yaml:"weekend"`
	BusinessHourStart int     `json:"business_hour_start" toml:"business_hour_start" yaml:"business_hour_start"`
	BusinessHourEnd   int     `json:"business_hour_end" toml:"business_hour_end" yaml:"business_hour_end"`
}

type BehaviorScores struct {
	// Default is used when no history is available.
	Default float64 `json:"default" toml:"default" yaml:"default"`
	// WindowDays bounds how far back change history is consulted.
	WindowDays int `json:"window_days" toml:"window_days" yaml:"window_days"`
}

// RiskConfig holds every table and constant used by rule-based scoring.
type RiskConfig struct {
	Threshold       float64            `json:"threshold" toml:"threshold" yaml:"threshold"`
	CriticalLevel   float64            `json:"critical_level" toml:"critical_level" yaml:"critical_level"`
	MediumLevel     float64            `json:"medium_level" toml:"medium_level" yaml:"medium_level"`
	Weights         Weights            `json:"weights" toml:"weights" yaml:"weights"`
	Extensions      map[string]float64 `json:"extensions" toml:"extensions" yaml:"extensions"`
	SensitiveNames  map[string]float64 `json:"sensitive_names" toml:"sensitive_names" yaml:"sensitive_names"`
	MimeTypes       map[string]float64 `json:"mime_types" toml:"mime_types" yaml:"mime_types"`
	DefaultFileType float64            `json:"default_file_type" toml:"default_file_type" yaml:"default_file_type"`
	Locations       []LocationCategory `json:"locations" toml:"locations" yaml:"locations"`
	DefaultLocation float64            `json:"default_location" toml:"default_location" yaml:"default_location"`
	Temporal        TemporalScores     `json:"temporal" toml:"temporal" yaml:"temporal"`
	Magnitude       MagnitudeScores    `json:"magnitude" toml:"magnitude" yaml:"magnitude"`
	Behavior        BehaviorScores     `json:"behavior" toml:"behavior" yaml:"behavior"`
}

// DefaultRisk returns the built-in scoring tables.
func DefaultRisk() RiskConfig {
	extensions := map[string]float64{}
	for score, exts := range map[float64][]string{
		0.9: {".exe", ".dll", ".so", ".sys", ".ko", ".elf", ".bin", ".dylib", ".msi", ".scr"},
		0.8: {".sh", ".bash", ".zsh", ".ps1", ".bat", ".cmd", ".vbs", ".py", ".pl", ".rb", ".php", ".js", ".jar"},
		0.7: {".conf", ".cfg", ".ini", ".yaml", ".yml", ".toml", ".json", ".xml", ".service", ".rules", ".plist"},
		0.6: {".db", ".sqlite", ".csv", ".dat", ".key", ".pem", ".crt"},
		0.3: {".log", ".txt", ".md"},
	} {
		for _, ext := range exts {
			extensions[ext] = score
		}
	}
	sensitive := map[string]float64{}
	for _, name := range []string{
		"passwd", "shadow", "group", "gshadow", "sudoers", "hosts", "crontab",
		"authorized_keys", "known_hosts", "id_rsa", "id_ed25519", ".bashrc", ".profile",
	} {
		sensitive[name] = 0.95
	}
	return RiskConfig{
		Threshold:     0.7,
		CriticalLevel: 0.9,
		MediumLevel:   0.4,
		Weights: Weights{
			FileType:        0.25,
			Location:        0.20,
			Temporal:        0.15,
			ChangeMagnitude: 0.20,
			Behavior:        0.20,
		},
		Extensions:     extensions,
		SensitiveNames: sensitive,
		MimeTypes: map[string]float64{
			"application/x-executable":                     0.9,
			"application/x-elf":                            0.9,
			"application/vnd.microsoft.portable-executable": 0.9,
			"application/x-mach-binary":                    0.9,
			"application/x-sh":                             0.8,
		},
		DefaultFileType: 0.2,
		Locations: []LocationCategory{
			{Name: "system_binaries", Score: 0.95, Patterns: []string{"/bin/", "/sbin/", "/usr/bin/", "/usr/sbin/", "/usr/local/bin/", "/usr/local/sbin/"}},
			{Name: "system_config", Score: 0.9, Patterns: []string{"/etc/"}},
			{Name: "boot", Score: 0.9, Patterns: []string{"/boot/"}},
			{Name: "system_libraries", Score: 0.85, Patterns: []string{"/lib/", "/lib64/", "/usr/lib/"}},
			{Name: "credentials", Score: 0.85, Patterns: []string{"/.ssh/", "/.gnupg/", "/.aws/"}},
			{Name: "services", Score: 0.6, Patterns: []string{"/var/www/", "/srv/", "/opt/"}},
			{Name: "logs", Score: 0.3, Patterns: []string{"/var/log/"}},
			{Name: "temporary", Score: 0.2, Patterns: []string{"/tmp/", "/var/tmp/"}},
		},
		DefaultLocation: 0.1,
		Temporal: TemporalScores{
			Base:              0.3,
			AfterHours:        0.3,
			Weekend:           0.2,
			BusinessHourStart: 9,
			BusinessHourEnd:   17,
		},
		Magnitude: MagnitudeScores{
			Modified:          0.5,
			Deleted:           0.8,
			New:               0.3,
			NewSensitive:      1.0,
			SensitiveLocation: 0.8,
			FuzzyMaxDistance:  300,
		},
		Behavior: BehaviorScores{
			Default:    0.5,
			WindowDays: 30,
		},
	}
}

func (r *RiskConfig) normalize() {
	lowered := make(map[string]float64, len(r.Extensions))
	for ext, score := range r.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		lowered[ext] = score
	}
	r.Extensions = lowered
	if r.SensitiveNames == nil {
		r.SensitiveNames = map[string]float64{}
	}
	if r.MimeTypes == nil {
		r.MimeTypes = map[string]float64{}
	}
	if r.Behavior.WindowDays <= 0 {
		r.Behavior.WindowDays = 30
	}
}

func (r *RiskConfig) validate() error {
	w := r.Weights
	for name, v := range map[string]float64{
		"file_type": w.FileType, "location": w.Location, "temporal": w.Temporal,
		"change_magnitude": w.ChangeMagnitude, "behavior": w.Behavior,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be zero or positive", name)
		}
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	if r.Threshold < 0 || r.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1")
	}
	if r.MediumLevel > r.Threshold || r.Threshold > r.CriticalLevel {
		return fmt.Errorf("levels must satisfy medium_level <= threshold <= critical_level")
	}
	for _, loc := range r.Locations {
		if strings.TrimSpace(loc.Name) == "" {
			return fmt.Errorf("location category without a name")
		}
		if len(loc.Patterns) == 0 {
			return fmt.Errorf("location category %s has no patterns", loc.Name)
		}
	}
	t := r.Temporal
	if t.BusinessHourStart < 0 || t.BusinessHourEnd > 24 || t.BusinessHourStart > t.BusinessHourEnd {
		return fmt.Errorf("business hours must satisfy 0 <= start <= end <= 24")
	}
	if r.Magnitude.FuzzyMaxDistance < 0 {
		return fmt.Errorf("fuzzy_max_distance must be zero or positive")
	}
	return nil
}

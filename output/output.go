package output

import (
	"fmt"
	"sync"
	"time"

	"fimon/config"
	"fimon/logger"
	"fimon/risk"
	"fimon/snapshot"
	"fimon/utils"

	"github.com/spf13/afero"
)

const SchemaVersion = "1.0.0"

// Report is the persisted result of the latest cycle. The three path arrays
// are always present; the remaining fields are informational.
type Report struct {
	Modified      []string `json:"modified"`
	New           []string `json:"new"`
	Deleted       []string `json:"deleted"`
	GeneratedAt   string   `json:"generated_at,omitempty"`
	Root          string   `json:"root,omitempty"`
	Host          string   `json:"host,omitempty"`
	SchemaVersion string   `json:"schema_version,omitempty"`
}

// ChangeSet returns the report's path sets.
func (r Report) ChangeSet() snapshot.ChangeSet {
	return snapshot.ChangeSet{Modified: r.Modified, New: r.New, Deleted: r.Deleted}
}

// CycleMetrics summarizes one monitoring cycle for logs and export.
type CycleMetrics struct {
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	FilesScanned int    `json:"files_scanned"`
	Excluded     int    `json:"excluded"`
	Failed       int    `json:"failed"`
	Modified     int    `json:"modified"`
	New          int    `json:"new"`
	Deleted      int    `json:"deleted"`
	HighRisk     int    `json:"high_risk"`
}

// Writer persists reports atomically and optionally exports cycle records
// over OTLP.
type Writer struct {
	fs             afero.Fs
	reportPath     string
	riskReportPath string
	host           string

	mu   sync.Mutex
	otel *otelExporter
}

// New creates a writer for the report paths in cfg. OTLP export problems
// are logged and leave export disabled.
func New(fs afero.Fs, cfg *config.Config, host string) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	w := &Writer{fs: fs, host: host}
	if cfg != nil {
		w.reportPath = cfg.ReportFile
		w.riskReportPath = cfg.RiskReportFile
		otel, err := newOtelExporter(cfg.Otel)
		if err != nil {
			logger.Warnf("OTEL export disabled: %v", err)
		} else if otel != nil {
			logger.Infof("Exporting cycle records to %s", otel.Endpoint())
			w.otel = otel
		}
	}
	return w
}

// SetPaths updates the report destinations after a configuration reload.
func (w *Writer) SetPaths(reportPath, riskReportPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reportPath = reportPath
	w.riskReportPath = riskReportPath
}

// WriteReport replaces the report file with the given change set.
func (w *Writer) WriteReport(root string, cs snapshot.ChangeSet, at time.Time) error {
	w.mu.Lock()
	path := w.reportPath
	w.mu.Unlock()

	report := Report{
		Modified:      nonNil(cs.Modified),
		New:           nonNil(cs.New),
		Deleted:       nonNil(cs.Deleted),
		GeneratedAt:   at.UTC().Format(time.RFC3339),
		Root:          root,
		Host:          w.host,
		SchemaVersion: SchemaVersion,
	}
	data, err := jsonMarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := utils.WriteFileAtomic(w.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteRiskReport replaces the risk report file. It is a no-op when no risk
// report path is configured.
func (w *Writer) WriteRiskReport(assessments map[string]risk.Assessment) error {
	w.mu.Lock()
	path := w.riskReportPath
	w.mu.Unlock()
	if path == "" {
		return nil
	}
	if assessments == nil {
		assessments = map[string]risk.Assessment{}
	}
	data, err := jsonMarshalIndent(assessments, "", "  ")
	if err != nil {
		return fmt.Errorf("encode risk report: %w", err)
	}
	if err := utils.WriteFileAtomic(w.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write risk report: %w", err)
	}
	return nil
}

// EmitCycle exports the cycle metrics and one record per changed path.
func (w *Writer) EmitCycle(metrics CycleMetrics, cs snapshot.ChangeSet, assessments map[string]risk.Assessment) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.otel == nil {
		return
	}
	w.otel.EmitCycle(metrics)
	cs.Each(func(path string, kind snapshot.ChangeType) {
		rec := changeRecord{Path: path, ChangeType: string(kind), Host: w.host}
		if a, ok := assessments[path]; ok {
			rec.Score = a.Score
			rec.Level = string(a.Level)
			rec.HighRisk = a.HighRisk
			rec.Category = a.Category
		}
		w.otel.EmitChange(rec)
	})
}

func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.otel != nil {
		w.otel.Shutdown()
		w.otel = nil
	}
}

// changeRecord is one changed path as exported over OTLP. Risk fields are
// empty when the cycle was not scored.
type changeRecord struct {
	Path       string
	ChangeType string
	Host       string
	Score      float64
	Level      string
	HighRisk   bool
	Category   string
}

// ReadReport loads the report at path. A missing or undecodable file reads
// as an empty report so consumers never fail on a torn or absent file.
func ReadReport(fs afero.Fs, path string) Report {
	empty := Report{Modified: []string{}, New: []string{}, Deleted: []string{}}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return empty
	}
	var r Report
	if err := jsonUnmarshal(data, &r); err != nil {
		logger.Debugf("Ignoring unreadable report %s: %v", path, err)
		return empty
	}
	r.Modified = nonNil(r.Modified)
	r.New = nonNil(r.New)
	r.Deleted = nonNil(r.Deleted)
	return r
}

func nonNil(paths []string) []string {
	if paths == nil {
		return []string{}
	}
	return paths
}

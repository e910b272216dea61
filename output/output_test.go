package output

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"fimon/config"
	"fimon/logger"
	"fimon/risk"
	"fimon/snapshot"

	"github.com/spf13/afero"
)

func init() {
	logger.Init("error")
}

func newTestWriter(fs afero.Fs) *Writer {
	cfg := config.Default()
	cfg.ReportFile = "/data/report.json"
	cfg.RiskReportFile = "/data/risk.json"
	return New(fs, cfg, "host-a")
}

func TestWriteReportRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(fs)
	defer w.Close()

	cs := snapshot.ChangeSet{Modified: []string{"a.txt"}, New: []string{"b.txt"}}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := w.WriteReport("/srv", cs, at); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := ReadReport(fs, "/data/report.json")
	if !reflect.DeepEqual(r.Modified, []string{"a.txt"}) || !reflect.DeepEqual(r.New, []string{"b.txt"}) {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Deleted == nil || len(r.Deleted) != 0 {
		t.Fatalf("deleted should be an empty array, got %#v", r.Deleted)
	}
	if r.Root != "/srv" || r.Host != "host-a" || r.SchemaVersion != SchemaVersion {
		t.Fatalf("unexpected report metadata %+v", r)
	}
	if r.GeneratedAt != "2025-03-01T12:00:00Z" {
		t.Fatalf("generated_at = %q", r.GeneratedAt)
	}
}

func TestWriteReportEmptyArrays(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(fs)
	if err := w.WriteReport("/srv", snapshot.ChangeSet{}, time.Now()); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := afero.ReadFile(fs, "/data/report.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"modified", "new", "deleted"} {
		arr, ok := raw[key].([]interface{})
		if !ok || len(arr) != 0 {
			t.Fatalf("%s should be an empty array, got %#v", key, raw[key])
		}
	}
}

func TestWriteReportReplacesPrevious(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(fs)
	w.WriteReport("/srv", snapshot.ChangeSet{Deleted: []string{"x", "y"}}, time.Now())
	w.WriteReport("/srv", snapshot.ChangeSet{}, time.Now())
	if r := ReadReport(fs, "/data/report.json"); r.ChangeSet().Total() != 0 {
		t.Fatalf("report should reflect only the latest cycle: %+v", r)
	}
}

func TestReadReportMissingOrCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := ReadReport(fs, "/absent.json")
	if r.Modified == nil || r.New == nil || r.Deleted == nil || r.ChangeSet().Total() != 0 {
		t.Fatalf("missing report should read as empty, got %+v", r)
	}

	afero.WriteFile(fs, "/torn.json", []byte(`{"modified": ["a"`), 0o644)
	r = ReadReport(fs, "/torn.json")
	if r.ChangeSet().Total() != 0 {
		t.Fatalf("corrupt report should read as empty, got %+v", r)
	}
}

func TestWriteRiskReport(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(fs)
	assessments := map[string]risk.Assessment{
		"etc/passwd": {Path: "/etc/passwd", ChangeType: snapshot.Deleted, Score: 0.7225, Level: risk.High, HighRisk: true},
	}
	if err := w.WriteRiskReport(assessments); err != nil {
		t.Fatalf("write risk: %v", err)
	}
	data, err := afero.ReadFile(fs, "/data/risk.json")
	if err != nil {
		t.Fatalf("read risk: %v", err)
	}
	var decoded map[string]risk.Assessment
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode risk: %v", err)
	}
	if got := decoded["etc/passwd"]; !got.HighRisk || got.Level != risk.High {
		t.Fatalf("unexpected risk entry %+v", got)
	}

	w.SetPaths("/data/report.json", "")
	fs.Remove("/data/risk.json")
	if err := w.WriteRiskReport(assessments); err != nil {
		t.Fatalf("disabled risk report should not fail: %v", err)
	}
	if ok, _ := afero.Exists(fs, "/data/risk.json"); ok {
		t.Fatal("risk report written although disabled")
	}
}

func TestEmitCycleWithoutExporter(t *testing.T) {
	w := newTestWriter(afero.NewMemMapFs())
	w.EmitCycle(CycleMetrics{Modified: 1}, snapshot.ChangeSet{Modified: []string{"a"}}, nil)
	w.Close()
	w.Close()
}

func TestNewRejectsSchemelessEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Otel.Endpoint = "collector:4318"
	w := New(afero.NewMemMapFs(), cfg, "h")
	if w.otel != nil {
		t.Fatal("schemeless endpoint should leave export disabled")
	}
}

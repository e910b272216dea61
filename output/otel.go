package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fimon/config"
	"fimon/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// otelExporter ships cycle summaries and per-path change records as OTLP
// log records. Full paths leave the host only when exportPaths is set;
// otherwise records carry the base name.
type otelExporter struct {
	provider    *sdklog.LoggerProvider
	logger      otelLog.Logger
	timeout     time.Duration
	endpoint    string
	exportPaths bool
}

// newOtelExporter returns nil when no endpoint is configured.
func newOtelExporter(cfg config.OtelConfig) (*otelExporter, error) {
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint %q must include scheme (http or https)", endpoint)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
	}
	if timeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(timeout))
	}
	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "fimon"
	}
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	return &otelExporter{
		provider:    provider,
		logger:      provider.Logger("fimon"),
		timeout:     timeout,
		endpoint:    endpoint,
		exportPaths: cfg.ExportPaths,
	}, nil
}

// resolveOtelEndpoint prefers the configured endpoint and falls back to the
// standard OTLP environment variables when from_env is set.
func resolveOtelEndpoint(cfg config.OtelConfig) string {
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.FromEnv {
		return ""
	}
	for _, key := range []string{"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		if endpoint := strings.TrimSpace(os.Getenv(key)); endpoint != "" {
			return endpoint
		}
	}
	return ""
}

func (o *otelExporter) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *otelExporter) EmitCycle(m CycleMetrics) {
	if o == nil {
		return
	}
	attrs := cycleAttributes(m)
	o.emit("cycle", attrs, otelLog.MapValue(attrs...))
}

func (o *otelExporter) EmitChange(rec changeRecord) {
	if o == nil {
		return
	}
	attrs := changeAttributes(rec, o.exportPaths)
	o.emit("change", attrs, otelLog.MapValue(attrs...))
}

func (o *otelExporter) emit(recordType string, attrs []otelLog.KeyValue, body otelLog.Value) {
	if o.logger == nil {
		return
	}
	now := time.Now()
	var record otelLog.Record
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("fimon." + recordType)
	record.SetSeverity(severityFor(recordType, attrs))
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	record.AddAttributes(attrs...)
	record.SetBody(body)
	o.logger.Emit(context.Background(), record)
}

// severityFor raises high risk changes to WARN so they stand out in a log
// backend without parsing attributes.
func severityFor(recordType string, attrs []otelLog.KeyValue) otelLog.Severity {
	if recordType != "change" {
		return otelLog.SeverityInfo
	}
	for _, kv := range attrs {
		if kv.Key == "fimon.change.high_risk" && kv.Value.AsBool() {
			return otelLog.SeverityWarn
		}
	}
	return otelLog.SeverityInfo
}

func (o *otelExporter) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

func changeAttributes(rec changeRecord, exportPaths bool) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	if rec.Path != "" {
		if exportPaths {
			kvs = append(kvs, otelLog.String(string(semconv.FilePathKey), rec.Path))
		}
		native := filepath.FromSlash(rec.Path)
		kvs = appendString(kvs, string(semconv.FileNameKey), filepath.Base(native))
		kvs = appendString(kvs, string(semconv.FileExtensionKey), strings.TrimPrefix(filepath.Ext(native), "."))
	}
	kvs = appendString(kvs, "fimon.change.type", rec.ChangeType)
	kvs = appendString(kvs, "fimon.change.level", rec.Level)
	kvs = appendString(kvs, "fimon.change.location_category", rec.Category)
	if rec.Level != "" {
		kvs = append(kvs,
			otelLog.Float64("fimon.change.score", rec.Score),
			otelLog.Bool("fimon.change.high_risk", rec.HighRisk),
		)
	}
	return appendString(kvs, string(semconv.HostNameKey), rec.Host)
}

func cycleAttributes(m CycleMetrics) []otelLog.KeyValue {
	kvs := appendString(nil, "fimon.cycle.start_time", m.StartTime)
	kvs = appendString(kvs, "fimon.cycle.end_time", m.EndTime)
	return append(kvs,
		otelLog.Int("fimon.cycle.files_scanned", m.FilesScanned),
		otelLog.Int("fimon.cycle.excluded", m.Excluded),
		otelLog.Int("fimon.cycle.failed", m.Failed),
		otelLog.Int("fimon.cycle.modified", m.Modified),
		otelLog.Int("fimon.cycle.new", m.New),
		otelLog.Int("fimon.cycle.deleted", m.Deleted),
		otelLog.Int("fimon.cycle.high_risk", m.HighRisk),
	)
}

func appendString(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}

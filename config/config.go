package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fimon/hasher"
	"fimon/utils"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the full monitor configuration. Values are passed explicitly to
// each component; the monitor loop re-reads the live subset every cycle.
type Config struct {
	RootDir           string      `json:"root_dir" toml:"root_dir" yaml:"root_dir"`
	BaselineFile      string      `json:"baseline_file" toml:"baseline_file" yaml:"baseline_file"`
	ReportFile        string      `json:"report_file" toml:"report_file" yaml:"report_file"`
	RiskReportFile    string      `json:"risk_report_file" toml:"risk_report_file" yaml:"risk_report_file"`
	ExcludePatterns   []string    `json:"exclude_patterns" toml:"exclude_patterns" yaml:"exclude_patterns"`
	ScanInterval      int         `json:"scan_interval" toml:"scan_interval" yaml:"scan_interval"`
	HashAlgorithm     string      `json:"hash_algorithm" toml:"hash_algorithm" yaml:"hash_algorithm"`
	FuzzyHash         bool        `json:"fuzzy_hash" toml:"fuzzy_hash" yaml:"fuzzy_hash"`
	MaxIOPerSecond    int         `json:"max_io_per_second" toml:"max_io_per_second" yaml:"max_io_per_second"`
	LogLevel          string      `json:"log_level" toml:"log_level" yaml:"log_level"`
	BeepOnChange      bool        `json:"beep_on_change" toml:"beep_on_change" yaml:"beep_on_change"`
	EmailAlert        bool        `json:"email_alert" toml:"email_alert" yaml:"email_alert"`
	AlertCriticalOnly bool        `json:"alert_critical_only" toml:"alert_critical_only" yaml:"alert_critical_only"`
	RiskScoring       bool        `json:"risk_scoring" toml:"risk_scoring" yaml:"risk_scoring"`
	HistoryDB         string      `json:"history_db" toml:"history_db" yaml:"history_db"`
	SoundFile         string      `json:"sound_file" toml:"sound_file" yaml:"sound_file"`
	SoundPlayer       string      `json:"sound_player" toml:"sound_player" yaml:"sound_player"`
	RenotifyOnEnable  bool        `json:"renotify_on_enable" toml:"renotify_on_enable" yaml:"renotify_on_enable"`
	Email             EmailConfig `json:"email" toml:"email" yaml:"email"`
	Risk              RiskConfig  `json:"risk" toml:"risk" yaml:"risk"`
	Otel              OtelConfig  `json:"otel" toml:"otel" yaml:"otel"`
	Diag              DiagConfig  `json:"diag" toml:"diag" yaml:"diag"`
}

type EmailConfig struct {
	Sender         string `json:"sender" toml:"sender" yaml:"sender"`
	Receiver       string `json:"receiver" toml:"receiver" yaml:"receiver"`
	Subject        string `json:"subject" toml:"subject" yaml:"subject"`
	Password       string `json:"password" toml:"password" yaml:"password"`
	SMTPServer     string `json:"smtp_server" toml:"smtp_server" yaml:"smtp_server"`
	SMTPPort       int    `json:"smtp_port" toml:"smtp_port" yaml:"smtp_port"`
	UseTLS         bool   `json:"use_tls" toml:"use_tls" yaml:"use_tls"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Configured reports whether enough is set to attempt delivery.
func (e EmailConfig) Configured() bool {
	return e.Sender != "" && e.Receiver != "" && e.Password != "" && e.SMTPServer != ""
}

type OtelConfig struct {
	Endpoint       string            `json:"endpoint" toml:"endpoint" yaml:"endpoint"`
	FromEnv        bool              `json:"from_env" toml:"from_env" yaml:"from_env"`
	Headers        map[string]string `json:"headers" toml:"headers" yaml:"headers"`
	ServiceName    string            `json:"service_name" toml:"service_name" yaml:"service_name"`
	TimeoutSeconds int               `json:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds"`
	ExportPaths    bool              `json:"export_paths" toml:"export_paths" yaml:"export_paths"`
}

type DiagConfig struct {
	// SlowCycleSeconds enables the stall watchdog when positive.
	SlowCycleSeconds int    `json:"slow_cycle_seconds" toml:"slow_cycle_seconds" yaml:"slow_cycle_seconds"`
	Dir              string `json:"dir" toml:"dir" yaml:"dir"`
	GoroutineLeak    bool   `json:"goroutine_leak" toml:"goroutine_leak" yaml:"goroutine_leak"`
	// FlightRecorder keeps a rolling execution trace that is dumped with
	// each stall event.
	FlightRecorder bool `json:"flight_recorder" toml:"flight_recorder" yaml:"flight_recorder"`
	// TraceFile records a full execution trace in binaries built with the
	// trace tag.
	TraceFile string `json:"trace_file" toml:"trace_file" yaml:"trace_file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		RootDir:         ".",
		BaselineFile:    filepath.Join("data", "baseline.json"),
		ReportFile:      filepath.Join("data", "report.json"),
		ExcludePatterns: []string{},
		ScanInterval:    10,
		HashAlgorithm:   hasher.DefaultAlgorithm,
		MaxIOPerSecond:  0,
		LogLevel:        "info",
		RiskScoring:     true,
		SoundPlayer:     "aplay",
		Email: EmailConfig{
			Subject:        "FIM Alert",
			SMTPServer:     "smtp.gmail.com",
			SMTPPort:       587,
			UseTLS:         true,
			TimeoutSeconds: 10,
		},
		Risk: DefaultRisk(),
		Otel: OtelConfig{
			Headers:        map[string]string{},
			ServiceName:    "fimon",
			TimeoutSeconds: 5,
		},
		Diag: DiagConfig{Dir: "."},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults; the format follows the file extension.
func Load(path string) (*Config, error) {
	return (&Loader{path: path}).load()
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("invalid TOML config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
	}
	return nil
}

// ApplyEnvOverrides lets the mail settings come from the environment so that
// credentials stay out of the config file.
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("EMAIL_SENDER"); v != "" {
		cfg.Email.Sender = v
	}
	if v := os.Getenv("EMAIL_RECEIVER"); v != "" {
		cfg.Email.Receiver = v
	}
	if v := os.Getenv("EMAIL_SUBJECT"); v != "" {
		cfg.Email.Subject = v
	}
	if v := os.Getenv("EMAIL_PASSWORD"); v != "" {
		cfg.Email.Password = v
	}
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		cfg.Email.SMTPServer = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Email.SMTPPort = port
		}
	}
	if v := os.Getenv("USE_TLS"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Email.UseTLS = b
		}
	}
}

func (cfg *Config) normalize() {
	cfg.HashAlgorithm = strings.ToLower(strings.TrimSpace(cfg.HashAlgorithm))
	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = hasher.DefaultAlgorithm
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ExcludePatterns == nil {
		cfg.ExcludePatterns = []string{}
	}
	if strings.TrimSpace(cfg.SoundPlayer) == "" {
		cfg.SoundPlayer = "aplay"
	}
	if cfg.Email.TimeoutSeconds <= 0 {
		cfg.Email.TimeoutSeconds = 10
	}
	if cfg.Otel.Headers == nil {
		cfg.Otel.Headers = map[string]string{}
	}
	if strings.TrimSpace(cfg.Otel.ServiceName) == "" {
		cfg.Otel.ServiceName = "fimon"
	}
	if strings.TrimSpace(cfg.Diag.Dir) == "" {
		cfg.Diag.Dir = "."
	}
	cfg.Otel.Endpoint = strings.TrimSpace(cfg.Otel.Endpoint)
	cfg.Risk.normalize()
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.RootDir) == "" {
		return fmt.Errorf("root_dir must be set")
	}
	if strings.TrimSpace(cfg.BaselineFile) == "" {
		return fmt.Errorf("baseline_file must be set")
	}
	if strings.TrimSpace(cfg.ReportFile) == "" {
		return fmt.Errorf("report_file must be set")
	}
	if cfg.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive")
	}
	if !hasher.Supported(cfg.HashAlgorithm) {
		return fmt.Errorf("invalid hash_algorithm: %s", cfg.HashAlgorithm)
	}
	if err := utils.ValidatePatterns(cfg.ExcludePatterns); err != nil {
		return err
	}
	if cfg.MaxIOPerSecond < 0 {
		return fmt.Errorf("max_io_per_second must be zero or positive")
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.Email.SMTPPort < 0 || cfg.Email.SMTPPort > 65535 {
		return fmt.Errorf("invalid smtp_port: %d", cfg.Email.SMTPPort)
	}
	if cfg.Otel.TimeoutSeconds < 0 {
		return fmt.Errorf("otel timeout_seconds must be zero or positive")
	}
	if cfg.Otel.Endpoint != "" {
		if !strings.HasPrefix(cfg.Otel.Endpoint, "http://") && !strings.HasPrefix(cfg.Otel.Endpoint, "https://") {
			return fmt.Errorf("otel endpoint must include scheme (http or https)")
		}
	}
	if cfg.Diag.SlowCycleSeconds < 0 {
		return fmt.Errorf("diag slow_cycle_seconds must be zero or positive")
	}
	if err := cfg.Risk.validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	return nil
}

// Validate normalizes and checks a configuration built in code.
func (cfg *Config) Validate() error {
	cfg.normalize()
	return cfg.validate()
}

// Marshal renders the configuration as indented JSON.
func (cfg *Config) Marshal() ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

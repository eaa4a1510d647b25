package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hylla/opportune/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Backend names the repository implementation behind the service.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

var validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}

type Config struct {
	Database  DatabaseConfig        `toml:"database"`
	Logging   LoggingConfig         `toml:"logging"`
	Server    ServerConfig          `toml:"server"`
	Lifecycle LifecycleConfig       `toml:"lifecycle"`
	Matching  domain.MatchingPolicy `toml:"matching"`
	Telemetry TelemetryConfig       `toml:"telemetry"`
	UI        UIConfig              `toml:"ui"`
	Skills    []SkillConfig         `toml:"skills"`
}

type DatabaseConfig struct {
	Backend Backend `toml:"backend"`
	Path    string  `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file sink used in dev mode.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	HTTPBind        string `toml:"http_bind"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	EnableMCP       bool   `toml:"enable_mcp"`
}

// LifecycleConfig holds dashboard thresholds and attachment limits. Durations use
// time.ParseDuration syntax, e.g. "168h".
type LifecycleConfig struct {
	StaleDraftAfter        string   `toml:"stale_draft_after"`
	AwaitingSelectionAfter string   `toml:"awaiting_selection_after"`
	ReactivationWarning    string   `toml:"reactivation_warning"`
	RecentLimit            int      `toml:"recent_limit"`
	MaxAttachmentBytes     int64    `toml:"max_attachment_bytes"`
	AllowedContentTypes    []string `toml:"allowed_content_types"`
}

type TelemetryConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
}

type UIConfig struct {
	Locale      string   `toml:"locale"`
	Currency    string   `toml:"currency"`
	Columns     []string `toml:"columns"`
	ShowRevenue bool     `toml:"show_revenue"`
}

// SkillConfig is one entry of the static skills catalog.
type SkillConfig struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Inactive bool   `toml:"inactive"`
}

// Env holds the environment overrides read at startup.
type Env struct {
	ConfigPath   string `env:"OPPORTUNE_CONFIG"`
	DBPath       string `env:"OPPORTUNE_DB_PATH"`
	LogLevel     string `env:"OPPORTUNE_LOG_LEVEL"`
	HTTPBind     string `env:"OPPORTUNE_HTTP_BIND"`
	OTelEndpoint string `env:"OPPORTUNE_OTEL_ENDPOINT"`
	DevMode      *bool  `env:"OPPORTUNE_DEV_MODE"`
	AppName      string `env:"OPPORTUNE_APP_NAME"`
}

func Default(dbPath string) Config {
	statuses := domain.Statuses()
	columns := make([]string, 0, len(statuses))
	for _, s := range statuses {
		columns = append(columns, string(s))
	}
	return Config{
		Database: DatabaseConfig{
			Backend: BackendSQLite,
			Path:    dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".opportune/log",
			},
		},
		Server: ServerConfig{
			HTTPBind:        "127.0.0.1:8080",
			ShutdownTimeout: "10s",
			EnableMCP:       true,
		},
		Lifecycle: LifecycleConfig{
			StaleDraftAfter:        "168h",
			AwaitingSelectionAfter: "72h",
			ReactivationWarning:    "168h",
			RecentLimit:            5,
			MaxAttachmentBytes:     20 << 20,
			AllowedContentTypes: []string{
				"application/pdf",
				"image/png",
				"image/jpeg",
				"text/plain",
				"text/markdown",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"application/vnd.openxmlformats-officedocument.presentationml.presentation",
			},
		},
		Matching: domain.DefaultMatchingPolicy(),
		Telemetry: TelemetryConfig{
			ServiceName: "opportune",
			SampleRatio: 1,
		},
		UI: UIConfig{
			Locale:      "en-US",
			Currency:    "USD",
			Columns:     columns,
			ShowRevenue: true,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadEnv reads OPPORTUNE_* overrides from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	e.ConfigPath = strings.TrimSpace(e.ConfigPath)
	e.DBPath = strings.TrimSpace(e.DBPath)
	e.LogLevel = strings.ToLower(strings.TrimSpace(e.LogLevel))
	e.HTTPBind = strings.TrimSpace(e.HTTPBind)
	e.OTelEndpoint = strings.TrimSpace(e.OTelEndpoint)
	e.AppName = strings.TrimSpace(e.AppName)
	return e, nil
}

// ApplyEnv overlays non-empty environment values onto c and revalidates.
func (c Config) ApplyEnv(e Env) (Config, error) {
	if e.DBPath != "" {
		c.Database.Path = e.DBPath
	}
	if e.LogLevel != "" {
		c.Logging.Level = e.LogLevel
	}
	if e.HTTPBind != "" {
		c.Server.HTTPBind = e.HTTPBind
	}
	if e.OTelEndpoint != "" {
		c.Telemetry.Endpoint = e.OTelEndpoint
		c.Telemetry.Enabled = true
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid database.backend: %q", c.Database.Backend)
	}

	if !slices.Contains(validLogLevels, strings.ToLower(strings.TrimSpace(c.Logging.Level))) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	if _, err := positiveDuration("server.shutdown_timeout", c.Server.ShutdownTimeout); err != nil {
		return err
	}

	for key, raw := range map[string]string{
		"lifecycle.stale_draft_after":        c.Lifecycle.StaleDraftAfter,
		"lifecycle.awaiting_selection_after": c.Lifecycle.AwaitingSelectionAfter,
		"lifecycle.reactivation_warning":     c.Lifecycle.ReactivationWarning,
	} {
		if _, err := positiveDuration(key, raw); err != nil {
			return err
		}
	}
	if c.Lifecycle.RecentLimit <= 0 {
		return errors.New("lifecycle.recent_limit must be greater than zero")
	}
	if c.Lifecycle.MaxAttachmentBytes <= 0 {
		return errors.New("lifecycle.max_attachment_bytes must be greater than zero")
	}

	m := c.Matching
	if m.BaseScore < 0 || m.MaxScore <= 0 {
		return errors.New("matching scores must be positive")
	}
	if m.BaseScore > m.MaxScore || m.HighPriorityScore > m.MaxScore || m.CriticalPriorityScore > m.MaxScore {
		return fmt.Errorf("matching scores must not exceed max_score %.0f", m.MaxScore)
	}
	if m.ComplexSkillCount < 0 || m.HighValueRevenue < 0 {
		return errors.New("matching thresholds must not be negative")
	}

	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1], got %v", c.Telemetry.SampleRatio)
	}

	if _, err := language.Parse(c.UI.Locale); err != nil {
		return fmt.Errorf("invalid ui.locale %q: %w", c.UI.Locale, err)
	}
	if _, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(c.UI.Currency))); err != nil {
		return fmt.Errorf("invalid ui.currency %q: %w", c.UI.Currency, err)
	}
	if len(c.UI.Columns) == 0 {
		return errors.New("ui.columns must not be empty")
	}
	seenColumns := map[domain.Status]struct{}{}
	for _, raw := range c.UI.Columns {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status in ui.columns: %q", raw)
		}
		if _, dup := seenColumns[status]; dup {
			return fmt.Errorf("duplicate status in ui.columns: %q", raw)
		}
		seenColumns[status] = struct{}{}
	}

	seenSkills := map[string]struct{}{}
	for i, s := range c.Skills {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return fmt.Errorf("skills[%d].id is required", i)
		}
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("skills[%d].name is required", i)
		}
		if _, ok := domain.ParseSkillType(s.Type); !ok {
			return fmt.Errorf("skills[%d].type %q is not one of technical, soft, industry, language", i, s.Type)
		}
		if _, dup := seenSkills[id]; dup {
			return fmt.Errorf("duplicate skill id %q", id)
		}
		seenSkills[id] = struct{}{}
	}

	return nil
}

// ShutdownTimeout returns the parsed server shutdown timeout.
func (c Config) ShutdownTimeout() time.Duration {
	d, _ := positiveDuration("", c.Server.ShutdownTimeout)
	return d
}

// Thresholds returns the parsed lifecycle durations. Invalid values come back as zero,
// which callers treat as "use the default".
func (l LifecycleConfig) Thresholds() (staleDraft, awaitingSelection, reactivationWarning time.Duration) {
	staleDraft, _ = positiveDuration("", l.StaleDraftAfter)
	awaitingSelection, _ = positiveDuration("", l.AwaitingSelectionAfter)
	reactivationWarning, _ = positiveDuration("", l.ReactivationWarning)
	return staleDraft, awaitingSelection, reactivationWarning
}

// StatusColumns returns the configured board columns as statuses.
func (u UIConfig) StatusColumns() []domain.Status {
	out := make([]domain.Status, 0, len(u.Columns))
	for _, raw := range u.Columns {
		if status, ok := domain.ParseStatus(raw); ok {
			out = append(out, status)
		}
	}
	return out
}

func positiveDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return d, nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

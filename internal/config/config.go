package config

import "time"

// Config is the root configuration for bizclaw.
type Config struct {
	ERP       ERPConfig        `json:"erp"`
	Server    ServerConfig     `json:"server"`
	Skills    SkillsConfig     `json:"skills"`
	Tools     ToolsConfig      `json:"tools"`
	Events    EventsConfig     `json:"events"`
	History   HistoryConfig    `json:"history"`
	Schedules []ScheduleConfig `json:"schedules"`
}

// ERPConfig holds the ERPNext connection settings.
type ERPConfig struct {
	URL             string   `json:"url"`        // default: $ERPNEXT_URL or http://localhost:8001
	APIKey          string   `json:"api_key"`    // default: $API_KEY
	APISecret       string   `json:"api_secret"` // default: $API_SECRET, may be ENC[age:...]
	Timeout         Duration `json:"timeout,omitempty"`
	MaxRetries      int      `json:"max_retries,omitempty"`
	RetryBaseDelay  Duration `json:"retry_base_delay,omitempty"`
	RateLimit       float64  `json:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	BulkConcurrency int      `json:"bulk_concurrency,omitempty"`
}

// ServerConfig holds the MCP/HTTP server settings.
type ServerConfig struct {
	Name        string   `json:"name"`
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	Transport   string   `json:"transport"`    // "stdio" or "http"
	DefaultUser string   `json:"default_user"` // acting user when none is supplied
	UserHeader  string   `json:"user_header"`  // HTTP header carrying the acting user
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// SkillsConfig configures the skill system.
type SkillsConfig struct {
	Dirs     []string `json:"dirs"`     // skill directories (default: [$BIZCLAW_PATH/skills])
	Patterns []string `json:"patterns"` // doublestar patterns relative to each dir
	Enabled  []string `json:"enabled"`  // enabled skill names (empty = all)
	Watch    bool     `json:"watch"`    // reload on file changes
}

// ToolsConfig configures the tool catalog.
type ToolsConfig struct {
	Dir      string   `json:"dir"`       // endpoint manifest directory (default: $BIZCLAW_PATH/tools)
	ReadOnly bool     `json:"read_only"` // reject tools that write to the ERP
	Disabled []string `json:"disabled,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogDir     string `json:"log_dir,omitempty"` // JSONL event logs per run (empty = disabled)
}

// HistoryConfig configures the skill run history database.
type HistoryConfig struct {
	Path     string `json:"path"` // default: $BIZCLAW_PATH/history.db
	Disabled bool   `json:"disabled"`
}

// ScheduleConfig triggers a skill on a cron expression, a fixed interval or a
// bus event. At least one trigger is required.
type ScheduleConfig struct {
	Name     string         `json:"name"`
	Cron     string         `json:"cron,omitempty"`
	Interval Duration       `json:"interval,omitempty"`
	OnEvent  *EventTrigger  `json:"on_event,omitempty"`
	Cooldown Duration       `json:"cooldown,omitempty"` // minimum gap between runs (default 60s)
	Skill    string         `json:"skill"`
	Context  map[string]any `json:"context,omitempty"`
	User     string         `json:"user,omitempty"`
	Disabled bool           `json:"disabled,omitempty"`
}

// EventTrigger matches bus events by type pattern and payload fields.
// Event may be a glob such as "skill.*".
type EventTrigger struct {
	Event  string            `json:"event"`
	Filter map[string]string `json:"filter,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Version is reported by the MCP server, /health and system_ping.
const Version = "2.0.0"

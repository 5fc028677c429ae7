// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	// RequestTimeout bounds how long a handler waits for the pool. The task itself is not cancelled.
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// BrowserConfig holds settings for the shared headless browser process.
type BrowserConfig struct {
	ExecPath         string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless         bool          `mapstructure:"headless" yaml:"headless"`
	Args             []string      `mapstructure:"args" yaml:"args"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
	LaunchTimeout    time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	BlockedResources []string      `mapstructure:"blocked_resources" yaml:"blocked_resources"`
}

// EngineConfig configures the session pool.
type EngineConfig struct {
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	QueueSize         int `mapstructure:"queue_size" yaml:"queue_size"`
	// RateLimit is the maximum number of task starts per second across the pool. Zero disables it.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// ProtocolConfig tunes the interaction with the target application.
type ProtocolConfig struct {
	TargetURL         string        `mapstructure:"target_url" yaml:"target_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ControlTimeout    time.Duration `mapstructure:"control_timeout" yaml:"control_timeout"`
	ResultTimeout     time.Duration `mapstructure:"result_timeout" yaml:"result_timeout"`
	DetailSettle      time.Duration `mapstructure:"detail_settle" yaml:"detail_settle"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SearchAttempts    int           `mapstructure:"search_attempts" yaml:"search_attempts"`
	DetailAttempts    int           `mapstructure:"detail_attempts" yaml:"detail_attempts"`
	InputPlaceholder  string        `mapstructure:"input_placeholder" yaml:"input_placeholder"`
	SubmitLabel       string        `mapstructure:"submit_label" yaml:"submit_label"`
	DetailLabel       string        `mapstructure:"detail_label" yaml:"detail_label"`
}

// CacheConfig configures the in-process search result cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Size    int           `mapstructure:"size" yaml:"size"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// DefaultServerAddr is the listen address used when nothing else is configured.
const DefaultServerAddr = ":3000"

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "markasorgu")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_body_bytes", 64<<10)

	// -- Browser --
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.blocked_resources", []string{"image", "font", "stylesheet", "media"})

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 5)
	v.SetDefault("engine.queue_size", 100)
	v.SetDefault("engine.rate_limit", 0.0)

	// -- Protocol --
	v.SetDefault("protocol.target_url", "https://www.turkpatent.gov.tr/arastirma-yap")
	v.SetDefault("protocol.navigation_timeout", "30s")
	v.SetDefault("protocol.control_timeout", "10s")
	v.SetDefault("protocol.result_timeout", "10s")
	v.SetDefault("protocol.detail_settle", "2s")
	v.SetDefault("protocol.poll_interval", "100ms")
	v.SetDefault("protocol.search_attempts", 2)
	v.SetDefault("protocol.detail_attempts", 1)
	v.SetDefault("protocol.input_placeholder", "Marka")
	v.SetDefault("protocol.submit_label", "Sorgula")
	v.SetDefault("protocol.detail_label", "DETAY")

	// -- Cache --
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", "10m")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The executable path historically came from the Puppeteer variable; keep it as a fallback.
	_ = v.BindEnv("browser.exec_path", "MARKASORGU_BROWSER_EXEC_PATH", "PUPPETEER_EXECUTABLE_PATH")
	_ = v.BindEnv("server.addr", "MARKASORGU_SERVER_ADDR")

	// A bare PORT (as set by most PaaS runtimes) replaces only the default listen address.
	// Any address from a flag, the environment or a file still wins, including ":3000".
	if port := os.Getenv("PORT"); port != "" {
		v.SetDefault("server.addr", ":"+port)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Engine.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.Engine.QueueSize < 0 {
		return fmt.Errorf("engine.queue_size must not be negative")
	}
	if c.Engine.RateLimit < 0 {
		return fmt.Errorf("engine.rate_limit must not be negative")
	}
	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("protocol configuration invalid: %w", err)
	}
	if _, err := ParseResourceTypes(c.Browser.BlockedResources); err != nil {
		return fmt.Errorf("browser.blocked_resources invalid: %w", err)
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive when the cache is enabled")
	}
	return nil
}

// Validate checks the ProtocolConfig settings.
func (p *ProtocolConfig) Validate() error {
	if p.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if p.NavigationTimeout <= 0 || p.ControlTimeout <= 0 || p.ResultTimeout <= 0 {
		return fmt.Errorf("navigation, control and result timeouts must be positive durations")
	}
	if p.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if p.SearchAttempts <= 0 || p.DetailAttempts <= 0 {
		return fmt.Errorf("search_attempts and detail_attempts must be at least 1")
	}
	if p.InputPlaceholder == "" || p.SubmitLabel == "" || p.DetailLabel == "" {
		return fmt.Errorf("input_placeholder, submit_label and detail_label are required")
	}
	return nil
}

// knownResourceTypes lists the CDP resource categories a filter may block.
var knownResourceTypes = []network.ResourceType{
	network.ResourceTypeDocument,
	network.ResourceTypeStylesheet,
	network.ResourceTypeImage,
	network.ResourceTypeMedia,
	network.ResourceTypeFont,
	network.ResourceTypeScript,
	network.ResourceTypeTextTrack,
	network.ResourceTypeXHR,
	network.ResourceTypeFetch,
	network.ResourceTypePrefetch,
	network.ResourceTypeEventSource,
	network.ResourceTypeWebSocket,
	network.ResourceTypeManifest,
	network.ResourceTypeSignedExchange,
	network.ResourceTypePing,
	network.ResourceTypeCSPViolationReport,
	network.ResourceTypePreflight,
	network.ResourceTypeOther,
}

// ParseResourceTypes maps category names (case-insensitive) onto CDP resource types.
func ParseResourceTypes(names []string) ([]network.ResourceType, error) {
	out := make([]network.ResourceType, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		matched := false
		for _, rt := range knownResourceTypes {
			if strings.EqualFold(rt.String(), name) {
				out = append(out, rt)
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("unknown resource type %q", name)
		}
	}
	return out, nil
}

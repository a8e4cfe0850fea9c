package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Family identifies which protocol handler variant serves an endpoint.
type Family string

const (
	FamilyMeshtasticSerial Family = "meshtastic-serial"
	FamilyMeshtasticTCP    Family = "meshtastic-tcp"
	FamilyReticulum        Family = "reticulum"
	FamilyRNode            Family = "rnode"

	DefaultSerialBaud = 115200
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
	LogFile   string `json:"log_file"`
}

// EndpointConfig describes one radio to connect at startup.
type EndpointConfig struct {
	Family Family `json:"family"`
	Path   string `json:"path"`
	Baud   int    `json:"baud"`
	Name   string `json:"name"`
}

// BridgeSettings tunes the forwarding core and the command dispatcher.
type BridgeSettings struct {
	CommandPrefix         string   `json:"command_prefix"`
	EnabledCommands       []string `json:"enabled_commands"`
	RateLimitPerMinute    int      `json:"rate_limit_per_minute"`
	AssistantLimitPerMin  int      `json:"assistant_limit_per_minute"`
	DedupCapacity         int      `json:"dedup_capacity"`
	QueueCapacity         int      `json:"queue_capacity"`
	PendingCapacity       int      `json:"pending_capacity"`
	QueueExpirySeconds    int      `json:"queue_expiry_seconds"`
	QueueDrainDelayMillis int      `json:"queue_drain_delay_ms"`
	MatchMode             string   `json:"match_mode"`
	SendTimeoutSeconds    int      `json:"send_timeout_seconds"`
}

// DashboardConfig configures the NATS gateway that mirrors bus events to
// dashboard observers and accepts control requests.
type DashboardConfig struct {
	Enabled       bool   `json:"enabled"`
	NatsURL       string `json:"nats_url"`
	SubjectPrefix string `json:"subject_prefix"`
}

// IntegrationsConfig configures the opaque external helpers the command
// dispatcher may call.
type IntegrationsConfig struct {
	WeatherURL              string `json:"weather_url"`
	AssistantURL            string `json:"assistant_url"`
	AssistantKey            string `json:"assistant_key"`
	AssistantTimeoutSeconds int    `json:"assistant_timeout_seconds"`
	DesktopNotify           bool   `json:"desktop_notify"`
}

// PersistenceConfig configures the node inventory database. Traffic is
// never persisted.
type PersistenceConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"db_path"`
}

// BridgeConfig is the root persisted configuration.
type BridgeConfig struct {
	Logging      LoggingConfig      `json:"logging"`
	Bridge       BridgeSettings     `json:"bridge"`
	Endpoints    []EndpointConfig   `json:"endpoints"`
	Dashboard    DashboardConfig    `json:"dashboard"`
	Integrations IntegrationsConfig `json:"integrations"`
	Persistence  PersistenceConfig  `json:"persistence"`
}

func Default() BridgeConfig {
	return BridgeConfig{
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Bridge: BridgeSettings{
			CommandPrefix:         "#",
			RateLimitPerMinute:    5,
			AssistantLimitPerMin:  2,
			DedupCapacity:         512,
			QueueCapacity:         32,
			PendingCapacity:       16,
			QueueExpirySeconds:    300,
			QueueDrainDelayMillis: 500,
			MatchMode:             "strict",
			SendTimeoutSeconds:    10,
		},
		Dashboard: DashboardConfig{
			Enabled:       false,
			NatsURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "meshbridge",
		},
		Integrations: IntegrationsConfig{
			AssistantTimeoutSeconds: 15,
		},
		Persistence: PersistenceConfig{
			Enabled: false,
			DBPath:  "meshbridge.db",
		},
	}
}

func Load(path string) (BridgeConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return BridgeConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return BridgeConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *BridgeConfig) FillMissingDefaults() {
	def := Default()
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Bridge.CommandPrefix == "" {
		c.Bridge.CommandPrefix = def.Bridge.CommandPrefix
	}
	if c.Bridge.RateLimitPerMinute <= 0 {
		c.Bridge.RateLimitPerMinute = def.Bridge.RateLimitPerMinute
	}
	if c.Bridge.AssistantLimitPerMin <= 0 {
		c.Bridge.AssistantLimitPerMin = def.Bridge.AssistantLimitPerMin
	}
	if c.Bridge.DedupCapacity <= 0 {
		c.Bridge.DedupCapacity = def.Bridge.DedupCapacity
	}
	if c.Bridge.QueueCapacity <= 0 {
		c.Bridge.QueueCapacity = def.Bridge.QueueCapacity
	}
	if c.Bridge.PendingCapacity <= 0 {
		c.Bridge.PendingCapacity = def.Bridge.PendingCapacity
	}
	if c.Bridge.QueueExpirySeconds <= 0 {
		c.Bridge.QueueExpirySeconds = def.Bridge.QueueExpirySeconds
	}
	if c.Bridge.QueueDrainDelayMillis < 0 {
		c.Bridge.QueueDrainDelayMillis = def.Bridge.QueueDrainDelayMillis
	}
	if c.Bridge.MatchMode == "" {
		c.Bridge.MatchMode = def.Bridge.MatchMode
	}
	if c.Bridge.SendTimeoutSeconds <= 0 {
		c.Bridge.SendTimeoutSeconds = def.Bridge.SendTimeoutSeconds
	}
	if c.Dashboard.NatsURL == "" {
		c.Dashboard.NatsURL = def.Dashboard.NatsURL
	}
	if c.Dashboard.SubjectPrefix == "" {
		c.Dashboard.SubjectPrefix = def.Dashboard.SubjectPrefix
	}
	if c.Integrations.AssistantTimeoutSeconds <= 0 {
		c.Integrations.AssistantTimeoutSeconds = def.Integrations.AssistantTimeoutSeconds
	}
	if c.Persistence.DBPath == "" {
		c.Persistence.DBPath = def.Persistence.DBPath
	}
	for i := range c.Endpoints {
		if c.Endpoints[i].Baud <= 0 {
			c.Endpoints[i].Baud = DefaultSerialBaud
		}
	}
}

func (c BridgeConfig) Validate() error {
	switch c.Bridge.MatchMode {
	case "strict", "passthrough":
	default:
		return fmt.Errorf("unknown match mode: %q", c.Bridge.MatchMode)
	}
	if len([]rune(c.Bridge.CommandPrefix)) != 1 {
		return fmt.Errorf("command prefix must be a single character: %q", c.Bridge.CommandPrefix)
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if err := ep.Validate(); err != nil {
			return err
		}
		if seen[ep.Path] {
			return fmt.Errorf("duplicate endpoint path: %q", ep.Path)
		}
		seen[ep.Path] = true
	}

	return nil
}

func (e EndpointConfig) Validate() error {
	if strings.TrimSpace(e.Path) == "" {
		return errors.New("endpoint path is required")
	}
	switch e.Family {
	case FamilyMeshtasticSerial, FamilyRNode:
		if e.Baud <= 0 {
			return fmt.Errorf("endpoint %q: baud must be positive", e.Path)
		}
	case FamilyMeshtasticTCP, FamilyReticulum:
	default:
		return fmt.Errorf("unknown endpoint family: %q", e.Family)
	}

	return nil
}

func Save(path string, cfg BridgeConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}

// QueueExpiry returns the configured queue entry lifetime.
func (b BridgeSettings) QueueExpiry() time.Duration {
	return time.Duration(b.QueueExpirySeconds) * time.Second
}

// QueueDrainDelay returns the inter-send pause used while draining.
func (b BridgeSettings) QueueDrainDelay() time.Duration {
	return time.Duration(b.QueueDrainDelayMillis) * time.Millisecond
}

// SendTimeout bounds one transport send attempt.
func (b BridgeSettings) SendTimeout() time.Duration {
	return time.Duration(b.SendTimeoutSeconds) * time.Second
}

// AssistantTimeout bounds one external assistant call.
func (i IntegrationsConfig) AssistantTimeout() time.Duration {
	return time.Duration(i.AssistantTimeoutSeconds) * time.Second
}

package config

import (
	"log/slog"
	"strings"
	"time"
)

// Keychain service and account names for secrets.
const (
	keychainService   = "cocreate"
	keychainAPIKey    = "anthropic_api_key"
	keychainAPIToken  = "api_token"
	defaultServerPort = 4100
)

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Generation GenerationConfig
	Storage    StorageConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Client     ClientConfig
}

type ServerConfig struct {
	Port           int
	RequestTimeout string
}

type LLMConfig struct {
	BaseURL       string
	APIKey        string
	FastModel     string
	DraftModel    string
	ReviewModel   string
	AnalysisModel string
	MaxRetries    int
}

type GenerationConfig struct {
	StageTimeout         string
	SufficiencyTimeout   string
	CautiousContentTypes string
	PromptDir            string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type MetricsConfig struct {
	Enabled bool
}

// ClientConfig holds settings used only by the CLI.
type ClientConfig struct {
	UserID string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           defaultServerPort,
			RequestTimeout: "60s",
		},
		LLM: LLMConfig{
			BaseURL:       "https://api.anthropic.com/v1",
			FastModel:     "claude-3-5-haiku-latest",
			DraftModel:    "claude-sonnet-4-20250514",
			ReviewModel:   "claude-sonnet-4-20250514",
			AnalysisModel: "claude-sonnet-4-20250514",
			MaxRetries:    3,
		},
		Generation: GenerationConfig{
			StageTimeout:         "30s",
			SufficiencyTimeout:   "10s",
			CautiousContentTypes: "personal_story",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.cocreate.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/cocreate/config.json
// and secrets fall back to a 0600 file under $XDG_DATA_HOME/cocreate.
//
// Environment variables (COCREATE_*) override backend values on all
// platforms. A missing model API key is not an error: the server runs with
// every model-backed stage on its fallback.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		if key, err := kc.Get(keychainService, keychainAPIKey); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	return cfg, nil
}

// APIKeyHint tells the user where the model API key can be supplied.
func APIKeyHint() string {
	return "set COCREATE_ANTHROPIC_API_KEY" + apiKeyHint()
}

// RequestTimeout is the overall ceiling for one generate request.
func (c Config) RequestTimeout() time.Duration {
	return parseDuration("server.request_timeout", c.Server.RequestTimeout, 60*time.Second)
}

func (c Config) StageTimeout() time.Duration {
	return parseDuration("generation.stage_timeout", c.Generation.StageTimeout, 30*time.Second)
}

func (c Config) SufficiencyTimeout() time.Duration {
	return parseDuration("generation.sufficiency_timeout", c.Generation.SufficiencyTimeout, 10*time.Second)
}

// CautiousContentTypes splits the comma-separated setting.
func (c Config) CautiousContentTypes() []string {
	var out []string
	for _, t := range strings.Split(c.Generation.CautiousContentTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(key, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in config, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}

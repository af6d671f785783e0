package config

import (
	"path/filepath"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	OpenAI  OpenAIConfig
	Local   LocalConfig
	Memory  MemoryConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

// BackendConfig selects which completion backend handles prompts.
// Active is validated against the known backend kinds at dispatcher
// construction, not here.
type BackendConfig struct {
	Active string
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type LocalConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
}

type MemoryConfig struct {
	Enabled        bool
	Mode           string
	StoragePath    string
	MaxHistory     int
	VectorStore    string
	EmbeddingModel string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Backend: BackendConfig{
			Active: "openai",
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4-turbo",
			Temperature: 0.7,
			MaxTokens:   1000,
		},
		Local: LocalConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.2",
			Temperature: 0.7,
		},
		Memory: MemoryConfig{
			Enabled:        false,
			Mode:           "session",
			StoragePath:    filepath.Join(dataDir, "sessions"),
			MaxHistory:     10,
			VectorStore:    "sqlite",
			EmbeddingModel: "nomic-embed-text",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.relay.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/relay/config.json
// and secrets live in a mode-0600 file under $XDG_DATA_HOME/relay.
//
// Environment variables (RELAY_*) override backend values on all platforms.
//
// A missing OpenAI API key is not an error here: the key is only required
// when the openai backend is active, and that is checked where the backend
// is constructed.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// DataDir returns the platform data directory for runtime state (PID file,
// session logs, vector index).
func DataDir() string {
	return defaultDataDir()
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for the API key if still empty.
	if cfg.OpenAI.APIKey == "" {
		if key, err := kc.Get(serviceName, accountAPIKey); err == nil && key != "" {
			cfg.OpenAI.APIKey = key
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

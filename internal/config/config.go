package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Kartra  KartraConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type KartraConfig struct {
	BaseURL     string
	AppID       string
	APIKey      string
	APIPassword string
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
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Kartra: KartraConfig{
			BaseURL: "https://app.kartra.com/api/v1",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file
// in the working directory, environment variables, and the platform
// secret store.
//
// On macOS the backend is UserDefaults (domain: com.helpnow.app) and
// secrets fall back to macOS Keychain. On Linux the backend is a JSON
// file at $XDG_CONFIG_HOME/helpnow/config.json and secrets live in a
// file under $XDG_DATA_HOME/helpnow.
//
// Environment variables (HELPNOW_*) override backend values on all
// platforms.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newPlatformBackend(), secretReader{})
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

	// Fall back to the platform secret store for Kartra credentials.
	if cfg.Kartra.APIKey == "" {
		if key, err := kc.Get(secretService, "kartra_api_key"); err == nil && key != "" {
			cfg.Kartra.APIKey = key
		}
	}
	if cfg.Kartra.APIPassword == "" {
		if pw, err := kc.Get(secretService, "kartra_api_password"); err == nil && pw != "" {
			cfg.Kartra.APIPassword = pw
		}
	}

	if cfg.Kartra.APIKey == "" || cfg.Kartra.APIPassword == "" {
		msg := "missing required config: Kartra API credentials. " +
			"Set them via environment variables HELPNOW_KARTRA_API_KEY and HELPNOW_KARTRA_API_PASSWORD" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// secretService is the service name under which secrets are filed.
const secretService = "helpnow"

// secretReader reads from the platform secret store.
type secretReader struct{}

func (secretReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

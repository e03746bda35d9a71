// Package config provides configuration loading and path management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Config holds the runtime configuration.
type Config struct {
	// Model is the default model in "provider/model" form.
	Model string `json:"model,omitempty"`

	// DataDir overrides the history/transcript storage directory.
	DataDir string `json:"dataDir,omitempty"`

	// Port is the HTTP server port.
	Port int `json:"port,omitempty"`

	// ShareBaseURL is the base URL for published transcripts.
	ShareBaseURL string `json:"shareBaseURL,omitempty"`

	// SteerGracePeriod is how long the fleet controller waits between
	// interrupting a terminal and injecting a new directive.
	SteerGracePeriod Duration `json:"steerGracePeriod,omitempty"`

	Provider map[string]ProviderConfig `json:"provider,omitempty"`
}

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Duration is a time.Duration that unmarshals from a JSON string like "500ms".
type Duration time.Duration

// UnmarshalJSON parses either a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/lattice/)
// 2. Project config (lattice.json[c] in the working directory)
// 3. Environment variables
func Load(directory string) (*Config, error) {
	config := &Config{
		Provider: make(map[string]ProviderConfig),
	}

	// .env files make local development less painful; ignore absence.
	_ = godotenv.Load(filepath.Join(directory, ".env"))

	globalDir := filepath.Join(configHome(), "lattice")
	loadConfigFile(filepath.Join(globalDir, "lattice.json"), config)
	loadConfigFile(filepath.Join(globalDir, "lattice.jsonc"), config)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, "lattice.json"), config)
		loadConfigFile(filepath.Join(directory, "lattice.jsonc"), config)
	}

	applyEnv(config)
	applyDefaults(config)

	return config, nil
}

// loadConfigFile merges a jsonc config file into config. Missing files are
// not an error; corrupt files are skipped.
func loadConfigFile(path string, config *Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var loaded Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &loaded); err != nil {
		return
	}

	mergeConfig(config, &loaded)
}

func mergeConfig(dst, src *Config) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.ShareBaseURL != "" {
		dst.ShareBaseURL = src.ShareBaseURL
	}
	if src.SteerGracePeriod != 0 {
		dst.SteerGracePeriod = src.SteerGracePeriod
	}
	for id, p := range src.Provider {
		dst.Provider[id] = p
	}
}

func applyEnv(config *Config) {
	if v := os.Getenv("LATTICE_MODEL"); v != "" {
		config.Model = v
	}
	if v := os.Getenv("LATTICE_DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("LATTICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Port = port
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		p := config.Provider["anthropic"]
		p.APIKey = v
		config.Provider["anthropic"] = p
	}
}

func applyDefaults(config *Config) {
	if config.Model == "" {
		config.Model = "anthropic/claude-sonnet-4-20250514"
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.DataDir == "" {
		config.DataDir = filepath.Join(dataHome(), "lattice")
	}
	if config.SteerGracePeriod == 0 {
		config.SteerGracePeriod = Duration(500 * time.Millisecond)
	}
}

func configHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func dataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

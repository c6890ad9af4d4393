package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Directory for the persistent state database
	DataDir string

	// Unix socket path the daemon listens on for control commands
	SocketPath string

	// HTTP listen address for the playback surface
	ListenAddr string

	// Initial volume for a fresh session (0-100)
	DefaultVolume int

	// Playback re-assertion interval (in milliseconds)
	RetryIntervalMS int

	// Surface readiness probe interval (in milliseconds)
	HandshakeIntervalMS int

	// Number of results returned by search
	SearchLimit int

	// Maximum entries kept in play history
	HistoryLimit int

	// YouTube Data API credentials
	YouTube YouTubeConfig
}

// YouTubeConfig holds YouTube specific configuration
type YouTubeConfig struct {
	APIKey string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Set defaults
	v.SetDefault("data_dir", configDir)
	v.SetDefault("socket_path", filepath.Join(configDir, "chime.sock"))
	v.SetDefault("listen_addr", "127.0.0.1:8978")
	v.SetDefault("default_volume", 50)
	v.SetDefault("retry_interval_ms", 800)
	v.SetDefault("handshake_interval_ms", 300)
	v.SetDefault("search_limit", 10)
	v.SetDefault("history_limit", 50)

	// Read config file (optional - don't fail if missing)
	_ = v.ReadInConfig()

	// Read from environment variables
	v.SetEnvPrefix("CHIME")
	v.AutomaticEnv()

	// Map config to struct
	cfg := &Config{
		DataDir:             v.GetString("data_dir"),
		SocketPath:          v.GetString("socket_path"),
		ListenAddr:          v.GetString("listen_addr"),
		DefaultVolume:       v.GetInt("default_volume"),
		RetryIntervalMS:     v.GetInt("retry_interval_ms"),
		HandshakeIntervalMS: v.GetInt("handshake_interval_ms"),
		SearchLimit:         v.GetInt("search_limit"),
		HistoryLimit:        v.GetInt("history_limit"),
		YouTube: YouTubeConfig{
			APIKey: v.GetString("youtube.api_key"),
		},
	}

	return cfg, nil
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "chime")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	// Set config file path
	configDir := getConfigDir()
	configFile := filepath.Join(configDir, "config.yaml")

	// Set values in viper
	v.Set("data_dir", c.DataDir)
	v.Set("socket_path", c.SocketPath)
	v.Set("listen_addr", c.ListenAddr)
	v.Set("default_volume", c.DefaultVolume)
	v.Set("retry_interval_ms", c.RetryIntervalMS)
	v.Set("handshake_interval_ms", c.HandshakeIntervalMS)
	v.Set("search_limit", c.SearchLimit)
	v.Set("history_limit", c.HistoryLimit)
	v.Set("youtube.api_key", c.YouTube.APIKey)

	// Write to file
	return v.WriteConfigAs(configFile)
}

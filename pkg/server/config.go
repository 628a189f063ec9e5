package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server TOMLServerSection `toml:"server"`
	Auth   TOMLAuthSection   `toml:"auth"`
	Limits TOMLLimitsSection `toml:"limits"`
}

type TOMLServerSection struct {
	Port         int    `toml:"port"`
	DatabasePath string `toml:"database_path"`
	Mode         string `toml:"mode"` // "debug" or "release"
}

type TOMLAuthSection struct {
	JWTSecret     string `toml:"jwt_secret"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

type TOMLLimitsSection struct {
	DefaultPageSize int `toml:"default_page_size"`
	MaxPageSize     int `toml:"max_page_size"`
	SendBufferSize  int `toml:"send_buffer_size"`
}

// Config is the resolved runtime configuration
type Config struct {
	Port            int
	DatabasePath    string
	Mode            string
	JWTSecret       []byte
	TokenTTL        time.Duration
	DefaultPageSize int
	MaxPageSize     int
	SendBufferSize  int
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: TOMLServerSection{
			Port:         8080,
			DatabasePath: "~/.hackmatch/hackmatch.db",
			Mode:         "release",
		},
		Auth: TOMLAuthSection{
			TokenTTLHours: 24,
		},
		Limits: TOMLLimitsSection{
			DefaultPageSize: 50,
			MaxPageSize:     200,
			SendBufferSize:  32,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// Can't write (permissions?); still usable with defaults
			return config, nil
		}
		return config, nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# Hackmatch Server Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToConfig resolves the TOML file into a runtime Config. The JWT secret may
// come from the JWT_SECRET environment variable, which wins over the file.
func (c *TOMLConfig) ToConfig() (Config, error) {
	defaults := DefaultTOMLConfig()

	cfg := Config{
		Port:            c.Server.Port,
		Mode:            c.Server.Mode,
		DefaultPageSize: c.Limits.DefaultPageSize,
		MaxPageSize:     c.Limits.MaxPageSize,
		SendBufferSize:  c.Limits.SendBufferSize,
	}

	if cfg.Port == 0 {
		cfg.Port = defaults.Server.Port
	}
	if cfg.Mode == "" {
		cfg.Mode = defaults.Server.Mode
	}
	if cfg.DefaultPageSize == 0 {
		cfg.DefaultPageSize = defaults.Limits.DefaultPageSize
	}
	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = defaults.Limits.MaxPageSize
	}
	if cfg.SendBufferSize == 0 {
		cfg.SendBufferSize = defaults.Limits.SendBufferSize
	}

	ttlHours := c.Auth.TokenTTLHours
	if ttlHours == 0 {
		ttlHours = defaults.Auth.TokenTTLHours
	}
	cfg.TokenTTL = time.Duration(ttlHours) * time.Hour

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = c.Auth.JWTSecret
	}
	if secret == "" {
		return Config{}, fmt.Errorf("no JWT secret configured (set JWT_SECRET or auth.jwt_secret)")
	}
	cfg.JWTSecret = []byte(secret)

	dbPath := c.Server.DatabasePath
	if dbPath == "" {
		dbPath = defaults.Server.DatabasePath
	}
	dbPath, err := expandHome(dbPath)
	if err != nil {
		return Config{}, err
	}
	cfg.DatabasePath = dbPath

	return cfg, nil
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}

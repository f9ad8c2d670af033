// Package config loads and validates ftpbridge YAML configuration.
// It applies defaults so the daemon can rely on fully populated values.
package config

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TLSConfig holds TLS certificate paths for the HTTP listener.
type TLSConfig struct {
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Bind string    `yaml:"bind"`
	Port int       `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

// FTPConfig holds settings for outbound FTP client connections.
type FTPConfig struct {
	DialTimeoutSeconds int `yaml:"dial_timeout_seconds"`
}

// Config mirrors the ftpbridge.yaml schema.
type Config struct {
	Log  LogConfig  `yaml:"log"`
	DB   DBConfig   `yaml:"db"`
	HTTP HTTPConfig `yaml:"http"`
	FTP  FTPConfig  `yaml:"ftp"`
}

// Load reads a YAML config file, applies defaults, and validates it.
// It returns a fully populated Config or a descriptive error.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, errors.New("config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	c.DB.Path = strings.TrimSpace(c.DB.Path)
	c.HTTP.TLS.CertPath = strings.TrimSpace(c.HTTP.TLS.CertPath)
	c.HTTP.TLS.KeyPath = strings.TrimSpace(c.HTTP.TLS.KeyPath)
	return c, nil
}

// applyDefaults populates zero-values with sane defaults.
func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DB.Path == "" {
		c.DB.Path = "./data/ftpbridge.db"
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 5141
	}
	if c.FTP.DialTimeoutSeconds == 0 {
		c.FTP.DialTimeoutSeconds = 30
	}
}

// validate performs basic sanity checks for required fields and ranges.
// It does not mutate the config.
func validate(c *Config) error {
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("db.path is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port is invalid")
	}
	if c.FTP.DialTimeoutSeconds < 1 || c.FTP.DialTimeoutSeconds > 600 {
		return errors.New("ftp.dial_timeout_seconds is invalid")
	}
	cp := strings.TrimSpace(c.HTTP.TLS.CertPath)
	kp := strings.TrimSpace(c.HTTP.TLS.KeyPath)
	if (cp == "") != (kp == "") {
		return errors.New("http.tls.cert_path and http.tls.key_path must be set together")
	}
	return nil
}

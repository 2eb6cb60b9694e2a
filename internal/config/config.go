package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Client is the configuration of the notes CLI.
type Client struct {
	ServerURL      string        `yaml:"server_url"`
	Token          string        `yaml:"token"`
	OwnerID        string        `yaml:"owner_id"`
	DBPath         string        `yaml:"db_path"`
	PageSize       int           `yaml:"page_size"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func DefaultClient() Client {
	return Client{
		ServerURL:      "http://localhost:7521",
		DBPath:         filepath.Join(stateDir(), "notes.db"),
		PageSize:       20,
		ProbeInterval:  15 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// DefaultClientPath is where the CLI looks for its config file.
func DefaultClientPath() string {
	return filepath.Join(stateDir(), "config.yaml")
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notesync"
	}
	return filepath.Join(home, ".notesync")
}

// LoadClient reads the YAML file at path over the defaults. A missing file
// yields the defaults. NOTES_TOKEN overrides the token from the file.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Client{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Client{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if token := os.Getenv("NOTES_TOKEN"); token != "" {
		cfg.Token = token
	}
	return cfg, nil
}

func (c Client) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: must be an absolute URL, got %q", "server_url", c.ServerURL)
	}
	if c.OwnerID == "" {
		return fmt.Errorf("%s: required", "owner_id")
	}
	if c.DBPath == "" {
		return fmt.Errorf("%s: required", "db_path")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%s: must be GT 0", "page_size")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("%s: must be GT 0", "probe_interval")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s: must be GT 0", "request_timeout")
	}
	return nil
}

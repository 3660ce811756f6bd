// Package config loads the sushectl configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Server contains the service endpoints and the acting user.
type Server struct {
	APIURL  string `toml:"api_url"`
	PushURL string `toml:"push_url"`
	UserID  string `toml:"user_id"`
}

// Client contains local engine tuning.
type Client struct {
	SnapshotDir       string `toml:"snapshot_dir"`
	ReorderDebounceMS int    `toml:"reorder_debounce_ms"`
	EditDebounceMS    int    `toml:"edit_debounce_ms"`
}

type Config struct {
	Server Server `toml:"server"`
	Client Client `toml:"client"`
}

func Default() Config {
	return Config{
		Server: Server{
			APIURL:  "http://localhost:3005",
			PushURL: "ws://localhost:3005/push",
		},
		Client: Client{
			SnapshotDir:       "~/.local/share/sushectl",
			ReorderDebounceMS: 300,
			EditDebounceMS:    20,
		},
	}
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sushectl", "config.toml"), nil
}

// Load reads the file at path over the defaults. A missing file at the
// default location is not an error; a missing explicit path is.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return cfg, cfg.validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Server.APIURL == "" {
		return errors.New("config: server.api_url is required")
	}
	if c.Server.PushURL == "" {
		return errors.New("config: server.push_url is required")
	}
	if c.Client.ReorderDebounceMS < 0 || c.Client.EditDebounceMS < 0 {
		return errors.New("config: debounce values must not be negative")
	}
	dir, err := ExpandPath(c.Client.SnapshotDir)
	if err != nil {
		return err
	}
	c.Client.SnapshotDir = dir
	return nil
}

// ExpandPath resolves a leading ~ against the home directory.
func ExpandPath(path string) (string, error) {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// UserConfig holds the mutable settings that can be changed at runtime. These
// govern the side effects of a metadata write: whether the resolved metadata
// is embedded back into the original file, and whether files are relocated to
// match the library naming pattern afterwards.
type UserConfig struct {
	SaveMetadataToFile     bool `json:"save_metadata_to_file"`
	MoveFilesToPattern     bool `json:"move_files_to_pattern"`
	RefreshCoversByDefault bool `json:"refresh_covers_by_default"`
}

var (
	userConfigMu sync.RWMutex
	userConfig   *UserConfig
)

func userConfigFilePath() string {
	configDir := os.Getenv("CONFIG_DIRECTORY")
	if configDir == "" {
		configDir = "/config"
	}

	return filepath.Join(configDir, "config.json")
}

// User returns the current user config, loading it from disk on first use.
func User() (*UserConfig, error) {
	userConfigMu.RLock()
	if userConfig != nil {
		defer userConfigMu.RUnlock()
		return userConfig, nil
	}
	userConfigMu.RUnlock()

	userConfigMu.Lock()
	defer userConfigMu.Unlock()
	if userConfig != nil {
		return userConfig, nil
	}

	loaded, err := loadUserConfig(userConfigFilePath())
	if err != nil {
		return nil, err
	}
	userConfig = loaded
	return userConfig, nil
}

// SaveUser persists the given user config and makes it the active one.
func SaveUser(cfg *UserConfig) error {
	userConfigMu.Lock()
	defer userConfigMu.Unlock()

	if err := saveUserConfigFile(cfg, userConfigFilePath()); err != nil {
		return err
	}
	userConfig = cfg
	return nil
}

func loadUserConfig(configFilePath string) (*UserConfig, error) {
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// File doesn't exist, return defaults
			return loadDefaultUserConfig(), nil
		}
		return nil, errors.WithStack(err)
	}

	cfg := loadDefaultUserConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	return cfg, nil
}

func loadDefaultUserConfig() *UserConfig {
	return &UserConfig{}
}

func saveUserConfigFile(cfg *UserConfig, configFilePath string) error {
	// Ensure config directory exists.
	if err := os.MkdirAll(filepath.Dir(configFilePath), 0755); err != nil {
		return errors.WithStack(err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	err = os.WriteFile(configFilePath, data, 0644) //nolint:gosec
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Package config handles CLI configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the whistler CLI configuration.
type Config struct {
	// Classifier is the registered topology name used by default.
	Classifier string `json:"classifier"`

	// SampleRate is the default sample rate in Hz.
	SampleRate uint32 `json:"sample_rate"`

	// MinFreq and MaxFreq bound the default band-pass band (both zero
	// disables band-pass filtering).
	MinFreq uint32 `json:"min_freq"`
	MaxFreq uint32 `json:"max_freq"`

	// MicDistanceCm is the default stereo microphone spacing used by the
	// localizer (0 disables localization).
	MicDistanceCm float64 `json:"mic_distance_cm"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Classifier:    "WhsNNClassifier_32_32_32_1",
		SampleRate:    44100,
		MinFreq:       0,
		MaxFreq:       0,
		MicDistanceCm: 0,
	}
}

// Manager handles loading and saving configuration.
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager rooted at configDir
// (typically ~/.config/whistler).
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, creating a default one if none
// exists yet.
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config { return m.config }

// GetPath returns the config file path.
func (m *Manager) GetPath() string { return m.configPath }

// Update replaces the configuration and saves it.
func (m *Manager) Update(config *Config) error {
	m.config = config
	return m.Save()
}

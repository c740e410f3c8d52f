package client

import (
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings stores user preferences persisted as YAML in the data dir.
type Settings struct {
	AudioInput        string `yaml:"audio_input,omitempty"`
	AutoPlayQuestions bool   `yaml:"auto_play_questions"`
}

// DefaultSettings returns default settings.
func DefaultSettings() *Settings {
	return &Settings{AutoPlayQuestions: true}
}

func settingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.yaml")
}

// LoadSettings loads settings from YAML or returns defaults.
func LoadSettings(dataDir string) *Settings {
	s := DefaultSettings()
	data, err := os.ReadFile(settingsPath(dataDir))
	if err != nil {
		return s
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		slog.Error("parse settings", "err", err)
		return DefaultSettings()
	}
	return s
}

// Save writes settings to YAML.
func (s *Settings) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(settingsPath(dataDir), data, 0o600)
}

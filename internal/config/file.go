package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the optional configuration file. Durations are Go duration
// strings ("90s", "2h") so the same file works as YAML or JSON.
type FileConfig struct {
	Port   string `yaml:"port" json:"port"`
	APIKey string `yaml:"apiKey" json:"apiKey"`

	Workers struct {
		Count    int `yaml:"count" json:"count"`
		MaxQueue int `yaml:"maxQueue" json:"maxQueue"`
	} `yaml:"workers" json:"workers"`

	MaxUploadBytes int64 `yaml:"maxUploadBytes" json:"maxUploadBytes"`

	JobTTL        string `yaml:"jobTTL" json:"jobTTL"`
	SessionTTL    string `yaml:"sessionTTL" json:"sessionTTL"`
	ImportTimeout string `yaml:"importTimeout" json:"importTimeout"`

	Host struct {
		Width  float64 `yaml:"width" json:"width"`
		Height float64 `yaml:"height" json:"height"`
	} `yaml:"host" json:"host"`

	PDF struct {
		Page int `yaml:"page" json:"page"`
	} `yaml:"pdf" json:"pdf"`

	Classify struct {
		URL        string `yaml:"url" json:"url"`
		APIKey     string `yaml:"apiKey" json:"apiKey"`
		Timeout    string `yaml:"timeout" json:"timeout"`
		MaxRetries int    `yaml:"maxRetries" json:"maxRetries"`
	} `yaml:"classify" json:"classify"`

	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
		Color  *bool  `yaml:"color" json:"color"`
	} `yaml:"log" json:"log"`
}

// LoadFile reads YAML or JSON into FileConfig.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// Apply copies every value set in the file onto cfg.
func (fc FileConfig) Apply(cfg *Config) error {
	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if fc.APIKey != "" {
		cfg.APIKey = fc.APIKey
	}
	if fc.Workers.Count > 0 {
		cfg.WorkerCount = fc.Workers.Count
	}
	if fc.Workers.MaxQueue > 0 {
		cfg.MaxQueueSize = fc.Workers.MaxQueue
	}
	if fc.MaxUploadBytes > 0 {
		cfg.MaxUploadBytes = fc.MaxUploadBytes
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"jobTTL", fc.JobTTL, &cfg.JobTTL},
		{"sessionTTL", fc.SessionTTL, &cfg.SessionTTL},
		{"importTimeout", fc.ImportTimeout, &cfg.ImportTimeout},
		{"classify.timeout", fc.Classify.Timeout, &cfg.ClassifyTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	if fc.Host.Width > 0 {
		cfg.DefaultHostWidth = fc.Host.Width
	}
	if fc.Host.Height > 0 {
		cfg.DefaultHostHeight = fc.Host.Height
	}
	if fc.PDF.Page > 0 {
		cfg.PDFPage = fc.PDF.Page
	}
	if fc.Classify.URL != "" {
		cfg.ClassifyURL = fc.Classify.URL
	}
	if fc.Classify.APIKey != "" {
		cfg.ClassifyAPIKey = fc.Classify.APIKey
	}
	if fc.Classify.MaxRetries > 0 {
		cfg.ClassifyMaxRetries = fc.Classify.MaxRetries
	}
	if fc.Log.Level != "" {
		cfg.LogLevel = fc.Log.Level
	}
	if fc.Log.Format != "" {
		cfg.LogFormat = fc.Log.Format
	}
	if fc.Log.Color != nil {
		cfg.LogColor = *fc.Log.Color
	}
	return nil
}

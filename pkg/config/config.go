// Package config provides configuration loading and validation for
// deformreg. It handles loading configuration from YAML files, provides
// default values, and rejects malformed configurations before any model is
// built.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"deformreg/internal/models"
	"deformreg/pkg/backbone"
	"deformreg/pkg/integrate"
	"deformreg/pkg/losses"
)

// Config represents the model and loss configuration loaded from YAML.
type Config struct {
	// Model selects the registration method, backbone and static shapes
	Model ModelConfig `yaml:"model"`

	// Loss configures the composite training objective
	Loss LossConfig `yaml:"loss"`
}

// ModelConfig holds the forward-pipeline parameters.
type ModelConfig struct {
	// Method is "ddf" (backbone predicts the displacement field directly)
	// or "dvf" (backbone predicts a velocity field that is integrated)
	Method string `yaml:"method"`

	// Backbone is the registered name of the field-regression network
	Backbone string `yaml:"backbone"`

	// MovingSize is the spatial shape of the moving volumes
	MovingSize [3]int `yaml:"movingSize"`

	// FixedSize is the spatial shape of the fixed volumes
	FixedSize [3]int `yaml:"fixedSize"`

	// IntegrationSteps is the number of scaling-and-squaring steps used in
	// "dvf" mode; zero selects the default
	IntegrationSteps int `yaml:"integrationSteps"`
}

// LossConfig configures the loss terms of the objective.
type LossConfig struct {
	// Regularization is the deformation energy term, always applied
	Regularization RegularizationConfig `yaml:"regularization"`

	// Dissimilarity holds the image and label comparison terms
	Dissimilarity DissimilarityConfig `yaml:"dissimilarity"`
}

// RegularizationConfig selects the displacement energy and its weight. The
// weight is not gated: a zero or negative value still computes and reports
// the energy, it merely scales the loss contribution.
type RegularizationConfig struct {
	Energy string   `yaml:"energy"`
	Weight *float64 `yaml:"weight"`
}

// DissimilarityConfig groups the image and label terms.
type DissimilarityConfig struct {
	Image TermConfig `yaml:"image"`
	Label TermConfig `yaml:"label"`
}

// TermConfig selects one dissimilarity method and its weight. A weight of
// zero or below disables the image term's loss contribution; the label term
// folds its weight into the dissimilarity function instead.
type TermConfig struct {
	Method string   `yaml:"method"`
	Weight *float64 `yaml:"weight"`
}

// DefaultConfig returns a configuration with default values: direct
// displacement prediction with the zero baseline backbone over 16^3 volumes,
// gradient-l2 regularization, SSD image dissimilarity and Dice label
// dissimilarity.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Model.Method = "ddf"
	cfg.Model.Backbone = "zero"
	cfg.Model.MovingSize = [3]int{16, 16, 16}
	cfg.Model.FixedSize = [3]int{16, 16, 16}
	cfg.Model.IntegrationSteps = integrate.DefaultSteps

	cfg.Loss.Regularization.Energy = "gradient-l2"
	cfg.Loss.Regularization.Weight = floatPtr(0.5)
	cfg.Loss.Dissimilarity.Image = TermConfig{Method: "ssd", Weight: floatPtr(1.0)}
	cfg.Loss.Dissimilarity.Label = TermConfig{Method: "dice", Weight: floatPtr(1.0)}

	return cfg
}

func floatPtr(v float64) *float64 { return &v }

// LoadConfig loads configuration from a YAML file and validates it. If the
// file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate rejects malformed configurations fail-fast, before any graph is
// built: unknown method names surface as ErrUnsupportedMethod and missing
// required keys as ErrConfiguration, each naming the offending field.
func (cfg *Config) Validate() error {
	if cfg.Model.Method != "ddf" && cfg.Model.Method != "dvf" {
		return fmt.Errorf("%w: model.method %q, want \"ddf\" or \"dvf\"",
			models.ErrUnsupportedMethod, cfg.Model.Method)
	}
	if !backbone.Registered(cfg.Model.Backbone) {
		return fmt.Errorf("%w: model.backbone %q", models.ErrUnsupportedMethod, cfg.Model.Backbone)
	}
	for a := 0; a < 3; a++ {
		if cfg.Model.MovingSize[a] < 1 || cfg.Model.FixedSize[a] < 1 {
			return fmt.Errorf("%w: model sizes must be positive, got moving %v fixed %v",
				models.ErrConfiguration, cfg.Model.MovingSize, cfg.Model.FixedSize)
		}
	}
	if cfg.Model.IntegrationSteps < 0 || cfg.Model.IntegrationSteps > integrate.MaxSteps {
		return fmt.Errorf("%w: model.integrationSteps must be in [0, %d], got %d",
			models.ErrConfiguration, integrate.MaxSteps, cfg.Model.IntegrationSteps)
	}

	if !losses.EnergyRegistered(cfg.Loss.Regularization.Energy) {
		return fmt.Errorf("%w: loss.regularization.energy %q",
			models.ErrUnsupportedMethod, cfg.Loss.Regularization.Energy)
	}
	if cfg.Loss.Regularization.Weight == nil {
		return fmt.Errorf("%w: loss.regularization.weight is required", models.ErrConfiguration)
	}

	if !losses.ImageRegistered(cfg.Loss.Dissimilarity.Image.Method) {
		return fmt.Errorf("%w: loss.dissimilarity.image.method %q",
			models.ErrUnsupportedMethod, cfg.Loss.Dissimilarity.Image.Method)
	}
	if cfg.Loss.Dissimilarity.Image.Weight == nil {
		return fmt.Errorf("%w: loss.dissimilarity.image.weight is required", models.ErrConfiguration)
	}

	if !losses.LabelRegistered(cfg.Loss.Dissimilarity.Label.Method) {
		return fmt.Errorf("%w: loss.dissimilarity.label.method %q",
			models.ErrUnsupportedMethod, cfg.Loss.Dissimilarity.Label.Method)
	}
	if cfg.Loss.Dissimilarity.Label.Weight == nil {
		return fmt.Errorf("%w: loss.dissimilarity.label.weight is required", models.ErrConfiguration)
	}

	return nil
}

package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"math"
	"os"

	validator "github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"pxvp/preset"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	ViewportConfig struct {
		DesignWidth  float64  `yaml:"design_width" validate:"gt=0"`
		DesignHeight float64  `yaml:"design_height" validate:"gt=0"`
		KeyToVw      []string `yaml:"key_to_vw" validate:"dive,required"`
		KeyToVh      []string `yaml:"key_to_vh" validate:"dive,required"`
		KeyToBoth    []string `yaml:"key_to_both" validate:"dive,required"`
		ReplaceKey   bool     `yaml:"replace_key"`
	}

	OutputConfig struct {
		Suffix     string   `yaml:"suffix" validate:"excludesall=/\\"`
		Compact    bool     `yaml:"compact"`
		Extensions []string `yaml:"extensions" validate:"min=1,dive,required,startswith=."`
	}

	Config struct {
		Version  int            `yaml:"version" validate:"eq=1"`
		Viewport ViewportConfig `yaml:"viewport"`
		Output   OutputConfig   `yaml:"output"`
		Logging  LoggingConfig  `yaml:"logging"`
	}
)

// Options converts viewport configuration into preset options.
func (conf *ViewportConfig) Options() preset.Options {
	return preset.Options{
		DesignWidth:  conf.DesignWidth,
		DesignHeight: conf.DesignHeight,
		KeyToVw:      conf.KeyToVw,
		KeyToVh:      conf.KeyToVh,
		KeyToBoth:    conf.KeyToBoth,
		ReplaceKey:   conf.ReplaceKey,
	}
}

// checkViewport rejects values tags cannot express: YAML allows ".inf" which
// satisfies "gt=0" but makes every conversion produce zero.
func checkViewport(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	if math.IsInf(cfg.Viewport.DesignWidth, 0) || math.IsNaN(cfg.Viewport.DesignWidth) {
		sl.ReportError(cfg.Viewport.DesignWidth, "design_width", "DesignWidth", "finite", "")
	}
	if math.IsInf(cfg.Viewport.DesignHeight, 0) || math.IsNaN(cfg.Viewport.DesignHeight) {
		sl.ReportError(cfg.Viewport.DesignHeight, "design_height", "DesignHeight", "finite", "")
	}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg, gencfg.WithAdditionalChecks(checkViewport)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

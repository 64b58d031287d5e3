/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/nvrec/pkg/codec"
	"github.com/ssargent/nvrec/pkg/device"
	"github.com/ssargent/nvrec/pkg/slots"
)

// Device backends
const (
	BackendFile   = "file"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// validate is a singleton validator instance
var validate = validator.New()

// Config represents the nvrec configuration
type Config struct {
	Device   Device   `yaml:"device"`
	Geometry Geometry `yaml:"geometry"`
	Record   Record   `yaml:"record"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Device selects and sizes the EEPROM image
type Device struct {
	Backend string `yaml:"backend" validate:"required,oneof=file pebble memory"`
	Path    string `yaml:"path" validate:"required_unless=Backend memory"`
	Size    int    `yaml:"size" validate:"gte=0"`
	ImageID string `yaml:"image_id,omitempty" validate:"required_if=Backend pebble"`
}

// Geometry describes the wear-leveling slots
type Geometry struct {
	SlotCount int `yaml:"slot_count" validate:"gte=1,lte=4096"`
	SlotSize  int `yaml:"slot_size" validate:"gte=0"`
}

// Record describes the record kept in the slots
type Record struct {
	PayloadSize   int    `yaml:"payload_size" validate:"gte=0,lte=65535"`
	Format        uint16 `yaml:"format"`
	CleanCopy     bool   `yaml:"clean_copy"`
	SlotCache     bool   `yaml:"slot_cache"`
	DirtyChecking bool   `yaml:"dirty_checking"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Metrics contains the status server configuration
type Metrics struct {
	Listen string `yaml:"listen" validate:"required"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Device: Device{
			Backend: BackendFile,
			Path:    "./data/eeprom.bin",
		},
		Geometry: Geometry{
			SlotCount: 5,
			SlotSize:  256,
		},
		Record: Record{
			PayloadSize:   64,
			Format:        1,
			CleanCopy:     true,
			SlotCache:     true,
			DirtyChecking: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Metrics: Metrics{
			Listen: "127.0.0.1:9464",
		},
	}
}

// SlotGeometry converts the configured geometry.
func (c *Config) SlotGeometry() slots.Geometry {
	return slots.Geometry{Count: c.Geometry.SlotCount, Size: c.Geometry.SlotSize}
}

// RecordSize returns header plus payload in bytes.
func (c *Config) RecordSize() int {
	return codec.HeaderSize + c.Record.PayloadSize
}

// DeviceSize returns the configured image size, or the size the geometry
// needs when none is set.
func (c *Config) DeviceSize() int {
	if c.Device.Size > 0 {
		return c.Device.Size
	}
	return c.SlotGeometry().Span(c.RecordSize())
}

// Validate checks field constraints and that the geometry can hold the record.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	geometry := c.SlotGeometry()
	if err := geometry.Validate(c.RecordSize()); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}
	if need := geometry.Span(c.RecordSize()); c.DeviceSize() < need {
		return fmt.Errorf("invalid device size: %d bytes cannot hold %d slots (%d bytes)",
			c.DeviceSize(), geometry.Count, need)
	}
	if c.Device.Backend == BackendPebble {
		if _, err := device.ParseImageID(c.Device.ImageID); err != nil {
			return err
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		messages = append(messages, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

// LoadConfig loads and validates configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields missing from the file keep their defaults
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// BootstrapConfig creates and saves a new configuration. Pebble images get
// a freshly generated image id.
func BootstrapConfig(configPath string, base *Config) (*Config, error) {
	config := base
	if config == nil {
		config = DefaultConfig()
	}

	if config.Device.Backend == BackendPebble && config.Device.ImageID == "" {
		config.Device.ImageID = device.NewImageID().String()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./nvrec.yaml"
	}

	// For Linux/macOS, use ~/.config/nvrec/config.yaml
	return filepath.Join(homeDir, ".config", "nvrec", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

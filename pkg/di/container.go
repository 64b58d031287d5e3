// Package di wires configuration into devices and record managers
package di

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ssargent/nvrec/pkg/config"
	"github.com/ssargent/nvrec/pkg/device"
	"github.com/ssargent/nvrec/pkg/logging"
	"github.com/ssargent/nvrec/pkg/metrics"
	"github.com/ssargent/nvrec/pkg/record"
)

// Device is a block device that must be closed after use.
type Device interface {
	device.BlockDevice
	io.Closer
}

// DeviceFactory opens the device described by a configuration.
type DeviceFactory interface {
	OpenDevice(cfg *config.Config) (Device, error)
}

// DefaultDeviceFactory opens file, pebble and memory backends.
type DefaultDeviceFactory struct{}

// OpenDevice implements DeviceFactory.
func (DefaultDeviceFactory) OpenDevice(cfg *config.Config) (Device, error) {
	size := cfg.DeviceSize()

	switch cfg.Device.Backend {
	case config.BackendFile:
		return device.OpenFile(device.FileConfig{Path: cfg.Device.Path, Size: size})
	case config.BackendPebble:
		id, err := device.ParseImageID(cfg.Device.ImageID)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Device.Path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return device.OpenPebble(device.PebbleConfig{Dir: cfg.Device.Path, ImageID: id, Size: size})
	case config.BackendMemory:
		return memoryDevice{device.NewMemory(size)}, nil
	default:
		return nil, fmt.Errorf("unknown device backend %q", cfg.Device.Backend)
	}
}

type memoryDevice struct {
	*device.Memory
}

func (memoryDevice) Close() error { return nil }

// Container holds all the dependencies for the application
type Container struct {
	deviceFactory DeviceFactory
	logger        *logging.Logger
	metrics       *metrics.Metrics
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		deviceFactory: DefaultDeviceFactory{},
		logger:        logging.NoopLogger(),
		metrics:       metrics.New(),
	}
}

// SetDeviceFactory allows overriding the device factory (for testing)
func (c *Container) SetDeviceFactory(factory DeviceFactory) {
	c.deviceFactory = factory
}

// SetLogger replaces the logger handed to managers
func (c *Container) SetLogger(logger *logging.Logger) {
	c.logger = logger
}

// Logger returns the application logger
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Metrics returns the application metrics
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// OpenManager opens the configured device and builds a record manager on it.
// The returned closer releases the device.
func (c *Container) OpenManager(cfg *config.Config) (*record.Manager, io.Closer, error) {
	dev, err := c.deviceFactory.OpenDevice(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s device: %w", cfg.Device.Backend, err)
	}

	manager, err := record.New(dev, record.Config{
		Geometry:    cfg.SlotGeometry(),
		PayloadSize: cfg.Record.PayloadSize,
		Format:      cfg.Record.Format,
		CleanCopy:   cfg.Record.CleanCopy,
		SlotCache:   cfg.Record.SlotCache,
		Logger:      c.logger.WithDevice(cfg.Device.Backend),
		Metrics:     c.metrics,
	})
	if err != nil {
		_ = dev.Close()
		return nil, nil, err
	}
	manager.EnableDirtyChecking(cfg.Record.DirtyChecking)

	return manager, dev, nil
}

package device

// Observer receives physical traffic reports from an Instrumented device.
type Observer interface {
	ObserveDeviceRead(bytes int, err error)
	ObserveDeviceWrite(addr, bytes int, err error)
}

// Instrumented reports every block transfer of the wrapped device to an Observer.
type Instrumented struct {
	dev BlockDevice
	obs Observer
}

// NewInstrumented wraps dev. A nil observer returns dev unchanged.
func NewInstrumented(dev BlockDevice, obs Observer) BlockDevice {
	if obs == nil {
		return dev
	}
	return &Instrumented{dev: dev, obs: obs}
}

func (d *Instrumented) ReadBlock(p []byte, addr int) error {
	err := d.dev.ReadBlock(p, addr)
	d.obs.ObserveDeviceRead(len(p), err)
	return err
}

func (d *Instrumented) WriteBlock(p []byte, addr int) error {
	err := d.dev.WriteBlock(p, addr)
	d.obs.ObserveDeviceWrite(addr, len(p), err)
	return err
}

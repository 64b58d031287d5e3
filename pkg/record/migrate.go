package record

// Migrator initializes payload fields introduced after the format that was
// found on the device. storedFormat is 0 when nothing trustworthy was loaded.
// Fields populated by the device read must be left untouched.
type Migrator interface {
	InitializeNewFields(storedFormat uint16, payload []byte)
}

// MigratorFunc adapts a function to the Migrator interface.
type MigratorFunc func(storedFormat uint16, payload []byte)

// InitializeNewFields calls f.
func (f MigratorFunc) InitializeNewFields(storedFormat uint16, payload []byte) {
	f(storedFormat, payload)
}

// Migration sets the defaults of the fields added in Format.
type Migration struct {
	Format uint16
	Apply  func(payload []byte)
}

// Migrations applies, in order, every step newer than the stored format.
type Migrations []Migration

// InitializeNewFields implements Migrator.
func (ms Migrations) InitializeNewFields(storedFormat uint16, payload []byte) {
	for _, m := range ms {
		if storedFormat < m.Format {
			m.Apply(payload)
		}
	}
}

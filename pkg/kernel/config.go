package kernel

import (
	"io"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config collects the compile-time tunables of §6 so that a boot-time TOML
// document can override them without recompiling. Each field's toml tag
// names the key a boot configuration file uses for it.
type Config struct {
	StackSize    uintptr `toml:"stack_size"`
	HandleCount  int     `toml:"handle_count"`
	ArgvCap      int     `toml:"argv_cap"`
	NameSize     int     `toml:"name_size"`
	ReaperPeriod uint64  `toml:"reaper_period_ticks"`
}

// DefaultConfig returns the spec's suggested defaults.
func DefaultConfig() Config {
	return Config{
		StackSize:    16 * 1024,
		HandleCount:  64,
		ArgvCap:      32,
		NameSize:     64,
		ReaperPeriod: 100,
	}
}

// LoadConfig overlays a TOML document read from r onto the defaults. A
// field absent from the document keeps its default value.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "kernel: decoding boot configuration")
	}
	return cfg, nil
}

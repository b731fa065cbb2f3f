package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lautenbacher.net/spidev/spi"
	"lautenbacher.net/spidev/util"
)

// DeviceConfig addresses the spidev node to open and bounds the
// per-transfer length.
type DeviceConfig struct {
	Bus         int `yaml:"Bus"`
	Chip        int `yaml:"Chip"`
	MaxTransfer int `yaml:"MaxTransfer"`
}

// TransferConfig holds the per-transfer parameters applied to every
// exchange unless overridden on the command line or in the console.
// Zero values mean "use what the driver reported when the device was
// opened".
type TransferConfig struct {
	SpeedHz     uint32   `yaml:"SpeedHz"`
	BitsPerWord uint8    `yaml:"BitsPerWord"`
	Delay       Duration `yaml:"Delay"`
	CSChange    bool     `yaml:"CSChange"`
}

// MuxGPIOConfig lists the GPIO pins to pull low and high before
// transfers for one multiplexer target.
type MuxGPIOConfig struct {
	Low  []int `yaml:"Low"`
	High []int `yaml:"High"`
}

// MuxConfig describes an optional GPIO demultiplexer in front of the
// chip-select line. Select names the target activated at startup; an
// empty GPIO map disables multiplexing entirely.
type MuxConfig struct {
	Select string                   `yaml:"Select"`
	GPIO   map[string]MuxGPIOConfig `yaml:"GPIO"`
}

// ConsoleConfig tunes the interactive console.
type ConsoleConfig struct {
	HistorySize int `yaml:"HistorySize"`
}

// LoggingConfig selects level, format ("text" or "json") and an
// optional log file.
type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

type Config struct {
	Device   DeviceConfig      `yaml:"Device"`
	Transfer TransferConfig    `yaml:"Transfer"`
	Mux      MuxConfig         `yaml:"Mux"`
	Presets  map[string]string `yaml:"Presets"`
	Console  ConsoleConfig     `yaml:"Console"`
	Logging  LoggingConfig     `yaml:"Logging"`

	// Configfile records where the config was read from, for reloads.
	Configfile string `yaml:"-"`
}

// Default returns a configuration that opens /dev/spidev0.0 with the
// driver's own settings.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Device.MaxTransfer == 0 {
		c.Device.MaxTransfer = spi.DefaultMaxTransfer
	}
	if c.Console.HistorySize == 0 {
		c.Console.HistorySize = 200
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// ReadConfig loads and validates the YAML configuration at cfile.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("opening config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := &Config{}
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile
	conf.applyDefaults()

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Validate checks the configuration for values the device layer would
// reject later, so mistakes surface at startup with a usable message.
func (c *Config) Validate() error {
	if c.Device.Bus < 0 || c.Device.Chip < 0 {
		return fmt.Errorf("Device.Bus and Device.Chip must not be negative (got %d.%d)",
			c.Device.Bus, c.Device.Chip)
	}
	if c.Device.MaxTransfer < 0 {
		return fmt.Errorf("Device.MaxTransfer must not be negative (got %d)", c.Device.MaxTransfer)
	}
	if c.Transfer.Delay < 0 {
		return fmt.Errorf("Transfer.Delay must not be negative (got %s)", c.Transfer.Delay)
	}
	if c.Transfer.Delay.Duration().Microseconds() > 65535 {
		return fmt.Errorf("Transfer.Delay must fit in 16 bits of microseconds (got %s)", c.Transfer.Delay)
	}
	if b := c.Transfer.BitsPerWord; b != 0 && b != 8 && b != 16 && b != 32 {
		return fmt.Errorf("Transfer.BitsPerWord must be 8, 16 or 32 (got %d)", b)
	}
	if c.Console.HistorySize < 1 {
		return fmt.Errorf("Console.HistorySize must be at least 1 (got %d)", c.Console.HistorySize)
	}

	switch c.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("Logging.Level must be one of DEBUG, INFO, WARN, ERROR (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("Logging.Format must be \"text\" or \"json\" (got %q)", c.Logging.Format)
	}

	if c.Mux.Select != "" {
		if _, ok := c.Mux.GPIO[c.Mux.Select]; !ok {
			return fmt.Errorf("Mux.Select names unknown target %q", c.Mux.Select)
		}
	}
	for name, gpio := range c.Mux.GPIO {
		for _, pin := range append(append([]int{}, gpio.Low...), gpio.High...) {
			if pin < 0 || pin > 27 {
				return fmt.Errorf("Mux.GPIO[%s]: pin %d outside the usable GPIO range 0-27", name, pin)
			}
		}
	}

	for name, bytes := range c.Presets {
		if name == "" {
			return fmt.Errorf("Presets must not contain an empty name")
		}
		if _, err := util.ParseBytes(bytes); err != nil {
			return fmt.Errorf("Presets[%s]: %w", name, err)
		}
	}
	return nil
}

// TransferOptions translates the configured per-transfer parameters
// into options for spi.Device.Transfer. Zero values contribute no
// option, so the device falls back to its open-time settings.
func (c *Config) TransferOptions() []spi.TransferOption {
	var opts []spi.TransferOption
	if c.Transfer.SpeedHz != 0 {
		opts = append(opts, spi.WithSpeedHz(c.Transfer.SpeedHz))
	}
	if c.Transfer.BitsPerWord != 0 {
		opts = append(opts, spi.WithBitsPerWord(c.Transfer.BitsPerWord))
	}
	if c.Transfer.Delay != 0 {
		opts = append(opts, spi.WithDelay(c.Transfer.Delay.Duration()))
	}
	if c.Transfer.CSChange {
		opts = append(opts, spi.WithCSChange())
	}
	return opts
}

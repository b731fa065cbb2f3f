package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lautenbacher.net/spidev/config"
	"lautenbacher.net/spidev/logging"
	"lautenbacher.net/spidev/mux"
	"lautenbacher.net/spidev/spi"
	"lautenbacher.net/spidev/tui"
	"lautenbacher.net/spidev/util"
)

type cliOptions struct {
	configFile string
	bus        int
	chip       int
	simulate   bool
	send       string
	minResp    int
	muxTarget  string
}

func parseFlags() *cliOptions {
	opts := &cliOptions{}
	flag.StringVar(&opts.configFile, "config", "spidev.yml", "Path to the configuration file")
	flag.IntVar(&opts.bus, "bus", -1, "SPI bus number, overrides the config file")
	flag.IntVar(&opts.chip, "chip", -1, "Chip select number, overrides the config file")
	flag.BoolVar(&opts.simulate, "sim", false, "Use a loopback device instead of real hardware")
	flag.StringVar(&opts.send, "hex", "", "Send the given hex bytes (or preset name) once and exit")
	flag.IntVar(&opts.minResp, "min", 0, "Minimum number of bytes to read in -hex mode")
	flag.StringVar(&opts.muxTarget, "mux", "", "Multiplexer target to select, overrides the config file")
	flag.Parse()
	return opts
}

// exit code used internally to request a restart with fresh config.
const restartCode = 3

func main() {
	opts := parseFlags()

	conf, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	interactive := opts.send == ""
	if err := logging.Init(interactive, conf.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Can't initialize logging: %v\n", err)
		os.Exit(2)
	}

	code := run(opts, conf, interactive)
	for code == restartCode {
		// Reload requested. An invalid new config keeps the old one
		// running rather than taking the tool down.
		if newConf, err := loadConfig(opts); err != nil {
			slog.Error("Keeping previous configuration", "error", err)
		} else {
			conf = newConf
		}
		code = run(opts, conf, interactive)
	}

	logging.Close()
	os.Exit(code)
}

func loadConfig(opts *cliOptions) (*config.Config, error) {
	conf, err := config.ReadConfig(opts.configFile)
	if err != nil {
		// A missing config file is fine unless the user asked for it
		// explicitly; everything has usable defaults.
		if errors.Is(err, os.ErrNotExist) && !flagWasSet("config") {
			conf = config.Default()
		} else {
			return nil, err
		}
	}
	if opts.bus >= 0 {
		conf.Device.Bus = opts.bus
	}
	if opts.chip >= 0 {
		conf.Device.Chip = opts.chip
	}
	if opts.muxTarget != "" {
		conf.Mux.Select = opts.muxTarget
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func run(opts *cliOptions, conf *config.Config, interactive bool) int {
	dev, err := openDevice(opts, conf)
	if err != nil {
		slog.Error("Can't open SPI device", "error", err)
		return 1
	}
	defer dev.Close()

	// The loopback device has no chip-select line, so simulation runs
	// without a multiplexer even when the config defines one.
	var muxTargets map[string]config.MuxGPIOConfig
	if !opts.simulate {
		muxTargets = conf.Mux.GPIO
	}
	m := mux.New(muxTargets)
	if len(muxTargets) > 0 {
		if err := m.Start(); err != nil {
			slog.Error("Can't start multiplexer", "error", err)
			return 1
		}
		defer m.Stop()
		if conf.Mux.Select != "" {
			if err := m.Select(conf.Mux.Select); err != nil {
				slog.Error("Can't select multiplexer target", "error", err)
				return 1
			}
		}
	}

	if !interactive {
		return runOnce(dev, conf, opts)
	}
	return runConsole(dev, m, conf)
}

func openDevice(opts *cliOptions, conf *config.Config) (*spi.Device, error) {
	if opts.simulate {
		dev := spi.Loopback(nil, spi.WithMaxTransfer(conf.Device.MaxTransfer))
		slog.Info("Using simulated loopback device")
		return dev, nil
	}
	dev, err := spi.Open(conf.Device.Bus, conf.Device.Chip,
		spi.WithMaxTransfer(conf.Device.MaxTransfer))
	if err != nil {
		return nil, err
	}
	slog.Info("SPI device opened",
		"path", dev.Path(),
		"mode", dev.Mode(),
		"bits", dev.BitsPerWord(),
		"speed_hz", dev.MaxSpeedHz())
	return dev, nil
}

// runOnce executes a single transfer for -hex and prints the received
// bytes on stdout.
func runOnce(dev *spi.Device, conf *config.Config, opts *cliOptions) int {
	line := opts.send
	if preset, ok := conf.Presets[line]; ok {
		line = preset
	}
	tx, err := util.ParseBytes(line)
	if err != nil {
		slog.Error("Can't parse bytes to send", "error", err)
		return 1
	}

	xfer := conf.TransferOptions()
	if opts.minResp > 0 {
		xfer = append(xfer, spi.WithMinResponse(opts.minResp))
	}
	rx, err := dev.Transfer(tx, xfer...)
	if err != nil {
		slog.Error("Transfer failed", "error", err)
		return 1
	}
	fmt.Println(util.FormatBytes(rx))
	return 0
}

// runConsole runs the interactive TUI until the user quits. A SIGHUP,
// from the keyboard or from an edited config file, tears the console
// down and returns restartCode so main re-reads the config and starts
// over with a freshly opened device.
func runConsole(dev *spi.Device, m *mux.Multiplexer, conf *config.Config) int {
	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(ossignal)

	console := tui.NewConsole(tui.Options{
		Transfer: func(tx []byte) ([]byte, error) {
			return dev.Transfer(tx, conf.TransferOptions()...)
		},
		Presets:      conf.Presets,
		SelectTarget: muxSelector(m),
		Targets:      m.Names(),
		DeviceInfo:   deviceInfo(dev),
		HistorySize:  conf.Console.HistorySize,
		Signal:       ossignal,
	})

	if err := logging.SetOutput(console.LogWriter()); err != nil {
		slog.Error("Can't route logs to the console", "error", err)
	}

	var watcher *config.Watcher
	if conf.Configfile != "" {
		w, err := config.NewWatcher(conf.Configfile)
		if err != nil {
			slog.Warn("Config file watching disabled", "error", err)
		} else {
			watcher = w
			defer watcher.Close()
		}
	}

	uiDone := make(chan error, 1)
	go func() { uiDone <- console.Run() }()

	for {
		select {
		case err := <-uiDone:
			logging.Buffer()
			if err != nil {
				slog.Error("Console failed", "error", err)
				return 1
			}
			// The console sends its quit/reload signal right around
			// stopping itself; pick it up if it is already there.
			select {
			case sig := <-ossignal:
				if sig == syscall.SIGHUP {
					slog.Info("Restarting to pick up new configuration")
					return restartCode
				}
			default:
			}
			return 0
		case sig := <-ossignal:
			console.Stop()
			<-uiDone
			logging.Buffer()
			if sig == syscall.SIGHUP {
				slog.Info("Restarting to pick up new configuration")
				return restartCode
			}
			slog.Info("Shutting down", "signal", sig)
			return 0
		case <-watcherChannel(watcher):
			slog.Info("Configuration changed on disk, restarting")
			console.Stop()
			<-uiDone
			logging.Buffer()
			return restartCode
		}
	}
}

func muxSelector(m *mux.Multiplexer) tui.SelectFunc {
	if len(m.Names()) == 0 {
		return nil
	}
	return m.Select
}

func deviceInfo(dev *spi.Device) string {
	return fmt.Sprintf("%s (mode %d, %d bits, %d Hz)",
		dev.Path(), dev.Mode(), dev.BitsPerWord(), dev.MaxSpeedHz())
}

// watcherChannel makes a nil watcher safe to select on.
func watcherChannel(w *config.Watcher) <-chan struct{} {
	if w == nil {
		return nil
	}
	return w.Updates().Channel()
}

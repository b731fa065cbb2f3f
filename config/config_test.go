package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const baseConfig = `
Device:
  Bus: 0
  Chip: 1
  MaxTransfer: 256
Transfer:
  SpeedHz: 500000
  BitsPerWord: 8
  Delay: 5us
  CSChange: false
Mux:
  Select: "adc"
  GPIO:
    adc:
      Low: [17]
      High: [22, 23]
    dac:
      Low: [22, 23]
      High: [17]
Presets:
  jedec-id: "9F 00 00 00"
  status: "05 00"
Console:
  HistorySize: 50
Logging:
  Level: "DEBUG"
  Format: "text"
  File: "/tmp/spidev.log"
`

func createConfigFile(t *testing.T, configData string) string {
	tempDir, err := os.MkdirTemp("", "spidev-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	configFile := filepath.Join(tempDir, "spidev.yml")
	err = os.WriteFile(configFile, []byte(configData), 0o644)
	if err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configFile
}

func TestReadConfig(t *testing.T) {
	configFile := createConfigFile(t, baseConfig)

	conf, err := ReadConfig(configFile)
	assert.NoError(t, err, "ReadConfig should not return an error")

	assert.Equal(t, 0, conf.Device.Bus)
	assert.Equal(t, 1, conf.Device.Chip)
	assert.Equal(t, 256, conf.Device.MaxTransfer)

	assert.Equal(t, uint32(500000), conf.Transfer.SpeedHz)
	assert.Equal(t, uint8(8), conf.Transfer.BitsPerWord)
	assert.Equal(t, 5*time.Microsecond, conf.Transfer.Delay.Duration())

	assert.Equal(t, "adc", conf.Mux.Select)
	assert.Equal(t, []int{17}, conf.Mux.GPIO["adc"].Low)
	assert.Equal(t, []int{22, 23}, conf.Mux.GPIO["adc"].High)

	assert.Equal(t, "9F 00 00 00", conf.Presets["jedec-id"])
	assert.Equal(t, 50, conf.Console.HistorySize)

	assert.Equal(t, "DEBUG", conf.Logging.Level)
	assert.Equal(t, "text", conf.Logging.Format)
	assert.Equal(t, "/tmp/spidev.log", conf.Logging.File)

	assert.Equal(t, configFile, conf.Configfile)
}

func TestReadConfig_Defaults(t *testing.T) {
	configFile := createConfigFile(t, "Device:\n  Bus: 0\n  Chip: 0\n")

	conf, err := ReadConfig(configFile)
	assert.NoError(t, err)
	assert.Equal(t, 4096, conf.Device.MaxTransfer, "MaxTransfer should default to the kernel buffer size")
	assert.Equal(t, 200, conf.Console.HistorySize)
	assert.Equal(t, "INFO", conf.Logging.Level)
	assert.Equal(t, "text", conf.Logging.Format)
	assert.Zero(t, conf.Transfer.SpeedHz, "unset transfer settings stay zero, meaning driver defaults")
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig("/nonexistent/spidev.yml")
	assert.Error(t, err)
}

func TestReadConfig_UnknownField(t *testing.T) {
	configFile := createConfigFile(t, "Device:\n  Buss: 0\n")
	_, err := ReadConfig(configFile)
	assert.Error(t, err, "unknown fields should be rejected, they are usually typos")
}

func TestReadConfig_NegativeBus(t *testing.T) {
	configData := strings.Replace(baseConfig, "Bus: 0", "Bus: -1", 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestReadConfig_BadBitsPerWord(t *testing.T) {
	configData := strings.Replace(baseConfig, "BitsPerWord: 8", "BitsPerWord: 7", 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be 8, 16 or 32")
}

func TestReadConfig_DelayTooLarge(t *testing.T) {
	configData := strings.Replace(baseConfig, "Delay: 5us", "Delay: 100ms", 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "16 bits")
}

func TestReadConfig_UnknownMuxSelect(t *testing.T) {
	configData := strings.Replace(baseConfig, `Select: "adc"`, `Select: "nope"`, 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")
}

func TestReadConfig_BadMuxPin(t *testing.T) {
	configData := strings.Replace(baseConfig, "Low: [17]", "Low: [99]", 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GPIO range")
}

func TestReadConfig_BadPreset(t *testing.T) {
	configData := strings.Replace(baseConfig, `status: "05 00"`, `status: "0z 00"`, 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Presets[status]")
}

func TestReadConfig_BadLogLevel(t *testing.T) {
	configData := strings.Replace(baseConfig, `Level: "DEBUG"`, `Level: "TRACE"`, 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Logging.Level")
}

func TestTransferOptions(t *testing.T) {
	conf := Default()
	assert.Empty(t, conf.TransferOptions(), "driver defaults mean no explicit options")

	conf.Transfer.SpeedHz = 1000000
	conf.Transfer.CSChange = true
	assert.Len(t, conf.TransferOptions(), 2)
}

func TestDurationDecoding(t *testing.T) {
	configData := strings.Replace(baseConfig, "Delay: 5us", "Delay: 1500", 1)
	configFile := createConfigFile(t, configData)

	conf, err := ReadConfig(configFile)
	assert.NoError(t, err)
	assert.Equal(t, 1500*time.Nanosecond, conf.Transfer.Delay.Duration(),
		"bare integers count nanoseconds")

	configData = strings.Replace(baseConfig, "Delay: 5us", "Delay: bogus", 1)
	configFile = createConfigFile(t, configData)
	_, err = ReadConfig(configFile)
	assert.Error(t, err)
}

func TestWatcherReload(t *testing.T) {
	configFile := createConfigFile(t, baseConfig)

	w, err := NewWatcher(configFile)
	assert.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	updated := strings.Replace(baseConfig, "HistorySize: 50", "HistorySize: 75", 1)
	err = os.WriteFile(configFile, []byte(updated), 0o644)
	assert.NoError(t, err)

	select {
	case <-w.Updates().Channel():
		conf := w.Updates().Get()
		assert.Equal(t, 75, conf.Console.HistorySize)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for config reload")
	}
}

func TestWatcherIgnoresBrokenConfig(t *testing.T) {
	configFile := createConfigFile(t, baseConfig)

	w, err := NewWatcher(configFile)
	assert.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	err = os.WriteFile(configFile, []byte("Device:\n  Bus: -5\n"), 0o644)
	assert.NoError(t, err)

	select {
	case <-w.Updates().Channel():
		t.Fatal("A failing config read must not publish an update")
	case <-time.After(500 * time.Millisecond):
		// No update arrived, as expected.
	}
}

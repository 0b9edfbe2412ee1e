package directory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingConfigPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load(missingConfigPath(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "esp32c6", cfg.Chip)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, Offset(0), cfg.FlashOffset)
	assert.Equal(t, 120*time.Second, cfg.FlashTimeout)
	assert.Equal(t, 2*time.Second, cfg.SettleTime)
	assert.Equal(t, 20*time.Second, cfg.MonitorDuration)
	assert.Equal(t, "line", cfg.MonitorMode)
	assert.Equal(t, 8080, cfg.PortNumber)
	assert.Equal(t, DefaultSignatures(), cfg.Signatures)
	assert.Equal(t, filepath.Join(cfg.SDVolume, MarkerFileName), cfg.MarkerPath)
	assert.True(t, cfg.RequireMount)
}

func TestLoad_configFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "chip: esp32c3\nflash-offset: \"0x10000\"\nflash-timeout: 30s\nsd-volume: /mnt/sd\nsignatures:\n  - 1a86:7523\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "esp32c3", cfg.Chip)
	assert.Equal(t, Offset(0x10000), cfg.FlashOffset)
	assert.Equal(t, 30*time.Second, cfg.FlashTimeout)
	assert.Equal(t, []string{"1a86:7523"}, cfg.Signatures)
	assert.Equal(t, filepath.Join("/mnt/sd", MarkerFileName), cfg.MarkerPath)
}

func TestLoad_malformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chip: [unterminated\n"), 0644))

	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestLoad_environment(t *testing.T) {
	t.Setenv("C6_DEVICE_PATH", "/dev/ttyUSB7")
	t.Setenv("C6_BAUD_RATE", "460800")
	t.Setenv("C6_MONITOR_RESET", "true")
	t.Setenv("C6_SIGNATURES", "0403:6001,10C4:EA60")

	cfg, err := Load(missingConfigPath(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB7", cfg.DevicePath)
	assert.Equal(t, 460800, cfg.BaudRate)
	assert.True(t, cfg.MonitorReset)
	assert.Equal(t, []string{"0403:6001", "10C4:EA60"}, cfg.Signatures)
}

func TestLoad_flagsOverrideEnvironment(t *testing.T) {
	t.Setenv("C6_CHIP", "esp32s3")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(ChipKey, "esp32c6", "")
	flags.String(FlashOffsetKey, "0x0", "")
	flags.Duration(SettleTimeKey, 2*time.Second, "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{"--chip", "esp32", "--flash-offset", "4096", "--settle-time", "500ms"}))

	cfg, err := Load(missingConfigPath(t), flags)
	require.NoError(t, err)
	assert.Equal(t, "esp32", cfg.Chip)
	assert.Equal(t, Offset(4096), cfg.FlashOffset)
	assert.Equal(t, 500*time.Millisecond, cfg.SettleTime)
}

func TestLoad_unchangedFlagKeepsEnvironment(t *testing.T) {
	t.Setenv("C6_CHIP", "esp32s3")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(ChipKey, "esp32c6", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(missingConfigPath(t), flags)
	require.NoError(t, err)
	assert.Equal(t, "esp32s3", cfg.Chip)
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{name: "offset", env: "C6_FLASH_OFFSET", val: "0xzz"},
		{name: "baud", env: "C6_BAUD_RATE", val: "0"},
		{name: "port", env: "C6_PORT_NUMBER", val: "70000"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv(test.env, test.val)
			_, err := Load(missingConfigPath(t), nil)
			assert.Error(t, err)
		})
	}
}

func TestOffset_String(t *testing.T) {
	assert.Equal(t, "0x0", Offset(0).String())
	assert.Equal(t, "0x10000", Offset(0x10000).String())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "C6_TOOL_PATH", EnvName(ToolPathKey))
	assert.Equal(t, "C6_MONITOR_DURATION", EnvName(MonitorDurationKey))
}

// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// UserConfigPathEnv if set, will load the user config from that path.
	UserConfigPathEnv = "C6_CONFIG_PATH"
	// EnvPrefix is prepended to every configuration key looked up in the
	// environment. 'device-path' is read from C6_DEVICE_PATH.
	EnvPrefix = "C6"

	// FirmwareFileName is the name the main processor's SD loader looks for.
	FirmwareFileName = "c6_firmware.bin"
	// MarkerFileName is the bridge mode marker left on the SD card.
	MarkerFileName = "c6_firmware_backup.bin"
)

// Configuration keys. They double as flag names.
const (
	DevicePathKey      = "device-path"
	MainPortKey        = "main-port"
	ToolPathKey        = "tool-path"
	ToolMinVersionKey  = "tool-min-version"
	FirmwarePathKey    = "firmware-path"
	MarkerPathKey      = "marker-path"
	SDVolumeKey        = "sd-volume"
	MountWaitKey       = "mount-wait"
	RequireMountKey    = "sd-require-mount"
	ChipKey            = "chip"
	BaudRateKey        = "baud-rate"
	FlashOffsetKey     = "flash-offset"
	FlashTimeoutKey    = "flash-timeout"
	SettleTimeKey      = "settle-time"
	SignaturesKey      = "signatures"
	MonitorDurationKey = "monitor-duration"
	MonitorModeKey     = "monitor-mode"
	MonitorResetKey    = "monitor-reset"
	PortNumberKey      = "port-number"
	ServeDirKey        = "serve-dir"
)

// Offset is a flash address. It decodes from decimal or 0x-prefixed strings.
type Offset uint32

func (o Offset) String() string {
	return fmt.Sprintf("0x%x", uint32(o))
}

// Config holds every tunable of the bring-up tools.
type Config struct {
	DevicePath      string        `mapstructure:"device-path"`
	MainPort        string        `mapstructure:"main-port"`
	ToolPath        string        `mapstructure:"tool-path"`
	ToolMinVersion  string        `mapstructure:"tool-min-version"`
	FirmwarePath    string        `mapstructure:"firmware-path"`
	MarkerPath      string        `mapstructure:"marker-path"`
	SDVolume        string        `mapstructure:"sd-volume"`
	MountWait       time.Duration `mapstructure:"mount-wait"`
	RequireMount    bool          `mapstructure:"sd-require-mount"`
	Chip            string        `mapstructure:"chip"`
	BaudRate        int           `mapstructure:"baud-rate"`
	FlashOffset     Offset        `mapstructure:"flash-offset"`
	FlashTimeout    time.Duration `mapstructure:"flash-timeout"`
	SettleTime      time.Duration `mapstructure:"settle-time"`
	Signatures      []string      `mapstructure:"signatures"`
	MonitorDuration time.Duration `mapstructure:"monitor-duration"`
	MonitorMode     string        `mapstructure:"monitor-mode"`
	MonitorReset    bool          `mapstructure:"monitor-reset"`
	PortNumber      int           `mapstructure:"port-number"`
	ServeDir        string        `mapstructure:"serve-dir"`
}

// DefaultSignatures are the USB VID:PID pairs of the co-processor's native
// USB-Serial/JTAG and the common USB-UART bridges wired to its UART pins.
func DefaultSignatures() []string {
	return []string{
		"303A:1001", // Espressif USB-Serial/JTAG
		"10C4:EA60", // CP210x
		"1A86:7523", // CH340
		"1A86:55D4", // CH9102
		"0403:6001", // FT232R
	}
}

func defaultDevicePath() string {
	switch runtime.GOOS {
	case "darwin":
		return "/dev/cu.usbmodem2101"
	case "windows":
		return "COM3"
	default:
		return "/dev/ttyACM0"
	}
}

func defaultSDVolume() string {
	if runtime.GOOS == "darwin" {
		return "/Volumes/SD32G"
	}
	return "/media/sdcard"
}

// Defaults returns the built-in value for every key.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		DevicePathKey:      defaultDevicePath(),
		MainPortKey:        defaultDevicePath(),
		ToolPathKey:        "",
		ToolMinVersionKey:  "4.5.0",
		FirmwarePathKey:    FirmwareFileName,
		MarkerPathKey:      "",
		SDVolumeKey:        defaultSDVolume(),
		MountWaitKey:       time.Duration(0),
		RequireMountKey:    true,
		ChipKey:            "esp32c6",
		BaudRateKey:        115200,
		FlashOffsetKey:     "0x0",
		FlashTimeoutKey:    120 * time.Second,
		SettleTimeKey:      2 * time.Second,
		SignaturesKey:      DefaultSignatures(),
		MonitorDurationKey: 20 * time.Second,
		MonitorModeKey:     "line",
		MonitorResetKey:    false,
		PortNumberKey:      8080,
		ServeDirKey:        ".",
	}
}

// EnvName returns the environment variable read for key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func GetUserConfigPath() (string, error) {
	if path, ok := os.LookupEnv(UserConfigPathEnv); ok {
		return path, nil
	}

	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homedir, ".config", "c6tools", "config.yaml"), nil
}

// GetUserConfig builds a viper instance layered as defaults, config file,
// environment and finally any flags bound later with BindPFlags. An empty
// path falls back to GetUserConfigPath. A missing file is not an error.
func GetUserConfig(path string) (*viper.Viper, error) {
	if path == "" {
		var err error
		if path, err = GetUserConfigPath(); err != nil {
			return nil, fmt.Errorf("failed to get user config path: %w", err)
		}
	}

	cfg := viper.New()
	for key, value := range Defaults() {
		cfg.SetDefault(key, value)
	}
	cfg.SetEnvPrefix(EnvPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()

	cfg.SetConfigType("yaml")
	cfg.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read user config: %w", err)
		}
	}
	return cfg, nil
}

// Load reads the user config and overlays the given flags. Only flags whose
// name is a configuration key take part.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := GetUserConfig(path)
	if err != nil {
		return nil, err
	}
	if flags != nil {
		keys := Defaults()
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if _, ok := keys[f.Name]; ok && bindErr == nil {
				bindErr = cfg.BindPFlag(f.Name, f)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}
	return Decode(cfg)
}

// Decode turns a populated viper instance into a Config.
func Decode(cfg *viper.Viper) (*Config, error) {
	var res Config
	err := cfg.Unmarshal(&res, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		offsetHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if res.MarkerPath == "" {
		res.MarkerPath = filepath.Join(res.SDVolume, MarkerFileName)
	}
	if res.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid configuration: %s must be positive, got %d", BaudRateKey, res.BaudRate)
	}
	if res.PortNumber <= 0 || res.PortNumber > 65535 {
		return nil, fmt.Errorf("invalid configuration: %s must be a TCP port, got %d", PortNumberKey, res.PortNumber)
	}
	return &res, nil
}

func offsetHookFunc() mapstructure.DecodeHookFuncType {
	offsetType := reflect.TypeOf(Offset(0))
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != offsetType || f.Kind() != reflect.String {
			return data, nil
		}
		v, err := strconv.ParseUint(strings.TrimSpace(data.(string)), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid flash offset '%s': %w", data, err)
		}
		return Offset(v), nil
	}
}

// Executable appends the platform's executable suffix.
func Executable(str string) string {
	if runtime.GOOS == "windows" {
		return str + ".exe"
	}
	return str
}

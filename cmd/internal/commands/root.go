// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tab5-bringup/c6tools/cmd/internal/directory"
)

type ctxKey string

const (
	ctxKeyInfo ctxKey = "info"
)

type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
	Release bool   `mapstructure:"release" yaml:"release" json:"release"`
}

func SetInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKeyInfo, info)
}

func GetInfo(ctx context.Context) Info {
	info, _ := ctx.Value(ctxKeyInfo).(Info)
	return info
}

var flagUsage = map[string]string{
	directory.DevicePathKey:      "serial device to monitor",
	directory.MainPortKey:        "serial port of the main processor, used to reset it",
	directory.ToolPathKey:        "esptool executable or the python interpreter that has esptool installed",
	directory.ToolMinVersionKey:  "minimum esptool version",
	directory.FirmwarePathKey:    "firmware image to flash",
	directory.MarkerPathKey:      "bridge mode marker file (default <sd-volume>/" + directory.MarkerFileName + ")",
	directory.SDVolumeKey:        "mount point of the board's SD card",
	directory.MountWaitKey:       "how long to wait for the SD card to be mounted",
	directory.RequireMountKey:    "only accept an sd-volume that is a mount point",
	directory.ChipKey:            "chip of the target device",
	directory.BaudRateKey:        "serial baud rate",
	directory.FlashOffsetKey:     "flash address the image is written to",
	directory.FlashTimeoutKey:    "timeout for a single esptool run",
	directory.SettleTimeKey:      "wait after resetting the main processor",
	directory.SignaturesKey:      "USB VID:PID pairs identifying the co-processor port",
	directory.MonitorDurationKey: "how long to read, 0 reads until interrupted",
	directory.MonitorModeKey:     "output mode, line or raw",
	directory.MonitorResetKey:    "pulse DTR to reset the device before reading",
	directory.PortNumberKey:      "TCP port to serve on",
	directory.ServeDirKey:        "directory holding the firmware files",
}

// addConfigFlags registers persistent flags for the given configuration keys
// so that subcommands like 'config' see them too.
func addConfigFlags(cmd *cobra.Command, keys ...string) {
	defaults := directory.Defaults()
	flags := cmd.PersistentFlags()
	for _, key := range keys {
		usage := flagUsage[key] + " (env " + directory.EnvName(key) + ")"
		switch v := defaults[key].(type) {
		case string:
			flags.String(key, v, usage)
		case int:
			flags.Int(key, v, usage)
		case bool:
			flags.Bool(key, v, usage)
		case time.Duration:
			flags.Duration(key, v, usage)
		case []string:
			flags.StringSlice(key, v, usage)
		default:
			panic("unsupported default type for " + key)
		}
	}
}

// newRootCmd builds the top level command of one of the executables.
func newRootCmd(info Info, use string, short string, long string, keys ...string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          use,
		Short:        short,
		Long:         long,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "config file (default ~/.config/c6tools/config.yaml, env "+directory.UserConfigPathEnv+")")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "print debug logging")
	addConfigFlags(cmd, keys...)

	cmd.AddCommand(
		ConfigCmd(),
		VersionCmd(info),
	)
	return cmd
}

func loadConfig(cmd *cobra.Command) (*directory.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return directory.Load(path, cmd.Flags())
}

// newLogger returns the diagnostics logger. Operator facing output goes to
// cmd.OutOrStdout() instead.
func newLogger(cmd *cobra.Command) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tab5-bringup/c6tools/cmd/internal/directory"
	"gopkg.in/yaml.v2"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: "Print the configuration after applying the config file, the environment\n" +
			"and the command line flags, in the format of the config file.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			if path == "" {
				if path, err = directory.GetUserConfigPath(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
			return writeConfig(cmd.OutOrStdout(), cfg)
		},
	}
	return cmd
}

func writeConfig(w io.Writer, cfg *directory.Config) error {
	doc := yaml.MapSlice{
		{Key: directory.DevicePathKey, Value: cfg.DevicePath},
		{Key: directory.MainPortKey, Value: cfg.MainPort},
		{Key: directory.ToolPathKey, Value: cfg.ToolPath},
		{Key: directory.ToolMinVersionKey, Value: cfg.ToolMinVersion},
		{Key: directory.FirmwarePathKey, Value: cfg.FirmwarePath},
		{Key: directory.MarkerPathKey, Value: cfg.MarkerPath},
		{Key: directory.SDVolumeKey, Value: cfg.SDVolume},
		{Key: directory.MountWaitKey, Value: cfg.MountWait.String()},
		{Key: directory.RequireMountKey, Value: cfg.RequireMount},
		{Key: directory.ChipKey, Value: cfg.Chip},
		{Key: directory.BaudRateKey, Value: cfg.BaudRate},
		{Key: directory.FlashOffsetKey, Value: cfg.FlashOffset.String()},
		{Key: directory.FlashTimeoutKey, Value: cfg.FlashTimeout.String()},
		{Key: directory.SettleTimeKey, Value: cfg.SettleTime.String()},
		{Key: directory.SignaturesKey, Value: cfg.Signatures},
		{Key: directory.MonitorDurationKey, Value: cfg.MonitorDuration.String()},
		{Key: directory.MonitorModeKey, Value: cfg.MonitorMode},
		{Key: directory.MonitorResetKey, Value: cfg.MonitorReset},
		{Key: directory.PortNumberKey, Value: cfg.PortNumber},
		{Key: directory.ServeDirKey, Value: cfg.ServeDir},
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

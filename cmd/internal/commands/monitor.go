// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tab5-bringup/c6tools/cmd/internal/directory"
	"github.com/tab5-bringup/c6tools/cmd/internal/serialmon"
)

func MonitorCmd(info Info) *cobra.Command {
	cmd := newRootCmd(info, "c6monitor",
		"Monitor the serial output of the co-processor",
		"Print what the co-processor writes on its serial port.\n\n"+
			"Invalid UTF-8 is dropped. Reading stops after the configured duration or\n"+
			"when interrupted with Ctrl-C.",
		directory.DevicePathKey,
		directory.BaudRateKey,
		directory.MonitorDurationKey,
		directory.MonitorModeKey,
		directory.MonitorResetKey,
	)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cmd)
		out := cmd.OutOrStdout()

		mode, err := serialmon.ParseMode(cfg.MonitorMode)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Starting serial monitor of port '%s' ...\n", cfg.DevicePath)
		if cfg.MonitorDuration > 0 {
			fmt.Fprintf(out, "Reading for %s. Press Ctrl+C to stop early.\n", cfg.MonitorDuration)
		} else {
			fmt.Fprintln(out, "Press Ctrl+C to stop.")
		}
		fmt.Fprintln(out, "------------------------------------------------------------")

		port, err := serialmon.Open(cfg.DevicePath, cfg.BaudRate)
		if err != nil {
			return fmt.Errorf("%w\nCheck that the device is connected and that %s points at it",
				err, directory.EnvName(directory.DevicePathKey))
		}

		reason, err := serialmon.Run(ctx, port, out, serialmon.Options{
			Duration: cfg.MonitorDuration,
			Mode:     mode,
			Reset:    cfg.MonitorReset,
		})
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out, "\nExiting...")
				return nil
			}
			return fmt.Errorf("monitoring '%s' failed: %w\nThe device may have been unplugged or reset into another mode", cfg.DevicePath, err)
		}
		log.WithField("reason", reason).Debug("monitor stopped")

		fmt.Fprintln(out, "------------------------------------------------------------")
		switch reason {
		case serialmon.StoppedInterrupt:
			fmt.Fprintln(out, "\nExiting...")
		case serialmon.StoppedDuration:
			fmt.Fprintln(out, "Monitoring complete")
		}
		return nil
	}
	return cmd
}

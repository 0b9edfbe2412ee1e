// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tab5-bringup/c6tools/cmd/internal/directory"
	"github.com/tab5-bringup/c6tools/cmd/internal/sdcard"
)

func CleanCmd(info Info) *cobra.Command {
	cmd := newRootCmd(info, "c6clean",
		"Delete the co-processor firmware backup to leave bridge mode",
		"Delete the co-processor firmware backup from the board's SD card.\n\n"+
			"While the backup file exists the main processor boots into bridge mode and\n"+
			"forwards its USB serial port to the co-processor. Deleting the file makes the\n"+
			"board boot normally again.",
		directory.MarkerPathKey,
		directory.SDVolumeKey,
		directory.MountWaitKey,
		directory.RequireMountKey,
	)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cmd)
		out := cmd.OutOrStdout()

		if cfg.MountWait > 0 {
			fmt.Fprintf(out, "Waiting up to %s for '%s' to be mounted ...\n", cfg.MountWait, cfg.SDVolume)
			if err := sdcard.WaitForVolume(ctx, cfg.SDVolume, cfg.MountWait, cfg.RequireMount); err != nil {
				if ctx.Err() != nil {
					fmt.Fprintln(out, "\nExiting...")
					return nil
				}
				log.WithError(err).Debug("volume wait failed")
				fmt.Fprintf(out, "The SD card did not show up: %v\n", err)
			}
		}

		res, err := sdcard.RemoveMarker(cfg.MarkerPath)
		if err != nil {
			return err
		}
		log.WithField("path", cfg.MarkerPath).WithField("result", res).Debug("marker checked")

		switch res {
		case sdcard.Deleted:
			fmt.Fprintf(out, "Deleted %s\n", cfg.MarkerPath)
			fmt.Fprintln(out, "Bridge mode will be disabled on next boot")
		case sdcard.NotFound:
			fmt.Fprintf(out, "File not found: %s\n", cfg.MarkerPath)
			fmt.Fprintln(out, "The backup file may have already been deleted or the SD card is not mounted")
		}
		return nil
	}
	return cmd
}

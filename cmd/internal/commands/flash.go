// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tab5-bringup/c6tools/cmd/internal/directory"
	"github.com/tab5-bringup/c6tools/cmd/internal/esptool"
	"github.com/tab5-bringup/c6tools/cmd/internal/flasher"
	"go.bug.st/serial/enumerator"
)

func FlashCmd(info Info) *cobra.Command {
	cmd := newRootCmd(info, "c6flash",
		"Flash the co-processor firmware",
		"Flash the wireless co-processor with a firmware image.\n\n"+
			"The following methods are tried in order until one of them works:\n"+
			"  1. flash through a serial port that looks like the co-processor,\n"+
			"  2. reset the main processor so it lets go of the co-processor and look again,\n"+
			"  3. copy the image to the SD card for the main processor to flash on boot.\n"+
			"If everything fails, instructions for flashing by hand are printed.",
		directory.FirmwarePathKey,
		directory.ToolPathKey,
		directory.ToolMinVersionKey,
		directory.ChipKey,
		directory.BaudRateKey,
		directory.FlashOffsetKey,
		directory.FlashTimeoutKey,
		directory.MainPortKey,
		directory.SettleTimeKey,
		directory.SignaturesKey,
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

		fmt.Fprintln(out, "============================================================")
		fmt.Fprintf(out, "%s firmware flasher\n", cfg.Chip)
		fmt.Fprintln(out, "============================================================")

		if stat, err := os.Stat(cfg.FirmwarePath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("firmware file not found: '%s'", cfg.FirmwarePath)
			}
			return fmt.Errorf("can't stat firmware file '%s', reason: %w", cfg.FirmwarePath, err)
		} else if stat.IsDir() {
			return fmt.Errorf("firmware file '%s' is a directory", cfg.FirmwarePath)
		} else {
			fmt.Fprintf(out, "Firmware file: %s\n", cfg.FirmwarePath)
			fmt.Fprintf(out, "File size: %d bytes\n", stat.Size())
		}

		tool, err := checkEsptool(ctx, cfg, out)
		if ctx.Err() != nil {
			fmt.Fprintln(out, "\nInterrupted")
			return nil
		}
		if err != nil {
			return err
		}

		flash := func(ctx context.Context, port string) error {
			opts := esptool.FlashOptions{
				Chip:   cfg.Chip,
				Port:   port,
				Baud:   cfg.BaudRate,
				Offset: uint32(cfg.FlashOffset),
				Image:  cfg.FirmwarePath,
			}
			fmt.Fprintf(out, "Flashing device over serial on port '%s' ...\n", port)
			fmt.Fprintf(out, "Command: %s\n", tool.CommandLine(esptool.FlashArgs(opts)...))
			return tool.Flash(ctx, opts, cfg.FlashTimeout, out, cmd.ErrOrStderr())
		}

		direct := &flasher.Discovery{
			List:       enumerator.GetDetailedPortsList,
			Signatures: cfg.Signatures,
			Exclude:    []string{cfg.MainPort},
			Choose:     choosePort,
		}
		// In bridge mode the main processor's own port leads to the
		// co-processor, so it is a valid target after the reset.
		indirect := &flasher.Discovery{
			List:       enumerator.GetDetailedPortsList,
			Signatures: cfg.Signatures,
			Choose:     choosePort,
		}

		chain := &flasher.Chain{
			Strategies: []flasher.Strategy{
				&flasher.Direct{Discovery: direct, Flash: flash, Out: out},
				&flasher.Indirect{
					Reset:     flasher.SerialReset(cfg.MainPort, cfg.BaudRate),
					Settle:    cfg.SettleTime,
					Discovery: indirect,
					Flash:     flash,
					Out:       out,
				},
				&flasher.Bulk{
					Image:        cfg.FirmwarePath,
					Volume:       cfg.SDVolume,
					MountWait:    cfg.MountWait,
					RequireMount: cfg.RequireMount,
					Out:          out,
				},
			},
			Out: out,
			Log: log,
		}

		s, err := chain.Run(ctx)
		if ctx.Err() != nil {
			fmt.Fprintln(out, "\nInterrupted")
			return nil
		}
		if errors.Is(err, flasher.ErrExhausted) {
			flasher.WriteGuidance(out, cfg.Chip, cfg.FirmwarePath)
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSuccess! Firmware delivered by %s.\n", s.Description())
		return nil
	}

	cmd.AddCommand(PortsCmd())
	return cmd
}

func checkEsptool(ctx context.Context, cfg *directory.Config, out io.Writer) (*esptool.Tool, error) {
	tool, err := esptool.Resolve(cfg.ToolPath)
	if err == nil {
		v, perr := tool.Probe(ctx, cfg.ToolMinVersion)
		if perr == nil {
			fmt.Fprintf(out, "esptool found: %s (v%s)\n", tool.Path, v)
			return tool, nil
		}
		err = perr
	}
	return nil, fmt.Errorf("%w\nYou must install esptool ('pip install esptool') or source the ESP-IDF\n"+
		"export script, or point %s at esptool or at a python that has it installed", err, directory.EnvName(directory.ToolPathKey))
}

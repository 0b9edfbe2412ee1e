// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tab5-bringup/c6tools/cmd/internal/directory"
	"github.com/tab5-bringup/c6tools/cmd/internal/otaserver"
)

func ServeCmd(info Info) *cobra.Command {
	cmd := newRootCmd(info, "c6serve",
		"Serve firmware images for over-the-air updates",
		"Serve the firmware directory over HTTP so a device on the same network can\n"+
			"download an image. Every response allows cross-origin requests.",
		directory.PortNumberKey,
		directory.ServeDirKey,
	)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cmd)
		out := cmd.OutOrStdout()

		dir, err := filepath.Abs(cfg.ServeDir)
		if err != nil {
			return err
		}

		ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.PortNumber))
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w\nIs another server already running on it?", cfg.PortNumber, err)
		}

		requests := logrus.New()
		requests.SetOutput(out)
		requests.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

		ip := otaserver.LocalIP()
		fmt.Fprintf(out, "Serving '%s' on port %d\n", dir, cfg.PortNumber)
		fmt.Fprintf(out, "Local IP: %s\n", ip)
		fmt.Fprintf(out, "Server URL: http://%s:%d/\n", ip, cfg.PortNumber)
		files, err := otaserver.FirmwareFiles(dir)
		if err != nil {
			log.WithError(err).Warn("can't list firmware files")
		}
		if len(files) == 0 {
			fmt.Fprintln(out, "No firmware files found yet")
		}
		for _, f := range files {
			fmt.Fprintf(out, "Firmware URL: http://%s:%d/%s\n", ip, cfg.PortNumber, f)
		}
		fmt.Fprintln(out, "Press Ctrl+C to stop")

		go func() {
			if err := otaserver.Watch(ctx, dir, requests); err != nil {
				log.WithError(err).Warn("not watching for new firmware files")
			}
		}()

		if err := otaserver.Serve(ctx, ln, otaserver.Handler(dir, requests)); err != nil {
			return err
		}
		fmt.Fprintln(out, "\nServer stopped")
		return nil
	}
	return cmd
}

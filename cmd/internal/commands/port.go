// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/tab5-bringup/c6tools/cmd/internal/flasher"
	"go.bug.st/serial/enumerator"
	"golang.org/x/term"
)

func PortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ports",
		Short:        "List serial ports and whether they look like the co-processor",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ports, err := enumerator.GetDetailedPortsList()
			if err != nil {
				return fmt.Errorf("failed to list serial ports: %w", err)
			}
			if !all {
				ports = filterPorts(ports, runtime.GOOS)
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports detected. Use --all to list every port.")
				return nil
			}
			writePorts(cmd.OutOrStdout(), ports, cfg.Signatures, cfg.MainPort)
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	return cmd
}

func writePorts(w io.Writer, ports []*enumerator.PortDetails, sigs []string, mainPort string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tVID:PID\tPRODUCT\tMATCH")
	for _, p := range ports {
		id := "-"
		if p.IsUSB {
			id = strings.ToUpper(p.VID + ":" + p.PID)
		}
		product := p.Product
		if product == "" {
			product = "-"
		}
		match := ""
		if flasher.MatchSignature(p, sigs) {
			match = "co-processor"
		}
		if p.Name == mainPort {
			if match != "" {
				match += ", "
			}
			match += "main"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, id, product, match)
	}
	tw.Flush()
}

// choosePort asks the user to pick one of several candidate ports. Without a
// terminal to ask on, the first one wins.
func choosePort(ports []string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ports[0], nil
	}

	prompt := promptui.Select{
		Label:     "Several ports look like the co-processor, choose one",
		Items:     ports,
		Templates: &promptui.SelectTemplates{},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("you didn't select anything")
	}
	return ports[i], nil
}

// filterPorts drops the ports that are unlikely to lead to a board on goos.
func filterPorts(ports []*enumerator.PortDetails, goos string) []*enumerator.PortDetails {
	names := map[string]struct{}{}
	for _, p := range ports {
		names[p.Name] = struct{}{}
	}

	var res []*enumerator.PortDetails
	for _, p := range ports {
		if keepPort(goos, p.Name, names) {
			res = append(res, p)
		}
	}
	return res
}

func keepPort(goos string, name string, names map[string]struct{}) bool {
	switch goos {
	case "linux":
		base := filepath.Base(name)
		return strings.HasPrefix(base, "tty") && (strings.Contains(base, "USB") || strings.Contains(base, "ACM"))
	case "darwin":
		if strings.Contains(name, "Bluetooth") {
			return false
		}
		// Every device shows up as both /dev/tty.X and /dev/cu.X. Only the
		// callout device is useful.
		if rest, ok := strings.CutPrefix(name, "/dev/tty"); ok {
			_, twin := names["/dev/cu"+rest]
			return !twin
		}
		return strings.HasPrefix(name, "/dev/cu")
	default:
		return true
	}
}

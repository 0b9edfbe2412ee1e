// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

func VersionCmd(info Info) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the version of the tool",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			version := info.Version
			if !info.Release {
				// Development build: try to get the version from git.
				version = gitVersion()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:\t%s\n", version)
			fmt.Fprintf(out, "Build date:\t%s\n", info.Date)
			if !info.Release {
				fmt.Fprintln(out, "Build type:\tdevelopment")
			}
		},
	}
	return cmd
}

// gitVersion describes the checkout the binary was built from: the exact
// tag, else the nearest tag with a commit suffix, else the short hash.
func gitVersion() string {
	describe := [][]string{
		{"describe", "--tags", "--exact-match"},
		{"describe", "--tags", "--dirty"},
	}
	for _, args := range describe {
		if v := git(args...); v != "" {
			return v
		}
	}
	if rev := git("rev-parse", "--short", "HEAD"); rev != "" {
		return "dev-" + rev
	}
	return "dev-unknown"
}

func git(args ...string) string {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

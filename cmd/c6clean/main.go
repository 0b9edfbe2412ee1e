// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tab5-bringup/c6tools/cmd/internal/commands"
)

var version = "v0.1.0"

var buildDate = "unknown"
var buildMode = "development"

func main() {
	info := commands.Info{
		Date:    buildDate,
		Version: version,
		Release: buildMode == "release",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = commands.SetInfo(ctx, info)
	cmd := commands.CleanCmd(info)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

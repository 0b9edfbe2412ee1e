// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package flasher

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tab5-bringup/c6tools/cmd/internal/directory"
	"github.com/tab5-bringup/c6tools/cmd/internal/sdcard"
)

// FlashFunc writes the firmware image through the given serial port.
type FlashFunc func(ctx context.Context, port string) error

// Direct flashes through a port found by discovery.
type Direct struct {
	Discovery *Discovery
	Flash     FlashFunc
	Out       io.Writer
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Description() string { return "direct serial connection" }

func (d *Direct) Attempt(ctx context.Context) error {
	return discoverAndFlash(ctx, d.Discovery, d.Flash, d.Out)
}

func discoverAndFlash(ctx context.Context, discovery *Discovery, flash FlashFunc, out io.Writer) error {
	port, err := discovery.Find()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Found co-processor port '%s'\n", port)
	return flash(ctx, port)
}

// ResetFunc asks the main processor to reboot and let go of the
// co-processor's control lines.
type ResetFunc func(ctx context.Context) error

// Indirect resets the main processor, waits for things to settle and then
// tries discovery again.
type Indirect struct {
	Reset     ResetFunc
	Settle    time.Duration
	Discovery *Discovery
	Flash     FlashFunc
	Out       io.Writer
}

func (d *Indirect) Name() string { return "indirect" }

func (d *Indirect) Description() string { return "control via the main processor" }

func (d *Indirect) Attempt(ctx context.Context) error {
	if err := d.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset the main processor: %w", err)
	}

	fmt.Fprintf(d.Out, "Waiting %s for the co-processor to settle ...\n", d.Settle)
	timer := time.NewTimer(d.Settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	return discoverAndFlash(ctx, d.Discovery, d.Flash, d.Out)
}

// Bulk stages the image on the main processor's SD card. The main processor
// flashes the co-processor from there on its next boot, so no serial link to
// the co-processor is needed.
type Bulk struct {
	Image     string
	Volume    string
	MountWait time.Duration
	// RequireMount rejects a Volume that exists but has nothing mounted on it.
	RequireMount bool
	Out          io.Writer
}

func (d *Bulk) Name() string { return "bulk" }

func (d *Bulk) Description() string { return "transfer through the SD card" }

func (d *Bulk) Attempt(ctx context.Context) error {
	if d.MountWait > 0 {
		fmt.Fprintf(d.Out, "Waiting up to %s for '%s' to be mounted ...\n", d.MountWait, d.Volume)
		if err := sdcard.WaitForVolume(ctx, d.Volume, d.MountWait, d.RequireMount); err != nil {
			return err
		}
	} else if err := sdcard.CheckVolume(d.Volume, d.RequireMount); err != nil {
		return err
	}

	dest, err := sdcard.Stage(d.Image, d.Volume, directory.FirmwareFileName, d.Out)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.Out, "Staged firmware at '%s'\n", dest)
	fmt.Fprintln(d.Out, "Put the card back and reboot the board; the main processor flashes the co-processor on boot")
	return nil
}

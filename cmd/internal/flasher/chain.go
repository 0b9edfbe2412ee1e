// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package flasher gets firmware onto the co-processor by trying an ordered
// list of strategies until one of them works.
package flasher

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

var (
	// ErrExhausted is returned by Chain.Run when every strategy failed.
	ErrExhausted = errors.New("all flashing strategies failed")
	// ErrNoPort means discovery found no port matching the signatures.
	ErrNoPort = errors.New("no co-processor serial port found")
)

// Strategy is one way of getting the image onto the device.
type Strategy interface {
	// Name is a short identifier used in logs.
	Name() string
	// Description is shown to the operator before the attempt.
	Description() string
	// Attempt returns nil when the device was flashed.
	Attempt(ctx context.Context) error
}

// Chain runs strategies in order and stops at the first success.
type Chain struct {
	Strategies []Strategy
	Out        io.Writer
	Log        logrus.FieldLogger
}

// Run returns the strategy that succeeded. Cancelling ctx stops the chain
// and returns ctx.Err().
func (c *Chain) Run(ctx context.Context) (Strategy, error) {
	for i, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fmt.Fprintf(c.Out, "\nMethod %d: %s\n", i+1, s.Description())
		err := s.Attempt(ctx)
		if err == nil {
			return s, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		fmt.Fprintf(c.Out, "Method %d failed: %v\n", i+1, err)
		c.Log.WithError(err).WithField("strategy", s.Name()).Debug("attempt failed")
	}
	return nil, ErrExhausted
}

// WriteGuidance prints the manual recovery steps shown after the chain is
// exhausted.
func WriteGuidance(w io.Writer, chip string, image string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "============================================================")
	fmt.Fprintf(w, "IMPORTANT: the %s firmware could not be flashed automatically\n", chip)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Manual flashing options:")
	fmt.Fprintln(w, "1. Check the PCB for test points on the co-processor UART (TX, RX, GND)")
	fmt.Fprintln(w, "   and connect a USB-to-UART adapter, holding the boot pin low during reset")
	fmt.Fprintln(w, "2. Contact the board vendor's support for the factory flashing procedure")
	fmt.Fprintln(w, "3. The co-processor might be reachable over USB-C in download mode")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "To flash manually once you have found the port:")
	fmt.Fprintf(w, "  esptool.py --chip %s -p PORT write_flash 0x0 %s\n", chip, image)
	fmt.Fprintln(w, "============================================================")
}

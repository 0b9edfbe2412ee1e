// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package flasher

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.bug.st/serial"
)

const resetPulse = 100 * time.Millisecond

// ResetLines is the part of a serial port used to drive a reset.
type ResetLines interface {
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// Pulse reboots the chip behind lines the way the auto-reset circuit on
// Espressif boards expects: DTR released, RTS held for a moment.
func Pulse(ctx context.Context, lines ResetLines) error {
	if err := lines.SetDTR(false); err != nil {
		return err
	}
	if err := lines.SetRTS(true); err != nil {
		return err
	}
	select {
	case <-time.After(resetPulse):
	case <-ctx.Done():
		lines.SetRTS(false)
		return ctx.Err()
	}
	return lines.SetRTS(false)
}

// SerialReset returns a ResetFunc that pulses the reset lines of the main
// processor's console port.
func SerialReset(port string, baud int) ResetFunc {
	return func(ctx context.Context) error {
		dev, err := serial.Open(port, &serial.Mode{BaudRate: baud})
		if os.IsNotExist(err) {
			return fmt.Errorf("the port '%s' was not found", port)
		}
		if err != nil {
			return fmt.Errorf("failed to open '%s': %w", port, err)
		}
		defer dev.Close()
		return Pulse(ctx, dev)
	}
}

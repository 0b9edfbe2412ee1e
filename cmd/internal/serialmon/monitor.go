// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package serialmon streams a device's serial console to a writer.
package serialmon

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	readTimeout = 100 * time.Millisecond
	resetSettle = 100 * time.Millisecond
)

// Mode selects how decoded text is written.
type Mode string

const (
	// LineMode writes complete lines.
	LineMode Mode = "line"
	// RawMode writes text as soon as it arrives.
	RawMode Mode = "raw"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case LineMode:
		return LineMode, nil
	case RawMode:
		return RawMode, nil
	default:
		return "", fmt.Errorf("monitor mode '%s' was not recognized. Must be either line or raw", s)
	}
}

// Port is the part of a serial port the monitor needs. A Read that returns
// no bytes and no error is a read timeout.
type Port interface {
	io.ReadCloser
	SetDTR(dtr bool) error
	SetReadTimeout(t time.Duration) error
}

// Open opens path at the given baud rate.
func Open(path string, baud int) (Port, error) {
	dev, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("the port '%s' was not found", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open '%s': %w", path, err)
	}
	return dev, nil
}

// Options control a monitoring session.
type Options struct {
	// Duration bounds the session. Zero means until ctx is done.
	Duration time.Duration
	Mode     Mode
	// Reset pulses DTR low then high before reading.
	Reset bool
}

// StopReason tells why a session ended without error.
type StopReason int

const (
	StoppedDuration StopReason = iota
	StoppedInterrupt
)

// closeOnce guards the port so that every exit path closes it exactly once.
type closeOnce struct {
	Port
	once sync.Once
	err  error
}

func (c *closeOnce) Close() error {
	c.once.Do(func() { c.err = c.Port.Close() })
	return c.err
}

// Run reads from port until the duration elapses, ctx is done or the port
// fails. It owns port and closes it before returning.
func Run(ctx context.Context, port Port, out io.Writer, opts Options) (reason StopReason, err error) {
	p := &closeOnce{Port: port}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close serial port: %w", cerr)
		}
	}()

	if opts.Reset {
		if err := pulseDTR(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to reset device: %w", err)
		}
	}

	if err := p.SetReadTimeout(readTimeout); err != nil {
		return 0, err
	}

	var deadline <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	sink := newSink(out, opts.Mode)
	defer sink.Flush()

	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return StoppedInterrupt, nil
		case <-deadline:
			return StoppedDuration, nil
		default:
		}

		n, err := p.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("serial read failed: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := sink.Write(buf[:n]); err != nil {
			return 0, err
		}
	}
}

func pulseDTR(ctx context.Context, p Port) error {
	if err := p.SetDTR(false); err != nil {
		return err
	}
	if err := sleep(ctx, resetSettle); err != nil {
		return err
	}
	if err := p.SetDTR(true); err != nil {
		return err
	}
	return sleep(ctx, resetSettle)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sink decodes bytes and writes the text in the configured mode.
type sink struct {
	out     io.Writer
	mode    Mode
	decoder LossyDecoder
	line    strings.Builder
}

func newSink(out io.Writer, mode Mode) *sink {
	if mode == "" {
		mode = LineMode
	}
	return &sink{out: out, mode: mode}
}

func (s *sink) Write(p []byte) error {
	text := s.decoder.Decode(p)
	if s.mode == RawMode {
		_, err := io.WriteString(s.out, text)
		return err
	}

	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			s.line.WriteString(text)
			return nil
		}
		s.line.WriteString(text[:i])
		if err := s.emitLine(); err != nil {
			return err
		}
		text = text[i+1:]
	}
}

func (s *sink) emitLine() error {
	line := strings.TrimRight(s.line.String(), "\r")
	s.line.Reset()
	_, err := fmt.Fprintln(s.out, line)
	return err
}

// Flush writes a trailing partial line.
func (s *sink) Flush() {
	s.decoder.Flush()
	if s.line.Len() > 0 {
		s.emitLine()
	}
}

// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package esptool locates and runs Espressif's chip-programming tool.
package esptool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/tab5-bringup/c6tools/cmd/internal/directory"
)

const probeTimeout = 10 * time.Second

var (
	ErrToolNotFound = errors.New("esptool not found")
	ErrToolTooOld   = errors.New("esptool is too old")
)

// Tool is a resolved esptool installation.
type Tool struct {
	Path string
	// Prefix is prepended to every invocation. It holds "-m esptool" when
	// Path is a python interpreter.
	Prefix []string
}

// Resolve finds esptool. An empty path searches PATH for esptool.py and then
// esptool. A path naming a python interpreter runs esptool as a module.
func Resolve(path string) (*Tool, error) {
	if path == "" {
		for _, name := range []string{"esptool.py", directory.Executable("esptool")} {
			if p, err := exec.LookPath(name); err == nil {
				return &Tool{Path: p}, nil
			}
		}
		return nil, fmt.Errorf("%w on PATH", ErrToolNotFound)
	}

	if stat, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at '%s'", ErrToolNotFound, path)
		}
		return nil, fmt.Errorf("failed to load '%s', reason: %w", path, err)
	} else if stat.IsDir() {
		return nil, fmt.Errorf("%w: '%s' was a directory", ErrToolNotFound, path)
	}

	res := &Tool{Path: path}
	if isPython(path) {
		res.Prefix = []string{"-m", "esptool"}
	}
	return res, nil
}

func isPython(path string) bool {
	base := strings.TrimSuffix(strings.ToLower(filepath.Base(path)), ".exe")
	return strings.HasPrefix(base, "python")
}

func (t *Tool) Command(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, t.Path, append(append([]string{}, t.Prefix...), args...)...)
}

// Version runs 'esptool version' and parses what it prints.
func (t *Tool) Version(ctx context.Context) (*semver.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := t.Command(ctx, "version")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("'%s version' failed: %w", t.Path, err)
	}
	return ParseVersion(out.String())
}

// Probe checks that the tool runs and is at least min.
func (t *Tool) Probe(ctx context.Context, min string) (*semver.Version, error) {
	v, err := t.Version(ctx)
	if err != nil {
		return nil, err
	}
	if min == "" {
		return v, nil
	}
	minVersion, err := semver.NewVersion(normalize(min))
	if err != nil {
		return nil, fmt.Errorf("invalid minimum esptool version '%s': %w", min, err)
	}
	if v.LessThan(*minVersion) {
		return v, fmt.Errorf("%w: found %s, %s is required", ErrToolTooOld, v, minVersion)
	}
	return v, nil
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts the first dotted version from esptool's output,
// for example "esptool.py v4.7.0".
func ParseVersion(out string) (*semver.Version, error) {
	m := versionRe.FindString(out)
	if m == "" {
		return nil, fmt.Errorf("no version in esptool output %q", strings.TrimSpace(out))
	}
	return semver.NewVersion(normalize(m))
}

func normalize(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if strings.Count(v, ".") == 1 {
		v += ".0"
	}
	return v
}

// FlashOptions describes a single image write.
type FlashOptions struct {
	Chip   string
	Port   string
	Baud   int
	Offset uint32
	Image  string
}

// FlashArgs builds the esptool argument list for o.
func FlashArgs(o FlashOptions) []string {
	return []string{
		"--chip", o.Chip,
		"--port", o.Port,
		"--baud", strconv.Itoa(o.Baud),
		"--before", "default_reset",
		"--after", "hard_reset",
		"write_flash",
		"--flash_mode", "dio",
		"--flash_size", "4MB",
		"--flash_freq", "40m",
		fmt.Sprintf("0x%x", o.Offset), o.Image,
	}
}

// Flash writes the image and waits for esptool to exit. A timeout of zero
// means no limit. Hitting the timeout is reported as an error.
func (t *Tool) Flash(ctx context.Context, o FlashOptions, timeout time.Duration, stdout io.Writer, stderr io.Writer) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := t.Command(ctx, FlashArgs(o)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("esptool timed out after %s", timeout)
	}
	if err != nil {
		return fmt.Errorf("esptool failed: %w", err)
	}
	return nil
}

// CommandLine renders the invocation for display.
func (t *Tool) CommandLine(args ...string) string {
	parts := append([]string{t.Path}, t.Prefix...)
	return strings.Join(append(parts, args...), " ")
}

package esptool

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashArgs(t *testing.T) {
	args := FlashArgs(FlashOptions{
		Chip:   "esp32c6",
		Port:   "/dev/ttyUSB0",
		Baud:   115200,
		Offset: 0,
		Image:  "c6_firmware.bin",
	})
	expected := "--chip esp32c6 --port /dev/ttyUSB0 --baud 115200 --before default_reset --after hard_reset " +
		"write_flash --flash_mode dio --flash_size 4MB --flash_freq 40m 0x0 c6_firmware.bin"
	assert.Equal(t, expected, strings.Join(args, " "))

	args = FlashArgs(FlashOptions{Chip: "esp32c6", Port: "p", Baud: 460800, Offset: 0x10000, Image: "fw.bin"})
	assert.Equal(t, []string{"0x10000", "fw.bin"}, args[len(args)-2:])
	assert.Contains(t, args, "460800")
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{in: "esptool.py v4.7.0\n4.7.0\n", expected: "4.7.0"},
		{in: "esptool v5.0.2", expected: "5.0.2"},
		{in: "esptool.py v3.3", expected: "3.3.0"},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			v, err := ParseVersion(test.in)
			require.NoError(t, err)
			assert.Equal(t, test.expected, v.String())
		})
	}

	_, err := ParseVersion("usage: esptool [-h]")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()

	_, err := Resolve(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, ErrToolNotFound))

	_, err = Resolve(dir)
	assert.True(t, errors.Is(err, ErrToolNotFound))

	python := filepath.Join(dir, "python3.13")
	require.NoError(t, os.WriteFile(python, nil, 0755))
	tool, err := Resolve(python)
	require.NoError(t, err)
	assert.Equal(t, []string{"-m", "esptool"}, tool.Prefix)
	assert.Equal(t, python+" -m esptool version", tool.CommandLine("version"))

	plain := filepath.Join(dir, "esptool.py")
	require.NoError(t, os.WriteFile(plain, nil, 0755))
	tool, err = Resolve(plain)
	require.NoError(t, err)
	assert.Empty(t, tool.Prefix)
}

// fakeTool writes a shell script standing in for esptool.
func fakeTool(t *testing.T, body string) *Tool {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "esptool.py")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return &Tool{Path: path}
}

func TestProbe(t *testing.T) {
	tool := fakeTool(t, `echo "esptool.py v4.7.0"`)

	v, err := tool.Probe(context.Background(), "4.5.0")
	require.NoError(t, err)
	assert.Equal(t, "4.7.0", v.String())

	_, err = tool.Probe(context.Background(), "5.0")
	assert.True(t, errors.Is(err, ErrToolTooOld))

	broken := fakeTool(t, "exit 3")
	_, err = broken.Probe(context.Background(), "4.5.0")
	assert.Error(t, err)
}

func TestFlash(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	tool := fakeTool(t, `echo "$@" > `+argsFile)

	opts := FlashOptions{Chip: "esp32c6", Port: "/dev/ttyUSB0", Baud: 115200, Image: "fw.bin"}
	require.NoError(t, tool.Flash(context.Background(), opts, time.Minute, io.Discard, io.Discard))

	got, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(FlashArgs(opts), " "), strings.TrimSpace(string(got)))
}

func TestFlash_failure(t *testing.T) {
	tool := fakeTool(t, "exit 2")
	err := tool.Flash(context.Background(), FlashOptions{}, time.Minute, io.Discard, io.Discard)
	assert.Error(t, err)
}

func TestFlash_timeout(t *testing.T) {
	tool := fakeTool(t, "exec sleep 10")
	start := time.Now()
	err := tool.Flash(context.Background(), FlashOptions{}, 100*time.Millisecond, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

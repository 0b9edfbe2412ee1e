// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package sdcard handles the files the main processor reads from its SD card:
// the bridge mode marker and the staged co-processor firmware.
package sdcard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fsnotify/fsnotify"
)

var (
	// ErrVolumeTimeout is returned when a volume didn't show up in time.
	ErrVolumeTimeout = errors.New("timed out waiting for volume")
	// ErrNotMounted is returned for a mount point with nothing mounted on it.
	ErrNotMounted = errors.New("nothing is mounted")
)

const pollInterval = 250 * time.Millisecond

// Result is the outcome of RemoveMarker.
type Result int

const (
	Deleted Result = iota
	NotFound
)

func (r Result) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case NotFound:
		return "not found"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// RemoveMarker deletes the bridge mode marker at path. A missing marker is
// reported as NotFound and is not an error.
func RemoveMarker(path string) (Result, error) {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return NotFound, nil
		}
		return NotFound, fmt.Errorf("can't stat '%s', reason: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return NotFound, fmt.Errorf("failed to delete '%s': %w", path, err)
	}
	return Deleted, nil
}

func isDir(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.IsDir()
}

// CheckVolume fails unless dir is a directory. With requireMount it must also
// be a mount point, so that an empty mount point left on the host disk is not
// mistaken for the card.
func CheckVolume(dir string, requireMount bool) error {
	if !isDir(dir) {
		return fmt.Errorf("the volume '%s' is not mounted", dir)
	}
	if !requireMount {
		return nil
	}
	mounted, err := IsMountPoint(dir)
	if err != nil {
		return fmt.Errorf("can't check whether '%s' is mounted: %w", dir, err)
	}
	if !mounted {
		return fmt.Errorf("%w on '%s'", ErrNotMounted, dir)
	}
	return nil
}

// WaitForVolume blocks until CheckVolume accepts dir, the timeout expires or
// ctx is done. The parent of dir must exist; it is watched for the volume to
// appear. A mount over an existing directory raises no event and is polled.
func WaitForVolume(ctx context.Context, dir string, timeout time.Duration, requireMount bool) error {
	ready := func() bool { return CheckVolume(dir, requireMount) == nil }
	if ready() {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := w.Add(parent); err != nil {
		return fmt.Errorf("can't watch '%s' for the volume to appear: %w", parent, err)
	}

	// The volume may have appeared between the first check and the watch.
	if ready() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for '%s'", dir)
			}
			if filepath.Clean(event.Name) == dir && event.Op&fsnotify.Create == fsnotify.Create && ready() {
				return nil
			}
		case <-poll.C:
			if ready() {
				return nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for '%s'", dir)
			}
			return err
		case <-timer.C:
			return fmt.Errorf("%w: '%s' after %s", ErrVolumeTimeout, dir, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stage copies the firmware image into the root of the volume under name.
// The copy goes to a temporary file first so the main processor never sees a
// partial image. Progress is drawn on progress, which may be io.Discard.
func Stage(image string, volume string, name string, progress io.Writer) (string, error) {
	if !isDir(volume) {
		return "", fmt.Errorf("the volume '%s' is not mounted", volume)
	}

	src, err := os.Open(image)
	if err != nil {
		return "", err
	}
	defer src.Close()

	stat, err := src.Stat()
	if err != nil {
		return "", err
	}

	dest := filepath.Join(volume, name)
	tmp := dest + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	bar := pb.New64(stat.Size()).Set(pb.Bytes, true).SetWriter(progress)
	bar.Start()
	n, err := io.Copy(dst, bar.NewProxyReader(src))
	bar.Finish()
	if err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to copy '%s' to '%s': %w", image, volume, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	if n != stat.Size() {
		return "", fmt.Errorf("short copy to '%s': wrote %d of %d bytes", tmp, n, stat.Size())
	}

	if err := os.Rename(tmp, dest); err != nil {
		return "", err
	}
	return dest, nil
}

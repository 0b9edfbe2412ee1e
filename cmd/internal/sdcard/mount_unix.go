// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

//go:build unix

package sdcard

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// IsMountPoint reports whether dir is the root of a mounted file system,
// that is whether it lives on another device than its parent.
func IsMountPoint(dir string) (bool, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return true, nil
	}

	var st, pst unix.Stat_t
	if err := unix.Stat(dir, &st); err != nil {
		return false, err
	}
	if err := unix.Stat(parent, &pst); err != nil {
		return false, err
	}
	return st.Dev != pst.Dev, nil
}

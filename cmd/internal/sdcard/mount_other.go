// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

//go:build !unix

package sdcard

import (
	"os"
)

// IsMountPoint reports whether dir exists. Removable cards get their own
// drive letter here, so an existing directory is a mounted one.
func IsMountPoint(dir string) (bool, error) {
	stat, err := os.Stat(dir)
	if err != nil {
		return false, err
	}
	return stat.IsDir(), nil
}

// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package serialmon

import (
	"unicode/utf8"
)

// LossyDecoder turns a stream of bytes into UTF-8 text.
//
// Bytes that can never start a valid encoding are dropped and counted. An
// encoding cut off at the end of a chunk is held back and completed by the
// next chunk. Flush drops whatever is still held back.
type LossyDecoder struct {
	pending []byte
	// Dropped counts the bytes discarded so far.
	Dropped int
}

func (d *LossyDecoder) Decode(p []byte) string {
	buf := p
	if len(d.pending) > 0 {
		buf = append(d.pending, p...)
		d.pending = nil
	}

	out := make([]byte, 0, len(buf))
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(buf) {
				d.pending = append([]byte(nil), buf...)
				break
			}
			d.Dropped++
			buf = buf[1:]
			continue
		}
		out = append(out, buf[:size]...)
		buf = buf[size:]
	}
	return string(out)
}

func (d *LossyDecoder) Flush() {
	d.Dropped += len(d.pending)
	d.pending = nil
}

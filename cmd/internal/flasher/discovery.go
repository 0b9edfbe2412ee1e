// Copyright (C) 2026 The c6tools Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package flasher

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortLister enumerates serial ports. enumerator.GetDetailedPortsList
// satisfies it.
type PortLister func() ([]*enumerator.PortDetails, error)

// Discovery finds the co-processor's serial port by USB signature.
type Discovery struct {
	List       PortLister
	Signatures []string
	// Exclude holds ports that never count as the target, such as the main
	// processor's console.
	Exclude []string
	// Choose picks among several candidates. Nil picks the first.
	Choose func(ports []string) (string, error)
}

// MatchSignature reports whether p is a USB port whose VID:PID is in sigs.
func MatchSignature(p *enumerator.PortDetails, sigs []string) bool {
	if p == nil || !p.IsUSB {
		return false
	}
	id := p.VID + ":" + p.PID
	for _, sig := range sigs {
		if strings.EqualFold(strings.TrimSpace(sig), id) {
			return true
		}
	}
	return false
}

// Candidates lists every port matching the signatures, in enumeration order.
func (d *Discovery) Candidates() ([]string, error) {
	ports, err := d.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	excluded := map[string]struct{}{}
	for _, p := range d.Exclude {
		excluded[p] = struct{}{}
	}

	var res []string
	for _, p := range ports {
		if _, ok := excluded[p.Name]; ok {
			continue
		}
		if MatchSignature(p, d.Signatures) {
			res = append(res, p.Name)
		}
	}
	return res, nil
}

// Find returns the target port or ErrNoPort.
func (d *Discovery) Find() (string, error) {
	candidates, err := d.Candidates()
	if err != nil {
		return "", err
	}
	switch {
	case len(candidates) == 0:
		return "", ErrNoPort
	case len(candidates) == 1 || d.Choose == nil:
		return candidates[0], nil
	default:
		return d.Choose(candidates)
	}
}

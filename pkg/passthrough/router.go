// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package passthrough

import (
	"fmt"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

// Supported reports whether the device's hack can dispatch commands at all.
func (d *Device) Supported() error {
	switch d.hack {
	case HackSAT:
		if d.sat == nil {
			return fmt.Errorf("%w: no SAT dispatcher configured", ata.ErrNotSupported)
		}
		return nil
	case HackCypress, HackNEC, HackProlific:
		return nil
	case HackPSP, HackTI, HackCSMI:
		return fmt.Errorf("%w: %v pass-through", ata.ErrNotSupported, d.hack)
	default:
		return fmt.Errorf("%w: %v", ata.ErrInvalidConfiguration, d.hack)
	}
}

// Passthrough sends cmd to the drive using the device's configured hack and
// returns the dispatcher's result. cmd.RTFR and the device's last command
// state are updated whatever the outcome.
func (d *Device) Passthrough(cmd *ata.Command) error {
	if err := d.Supported(); err != nil {
		return err
	}
	switch d.hack {
	case HackSAT:
		return d.sat.Dispatch(cmd)
	case HackCypress:
		return d.SendCypress(cmd)
	case HackNEC:
		return d.SendNEC(cmd)
	default:
		return d.SendProlific(cmd)
	}
}

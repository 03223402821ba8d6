// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package passthrough

import (
	"errors"
	"fmt"
	"time"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

// bridge is implemented once per supported bridge chip.
type bridge interface {
	encode(cmd *ata.Command) (blocks, error)
	readRTFRs(t Transport, cmd *ata.Command, prior error) error
}

// blocks are the wire commands produced for one ATA command. prefix, if
// set, is sent without data before primary and its result is not used.
type blocks struct {
	prefix  []byte
	primary []byte
}

func (d *Device) dispatch(b bridge, cmd *ata.Command) error {
	scoped := cmd.Sense == nil
	if scoped {
		cmd.Sense = make([]byte, ata.MaxSenseLength)
	}
	cmd.RTFR = ata.RTFR{}
	d.lastDuration = 0

	bl, err := b.encode(cmd)
	if err == nil {
		timeout := cmd.EffectiveTimeout()
		if bl.prefix != nil {
			// The bridge latches the Ext registers from this block; only the
			// primary block reports a usable result.
			_, _ = d.transport.SendCDB(bl.prefix, ata.DirectionNone, nil, cmd.Sense, timeout)
		}
		d.lastDuration, err = d.transport.SendCDB(bl.primary, cmd.Direction, cmd.Data, cmd.Sense, timeout)
		err = b.readRTFRs(d.transport, cmd, err)
		err = interpretStatus(&cmd.RTFR, err)
	}

	d.record(cmd.Sense, cmd.RTFR)

	if scoped {
		cmd.Sense = nil
	}

	if d.lastDuration/time.Second > cmd.EffectiveTimeout()/time.Second {
		return fmt.Errorf("%w: took %v, limit %v", ata.ErrCommandTimeout, d.lastDuration, cmd.EffectiveTimeout())
	}
	return err
}

// interpretStatus maps the returned status register onto the dispatch result.
// Bridges sometimes report all-zero registers for a transfer that completed
// fine; that case is reported as a clean completion.
func interpretStatus(r *ata.RTFR, err error) error {
	switch {
	case r.Status == ata.StatusReady|ata.StatusSeekComplete:
		return nil
	case r.Status == ata.StatusBusy:
		return ata.ErrInProgress
	case r.Status == 0 && err == nil:
		r.Status = ata.StatusReady | ata.StatusSeekComplete
		return nil
	case errors.Is(err, ata.ErrNotSupported), errors.Is(err, ata.ErrInProgress):
		return err
	case err != nil:
		return fmt.Errorf("%w: %w", ata.ErrFailure, err)
	default:
		return fmt.Errorf("%w: status %#02x, error %#02x", ata.ErrFailure, r.Status, r.Error)
	}
}

// readRegisters sends a vendor read-registers command and hands the response
// to decode. A transport failure of the preceding command is passed through
// without touching the device. The read uses its own sense buffer so that
// cmd.Sense keeps the sense data of the command itself.
func readRegisters(t Transport, cmd *ata.Command, prior error, cdb []byte, respLen int, decode func([]byte, *ata.RTFR) error) error {
	if errors.Is(prior, ata.ErrTransportFailure) {
		return prior
	}
	resp := make([]byte, respLen)
	sense := make([]byte, ata.MaxSenseLength)
	if _, err := t.SendCDB(cdb, ata.DirectionIn, resp, sense, cmd.EffectiveTimeout()); err != nil {
		if prior != nil {
			return prior
		}
		return err
	}
	if err := decode(resp, &cmd.RTFR); err != nil {
		return err
	}
	return prior
}

// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package passthrough routes ATA command descriptors to the encoder of the
// bridge chip sitting between the host and the drive, and interprets the
// registers the bridge reports back.
package passthrough

import (
	"fmt"
	"strings"
	"time"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

// SCSI CDB types
type (
	CDB6  [6]byte
	CDB16 [16]byte
)

// Transport sends one SCSI CDB and blocks until the command completes. It
// returns how long the command took. Errors that mean the command never
// reached the device must wrap ata.ErrTransportFailure. A bridge that answers
// with CHECK CONDITION did receive the command; such errors must not wrap it,
// so that the result registers are still read.
type Transport interface {
	SendCDB(cdb []byte, dir ata.Direction, data []byte, sense []byte, timeout time.Duration) (time.Duration, error)
}

// Dispatcher executes a complete ATA command, e.g. through SCSI/ATA
// Translation.
type Dispatcher interface {
	Dispatch(cmd *ata.Command) error
}

// Hack identifies how ATA commands have to be smuggled to the device.
type Hack int

const (
	HackUnknown Hack = iota
	HackSAT
	HackPSP
	HackCypress
	HackProlific
	HackTI
	HackNEC
	HackCSMI
)

var hackNames = map[Hack]string{
	HackSAT:      "sat",
	HackPSP:      "psp",
	HackCypress:  "cypress",
	HackProlific: "prolific",
	HackTI:       "ti",
	HackNEC:      "nec",
	HackCSMI:     "csmi",
}

func (h Hack) String() string {
	if n, ok := hackNames[h]; ok {
		return n
	}
	return fmt.Sprintf("Hack(%d)", int(h))
}

// ParseHack maps a hack name as returned by Hack.String back to its value.
func ParseHack(name string) (Hack, error) {
	for h, n := range hackNames {
		if strings.EqualFold(n, name) {
			return h, nil
		}
	}
	return HackUnknown, fmt.Errorf("%w: unknown pass-through hack %q", ata.ErrInvalidConfiguration, name)
}

// LastCommand is the state left behind by the most recent dispatch.
type LastCommand struct {
	Sense    []byte
	RTFR     ata.RTFR
	Duration time.Duration
}

// Device is one drive reachable through a Transport. A Device is not safe for
// concurrent use; callers serialize access.
type Device struct {
	transport Transport
	hack      Hack
	sat       Dispatcher

	lastSense    [ata.MaxSenseLength]byte
	lastSenseLen int
	lastRTFR     ata.RTFR
	lastDuration time.Duration
}

type DeviceOpt func(d *Device)

// WithSAT sets the dispatcher used for HackSAT.
func WithSAT(sat Dispatcher) DeviceOpt {
	return func(d *Device) {
		d.sat = sat
	}
}

func NewDevice(t Transport, hack Hack, opts ...DeviceOpt) *Device {
	d := &Device{
		transport: t,
		hack:      hack,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Hack() Hack {
	return d.hack
}

// LastSense returns a copy of the sense data of the last command.
func (d *Device) LastSense() []byte {
	return append([]byte(nil), d.lastSense[:d.lastSenseLen]...)
}

// LastRTFR returns the registers reported for the last command.
func (d *Device) LastRTFR() ata.RTFR {
	return d.lastRTFR
}

// LastDuration returns how long the last command's data phase took.
func (d *Device) LastDuration() time.Duration {
	return d.lastDuration
}

// LastCommand returns a snapshot of the last command state.
func (d *Device) LastCommand() LastCommand {
	return LastCommand{
		Sense:    d.LastSense(),
		RTFR:     d.lastRTFR,
		Duration: d.lastDuration,
	}
}

func (d *Device) record(sense []byte, rtfr ata.RTFR) {
	d.lastSenseLen = copy(d.lastSense[:], sense)
	d.lastRTFR = rtfr
}

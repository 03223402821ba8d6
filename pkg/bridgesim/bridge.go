// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bridgesim emulates the firmware of the Cypress, NEC and Prolific
// USB to ATA bridges on top of a disk image. A Bridge implements
// passthrough.Transport and can stand in for a real device.
package bridgesim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
)

// Fixed format sense data
const (
	senseIllegalRequest = 0x05
	senseAbortedCommand = 0x0b
	senseInvalidOpcode  = 0x20
	senseInvalidField   = 0x24
)

var (
	// ErrCheckCondition is returned by SendCDB when the bridge answers with
	// CHECK CONDITION. The sense buffer holds the reason.
	ErrCheckCondition = errors.New("CHECK CONDITION")

	errInvalidOpcode = errors.New("invalid command operation code")
	errInvalidField  = errors.New("invalid field in CDB")
	errDeviceError   = errors.New("ATA command aborted by the device")
)

// Bridge is one emulated bridge with a drive attached. It is not safe for
// concurrent use.
type Bridge struct {
	hack    passthrough.Hack
	image   io.ReadWriteSeeker
	sectors uint64

	model, serial, firmware string
	identity                [ata.SectorSize]byte

	latency      time.Duration
	smartFailing bool
	powerMode    uint8

	// Registers latched after the last ATA command.
	regs ata.RTFR

	// Ext registers delivered by a Prolific high block.
	high      [5]uint8
	highValid bool
}

type Option func(b *Bridge)

// WithIdentity sets the strings reported by IDENTIFY DEVICE.
func WithIdentity(model, serial, firmware string) Option {
	return func(b *Bridge) {
		b.model = model
		b.serial = serial
		b.firmware = firmware
	}
}

// WithLatency adds d to the duration reported for every CDB.
func WithLatency(d time.Duration) Option {
	return func(b *Bridge) {
		b.latency = d
	}
}

// WithSMARTFailing makes SMART RETURN STATUS report a threshold exceeded
// condition.
func WithSMARTFailing() Option {
	return func(b *Bridge) {
		b.smartFailing = true
	}
}

// New attaches an emulated drive backed by image to a bridge of the given
// kind. The drive's capacity is the image size rounded down to whole sectors.
func New(hack passthrough.Hack, image io.ReadWriteSeeker, opts ...Option) (*Bridge, error) {
	switch hack {
	case passthrough.HackCypress, passthrough.HackNEC, passthrough.HackProlific:
	default:
		return nil, fmt.Errorf("%w: no emulation for %v bridges", ata.ErrNotSupported, hack)
	}
	size, err := image.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to size image: %v", err)
	}
	b := &Bridge{
		hack:      hack,
		image:     image,
		sectors:   uint64(size) / ata.SectorSize,
		model:     "BRIDGESIM",
		serial:    "SIM00000001",
		firmware:  "1.0",
		powerMode: ata.PowerModeActive,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.identity = identifyPage(b.model, b.serial, b.firmware, b.sectors)
	return b, nil
}

func (b *Bridge) Hack() passthrough.Hack {
	return b.hack
}

// Sectors returns the capacity of the emulated drive.
func (b *Bridge) Sectors() uint64 {
	return b.sectors
}

// Registers returns the registers latched after the last ATA command.
func (b *Bridge) Registers() ata.RTFR {
	return b.regs
}

// SendCDB implements passthrough.Transport. The timeout is not enforced; the
// reported duration includes the configured latency.
//
// A CDB the bridge cannot decode is rejected with ILLEGAL REQUEST and leaves
// the registers showing an aborted command. Cypress and NEC bridges also
// report an ATA command that ended with ERR set as ABORTED COMMAND; the
// device registers stay readable.
func (b *Bridge) SendCDB(cdb []byte, dir ata.Direction, data []byte, sense []byte, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	var err error
	switch b.hack {
	case passthrough.HackCypress:
		err = b.cypress(cdb, dir, data)
	case passthrough.HackNEC:
		err = b.nec(cdb, dir, data)
	case passthrough.HackProlific:
		err = b.prolific(cdb, dir, data)
	}
	switch {
	case err == nil:
	case errors.Is(err, errDeviceError):
		setSense(sense, senseAbortedCommand, 0)
		err = fmt.Errorf("%w: %w", ErrCheckCondition, err)
	default:
		asc := uint8(senseInvalidField)
		if errors.Is(err, errInvalidOpcode) {
			asc = senseInvalidOpcode
		}
		setSense(sense, senseIllegalRequest, asc)
		b.regs = ata.RTFR{Status: statusOK | ata.StatusError, Error: ata.ErrorAbort}
		err = fmt.Errorf("%w: %w", ErrCheckCondition, err)
	}
	return time.Since(start) + b.latency, err
}

func setSense(sense []byte, key, asc uint8) {
	if len(sense) < 14 {
		return
	}
	clear(sense)
	sense[0] = 0x70
	sense[2] = key
	sense[7] = 10
	sense[12] = asc
}

func (b *Bridge) cypress(cdb []byte, dir ata.Direction, data []byte) error {
	if len(cdb) != 16 || cdb[0] != passthrough.CypressSignature {
		return errInvalidOpcode
	}
	if cdb[1] != passthrough.CypressSubcommand {
		return errInvalidField
	}
	if cdb[2]&0x01 != 0 {
		r := &b.regs
		copy(data, []byte{r.Status, r.Error, r.SectorCount, r.LBALow, r.LBAMid, r.LBAHigh, r.Device, r.Status})
		return nil
	}
	tf := ata.TaskFile{
		DeviceControl: cdb[5],
		Feature:       cdb[6],
		SectorCount:   cdb[7],
		LBALow:        cdb[8],
		LBAMid:        cdb[9],
		LBAHigh:       cdb[10],
		Device:        cdb[11],
		Command:       cdb[12],
	}
	// The AT2LP only moves IDENTIFY data when told so.
	if (tf.Command == ata.CmdIdentifyDevice || tf.Command == ata.CmdIdentifyPacketDevice) && cdb[2]&0x80 == 0 {
		b.abort(&tf, ata.ErrorAbort)
		return errDeviceError
	}
	return b.executeChecked(&tf, dir, data)
}

// executeChecked runs tf and reports a device error as errDeviceError.
func (b *Bridge) executeChecked(tf *ata.TaskFile, dir ata.Direction, data []byte) error {
	b.execute(tf, dir, data)
	if b.regs.Status&ata.StatusError != 0 {
		return errDeviceError
	}
	return nil
}

func (b *Bridge) nec(cdb []byte, dir ata.Direction, data []byte) error {
	if len(cdb) != 16 {
		return errInvalidOpcode
	}
	switch cdb[0] {
	case passthrough.NECReadOpcode:
		if cdb[1] != passthrough.NECSignature {
			return errInvalidField
		}
		r := &b.regs
		copy(data, []byte{r.Status, r.Device, r.LBAHighExt, r.LBAMidExt, r.LBALowExt,
			r.LBAHigh, r.LBAMid, r.LBALow, r.SectorCountExt, r.SectorCount, r.Error})
		return nil
	case passthrough.NECWriteOpcode:
		if cdb[1] != passthrough.NECSignature {
			return errInvalidField
		}
	default:
		return errInvalidOpcode
	}
	// Direction bits must agree with the data phase the host set up.
	switch {
	case cdb[13]&0x01 != 0 && dir != ata.DirectionIn,
		cdb[13]&0x02 != 0 && dir != ata.DirectionOut,
		cdb[13]&0x03 == 0 && dir != ata.DirectionNone:
		return errInvalidField
	}
	tf := ata.TaskFile{
		Command:        cdb[2],
		Device:         cdb[3],
		LBAHighExt:     cdb[4],
		LBAMidExt:      cdb[5],
		LBALowExt:      cdb[6],
		LBAHigh:        cdb[7],
		LBAMid:         cdb[8],
		LBALow:         cdb[9],
		SectorCountExt: cdb[10],
		SectorCount:    cdb[11],
		Feature:        cdb[12],
	}
	return b.executeChecked(&tf, dir, data)
}

func (b *Bridge) prolific(cdb []byte, dir ata.Direction, data []byte) error {
	if len(cdb) < 6 {
		return errInvalidOpcode
	}
	switch cdb[0] {
	case passthrough.ProlificGetRegistersOpcode:
		if binary.BigEndian.Uint16(cdb[4:]) != passthrough.ProlificCheckWord {
			return errInvalidField
		}
		r := &b.regs
		copy(data, []byte{r.Status, r.Error, r.SectorCount, r.SectorCountExt, r.LBALow, r.LBALowExt,
			r.LBAMid, r.LBAMidExt, r.LBAHigh, r.LBAHighExt, r.Device})
		return nil
	case passthrough.ProlificExecuteOpcode:
	default:
		return errInvalidOpcode
	}
	if len(cdb) != 16 || binary.BigEndian.Uint16(cdb[4:]) != passthrough.ProlificCheckWord {
		return errInvalidField
	}
	if cdb[1]&0x05 == 0 {
		b.high = [5]uint8{cdb[3], cdb[10], cdb[11], cdb[12], cdb[13]}
		b.highValid = true
		return nil
	}
	if int(binary.BigEndian.Uint32(cdb[6:])) != len(data) {
		return errInvalidField
	}
	if (cdb[1]&0x10 != 0) != (dir == ata.DirectionIn) {
		return errInvalidField
	}
	tf := ata.TaskFile{
		Feature:     cdb[3],
		SectorCount: cdb[10],
		LBALow:      cdb[11],
		LBAMid:      cdb[12],
		LBAHigh:     cdb[13],
		Device:      cdb[14],
		Command:     cdb[15],
	}
	if b.highValid {
		tf.FeatureExt = b.high[0]
		tf.SectorCountExt = b.high[1]
		tf.LBALowExt = b.high[2]
		tf.LBAMidExt = b.high[3]
		tf.LBAHighExt = b.high[4]
		b.highValid = false
	}
	b.execute(&tf, dir, data)
	return nil
}

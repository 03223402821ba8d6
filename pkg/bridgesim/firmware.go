// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridgesim

import (
	"io"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

const statusOK = ata.StatusReady | ata.StatusSeekComplete

// Commands that address the media with the 48-bit register layout.
var lba48 = map[uint8]bool{
	ata.CmdReadSectorsExt:       true,
	ata.CmdReadDMAExt:           true,
	ata.CmdReadMultipleExt:      true,
	ata.CmdWriteSectorsExt:      true,
	ata.CmdWriteDMAExt:          true,
	ata.CmdWriteMultipleExt:     true,
	ata.CmdReadVerifySectorsExt: true,
}

// execute runs one ATA command against the image and latches the result
// registers. Device errors end up in the registers, never as a Go error.
func (b *Bridge) execute(tf *ata.TaskFile, dir ata.Direction, data []byte) {
	switch tf.Command {
	case ata.CmdIdentifyDevice:
		if dir != ata.DirectionIn || len(data) < ata.SectorSize {
			b.abort(tf, ata.ErrorAbort)
			return
		}
		copy(data, b.identity[:])
		b.complete(tf)
	case ata.CmdReadSectors, ata.CmdReadSectorsExt, ata.CmdReadDMA, ata.CmdReadDMAExt,
		ata.CmdReadMultiple, ata.CmdReadMultipleExt:
		b.transfer(tf, dir, data, false)
	case ata.CmdWriteSectors, ata.CmdWriteSectorsExt, ata.CmdWriteDMA, ata.CmdWriteDMAExt,
		ata.CmdWriteMultiple, ata.CmdWriteMultipleExt:
		b.transfer(tf, dir, data, true)
	case ata.CmdReadVerifySectors, ata.CmdReadVerifySectorsExt:
		lba, count := address(tf)
		if lba+count > b.sectors {
			b.abort(tf, ata.ErrorIDNF)
			return
		}
		b.complete(tf)
	case ata.CmdFlushCache, ata.CmdFlushCacheExt, ata.CmdSetFeatures:
		b.complete(tf)
	case ata.CmdCheckPowerMode:
		b.complete(tf)
		b.regs.SectorCount = b.powerMode
	case ata.CmdIdleImmediate:
		b.powerMode = ata.PowerModeIdle
		b.complete(tf)
	case ata.CmdStandbyImmediate:
		b.powerMode = ata.PowerModeStandby
		b.complete(tf)
	case ata.CmdExecuteDiagnostic:
		// Device 0 passed, with the ATA signature in the registers.
		b.regs = ata.RTFR{Status: statusOK, Error: 0x01, SectorCount: 0x01, LBALow: 0x01}
	case ata.CmdSMART:
		b.smart(tf)
	default:
		b.abort(tf, ata.ErrorAbort)
	}
}

// address returns the starting LBA and sector count of a media access.
func address(tf *ata.TaskFile) (lba, count uint64) {
	if lba48[tf.Command] {
		lba = uint64(tf.LBAHighExt)<<40 | uint64(tf.LBAMidExt)<<32 | uint64(tf.LBALowExt)<<24 |
			uint64(tf.LBAHigh)<<16 | uint64(tf.LBAMid)<<8 | uint64(tf.LBALow)
		count = uint64(tf.SectorCountExt)<<8 | uint64(tf.SectorCount)
		if count == 0 {
			count = 65536
		}
		return lba, count
	}
	lba = uint64(tf.Device&0x0f)<<24 | uint64(tf.LBAHigh)<<16 | uint64(tf.LBAMid)<<8 | uint64(tf.LBALow)
	count = uint64(tf.SectorCount)
	if count == 0 {
		count = 256
	}
	return lba, count
}

func (b *Bridge) transfer(tf *ata.TaskFile, dir ata.Direction, data []byte, write bool) {
	want := ata.DirectionIn
	if write {
		want = ata.DirectionOut
	}
	lba, count := address(tf)
	switch {
	case tf.Device&ata.DeviceLBAMode == 0, dir != want:
		b.abort(tf, ata.ErrorAbort)
		return
	case lba+count > b.sectors:
		b.abort(tf, ata.ErrorIDNF)
		return
	case uint64(len(data)) < count*ata.SectorSize:
		b.abort(tf, ata.ErrorAbort)
		return
	}

	buf := data[:count*ata.SectorSize]
	if _, err := b.image.Seek(int64(lba*ata.SectorSize), io.SeekStart); err != nil {
		b.abort(tf, ata.ErrorIDNF)
		return
	}
	var err error
	if write {
		_, err = b.image.Write(buf)
	} else {
		_, err = io.ReadFull(b.image, buf)
	}
	if err != nil {
		b.abort(tf, ata.ErrorUNC)
		return
	}
	b.complete(tf)
}

func (b *Bridge) smart(tf *ata.TaskFile) {
	if tf.LBAMid != 0x4f || tf.LBAHigh != 0xc2 {
		b.abort(tf, ata.ErrorAbort)
		return
	}
	switch tf.Feature {
	case ata.SMARTFeatureReturnStatus:
		b.complete(tf)
		if b.smartFailing {
			b.regs.LBAMid = 0xf4
			b.regs.LBAHigh = 0x2c
		}
	default:
		b.abort(tf, ata.ErrorAbort)
	}
}

// complete latches a successful completion. The address registers keep
// what the host wrote.
func (b *Bridge) complete(tf *ata.TaskFile) {
	b.regs = latch(tf)
	b.regs.Status = statusOK
}

func (b *Bridge) abort(tf *ata.TaskFile, errBits uint8) {
	b.regs = latch(tf)
	b.regs.Status = statusOK | ata.StatusError
	b.regs.Error = errBits
}

func latch(tf *ata.TaskFile) ata.RTFR {
	return ata.RTFR{
		SectorCount:    tf.SectorCount,
		SectorCountExt: tf.SectorCountExt,
		LBALow:         tf.LBALow,
		LBAMid:         tf.LBAMid,
		LBAHigh:        tf.LBAHigh,
		LBALowExt:      tf.LBALowExt,
		LBAMidExt:      tf.LBAMidExt,
		LBAHighExt:     tf.LBAHighExt,
		Device:         tf.Device,
	}
}

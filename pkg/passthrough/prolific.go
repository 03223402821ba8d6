// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package passthrough

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

const (
	ProlificExecuteOpcode      = 0xd8
	ProlificGetRegistersOpcode = 0xd6

	// ProlificCheckWord must be present in every block or the firmware
	// ignores it.
	ProlificCheckWord = 0x067b

	prolificDataIn = 1 << 4
	prolificNormal = 0x05

	prolificRTFRLength = 16
)

// ProlificCDBs holds the blocks for one command. High is only valid for
// 48-bit commands and must reach the bridge before Low.
type ProlificCDBs struct {
	High      CDB16
	HighValid bool
	Low       CDB16
}

func prolificBlock(cmd *ata.Command, flags uint8, feature, count, low, mid, high uint8) (CDB16, error) {
	var cdb CDB16
	if uint64(len(cmd.Data)) > math.MaxUint32 {
		return cdb, fmt.Errorf("%w: transfer of %d bytes", ata.ErrNotSupported, len(cmd.Data))
	}
	cdb[0] = ProlificExecuteOpcode
	cdb[1] = flags
	if cmd.Direction == ata.DirectionIn {
		cdb[1] |= prolificDataIn
	}
	cdb[3] = feature
	binary.BigEndian.PutUint16(cdb[4:], ProlificCheckWord)
	binary.BigEndian.PutUint32(cdb[6:], uint32(len(cmd.Data)))
	cdb[10] = count
	cdb[11] = low
	cdb[12] = mid
	cdb[13] = high
	cdb[14] = cmd.TaskFile.Device
	cdb[15] = cmd.TaskFile.Command
	return cdb, nil
}

// EncodeProlific builds the execute block(s) for cmd.
func EncodeProlific(cmd *ata.Command) (ProlificCDBs, error) {
	var out ProlificCDBs
	switch cmd.Protocol {
	case ata.ProtocolPIO, ata.ProtocolNoData, ata.ProtocolDeviceDiagnostic,
		ata.ProtocolDMA, ata.ProtocolUDMA, ata.ProtocolMultiwordDMA:
	default:
		return out, fmt.Errorf("%w: Prolific bridge cannot carry %v", ata.ErrNotSupported, cmd.Protocol)
	}
	switch cmd.Direction {
	case ata.DirectionNone, ata.DirectionIn, ata.DirectionOut:
	default:
		return out, fmt.Errorf("%w: Prolific bridge cannot carry direction %v", ata.ErrNotSupported, cmd.Direction)
	}

	tf := &cmd.TaskFile
	var err error
	if cmd.Type.IsExtended() {
		out.High, err = prolificBlock(cmd, 0, tf.FeatureExt, tf.SectorCountExt, tf.LBALowExt, tf.LBAMidExt, tf.LBAHighExt)
		if err != nil {
			return out, err
		}
		out.HighValid = true
	}
	out.Low, err = prolificBlock(cmd, prolificNormal, tf.Feature, tf.SectorCount, tf.LBALow, tf.LBAMid, tf.LBAHigh)
	return out, err
}

// ProlificRTFRRequest is the 6 byte get-registers command.
func ProlificRTFRRequest() CDB6 {
	cdb := CDB6{ProlificGetRegistersOpcode}
	binary.BigEndian.PutUint16(cdb[4:], ProlificCheckWord)
	return cdb
}

// DecodeProlificRTFR parses the get-registers response. Standard and Ext
// registers alternate.
func DecodeProlificRTFR(resp []byte, r *ata.RTFR) error {
	if len(resp) < 11 {
		return io.ErrUnexpectedEOF
	}
	r.Status = resp[0]
	r.Error = resp[1]
	r.SectorCount = resp[2]
	r.SectorCountExt = resp[3]
	r.LBALow = resp[4]
	r.LBALowExt = resp[5]
	r.LBAMid = resp[6]
	r.LBAMidExt = resp[7]
	r.LBAHigh = resp[8]
	r.LBAHighExt = resp[9]
	r.Device = resp[10]
	return nil
}

type prolificBridge struct{}

func (prolificBridge) encode(cmd *ata.Command) (blocks, error) {
	cdbs, err := EncodeProlific(cmd)
	if err != nil {
		return blocks{}, err
	}
	b := blocks{primary: cdbs.Low[:]}
	if cdbs.HighValid {
		b.prefix = cdbs.High[:]
	}
	return b, nil
}

func (prolificBridge) readRTFRs(t Transport, cmd *ata.Command, prior error) error {
	req := ProlificRTFRRequest()
	return readRegisters(t, cmd, prior, req[:], prolificRTFRLength, DecodeProlificRTFR)
}

// ReadProlificRTFRs fetches the registers after a command. If prior is a
// transport failure it is returned unchanged and nothing is read.
func ReadProlificRTFRs(t Transport, cmd *ata.Command, prior error) error {
	return prolificBridge{}.readRTFRs(t, cmd, prior)
}

// SendProlific issues cmd through a Prolific bridge. For 48-bit commands the
// high block is sent first and its own result is ignored.
func (d *Device) SendProlific(cmd *ata.Command) error {
	return d.dispatch(prolificBridge{}, cmd)
}

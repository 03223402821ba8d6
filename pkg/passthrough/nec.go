// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package passthrough

import (
	"fmt"
	"io"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

const (
	NECWriteOpcode = 0xf8
	NECReadOpcode  = 0xf9
	NECSignature   = 0x4e

	// Byte 13: multiple mode, protocol and direction
	necMultipleMode   = 1 << 5
	necProtoDiag      = 1 << 2
	necProtoDMA       = 1 << 3
	necProtoQueued    = 1<<3 | 1<<2
	necProtoPacket    = 1 << 4
	necProtoHardReset = 1<<4 | 1<<2
	necDataIn         = 1 << 0
	necDataOut        = 1 << 1

	necRTFRLength = 11
)

func necProtocol(p ata.Protocol) (uint8, error) {
	switch p {
	case ata.ProtocolPIO, ata.ProtocolNoData:
		return 0, nil
	case ata.ProtocolDeviceDiagnostic:
		return necProtoDiag, nil
	case ata.ProtocolDMA, ata.ProtocolUDMA, ata.ProtocolMultiwordDMA:
		return necProtoDMA, nil
	case ata.ProtocolDMAQueued:
		return necProtoQueued, nil
	case ata.ProtocolPacket:
		return necProtoPacket, nil
	case ata.ProtocolHardReset:
		return necProtoHardReset, nil
	default:
		return 0, fmt.Errorf("%w: NEC bridge cannot carry %v", ata.ErrNotSupported, p)
	}
}

func necDirection(d ata.Direction) (uint8, error) {
	switch d {
	case ata.DirectionNone:
		return 0, nil
	case ata.DirectionIn:
		return necDataIn, nil
	case ata.DirectionOut:
		return necDataOut, nil
	default:
		return 0, fmt.Errorf("%w: NEC bridge cannot carry direction %v", ata.ErrNotSupported, d)
	}
}

// EncodeNEC builds the NEC register write block for cmd.
func EncodeNEC(cmd *ata.Command) (CDB16, error) {
	var cdb CDB16
	proto, err := necProtocol(cmd.Protocol)
	if err != nil {
		return cdb, err
	}
	dir, err := necDirection(cmd.Direction)
	if err != nil {
		return cdb, err
	}

	tf := &cmd.TaskFile
	cdb[0] = NECWriteOpcode
	cdb[1] = NECSignature
	cdb[2] = tf.Command
	cdb[3] = tf.Device
	if cmd.Type.IsExtended() {
		cdb[4] = tf.LBAHighExt
		cdb[5] = tf.LBAMidExt
		cdb[6] = tf.LBALowExt
		cdb[10] = tf.SectorCountExt
	}
	cdb[7] = tf.LBAHigh
	cdb[8] = tf.LBAMid
	cdb[9] = tf.LBALow
	cdb[11] = tf.SectorCount
	cdb[12] = tf.Feature
	cdb[13] = proto | dir
	if cmd.MultipleCount != 0 {
		cdb[13] |= necMultipleMode
		cdb[14] = cmd.MultipleCount & 0x0f
	}
	// Byte 14 bits 4-7 carry sector count options nobody has decoded; they
	// stay zero.
	return cdb, nil
}

// NECRTFRRequest is the block that reads back the registers.
func NECRTFRRequest() CDB16 {
	return CDB16{NECReadOpcode, NECSignature}
}

// DecodeNECRTFR parses the 11 byte register read response. The Ext
// registers come before their 28-bit counterparts.
func DecodeNECRTFR(resp []byte, r *ata.RTFR) error {
	if len(resp) < necRTFRLength {
		return io.ErrUnexpectedEOF
	}
	r.Status = resp[0]
	r.Device = resp[1]
	r.LBAHighExt = resp[2]
	r.LBAMidExt = resp[3]
	r.LBALowExt = resp[4]
	r.LBAHigh = resp[5]
	r.LBAMid = resp[6]
	r.LBALow = resp[7]
	r.SectorCountExt = resp[8]
	r.SectorCount = resp[9]
	r.Error = resp[10]
	return nil
}

type necBridge struct{}

func (necBridge) encode(cmd *ata.Command) (blocks, error) {
	cdb, err := EncodeNEC(cmd)
	if err != nil {
		return blocks{}, err
	}
	return blocks{primary: cdb[:]}, nil
}

func (necBridge) readRTFRs(t Transport, cmd *ata.Command, prior error) error {
	req := NECRTFRRequest()
	return readRegisters(t, cmd, prior, req[:], necRTFRLength, DecodeNECRTFR)
}

// ReadNECRTFRs fetches the registers after a command. If prior is a transport
// failure it is returned unchanged and nothing is read.
func ReadNECRTFRs(t Transport, cmd *ata.Command, prior error) error {
	return necBridge{}.readRTFRs(t, cmd, prior)
}

// SendNEC issues cmd through a NEC bridge.
func (d *Device) SendNEC(cmd *ata.Command) error {
	return d.dispatch(necBridge{}, cmd)
}

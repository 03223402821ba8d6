// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Cypress AT2LP / ISD-300 ATA command block (ATACB).

package passthrough

import (
	"fmt"
	"io"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

const (
	CypressSignature  = 0x24
	CypressSubcommand = 0x24

	// Flag byte (CDB byte 2)
	cypressIdentifyData = 1 << 7
	cypressUDMACommand  = 1 << 6
	cypressTaskFileRead = 1 << 0

	// Every register in bytes 5-12 is written.
	cypressRegisterSelectAll = 0xff

	cypressRTFRLength = 8
)

// EncodeCypress builds the ATACB for cmd. The ATACB has no room for the Ext
// registers, so 48-bit commands are rejected.
func EncodeCypress(cmd *ata.Command) (CDB16, error) {
	var cdb CDB16
	if cmd.Type.IsExtended() {
		return cdb, fmt.Errorf("%w: Cypress ATACB has no 48-bit registers", ata.ErrNotSupported)
	}
	switch cmd.Protocol {
	case ata.ProtocolPIO, ata.ProtocolNoData, ata.ProtocolDeviceDiagnostic,
		ata.ProtocolDMA, ata.ProtocolUDMA, ata.ProtocolMultiwordDMA:
	default:
		return cdb, fmt.Errorf("%w: Cypress ATACB cannot carry %v", ata.ErrNotSupported, cmd.Protocol)
	}

	tf := &cmd.TaskFile
	cdb[0] = CypressSignature
	cdb[1] = CypressSubcommand
	if cmd.IsIdentify() {
		cdb[2] |= cypressIdentifyData
	}
	if cmd.Protocol.IsDMA() {
		cdb[2] |= cypressUDMACommand
	}
	cdb[3] = cypressRegisterSelectAll
	if cmd.MultipleCount != 0 {
		cdb[4] = cmd.MultipleCount
	}
	cdb[5] = tf.DeviceControl
	cdb[6] = tf.Feature
	cdb[7] = tf.SectorCount
	cdb[8] = tf.LBALow
	cdb[9] = tf.LBAMid
	cdb[10] = tf.LBAHigh
	cdb[11] = tf.Device
	cdb[12] = tf.Command
	return cdb, nil
}

// CypressRTFRRequest is the ATACB that reads back the task file.
func CypressRTFRRequest() CDB16 {
	return CDB16{CypressSignature, CypressSubcommand, cypressTaskFileRead}
}

// DecodeCypressRTFR parses the 8 byte task file read response. Byte 0 holds
// the alternate status register and is ignored.
func DecodeCypressRTFR(resp []byte, r *ata.RTFR) error {
	if len(resp) < cypressRTFRLength {
		return io.ErrUnexpectedEOF
	}
	r.Error = resp[1]
	r.SectorCount = resp[2]
	r.LBALow = resp[3]
	r.LBAMid = resp[4]
	r.LBAHigh = resp[5]
	r.Device = resp[6]
	r.Status = resp[7]
	return nil
}

type cypressBridge struct{}

func (cypressBridge) encode(cmd *ata.Command) (blocks, error) {
	cdb, err := EncodeCypress(cmd)
	if err != nil {
		return blocks{}, err
	}
	return blocks{primary: cdb[:]}, nil
}

func (cypressBridge) readRTFRs(t Transport, cmd *ata.Command, prior error) error {
	req := CypressRTFRRequest()
	return readRegisters(t, cmd, prior, req[:], cypressRTFRLength, DecodeCypressRTFR)
}

// ReadCypressRTFRs fetches the task file registers after a command. If prior
// is a transport failure it is returned unchanged and nothing is read.
func ReadCypressRTFRs(t Transport, cmd *ata.Command, prior error) error {
	return cypressBridge{}.readRTFRs(t, cmd, prior)
}

// SendCypress issues cmd through a Cypress ATACB bridge.
func (d *Device) SendCypress(cmd *ata.Command) error {
	return d.dispatch(cypressBridge{}, cmd)
}

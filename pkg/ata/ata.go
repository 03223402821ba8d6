// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import (
	"errors"
)

var (
	ErrNotSupported         = errors.New("operation is not supported")
	ErrMemoryFailure        = errors.New("memory allocation failed")
	ErrBadParameter         = errors.New("bad parameter")
	ErrInvalidConfiguration = errors.New("invalid pass-through configuration")
	ErrInProgress           = errors.New("command in progress")
	ErrCommandTimeout       = errors.New("command timed out")
	ErrFailure              = errors.New("command failed")

	// ErrTransportFailure is returned by a transport when the command never
	// reached the device, as opposed to the device rejecting it.
	ErrTransportFailure = errors.New("pass-through transport failure")
)

// Status register bits
const (
	StatusError        = 0x01
	StatusIndex        = 0x02
	StatusCorrected    = 0x04
	StatusDRQ          = 0x08
	StatusSeekComplete = 0x10
	StatusDeviceFault  = 0x20
	StatusReady        = 0x40
	StatusBusy         = 0x80
)

// Error register bits
const (
	ErrorAMNF  = 0x01
	ErrorTK0NF = 0x02
	ErrorAbort = 0x04
	ErrorMCR   = 0x08
	ErrorIDNF  = 0x10
	ErrorMC    = 0x20
	ErrorUNC   = 0x40
	ErrorICRC  = 0x80
)

// Device/head register bits
const (
	DeviceObsolete = 0xa0
	DeviceLBAMode  = 0x40
	DeviceSlave    = 0x10
)

// Device control register bits
const (
	ControlNIEN = 0x02
	ControlSRST = 0x04
	ControlHOB  = 0x80
)

const (
	SectorSize = 512

	// MaxSenseLength is the size of the scoped sense buffer and of the
	// device's last sense data.
	MaxSenseLength = 252
)

// ATA command opcodes
const (
	CmdNOP                  = 0x00
	CmdDataSetManagement    = 0x06
	CmdDeviceReset          = 0x08
	CmdReadSectors          = 0x20
	CmdReadSectorsExt       = 0x24
	CmdReadDMAExt           = 0x25
	CmdReadDMAQueuedExt     = 0x26
	CmdReadMultipleExt      = 0x29
	CmdReadLogExt           = 0x2f
	CmdWriteSectors         = 0x30
	CmdWriteSectorsExt      = 0x34
	CmdWriteDMAExt          = 0x35
	CmdWriteDMAQueuedExt    = 0x36
	CmdWriteMultipleExt     = 0x39
	CmdWriteLogExt          = 0x3f
	CmdReadVerifySectors    = 0x40
	CmdReadVerifySectorsExt = 0x42
	CmdZoneManagementIn     = 0x4a
	CmdTrustedNonData       = 0x5b
	CmdTrustedReceive       = 0x5c
	CmdTrustedReceiveDMA    = 0x5d
	CmdTrustedSend          = 0x5e
	CmdTrustedSendDMA       = 0x5f
	CmdReadFPDMAQueued      = 0x60
	CmdWriteFPDMAQueued     = 0x61
	CmdExecuteDiagnostic    = 0x90
	CmdZoneManagementOut    = 0x9f
	CmdPacket               = 0xa0
	CmdIdentifyPacketDevice = 0xa1
	CmdSMART                = 0xb0
	CmdSanitize             = 0xb4
	CmdReadMultiple         = 0xc4
	CmdWriteMultiple        = 0xc5
	CmdReadDMAQueued        = 0xc7
	CmdReadDMA              = 0xc8
	CmdWriteDMA             = 0xca
	CmdWriteDMAQueued       = 0xcc
	CmdStandbyImmediate     = 0xe0
	CmdIdleImmediate        = 0xe1
	CmdCheckPowerMode       = 0xe5
	CmdFlushCache           = 0xe7
	CmdIdentifyDevice       = 0xec
	CmdFlushCacheExt        = 0xea
	CmdSetFeatures          = 0xef
	CmdSecuritySetPassword  = 0xf1
	CmdSecurityUnlock       = 0xf2
	CmdSecurityErasePrepare = 0xf3
	CmdSecurityEraseUnit    = 0xf4
	CmdSecurityFreezeLock   = 0xf5
	CmdSecurityDisable      = 0xf6
)

// SMART feature register values
const (
	SMARTFeatureReadData     = 0xd0
	SMARTFeatureReadLog      = 0xd5
	SMARTFeatureReturnStatus = 0xda

	smartSignatureMid     = 0x4f
	smartSignatureHigh    = 0xc2
	smartThresholdMid     = 0xf4
	smartThresholdHigh    = 0x2c
	sanitizeSignatureBE32 = 0x426b4572 // "BkEr"
	sanitizeSignatureCS32 = 0x43727970 // "Cryp"
	sanitizeSignatureOW   = 0x4f57     // "OW"
	sanitizeFreezeLock32  = 0x46724c6b // "FrLk"
)

// Sanitize feature register values
const (
	SanitizeActionStatus         = 0x0000
	SanitizeActionCryptoScramble = 0x0011
	SanitizeActionBlockErase     = 0x0012
	SanitizeActionOverwrite      = 0x0014
	SanitizeActionFreezeLock     = 0x0020
	SanitizeActionAntiFreezeLock = 0x0040

	sanitizeClearFailure    = 0x01
	sanitizeFailureModeBit  = 0x10
	sanitizeInvertPattern   = 0x80
	sanitizeZoneNoReset     = 0x8000
	sanitizeOverwriteMaxCnt = 0x0f
)

// Zone management actions
const (
	ZoneActionReportZones = 0x00
	ZoneActionClose       = 0x01
	ZoneActionFinish      = 0x02
	ZoneActionOpen        = 0x03
	ZoneActionResetWP     = 0x04

	zoneAllBit = 0x01
)

// CHECK POWER MODE sector count results
const (
	PowerModeStandby = 0x00
	PowerModeIdle    = 0x80
	PowerModeActive  = 0xff
)

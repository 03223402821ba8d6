// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ata implements the protocol-neutral ATA command descriptor that is
// handed to a pass-through dispatcher, together with builders for the named
// ATA operations.
package ata

import (
	"fmt"
	"time"
)

// DefaultTimeout is used when a Command carries a zero Timeout.
const DefaultTimeout = 15 * time.Second

// Protocol is the ATA transfer protocol of a command.
type Protocol int

const (
	ProtocolPIO Protocol = iota
	ProtocolDMA
	ProtocolUDMA
	ProtocolMultiwordDMA
	ProtocolNoData
	ProtocolDeviceDiagnostic
	ProtocolSoftReset
	ProtocolHardReset
	ProtocolFPDMA
	ProtocolPacket
	// Legacy tagged command queuing (READ/WRITE DMA QUEUED).
	ProtocolDMAQueued
)

func (p Protocol) String() string {
	switch p {
	case ProtocolPIO:
		return "PIO"
	case ProtocolDMA:
		return "DMA"
	case ProtocolUDMA:
		return "UDMA"
	case ProtocolMultiwordDMA:
		return "Multiword DMA"
	case ProtocolNoData:
		return "Non-data"
	case ProtocolDeviceDiagnostic:
		return "Device Diagnostic"
	case ProtocolSoftReset:
		return "Soft Reset"
	case ProtocolHardReset:
		return "Hard Reset"
	case ProtocolFPDMA:
		return "FPDMA"
	case ProtocolPacket:
		return "Packet"
	case ProtocolDMAQueued:
		return "DMA Queued"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// IsDMA reports whether the protocol moves data by any DMA flavour.
func (p Protocol) IsDMA() bool {
	switch p {
	case ProtocolDMA, ProtocolUDMA, ProtocolMultiwordDMA, ProtocolFPDMA, ProtocolDMAQueued:
		return true
	}
	return false
}

// CommandType selects which register set of the task file is in use.
type CommandType int

const (
	// 28-bit task file; LBA bits 24-27 live in the device/head register.
	CommandTypeTaskFile CommandType = iota
	// 48-bit task file; the Ext registers are meaningful.
	CommandTypeExtendedTaskFile
	// 48-bit task file plus the auxiliary and ICC registers.
	CommandTypeCompleteTaskFile
)

func (t CommandType) String() string {
	switch t {
	case CommandTypeTaskFile:
		return "28-bit"
	case CommandTypeExtendedTaskFile:
		return "48-bit"
	case CommandTypeCompleteTaskFile:
		return "Complete"
	default:
		return fmt.Sprintf("CommandType(%d)", int(t))
	}
}

// IsExtended reports whether the Ext registers are part of the command.
func (t CommandType) IsExtended() bool {
	return t == CommandTypeExtendedTaskFile || t == CommandTypeCompleteTaskFile
}

// Direction of the data phase.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionOut            // host to device
	DirectionIn             // device to host
)

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionOut:
		return "out"
	case DirectionIn:
		return "in"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// TaskFile is the set of command registers written to the device.
type TaskFile struct {
	Command        uint8
	Feature        uint8
	FeatureExt     uint8
	SectorCount    uint8
	SectorCountExt uint8
	LBALow         uint8
	LBAMid         uint8
	LBAHigh        uint8
	LBALowExt      uint8
	LBAMidExt      uint8
	LBAHighExt     uint8
	Device         uint8
	DeviceControl  uint8
	Aux1           uint8
	Aux2           uint8
	Aux3           uint8
	Aux4           uint8
	ICC            uint8
}

// RTFR holds the return task file registers read back after completion.
type RTFR struct {
	Status         uint8
	Error          uint8
	SectorCount    uint8
	SectorCountExt uint8
	LBALow         uint8
	LBAMid         uint8
	LBAHigh        uint8
	LBALowExt      uint8
	LBAMidExt      uint8
	LBAHighExt     uint8
	Device         uint8
	StatusExt      uint8
	ErrorExt       uint8
}

// LBA28 reassembles a 28-bit LBA from the returned registers.
func (r *RTFR) LBA28() uint32 {
	return uint32(r.Device&0x0f)<<24 | uint32(r.LBAHigh)<<16 | uint32(r.LBAMid)<<8 | uint32(r.LBALow)
}

// LBA48 reassembles a 48-bit LBA from the returned registers.
func (r *RTFR) LBA48() uint64 {
	return uint64(r.LBAHighExt)<<40 | uint64(r.LBAMidExt)<<32 | uint64(r.LBALowExt)<<24 |
		uint64(r.LBAHigh)<<16 | uint64(r.LBAMid)<<8 | uint64(r.LBALow)
}

// Command is the protocol-neutral description of one ATA command. It is
// created by a builder, passed by reference through a dispatcher which fills
// RTFR in place, and discarded by the caller afterwards.
type Command struct {
	Protocol  Protocol
	Type      CommandType
	Direction Direction
	TaskFile  TaskFile

	// Data is the transfer buffer; nil for non-data commands.
	Data []byte

	// MultipleCount is the log2 of the sectors per DRQ block used by
	// READ/WRITE MULTIPLE. Zero when unused.
	MultipleCount uint8

	// Timeout of the command; zero selects DefaultTimeout.
	Timeout time.Duration

	RTFR RTFR

	// Sense receives the transport's sense data. When nil the dispatcher
	// allocates a buffer for the duration of the call.
	Sense []byte
}

// EffectiveTimeout returns Timeout or DefaultTimeout if it is unset.
func (c *Command) EffectiveTimeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// SetLBA28 stores a 28-bit LBA. Bits 24-27 go into the device/head register
// and the LBA mode bit is set.
func (c *Command) SetLBA28(lba uint32) {
	c.TaskFile.LBALow = uint8(lba)
	c.TaskFile.LBAMid = uint8(lba >> 8)
	c.TaskFile.LBAHigh = uint8(lba >> 16)
	c.TaskFile.Device = c.TaskFile.Device&0xf0 | uint8(lba>>24)&0x0f | DeviceLBAMode
	c.TaskFile.LBALowExt = 0
	c.TaskFile.LBAMidExt = 0
	c.TaskFile.LBAHighExt = 0
}

// SetLBA48 stores a 48-bit LBA across the standard and Ext registers.
func (c *Command) SetLBA48(lba uint64) {
	c.TaskFile.LBALow = uint8(lba)
	c.TaskFile.LBAMid = uint8(lba >> 8)
	c.TaskFile.LBAHigh = uint8(lba >> 16)
	c.TaskFile.LBALowExt = uint8(lba >> 24)
	c.TaskFile.LBAMidExt = uint8(lba >> 32)
	c.TaskFile.LBAHighExt = uint8(lba >> 40)
	c.TaskFile.Device |= DeviceLBAMode
}

// SetSectorCount16 stores a 16-bit count into SectorCount/SectorCountExt.
func (c *Command) SetSectorCount16(count uint16) {
	c.TaskFile.SectorCount = uint8(count)
	c.TaskFile.SectorCountExt = uint8(count >> 8)
}

// IsIdentify reports whether the command register holds one of the IDENTIFY
// opcodes.
func (c *Command) IsIdentify() bool {
	return c.TaskFile.Command == CmdIdentifyDevice || c.TaskFile.Command == CmdIdentifyPacketDevice
}

// Validate checks that protocol, direction, command type and the data buffer
// agree with each other.
func (c *Command) Validate() error {
	switch c.Direction {
	case DirectionNone:
		if len(c.Data) != 0 {
			return fmt.Errorf("%w: non-data command carries a %d byte buffer", ErrBadParameter, len(c.Data))
		}
	case DirectionIn, DirectionOut:
		if len(c.Data) == 0 {
			return fmt.Errorf("%w: data-%s command without a buffer", ErrBadParameter, c.Direction)
		}
	default:
		return fmt.Errorf("%w: unknown direction %v", ErrBadParameter, c.Direction)
	}
	switch c.Protocol {
	case ProtocolNoData, ProtocolDeviceDiagnostic, ProtocolSoftReset, ProtocolHardReset:
		if c.Direction != DirectionNone {
			return fmt.Errorf("%w: %v protocol cannot transfer data", ErrBadParameter, c.Protocol)
		}
	case ProtocolFPDMA:
		if !c.Type.IsExtended() {
			return fmt.Errorf("%w: FPDMA requires an extended command type", ErrBadParameter)
		}
	}
	if !c.Type.IsExtended() {
		t := c.TaskFile
		if t.FeatureExt != 0 || t.SectorCountExt != 0 || t.LBALowExt != 0 || t.LBAMidExt != 0 || t.LBAHighExt != 0 {
			return fmt.Errorf("%w: Ext registers set on a 28-bit command", ErrBadParameter)
		}
	}
	if c.MultipleCount > 7 {
		return fmt.Errorf("%w: multiple count exponent %d out of range", ErrBadParameter, c.MultipleCount)
	}
	return nil
}

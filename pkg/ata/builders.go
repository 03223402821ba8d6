// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Builders for named ATA operations. Every builder returns a fully populated
// Command; callers only dispatch it and inspect Data / RTFR afterwards.

package ata

import (
	"fmt"
)

const (
	maxLBA28   = 1<<28 - 1
	maxLBA48   = 1<<48 - 1
	maxCount28 = 256
	maxCount48 = 65536
)

func newCommand(opcode uint8, proto Protocol, dir Direction, data []byte) *Command {
	c := &Command{
		Protocol:  proto,
		Direction: dir,
		Data:      data,
	}
	c.TaskFile.Command = opcode
	c.TaskFile.Device = DeviceObsolete
	return c
}

func nonData(opcode uint8) *Command {
	return newCommand(opcode, ProtocolNoData, DirectionNone, nil)
}

// needsExt reports whether an access must use the 48-bit command set.
func needsExt(lba uint64, count int) bool {
	return lba+uint64(count) > maxLBA28 || count > maxCount28
}

func checkRange(lba uint64, count int) error {
	if count <= 0 || count > maxCount48 {
		return fmt.Errorf("%w: sector count %d out of range", ErrBadParameter, count)
	}
	if lba+uint64(count)-1 > maxLBA48 {
		return fmt.Errorf("%w: LBA %d out of range", ErrBadParameter, lba)
	}
	return nil
}

// setAddress fills LBA and sector count using the 28-bit layout when
// possible and the 48-bit layout otherwise. A count of 256 (28-bit) or
// 65536 (48-bit) is encoded as zero.
func (c *Command) setAddress(lba uint64, count int, ext bool) {
	if ext {
		c.Type = CommandTypeExtendedTaskFile
		c.SetLBA48(lba)
		c.SetSectorCount16(uint16(count))
		return
	}
	c.Type = CommandTypeTaskFile
	c.SetLBA28(uint32(lba))
	c.TaskFile.SectorCount = uint8(count)
}

func sectorsIn(data []byte) (int, error) {
	if len(data) == 0 || len(data)%SectorSize != 0 {
		return 0, fmt.Errorf("%w: buffer of %d bytes is not a whole number of sectors", ErrBadParameter, len(data))
	}
	return len(data) / SectorSize, nil
}

// Identify returns IDENTIFY DEVICE with a freshly allocated 512 byte buffer.
func Identify() *Command {
	c := newCommand(CmdIdentifyDevice, ProtocolPIO, DirectionIn, make([]byte, SectorSize))
	c.TaskFile.SectorCount = 1
	return c
}

// IdentifyPacket returns IDENTIFY PACKET DEVICE.
func IdentifyPacket() *Command {
	c := newCommand(CmdIdentifyPacketDevice, ProtocolPIO, DirectionIn, make([]byte, SectorSize))
	c.TaskFile.SectorCount = 1
	return c
}

// ReadSectors returns READ SECTORS (EXT), a PIO data-in read.
func ReadSectors(lba uint64, count int) (*Command, error) {
	if err := checkRange(lba, count); err != nil {
		return nil, err
	}
	ext := needsExt(lba, count)
	op := uint8(CmdReadSectors)
	if ext {
		op = CmdReadSectorsExt
	}
	c := newCommand(op, ProtocolPIO, DirectionIn, make([]byte, count*SectorSize))
	c.setAddress(lba, count, ext)
	return c, nil
}

// WriteSectors returns WRITE SECTORS (EXT) for data.
func WriteSectors(lba uint64, data []byte) (*Command, error) {
	count, err := sectorsIn(data)
	if err != nil {
		return nil, err
	}
	if err := checkRange(lba, count); err != nil {
		return nil, err
	}
	ext := needsExt(lba, count)
	op := uint8(CmdWriteSectors)
	if ext {
		op = CmdWriteSectorsExt
	}
	c := newCommand(op, ProtocolPIO, DirectionOut, data)
	c.setAddress(lba, count, ext)
	return c, nil
}

// ReadMultiple returns READ MULTIPLE (EXT). multipleCount is the log2 of
// the DRQ block size configured with SET MULTIPLE MODE.
func ReadMultiple(lba uint64, count int, multipleCount uint8) (*Command, error) {
	c, err := ReadSectors(lba, count)
	if err != nil {
		return nil, err
	}
	c.TaskFile.Command = CmdReadMultiple
	if c.Type.IsExtended() {
		c.TaskFile.Command = CmdReadMultipleExt
	}
	c.MultipleCount = multipleCount
	return c, nil
}

// WriteMultiple returns WRITE MULTIPLE (EXT).
func WriteMultiple(lba uint64, data []byte, multipleCount uint8) (*Command, error) {
	c, err := WriteSectors(lba, data)
	if err != nil {
		return nil, err
	}
	c.TaskFile.Command = CmdWriteMultiple
	if c.Type.IsExtended() {
		c.TaskFile.Command = CmdWriteMultipleExt
	}
	c.MultipleCount = multipleCount
	return c, nil
}

// ReadDMA returns READ DMA (EXT).
func ReadDMA(lba uint64, count int) (*Command, error) {
	if err := checkRange(lba, count); err != nil {
		return nil, err
	}
	ext := needsExt(lba, count)
	op := uint8(CmdReadDMA)
	if ext {
		op = CmdReadDMAExt
	}
	c := newCommand(op, ProtocolDMA, DirectionIn, make([]byte, count*SectorSize))
	c.setAddress(lba, count, ext)
	return c, nil
}

// WriteDMA returns WRITE DMA (EXT) for data.
func WriteDMA(lba uint64, data []byte) (*Command, error) {
	count, err := sectorsIn(data)
	if err != nil {
		return nil, err
	}
	if err := checkRange(lba, count); err != nil {
		return nil, err
	}
	ext := needsExt(lba, count)
	op := uint8(CmdWriteDMA)
	if ext {
		op = CmdWriteDMAExt
	}
	c := newCommand(op, ProtocolDMA, DirectionOut, data)
	c.setAddress(lba, count, ext)
	return c, nil
}

// ReadVerifySectors returns READ VERIFY SECTORS (EXT); no data is moved.
func ReadVerifySectors(lba uint64, count int) (*Command, error) {
	if err := checkRange(lba, count); err != nil {
		return nil, err
	}
	ext := needsExt(lba, count)
	op := uint8(CmdReadVerifySectors)
	if ext {
		op = CmdReadVerifySectorsExt
	}
	c := nonData(op)
	c.setAddress(lba, count, ext)
	return c, nil
}

// FlushCache returns FLUSH CACHE, or FLUSH CACHE EXT when ext is set.
func FlushCache(ext bool) *Command {
	if ext {
		c := nonData(CmdFlushCacheExt)
		c.Type = CommandTypeExtendedTaskFile
		return c
	}
	return nonData(CmdFlushCache)
}

// CheckPowerMode returns CHECK POWER MODE; the mode is reported in
// RTFR.SectorCount.
func CheckPowerMode() *Command {
	return nonData(CmdCheckPowerMode)
}

func IdleImmediate() *Command {
	return nonData(CmdIdleImmediate)
}

func StandbyImmediate() *Command {
	return nonData(CmdStandbyImmediate)
}

// ExecuteDeviceDiagnostic returns EXECUTE DEVICE DIAGNOSTIC.
func ExecuteDeviceDiagnostic() *Command {
	return newCommand(CmdExecuteDiagnostic, ProtocolDeviceDiagnostic, DirectionNone, nil)
}

// SetFeatures returns SET FEATURES with the given subcommand and count.
func SetFeatures(feature, count uint8) *Command {
	c := nonData(CmdSetFeatures)
	c.TaskFile.Feature = feature
	c.TaskFile.SectorCount = count
	return c
}

func smartCommand(feature uint8, dir Direction, data []byte) *Command {
	proto := ProtocolPIO
	if dir == DirectionNone {
		proto = ProtocolNoData
	}
	c := newCommand(CmdSMART, proto, dir, data)
	c.TaskFile.Feature = feature
	c.TaskFile.LBAMid = smartSignatureMid
	c.TaskFile.LBAHigh = smartSignatureHigh
	return c
}

// SMARTReadData returns SMART READ DATA.
func SMARTReadData() *Command {
	c := smartCommand(SMARTFeatureReadData, DirectionIn, make([]byte, SectorSize))
	c.TaskFile.SectorCount = 1
	return c
}

// SMARTReturnStatus returns SMART RETURN STATUS. Interpret the result with
// SMARTStatus.
func SMARTReturnStatus() *Command {
	return smartCommand(SMARTFeatureReturnStatus, DirectionNone, nil)
}

// SMARTReadLog returns SMART READ LOG for the given log address.
func SMARTReadLog(logAddress uint8, sectors uint8) (*Command, error) {
	if sectors == 0 {
		return nil, fmt.Errorf("%w: SMART READ LOG needs at least one sector", ErrBadParameter)
	}
	c := smartCommand(SMARTFeatureReadLog, DirectionIn, make([]byte, int(sectors)*SectorSize))
	c.TaskFile.SectorCount = sectors
	c.TaskFile.LBALow = logAddress
	return c, nil
}

// SMARTStatus interprets the registers returned by SMART RETURN STATUS. It
// reports false when the device signals a threshold exceeded condition.
func SMARTStatus(r *RTFR) (bool, error) {
	switch {
	case r.LBAMid == smartSignatureMid && r.LBAHigh == smartSignatureHigh:
		return true, nil
	case r.LBAMid == smartThresholdMid && r.LBAHigh == smartThresholdHigh:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected SMART signature %#02x/%#02x", r.LBAMid, r.LBAHigh)
	}
}

// ReadLogExt returns READ LOG EXT, transferring the log by PIO.
func ReadLogExt(logAddress uint8, page uint16, sectors uint16) (*Command, error) {
	if sectors == 0 {
		return nil, fmt.Errorf("%w: READ LOG EXT needs at least one sector", ErrBadParameter)
	}
	c := newCommand(CmdReadLogExt, ProtocolPIO, DirectionIn, make([]byte, int(sectors)*SectorSize))
	c.Type = CommandTypeExtendedTaskFile
	c.SetSectorCount16(sectors)
	c.TaskFile.LBALow = logAddress
	c.TaskFile.LBAMid = uint8(page)
	c.TaskFile.LBAMidExt = uint8(page >> 8)
	c.TaskFile.Device = DeviceObsolete | DeviceLBAMode
	return c, nil
}

func sanitize(action uint16, count uint16, lba uint64) *Command {
	c := nonData(CmdSanitize)
	c.Type = CommandTypeExtendedTaskFile
	c.TaskFile.Feature = uint8(action)
	c.TaskFile.FeatureExt = uint8(action >> 8)
	c.SetSectorCount16(count)
	c.SetLBA48(lba)
	return c
}

// SanitizeStatus returns SANITIZE STATUS EXT. The progress indication is
// reported in the returned LBA registers.
func SanitizeStatus(clearFailure bool) *Command {
	var count uint16
	if clearFailure {
		count |= sanitizeClearFailure
	}
	return sanitize(SanitizeActionStatus, count, 0)
}

func sanitizeCount(failureMode, zoneNoReset bool) uint16 {
	var count uint16
	if failureMode {
		count |= sanitizeFailureModeBit
	}
	if zoneNoReset {
		count |= sanitizeZoneNoReset
	}
	return count
}

// SanitizeCryptoScramble returns CRYPTO SCRAMBLE EXT.
func SanitizeCryptoScramble(failureMode, zoneNoReset bool) *Command {
	return sanitize(SanitizeActionCryptoScramble, sanitizeCount(failureMode, zoneNoReset), sanitizeSignatureCS32)
}

// SanitizeBlockErase returns BLOCK ERASE EXT.
func SanitizeBlockErase(failureMode, zoneNoReset bool) *Command {
	return sanitize(SanitizeActionBlockErase, sanitizeCount(failureMode, zoneNoReset), sanitizeSignatureBE32)
}

// SanitizeOverwrite returns OVERWRITE EXT writing pattern passes times.
func SanitizeOverwrite(pattern uint32, passes uint8, invert, failureMode, zoneNoReset bool) (*Command, error) {
	if passes == 0 || passes > sanitizeOverwriteMaxCnt+1 {
		return nil, fmt.Errorf("%w: overwrite pass count %d out of range", ErrBadParameter, passes)
	}
	count := sanitizeCount(failureMode, zoneNoReset) | uint16(passes)&sanitizeOverwriteMaxCnt
	if invert {
		count |= sanitizeInvertPattern
	}
	return sanitize(SanitizeActionOverwrite, count, uint64(sanitizeSignatureOW)<<32|uint64(pattern)), nil
}

// SanitizeFreezeLock returns SANITIZE FREEZE LOCK EXT.
func SanitizeFreezeLock() *Command {
	return sanitize(SanitizeActionFreezeLock, 0, sanitizeFreezeLock32)
}

// ReportZones returns REPORT ZONES EXT for pages 512-byte pages starting at
// zoneLocator.
func ReportZones(zoneLocator uint64, reportingOptions uint8, pages uint16) (*Command, error) {
	if pages == 0 {
		return nil, fmt.Errorf("%w: REPORT ZONES needs at least one page", ErrBadParameter)
	}
	c := newCommand(CmdZoneManagementIn, ProtocolDMA, DirectionIn, make([]byte, int(pages)*SectorSize))
	c.Type = CommandTypeExtendedTaskFile
	c.TaskFile.Feature = ZoneActionReportZones
	c.TaskFile.FeatureExt = reportingOptions & 0x3f
	c.SetSectorCount16(pages)
	c.SetLBA48(zoneLocator)
	return c, nil
}

// ZoneManagement returns a ZONE MANAGEMENT OUT non-data action (open,
// close, finish or reset write pointer) on zoneID, or on all zones.
func ZoneManagement(action uint8, zoneID uint64, all bool) (*Command, error) {
	switch action {
	case ZoneActionClose, ZoneActionFinish, ZoneActionOpen, ZoneActionResetWP:
	default:
		return nil, fmt.Errorf("%w: zone action %#02x", ErrBadParameter, action)
	}
	c := nonData(CmdZoneManagementOut)
	c.Type = CommandTypeExtendedTaskFile
	c.TaskFile.Feature = action
	if all {
		c.TaskFile.FeatureExt = zoneAllBit
	} else {
		c.SetLBA48(zoneID)
	}
	return c, nil
}

func trusted(opcode uint8, dir Direction, proto uint8, sps uint16, data []byte) (*Command, error) {
	blocks := len(data) / SectorSize
	if len(data)%SectorSize != 0 || blocks > 0xffff {
		return nil, fmt.Errorf("%w: trusted transfer of %d bytes", ErrBadParameter, len(data))
	}
	p := ProtocolPIO
	if dir == DirectionNone {
		p = ProtocolNoData
	}
	c := newCommand(opcode, p, dir, data)
	c.TaskFile.Feature = proto
	c.TaskFile.SectorCount = uint8(blocks)
	c.TaskFile.LBALow = uint8(blocks >> 8)
	c.TaskFile.LBAMid = uint8(sps)
	c.TaskFile.LBAHigh = uint8(sps >> 8)
	return c, nil
}

// TrustedReceive returns TRUSTED RECEIVE filling data.
func TrustedReceive(proto uint8, sps uint16, data []byte) (*Command, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: TRUSTED RECEIVE without a buffer", ErrBadParameter)
	}
	return trusted(CmdTrustedReceive, DirectionIn, proto, sps, data)
}

// TrustedSend returns TRUSTED SEND, or TRUSTED NON-DATA when data is empty.
func TrustedSend(proto uint8, sps uint16, data []byte) (*Command, error) {
	if len(data) == 0 {
		return trusted(CmdTrustedNonData, DirectionNone, proto, sps, nil)
	}
	return trusted(CmdTrustedSend, DirectionOut, proto, sps, data)
}

// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	smartata "github.com/dswarbrick/smart/ata"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
)

var (
	ErrDeviceNotSupported = errors.New("device is not supported")
)

type SecurityProtocol int

const (
	SecurityProtocolInformation   SecurityProtocol = 0
	SecurityProtocolTCGManagement SecurityProtocol = 1
	SecurityProtocolTCGTPer       SecurityProtocol = 2
	SecurityProtocolATASecurity   SecurityProtocol = 0xef
)

type Identity struct {
	Protocol     string
	SerialNumber string
	Model        string
	Firmware     string
	Sectors      uint64
}

func (i *Identity) String() string {
	return fmt.Sprintf("Protocol=%s, Model=%s, Serial=%s, Firmware=%s, Sectors=%d",
		i.Protocol, i.Model, i.SerialNumber, i.Firmware, i.Sectors)
}

type SendReceive interface {
	IFRecv(proto SecurityProtocol, sps uint16, data *[]byte) error
	IFSend(proto SecurityProtocol, sps uint16, data []byte) error
}

// Drive is an ATA drive behind a pass-through bridge.
type Drive struct {
	dev    *passthrough.Device
	closer io.Closer
}

// New wraps a transport. closer, if not nil, is closed by Close.
func New(t passthrough.Transport, hack passthrough.Hack, closer io.Closer, opts ...passthrough.DeviceOpt) *Drive {
	return &Drive{
		dev:    passthrough.NewDevice(t, hack, opts...),
		closer: closer,
	}
}

// Device returns the underlying pass-through device, e.g. to inspect the
// last command state.
func (d *Drive) Device() *passthrough.Device {
	return d.dev
}

// Execute validates and dispatches cmd.
func (d *Drive) Execute(cmd *ata.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	return d.dev.Passthrough(cmd)
}

// IdentifyData returns the raw IDENTIFY DEVICE page.
func (d *Drive) IdentifyData() ([]byte, error) {
	cmd := ata.Identify()
	if err := d.Execute(cmd); err != nil {
		return nil, fmt.Errorf("IDENTIFY DEVICE: %w", err)
	}
	return cmd.Data, nil
}

func (d *Drive) Identify() (*Identity, error) {
	raw, err := d.IdentifyData()
	if err != nil {
		return nil, err
	}
	return ParseIdentity(raw, "ATA/"+d.dev.Hack().String())
}

// ParseIdentity decodes an IDENTIFY DEVICE page.
func ParseIdentity(raw []byte, protocol string) (*Identity, error) {
	var id smartata.IdentifyDeviceData
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &id); err != nil {
		return nil, fmt.Errorf("failed to parse IDENTIFY DEVICE data: %v", err)
	}
	if id.GeneralConfig&0x8000 != 0 {
		return nil, fmt.Errorf("%w: not an ATA device (general configuration %#04x)", ErrDeviceNotSupported, id.GeneralConfig)
	}

	sectors := uint64(binary.LittleEndian.Uint32(raw[60*2:]))
	// Words 100..103 are valid when the 48-bit feature set is supported.
	if binary.LittleEndian.Uint16(raw[83*2:])&0x0400 != 0 {
		sectors = binary.LittleEndian.Uint64(raw[100*2:])
	}

	return &Identity{
		Protocol:     protocol,
		Model:        strings.TrimSpace(string(id.ModelNumber())),
		SerialNumber: strings.TrimSpace(string(id.SerialNumber())),
		Firmware:     strings.TrimSpace(string(id.FirmwareRevision())),
		Sectors:      sectors,
	}, nil
}

func (d *Drive) SerialNumber() ([]byte, error) {
	id, err := d.Identify()
	if err != nil {
		return nil, err
	}
	return []byte(id.SerialNumber), nil
}

// SMARTStatus reports whether the drive considers itself healthy.
func (d *Drive) SMARTStatus() (bool, error) {
	cmd := ata.SMARTReturnStatus()
	if err := d.Execute(cmd); err != nil {
		return false, fmt.Errorf("SMART RETURN STATUS: %w", err)
	}
	return ata.SMARTStatus(&cmd.RTFR)
}

// CheckPowerMode returns the power mode reported by CHECK POWER MODE.
func (d *Drive) CheckPowerMode() (uint8, error) {
	cmd := ata.CheckPowerMode()
	if err := d.Execute(cmd); err != nil {
		return 0, fmt.Errorf("CHECK POWER MODE: %w", err)
	}
	return cmd.RTFR.SectorCount, nil
}

func (d *Drive) Flush() error {
	return d.Execute(ata.FlushCache(false))
}

// ReadSectors reads count sectors starting at lba by DMA into a page aligned
// buffer and returns a copy of the data.
func (d *Drive) ReadSectors(lba uint64, count int) ([]byte, error) {
	cmd, err := ata.ReadDMA(lba, count)
	if err != nil {
		return nil, err
	}
	buf, err := AlignedBuffer(len(cmd.Data))
	if err != nil {
		return nil, err
	}
	defer buf.Release()
	cmd.Data = buf.Bytes()
	if err := d.Execute(cmd); err != nil {
		return nil, err
	}
	return append([]byte(nil), cmd.Data...), nil
}

// WriteSectors writes data, a whole number of sectors, starting at lba.
func (d *Drive) WriteSectors(lba uint64, data []byte) error {
	cmd, err := ata.WriteDMA(lba, data)
	if err != nil {
		return err
	}
	buf, err := AlignedBuffer(len(data))
	if err != nil {
		return err
	}
	defer buf.Release()
	copy(buf.Bytes(), data)
	cmd.Data = buf.Bytes()
	return d.Execute(cmd)
}

func (d *Drive) IFRecv(proto SecurityProtocol, sps uint16, data *[]byte) error {
	cmd, err := ata.TrustedReceive(uint8(proto), sps, *data)
	if err != nil {
		return err
	}
	return d.Execute(cmd)
}

func (d *Drive) IFSend(proto SecurityProtocol, sps uint16, data []byte) error {
	cmd, err := ata.TrustedSend(uint8(proto), sps, data)
	if err != nil {
		return err
	}
	return d.Execute(cmd)
}

func (d *Drive) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// Returns a list of supported security protocols.
func SecurityProtocols(d SendReceive) ([]SecurityProtocol, error) {
	raw := make([]byte, 512)
	if err := d.IFRecv(SecurityProtocolInformation, 0, &raw); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(raw)
	hdr := struct {
		_      [6]byte
		Length uint16
	}{}
	if err := binary.Read(buf, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to parse security protocol list header: %v", err)
	}
	i := hdr.Length
	list := make([]uint8, i)
	if err := binary.Read(buf, binary.BigEndian, list); err != nil {
		return nil, fmt.Errorf("failed to read security protocol list: %v", err)
	}
	res := []SecurityProtocol{}
	for _, i := range list {
		res = append(res, SecurityProtocol(i))
	}
	return res, nil
}

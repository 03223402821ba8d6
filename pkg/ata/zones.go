// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const zoneDescriptorLength = 64

// Zone types
const (
	ZoneTypeConventional        = 0x1
	ZoneTypeSequentialRequired  = 0x2
	ZoneTypeSequentialPreferred = 0x3
)

// Zone describes one zone of a zoned device as reported by REPORT ZONES EXT.
type Zone struct {
	Type         uint8
	Condition    uint8
	Length       uint64
	Start        uint64
	WritePointer uint64
}

type zoneListHeader struct {
	Length uint32
	Same   uint8
	_      [3]byte
	MaxLBA uint64
	_      [48]byte
}

type zoneDescriptor struct {
	Type         uint8
	Condition    uint8
	_            [6]byte
	Length       uint64
	Start        uint64
	WritePointer uint64
	_            [32]byte
}

// ParseReportZones decodes a REPORT ZONES EXT response. Descriptors beyond
// the end of buf are silently dropped; the header reports how many the
// device has in total.
func ParseReportZones(buf []byte) (maxLBA uint64, zones []Zone, err error) {
	r := bytes.NewReader(buf)
	var hdr zoneListHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, nil, fmt.Errorf("failed to parse zone list header: %v", err)
	}
	n := int(hdr.Length / zoneDescriptorLength)
	for i := 0; i < n; i++ {
		var d zoneDescriptor
		if err := binary.Read(r, binary.LittleEndian, &d); err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return 0, nil, err
		}
		zones = append(zones, Zone{
			Type:         d.Type & 0x0f,
			Condition:    d.Condition >> 4,
			Length:       d.Length,
			Start:        d.Start,
			WritePointer: d.WritePointer,
		})
	}
	return hdr.MaxLBA, zones, nil
}

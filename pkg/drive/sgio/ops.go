// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Copyright 2021 Christian Svensson. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sgio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	SCSI_INQUIRY          = 0x12
	SCSI_TEST_UNIT_READY  = 0x00
	SCSI_READ_CAPACITY_10 = 0x25
)

// SCSI INQUIRY response
type InquiryResponse struct {
	Peripheral   byte // peripheral qualifier, device type
	_            byte
	Version      byte
	_            [5]byte
	VendorIdent  [8]byte
	ProductIdent [16]byte
	ProductRev   [4]byte
}

func (inq InquiryResponse) String() string {
	return fmt.Sprintf("Type=0x%x, Vendor=%s, Product=%s, Revision=%s",
		inq.Peripheral,
		strings.TrimSpace(string(inq.VendorIdent[:])),
		strings.TrimSpace(string(inq.ProductIdent[:])),
		strings.TrimSpace(string(inq.ProductRev[:])))
}

// ParseInquiry decodes a standard INQUIRY response.
func ParseInquiry(raw []byte) (InquiryResponse, error) {
	var resp InquiryResponse
	if err := binary.Read(bytes.NewReader(raw), nativeEndian, &resp); err != nil {
		return resp, fmt.Errorf("failed to parse INQUIRY response: %v", err)
	}
	return resp, nil
}

// INQUIRY - Returns parsed inquiry data. For a USB bridge this describes the
// bridge, not the drive behind it.
func SCSIInquiry(fd uintptr) (InquiryResponse, error) {
	respBuf := make([]byte, 36)

	cdb := CDB6{SCSI_INQUIRY}
	binary.BigEndian.PutUint16(cdb[3:], uint16(len(respBuf)))

	if _, err := SendCDB(fd, cdb[:], CDBFromDevice, respBuf, make([]byte, 32), 0); err != nil {
		return InquiryResponse{}, err
	}
	return ParseInquiry(respBuf)
}

// SCSI READ CAPACITY(10) - Returns the capacity in bytes
func SCSIReadCapacity(fd uintptr) (uint64, error) {
	respBuf := make([]byte, 8)
	cdb := CDB10{SCSI_READ_CAPACITY_10}

	if _, err := SendCDB(fd, cdb[:], CDBFromDevice, respBuf, make([]byte, 32), 0); err != nil {
		return 0, err
	}

	return ParseReadCapacity(respBuf), nil
}

// ParseReadCapacity converts a READ CAPACITY(10) response into bytes.
func ParseReadCapacity(raw []byte) uint64 {
	lastLBA := binary.BigEndian.Uint32(raw[0:]) // max. addressable LBA
	LBsize := binary.BigEndian.Uint32(raw[4:])  // logical block (i.e., sector) size
	return (uint64(lastLBA) + 1) * uint64(LBsize)
}

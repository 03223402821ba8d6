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

// SCSI generic IO functions.

package sgio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/dswarbrick/smart/ioctl"
)

type CDBDirection int32

const (
	CDBNone         CDBDirection = -1
	CDBToDevice     CDBDirection = -2
	CDBFromDevice   CDBDirection = -3
	CDBToFromDevice CDBDirection = -4

	SG_INFO_OK_MASK = 0x1
	SG_INFO_OK      = 0x0

	SG_IO          = 0x2285
	SG_GET_VERSION = 0x2282

	// Timeout in milliseconds
	DEFAULT_TIMEOUT = 60000

	SENSE_ILLEGAL_REQUEST = 0x5

	DRIVER_SENSE = 0x8
)

var (
	ErrIllegalRequest = errors.New("illegal SCSI request")
	ErrHostStatus     = errors.New("SCSI host adapter error")
	// ErrCheckCondition marks errors reported by the target itself, i.e. the
	// command reached the device.
	ErrCheckCondition = errors.New("SCSI check condition")

	nativeEndian binary.ByteOrder
)

// SCSI CDB types
type (
	CDB6  [6]byte
	CDB10 [10]byte
	CDB12 [12]byte
	CDB16 [16]byte
)

// Determine native endianness of system
func init() {
	i := uint32(1)
	b := (*[4]byte)(unsafe.Pointer(&i))
	if b[0] == 1 {
		nativeEndian = binary.LittleEndian
	} else {
		nativeEndian = binary.BigEndian
	}
}

// SCSI generic ioctl header, defined as sg_io_hdr_t in <scsi/sg.h>
type sgIoHdr struct {
	interface_id    int32        // 'S' for SCSI generic (required)
	dxfer_direction CDBDirection // data transfer direction
	cmd_len         uint8        // SCSI command length (<= 16 bytes)
	mx_sb_len       uint8        // max length to write to sbp
	iovec_count     uint16       //nolint:structcheck,unused // 0 implies no scatter gather
	dxfer_len       uint32       // byte count of data transfer
	dxferp          uintptr      // points to data transfer memory or scatter gather list
	cmdp            uintptr      // points to command to perform
	sbp             uintptr      // points to sense_buffer memory
	timeout         uint32       // MAX_UINT -> no timeout (unit: millisec)
	flags           uint32       //nolint:structcheck,unused // 0 -> default, see SG_FLAG...
	pack_id         int32        //nolint:structcheck,unused // unused internally (normally)
	usr_ptr         uintptr      //nolint:structcheck,unused // unused internally
	status          uint8        // SCSI status
	masked_status   uint8        //nolint:structcheck,unused // shifted, masked scsi status
	msg_status      uint8        //nolint:structcheck,unused // messaging level data (optional)
	sb_len_wr       uint8        // byte count actually written to sbp
	host_status     uint16       // errors from host adapter
	driver_status   uint16       // errors from software driver
	resid           int32        //nolint:structcheck,unused // dxfer_len - actual_transferred
	duration        uint32       // time taken by cmd (unit: millisec)
	info            uint32       // auxiliary information
}

// SenseKey extracts sense key and additional sense code from fixed (0x70)
// or descriptor (0x72) format sense data.
func SenseKey(sense []byte) (key, asc, ascq uint8, ok bool) {
	if len(sense) < 4 {
		return 0, 0, 0, false
	}
	switch sense[0] & 0x7f {
	case 0x70, 0x71:
		if len(sense) < 14 {
			return sense[2] & 0x0f, 0, 0, true
		}
		return sense[2] & 0x0f, sense[12], sense[13], true
	case 0x72, 0x73:
		return sense[1] & 0x0f, sense[2], sense[3], true
	}
	return 0, 0, 0, false
}

func execGenericIO(fd uintptr, hdr *sgIoHdr, sense []byte) error {
	if err := ioctl.Ioctl(fd, SG_IO, uintptr(unsafe.Pointer(hdr))); err != nil {
		return err
	}

	// See http://www.t10.org/lists/2status.htm for SCSI status codes
	if hdr.info&SG_INFO_OK_MASK != SG_INFO_OK {
		if hdr.driver_status&DRIVER_SENSE != 0 && hdr.sb_len_wr > 0 {
			if key, asc, ascq, ok := SenseKey(sense); ok {
				if key == SENSE_ILLEGAL_REQUEST {
					return fmt.Errorf("%w: %w", ErrCheckCondition, ErrIllegalRequest)
				}
				return fmt.Errorf("%w: sense key: %#02x, asc/ascq: %#02x/%#02x", ErrCheckCondition, key, asc, ascq)
			}
		}
		return statusError(hdr.status, hdr.host_status, hdr.driver_status)
	}

	return nil
}

// statusError classifies a failed SG_IO request without usable sense data.
func statusError(status uint8, host, driver uint16) error {
	switch {
	case host != 0:
		return fmt.Errorf("%w: host status %#02x", ErrHostStatus, host)
	case status != 0:
		return fmt.Errorf("%w: SCSI status: %#02x, driver status: %#02x", ErrCheckCondition, status, driver)
	}
	return fmt.Errorf("SCSI status: %#02x, host status: %#02x, driver status: %#02x", status, host, driver)
}

// SendCDB issues cdb and returns the duration reported by the sg driver.
// Sense data is written to sense, which may be nil. A timeout of zero
// selects DEFAULT_TIMEOUT.
func SendCDB(fd uintptr, cdb []byte, dir CDBDirection, buf []byte, sense []byte, timeout time.Duration) (time.Duration, error) {
	if len(cdb) == 0 || len(cdb) > 16 {
		return 0, fmt.Errorf("invalid CDB length %d", len(cdb))
	}
	if uint64(len(buf)) > math.MaxUint32 {
		return 0, fmt.Errorf("transfer of %d bytes too large", len(buf))
	}
	if len(sense) > math.MaxUint8 {
		sense = sense[:math.MaxUint8]
	}

	ms := uint32(DEFAULT_TIMEOUT)
	if timeout > 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	hdr := sgIoHdr{
		interface_id:    'S',
		dxfer_direction: dir,
		timeout:         ms,
		cmd_len:         uint8(len(cdb)),
		mx_sb_len:       uint8(len(sense)),
		dxfer_len:       uint32(len(buf)),
		cmdp:            uintptr(unsafe.Pointer(&cdb[0])),
	}
	if len(buf) > 0 {
		hdr.dxferp = uintptr(unsafe.Pointer(&buf[0]))
	} else {
		hdr.dxfer_direction = CDBNone
	}
	if len(sense) > 0 {
		hdr.sbp = uintptr(unsafe.Pointer(&sense[0]))
	}

	err := execGenericIO(fd, &hdr, sense)
	return time.Duration(hdr.duration) * time.Millisecond, err
}

// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
)

// sgTransport carries bridge CDBs over the Linux SG_IO ioctl.
type sgTransport struct {
	fd FdIntf
}

func sgDirection(dir ata.Direction) sgio.CDBDirection {
	switch dir {
	case ata.DirectionIn:
		return sgio.CDBFromDevice
	case ata.DirectionOut:
		return sgio.CDBToDevice
	default:
		return sgio.CDBNone
	}
}

func (t *sgTransport) SendCDB(cdb []byte, dir ata.Direction, data []byte, sense []byte, timeout time.Duration) (time.Duration, error) {
	d, err := sgio.SendCDB(t.fd.Fd(), cdb, sgDirection(dir), data, sense, timeout)
	runtime.KeepAlive(t.fd)
	return d, transportError(err)
}

// transportError marks err as a transport failure unless the bridge itself
// answered. A CHECK CONDITION means the command reached the bridge, which
// then holds result registers worth reading.
func transportError(err error) error {
	if err == nil || errors.Is(err, sgio.ErrCheckCondition) {
		return err
	}
	return fmt.Errorf("%w: %w", ata.ErrTransportFailure, err)
}

// Inquiry returns the INQUIRY data of the bridge itself.
func (t *sgTransport) Inquiry() (sgio.InquiryResponse, error) {
	id, err := sgio.SCSIInquiry(t.fd.Fd())
	runtime.KeepAlive(t.fd)
	return id, err
}

// Capacity returns the capacity the bridge reports through READ CAPACITY.
func (t *sgTransport) Capacity() (uint64, error) {
	c, err := sgio.SCSIReadCapacity(t.fd.Fd())
	runtime.KeepAlive(t.fd)
	return c, err
}

func SGTransport(fd FdIntf) *sgTransport {
	// Save the full object reference to avoid the underlying File-like object
	// to be GC'd
	return &sgTransport{fd: fd}
}

// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive/sgio"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
)

// Oldest sg driver interface with SG_IO (version 3.0.0).
const minSGVersion = 30000

// Open opens a disk or sg node attached through a bridge of the given kind.
// Hacks without a dispatcher are rejected before the device is touched.
func Open(device string, hack passthrough.Hack, opts ...passthrough.DeviceOpt) (*Drive, error) {
	if err := passthrough.NewDevice(nil, hack, opts...).Supported(); err != nil {
		return nil, fmt.Errorf("%s: %w", device, err)
	}
	d, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	if !isSG(d) {
		d.Close()
		return nil, fmt.Errorf("%w: %s does not speak SG_IO", ErrDeviceNotSupported, device)
	}
	return New(SGTransport(d), hack, d, opts...), nil
}

func isSG(fd FdIntf) bool {
	v, err := unix.IoctlGetInt(int(fd.Fd()), sgio.SG_GET_VERSION)
	return err == nil && v >= minSGVersion
}

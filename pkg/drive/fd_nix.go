// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

// FdIntf is satisfied by *os.File. The SG_IO transport only needs the raw
// descriptor; Close is called when the Drive is closed.
type FdIntf interface {
	Fd() uintptr
	Close() error
}

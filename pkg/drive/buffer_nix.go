// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

// Buffer is a page aligned transfer buffer outside the Go heap. Some bridges
// corrupt DMA transfers from unaligned user memory.
type Buffer struct {
	mem []byte
	n   int
}

// AlignedBuffer maps an anonymous region of at least size bytes.
func AlignedBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer size %d", ata.ErrBadParameter, size)
	}
	page := unix.Getpagesize()
	mem, err := unix.Mmap(-1, 0, (size+page-1)/page*page,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ata.ErrMemoryFailure, size, err)
	}
	return &Buffer{mem: mem, n: size}, nil
}

// Bytes returns the usable part of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.mem[:b.n]
}

func (b *Buffer) Release() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}

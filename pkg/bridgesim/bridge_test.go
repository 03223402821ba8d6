// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridgesim

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
)

const imageSectors = 512

// memImage is an io.ReadWriteSeeker over a fixed size buffer.
type memImage struct {
	buf []byte
	off int64
}

func (m *memImage) Read(p []byte) (int, error) {
	if m.off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.off:])
	m.off += int64(n)
	return n, nil
}

func (m *memImage) Write(p []byte) (int, error) {
	if m.off+int64(len(p)) > int64(len(m.buf)) {
		return 0, io.ErrShortWrite
	}
	n := copy(m.buf[m.off:], p)
	m.off += int64(n)
	return n, nil
}

func (m *memImage) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.off = offset
	case io.SeekCurrent:
		m.off += offset
	case io.SeekEnd:
		m.off = int64(len(m.buf)) + offset
	}
	return m.off, nil
}

var bridgeHacks = []passthrough.Hack{passthrough.HackCypress, passthrough.HackNEC, passthrough.HackProlific}

func newDevice(t *testing.T, hack passthrough.Hack, opts ...Option) (*passthrough.Device, *Bridge, *memImage) {
	t.Helper()
	img := &memImage{buf: make([]byte, imageSectors*ata.SectorSize)}
	b, err := New(hack, img, opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return passthrough.NewDevice(b, hack), b, img
}

func TestNew(t *testing.T) {
	if _, err := New(passthrough.HackSAT, &memImage{}); !errors.Is(err, ata.ErrNotSupported) {
		t.Errorf("New(sat) = %v; want %v", err, ata.ErrNotSupported)
	}
	_, b, _ := newDevice(t, passthrough.HackNEC)
	if b.Sectors() != imageSectors {
		t.Errorf("Sectors() = %d; want %d", b.Sectors(), imageSectors)
	}
}

func TestIdentify(t *testing.T) {
	for _, hack := range bridgeHacks {
		t.Run(hack.String(), func(t *testing.T) {
			d, _, _ := newDevice(t, hack, WithIdentity("TEST MODEL", "SN123", "FW1"))
			cmd := ata.Identify()
			if err := d.Passthrough(cmd); err != nil {
				t.Fatalf("Passthrough() = %v", err)
			}
			if cmd.RTFR.Status != 0x50 {
				t.Errorf("status = %#02x", cmd.RTFR.Status)
			}
			var sum uint8
			for _, v := range cmd.Data {
				sum += v
			}
			if cmd.Data[510] != 0xa5 || sum != 0 {
				t.Errorf("integrity word %#02x, sum %#02x", cmd.Data[510], sum)
			}
			model := make([]byte, 40)
			for i := 0; i < 40; i += 2 {
				model[i], model[i+1] = cmd.Data[54+i+1], cmd.Data[54+i]
			}
			if got := strings.TrimSpace(string(model)); got != "TEST MODEL" {
				t.Errorf("model = %q", got)
			}
		})
	}
}

func TestReadWrite(t *testing.T) {
	pattern := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 2*ata.SectorSize)
	for _, hack := range bridgeHacks {
		t.Run(hack.String(), func(t *testing.T) {
			d, _, img := newDevice(t, hack)

			w, err := ata.WriteDMA(3, pattern[:4*ata.SectorSize])
			if err != nil {
				t.Fatalf("WriteDMA() = %v", err)
			}
			if err := d.Passthrough(w); err != nil {
				t.Fatalf("Passthrough(write) = %v", err)
			}
			if !bytes.Equal(img.buf[3*ata.SectorSize:7*ata.SectorSize], pattern[:4*ata.SectorSize]) {
				t.Errorf("image not written")
			}

			r, err := ata.ReadSectors(3, 4)
			if err != nil {
				t.Fatalf("ReadSectors() = %v", err)
			}
			if err := d.Passthrough(r); err != nil {
				t.Fatalf("Passthrough(read) = %v", err)
			}
			if !bytes.Equal(r.Data, pattern[:4*ata.SectorSize]) {
				t.Errorf("read back differs")
			}
		})
	}
}

func TestReadExt(t *testing.T) {
	testCases := []struct {
		hack    passthrough.Hack
		wantErr error
	}{
		{passthrough.HackCypress, ata.ErrNotSupported},
		{passthrough.HackNEC, nil},
		{passthrough.HackProlific, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.hack.String(), func(t *testing.T) {
			d, b, img := newDevice(t, tc.hack)
			img.buf[10*ata.SectorSize] = 0x42
			img.buf[266*ata.SectorSize] = 0x24

			cmd, err := ata.ReadDMA(10, 257)
			if err != nil {
				t.Fatalf("ReadDMA() = %v", err)
			}
			err = d.Passthrough(cmd)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("Passthrough() = %v; want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Passthrough() = %v", err)
			}
			if cmd.Data[0] != 0x42 || cmd.Data[256*ata.SectorSize] != 0x24 {
				t.Errorf("read returned wrong sectors")
			}
			if r := b.Registers(); r.SectorCountExt != 0x01 || r.SectorCount != 0x01 {
				t.Errorf("latched count = %#02x%02x; want 0x0101", r.SectorCountExt, r.SectorCount)
			}
		})
	}
}

func TestDeviceErrors(t *testing.T) {
	testCases := []struct {
		name    string
		build   func() *ata.Command
		wantErr uint8
	}{
		{"out of range", func() *ata.Command {
			c, _ := ata.ReadDMA(imageSectors, 1)
			return c
		}, ata.ErrorIDNF},
		{"unsupported SMART feature", ata.SMARTReadData, ata.ErrorAbort},
		{"unknown opcode", ata.SecurityFreezeLock, ata.ErrorAbort},
	}
	for _, hack := range bridgeHacks {
		for _, tc := range testCases {
			t.Run(hack.String()+"/"+tc.name, func(t *testing.T) {
				d, _, _ := newDevice(t, hack)
				cmd := tc.build()
				err := d.Passthrough(cmd)
				if !errors.Is(err, ata.ErrFailure) {
					t.Fatalf("Passthrough() = %v; want %v", err, ata.ErrFailure)
				}
				if cmd.RTFR.Status != 0x51 || cmd.RTFR.Error != tc.wantErr {
					t.Errorf("status/error = %#02x/%#02x; want 0x51/%#02x", cmd.RTFR.Status, cmd.RTFR.Error, tc.wantErr)
				}
				// Cypress and NEC report the failed command as ABORTED
				// COMMAND; Prolific only through the registers.
				reported := errors.Is(err, ErrCheckCondition)
				if want := hack != passthrough.HackProlific; reported != want {
					t.Errorf("Passthrough() = %v; CHECK CONDITION %v, want %v", err, reported, want)
				}
				if s := d.LastSense(); reported && (s[0] != 0x70 || s[2] != 0x0b) {
					t.Errorf("LastSense() = % x", s[:14])
				}
			})
		}
	}
}

func TestSMARTStatus(t *testing.T) {
	for _, failing := range []bool{false, true} {
		var opts []Option
		if failing {
			opts = append(opts, WithSMARTFailing())
		}
		d, _, _ := newDevice(t, passthrough.HackCypress, opts...)
		cmd := ata.SMARTReturnStatus()
		if err := d.Passthrough(cmd); err != nil {
			t.Fatalf("Passthrough() = %v", err)
		}
		healthy, err := ata.SMARTStatus(&cmd.RTFR)
		if err != nil || healthy == failing {
			t.Errorf("SMARTStatus() = %v, %v; failing %v", healthy, err, failing)
		}
	}
}

func TestPowerMode(t *testing.T) {
	d, _, _ := newDevice(t, passthrough.HackProlific)
	for _, tc := range []struct {
		cmd  *ata.Command
		mode uint8
	}{
		{nil, ata.PowerModeActive},
		{ata.StandbyImmediate(), ata.PowerModeStandby},
		{ata.IdleImmediate(), ata.PowerModeIdle},
	} {
		if tc.cmd != nil {
			if err := d.Passthrough(tc.cmd); err != nil {
				t.Fatalf("Passthrough() = %v", err)
			}
		}
		check := ata.CheckPowerMode()
		if err := d.Passthrough(check); err != nil {
			t.Fatalf("Passthrough(check) = %v", err)
		}
		if check.RTFR.SectorCount != tc.mode {
			t.Errorf("power mode = %#02x; want %#02x", check.RTFR.SectorCount, tc.mode)
		}
	}
}

func TestLatencyTimeout(t *testing.T) {
	d, _, _ := newDevice(t, passthrough.HackNEC, WithLatency(20*time.Second))
	if err := d.Passthrough(ata.FlushCache(false)); !errors.Is(err, ata.ErrCommandTimeout) {
		t.Errorf("Passthrough() = %v; want %v", err, ata.ErrCommandTimeout)
	}
	cmd := ata.FlushCache(false)
	cmd.Timeout = 30 * time.Second
	if err := d.Passthrough(cmd); err != nil {
		t.Errorf("Passthrough() = %v", err)
	}
}

func TestMalformedCDB(t *testing.T) {
	testCases := []struct {
		name string
		hack passthrough.Hack
		cdb  string
		asc  uint8
	}{
		{"prolific check word", passthrough.HackProlific, "d8 15 00 00 06 7c 00 00 00 00 00 00 00 00 e0 e7", 0x24},
		{"prolific opcode", passthrough.HackProlific, "d7 15 00 00 06 7b 00 00 00 00 00 00 00 00 e0 e7", 0x20},
		{"nec signature", passthrough.HackNEC, "f8 4f e7 e0 00 00 00 00 00 00 00 00 00 00 00 00", 0x24},
		{"cypress subcommand", passthrough.HackCypress, "24 25 00 ff 00 00 00 00 00 00 00 e0 e7 00 00 00", 0x24},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, b, _ := newDevice(t, tc.hack)
			cdb := mustHex(t, tc.cdb)
			sense := make([]byte, ata.MaxSenseLength)
			_, err := b.SendCDB(cdb, ata.DirectionNone, nil, sense, ata.DefaultTimeout)
			if !errors.Is(err, ErrCheckCondition) || errors.Is(err, ata.ErrTransportFailure) {
				t.Fatalf("SendCDB() = %v; want %v", err, ErrCheckCondition)
			}
			if sense[0] != 0x70 || sense[2] != 0x05 || sense[12] != tc.asc {
				t.Errorf("sense = % x", sense[:14])
			}
			if r := b.Registers(); r.Status != 0x51 || r.Error != ata.ErrorAbort {
				t.Errorf("Registers() = %+v; want an aborted command", r)
			}
		})
	}
}

// corruptCheckWord damages the check word of every Prolific execute block.
type corruptCheckWord struct {
	*Bridge
}

func (c corruptCheckWord) SendCDB(cdb []byte, dir ata.Direction, data []byte, sense []byte, timeout time.Duration) (time.Duration, error) {
	if cdb[0] == passthrough.ProlificExecuteOpcode {
		cdb = append([]byte(nil), cdb...)
		cdb[5] ^= 0xff
	}
	return c.Bridge.SendCDB(cdb, dir, data, sense, timeout)
}

func TestProlificCheckWordRejected(t *testing.T) {
	_, b, _ := newDevice(t, passthrough.HackProlific)
	d := passthrough.NewDevice(corruptCheckWord{b}, passthrough.HackProlific)
	cmd := ata.Identify()
	err := d.Passthrough(cmd)
	if !errors.Is(err, ata.ErrFailure) || !errors.Is(err, ErrCheckCondition) || errors.Is(err, ata.ErrTransportFailure) {
		t.Fatalf("Passthrough() = %v", err)
	}
	// The bridge answered, so its registers were read back.
	if cmd.RTFR.Status != 0x51 || cmd.RTFR.Error != ata.ErrorAbort {
		t.Errorf("RTFR = %+v; want an aborted command", cmd.RTFR)
	}
	if s := d.LastSense(); s[0] != 0x70 || s[12] != 0x24 {
		t.Errorf("LastSense() = % x", s[:14])
	}
}

// unplugged fails every CDB before it reaches the bridge.
type unplugged struct {
	*Bridge
	calls int
}

func (u *unplugged) SendCDB(cdb []byte, dir ata.Direction, data []byte, sense []byte, timeout time.Duration) (time.Duration, error) {
	u.calls++
	return 0, fmt.Errorf("%w: no such device", ata.ErrTransportFailure)
}

func TestTransportFailure(t *testing.T) {
	for _, hack := range bridgeHacks {
		t.Run(hack.String(), func(t *testing.T) {
			_, b, _ := newDevice(t, hack)
			u := &unplugged{Bridge: b}
			d := passthrough.NewDevice(u, hack)
			cmd := ata.FlushCache(false)
			err := d.Passthrough(cmd)
			if !errors.Is(err, ata.ErrFailure) || !errors.Is(err, ata.ErrTransportFailure) {
				t.Fatalf("Passthrough() = %v", err)
			}
			if u.calls != 1 || cmd.RTFR != (ata.RTFR{}) {
				t.Errorf("registers read after a transport failure: %d calls, %+v", u.calls, cmd.RTFR)
			}
		})
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad fixture %q: %v", s, err)
	}
	return b
}

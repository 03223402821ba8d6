// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package passthrough

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex fixture %q: %v", s, err)
	}
	return b
}

func mustCommand(t *testing.T) func(*ata.Command, error) *ata.Command {
	return func(c *ata.Command, err error) *ata.Command {
		t.Helper()
		if err != nil {
			t.Fatalf("building command: %v", err)
		}
		return c
	}
}

func TestEncodeCypressIdentify(t *testing.T) {
	cdb, err := EncodeCypress(ata.Identify())
	if err != nil {
		t.Fatalf("EncodeCypress(IDENTIFY) = %v", err)
	}
	want := mustHex(t, "24 24 80 ff 00 00 00 01 00 00 00 a0 ec 00 00 00")
	if !bytes.Equal(cdb[:], want) {
		t.Errorf("EncodeCypress(IDENTIFY) = % x; want % x", cdb[:], want)
	}
	if cdb[2]&cypressUDMACommand != 0 {
		t.Errorf("UDMA bit set for a PIO command")
	}
}

func TestEncodeCypress(t *testing.T) {
	readDMA := mustCommand(t)(ata.ReadDMA(0x0345678, 8))
	multiple := mustCommand(t)(ata.ReadMultiple(0x10, 16, 3))
	smart := ata.SMARTReturnStatus()
	smart.TaskFile.DeviceControl = ata.ControlNIEN

	testCases := []struct {
		name string
		cmd  *ata.Command
		want string
	}{
		{"READ DMA", readDMA, "24 24 40 ff 00 00 00 08 78 56 34 e0 c8 00 00 00"},
		{"READ MULTIPLE", multiple, "24 24 00 ff 03 00 00 10 10 00 00 e0 c4 00 00 00"},
		{"SMART RETURN STATUS", smart, "24 24 00 ff 00 02 da 00 00 4f c2 a0 b0 00 00 00"},
		{"IDENTIFY PACKET", ata.IdentifyPacket(), "24 24 80 ff 00 00 00 01 00 00 00 a0 a1 00 00 00"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cdb, err := EncodeCypress(tc.cmd)
			if err != nil {
				t.Fatalf("EncodeCypress() = %v", err)
			}
			if want := mustHex(t, tc.want); !bytes.Equal(cdb[:], want) {
				t.Errorf("EncodeCypress() = % x; want % x", cdb[:], want)
			}
		})
	}
}

func TestEncodeCypressNotSupported(t *testing.T) {
	ext := mustCommand(t)(ata.ReadDMA(0x0123456789ab, 1))
	packet := ata.Identify()
	packet.Protocol = ata.ProtocolPacket
	reset := ata.ExecuteDeviceDiagnostic()
	reset.Protocol = ata.ProtocolSoftReset
	complete := ata.Identify()
	complete.Type = ata.CommandTypeCompleteTaskFile

	for name, cmd := range map[string]*ata.Command{
		"48-bit":          ext,
		"complete":        complete,
		"packet":          packet,
		"soft reset":      reset,
		"sanitize":        ata.SanitizeStatus(false),
		"flush cache ext": ata.FlushCache(true),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := EncodeCypress(cmd); !errors.Is(err, ata.ErrNotSupported) {
				t.Errorf("EncodeCypress() = %v; want %v", err, ata.ErrNotSupported)
			}
		})
	}
}

func TestEncodeNECExtendedWrite(t *testing.T) {
	cmd := mustCommand(t)(ata.WriteDMA(0x0123456789ab, make([]byte, 512)))
	cdb, err := EncodeNEC(cmd)
	if err != nil {
		t.Fatalf("EncodeNEC() = %v", err)
	}
	want := mustHex(t, "f8 4e 35 e0 01 23 45 67 89 ab 00 01 00 0a 00 00")
	if !bytes.Equal(cdb[:], want) {
		t.Errorf("EncodeNEC() = % x; want % x", cdb[:], want)
	}
}

func TestEncodeNEC(t *testing.T) {
	read28 := mustCommand(t)(ata.ReadSectors(0x0abcdef, 2))
	multiple := mustCommand(t)(ata.WriteMultiple(0, make([]byte, 4096), 2))
	queued := mustCommand(t)(ata.ReadDMA(0, 1))
	queued.Protocol = ata.ProtocolDMAQueued
	packet := ata.IdentifyPacket()
	packet.Protocol = ata.ProtocolPacket
	hardReset := ata.ExecuteDeviceDiagnostic()
	hardReset.Protocol = ata.ProtocolHardReset

	testCases := []struct {
		name string
		cmd  *ata.Command
		want string
	}{
		{"READ SECTORS 28-bit", read28, "f8 4e 20 e0 00 00 00 ab cd ef 00 02 00 01 00 00"},
		{"WRITE MULTIPLE", multiple, "f8 4e c5 e0 00 00 00 00 00 00 00 08 00 22 02 00"},
		{"FLUSH CACHE", ata.FlushCache(false), "f8 4e e7 a0 00 00 00 00 00 00 00 00 00 00 00 00"},
		{"EXECUTE DEVICE DIAGNOSTIC", ata.ExecuteDeviceDiagnostic(), "f8 4e 90 a0 00 00 00 00 00 00 00 00 00 04 00 00"},
		{"DMA queued", queued, "f8 4e c8 e0 00 00 00 00 00 00 00 01 00 0d 00 00"},
		{"packet", packet, "f8 4e a1 a0 00 00 00 00 00 00 00 01 00 11 00 00"},
		{"hard reset", hardReset, "f8 4e 90 a0 00 00 00 00 00 00 00 00 00 14 00 00"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cdb, err := EncodeNEC(tc.cmd)
			if err != nil {
				t.Fatalf("EncodeNEC() = %v", err)
			}
			if want := mustHex(t, tc.want); !bytes.Equal(cdb[:], want) {
				t.Errorf("EncodeNEC() = % x; want % x", cdb[:], want)
			}
		})
	}
}

func TestEncodeNECNotSupported(t *testing.T) {
	fpdma := mustCommand(t)(ata.ReadDMA(0x0123456789ab, 1))
	fpdma.Protocol = ata.ProtocolFPDMA
	soft := ata.ExecuteDeviceDiagnostic()
	soft.Protocol = ata.ProtocolSoftReset
	badDir := ata.Identify()
	badDir.Direction = ata.Direction(7)

	for name, cmd := range map[string]*ata.Command{
		"FPDMA":      fpdma,
		"soft reset": soft,
		"direction":  badDir,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := EncodeNEC(cmd); !errors.Is(err, ata.ErrNotSupported) {
				t.Errorf("EncodeNEC() = %v; want %v", err, ata.ErrNotSupported)
			}
		})
	}
}

func TestEncodeProlificExtendedRead(t *testing.T) {
	cmd := mustCommand(t)(ata.ReadDMA(0x0123456789ab, 1))
	cdbs, err := EncodeProlific(cmd)
	if err != nil {
		t.Fatalf("EncodeProlific() = %v", err)
	}
	if !cdbs.HighValid {
		t.Fatalf("EncodeProlific() did not produce a high block for a 48-bit command")
	}
	wantHigh := mustHex(t, "d8 10 00 00 06 7b 00 00 02 00 00 45 23 01 e0 25")
	wantLow := mustHex(t, "d8 15 00 00 06 7b 00 00 02 00 01 ab 89 67 e0 25")
	if !bytes.Equal(cdbs.High[:], wantHigh) {
		t.Errorf("High = % x; want % x", cdbs.High[:], wantHigh)
	}
	if !bytes.Equal(cdbs.Low[:], wantLow) {
		t.Errorf("Low = % x; want % x", cdbs.Low[:], wantLow)
	}
}

func TestEncodeProlific(t *testing.T) {
	write := mustCommand(t)(ata.WriteSectors(0x0012345, make([]byte, 1024)))
	sanitize := ata.SanitizeStatus(true)

	testCases := []struct {
		name     string
		cmd      *ata.Command
		wantHigh string
		wantLow  string
	}{
		{"IDENTIFY", ata.Identify(), "",
			"d8 15 00 00 06 7b 00 00 02 00 01 00 00 00 a0 ec"},
		{"WRITE SECTORS", write, "",
			"d8 05 00 00 06 7b 00 00 04 00 02 45 23 01 e0 30"},
		{"SANITIZE STATUS", sanitize,
			"d8 00 00 00 06 7b 00 00 00 00 00 00 00 00 e0 b4",
			"d8 05 00 00 06 7b 00 00 00 00 01 00 00 00 e0 b4"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cdbs, err := EncodeProlific(tc.cmd)
			if err != nil {
				t.Fatalf("EncodeProlific() = %v", err)
			}
			if cdbs.HighValid != (tc.wantHigh != "") {
				t.Fatalf("HighValid = %v; want %v", cdbs.HighValid, tc.wantHigh != "")
			}
			if tc.wantHigh != "" {
				if want := mustHex(t, tc.wantHigh); !bytes.Equal(cdbs.High[:], want) {
					t.Errorf("High = % x; want % x", cdbs.High[:], want)
				}
			}
			if want := mustHex(t, tc.wantLow); !bytes.Equal(cdbs.Low[:], want) {
				t.Errorf("Low = % x; want % x", cdbs.Low[:], want)
			}
		})
	}
}

func TestEncodeProlificNotSupported(t *testing.T) {
	packet := ata.IdentifyPacket()
	packet.Protocol = ata.ProtocolPacket
	if _, err := EncodeProlific(packet); !errors.Is(err, ata.ErrNotSupported) {
		t.Errorf("EncodeProlific(packet) = %v; want %v", err, ata.ErrNotSupported)
	}
}

func TestRTFRRequests(t *testing.T) {
	testCases := []struct {
		name string
		got  []byte
		want string
	}{
		{"Cypress", func() []byte { c := CypressRTFRRequest(); return c[:] }(), "24 24 01 00 00 00 00 00 00 00 00 00 00 00 00 00"},
		{"NEC", func() []byte { c := NECRTFRRequest(); return c[:] }(), "f9 4e 00 00 00 00 00 00 00 00 00 00 00 00 00 00"},
		{"Prolific", func() []byte { c := ProlificRTFRRequest(); return c[:] }(), "d6 00 00 00 06 7b"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if want := mustHex(t, tc.want); !bytes.Equal(tc.got, want) {
				t.Errorf("request = % x; want % x", tc.got, want)
			}
		})
	}
}

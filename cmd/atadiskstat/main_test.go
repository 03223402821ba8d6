// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/bridgesim"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
)

func simDrive(t *testing.T, hack passthrough.Hack, opts ...bridgesim.Option) *drive.Drive {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "disk.img"))
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if err := f.Truncate(64 * ata.SectorSize); err != nil {
		t.Fatalf("Truncate() = %v", err)
	}
	b, err := bridgesim.New(hack, f, opts...)
	if err != nil {
		t.Fatalf("bridgesim.New() = %v", err)
	}
	d := drive.New(b, hack, f)
	t.Cleanup(func() { d.Close() })
	return d
}

func testState(t *testing.T) Devices {
	return Devices{
		probe("/dev/sdb", simDrive(t, passthrough.HackCypress, bridgesim.WithIdentity("MODEL A", "SERIAL1", "FW1"))),
		probe("/dev/sdc", simDrive(t, passthrough.HackNEC, bridgesim.WithIdentity("MODEL B", "SERIAL2", "FW2"), bridgesim.WithSMARTFailing())),
	}
}

func TestProbe(t *testing.T) {
	s := testState(t)
	if s[0].Identity.Model != "MODEL A" || s[0].Healthy == nil || !*s[0].Healthy {
		t.Errorf("probe(sdb) = %+v", s[0])
	}
	if s[1].Healthy == nil || *s[1].Healthy {
		t.Errorf("probe(sdc) healthy = %v", s[1].Healthy)
	}
	if s[0].LastStatus != 0x50 {
		t.Errorf("LastStatus = %#02x", s[0].LastStatus)
	}
}

func TestOutputTable(t *testing.T) {
	var out bytes.Buffer
	outputTable(&out, testState(t), true)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "DEVICE") {
		t.Errorf("header = %q", lines[0])
	}
	if f := strings.Fields(lines[2]); f[0] != "/dev/sdc" || f[len(f)-1] != "FAIL" {
		t.Errorf("row = %q", lines[2])
	}
}

func TestOutputMetrics(t *testing.T) {
	var out bytes.Buffer
	outputMetrics(&out, testState(t))
	for _, want := range []string{
		`ata_drive_info{device="/dev/sdb",firmware="FW1",model="MODEL A",protocol="ATA/cypress",serial="SERIAL1"} 1`,
		`ata_smart_healthy{device="/dev/sdb"} 1`,
		`ata_smart_healthy{device="/dev/sdc"} 0`,
		`ata_last_status_register{device="/dev/sdc"} 80`,
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("metrics output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestParseHackFlag(t *testing.T) {
	testCases := []struct {
		name    string
		want    passthrough.Hack
		wantErr error
	}{
		{"cypress", passthrough.HackCypress, nil},
		{"NEC", passthrough.HackNEC, nil},
		{"sat", passthrough.HackSAT, ata.ErrNotSupported},
		{"csmi", passthrough.HackCSMI, ata.ErrNotSupported},
		{"jmicron", passthrough.HackUnknown, ata.ErrInvalidConfiguration},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseHackFlag(tc.name)
			if !errors.Is(err, tc.wantErr) || got != tc.want {
				t.Errorf("parseHackFlag(%q) = %v, %v; want %v, %v", tc.name, got, err, tc.want, tc.wantErr)
			}
		})
	}
	// The flag has no default.
	if _, err := parseHackFlag(flag.Lookup("hack").DefValue); err == nil {
		t.Errorf("parseHackFlag(default) succeeded")
	}
}

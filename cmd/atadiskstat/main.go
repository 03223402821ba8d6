// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
)

var (
	outputFmt = flag.String("output", "table", "Output format; one of [table, json, openmetrics]")
	noHeader  = flag.Bool("no-header", false, "Supress the header in table format output")
	hackName  = flag.String("hack", "", "Pass-through method (required); one of [cypress, prolific, nec]")
)

type DeviceState struct {
	Device   string
	Identity *drive.Identity
	// Healthy is nil when SMART status could not be read.
	Healthy      *bool
	LastDuration time.Duration
	LastStatus   uint8
}

type Devices []DeviceState

// parseHackFlag resolves -hack to a bridge that can dispatch commands.
func parseHackFlag(name string) (passthrough.Hack, error) {
	if name == "" {
		return passthrough.HackUnknown, fmt.Errorf("-hack is required")
	}
	hack, err := passthrough.ParseHack(name)
	if err != nil {
		return hack, err
	}
	if err := passthrough.NewDevice(nil, hack).Supported(); err != nil {
		return hack, err
	}
	return hack, nil
}

// probe gathers the state of one drive. Identity is always set so that the
// outputs can rely on it.
func probe(devpath string, d *drive.Drive) DeviceState {
	s := DeviceState{Device: devpath}
	identity, err := d.Identify()
	if err != nil {
		log.Printf("drive.Identify(%s): %v", devpath, err)
		identity = &drive.Identity{Protocol: "ATA/" + d.Device().Hack().String()}
	}
	s.Identity = identity

	healthy, err := d.SMARTStatus()
	if err != nil {
		log.Printf("drive.SMARTStatus(%s): %v", devpath, err)
	} else {
		s.Healthy = &healthy
	}
	last := d.Device().LastCommand()
	s.LastDuration = last.Duration
	s.LastStatus = last.RTFR.Status
	return s
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		fmt.Println()
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("The HEALTH column shows:")
		fmt.Println("  OK   - SMART RETURN STATUS reports no threshold exceeded")
		fmt.Println("  FAIL - a SMART threshold has been exceeded")
		fmt.Println("  -    - SMART status could not be read through the bridge")
		fmt.Println()
	}
	flag.Parse()

	hack, err := parseHackFlag(*hackName)
	if err != nil {
		fmt.Fprintln(flag.CommandLine.Output(), err)
		flag.Usage()
		os.Exit(2)
	}

	sysblk, err := os.ReadDir("/sys/class/block/")
	if err != nil {
		log.Printf("Failed to enumerate block devices: %v", err)
		return
	}

	var state Devices

	for _, fi := range sysblk {
		devname := fi.Name()
		if _, err := os.Stat(filepath.Join("/sys/class/block", devname, "device")); os.IsNotExist(err) {
			continue
		}
		devpath := filepath.Join("/dev", devname)
		if _, err := os.Stat(devpath); os.IsNotExist(err) {
			log.Printf("Failed to find device node %s", devpath)
			continue
		}

		d, err := drive.Open(devpath, hack)
		if err != nil {
			log.Printf("drive.Open(%s): %v", devpath, err)
			continue
		}
		state = append(state, probe(devpath, d))
		d.Close()
	}

	switch *outputFmt {
	case "json":
		outputJSON(os.Stdout, state)
	case "openmetrics":
		outputMetrics(os.Stdout, state)
	case "table":
		outputTable(os.Stdout, state, !*noHeader)
	default:
		fmt.Printf("Unsupported output format %q\n", *outputFmt)
		flag.Usage()
		os.Exit(2)
	}
}

func outputJSON(out io.Writer, state Devices) {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal JSON: %v", err)
	}
	out.Write(b)
}

func health(s DeviceState) string {
	switch {
	case s.Healthy == nil:
		return "-"
	case *s.Healthy:
		return "OK"
	default:
		return "FAIL"
	}
}

func outputTable(out io.Writer, state Devices, header bool) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	if header {
		fmt.Fprintf(w, "DEVICE\tMODEL\tSERIAL\tFIRMWARE\tPROTOCOL\tSECTORS\tHEALTH\n")
	}
	for _, s := range state {
		fmt.Fprint(w,
			s.Device, "\t",
			s.Identity.Model, "\t",
			s.Identity.SerialNumber, "\t",
			s.Identity.Firmware, "\t",
			s.Identity.Protocol, "\t",
			s.Identity.Sectors, "\t",
			health(s), "\t",
			"\n")
	}
	w.Flush()
}

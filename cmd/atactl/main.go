// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/alecthomas/kong"
	"github.com/davecgh/go-spew/spew"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/bridgesim"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/cmdutil"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive"
)

const (
	programName = "atactl"
	programDesc = "Issue ATA commands through USB bridge pass-through"
)

func openDrive() (*drive.Drive, error) {
	if cli.Image != "" {
		f, err := os.OpenFile(cli.Image, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		b, err := bridgesim.New(cli.Hack, f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return drive.New(b, cli.Hack, f), nil
	}
	if cli.Device == "" {
		return nil, fmt.Errorf("either --device or --image is required")
	}
	return drive.Open(cli.Device, cli.Hack)
}

func main() {
	spew.Config.Indent = "  "

	// Parse kong flags and sub-commands
	ctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		cmdutil.HackMapper(),
		kong.Resolvers(cmdutil.ResolvePassword(false)),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	d, err := openDrive()
	if err != nil {
		log.Fatalf("drive.Open: %v", err)
	}
	defer d.Close()

	// Run the command
	err = ctx.Run(&context{drive: d, timeout: cli.Timeout, debug: cli.Debug})
	if cli.Debug {
		log.Printf("Last command state:")
		spew.Dump(d.Device().LastCommand())
	}
	ctx.FatalIfErrorf(err)
}

// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/cmdutil"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive"
	"github.com/open-source-firmware/go-ata-passthrough/pkg/passthrough"
)

var errNotConfirmed = errors.New("operation not confirmed")

// context is the context struct required by kong command line parser
type context struct {
	drive   *drive.Drive
	timeout time.Duration
	debug   bool
}

// exec applies the global timeout and dispatches cmd.
func (c *context) exec(cmd *ata.Command) error {
	cmd.Timeout = c.timeout
	if c.debug {
		spew.Dump(cmd.TaskFile)
	}
	return c.drive.Execute(cmd)
}

func (c *context) identify() ([]byte, *drive.Identity, error) {
	cmd := ata.Identify()
	if err := c.exec(cmd); err != nil {
		return nil, nil, fmt.Errorf("IDENTIFY DEVICE: %w", err)
	}
	id, err := drive.ParseIdentity(cmd.Data, "ATA/"+c.drive.Device().Hack().String())
	return cmd.Data, id, err
}

// SerialNumber implements cmdutil.Serialer.
func (c *context) SerialNumber() ([]byte, error) {
	_, id, err := c.identify()
	if err != nil {
		return nil, err
	}
	return []byte(id.SerialNumber), nil
}

// IFRecv and IFSend implement drive.SendReceive.
func (c *context) IFRecv(proto drive.SecurityProtocol, sps uint16, data *[]byte) error {
	cmd, err := ata.TrustedReceive(uint8(proto), sps, *data)
	if err != nil {
		return err
	}
	return c.exec(cmd)
}

func (c *context) IFSend(proto drive.SecurityProtocol, sps uint16, data []byte) error {
	cmd, err := ata.TrustedSend(uint8(proto), sps, data)
	if err != nil {
		return err
	}
	return c.exec(cmd)
}

func confirm(yes bool, question string) error {
	if yes {
		return nil
	}
	ok, err := cmdutil.ConfirmTerminal(question)
	if err != nil {
		return err
	}
	if !ok {
		return errNotConfirmed
	}
	return nil
}

type identifyCmd struct {
	Raw bool `optional:"" help:"Hex dump the IDENTIFY DEVICE page"`
}

type smartStatusCmd struct{}

type readCmd struct {
	LBA    uint64 `arg:"" help:"First sector"`
	Count  int    `arg:"" optional:"" default:"1" help:"Number of sectors"`
	Output string `optional:"" short:"o" type:"path" help:"Write the data to this file instead of a hex dump"`
}

type writeCmd struct {
	LBA  uint64 `arg:"" help:"First sector"`
	File string `arg:"" type:"existingfile" help:"Data to write; padded with zeros to whole sectors"`
	Yes  bool   `optional:"" short:"y" help:"Do not ask for confirmation"`
}

type checkPowerCmd struct{}

type flushCmd struct {
	Ext bool `optional:"" help:"Use FLUSH CACHE EXT"`
}

type standbyCmd struct{}

type sanitizeCmd struct {
	Action  string `arg:"" enum:"status,crypto,block,overwrite,freeze" help:"Sanitize operation (status,crypto,block,overwrite,freeze)"`
	Pattern uint32 `optional:"" default:"0" help:"Overwrite pattern"`
	Passes  uint8  `optional:"" default:"1" help:"Overwrite passes (1-16)"`
	Invert  bool   `optional:"" help:"Invert the pattern between passes"`
	Yes     bool   `optional:"" short:"y" help:"Do not ask for confirmation"`
}

type zonesCmd struct {
	Start uint64 `optional:"" default:"0" help:"First zone locator"`
	Pages uint16 `optional:"" default:"1" help:"Response size in sectors"`
}

type securityUnlockCmd struct {
	Master                bool `optional:"" help:"Use the master password"`
	cmdutil.PasswordEmbed `embed:""`
}

type securitySetPasswordCmd struct {
	Master                bool   `optional:"" help:"Set the master password"`
	Maximum               bool   `optional:"" help:"Maximum security level"`
	MasterIdentifier      uint16 `optional:"" default:"0" help:"Master password identifier"`
	Yes                   bool   `optional:"" short:"y" help:"Do not ask for confirmation"`
	cmdutil.PasswordEmbed `embed:""`
}

type securityDisableCmd struct {
	Master                bool `optional:"" help:"Use the master password"`
	cmdutil.PasswordEmbed `embed:""`
}

type securityProtocolsCmd struct{}

type rawCmd struct {
	Command uint8  `arg:"" help:"Command register"`
	Feature uint8  `optional:"" default:"0"`
	Count   uint8  `optional:"" default:"0" help:"Sector count register"`
	LBA     uint32 `optional:"" default:"0" help:"28-bit LBA"`
	Sectors int    `optional:"" default:"0" help:"Read this many sectors by PIO; 0 for a non-data command"`
}

// cli is the main command line interface struct required by kong command line parser
var cli struct {
	Device  string           `optional:"" short:"d" env:"ATA_DEVICE" help:"Path to the bridge's disk or sg node (e.g. /dev/sdb)"`
	Image   string           `optional:"" type:"existingfile" help:"Emulate the bridge on top of this disk image"`
	Hack    passthrough.Hack `required:"" short:"H" env:"ATA_HACK" help:"Pass-through method: cypress, nec or prolific (sat, psp, ti and csmi are not built in)"`
	Timeout time.Duration    `optional:"" env:"ATA_TIMEOUT" default:"15s" help:"Command timeout"`
	Debug   bool             `optional:"" help:"Dump task files and the last command state"`

	Identify            identifyCmd            `cmd:"" help:"Show the drive's identity"`
	SmartStatus         smartStatusCmd         `cmd:"" help:"Report the SMART health status"`
	Read                readCmd                `cmd:"" help:"Read sectors"`
	Write               writeCmd               `cmd:"" help:"Write sectors"`
	CheckPower          checkPowerCmd          `cmd:"" help:"Report the power mode"`
	Flush               flushCmd               `cmd:"" help:"Flush the write cache"`
	Standby             standbyCmd             `cmd:"" help:"Spin down immediately"`
	Sanitize            sanitizeCmd            `cmd:"" help:"Run or query a SANITIZE operation"`
	Zones               zonesCmd               `cmd:"" help:"Report the zones of a zoned drive"`
	SecurityUnlock      securityUnlockCmd      `cmd:"" help:"Unlock a drive with ATA security enabled"`
	SecuritySetPassword securitySetPasswordCmd `cmd:"" help:"Set the user or master password"`
	SecurityDisable     securityDisableCmd     `cmd:"" help:"Disable the user password"`
	SecurityProtocols   securityProtocolsCmd   `cmd:"" help:"List the supported security protocols"`
	Raw                 rawCmd                 `cmd:"" help:"Issue a raw 28-bit command and print the returned registers"`
}

func (t *identifyCmd) Run(ctx *context) error {
	raw, id, err := ctx.identify()
	if raw == nil {
		return err
	}
	if t.Raw {
		fmt.Print(hex.Dump(raw))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Protocol: %s\n", id.Protocol)
	fmt.Printf("Model:    %s\n", id.Model)
	fmt.Printf("Serial:   %s\n", id.SerialNumber)
	fmt.Printf("Firmware: %s\n", id.Firmware)
	fmt.Printf("Capacity: %d sectors (%d bytes)\n", id.Sectors, id.Sectors*ata.SectorSize)
	return nil
}

func (t *smartStatusCmd) Run(ctx *context) error {
	cmd := ata.SMARTReturnStatus()
	if err := ctx.exec(cmd); err != nil {
		return err
	}
	healthy, err := ata.SMARTStatus(&cmd.RTFR)
	if err != nil {
		return err
	}
	if !healthy {
		fmt.Println("SMART overall-health self-assessment: FAILED")
		return fmt.Errorf("drive reports a threshold exceeded condition")
	}
	fmt.Println("SMART overall-health self-assessment: PASSED")
	return nil
}

func (t *readCmd) Run(ctx *context) error {
	cmd, err := ata.ReadDMA(t.LBA, t.Count)
	if err != nil {
		return err
	}
	if err := ctx.exec(cmd); err != nil {
		return err
	}
	if t.Output != "" {
		return os.WriteFile(t.Output, cmd.Data, 0o600)
	}
	fmt.Print(hex.Dump(cmd.Data))
	return nil
}

func (t *writeCmd) Run(ctx *context) error {
	data, err := os.ReadFile(t.File)
	if err != nil {
		return err
	}
	if pad := len(data) % ata.SectorSize; pad != 0 {
		data = append(data, make([]byte, ata.SectorSize-pad)...)
	}
	if err := confirm(t.Yes, fmt.Sprintf("Overwrite %d sectors at LBA %d?", len(data)/ata.SectorSize, t.LBA)); err != nil {
		return err
	}
	cmd, err := ata.WriteDMA(t.LBA, data)
	if err != nil {
		return err
	}
	return ctx.exec(cmd)
}

func powerModeString(m uint8) string {
	switch m {
	case ata.PowerModeStandby:
		return "standby"
	case ata.PowerModeIdle:
		return "idle"
	case ata.PowerModeActive:
		return "active/idle"
	default:
		return fmt.Sprintf("unknown (%#02x)", m)
	}
}

func (t *checkPowerCmd) Run(ctx *context) error {
	cmd := ata.CheckPowerMode()
	if err := ctx.exec(cmd); err != nil {
		return err
	}
	fmt.Printf("Power mode: %s\n", powerModeString(cmd.RTFR.SectorCount))
	return nil
}

func (t *flushCmd) Run(ctx *context) error {
	return ctx.exec(ata.FlushCache(t.Ext))
}

func (t *standbyCmd) Run(ctx *context) error {
	return ctx.exec(ata.StandbyImmediate())
}

func (t *sanitizeCmd) Run(ctx *context) error {
	var cmd *ata.Command
	var err error
	switch t.Action {
	case "status":
		cmd = ata.SanitizeStatus(false)
	case "crypto":
		cmd = ata.SanitizeCryptoScramble(false, false)
	case "block":
		cmd = ata.SanitizeBlockErase(false, false)
	case "overwrite":
		cmd, err = ata.SanitizeOverwrite(t.Pattern, t.Passes, t.Invert, false, false)
	case "freeze":
		cmd = ata.SanitizeFreezeLock()
	}
	if err != nil {
		return err
	}
	if t.Action != "status" {
		if err := confirm(t.Yes, fmt.Sprintf("Start sanitize %s? All data will be lost.", t.Action)); err != nil {
			return err
		}
	}
	if err := ctx.exec(cmd); err != nil {
		return err
	}
	r := cmd.RTFR
	progress := uint16(r.LBAMid)<<8 | uint16(r.LBALow)
	fmt.Printf("Sanitize status: %#04x, progress %.1f%%\n",
		uint16(r.SectorCountExt)<<8|uint16(r.SectorCount), float64(progress)/65536*100)
	return nil
}

func (t *zonesCmd) Run(ctx *context) error {
	cmd, err := ata.ReportZones(t.Start, 0, t.Pages)
	if err != nil {
		return err
	}
	if err := ctx.exec(cmd); err != nil {
		return err
	}
	maxLBA, zones, err := ata.ParseReportZones(cmd.Data)
	if err != nil {
		return err
	}
	fmt.Printf("Max LBA: %d\n", maxLBA)
	for _, z := range zones {
		fmt.Printf("start=%d length=%d wp=%d type=%d condition=%d\n",
			z.Start, z.Length, z.WritePointer, z.Type, z.Condition)
	}
	return nil
}

func (t *securityUnlockCmd) Run(ctx *context) error {
	pw, err := t.GenerateHash(ctx)
	if err != nil {
		return err
	}
	cmd, err := ata.SecurityUnlock(pw, t.Master)
	if err != nil {
		return err
	}
	return ctx.exec(cmd)
}

func (t *securitySetPasswordCmd) Run(ctx *context) error {
	pw, err := t.GenerateHash(ctx)
	if err != nil {
		return err
	}
	cmd, err := ata.SecuritySetPassword(pw, ata.SecurityOptions{
		Master:           t.Master,
		Maximum:          t.Maximum,
		MasterIdentifier: t.MasterIdentifier,
	})
	if err != nil {
		return err
	}
	if !t.Master {
		if err := confirm(t.Yes, "Enable ATA security? A lost password makes the drive unusable."); err != nil {
			return err
		}
	}
	return ctx.exec(cmd)
}

func (t *securityDisableCmd) Run(ctx *context) error {
	pw, err := t.GenerateHash(ctx)
	if err != nil {
		return err
	}
	cmd, err := ata.SecurityDisablePassword(pw, t.Master)
	if err != nil {
		return err
	}
	return ctx.exec(cmd)
}

func (t *securityProtocolsCmd) Run(ctx *context) error {
	protos, err := drive.SecurityProtocols(ctx)
	if err != nil {
		return err
	}
	for _, p := range protos {
		fmt.Printf("%#02x\n", int(p))
	}
	return nil
}

func (t *rawCmd) Run(ctx *context) error {
	var cmd *ata.Command
	if t.Sectors > 0 {
		c, err := ata.ReadSectors(0, t.Sectors)
		if err != nil {
			return err
		}
		cmd = c
	} else {
		cmd = &ata.Command{Protocol: ata.ProtocolNoData}
	}
	cmd.Type = ata.CommandTypeTaskFile
	cmd.TaskFile = ata.TaskFile{
		Command:     t.Command,
		Feature:     t.Feature,
		SectorCount: t.Count,
		Device:      ata.DeviceObsolete,
	}
	cmd.SetLBA28(t.LBA)
	err := ctx.exec(cmd)
	spew.Dump(cmd.RTFR)
	if t.Sectors > 0 && err == nil {
		fmt.Print(hex.Dump(cmd.Data))
	}
	return err
}

// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import (
	"encoding/binary"
	"fmt"
	"time"
)

// SecurityPasswordLength is the size of an ATA security password.
const SecurityPasswordLength = 32

const (
	securityIdentifierMaster = 0x0001
	securityEnhancedErase    = 0x0002
	securityMasterMaximum    = 0x0100
)

// SecurityOptions shape the 512 byte data block of the security commands.
type SecurityOptions struct {
	// Master selects the master password instead of the user password.
	Master bool
	// Maximum sets the master password capability to Maximum on SECURITY
	// SET PASSWORD (High otherwise).
	Maximum bool
	// Enhanced requests an enhanced erase on SECURITY ERASE UNIT.
	Enhanced bool
	// MasterIdentifier is stored in word 17 on SECURITY SET PASSWORD.
	MasterIdentifier uint16
}

// SecurityPayload builds the data block transferred by SECURITY SET
// PASSWORD, UNLOCK, ERASE UNIT and DISABLE PASSWORD.
func SecurityPayload(password []byte, opts SecurityOptions) ([]byte, error) {
	if len(password) > SecurityPasswordLength {
		return nil, fmt.Errorf("%w: password longer than %d bytes", ErrBadParameter, SecurityPasswordLength)
	}
	buf := make([]byte, SectorSize)
	var control uint16
	if opts.Master {
		control |= securityIdentifierMaster
	}
	if opts.Enhanced {
		control |= securityEnhancedErase
	}
	if opts.Maximum {
		control |= securityMasterMaximum
	}
	binary.LittleEndian.PutUint16(buf[0:], control)
	copy(buf[2:2+SecurityPasswordLength], password)
	if opts.Master {
		binary.LittleEndian.PutUint16(buf[34:], opts.MasterIdentifier)
	}
	return buf, nil
}

func securityOut(opcode uint8, password []byte, opts SecurityOptions) (*Command, error) {
	payload, err := SecurityPayload(password, opts)
	if err != nil {
		return nil, err
	}
	c := newCommand(opcode, ProtocolPIO, DirectionOut, payload)
	c.TaskFile.SectorCount = 1
	return c, nil
}

// SecuritySetPassword returns SECURITY SET PASSWORD.
func SecuritySetPassword(password []byte, opts SecurityOptions) (*Command, error) {
	return securityOut(CmdSecuritySetPassword, password, opts)
}

// SecurityUnlock returns SECURITY UNLOCK.
func SecurityUnlock(password []byte, master bool) (*Command, error) {
	return securityOut(CmdSecurityUnlock, password, SecurityOptions{Master: master})
}

// SecurityDisablePassword returns SECURITY DISABLE PASSWORD.
func SecurityDisablePassword(password []byte, master bool) (*Command, error) {
	return securityOut(CmdSecurityDisable, password, SecurityOptions{Master: master})
}

// SecurityErasePrepare must immediately precede SecurityEraseUnit.
func SecurityErasePrepare() *Command {
	return nonData(CmdSecurityErasePrepare)
}

// SecurityEraseUnit returns SECURITY ERASE UNIT. timeout should cover the
// erase time reported in IDENTIFY DEVICE words 89/90.
func SecurityEraseUnit(password []byte, master, enhanced bool, timeout time.Duration) (*Command, error) {
	c, err := securityOut(CmdSecurityEraseUnit, password, SecurityOptions{Master: master, Enhanced: enhanced})
	if err != nil {
		return nil, err
	}
	c.Timeout = timeout
	return c, nil
}

// SecurityFreezeLock returns SECURITY FREEZE LOCK.
func SecurityFreezeLock() *Command {
	return nonData(CmdSecurityFreezeLock)
}

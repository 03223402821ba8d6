// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmdutil

import (
	"fmt"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/hash"
)

// Serialer is implemented by drive.Drive.
type Serialer interface {
	SerialNumber() ([]byte, error)
}

type PasswordEmbed struct {
	Password string `required:"" env:"PASS" type:"password" help:"Security password"`
	Hash     string `optional:"" env:"HASH" default:"raw" enum:"raw,sedutil-dta,sedutil-sha512,dta,sha1,sha512" help:"Use the password as is (raw), or hash it with dta (sha1) or sha512"`
}

// GenerateHash returns the 32 byte password field, salted with the drive's
// serial number for the pbkdf2 methods.
func (t *PasswordEmbed) GenerateHash(d Serialer) ([]byte, error) {
	m, err := hash.ParseMethod(t.Hash)
	if err != nil {
		return nil, err
	}
	var salt string
	if m != hash.MethodRaw {
		serial, err := d.SerialNumber()
		if err != nil {
			return nil, fmt.Errorf("SerialNumber() failed: %v", err)
		}
		salt = string(serial)
	}
	return hash.SecurityPassword(t.Password, salt, m)
}

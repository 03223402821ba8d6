// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hash derives the 32 byte ATA security password from a passphrase.
package hash

import (
	"crypto/sha1"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

type Method string

const (
	// MethodRaw uses the passphrase bytes as the password, zero padded, as
	// hdparm does.
	MethodRaw        Method = "raw"
	MethodSedutilDTA Method = "sedutil-dta"
	MethodSedutil512 Method = "sedutil-sha512"
)

// ParseMethod accepts the method names and their short aliases.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "raw":
		return MethodRaw, nil
	// Drive-Trust-Alliance uses sha1
	case "sedutil-dta", "sha1", "dta":
		return MethodSedutilDTA, nil
	// ChubbyAnt uses sha512
	case "sedutil-sha512", "sha512":
		return MethodSedutil512, nil
	}
	return "", fmt.Errorf("%w: unknown hash method %q", ata.ErrBadParameter, s)
}

func HashSedutilDTA(password string, serial string) []byte {
	// This needs to match https://github.com/Drive-Trust-Alliance/sedutil/
	salt := fmt.Sprintf("%-20s", serial)
	return pbkdf2.Key([]byte(password), []byte(salt[:20]), 75000, ata.SecurityPasswordLength, sha1.New)
}

func HashSedutil512(password string, serial string) []byte {
	// This needs to match https://github.com/ChubbyAnt/sedutil/
	salt := fmt.Sprintf("%-20s", serial)
	return pbkdf2.Key([]byte(password), []byte(salt[:20]), 500000, ata.SecurityPasswordLength, sha512.New)
}

// SecurityPassword returns the password field for the SECURITY commands of
// the drive with the given serial number.
func SecurityPassword(password string, serial string, m Method) ([]byte, error) {
	switch m {
	case MethodRaw:
		if len(password) > ata.SecurityPasswordLength {
			return nil, fmt.Errorf("%w: raw password longer than %d bytes", ata.ErrBadParameter, ata.SecurityPasswordLength)
		}
		pw := make([]byte, ata.SecurityPasswordLength)
		copy(pw, password)
		return pw, nil
	case MethodSedutilDTA:
		return HashSedutilDTA(password, serial), nil
	case MethodSedutil512:
		return HashSedutil512(password, serial), nil
	}
	return nil, fmt.Errorf("%w: unknown hash method %q", ata.ErrBadParameter, m)
}

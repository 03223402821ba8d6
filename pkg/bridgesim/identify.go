// Copyright (c) 2024 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridgesim

import (
	"encoding/binary"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/ata"
)

// IDENTIFY DEVICE word offsets
const (
	wordGeneralConfig = 0
	wordSerial        = 10
	wordFirmware      = 23
	wordModel         = 27
	wordMultiple      = 47
	wordCapabilities  = 49
	wordLBA28Sectors  = 60
	wordMajorVersion  = 80
	wordCommandSet2   = 83
	wordCommandSet2En = 86
	wordLBA48Sectors  = 100
	wordIntegrity     = 255
)

// putString stores s in ATA string order: space padded, bytes swapped
// within each word.
func putString(page []byte, word, words int, s string) {
	field := page[word*2 : (word+words)*2]
	for i := range field {
		field[i] = ' '
	}
	copy(field, s)
	for i := 0; i+1 < len(field); i += 2 {
		field[i], field[i+1] = field[i+1], field[i]
	}
}

func identifyPage(model, serial, firmware string, sectors uint64) [ata.SectorSize]byte {
	var page [ata.SectorSize]byte
	put := func(word int, v uint16) {
		binary.LittleEndian.PutUint16(page[word*2:], v)
	}

	put(wordGeneralConfig, 0x0040) // fixed, ATA
	putString(page[:], wordSerial, 10, serial)
	putString(page[:], wordFirmware, 4, firmware)
	putString(page[:], wordModel, 20, model)
	put(wordMultiple, 0x8010)     // up to 16 sectors per DRQ block
	put(wordCapabilities, 0x0300) // LBA, DMA
	put(wordMajorVersion, 0x01f0) // ATA/ATAPI-4 to ATA8-ACS
	put(wordCommandSet2, 0x4400)  // 48-bit address feature set
	put(wordCommandSet2En, 0x0400)

	lba28 := sectors
	if lba28 > 0x0fffffff {
		lba28 = 0x0fffffff
	}
	binary.LittleEndian.PutUint32(page[wordLBA28Sectors*2:], uint32(lba28))
	binary.LittleEndian.PutUint64(page[wordLBA48Sectors*2:], sectors)

	// Integrity word: signature in the low byte, checksum in the high byte
	// so that all 512 bytes sum to zero.
	page[wordIntegrity*2] = 0xa5
	var sum uint8
	for _, v := range page[:ata.SectorSize-1] {
		sum += v
	}
	page[ata.SectorSize-1] = -sum
	return page
}

// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package rtucrc

import (
	"encoding/binary"
	"sync"
)

// STM32F10x CRC unit parameters: CRC-32 with the non-reflected polynomial
// 0x04C11DB7, data register reset value 0xFFFFFFFF, 32-bit input, no final
// XOR. This is not the Modbus CRC-16; it backs bulk integrity checks such
// as firmware image validation.
const (
	hwCRCPoly  = 0x04C11DB7
	hwCRCReset = 0xFFFFFFFF
)

// CRCPeripheral abstracts the hardware CRC calculation unit. Implementations
// handle the actual register access; off-target the software model SimCRC is
// used. The unit is stateful: Feed folds a word into the data register and
// Sum reads it back, so a computation is always reset-feed-read.
type CRCPeripheral interface {
	// Reset restores the data register to its reset value 0xFFFFFFFF.
	Reset()

	// Feed folds one 32-bit word into the running checksum.
	Feed(word uint32)

	// Sum returns the current value of the data register.
	Sum() uint32
}

// SimCRC is a software model of the STM32 CRC unit, bit-exact with the
// hardware. It is the default backend when no peripheral is registered and
// the reference the hardware path is validated against.
type SimCRC struct {
	dr uint32
}

// NewSimCRC returns a model in reset state.
func NewSimCRC() *SimCRC {
	return &SimCRC{dr: hwCRCReset}
}

func (c *SimCRC) Reset() {
	c.dr = hwCRCReset
}

func (c *SimCRC) Feed(word uint32) {
	crc := c.dr ^ word
	for i := 0; i < 32; i++ {
		if crc&0x80000000 != 0 {
			crc = (crc << 1) ^ hwCRCPoly
		} else {
			crc <<= 1
		}
	}
	c.dr = crc
}

func (c *SimCRC) Sum() uint32 {
	return c.dr
}

// HardwareCRC owns one CRC peripheral and serializes access to it. The
// peripheral is shared mutable state with no locking of its own, so every
// computation here runs reset-feed-read under the mutex; callers never
// observe a register contaminated by a previous call.
type HardwareCRC struct {
	mu sync.Mutex
	p  CRCPeripheral
}

// NewHardwareCRC wraps the given peripheral. A nil peripheral selects the
// software model.
func NewHardwareCRC(p CRCPeripheral) *HardwareCRC {
	if p == nil {
		p = NewSimCRC()
	}
	return &HardwareCRC{p: p}
}

// ChecksumWords resets the peripheral, feeds each 32-bit word in order and
// returns the resulting checksum. Intended for word-aligned data such as
// firmware images, where the native input width of the unit gives the best
// throughput. An empty slice yields the reset value.
func (h *HardwareCRC) ChecksumWords(words []uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.p.Reset()
	for _, w := range words {
		h.p.Feed(w)
	}
	return h.p.Sum()
}

// ChecksumBytes checksums an arbitrary byte region through the word-wide
// peripheral. Bytes are packed big-endian into 32-bit words; a trailing
// partial word is zero-padded, since the unit only accepts full words. For
// data that is the big-endian encoding of a word sequence the result equals
// ChecksumWords over that sequence; unaligned lengths diverge from any
// word-level encoding because of the padding.
func (h *HardwareCRC) ChecksumBytes(data []byte) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.p.Reset()
	for len(data) >= 4 {
		h.p.Feed(binary.BigEndian.Uint32(data))
		data = data[4:]
	}
	if len(data) > 0 {
		var tail [4]byte
		copy(tail[:], data)
		h.p.Feed(binary.BigEndian.Uint32(tail[:]))
	}
	return h.p.Sum()
}

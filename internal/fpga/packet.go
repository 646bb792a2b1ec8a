// Copyright 2020 James P. Ancona

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

// 	http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fpga implements the wire format shared with the board's FPGA:
// the 4096-byte data packet layout, the bit-packed 12/16-bit sample codec,
// register addresses, and SPI write/read framing. It has no knowledge of
// streams, FIFOs, or threads - that belongs to the parent package.
package fpga

import (
	"encoding/binary"
	"fmt"
)

// PacketSize is the fixed size of one FPGA data packet.
const PacketSize = 4096

const (
	headerSize  = 8
	counterSize = 8
	// PayloadSize is the number of payload bytes following the 16-byte header.
	PayloadSize = PacketSize - headerSize - counterSize

	counterOffset = headerSize
	payloadOffset = headerSize + counterSize
)

const (
	bitTxLate          = 1 << 3 // reserved[0] bit 3, board -> host
	bitIgnoreTimestamp = 1 << 4 // reserved[0] bit 4, host -> board
)

// IQ is one complex baseband sample as carried over the wire: a signed
// 16-bit I and Q component, regardless of whether the packed (12-bit) or
// unpacked (16-bit) link format is in effect on the wire.
type IQ struct {
	I int16
	Q int16
}

// PacketView is a zero-copy window over one 4096-byte slot of a batch
// buffer. It never allocates or copies; it validates length once on
// construction and leaves alignment to the caller, who carves it out of a
// buffer whose size is a multiple of PacketSize by construction.
type PacketView []byte

// NewPacketView wraps buf as a single packet, rejecting any length other
// than PacketSize.
func NewPacketView(buf []byte) (PacketView, error) {
	if len(buf) != PacketSize {
		return nil, fmt.Errorf("fpga: packet view needs %d bytes, got %d", PacketSize, len(buf))
	}
	return PacketView(buf), nil
}

// Counter returns the packet's sample counter.
func (p PacketView) Counter() uint64 {
	return binary.LittleEndian.Uint64(p[counterOffset : counterOffset+counterSize])
}

// SetCounter writes the packet's sample counter.
func (p PacketView) SetCounter(c uint64) {
	binary.LittleEndian.PutUint64(p[counterOffset:counterOffset+counterSize], c)
}

// TxLate reports the board-set TX-late indicator, reserved[0] bit 3.
func (p PacketView) TxLate() bool {
	return p[0]&bitTxLate != 0
}

// IgnoreTimestamp reports the host-set ignore-timestamp bit, reserved[0] bit 4.
func (p PacketView) IgnoreTimestamp() bool {
	return p[0]&bitIgnoreTimestamp != 0
}

// SetIgnoreTimestamp sets or clears reserved[0] bit 4. It does not disturb
// any other reserved bits.
func (p PacketView) SetIgnoreTimestamp(v bool) {
	if v {
		p[0] |= bitIgnoreTimestamp
	} else {
		p[0] &^= bitIgnoreTimestamp
	}
}

// ResetReserved clears the full reserved[0..7] header, used when building a
// fresh outgoing packet before setting individual flag bits.
func (p PacketView) ResetReserved() {
	for i := 0; i < headerSize; i++ {
		p[i] = 0
	}
}

// Payload returns the mutable payload region, exactly PayloadSize bytes.
func (p PacketView) Payload() []byte {
	return p[payloadOffset:PacketSize]
}

// BatchView is a zero-copy window over a buffer holding a whole number of
// back-to-back packets.
type BatchView []byte

// NewBatchView wraps buf as a batch, rejecting any length that isn't a
// whole multiple of PacketSize.
func NewBatchView(buf []byte) (BatchView, error) {
	if len(buf)%PacketSize != 0 {
		return nil, fmt.Errorf("fpga: batch view length %d is not a multiple of %d", len(buf), PacketSize)
	}
	return BatchView(buf), nil
}

// NumPackets returns how many packets the batch holds.
func (b BatchView) NumPackets() int {
	return len(b) / PacketSize
}

// Packet returns a view over the i'th packet in the batch.
func (b BatchView) Packet(i int) PacketView {
	off := i * PacketSize
	return PacketView(b[off : off+PacketSize])
}

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

package fpga

import (
	"encoding/binary"
	"fmt"
)

// SamplesInPacket returns how many samples per channel one full 4080-byte
// payload carries for the given link format and channel count.
func SamplesInPacket(packed bool, chCount int) (int, error) {
	if chCount != 1 && chCount != 2 {
		return 0, fmt.Errorf("fpga: unsupported channel count %d", chCount)
	}
	base := 1020
	if packed {
		base = 1360
	}
	return base / chCount, nil
}

// pack12 packs one I/Q pair as 12-bit two's-complement components into
// three little-endian-ordered nibble bytes: I occupies byte0 and the low
// nibble of byte1, Q occupies the high nibble of byte1 and byte2.
func pack12(i, q int16) [3]byte {
	ui := uint16(i) & 0x0FFF
	uq := uint16(q) & 0x0FFF
	return [3]byte{
		byte(ui),
		byte(ui>>8) | byte(uq<<4),
		byte(uq >> 4),
	}
}

func unpack12(b0, b1, b2 byte) (i, q int16) {
	ui := uint16(b0) | uint16(b1&0x0F)<<8
	uq := uint16(b1>>4) | uint16(b2)<<4
	return signExtend12(ui), signExtend12(uq)
}

func signExtend12(v uint16) int16 {
	v &= 0x0FFF
	if v&0x0800 != 0 {
		v |= 0xF000
	}
	return int16(v)
}

// SamplesToPayload packs one batch of per-channel samples into a packet
// payload, interleaving channels per-sample (I0 Q0 I1 Q1 ... for two
// channels). It returns the number of bytes written. out must be at least
// PayloadSize bytes; every channel in src must carry the same sample count,
// which must not exceed SamplesInPacket(packed, len(src)).
func SamplesToPayload(src [][]IQ, packed bool, out []byte) (int, error) {
	chCount := len(src)
	maxN, err := SamplesInPacket(packed, chCount)
	if err != nil {
		return 0, err
	}
	if chCount == 0 {
		return 0, fmt.Errorf("fpga: no channels to pack")
	}
	n := len(src[0])
	for c := 1; c < chCount; c++ {
		if len(src[c]) != n {
			return 0, fmt.Errorf("fpga: channel %d has %d samples, channel 0 has %d", c, len(src[c]), n)
		}
	}
	if n > maxN {
		return 0, fmt.Errorf("fpga: %d samples exceeds per-channel maximum %d", n, maxN)
	}
	bytesPerSample := 4
	if packed {
		bytesPerSample = 3
	}
	needed := n * chCount * bytesPerSample
	if len(out) < needed {
		return 0, fmt.Errorf("fpga: payload buffer too small: need %d, have %d", needed, len(out))
	}

	pos := 0
	for i := 0; i < n; i++ {
		for c := 0; c < chCount; c++ {
			s := src[c][i]
			if packed {
				b := pack12(s.I, s.Q)
				out[pos], out[pos+1], out[pos+2] = b[0], b[1], b[2]
				pos += 3
			} else {
				binary.LittleEndian.PutUint16(out[pos:pos+2], uint16(s.I))
				binary.LittleEndian.PutUint16(out[pos+2:pos+4], uint16(s.Q))
				pos += 4
			}
		}
	}
	return pos, nil
}

// PayloadToSamples unpacks a full packet payload into per-channel sample
// slices. Every dst[c] must have length at least SamplesInPacket(packed,
// len(dst)); a full payload always yields exactly that many samples per
// channel, since the wire packing is fixed-size. It returns that count.
func PayloadToSamples(in []byte, packed bool, dst [][]IQ) (int, error) {
	chCount := len(dst)
	maxN, err := SamplesInPacket(packed, chCount)
	if err != nil {
		return 0, err
	}
	for c := 0; c < chCount; c++ {
		if len(dst[c]) < maxN {
			return 0, fmt.Errorf("fpga: destination channel %d has capacity %d, need %d", c, len(dst[c]), maxN)
		}
	}
	bytesPerSample := 4
	if packed {
		bytesPerSample = 3
	}
	needed := maxN * chCount * bytesPerSample
	if len(in) < needed {
		return 0, fmt.Errorf("fpga: payload too short: need %d, have %d", needed, len(in))
	}

	pos := 0
	for i := 0; i < maxN; i++ {
		for c := 0; c < chCount; c++ {
			if packed {
				i16, q16 := unpack12(in[pos], in[pos+1], in[pos+2])
				dst[c][i] = IQ{I: i16, Q: q16}
				pos += 3
			} else {
				ii := int16(binary.LittleEndian.Uint16(in[pos : pos+2]))
				qq := int16(binary.LittleEndian.Uint16(in[pos+2 : pos+4]))
				dst[c][i] = IQ{I: ii, Q: qq}
				pos += 4
			}
		}
	}
	return maxN, nil
}

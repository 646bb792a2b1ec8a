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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSamplesInPacket(t *testing.T) {
	cases := []struct {
		packed bool
		ch     int
		want   int
	}{
		{false, 1, 1020},
		{true, 1, 1360},
		{false, 2, 510},
		{true, 2, 680},
	}
	for _, c := range cases {
		got, err := SamplesInPacket(c.packed, c.ch)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}

	_, err := SamplesInPacket(false, 3)
	require.Error(t, err)
}

func genSamples(n int, seed int16) []IQ {
	out := make([]IQ, n)
	for i := range out {
		out[i] = IQ{I: seed + int16(i), Q: -seed - int16(i)}
	}
	return out
}

func TestCodecRoundTripUnpackedOneChannel(t *testing.T) {
	src := [][]IQ{genSamples(1020, 100)}
	payload := make([]byte, PayloadSize)
	n, err := SamplesToPayload(src, false, payload)
	require.NoError(t, err)
	require.Equal(t, PayloadSize, n)

	dst := [][]IQ{make([]IQ, 1020)}
	got, err := PayloadToSamples(payload, false, dst)
	require.NoError(t, err)
	require.Equal(t, 1020, got)
	require.Equal(t, src[0], dst[0])
}

func TestCodecRoundTripUnpackedTwoChannel(t *testing.T) {
	src := [][]IQ{genSamples(510, 1), genSamples(510, -1)}
	payload := make([]byte, PayloadSize)
	_, err := SamplesToPayload(src, false, payload)
	require.NoError(t, err)

	dst := [][]IQ{make([]IQ, 510), make([]IQ, 510)}
	_, err = PayloadToSamples(payload, false, dst)
	require.NoError(t, err)
	require.Equal(t, src[0], dst[0])
	require.Equal(t, src[1], dst[1])
}

func TestCodecRoundTripPackedRespectsTwelveBitRange(t *testing.T) {
	// 12-bit signed range is -2048..2047; the boundary values must survive
	// the pack/unpack round trip exactly.
	src := [][]IQ{{{I: 2000, Q: -2000}, {I: -1, Q: 1}, {I: 2047, Q: -2048}}}
	payload := make([]byte, PayloadSize)
	_, err := SamplesToPayload(src, true, payload)
	require.NoError(t, err)

	dst := [][]IQ{make([]IQ, 1360)}
	_, err = PayloadToSamples(payload, true, dst)
	require.NoError(t, err)
	require.Equal(t, src[0], dst[0][:len(src[0])])
}

func TestCodecRoundTripPackedTwoChannel(t *testing.T) {
	src := [][]IQ{genSamples(680, 50), genSamples(680, -50)}
	payload := make([]byte, PayloadSize)
	_, err := SamplesToPayload(src, true, payload)
	require.NoError(t, err)

	dst := [][]IQ{make([]IQ, 680), make([]IQ, 680)}
	_, err = PayloadToSamples(payload, true, dst)
	require.NoError(t, err)
	require.Equal(t, src[0], dst[0])
	require.Equal(t, src[1], dst[1])
}

func TestSamplesToPayloadRejectsTooManySamples(t *testing.T) {
	src := [][]IQ{genSamples(1021, 0)}
	payload := make([]byte, PayloadSize)
	_, err := SamplesToPayload(src, false, payload)
	require.Error(t, err)
}

func TestSamplesToPayloadRejectsMismatchedChannelLengths(t *testing.T) {
	src := [][]IQ{genSamples(100, 0), genSamples(99, 0)}
	payload := make([]byte, PayloadSize)
	_, err := SamplesToPayload(src, false, payload)
	require.Error(t, err)
}

func TestSignExtend12(t *testing.T) {
	require.Equal(t, int16(-1), signExtend12(0x0FFF))
	require.Equal(t, int16(2047), signExtend12(0x07FF))
	require.Equal(t, int16(-2048), signExtend12(0x0800))
	require.Equal(t, int16(0), signExtend12(0x0000))
}

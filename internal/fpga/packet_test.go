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

func TestNewPacketViewRejectsWrongSize(t *testing.T) {
	_, err := NewPacketView(make([]byte, 100))
	require.Error(t, err)

	v, err := NewPacketView(make([]byte, PacketSize))
	require.NoError(t, err)
	require.Len(t, v.Payload(), PayloadSize)
}

func TestPacketViewCounterRoundTrip(t *testing.T) {
	v, err := NewPacketView(make([]byte, PacketSize))
	require.NoError(t, err)

	v.SetCounter(0x0102030405060708)
	require.Equal(t, uint64(0x0102030405060708), v.Counter())
}

func TestPacketViewTxLateAndIgnoreTimestamp(t *testing.T) {
	v, err := NewPacketView(make([]byte, PacketSize))
	require.NoError(t, err)

	require.False(t, v.TxLate())
	v[0] |= bitTxLate
	require.True(t, v.TxLate())

	require.False(t, v.IgnoreTimestamp())
	v.SetIgnoreTimestamp(true)
	require.True(t, v.IgnoreTimestamp())
	require.True(t, v.TxLate(), "setting ignore-timestamp must not disturb the tx-late bit")

	v.SetIgnoreTimestamp(false)
	require.False(t, v.IgnoreTimestamp())
}

func TestPacketViewResetReserved(t *testing.T) {
	v, err := NewPacketView(make([]byte, PacketSize))
	require.NoError(t, err)
	v[0] = 0xFF
	v[7] = 0xFF
	v.ResetReserved()
	for i := 0; i < headerSize; i++ {
		require.Zero(t, v[i])
	}
}

func TestBatchView(t *testing.T) {
	_, err := NewBatchView(make([]byte, PacketSize+1))
	require.Error(t, err)

	b, err := NewBatchView(make([]byte, PacketSize*3))
	require.NoError(t, err)
	require.Equal(t, 3, b.NumPackets())

	b.Packet(1).SetCounter(42)
	require.Equal(t, uint64(42), b.Packet(1).Counter())
	require.Equal(t, uint64(0), b.Packet(0).Counter())
}

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

package streamcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRingFIFOFIFOness(t *testing.T) {
	f := NewRingFIFO(8)
	a := []ComplexSample{{I: 1, Q: 1}, {I: 2, Q: 2}}
	b := []ComplexSample{{I: 3, Q: 3}}

	n, err := f.Write(a, Metadata{Timestamp: 10}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = f.Write(b, Metadata{Timestamp: 20}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	dst := make([]ComplexSample, 3)
	var meta Metadata
	popped, err := f.Read(dst, &meta, time.Second)
	require.NoError(t, err)
	require.Equal(t, 3, popped)
	require.Equal(t, []ComplexSample{a[0], a[1], b[0]}, dst)
	require.Equal(t, uint64(10), meta.Timestamp)
}

func TestRingFIFOOverwriteOldEvictsOldest(t *testing.T) {
	f := NewRingFIFO(4)
	full := make([]ComplexSample, 4)
	for i := range full {
		full[i] = ComplexSample{I: int16(i)}
	}
	_, err := f.Write(full, Metadata{Timestamp: 0, Flags: FlagOverwriteOld}, time.Second)
	require.NoError(t, err)

	extra := []ComplexSample{{I: 100}, {I: 101}}
	n, err := f.Write(extra, Metadata{Timestamp: 4, Flags: FlagOverwriteOld}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	dst := make([]ComplexSample, 4)
	var meta Metadata
	popped, err := f.Read(dst, &meta, time.Second)
	require.NoError(t, err)
	require.Equal(t, 4, popped)
	// the oldest two samples (I=0, I=1) were evicted to make room.
	require.Equal(t, []ComplexSample{{I: 2}, {I: 3}, {I: 100}, {I: 101}}, dst)
}

func TestRingFIFOReadTimesOutWithShortRead(t *testing.T) {
	f := NewRingFIFO(4)
	dst := make([]ComplexSample, 4)
	var meta Metadata
	start := time.Now()
	popped, err := f.Read(dst, &meta, 20*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 0, popped)
	require.WithinDuration(t, start.Add(20*time.Millisecond), time.Now(), 50*time.Millisecond)
}

func TestRingFIFOWriteBlocksThenTimesOut(t *testing.T) {
	f := NewRingFIFO(2)
	full := []ComplexSample{{I: 1}, {I: 2}}
	_, err := f.Write(full, Metadata{}, time.Second)
	require.NoError(t, err)

	more := []ComplexSample{{I: 3}}
	n, err := f.Write(more, Metadata{}, 20*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRingFIFOClear(t *testing.T) {
	f := NewRingFIFO(4)
	_, err := f.Write([]ComplexSample{{I: 1}, {I: 2}}, Metadata{}, time.Second)
	require.NoError(t, err)
	f.Clear()
	require.Equal(t, 0, f.Len())
}

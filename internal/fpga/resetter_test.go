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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRegisterRW struct {
	mu     sync.Mutex
	values map[uint16]uint16
	writes []uint16
}

func newFakeRegisterRW() *fakeRegisterRW {
	return &fakeRegisterRW{values: map[uint16]uint16{RegTxLateReset: 0}}
}

func (f *fakeRegisterRW) ReadRegister(addr uint16) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[addr], nil
}

func (f *fakeRegisterRW) WriteRegister(addr uint16, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[addr] = value
	f.writes = append(f.writes, value)
	return nil
}

func TestLateTxResetterPulsesOnSignal(t *testing.T) {
	reg := newFakeRegisterRW()
	r := NewLateTxResetter(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Signal()

	require.Eventually(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return len(reg.writes) >= 2
	}, time.Second, time.Millisecond)

	reg.mu.Lock()
	require.Equal(t, txLateResetBit, reg.writes[len(reg.writes)-2])
	require.Equal(t, uint16(0), reg.writes[len(reg.writes)-1])
	reg.mu.Unlock()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestLateTxResetterCoalescesBurstIntoAtMostTwoPulses(t *testing.T) {
	reg := newFakeRegisterRW()
	r := NewLateTxResetter(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for i := 0; i < 10; i++ {
		r.Signal()
	}

	require.Eventually(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return len(reg.writes) >= 2
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	reg.mu.Lock()
	require.LessOrEqual(t, len(reg.writes), 4, "a burst of signals should coalesce into at most a couple of pulses")
	reg.mu.Unlock()
}

func TestLateTxResetterStop(t *testing.T) {
	reg := newFakeRegisterRW()
	r := NewLateTxResetter(reg)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	r.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/limeiq/streamcore/internal/fpga"
)

type fakePllController struct {
	mu    sync.Mutex
	calls []PllClock
}

func (f *fakePllController) SetPllFrequency(clocks []PllClock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, clocks...)
	return nil
}

func (f *fakePllController) SetDirectClocking(pllIndex int, outFrequency float64, phaseShiftDeg float64) error {
	return nil
}

func newRetuneTestStreamer(t *testing.T, board BoardConfig) (*Streamer, *fakeRegisterBank, *fakePllController) {
	t.Helper()
	regs := newFakeRegisterBank()
	pll := &fakePllController{}
	transport := &fakeSyncTransport{}
	s, err := NewStreamer(board, regs, pll, transport, nil, 0, 0)
	require.NoError(t, err)
	return s, regs, pll
}

func TestUpdateExternalDataRateAutoWhileRunningSkipsPhaseSearch(t *testing.T) {
	board := DefaultBoardConfig()
	board.ChipVersion = fpga.ChipVersionPhaseSearch
	board.IsDualChipPCIe = true
	s, _, pll := newRetuneTestStreamer(t, board)

	_, err := s.Setup(StreamConfig{Channel: 0, Direction: DirectionRX, LinkFormat: LinkFormatI16, FIFOSize: 1 << 12})
	require.NoError(t, err)
	require.NoError(t, s.StartStream())
	defer s.StopStream()

	err = s.UpdateExternalDataRateAuto(0, 5e6, 5e6)
	require.NoError(t, err)
	require.Equal(t, 5e6, s.ExpectedSampleRate())
	require.Len(t, pll.calls, 2)
	for _, c := range pll.calls {
		require.False(t, c.FindPhase, "phase search must not run while a stream is running")
	}
}

func TestUpdateExternalDataRateAutoIdlePerformsPhaseSearch(t *testing.T) {
	board := DefaultBoardConfig()
	board.ChipVersion = fpga.ChipVersionPhaseSearch
	board.IsDualChipPCIe = true
	s, regs, _ := newRetuneTestStreamer(t, board)

	original := map[uint16]uint16{}
	for i, addr := range fpga.PhaseSearchBackupRegs {
		v := uint16(0xA000 + i)
		require.NoError(t, regs.WriteRegister(addr, v))
		original[addr] = v
	}
	writesBefore := len(regs.writes)

	err := s.UpdateExternalDataRateAuto(0, 10e6, 10e6)
	require.NoError(t, err)
	require.Equal(t, 10e6, s.ExpectedSampleRate())

	var toggles []uint16
	for _, w := range regs.writes[writesBefore:] {
		if w == fpga.TxTestPathOn || w == fpga.TxTestPathOff {
			toggles = append(toggles, w)
		}
	}
	require.GreaterOrEqual(t, len(toggles), 2)
	require.Equal(t, fpga.TxTestPathOn, toggles[len(toggles)-2])
	require.Equal(t, fpga.TxTestPathOff, toggles[len(toggles)-1])

	for addr, want := range original {
		require.Equal(t, want, regs.values[addr], "backed-up register %#x must be restored to its pre-search value", addr)
	}
}

func TestUpdateExternalDataRateExplicitSingleChip(t *testing.T) {
	board := DefaultBoardConfig()
	board.IsDualChipPCIe = false
	s, _, pll := newRetuneTestStreamer(t, board)

	err := s.UpdateExternalDataRateExplicit(1, 2e6, 2e6, 10, 20)
	require.NoError(t, err)
	require.Len(t, pll.calls, 2)
	require.Equal(t, 3, pll.calls[0].Index) // channel 1 -> rx index 3
	require.Equal(t, 2, pll.calls[1].Index) // channel 1 -> tx index 2
}

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
	"log"
	"time"

	"github.com/limeiq/streamcore/internal/fpga"
)

const phaseSearchMinClockHz = 5e6

// pllIndices returns the (tx, rx) PLL indices for a channel: channel 0
// uses 0/1, channel 1 uses 2/3.
func pllIndices(channel int) (txIdx, rxIdx int) {
	if channel == 1 {
		return 2, 3
	}
	return 0, 1
}

// UpdateExternalDataRateExplicit configures the RX/TX PLL outputs at the
// caller-supplied phase, with outFrequency = 2*rate. On a dual-chip board
// the same PLL configuration is issued once per chip; the PLL controller
// is responsible for routing each call to the right chip.
func (s *Streamer) UpdateExternalDataRateExplicit(channel int, txRate, rxRate, txPhaseDeg, rxPhaseDeg float64) error {
	if channel != 0 && channel != 1 {
		return &ConfigError{Field: "channel", Value: channel}
	}
	txIdx, rxIdx := pllIndices(channel)
	numChips := 1
	if s.board.IsDualChipPCIe {
		numChips = 2
	}

	for chip := 0; chip < numChips; chip++ {
		rxClock := PllClock{Index: rxIdx, OutFrequency: 2 * rxRate, PhaseShiftDeg: rxPhaseDeg}
		if err := s.pll.SetPllFrequency([]PllClock{rxClock}); err != nil {
			return &HardwareError{Op: "SetPllFrequency rx", Err: err}
		}
		txClock := PllClock{Index: txIdx, OutFrequency: 2 * txRate, PhaseShiftDeg: txPhaseDeg}
		if err := s.pll.SetPllFrequency([]PllClock{txClock}); err != nil {
			return &HardwareError{Op: "SetPllFrequency tx", Err: err}
		}
	}
	storeRate(&s.expectedSampleRateBits, rxRate)
	return nil
}

// UpdateExternalDataRateAuto configures the RX/TX PLL outputs at a phase
// computed from the board's chip version, optionally performing an
// FPGA-assisted phase search when no stream is running and the board
// qualifies for it.
func (s *Streamer) UpdateExternalDataRateAuto(channel int, txRate, rxRate float64) error {
	if channel != 0 && channel != 1 {
		return &ConfigError{Field: "channel", Value: channel}
	}

	rxPhase := fpga.DefaultPhase(fpga.RxPhaseCoeff1, fpga.RxPhaseCoeff2, s.board.ChipVersion, rxRate)
	txPhase := fpga.DefaultPhase(fpga.TxPhaseCoeff1, fpga.TxPhaseCoeff2, s.board.ChipVersion, txRate)

	streamRunning := s.rxRunning.Load() || s.txRunning.Load()
	phaseSearch := !streamRunning &&
		s.board.ChipVersion == fpga.ChipVersionPhaseSearch &&
		s.board.IsDualChipPCIe &&
		(rxRate >= phaseSearchMinClockHz || txRate >= phaseSearchMinClockHz)

	txIdx, rxIdx := pllIndices(channel)

	var err error
	if phaseSearch {
		err = s.runPhaseSearch(rxIdx, txIdx, rxRate, txRate, rxPhase, txPhase)
	} else {
		err = s.setClocksDirect(rxIdx, txIdx, rxRate, txRate, rxPhase, txPhase)
	}
	if err != nil {
		return err
	}
	storeRate(&s.expectedSampleRateBits, rxRate)
	return nil
}

func (s *Streamer) setClocksDirect(rxIdx, txIdx int, rxRate, txRate, rxPhase, txPhase float64) error {
	useDirect := s.board.HardwareRevision >= 3

	if rxRate < phaseSearchMinClockHz && useDirect {
		if err := s.pll.SetDirectClocking(rxIdx, rxRate, 90); err != nil {
			return &HardwareError{Op: "SetDirectClocking rx", Err: err}
		}
	} else if err := s.pll.SetPllFrequency([]PllClock{{Index: rxIdx, OutFrequency: 2 * rxRate, PhaseShiftDeg: rxPhase}}); err != nil {
		return &HardwareError{Op: "SetPllFrequency rx", Err: err}
	}

	if txRate < phaseSearchMinClockHz && useDirect {
		if err := s.pll.SetDirectClocking(txIdx, txRate, 90); err != nil {
			return &HardwareError{Op: "SetDirectClocking tx", Err: err}
		}
	} else if err := s.pll.SetPllFrequency([]PllClock{{Index: txIdx, OutFrequency: 2 * txRate, PhaseShiftDeg: txPhase}}); err != nil {
		return &HardwareError{Op: "SetPllFrequency tx", Err: err}
	}
	return nil
}

// runPhaseSearch backs up the RF SPI registers, loads the RX then TX test
// patterns, asks the PLL controller to find each direction's phase, and
// restores the backed-up registers on the way out, best-effort. The first
// failing step ends the search: later steps are skipped, the registers are
// restored, and that step's error is returned.
func (s *Streamer) runPhaseSearch(rxIdx, txIdx int, rxRate, txRate, rxPhase, txPhase float64) error {
	backup := make([]uint16, len(fpga.PhaseSearchBackupRegs))
	for i, addr := range fpga.PhaseSearchBackupRegs {
		v, err := s.regs.ReadRegister(addr)
		if err != nil {
			return &HardwareError{Op: "read phase search backup register", Err: err}
		}
		backup[i] = v
	}
	restore := func() {
		if err := s.regs.WriteRegisters(fpga.PhaseSearchBackupRegs, backup); err != nil {
			log.Printf("[DEBUG] runPhaseSearch: best-effort register restore failed: %v", err)
		}
		if err := s.regs.WriteRegister(fpga.RegTxTestPath, fpga.TxTestPathOff); err != nil {
			log.Printf("[DEBUG] runPhaseSearch: failed to disable tx test path: %v", err)
		}
	}

	if err := s.regs.WriteRegister(fpga.RegRFChannelEnable, fpga.RFChannelEnablePhaseSearch); err != nil {
		restore()
		return &HardwareError{Op: "disable rf channels", Err: err}
	}
	if err := s.regs.WriteRegisters(fpga.RXTestPatternRegs, fpga.RXTestPatternValues); err != nil {
		restore()
		return &HardwareError{Op: "load rx test pattern", Err: err}
	}

	if err := s.pll.SetPllFrequency([]PllClock{{Index: rxIdx, OutFrequency: 2 * rxRate, PhaseShiftDeg: rxPhase, FindPhase: true}}); err != nil {
		restore()
		return &HardwareError{Op: "find rx phase", Err: err}
	}

	if err := s.regs.WriteRegisters(fpga.TXTestPatternRegs, fpga.TXTestPatternValues); err != nil {
		restore()
		return &HardwareError{Op: "load tx test pattern", Err: err}
	}
	if err := s.regs.WriteRegister(fpga.RegTxTestPath, fpga.TxTestPathOn); err != nil {
		restore()
		return &HardwareError{Op: "enable tx test path", Err: err}
	}
	if err := s.pll.SetPllFrequency([]PllClock{{Index: txIdx, OutFrequency: 2 * txRate, PhaseShiftDeg: txPhase, FindPhase: true}}); err != nil {
		restore()
		return &HardwareError{Op: "find tx phase", Err: err}
	}

	restore()
	return nil
}

// ReadRawStreamData is a diagnostic path that reconfigures the board for a
// single bounded raw read on the given endpoint. It leaves streaming
// stopped (stream mode 0) on the way out; the prior stream mode is not
// restored.
func (s *Streamer) ReadRawStreamData(epIndex int, timeout time.Duration) (int, error) {
	if err := s.regs.WriteRegister(fpga.RegEndpointSelect, uint16(1)<<uint16(epIndex)); err != nil {
		return 0, &HardwareError{Op: "select endpoint", Err: err}
	}
	if err := s.regs.WriteRegister(fpga.RegStreamMode, 0); err != nil {
		return 0, &HardwareError{Op: "stop streaming", Err: err}
	}
	if s.useAsync {
		s.async.AbortReading()
	} else {
		s.sync.AbortReading(epIndex)
	}
	if err := s.regs.WriteRegister(fpga.RegStreamMode, fpga.RawReadStreamMode); err != nil {
		return 0, &HardwareError{Op: "set raw read mode", Err: err}
	}
	if err := s.regs.WriteRegister(fpga.RegChannelMask, 1); err != nil {
		return 0, &HardwareError{Op: "enable channel 0", Err: err}
	}

	buf := make([]byte, fpga.PacketSize)
	var n int
	var err error
	if s.useAsync {
		var h int
		if h, err = s.async.BeginDataReading(buf); err == nil {
			var ok bool
			if ok, err = s.async.WaitForReading(h, timeout); err == nil && ok {
				n, err = s.async.FinishDataReading(buf, h)
			}
		}
	} else {
		n, err = s.sync.ReceiveData(buf, epIndex, timeout)
	}

	if stopErr := s.regs.WriteRegister(fpga.RegStreamMode, 0); stopErr != nil {
		log.Printf("[DEBUG] ReadRawStreamData: failed to stop streaming: %v", stopErr)
	}
	if s.useAsync {
		s.async.AbortReading()
	} else {
		s.sync.AbortReading(epIndex)
	}

	if err != nil {
		return 0, &TransportError{Op: "raw read", Err: err}
	}
	return n, nil
}

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

// Package streamcore implements the bidirectional streaming core of a
// host-side SDR board driver: RX/TX packet loops over a byte-pipe
// transport, per-channel ring buffers, the FPGA wire codec, late-TX
// recovery, and PLL clock retuning.
package streamcore

import "github.com/limeiq/streamcore/internal/fpga"

// ComplexSample is one baseband I/Q sample. It is an alias for the
// internal wire-format type so callers never need to import internal/fpga.
type ComplexSample = fpga.IQ

// Direction identifies which way a StreamChannel moves samples.
type Direction int

const (
	DirectionRX Direction = iota
	DirectionTX
)

// LinkFormat selects the wire packing used on a channel's link.
type LinkFormat int

const (
	// LinkFormatI16 carries each sample as two int16 components, unpacked.
	LinkFormatI16 LinkFormat = iota
	// LinkFormatI12 packs each sample component into 12 bits.
	LinkFormatI12
)

func (f LinkFormat) packed() bool { return f == LinkFormatI12 }

// MetaFlag is a bit in a FIFO transfer's flag set.
type MetaFlag uint32

const (
	// FlagSyncTimestamp indicates the caller supplied a meaningful
	// timestamp; its absence on a TX write means the board should ignore
	// the packet's counter field.
	FlagSyncTimestamp MetaFlag = 1 << 0
	// FlagOverwriteOld requests that a full Ring FIFO drop its oldest
	// samples, one per incoming sample, rather than block the writer.
	FlagOverwriteOld MetaFlag = 1 << 1
	// FlagEndBurst marks the last frame of a bounded transmission.
	FlagEndBurst MetaFlag = 1 << 2
)

// Metadata accompanies one FIFO transfer.
type Metadata struct {
	Timestamp uint64
	Flags     MetaFlag
}

// StreamConfig describes one stream to be opened with Streamer.Setup. It
// is immutable for the life of the StreamChannel it produces.
type StreamConfig struct {
	Channel            int // 0 or 1
	Direction          Direction
	LinkFormat         LinkFormat
	FIFOSize           int     // capacity in samples
	PerformanceLatency float64 // 0.0-1.0, smaller favors lower latency
}

func (c StreamConfig) validate() error {
	if c.Channel != 0 && c.Channel != 1 {
		return &ConfigError{Field: "Channel", Value: c.Channel}
	}
	if c.LinkFormat != LinkFormatI16 && c.LinkFormat != LinkFormatI12 {
		return &ConfigError{Field: "LinkFormat", Value: c.LinkFormat}
	}
	if c.FIFOSize <= 0 {
		return &ConfigError{Field: "FIFOSize", Value: c.FIFOSize}
	}
	return nil
}

// BoardConfig holds the hardware identification and defaults loaded once
// from YAML at driver construction time.
type BoardConfig struct {
	ChipVersion      uint16  `yaml:"chipVersion"`
	HardwareRevision byte    `yaml:"hardwareRevision"`
	IsDualChipPCIe   bool    `yaml:"isDualChipPCIe"`
	DefaultFIFOSize  int     `yaml:"defaultFifoSize"`
	DefaultLatency   float64 `yaml:"defaultLatency"`
	PacketsPerBatch  int     `yaml:"packetsPerBatch"`
	AsyncBufferCount int     `yaml:"asyncBufferCount"`
}

// DefaultBoardConfig returns the board defaults used when no YAML
// document overrides them.
func DefaultBoardConfig() BoardConfig {
	return BoardConfig{
		ChipVersion:      fpga.ChipVersionPhaseSearch,
		HardwareRevision: 3,
		IsDualChipPCIe:   false,
		DefaultFIFOSize:  1 << 16,
		DefaultLatency:   0.5,
		PacketsPerBatch:  32,
		AsyncBufferCount: 16,
	}
}

// PllClock is one PLL output configuration, passed to SetPllFrequency.
type PllClock struct {
	Index         int
	OutFrequency  float64
	PhaseShiftDeg float64
	FindPhase     bool
	Bypass        bool
}

// ChannelCounters holds the per-channel loss accounting the RX/TX loops
// maintain.
type ChannelCounters struct {
	Underflow uint64
	Overflow  uint64
	PktLost   uint64
}

// StreamerStats is a snapshot of a Streamer's telemetry, suitable for a
// status line or a metrics collector.
type StreamerStats struct {
	RxRunning       bool
	TxRunning       bool
	RxLastTimestamp uint64
	TxLastLateTime  uint64
	RxDataRateBps   float64
	TxDataRateBps   float64
	RxCounters      [2]ChannelCounters
	TxCounters      [2]ChannelCounters
}

// RegisterBank is the narrow SPI/register surface the RX Loop, Late-TX
// Resetter, and Clock Retuner need. The transport implementation and the
// RF frontend it drives are outside this module's scope.
type RegisterBank interface {
	ReadRegister(addr uint16) (uint16, error)
	WriteRegister(addr uint16, value uint16) error
	WriteRegisters(addrs, values []uint16) error
	TransactSPI(chipSelect int, writes []uint32, reads []uint32) error
}

// PllController is the black-box PLL coefficient solver this module
// drives but does not implement.
type PllController interface {
	SetPllFrequency(clocks []PllClock) error
	SetDirectClocking(pllIndex int, outFrequency float64, phaseShiftDeg float64) error
}

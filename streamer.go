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
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/limeiq/streamcore/internal/fpga"
)

// Streamer is a board's streaming context: up to two RX and two TX
// StreamChannels, the loops that drive them, and the telemetry a caller
// polls via Stats. One Streamer exists per board.
type Streamer struct {
	SessionID uuid.UUID

	board BoardConfig
	regs  RegisterBank
	pll   PllController

	sync     SyncTransport
	async    AsyncTransport
	useAsync bool
	epRX     int
	epTX     int

	mu         sync.Mutex
	rxChannels [2]*StreamChannel
	txChannels [2]*StreamChannel

	terminateRx atomic.Bool
	terminateTx atomic.Bool
	rxRunning   atomic.Bool
	txRunning   atomic.Bool

	rxLastTimestamp atomic.Uint64
	txLastLateTime  atomic.Uint64
	rxDataRateBits  atomic.Uint64 // math.Float64bits(bytesPerSecond)
	txDataRateBits  atomic.Uint64

	bufferFailures         atomic.Uint64
	expectedSampleRateBits atomic.Uint64

	resetter *fpga.LateTxResetter

	eg             *errgroup.Group
	resetterCancel context.CancelFunc
}

// NewStreamer constructs a Streamer bound to a register bank, PLL
// controller, and either a synchronous or asynchronous Transport Adapter.
// Exactly one of sync/async must be non-nil.
func NewStreamer(board BoardConfig, regs RegisterBank, pll PllController, sync SyncTransport, async AsyncTransport, epRX, epTX int) (*Streamer, error) {
	if (sync == nil) == (async == nil) {
		return nil, &ConfigError{Field: "transport", Value: "exactly one of sync/async required"}
	}
	s := &Streamer{
		SessionID: uuid.New(),
		board:     board,
		regs:      regs,
		pll:       pll,
		sync:      sync,
		async:     async,
		useAsync:  async != nil,
		epRX:      epRX,
		epTX:      epTX,
	}
	s.resetter = fpga.NewLateTxResetter(regs)
	return s, nil
}

// Setup validates cfg, creates a Ring FIFO sized cfg.FIFOSize, wraps it in
// a StreamChannel, and registers it in the appropriate RX/TX slot.
func (s *Streamer) Setup(cfg StreamConfig) (*StreamChannel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := newStreamChannel(cfg)
	ch.Start()
	if cfg.Direction == DirectionRX {
		s.rxChannels[cfg.Channel] = ch
	} else {
		s.txChannels[cfg.Channel] = ch
	}
	log.Printf("[DEBUG] Setup: session=%s channel=%d direction=%v linkFormat=%v fifoSize=%d",
		s.SessionID, cfg.Channel, cfg.Direction, cfg.LinkFormat, cfg.FIFOSize)
	return ch, nil
}

// Destroy unregisters ch. If it was the last channel in its direction and
// that direction's loop is running, Destroy sets that loop's terminate
// flag; it does not wait for the loop to exit.
func (s *Streamer) Destroy(ch *StreamChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := ch.config.Direction
	slots := s.rxChannels[:]
	if dir == DirectionTX {
		slots = s.txChannels[:]
	}
	found := false
	for i, c := range slots {
		if c == ch {
			slots[i] = nil
			found = true
		}
	}
	if !found {
		return &ConfigError{Field: "channel", Value: "not registered"}
	}
	if slots[0] == nil && slots[1] == nil {
		if dir == DirectionRX && s.rxRunning.Load() {
			s.terminateRx.Store(true)
		}
		if dir == DirectionTX && s.txRunning.Load() {
			s.terminateTx.Store(true)
		}
	}
	return nil
}

func (s *Streamer) activeRXChannels() []*StreamChannel {
	return activeOf(s.rxChannels[:])
}

func (s *Streamer) activeTXChannels() []*StreamChannel {
	return activeOf(s.txChannels[:])
}

func activeOf(slots []*StreamChannel) []*StreamChannel {
	out := make([]*StreamChannel, 0, len(slots))
	for _, c := range slots {
		if c != nil && c.isActive() {
			out = append(out, c)
		}
	}
	return out
}

// StartStream spawns the RX loop, TX loop, and Late-TX Resetter for
// whichever directions have at least one active channel, supervised
// by an errgroup that propagates the first non-nil error to StopStream's
// caller.
func (s *Streamer) StartStream() error {
	s.mu.Lock()
	rx := len(s.activeRXChannels()) > 0
	tx := len(s.activeTXChannels()) > 0
	s.mu.Unlock()
	if !rx && !tx {
		return &ConfigError{Field: "channels", Value: "no channels registered"}
	}

	resetterCtx, cancel := context.WithCancel(context.Background())
	s.resetterCancel = cancel

	eg, egCtx := errgroup.WithContext(context.Background())
	s.eg = eg

	if rx {
		s.terminateRx.Store(false)
		s.rxRunning.Store(true)
		eg.Go(func() error {
			defer s.rxRunning.Store(false)
			return s.runRXLoop(egCtx)
		})
		eg.Go(func() error {
			return s.resetter.Run(resetterCtx)
		})
	} else {
		cancel()
	}
	if tx {
		s.terminateTx.Store(false)
		s.txRunning.Store(true)
		eg.Go(func() error {
			defer s.txRunning.Store(false)
			return s.runTXLoop(egCtx)
		})
	}
	return nil
}

// StopStream requests both loops terminate and blocks until they, and the
// resetter, have exited.
func (s *Streamer) StopStream() error {
	s.terminateRx.Store(true)
	s.terminateTx.Store(true)
	if s.eg == nil {
		return nil
	}
	err := s.eg.Wait()
	s.rxDataRateBits.Store(0)
	s.txDataRateBits.Store(0)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("streamcore: stream stopped with error: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the streamer's telemetry.
func (s *Streamer) Stats() StreamerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := StreamerStats{
		RxRunning:       s.rxRunning.Load(),
		TxRunning:       s.txRunning.Load(),
		RxLastTimestamp: s.rxLastTimestamp.Load(),
		TxLastLateTime:  s.txLastLateTime.Load(),
		RxDataRateBps:   math.Float64frombits(s.rxDataRateBits.Load()),
		TxDataRateBps:   math.Float64frombits(s.txDataRateBits.Load()),
	}
	for i, c := range s.rxChannels {
		if c != nil {
			stats.RxCounters[i] = c.Counters()
		}
	}
	for i, c := range s.txChannels {
		if c != nil {
			stats.TxCounters[i] = c.Counters()
		}
	}
	return stats
}

func storeRate(dst *atomic.Uint64, bytesPerSecond float64) {
	dst.Store(math.Float64bits(bytesPerSecond))
}

// ExpectedSampleRate returns the last RX rate passed to the Clock Retuner.
func (s *Streamer) ExpectedSampleRate() float64 {
	return math.Float64frombits(s.expectedSampleRateBits.Load())
}

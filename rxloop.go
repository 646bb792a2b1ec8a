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
	"log"
	"time"

	"github.com/limeiq/streamcore/internal/fpga"
)

// runRXLoop is the RX thread body: it pulls fixed-size batches from the
// transport, validates and demultiplexes packets, pushes samples into RX
// Ring FIFOs, and triggers the Late-TX Resetter on observing a TX-late
// flag. It requires the FPGA already commanded to stream via registers
// 0x0007/0x0008, done by the caller before StartStream.
func (s *Streamer) runRXLoop(ctx context.Context) error {
	defer func() {
		s.resetter.Signal()
		if s.resetterCancel != nil {
			s.resetterCancel()
		}
		s.rxLastTimestamp.Store(0)
	}()

	rxChans := s.activeRXChannels()
	if len(rxChans) == 0 {
		return nil
	}
	linkFormat := rxChans[0].config.LinkFormat
	packed := linkFormat.packed()
	chCount := len(rxChans)

	samplesPerPacket, err := fpga.SamplesInPacket(packed, chCount)
	if err != nil {
		return &AllocationError{What: "rx samples-per-packet", Err: err}
	}

	packetsPerBatch := s.board.PacketsPerBatch
	if packetsPerBatch <= 0 {
		packetsPerBatch = 32
	}
	bufSize := packetsPerBatch * fpga.PacketSize

	// Preallocated per-loop scratch slab for codec output: sized once for
	// chCount channels, reused every packet instead of allocated per packet.
	scratch := make([][]fpga.IQ, chCount)
	for i := range scratch {
		scratch[i] = make([]fpga.IQ, samplesPerPacket)
	}

	resetFlagsDelay := 128
	asyncBuffers := s.board.AsyncBufferCount
	if asyncBuffers <= 0 {
		asyncBuffers = 16
	}

	var (
		havePrev bool
		prevTs   uint64
	)

	var intervalBytes int64
	lastPublish := time.Now()

	if s.useAsync {
		return s.runRXLoopAsync(ctx, rxChans, bufSize, packetsPerBatch, asyncBuffers, packed, chCount, samplesPerPacket, scratch, &resetFlagsDelay, &havePrev, &prevTs, &intervalBytes, &lastPublish)
	}
	return s.runRXLoopSync(ctx, rxChans, bufSize, packetsPerBatch, packed, chCount, samplesPerPacket, scratch, &resetFlagsDelay, &havePrev, &prevTs, &intervalBytes, &lastPublish)
}

func (s *Streamer) runRXLoopSync(
	ctx context.Context, rxChans []*StreamChannel, bufSize, packetsPerBatch int, packed bool, chCount, samplesPerPacket int,
	scratch [][]fpga.IQ, resetFlagsDelay *int, havePrev *bool, prevTs *uint64, intervalBytes *int64, lastPublish *time.Time,
) error {
	buf := make([]byte, bufSize)
	for !s.terminateRx.Load() {
		n, err := s.sync.ReceiveData(buf, s.epRX, time.Second)
		if err != nil {
			log.Printf("[DEBUG] runRXLoop: receive error: %v", err)
			continue
		}
		if n < bufSize {
			for _, ch := range rxChans {
				ch.underflow.Add(1)
			}
		}
		s.processRXBatch(buf[:n], rxChans, packed, chCount, samplesPerPacket, scratch, resetFlagsDelay, havePrev, prevTs, packetsPerBatch*2)
		*intervalBytes += int64(n)
		s.maybePublishRXRate(intervalBytes, lastPublish)
	}
	return nil
}

func (s *Streamer) runRXLoopAsync(
	ctx context.Context, rxChans []*StreamChannel, bufSize, packetsPerBatch, bufferCount int, packed bool, chCount, samplesPerPacket int,
	scratch [][]fpga.IQ, resetFlagsDelay *int, havePrev *bool, prevTs *uint64, intervalBytes *int64, lastPublish *time.Time,
) error {
	buffers := make([][]byte, bufferCount)
	handles := make([]int, bufferCount)
	for i := range buffers {
		buffers[i] = make([]byte, bufSize)
		h, err := s.async.BeginDataReading(buffers[i])
		if err != nil {
			return &AllocationError{What: "rx async buffer", Err: err}
		}
		handles[i] = h
	}
	defer s.async.AbortReading()

	bi := 0
	for !s.terminateRx.Load() {
		ok, err := s.async.WaitForReading(handles[bi], time.Second)
		if err != nil {
			log.Printf("[DEBUG] runRXLoop: wait error: %v", err)
			continue
		}
		if !ok {
			continue
		}
		n, err := s.async.FinishDataReading(buffers[bi], handles[bi])
		if err != nil {
			log.Printf("[DEBUG] runRXLoop: finish error: %v", err)
		}
		if n < bufSize {
			s.bufferFailures.Add(1)
		}
		s.processRXBatch(buffers[bi][:n], rxChans, packed, chCount, samplesPerPacket, scratch, resetFlagsDelay, havePrev, prevTs, packetsPerBatch*bufferCount)
		*intervalBytes += int64(n)
		s.maybePublishRXRate(intervalBytes, lastPublish)

		h, err := s.async.BeginDataReading(buffers[bi])
		if err != nil {
			return &AllocationError{What: "rx async resubmit", Err: err}
		}
		handles[bi] = h
		bi = (bi + 1) % bufferCount
	}
	return nil
}

func (s *Streamer) processRXBatch(
	buf []byte, rxChans []*StreamChannel, packed bool, chCount, samplesPerPacket int, scratch [][]fpga.IQ,
	resetFlagsDelay *int, havePrev *bool, prevTs *uint64, resetFlagsReload int,
) {
	numPackets := len(buf) / fpga.PacketSize
	if numPackets == 0 {
		return
	}
	batch, err := fpga.NewBatchView(buf[:numPackets*fpga.PacketSize])
	if err != nil {
		log.Printf("[DEBUG] runRXLoop: %v", err)
		return
	}

	txChans := s.activeTXChannels()
	samplesPerPacket64 := uint64(samplesPerPacket)
	txLateReported := false

	for i := 0; i < numPackets; i++ {
		pkt := batch.Packet(i)
		counter := pkt.Counter()

		if pkt.TxLate() && !txLateReported {
			txLateReported = true
			if *resetFlagsDelay > 0 {
				*resetFlagsDelay--
			} else {
				s.resetter.Signal()
				*resetFlagsDelay = resetFlagsReload
				s.txLastLateTime.Store(counter)
				for _, ch := range txChans {
					ch.pktLost.Add(1)
				}
			}
		}

		if *havePrev {
			delta := counter - *prevTs
			if delta != samplesPerPacket64 && delta != 0 {
				loss := delta/samplesPerPacket64 - 1
				for _, ch := range rxChans {
					ch.pktLost.Add(loss)
				}
			}
		}
		*prevTs = counter
		*havePrev = true
		s.rxLastTimestamp.Store(counter)

		n, err := fpga.PayloadToSamples(pkt.Payload(), packed, scratch[:chCount])
		if err != nil {
			log.Printf("[DEBUG] runRXLoop: codec error: %v", err)
			continue
		}

		meta := Metadata{Timestamp: counter, Flags: FlagOverwriteOld | FlagSyncTimestamp}
		for ci, ch := range rxChans {
			if !ch.isActive() {
				continue
			}
			pushed, _ := ch.Write(scratch[ci][:n], meta, 100*time.Millisecond)
			if pushed < n {
				ch.overflow.Add(uint64(n - pushed))
			}
		}
	}
}

func (s *Streamer) maybePublishRXRate(intervalBytes *int64, lastPublish *time.Time) {
	if elapsed := time.Since(*lastPublish); elapsed >= time.Second {
		storeRate(&s.rxDataRateBits, float64(*intervalBytes)/elapsed.Seconds())
		*intervalBytes = 0
		*lastPublish = time.Now()
	}
}

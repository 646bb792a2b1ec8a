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

const txPopTimeout = 200 * time.Millisecond

// runTXLoop is the TX thread body: it pops samples from TX Ring FIFOs,
// builds packet batches, and submits them to the transport.
func (s *Streamer) runTXLoop(ctx context.Context) error {
	defer func() {
		s.txLastLateTime.Store(0)
	}()

	txChans := s.activeTXChannels()
	if len(txChans) == 0 {
		return nil
	}
	linkFormat := txChans[0].config.LinkFormat
	packed := linkFormat.packed()
	chCount := len(txChans)

	maxSamplesBatch, err := fpga.SamplesInPacket(packed, chCount)
	if err != nil {
		return &AllocationError{What: "tx samples-per-packet", Err: err}
	}

	packetsPerBatch := s.board.PacketsPerBatch
	if packetsPerBatch <= 0 {
		packetsPerBatch = 32
	}
	bufSize := packetsPerBatch * fpga.PacketSize

	samples := make([][]ComplexSample, chCount)
	for i := range samples {
		samples[i] = make([]ComplexSample, maxSamplesBatch)
	}

	var intervalBytes int64
	lastPublish := time.Now()

	if s.useAsync {
		return s.runTXLoopAsync(txChans, bufSize, packetsPerBatch, packed, chCount, maxSamplesBatch, samples, &intervalBytes, &lastPublish)
	}
	return s.runTXLoopSync(txChans, bufSize, packetsPerBatch, packed, chCount, maxSamplesBatch, samples, &intervalBytes, &lastPublish)
}

// fillBatch fills buf with packetsPerBatch packets drawn from txChans. It
// returns false if the synchronous starvation policy requires the loop to
// terminate.
func (s *Streamer) fillBatch(
	buf []byte, txChans []*StreamChannel, packetsPerBatch int, packed bool, chCount, maxSamplesBatch int, samples [][]ComplexSample,
) bool {
	for i := 0; i < packetsPerBatch; i++ {
		pkt, err := fpga.NewPacketView(buf[i*fpga.PacketSize : (i+1)*fpga.PacketSize])
		if err != nil {
			log.Printf("[DEBUG] runTXLoop: %v", err)
			continue
		}
		pkt.ResetReserved()

		var meta Metadata
		for ci, ch := range txChans {
			if !ch.isActive() {
				for j := 0; j < maxSamplesBatch; j++ {
					samples[ci][j] = ComplexSample{}
				}
				continue
			}
			n, _ := ch.Read(samples[ci][:maxSamplesBatch], &meta, txPopTimeout)
			if n < maxSamplesBatch {
				if !s.useAsync {
					ch.underflow.Add(1)
					s.terminateTx.Store(true)
					return false
				}
				log.Printf("[DEBUG] runTXLoop: short read on channel %d: %d/%d", ci, n, maxSamplesBatch)
				for j := n; j < maxSamplesBatch; j++ {
					samples[ci][j] = ComplexSample{}
				}
			}
		}

		pkt.SetCounter(meta.Timestamp)
		if meta.Flags&FlagSyncTimestamp == 0 {
			pkt.SetIgnoreTimestamp(true)
		}

		srcs := make([][]fpga.IQ, chCount)
		for ci := range samples {
			srcs[ci] = samples[ci][:maxSamplesBatch]
		}
		if _, err := fpga.SamplesToPayload(srcs, packed, pkt.Payload()); err != nil {
			log.Printf("[DEBUG] runTXLoop: codec error: %v", err)
		}
	}
	return true
}

func (s *Streamer) runTXLoopSync(
	txChans []*StreamChannel, bufSize, packetsPerBatch int, packed bool, chCount, maxSamplesBatch int, samples [][]ComplexSample,
	intervalBytes *int64, lastPublish *time.Time,
) error {
	buf := make([]byte, bufSize)
	for !s.terminateTx.Load() {
		if !s.fillBatch(buf, txChans, packetsPerBatch, packed, chCount, maxSamplesBatch, samples) {
			break
		}
		n, err := s.sync.SendData(buf, s.epTX, time.Second)
		if err != nil {
			log.Printf("[DEBUG] runTXLoop: send error: %v", err)
			continue
		}
		*intervalBytes += int64(n)
		s.maybePublishTXRate(intervalBytes, lastPublish)
	}
	return nil
}

func (s *Streamer) runTXLoopAsync(
	txChans []*StreamChannel, bufSize, packetsPerBatch int, packed bool, chCount, maxSamplesBatch int, samples [][]ComplexSample,
	intervalBytes *int64, lastPublish *time.Time,
) error {
	bufferCount := s.board.AsyncBufferCount
	if bufferCount <= 0 {
		bufferCount = 16
	}
	buffers := make([][]byte, bufferCount)
	handles := make([]int, bufferCount)
	used := make([]bool, bufferCount)
	for i := range buffers {
		buffers[i] = make([]byte, bufSize)
	}
	defer s.async.AbortSending()

	bi := 0
	for !s.terminateTx.Load() {
		if used[bi] {
			ok, err := s.async.WaitForSending(handles[bi], time.Second)
			if err != nil {
				log.Printf("[DEBUG] runTXLoop: wait error: %v", err)
			}
			if ok {
				n, err := s.async.FinishDataSending(buffers[bi], handles[bi])
				if err != nil {
					log.Printf("[DEBUG] runTXLoop: finish error: %v", err)
				}
				*intervalBytes += int64(n)
				used[bi] = false
			}
		}

		s.fillBatch(buffers[bi], txChans, packetsPerBatch, packed, chCount, maxSamplesBatch, samples)
		h, err := s.async.BeginDataSending(buffers[bi])
		if err != nil {
			log.Printf("[DEBUG] runTXLoop: begin send error: %v", err)
			continue
		}
		handles[bi] = h
		used[bi] = true
		bi = (bi + 1) % bufferCount

		s.maybePublishTXRate(intervalBytes, lastPublish)
	}
	return nil
}

func (s *Streamer) maybePublishTXRate(intervalBytes *int64, lastPublish *time.Time) {
	if elapsed := time.Since(*lastPublish); elapsed >= time.Second {
		storeRate(&s.txDataRateBits, float64(*intervalBytes)/elapsed.Seconds())
		*intervalBytes = 0
		*lastPublish = time.Now()
	}
}

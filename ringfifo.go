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

import "time"

type fifoEntry struct {
	sample    ComplexSample
	timestamp uint64
}

// RingFIFO is a bounded, single-producer/single-consumer, timestamped
// sample queue. A capacity-N channel backs it directly rather than a
// mutex-guarded ring; the one-shot timer per call (not per sample) bounds
// Read/Write without polling.
type RingFIFO struct {
	ch chan fifoEntry
}

// NewRingFIFO returns a RingFIFO holding up to capacity samples.
func NewRingFIFO(capacity int) *RingFIFO {
	return &RingFIFO{ch: make(chan fifoEntry, capacity)}
}

// Write pushes up to len(src) samples, associating meta.Timestamp with the
// first one (later samples in the same call get consecutive timestamps).
// With FlagOverwriteOld set it never blocks, evicting the oldest sample
// when full. Otherwise it blocks until space is available or timeout
// elapses (timeout <= 0 blocks indefinitely); a timeout yields a short
// write, not an error.
func (r *RingFIFO) Write(src []ComplexSample, meta Metadata, timeout time.Duration) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	overwrite := meta.Flags&FlagOverwriteOld != 0

	var timerC <-chan time.Time
	if !overwrite && timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}

	pushed := 0
	for i, s := range src {
		entry := fifoEntry{sample: s, timestamp: meta.Timestamp + uint64(i)}
		if overwrite {
			select {
			case r.ch <- entry:
			default:
				select {
				case <-r.ch:
				default:
				}
				select {
				case r.ch <- entry:
				default:
				}
			}
			pushed++
			continue
		}
		select {
		case r.ch <- entry:
			pushed++
		case <-timerC:
			return pushed, nil
		}
	}
	return pushed, nil
}

// Read pops up to len(dst) samples, setting meta.Timestamp to the
// timestamp of the first one. It blocks until at least one sample is
// available or timeout elapses (timeout <= 0 blocks indefinitely), then
// drains whatever else is already queued without blocking further. A
// short read on timeout is a starvation signal to the caller, not an
// error.
func (r *RingFIFO) Read(dst []ComplexSample, meta *Metadata, timeout time.Duration) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case e := <-r.ch:
		dst[0] = e.sample
		meta.Timestamp = e.timestamp
		meta.Flags = 0
	case <-timerC:
		return 0, nil
	}

	popped := 1
	for popped < len(dst) {
		select {
		case e := <-r.ch:
			dst[popped] = e.sample
			popped++
		default:
			return popped, nil
		}
	}
	return popped, nil
}

// Clear drops all pending samples.
func (r *RingFIFO) Clear() {
	for {
		select {
		case <-r.ch:
		default:
			return
		}
	}
}

// Len returns the number of samples currently queued.
func (r *RingFIFO) Len() int { return len(r.ch) }

// Cap returns the FIFO's fixed capacity in samples.
func (r *RingFIFO) Cap() int { return cap(r.ch) }

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
	"sync/atomic"
	"time"
)

// StreamChannel is the per-channel facade over a RingFIFO. The RX/TX loops
// and the channel's owning caller share it: the loop pushes/pops samples
// and increments counters, the caller reads/writes at its own pace.
type StreamChannel struct {
	config StreamConfig
	fifo   *RingFIFO

	underflow atomic.Uint64
	overflow  atomic.Uint64
	pktLost   atomic.Uint64

	active atomic.Bool
}

func newStreamChannel(cfg StreamConfig) *StreamChannel {
	return &StreamChannel{
		config: cfg,
		fifo:   NewRingFIFO(cfg.FIFOSize),
	}
}

// Config returns the configuration this channel was created with.
func (c *StreamChannel) Config() StreamConfig { return c.config }

// Write pushes samples into the channel's Ring FIFO. See RingFIFO.Write.
func (c *StreamChannel) Write(src []ComplexSample, meta Metadata, timeout time.Duration) (int, error) {
	return c.fifo.Write(src, meta, timeout)
}

// Read pops samples from the channel's Ring FIFO. See RingFIFO.Read.
func (c *StreamChannel) Read(dst []ComplexSample, meta *Metadata, timeout time.Duration) (int, error) {
	return c.fifo.Read(dst, meta, timeout)
}

// Counters returns a snapshot of this channel's loss accounting.
func (c *StreamChannel) Counters() ChannelCounters {
	return ChannelCounters{
		Underflow: c.underflow.Load(),
		Overflow:  c.overflow.Load(),
		PktLost:   c.pktLost.Load(),
	}
}

// Start marks the channel active. Setup calls this automatically; a caller
// only needs it to resume a channel previously paused with Stop.
func (c *StreamChannel) Start() { c.active.Store(true) }

// Stop marks the channel inactive without destroying it: the RX/TX loops
// stop including it in their active set on their next batch, but its Ring
// FIFO and counters survive until Destroy.
func (c *StreamChannel) Stop() { c.active.Store(false) }

func (c *StreamChannel) isActive() bool { return c.active.Load() }

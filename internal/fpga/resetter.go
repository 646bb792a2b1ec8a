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
)

// LateTxResetter clears the FPGA's latched TX-late condition by pulsing
// register 0x0009 on a dedicated goroutine. Signal coalesces: any number of
// signals delivered before the pulse runs result in exactly one pulse, so a
// burst of TX-late packets during one stall produces one reset, not one per
// packet.
type LateTxResetter struct {
	reg RegisterRW

	mu      sync.Mutex
	cond    *sync.Cond
	pending bool
	stopped bool
}

// NewLateTxResetter returns a resetter that pulses reg's register 0x0009
// in response to Signal, once Run is started. Signals that arrive before a
// pending pulse runs share that one pulse.
func NewLateTxResetter(reg RegisterRW) *LateTxResetter {
	r := &LateTxResetter{reg: reg}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Signal requests a reset pulse. It never blocks.
func (r *LateTxResetter) Signal() {
	r.mu.Lock()
	r.pending = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Stop unblocks Run and makes it return. Safe to call more than once.
func (r *LateTxResetter) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Run blocks, pulsing the reset register once per coalesced Signal, until
// ctx is cancelled or Stop is called. The RX loop is responsible for
// calling Stop (or cancelling ctx) after its own loop ends.
func (r *LateTxResetter) Run(ctx context.Context) error {
	stopOnCancel := make(chan struct{})
	defer close(stopOnCancel)
	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-stopOnCancel:
		}
	}()

	for {
		r.mu.Lock()
		for !r.pending && !r.stopped {
			r.cond.Wait()
		}
		if r.stopped {
			r.mu.Unlock()
			return ctx.Err()
		}
		r.pending = false
		r.mu.Unlock()

		if err := r.pulse(); err != nil {
			return err
		}
	}
}

func (r *LateTxResetter) pulse() error {
	v, err := r.reg.ReadRegister(RegTxLateReset)
	if err != nil {
		return err
	}
	set, clear := TxLateResetPulse(v)
	if err := r.reg.WriteRegister(RegTxLateReset, set); err != nil {
		return err
	}
	return r.reg.WriteRegister(RegTxLateReset, clear)
}

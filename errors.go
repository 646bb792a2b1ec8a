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

import "fmt"

// ConfigError reports an invalid StreamConfig or BoardConfig value. It
// never affects an already-running stream.
type ConfigError struct {
	Field string
	Value interface{}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("streamcore: invalid config %s=%v", e.Field, e.Value)
}

// TransportError wraps a short read/write or timeout from a Transport
// Adapter. It is counted on the relevant channel or Streamer and never
// aborts a loop on its own.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("streamcore: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AllocationError reports a buffer allocation failure at loop startup. It
// aborts the loop that raised it; the opposite direction is unaffected.
type AllocationError struct {
	What string
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("streamcore: failed to allocate %s: %v", e.What, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// ProtocolError reports a packet counter discontinuity. It is counted as
// loss; the loop that observed it continues running.
type ProtocolError struct {
	Expected, Got uint64
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("streamcore: packet counter jump: expected %d, got %d", e.Expected, e.Got)
}

// HardwareError wraps a non-zero status from an SPI transaction or PLL
// call during a clock retune. It is propagated to the Retuner's caller;
// register restoration on the error path is best-effort.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("streamcore: hardware %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

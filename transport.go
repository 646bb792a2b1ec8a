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

// SyncTransport is the byte-pipe surface for transports that service one
// read or write call at a time: a Xillybus-style character device pipe
// pair, or a serial-style device node.
type SyncTransport interface {
	ReceiveData(buf []byte, ep int, timeout time.Duration) (int, error)
	SendData(buf []byte, ep int, timeout time.Duration) (int, error)
	AbortReading(ep int) error
	AbortSending(ep int) error
}

// AsyncTransport is the byte-pipe surface for transports that require
// pipelined submissions: a buffer is begun, waited on, then finished,
// potentially out of order with other in-flight buffers.
type AsyncTransport interface {
	BeginDataReading(buf []byte) (handle int, err error)
	WaitForReading(handle int, timeout time.Duration) (bool, error)
	FinishDataReading(buf []byte, handle int) (int, error)

	BeginDataSending(buf []byte) (handle int, err error)
	WaitForSending(handle int, timeout time.Duration) (bool, error)
	FinishDataSending(buf []byte, handle int) (int, error)

	AbortReading() error
	AbortSending() error
}

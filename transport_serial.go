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
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialTransport is a synchronous Transport Adapter for boards that
// expose their control-and-data pipes as serial-style device nodes, one
// port per endpoint.
type SerialTransport struct {
	ports []serial.Port
}

// OpenSerialTransport opens portNames[ep] at the given baud rate for each
// endpoint index.
func OpenSerialTransport(portNames []string, baud int) (*SerialTransport, error) {
	mode := &serial.Mode{BaudRate: baud}
	t := &SerialTransport{ports: make([]serial.Port, len(portNames))}
	for i, name := range portNames {
		p, err := serial.Open(name, mode)
		if err != nil {
			t.Close()
			return nil, &TransportError{Op: "open " + name, Err: err}
		}
		t.ports[i] = p
	}
	return t, nil
}

// Close closes every opened port.
func (t *SerialTransport) Close() {
	for _, p := range t.ports {
		if p != nil {
			p.Close()
		}
	}
}

// ReceiveData reads up to len(buf) bytes from endpoint ep's port, up to
// timeout.
func (t *SerialTransport) ReceiveData(buf []byte, ep int, timeout time.Duration) (int, error) {
	if ep < 0 || ep >= len(t.ports) {
		return 0, fmt.Errorf("streamcore: no read endpoint %d", ep)
	}
	p := t.ports[ep]
	if err := p.SetReadTimeout(timeout); err != nil {
		return 0, &TransportError{Op: "set read timeout", Err: err}
	}
	n, err := p.Read(buf)
	if err != nil {
		return 0, &TransportError{Op: "read", Err: err}
	}
	return n, nil
}

// SendData writes up to len(buf) bytes to endpoint ep's port. timeout is
// accepted for interface symmetry; the underlying serial write is not
// itself bounded by it.
func (t *SerialTransport) SendData(buf []byte, ep int, timeout time.Duration) (int, error) {
	if ep < 0 || ep >= len(t.ports) {
		return 0, fmt.Errorf("streamcore: no write endpoint %d", ep)
	}
	n, err := t.ports[ep].Write(buf)
	if err != nil {
		return 0, &TransportError{Op: "write", Err: err}
	}
	return n, nil
}

// AbortReading cancels a pending read on endpoint ep's port by forcing its
// read timeout to expire immediately.
func (t *SerialTransport) AbortReading(ep int) error {
	if ep < 0 || ep >= len(t.ports) {
		return nil
	}
	return t.ports[ep].SetReadTimeout(time.Millisecond)
}

// AbortSending is a no-op: go.bug.st/serial writes are not pipelined.
func (t *SerialTransport) AbortSending(ep int) error { return nil }

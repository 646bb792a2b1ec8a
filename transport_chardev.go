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

//go:build linux

package streamcore

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// CharDevTransport is a synchronous Transport Adapter for boards that
// surface their data pipes as a Xillybus-style pair of character devices,
// one read node and one write node per endpoint.
type CharDevTransport struct {
	readFDs  []int
	writeFDs []int
}

// OpenCharDevTransport opens readPaths[ep]/writePaths[ep] for each
// endpoint index in blocking mode; the caller supplies per-call timeouts
// to ReceiveData/SendData via poll.
func OpenCharDevTransport(readPaths, writePaths []string) (*CharDevTransport, error) {
	t := &CharDevTransport{
		readFDs:  make([]int, len(readPaths)),
		writeFDs: make([]int, len(writePaths)),
	}
	for i, p := range readPaths {
		fd, err := unix.Open(p, unix.O_RDONLY, 0)
		if err != nil {
			t.Close()
			return nil, &TransportError{Op: "open " + p, Err: err}
		}
		t.readFDs[i] = fd
	}
	for i, p := range writePaths {
		fd, err := unix.Open(p, unix.O_WRONLY, 0)
		if err != nil {
			t.Close()
			return nil, &TransportError{Op: "open " + p, Err: err}
		}
		t.writeFDs[i] = fd
	}
	return t, nil
}

// Close closes every opened device node.
func (t *CharDevTransport) Close() {
	for _, fd := range t.readFDs {
		if fd != 0 {
			unix.Close(fd)
		}
	}
	for _, fd := range t.writeFDs {
		if fd != 0 {
			unix.Close(fd)
		}
	}
}

func pollOne(fd int, events int16, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		return false, err
	}
	return n > 0 && fds[0].Revents&events != 0, nil
}

// ReceiveData reads up to len(buf) bytes from endpoint ep, waiting up to
// timeout for the device to become readable.
func (t *CharDevTransport) ReceiveData(buf []byte, ep int, timeout time.Duration) (int, error) {
	if ep < 0 || ep >= len(t.readFDs) {
		return 0, fmt.Errorf("streamcore: no read endpoint %d", ep)
	}
	ready, err := pollOne(t.readFDs[ep], unix.POLLIN, timeout)
	if err != nil {
		return 0, &TransportError{Op: "poll read", Err: err}
	}
	if !ready {
		return 0, nil
	}
	n, err := unix.Read(t.readFDs[ep], buf)
	if err != nil {
		return 0, &TransportError{Op: "read", Err: err}
	}
	return n, nil
}

// SendData writes up to len(buf) bytes to endpoint ep, waiting up to
// timeout for the device to become writable.
func (t *CharDevTransport) SendData(buf []byte, ep int, timeout time.Duration) (int, error) {
	if ep < 0 || ep >= len(t.writeFDs) {
		return 0, fmt.Errorf("streamcore: no write endpoint %d", ep)
	}
	ready, err := pollOne(t.writeFDs[ep], unix.POLLOUT, timeout)
	if err != nil {
		return 0, &TransportError{Op: "poll write", Err: err}
	}
	if !ready {
		return 0, nil
	}
	n, err := unix.Write(t.writeFDs[ep], buf)
	if err != nil {
		return 0, &TransportError{Op: "write", Err: err}
	}
	return n, nil
}

// AbortReading is a no-op: a blocking read on a Xillybus node unblocks on
// its own when the device is closed or reset.
func (t *CharDevTransport) AbortReading(ep int) error { return nil }

// AbortSending is a no-op; see AbortReading.
func (t *CharDevTransport) AbortSending(ep int) error { return nil }

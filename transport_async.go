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
	"time"

	"golang.org/x/sync/semaphore"
)

// BoundedAsyncTransport decorates an AsyncTransport with a fixed-depth
// in-flight submission limit, so BeginDataReading/BeginDataSending block
// rather than overrun the caller's buffer pool once every slot is
// outstanding.
type BoundedAsyncTransport struct {
	inner   AsyncTransport
	readSem *semaphore.Weighted
	sendSem *semaphore.Weighted
}

// NewBoundedAsyncTransport wraps inner with independent read and send
// semaphores of the given depth (the buffer count, e.g. 16).
func NewBoundedAsyncTransport(inner AsyncTransport, depth int64) *BoundedAsyncTransport {
	return &BoundedAsyncTransport{
		inner:   inner,
		readSem: semaphore.NewWeighted(depth),
		sendSem: semaphore.NewWeighted(depth),
	}
}

func (b *BoundedAsyncTransport) BeginDataReading(buf []byte) (int, error) {
	if err := b.readSem.Acquire(context.Background(), 1); err != nil {
		return 0, err
	}
	h, err := b.inner.BeginDataReading(buf)
	if err != nil {
		b.readSem.Release(1)
		return 0, err
	}
	return h, nil
}

func (b *BoundedAsyncTransport) WaitForReading(handle int, timeout time.Duration) (bool, error) {
	return b.inner.WaitForReading(handle, timeout)
}

func (b *BoundedAsyncTransport) FinishDataReading(buf []byte, handle int) (int, error) {
	n, err := b.inner.FinishDataReading(buf, handle)
	b.readSem.Release(1)
	return n, err
}

func (b *BoundedAsyncTransport) BeginDataSending(buf []byte) (int, error) {
	if err := b.sendSem.Acquire(context.Background(), 1); err != nil {
		return 0, err
	}
	h, err := b.inner.BeginDataSending(buf)
	if err != nil {
		b.sendSem.Release(1)
		return 0, err
	}
	return h, nil
}

func (b *BoundedAsyncTransport) WaitForSending(handle int, timeout time.Duration) (bool, error) {
	return b.inner.WaitForSending(handle, timeout)
}

func (b *BoundedAsyncTransport) FinishDataSending(buf []byte, handle int) (int, error) {
	n, err := b.inner.FinishDataSending(buf, handle)
	b.sendSem.Release(1)
	return n, err
}

func (b *BoundedAsyncTransport) AbortReading() error { return b.inner.AbortReading() }
func (b *BoundedAsyncTransport) AbortSending() error { return b.inner.AbortSending() }

// SPDX-License-Identifier: MIT
package audio

import (
	"sync/atomic"
)

const (
	slotMask  = 0x3
	freshFlag = 0x4
)

// TripleBuffer hands the latest published Frame from one writer to one
// reader without locks. The writer owns the back slot, the reader owns the
// front slot and the middle slot is exchanged through a single atomic word
// holding its index plus a fresh flag. A slow reader skips intermediate
// frames; only the newest one is ever visible.
type TripleBuffer struct {
	slots [3]Frame
	state atomic.Uint32 // middle slot index | freshFlag

	back  int    // writer owned
	front int    // reader owned
	seq   uint64 // writer owned

	published atomic.Uint64
	consumed  atomic.Uint64
}

// NewTripleBuffer pre-allocates three slots of capacity samples each, so
// publishing blocks up to that size never allocates.
func NewTripleBuffer(capacity int) *TripleBuffer {
	t := &TripleBuffer{back: 0, front: 2}
	for i := range t.slots {
		t.slots[i].Samples = make([]float32, 0, capacity)
	}
	t.state.Store(1)
	return t
}

// Publish copies f into the write slot and makes it the newest readable
// frame. It always succeeds immediately, whether or not the previous frame
// was ever read. Only one goroutine may publish.
func (t *TripleBuffer) Publish(f Frame) {
	slot := &t.slots[t.back]
	slot.Samples = append(slot.Samples[:0], f.Samples...)
	slot.Channels = f.Channels
	slot.SampleRate = f.SampleRate
	slot.Captured = f.Captured
	t.seq++
	slot.Seq = t.seq

	prev := t.state.Swap(uint32(t.back) | freshFlag)
	t.back = int(prev & slotMask)
	t.published.Add(1)
}

// ConsumeLatest returns the newest frame published since the last
// successful consume, or false when nothing new arrived. The returned
// Samples alias reader-owned storage and stay valid until the next
// ConsumeLatest call. Only one goroutine may consume at a time.
func (t *TripleBuffer) ConsumeLatest() (Frame, bool) {
	if t.state.Load()&freshFlag == 0 {
		return Frame{}, false
	}
	prev := t.state.Swap(uint32(t.front))
	t.front = int(prev & slotMask)
	t.consumed.Add(1)
	return t.slots[t.front], true
}

// Published returns the number of frames published so far.
func (t *TripleBuffer) Published() uint64 {
	return t.published.Load()
}

// Consumed returns the number of frames successfully consumed so far.
func (t *TripleBuffer) Consumed() uint64 {
	return t.consumed.Load()
}

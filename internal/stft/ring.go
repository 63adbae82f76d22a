// SPDX-License-Identifier: MIT
package stft

// RingBuffer is a fixed-capacity circular buffer of samples with
// independent read and write cursors. It backs both sides of the STFT
// engine: streaming writes on the analysis side and overlap-accumulating
// writes on the synthesis side.
//
// The storage is mirrored: every sample is written twice, once at its
// position and once capacity slots later. A windowed read of up to
// capacity samples is therefore always one contiguous copy, with no
// wraparound arithmetic inside the loop.
//
// RingBuffer is an internal leaf. It performs no bounds or capacity
// checking; the owning Processor sizes it so that no read exceeds
// capacity and no single write laps the read cursor.
type RingBuffer struct {
	data     []float64
	size     int
	writePos int
	readPos  int
}

// NewRingBuffer returns a ring holding size samples, zero-filled.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		data: make([]float64, size*2),
		size: size,
	}
}

// Write appends samples at the write cursor and advances it.
func (r *RingBuffer) Write(samples []float64) {
	for _, s := range samples {
		r.data[r.writePos] = s
		r.data[r.writePos+r.size] = s
		r.writePos++
		if r.writePos == r.size {
			r.writePos = 0
		}
	}
}

// Read copies len(out) samples starting at the read cursor plus offset
// into out. The read cursor does not move; consumption is a separate
// Advance call.
func (r *RingBuffer) Read(out []float64, offset int) {
	start := (r.readPos + offset) % r.size
	copy(out, r.data[start:start+len(out)])
}

// ReadAndClear copies len(out) samples from the read cursor into out and
// zeroes the source slots. Used on the output side: once a sample has been
// emitted it must never be re-emitted or accumulated into again.
func (r *RingBuffer) ReadAndClear(out []float64) {
	pos := r.readPos
	for i := range out {
		out[i] = r.data[pos]
		r.data[pos] = 0
		r.data[pos+r.size] = 0
		pos++
		if pos == r.size {
			pos = 0
		}
	}
}

// Advance moves the read cursor forward by n samples.
func (r *RingBuffer) Advance(n int) {
	r.readPos = (r.readPos + n) % r.size
}

// AdvanceWrite moves the write cursor forward by n samples without
// touching the data. Used after an OverlapAdd to commit one hop of output.
func (r *RingBuffer) AdvanceWrite(n int) {
	r.writePos = (r.writePos + n) % r.size
}

// OverlapAdd accumulates samples into the buffer starting at the write
// cursor, leaving the cursor in place. This is the synthesis primitive:
// successive windowed frames sum where they overlap.
func (r *RingBuffer) OverlapAdd(samples []float64) {
	pos := r.writePos
	for _, s := range samples {
		r.data[pos] += s
		r.data[pos+r.size] = r.data[pos]
		pos++
		if pos == r.size {
			pos = 0
		}
	}
}

// Clear zeroes the buffer and resets both cursors.
func (r *RingBuffer) Clear() {
	for i := range r.data {
		r.data[i] = 0
	}
	r.writePos = 0
	r.readPos = 0
}

// Size returns the ring capacity in samples.
func (r *RingBuffer) Size() int {
	return r.size
}

// ReadableDistance returns the number of samples between the read and
// write cursors. The analysis side uses this as a guard so a full-window
// read never touches slots that were never written.
func (r *RingBuffer) ReadableDistance() int {
	if r.writePos >= r.readPos {
		return r.writePos - r.readPos
	}
	return r.size - r.readPos + r.writePos
}

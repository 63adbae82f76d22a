// SPDX-License-Identifier: MIT
/*
Package udp publishes spectral frames as compact binary datagrams, for
visualization frontends that want lower overhead than the WebSocket JSON
stream.

Packet layout (big endian):

	magic    uint32  0x554E5256 ("UNRV")
	version  uint8   1
	sequence uint32
	fftSize  uint32
	numBins  uint32
	payload  numBins * 3 * float32  (magnitudes, tonal mask, noise mask)
*/
package udp

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	applog "unravel/internal/log"
	"unravel/internal/transport"
)

const (
	packetMagic   = 0x554E5256
	packetVersion = 1
)

// Publisher packs spectral frames into datagrams at a bounded rate.
type Publisher struct {
	sender   *Sender
	interval time.Duration

	mu       sync.Mutex
	buf      bytes.Buffer
	sequence uint32
	lastSent time.Time
}

var _ transport.Publisher = (*Publisher)(nil)

// NewPublisher wraps a Sender, emitting at most one packet per interval.
func NewPublisher(sender *Sender, sendHz int) *Publisher {
	if sendHz <= 0 {
		sendHz = 30
	}
	return &Publisher{
		sender:   sender,
		interval: time.Second / time.Duration(sendHz),
	}
}

// Publish packs and sends the frame, unless the rate limit suppresses it.
// Send errors are logged and swallowed: visualization must never affect
// processing.
func (p *Publisher) Publish(frame *transport.SpectralFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.lastSent) < p.interval {
		return nil
	}
	p.lastSent = now
	p.sequence++

	p.buf.Reset()
	binary.Write(&p.buf, binary.BigEndian, uint32(packetMagic))
	binary.Write(&p.buf, binary.BigEndian, uint8(packetVersion))
	binary.Write(&p.buf, binary.BigEndian, p.sequence)
	binary.Write(&p.buf, binary.BigEndian, uint32(frame.FFTSize))
	binary.Write(&p.buf, binary.BigEndian, uint32(len(frame.Magnitudes)))
	writeFloats(&p.buf, frame.Magnitudes)
	writeFloats(&p.buf, frame.TonalMask)
	writeFloats(&p.buf, frame.NoiseMask)

	if err := p.sender.Send(p.buf.Bytes()); err != nil {
		applog.Warnf("transport: UDP send failed: %v", err)
	}
	return nil
}

// Close shuts down the underlying sender.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

func writeFloats(buf *bytes.Buffer, values []float64) {
	for _, v := range values {
		binary.Write(buf, binary.BigEndian, float32(v))
	}
}

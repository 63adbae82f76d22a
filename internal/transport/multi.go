// SPDX-License-Identifier: MIT
package transport

// MultiPublisher fans out frames to several publishers. Each publisher
// applies its own rate limiting and drop policy; errors are collected and
// the first one is returned after all publishers have seen the frame.
type MultiPublisher struct {
	publishers []Publisher
}

var _ Publisher = (*MultiPublisher)(nil)

// NewMultiPublisher wraps the given publishers. Nil entries are skipped.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Len returns the number of wrapped publishers.
func (m *MultiPublisher) Len() int {
	return len(m.publishers)
}

// Publish forwards the frame to every publisher.
func (m *MultiPublisher) Publish(frame *SpectralFrame) error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.Publish(frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every publisher.
func (m *MultiPublisher) Close() error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

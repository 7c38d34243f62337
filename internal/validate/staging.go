package validate

import (
	"github.com/23skdu/longbow-verdict/internal/metrics"
	"github.com/23skdu/longbow-verdict/internal/numeric"
)

// StagingBuffer is the host scratch region every device read goes through.
// It only grows.
type StagingBuffer struct {
	buf []byte
}

// EnsureCapacity grows the buffer to at least n bytes and reports whether
// it reallocated.
func (s *StagingBuffer) EnsureCapacity(n int) bool {
	if n <= len(s.buf) {
		return false
	}
	s.buf = numeric.AlignedBytes(n)
	metrics.RecordStagingBuffer(n, true)
	return true
}

// View returns the first n bytes. n must not exceed Cap.
func (s *StagingBuffer) View(n int) []byte {
	return s.buf[:n]
}

func (s *StagingBuffer) Cap() int { return len(s.buf) }

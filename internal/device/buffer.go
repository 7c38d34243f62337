package device

import "fmt"

// Buffer is a contiguous allocation on the simulated device or host.
type Buffer struct {
	name     string
	data     []byte
	guard    int
	onDevice bool
	ctx      *Context
}

func (b *Buffer) Name() string   { return b.name }
func (b *Buffer) Len() int       { return len(b.data) }
func (b *Buffer) OnDevice() bool { return b.onDevice }

// GuardBytes is the size of the protected region after the allocation.
func (b *Buffer) GuardBytes() int { return b.guard }

// Bytes exposes the whole accessible allocation.
func (b *Buffer) Bytes() []byte { return b.data }

// Span returns n bytes at off. Requests that leave the allocation fault;
// when the buffer has a trailing guard the fault is ErrGuardPageFault.
func (b *Buffer) Span(off, n int) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("%s: invalid span [%d,+%d)", b.name, off, n)
	}
	if off+n > len(b.data) {
		if b.guard > 0 && off+n <= len(b.data)+b.guard {
			return nil, fmt.Errorf("%w: %s access [%d,%d) past %d bytes", ErrGuardPageFault, b.name, off, off+n, len(b.data))
		}
		return nil, fmt.Errorf("%s: access [%d,%d) outside %d bytes", b.name, off, off+n, len(b.data))
	}
	return b.data[off : off+n], nil
}

// Free releases the allocation. The buffer must not be used afterwards.
func (b *Buffer) Free() {
	if b.data == nil {
		return
	}
	if b.ctx != nil {
		b.ctx.release(b)
	}
	b.data = nil
}

func (b *Buffer) location() string {
	if b.onDevice {
		return "device"
	}
	return "host"
}

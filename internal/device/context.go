package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-verdict/internal/metrics"
	"github.com/23skdu/longbow-verdict/internal/numeric"
)

var (
	ErrTransferFailed = errors.New("device transfer failed")
	ErrGuardPageFault = errors.New("guard page fault")
)

type CopyKind int

const (
	HostToHost CopyKind = iota
	HostToDevice
	DeviceToHost
	DeviceToDevice
)

func (k CopyKind) String() string {
	switch k {
	case HostToHost:
		return "HostToHost"
	case HostToDevice:
		return "HostToDevice"
	case DeviceToHost:
		return "DeviceToHost"
	case DeviceToDevice:
		return "DeviceToDevice"
	}
	return fmt.Sprintf("CopyKind(%d)", int(k))
}

// Context is a simulated device. Kernels launched on it run asynchronously
// until Synchronize, and every Memcpy synchronizes first.
type Context struct {
	device int

	mu      sync.Mutex
	pending *errgroup.Group
	// stream keeps kernels from overlapping, like a single device queue.
	stream sync.Mutex

	allocated atomic.Int64
	transfers atomic.Int64

	// transferFault, when set, makes every Memcpy fail.
	transferFault error
}

func NewContext() *Context {
	return &Context{
		device:  0,
		pending: new(errgroup.Group),
	}
}

func (c *Context) Device() int {
	return c.device
}

// Malloc allocates device memory.
func (c *Context) Malloc(name string, bytes int) (*Buffer, error) {
	return c.alloc(name, bytes, 0, true)
}

// MallocGuarded allocates device memory followed by guardBytes of protected
// memory. Span requests that reach into the guard fault.
func (c *Context) MallocGuarded(name string, bytes, guardBytes int) (*Buffer, error) {
	return c.alloc(name, bytes, guardBytes, true)
}

// MallocHost allocates host memory tracked by the same context.
func (c *Context) MallocHost(name string, bytes int) (*Buffer, error) {
	return c.alloc(name, bytes, 0, false)
}

func (c *Context) alloc(name string, bytes, guard int, onDevice bool) (*Buffer, error) {
	if bytes < 0 || guard < 0 {
		return nil, fmt.Errorf("allocate %s: invalid size %d (guard %d)", name, bytes, guard)
	}
	b := &Buffer{
		name:     name,
		data:     numeric.AlignedBytes(bytes),
		guard:    guard,
		onDevice: onDevice,
		ctx:      c,
	}
	if onDevice {
		metrics.RecordGPUMemory(c.allocated.Add(int64(bytes)))
	}
	return b, nil
}

// Launch queues fn as an asynchronous kernel.
func (c *Context) Launch(fn func() error) {
	c.mu.Lock()
	g := c.pending
	c.mu.Unlock()
	g.Go(func() error {
		c.stream.Lock()
		defer c.stream.Unlock()
		return fn()
	})
}

// Synchronize waits for all launched kernels and returns the first error.
func (c *Context) Synchronize() error {
	c.mu.Lock()
	g := c.pending
	c.pending = new(errgroup.Group)
	c.mu.Unlock()
	return g.Wait()
}

// Memcpy copies n bytes from src at srcOffset into dst. It blocks until
// outstanding kernels complete. Any failure wraps ErrTransferFailed.
func (c *Context) Memcpy(dst []byte, src *Buffer, srcOffset, n int, kind CopyKind) error {
	if err := c.Synchronize(); err != nil {
		return fmt.Errorf("%w: %s of %d bytes from %s: kernel error: %w", ErrTransferFailed, kind, n, src.name, err)
	}
	if c.transferFault != nil {
		return fmt.Errorf("%w: %s of %d bytes from %s: %w", ErrTransferFailed, kind, n, src.name, c.transferFault)
	}

	srcOnDevice := kind == DeviceToHost || kind == DeviceToDevice
	if src.onDevice != srcOnDevice {
		return fmt.Errorf("%w: %s from %s buffer %s", ErrTransferFailed, kind, src.location(), src.name)
	}
	if srcOffset < 0 || n < 0 || srcOffset+n > len(src.data) {
		return fmt.Errorf("%w: %s range [%d,%d) outside %s (%d bytes)", ErrTransferFailed, kind, srcOffset, srcOffset+n, src.name, len(src.data))
	}
	if len(dst) < n {
		return fmt.Errorf("%w: %s destination holds %d bytes, need %d", ErrTransferFailed, kind, len(dst), n)
	}

	copy(dst[:n], src.data[srcOffset:srcOffset+n])
	c.transfers.Add(1)
	metrics.RecordTransfer(kind.String(), n)
	return nil
}

// Upload copies host bytes into a buffer at dstOffset.
func (c *Context) Upload(dst *Buffer, dstOffset int, src []byte) error {
	span, err := dst.Span(dstOffset, len(src))
	if err != nil {
		return fmt.Errorf("%w: upload to %s: %w", ErrTransferFailed, dst.name, err)
	}
	copy(span, src)
	kind := HostToHost
	if dst.onDevice {
		kind = HostToDevice
	}
	metrics.RecordTransfer(kind.String(), len(src))
	return nil
}

// InjectTransferFault makes later transfers fail with err; nil clears it.
func (c *Context) InjectTransferFault(err error) {
	c.transferFault = err
}

// Transfers is the number of completed Memcpy calls.
func (c *Context) Transfers() int64 {
	return c.transfers.Load()
}

func (c *Context) AllocatedBytes() int64 {
	return c.allocated.Load()
}

func (c *Context) release(b *Buffer) {
	if b.onDevice {
		metrics.RecordGPUMemory(c.allocated.Add(-int64(len(b.data))))
	}
}

package device

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemcpyDeviceToHost(t *testing.T) {
	ctx := NewContext()
	buf, err := ctx.Malloc("D", 16)
	require.NoError(t, err)
	defer buf.Free()

	require.NoError(t, ctx.Upload(buf, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}))

	dst := make([]byte, 8)
	require.NoError(t, ctx.Memcpy(dst, buf, 4, 8, DeviceToHost))
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10, 11, 12}, dst)
	assert.Equal(t, int64(1), ctx.Transfers())
}

func TestMemcpyRejects(t *testing.T) {
	ctx := NewContext()
	dev, err := ctx.Malloc("D", 8)
	require.NoError(t, err)
	host, err := ctx.MallocHost("H", 8)
	require.NoError(t, err)

	tests := []struct {
		name string
		src  *Buffer
		off  int
		n    int
		dst  int
		kind CopyKind
	}{
		{"host source as device", host, 0, 8, 8, DeviceToHost},
		{"device source as host", dev, 0, 8, 8, HostToHost},
		{"past end", dev, 4, 8, 8, DeviceToHost},
		{"negative offset", dev, -1, 4, 8, DeviceToHost},
		{"short destination", dev, 0, 8, 4, DeviceToHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ctx.Memcpy(make([]byte, tt.dst), tt.src, tt.off, tt.n, tt.kind)
			assert.ErrorIs(t, err, ErrTransferFailed)
		})
	}
	assert.Zero(t, ctx.Transfers())
}

func TestInjectedTransferFault(t *testing.T) {
	ctx := NewContext()
	buf, err := ctx.Malloc("D", 8)
	require.NoError(t, err)

	boom := errors.New("ecc error")
	ctx.InjectTransferFault(boom)
	err = ctx.Memcpy(make([]byte, 8), buf, 0, 8, DeviceToHost)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, boom)

	ctx.InjectTransferFault(nil)
	assert.NoError(t, ctx.Memcpy(make([]byte, 8), buf, 0, 8, DeviceToHost))
}

func TestMemcpyWaitsForKernels(t *testing.T) {
	ctx := NewContext()
	buf, err := ctx.Malloc("D", 4)
	require.NoError(t, err)

	var ran atomic.Bool
	ctx.Launch(func() error {
		copy(buf.Bytes(), []byte{9, 9, 9, 9})
		ran.Store(true)
		return nil
	})

	dst := make([]byte, 4)
	require.NoError(t, ctx.Memcpy(dst, buf, 0, 4, DeviceToHost))
	assert.True(t, ran.Load())
	assert.Equal(t, []byte{9, 9, 9, 9}, dst)
}

func TestKernelErrorSurfacesOnTransfer(t *testing.T) {
	ctx := NewContext()
	buf, err := ctx.Malloc("D", 4)
	require.NoError(t, err)

	ctx.Launch(func() error { return ErrGuardPageFault })
	err = ctx.Memcpy(make([]byte, 4), buf, 0, 4, DeviceToHost)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ErrGuardPageFault)

	// The failed group is consumed.
	assert.NoError(t, ctx.Synchronize())
}

func TestGuardedSpan(t *testing.T) {
	ctx := NewContext()
	buf, err := ctx.MallocGuarded("D", 16, PageSize)
	require.NoError(t, err)

	_, err = buf.Span(8, 8)
	assert.NoError(t, err)

	_, err = buf.Span(12, 8)
	assert.ErrorIs(t, err, ErrGuardPageFault)

	plain, err := ctx.Malloc("P", 16)
	require.NoError(t, err)
	_, err = plain.Span(12, 8)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrGuardPageFault)
}

func TestAllocatedBytes(t *testing.T) {
	ctx := NewContext()
	a, err := ctx.Malloc("A", 100)
	require.NoError(t, err)
	b, err := ctx.Malloc("B", 50)
	require.NoError(t, err)
	_, err = ctx.MallocHost("H", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(150), ctx.AllocatedBytes())

	a.Free()
	a.Free()
	assert.Equal(t, int64(50), ctx.AllocatedBytes())
	b.Free()
	assert.Zero(t, ctx.AllocatedBytes())

	_, err = ctx.Malloc("bad", -1)
	assert.Error(t, err)
}

func TestParseBoundsCheckMode(t *testing.T) {
	for _, m := range []BoundsCheckMode{BoundsCheckNone, BoundsCheckNaN, BoundsCheckGuardPageBack} {
		got, err := ParseBoundsCheckMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseBoundsCheckMode("1")
	require.NoError(t, err)
	assert.Equal(t, BoundsCheckNaN, got)

	_, err = ParseBoundsCheckMode("front")
	assert.Error(t, err)
}

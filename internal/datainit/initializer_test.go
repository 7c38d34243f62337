package datainit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/numeric"
	"github.com/23skdu/longbow-verdict/internal/problem"
)

func newProblem(t *testing.T, types string, m, n, k int) *problem.ContractionProblem {
	t.Helper()
	sig, err := problem.ParseSignature(types)
	require.NoError(t, err)
	p, err := problem.NewContraction(problem.GEMM{M: m, N: n, K: k, Batch: 1, Types: sig, Alpha: 1})
	require.NoError(t, err)
	return p
}

func TestCPUInputsDeterministic(t *testing.T) {
	p := newProblem(t, "S", 4, 3, 2)

	a := New(device.NewContext(), Options{Seed: 7})
	in1, err := a.PrepareCPUInputs(p)
	require.NoError(t, err)
	first := append([]byte(nil), in1.A.Bytes()...)

	b := New(device.NewContext(), Options{Seed: 7})
	in2, err := b.PrepareCPUInputs(p)
	require.NoError(t, err)
	assert.Equal(t, first, in2.A.Bytes())

	acc, err := numeric.AccessorFor(p.D().DataType())
	require.NoError(t, err)
	for i := 0; i < in2.DElements; i++ {
		assert.True(t, acc.IsSentinel(in2.D.Bytes(), i))
	}
	assert.False(t, in2.GPU)
	assert.Equal(t, complex(1, 0), in2.Alpha)
}

func TestGPUInputsLayout(t *testing.T) {
	p := newProblem(t, "S", 4, 4, 2)
	allocated := p.D().TotalAllocatedElements()

	tests := []struct {
		name       string
		mode       device.BoundsCheckMode
		guard      int
		wantOffset int
		wantTotal  int
	}{
		{"none", device.BoundsCheckNone, 8, 0, allocated},
		{"nan", device.BoundsCheckNaN, 8, 8, allocated + 16},
		{"guard page back", device.BoundsCheckGuardPageBack, 8, device.PageSize/4 - allocated, device.PageSize / 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := device.NewContext()
			di := New(ctx, Options{BoundsCheck: tt.mode, GuardElements: tt.guard, Seed: 1})
			cpu, err := di.PrepareCPUInputs(p)
			require.NoError(t, err)
			gpu, err := di.PrepareGPUInputs(p)
			require.NoError(t, err)

			assert.True(t, gpu.GPU)
			assert.True(t, gpu.D.OnDevice())
			assert.Equal(t, tt.wantOffset, gpu.DOffset)
			assert.Equal(t, tt.wantTotal, gpu.DElements)
			assert.Equal(t, allocated, gpu.DAllocated)
			assert.Len(t, gpu.DData(), allocated*4)
			assert.Equal(t, cpu.A.Bytes(), gpu.A.Bytes())
			assert.Equal(t, tt.mode, di.CurrentBoundsCheck())

			if tt.mode == device.BoundsCheckGuardPageBack {
				_, err := gpu.D.Span(gpu.DElements*4, 4)
				assert.ErrorIs(t, err, device.ErrGuardPageFault)
			}
		})
	}
}

func TestResetOutput(t *testing.T) {
	p := newProblem(t, "I_I_I", 2, 2, 2)
	di := New(device.NewContext(), Options{BoundsCheck: device.BoundsCheckNaN, GuardElements: 2})
	_, err := di.PrepareCPUInputs(p)
	require.NoError(t, err)
	gpu, err := di.PrepareGPUInputs(p)
	require.NoError(t, err)

	numeric.View[int32](gpu.D.Bytes())[3] = 5
	require.NoError(t, di.ResetOutput(p))

	acc, err := numeric.AccessorFor(p.D().DataType())
	require.NoError(t, err)
	assert.True(t, acc.IsSentinel(gpu.D.Bytes(), 3))
}

func TestConvInputs(t *testing.T) {
	p := newProblem(t, "D", 3, 3, 3)

	di := New(device.NewContext(), Options{Seed: 3})
	_, err := di.PrepareCPUInputs(p)
	require.NoError(t, err)
	_, err = di.CPUConvInputs()
	assert.Error(t, err)

	di = New(device.NewContext(), Options{Seed: 3, Convolution: true})
	cpu, err := di.PrepareCPUInputs(p)
	require.NoError(t, err)
	conv, err := di.CPUConvInputs()
	require.NoError(t, err)
	assert.Equal(t, cpu.B.Bytes(), conv.B.Bytes())
	assert.NotSame(t, cpu.D, conv.D)
}

func TestGPUInputsRequireCPU(t *testing.T) {
	p := newProblem(t, "S", 2, 2, 2)
	di := New(device.NewContext(), Options{})
	_, err := di.PrepareGPUInputs(p)
	assert.Error(t, err)
	assert.Error(t, di.ResetOutput(p))
}

func TestReleaseFreesDeviceMemory(t *testing.T) {
	p := newProblem(t, "S", 8, 8, 8)
	ctx := device.NewContext()
	di := New(ctx, Options{})
	_, err := di.PrepareCPUInputs(p)
	require.NoError(t, err)
	_, err = di.PrepareGPUInputs(p)
	require.NoError(t, err)
	assert.Positive(t, ctx.AllocatedBytes())

	di.Release()
	assert.Zero(t, ctx.AllocatedBytes())
}

func TestEnsureCPUInputsReusesCurrent(t *testing.T) {
	p := newProblem(t, "S", 2, 2, 2)
	di := New(device.NewContext(), Options{Seed: 9})

	first, err := di.EnsureCPUInputs(p)
	require.NoError(t, err)
	again, err := di.EnsureCPUInputs(p)
	require.NoError(t, err)
	assert.Same(t, first, again)

	other := newProblem(t, "S", 2, 2, 2)
	fresh, err := di.EnsureCPUInputs(other)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
}

package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-verdict/internal/compare"
	"github.com/23skdu/longbow-verdict/internal/config"
	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/numeric"
	"github.com/23skdu/longbow-verdict/internal/problem"
	"github.com/23skdu/longbow-verdict/internal/reference"
	"github.com/23skdu/longbow-verdict/internal/report"
)

const convID = "ConvolutionForward_NCHW_filter:1x1_stride:1x1_dilation:1x1_groups:1"

// fixedSolver writes known reference values instead of computing them.
type fixedSolver struct {
	values     []float32
	convValues []float32
	calls      int
}

func (s *fixedSolver) SolveCPU(p *problem.ContractionProblem, in *datainit.Inputs, stride int) error {
	s.calls++
	copy(numeric.View[float32](in.DData()), s.values)
	return nil
}

func (s *fixedSolver) SolveConvolution(conv problem.ConvolutionProblem, p *problem.ContractionProblem, in *datainit.Inputs) error {
	copy(numeric.View[float32](in.DData()), s.convValues)
	return nil
}

type fixture struct {
	ctx *device.Context
	di  *datainit.Initializer
	rep *report.Memory
	v   *Validator
}

func newFixture(t *testing.T, cfg config.ValidationConfig, opts datainit.Options, solver Solver) *fixture {
	t.Helper()
	ctx := device.NewContext()
	opts.Convolution = cfg.ConvolutionVsContraction
	di := datainit.New(ctx, opts)
	rep := report.NewMemory()
	v, err := New(cfg, di, solver, rep, ctx)
	require.NoError(t, err)
	t.Cleanup(di.Release)
	return &fixture{ctx: ctx, di: di, rep: rep, v: v}
}

func newProblem(t *testing.T, types string, m, n, k, ldd int) *problem.ContractionProblem {
	t.Helper()
	sig, err := problem.ParseSignature(types)
	require.NoError(t, err)
	p, err := problem.NewContraction(problem.GEMM{M: m, N: n, K: k, Batch: 1, Types: sig, Alpha: 1, LDD: ldd})
	require.NoError(t, err)
	return p
}

// start runs the problem and solution hooks and returns device inputs
// whose D holds values.
func (f *fixture) start(t *testing.T, p *problem.ContractionProblem, values []float32) *datainit.Inputs {
	t.Helper()
	require.NoError(t, f.v.PreProblem(p))
	f.v.PreSolution(problem.Solution{Index: 0, Name: "test"})
	gpu, err := f.di.PrepareGPUInputs(p)
	require.NoError(t, err)
	copy(numeric.View[float32](gpu.DData()), values)
	return gpu
}

func TestPassedVerdict(t *testing.T) {
	solver := &fixedSolver{values: []float32{1, 2, 3, 4}}
	f := newFixture(t, config.ValidationConfig{NumElementsToValidate: -1, PrintMax: 10}, datainit.Options{}, solver)

	assert.True(t, f.v.NeedMoreBenchmarkRuns())
	f.v.PostBenchmarkRun()
	assert.False(t, f.v.NeedMoreBenchmarkRuns())

	gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), []float32{1, 2, 3, 4})
	assert.Equal(t, 1, f.v.NumWarmupRuns())
	require.NoError(t, f.v.ValidateWarmups(gpu))
	assert.Equal(t, 0, f.v.NumWarmupRuns())
	require.NoError(t, f.v.PostSolution())

	out := f.v.LastOutcome()
	assert.Equal(t, 4, out.Compared)
	assert.Zero(t, out.Mismatches)
	assert.Equal(t, 1, out.Stride)
	assert.Equal(t, []string{VerdictPassed}, f.rep.Values(report.KeyValidation))
	assert.Zero(t, f.v.ErrorCount())
	assert.Equal(t, Reported, f.v.State())
}

func TestFailedVerdict(t *testing.T) {
	solver := &fixedSolver{values: []float32{1, 2, 3, 4}}
	f := newFixture(t, config.ValidationConfig{NumElementsToValidate: -1, PrintMax: 10}, datainit.Options{}, solver)

	gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), []float32{1, 2, 3.5, 4})
	require.NoError(t, f.v.ValidateWarmups(gpu))
	require.NoError(t, f.v.PostSolution())

	out := f.v.LastOutcome()
	assert.Equal(t, 1, out.Mismatches)
	require.NotNil(t, out.FirstMismatch)
	assert.Equal(t, 2, out.FirstMismatch.Index)
	assert.Equal(t, "3.5", out.FirstMismatch.Got)
	assert.Equal(t, []string{VerdictFailed}, f.rep.Values(report.KeyValidation))
	assert.Equal(t, 1, f.v.ErrorCount())
}

func TestNoCheck(t *testing.T) {
	solver := &fixedSolver{}
	f := newFixture(t, config.ValidationConfig{PrintMax: 10}, datainit.Options{}, solver)

	assert.False(t, f.v.NeedMoreBenchmarkRuns())
	require.NoError(t, f.v.PreProblem(newProblem(t, "S", 2, 2, 1, 0)))
	f.v.PreSolution(problem.Solution{Name: "naive"})
	assert.False(t, f.v.NeedMoreRunsInSolution())
	assert.Zero(t, f.v.NumWarmupRuns())
	require.NoError(t, f.v.ValidateWarmups(nil))
	require.NoError(t, f.v.PostSolution())

	assert.Zero(t, solver.calls)
	assert.Equal(t, []string{VerdictNoCheck}, f.rep.Values(report.KeyValidation))
	assert.Zero(t, f.v.ErrorCount())
}

func TestSampledValidation(t *testing.T) {
	f := newFixture(t, config.ValidationConfig{NumElementsToValidate: 1000}, datainit.Options{Seed: 3}, reference.CPU{})
	p := newProblem(t, "S", 1000, 1000, 1, 0)

	require.NoError(t, f.v.PreProblem(p))
	assert.Equal(t, 1009, f.v.Stride())
	f.v.PreSolution(problem.Solution{Name: "sampled"})

	gpu, err := f.di.PrepareGPUInputs(p)
	require.NoError(t, err)
	require.NoError(t, reference.SolveCPU(p, gpu, 1009))

	require.NoError(t, f.v.ValidateWarmups(gpu))
	require.NoError(t, f.v.PostSolution())

	out := f.v.LastOutcome()
	assert.Equal(t, 992, out.Compared)
	assert.Zero(t, out.Mismatches)
	assert.Equal(t, []string{VerdictPassed}, f.rep.Values(report.KeyValidation))
}

func TestNaNGuardScan(t *testing.T) {
	values := []float32{1, 2, 3, 4}
	cfg := config.ValidationConfig{NumElementsToValidate: -1, PrintMax: 10}
	opts := datainit.Options{BoundsCheck: device.BoundsCheckNaN, GuardElements: 4}

	t.Run("untouched", func(t *testing.T) {
		f := newFixture(t, cfg, opts, &fixedSolver{values: values})
		gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), values)
		require.NoError(t, f.v.ValidateWarmups(gpu))

		out := f.v.LastOutcome()
		assert.Equal(t, 8, out.GuardChecked)
		assert.False(t, out.Failed())
	})

	t.Run("one after element overwritten", func(t *testing.T) {
		f := newFixture(t, cfg, opts, &fixedSolver{values: values})
		gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), values)
		numeric.View[float32](gpu.D.Bytes())[gpu.DOffset+gpu.DAllocated+1] = 0

		require.NoError(t, f.v.ValidateWarmups(gpu))
		require.NoError(t, f.v.PostSolution())

		out := f.v.LastOutcome()
		assert.Zero(t, out.Before)
		assert.Zero(t, out.Inside)
		assert.Equal(t, 1, out.After)
		require.NotNil(t, out.FirstViolation)
		assert.Equal(t, compare.After, out.FirstViolation.Region)
		assert.Equal(t, 1, out.FirstViolation.Index)
		assert.Zero(t, out.Mismatches)
		assert.Equal(t, []string{VerdictFailed}, f.rep.Values(report.KeyValidation))
	})

	t.Run("padding overwritten", func(t *testing.T) {
		// ldd 3 leaves one padding element after each column.
		f := newFixture(t, cfg, opts, reference.CPU{})
		p := newProblem(t, "S", 2, 2, 1, 3)
		gpu := f.start(t, p, nil)
		require.NoError(t, reference.SolveCPU(p, gpu, 1))

		numeric.View[float32](gpu.DData())[2] = 9
		require.NoError(t, f.v.ValidateWarmups(gpu))

		out := f.v.LastOutcome()
		assert.Equal(t, 1, out.Inside)
		assert.Zero(t, out.Mismatches)
		assert.Equal(t, 8+1, out.GuardChecked)
	})
}

func TestValidateOncePerSolution(t *testing.T) {
	values := []float32{1, 2, 3, 4}
	f := newFixture(t, config.ValidationConfig{NumElementsToValidate: -1}, datainit.Options{}, &fixedSolver{values: values})
	gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), values)

	require.NoError(t, f.v.ValidateWarmups(gpu))
	transfers := f.ctx.Transfers()
	first := f.v.LastOutcome()

	numeric.View[float32](gpu.DData())[0] = 42
	require.NoError(t, f.v.ValidateWarmups(gpu))
	assert.Equal(t, transfers, f.ctx.Transfers())
	assert.Equal(t, first, f.v.LastOutcome())
	assert.False(t, f.v.NeedMoreRunsInSolution())

	// A new solution is validated again.
	f.v.PreSolution(problem.Solution{Index: 1, Name: "next"})
	assert.True(t, f.v.NeedMoreRunsInSolution())
	require.NoError(t, f.v.ValidateWarmups(gpu))
	assert.Equal(t, transfers+1, f.ctx.Transfers())
	assert.Equal(t, 1, f.v.LastOutcome().Mismatches)
}

func TestConvolutionCrossCheck(t *testing.T) {
	values := []float32{1, 2, 3, 4}
	cfg := config.ValidationConfig{
		NumElementsToValidate:    -1,
		ConvolutionVsContraction: true,
		ConvolutionIdentifier:    convID,
		DebugConvolutionTensors:  true,
	}

	t.Run("agrees", func(t *testing.T) {
		f := newFixture(t, cfg, datainit.Options{}, &fixedSolver{values: values, convValues: values})
		gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), values)
		require.NoError(t, f.v.ValidateWarmups(gpu))
		require.NoError(t, f.v.PostSolution())

		assert.Equal(t, []string{VerdictPassedConv}, f.rep.Values(report.KeyConvolutionValidation))
		assert.Equal(t, []string{VerdictPassed}, f.rep.Values(report.KeyValidation))
		assert.Equal(t, []string{"Aval-conv", "Bval-conv", "Dval-conv", "Bval-contraction", "Dval-contraction"}, f.rep.Labels())
	})

	t.Run("disagrees", func(t *testing.T) {
		f := newFixture(t, cfg, datainit.Options{}, &fixedSolver{values: values, convValues: []float32{1, 2, 3, 5}})
		gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), values)
		require.NoError(t, f.v.ValidateWarmups(gpu))
		require.NoError(t, f.v.PostSolution())

		assert.Equal(t, []string{VerdictFailedConv}, f.rep.Values(report.KeyConvolutionValidation))
		assert.Equal(t, []string{VerdictFailedConv}, f.rep.Values(report.KeyValidation))
		assert.Equal(t, 1, f.v.ErrorCount())
	})

	t.Run("labelled with its own problem", func(t *testing.T) {
		f := newFixture(t, cfg, datainit.Options{}, reference.CPU{})
		f.v.cfg.DebugConvolutionTensors = false
		problems := []*problem.ContractionProblem{
			newProblem(t, "S", 2, 2, 1, 0),
			newProblem(t, "S", 3, 2, 1, 0),
		}
		for _, p := range problems {
			require.NoError(t, f.v.PreProblem(p))
			f.v.PreSolution(problem.Solution{Index: 0, Name: "naive"})
			require.NoError(t, f.v.PostSolution())
			f.v.PostProblem()
		}

		var rows []report.Entry
		for _, e := range f.rep.Entries() {
			if e.Key == report.KeyConvolutionValidation {
				rows = append(rows, e)
			}
		}
		require.Len(t, rows, 2)
		for i, p := range problems {
			assert.Equal(t, p.String(), rows[i].Problem)
			assert.Empty(t, rows[i].Solution)
			assert.Equal(t, VerdictPassedConv, rows[i].Value)
		}
	})

	t.Run("rejected geometry", func(t *testing.T) {
		bad := cfg
		bad.ConvolutionIdentifier = "ConvolutionForward_NCHW_filter:3x3"
		_, err := New(bad, nil, nil, report.NewMemory(), device.NewContext())
		assert.ErrorIs(t, err, problem.ErrUnsupportedConvolution)
	})
}

func TestUnsupportedTypeIsFatal(t *testing.T) {
	f := newFixture(t, config.ValidationConfig{NumElementsToValidate: -1}, datainit.Options{}, reference.CPU{})
	err := f.v.PreProblem(newProblem(t, "S_S_D_D_S_S", 2, 2, 1, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedDataType)

	var ute *UnsupportedTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "S_D_S", ute.Signature.String())
	assert.Equal(t, Idle, f.v.State())
}

func TestTransferFailureIsFatal(t *testing.T) {
	values := []float32{1, 2, 3, 4}
	f := newFixture(t, config.ValidationConfig{NumElementsToValidate: -1}, datainit.Options{}, &fixedSolver{values: values})
	gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), values)

	f.ctx.InjectTransferFault(errors.New("device lost"))
	err := f.v.ValidateWarmups(gpu)
	assert.ErrorIs(t, err, device.ErrTransferFailed)
	assert.Equal(t, AwaitingValidation, f.v.State())
}

func TestValidateBeforeProblem(t *testing.T) {
	f := newFixture(t, config.ValidationConfig{NumElementsToValidate: -1}, datainit.Options{}, &fixedSolver{})
	f.v.PreSolution(problem.Solution{Name: "orphan"})
	require.NoError(t, f.v.ValidateWarmups(&datainit.Inputs{}))
	assert.Equal(t, Idle, f.v.State())
	assert.Zero(t, f.ctx.Transfers())

	require.NoError(t, f.v.PostSolution())
	assert.Empty(t, f.rep.Values(report.KeyValidation))
	assert.Zero(t, f.v.ErrorCount())
}

func TestPrintOnly(t *testing.T) {
	values := []float32{1, 2, 3, 4}
	cfg := config.ValidationConfig{PrintTensorD: true, PrintTensorRef: true, PrintTensorA: true}
	f := newFixture(t, cfg, datainit.Options{}, &fixedSolver{values: values})

	assert.True(t, f.v.NeedMoreBenchmarkRuns())
	gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), values)
	assert.Equal(t, 1, f.v.NumWarmupRuns())
	require.NoError(t, f.v.ValidateWarmups(gpu))
	require.NoError(t, f.v.PostSolution())

	assert.Equal(t, []string{"A", "D", "Ref"}, f.rep.Labels())
	assert.Equal(t, []string{"1", "2", "3", "4"}, f.rep.Tensors()[1].Values)
	assert.Equal(t, []string{VerdictNoCheck}, f.rep.Values(report.KeyValidation))
	assert.Zero(t, f.v.LastOutcome().Compared)
}

func TestPrintSharedCD(t *testing.T) {
	values := []float32{1, 2, 3, 4}
	cfg := config.ValidationConfig{PrintTensorC: true, PrintTensorD: true}
	f := newFixture(t, cfg, datainit.Options{}, &fixedSolver{values: values})
	gpu := f.start(t, newProblem(t, "S", 2, 2, 1, 0), values)

	shared := *gpu
	shared.C = gpu.D
	require.NoError(t, f.v.ValidateWarmups(&shared))
	assert.Equal(t, []string{"C_D"}, f.rep.Labels())
}

func TestHalfPrecisionPath(t *testing.T) {
	f := newFixture(t, config.ValidationConfig{NumElementsToValidate: -1}, datainit.Options{Seed: 5}, reference.CPU{})
	p := newProblem(t, "H_S_S", 4, 3, 2, 0)
	require.NoError(t, f.v.PreProblem(p))
	f.v.PreSolution(problem.Solution{Name: "naive"})

	gpu, err := f.di.PrepareGPUInputs(p)
	require.NoError(t, err)
	require.NoError(t, reference.SolveCPU(p, gpu, 1))
	require.NoError(t, f.v.ValidateWarmups(gpu))
	require.NoError(t, f.v.PostSolution())
	assert.Equal(t, []string{VerdictPassed}, f.rep.Values(report.KeyValidation))
}

func TestStagingBufferGrowsOnly(t *testing.T) {
	var s StagingBuffer
	assert.True(t, s.EnsureCapacity(64))
	assert.False(t, s.EnsureCapacity(32))
	assert.Equal(t, 64, s.Cap())
	assert.Len(t, s.View(16), 16)
	assert.True(t, s.EnsureCapacity(128))
	assert.Equal(t, 128, s.Cap())
}

func TestSupported(t *testing.T) {
	got := Supported()
	for _, want := range []string{"S", "D", "C", "Z", "I", "I8_I_I", "4xi8_I_I", "H", "H_H_S", "H_S_S", "B_B_S", "B_S_S"} {
		assert.Contains(t, got, want)
	}
}

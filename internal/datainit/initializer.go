// Package datainit prepares the operand and output buffers for a problem,
// on the host for the reference solver and on the device for kernels.
package datainit

import (
	"fmt"
	"math/rand/v2"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/numeric"
	"github.com/23skdu/longbow-verdict/internal/problem"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

type Options struct {
	BoundsCheck device.BoundsCheckMode
	// GuardElements is the sentinel region on each side of D in NaN mode.
	GuardElements int
	Seed          uint64
	// Convolution keeps a second host input set for the convolution solver.
	Convolution bool
}

// Initializer owns the inputs of the current problem. A, B and C hold the
// same values on the host and the device; every D starts as sentinels.
type Initializer struct {
	ctx  *device.Context
	opts Options

	problem *problem.ContractionProblem
	cpu     *Inputs
	gpu     *Inputs
	conv    *Inputs
}

func New(ctx *device.Context, opts Options) *Initializer {
	if opts.BoundsCheck != device.BoundsCheckNaN {
		opts.GuardElements = 0
	}
	return &Initializer{ctx: ctx, opts: opts}
}

// CurrentBoundsCheck is the guard layout used for device outputs.
func (i *Initializer) CurrentBoundsCheck() device.BoundsCheckMode {
	return i.opts.BoundsCheck
}

// PrepareCPUInputs fills fresh host inputs for p and returns them. The
// previous problem's buffers are released.
func (i *Initializer) PrepareCPUInputs(p *problem.ContractionProblem) (*Inputs, error) {
	i.release()
	i.problem = p

	r := rand.New(rand.NewPCG(i.opts.Seed, uint64(p.D().TotalLogicalElements())))
	sig := p.Signature()

	cpu, err := i.hostInputs(p, "cpu")
	if err != nil {
		return nil, err
	}
	for _, t := range []struct {
		dt  tensor.DataType
		buf *device.Buffer
	}{{sig.A, cpu.A}, {sig.B, cpu.B}, {sig.C, cpu.C}} {
		if err := numeric.FillRandom(t.dt, t.buf.Bytes(), r); err != nil {
			cpu.Free()
			return nil, err
		}
	}
	i.cpu = cpu

	if i.opts.Convolution {
		conv, err := i.hostInputs(p, "conv")
		if err != nil {
			return nil, err
		}
		copy(conv.A.Bytes(), cpu.A.Bytes())
		copy(conv.B.Bytes(), cpu.B.Bytes())
		copy(conv.C.Bytes(), cpu.C.Bytes())
		i.conv = conv
	}

	logger.Log.Debug("prepared cpu inputs", "problem", p.String())
	return cpu, nil
}

// EnsureCPUInputs returns the host inputs of p, preparing them only if
// another problem (or none) is current.
func (i *Initializer) EnsureCPUInputs(p *problem.ContractionProblem) (*Inputs, error) {
	if i.cpu != nil && i.problem == p {
		return i.cpu, nil
	}
	return i.PrepareCPUInputs(p)
}

// PrepareGPUInputs copies the host operands to the device and allocates D
// with the configured guard layout. PrepareCPUInputs must run first.
func (i *Initializer) PrepareGPUInputs(p *problem.ContractionProblem) (*Inputs, error) {
	if i.cpu == nil || i.problem != p {
		return nil, fmt.Errorf("prepare gpu inputs for %s: cpu inputs not prepared", p.OperationIdentifier())
	}
	if i.gpu != nil {
		i.gpu.Free()
		i.gpu = nil
	}

	gpu := &Inputs{
		Signature: p.Signature(),
		Alpha:     i.cpu.Alpha,
		Beta:      i.cpu.Beta,
		GPU:       true,
	}
	var err error
	for _, t := range []struct {
		name string
		src  *device.Buffer
		dst  **device.Buffer
	}{{"a", i.cpu.A, &gpu.A}, {"b", i.cpu.B, &gpu.B}, {"c", i.cpu.C, &gpu.C}} {
		if *t.dst, err = i.ctx.Malloc(t.name, t.src.Len()); err != nil {
			gpu.Free()
			return nil, err
		}
		if err = i.ctx.Upload(*t.dst, 0, t.src.Bytes()); err != nil {
			gpu.Free()
			return nil, err
		}
	}

	d := p.D()
	elem := d.ElementBytes()
	allocated := d.TotalAllocatedElements()
	switch i.opts.BoundsCheck {
	case device.BoundsCheckNaN:
		gpu.DOffset = i.opts.GuardElements
		gpu.DElements = allocated + 2*i.opts.GuardElements
		gpu.D, err = i.ctx.Malloc("d", gpu.DElements*elem)
	case device.BoundsCheckGuardPageBack:
		bytes := roundUp(allocated*elem, device.PageSize)
		gpu.DElements = bytes / elem
		gpu.DOffset = gpu.DElements - allocated
		gpu.D, err = i.ctx.MallocGuarded("d", bytes, device.PageSize)
	default:
		gpu.DElements = allocated
		gpu.D, err = i.ctx.Malloc("d", allocated*elem)
	}
	if err != nil {
		gpu.Free()
		return nil, err
	}
	gpu.DAllocated = allocated
	i.gpu = gpu

	if err := i.ResetOutput(p); err != nil {
		return nil, err
	}
	return gpu, nil
}

// ResetOutput refills the device D, guards included, with sentinels.
func (i *Initializer) ResetOutput(p *problem.ContractionProblem) error {
	if i.gpu == nil {
		return fmt.Errorf("reset output for %s: gpu inputs not prepared", p.OperationIdentifier())
	}
	acc, err := numeric.AccessorFor(p.D().DataType())
	if err != nil {
		return err
	}
	acc.FillSentinel(i.gpu.D.Bytes())
	return nil
}

// CPUConvInputs returns the host inputs for the convolution solver.
func (i *Initializer) CPUConvInputs() (*Inputs, error) {
	if i.conv == nil {
		return nil, fmt.Errorf("convolution inputs not prepared")
	}
	return i.conv, nil
}

func (i *Initializer) hostInputs(p *problem.ContractionProblem, prefix string) (*Inputs, error) {
	in := &Inputs{
		Signature:  p.Signature(),
		Alpha:      complex(p.Alpha(), 0),
		Beta:       complex(p.Beta(), 0),
		DAllocated: p.D().TotalAllocatedElements(),
		DElements:  p.D().TotalAllocatedElements(),
	}
	var err error
	for _, t := range []struct {
		name string
		desc *tensor.Descriptor
		dst  **device.Buffer
	}{{"a", p.A(), &in.A}, {"b", p.B(), &in.B}, {"c", p.C(), &in.C}, {"d", p.D(), &in.D}} {
		if *t.dst, err = i.ctx.MallocHost(prefix+"-"+t.name, t.desc.TotalAllocatedBytes()); err != nil {
			in.Free()
			return nil, err
		}
	}

	acc, err := numeric.AccessorFor(p.D().DataType())
	if err != nil {
		in.Free()
		return nil, err
	}
	acc.FillSentinel(in.D.Bytes())
	return in, nil
}

// Release frees every buffer of the current problem.
func (i *Initializer) Release() {
	i.release()
	i.problem = nil
}

func (i *Initializer) release() {
	for _, in := range []*Inputs{i.cpu, i.gpu, i.conv} {
		if in != nil {
			in.Free()
		}
	}
	i.cpu, i.gpu, i.conv = nil, nil, nil
}

func roundUp(n, multiple int) int {
	if n == 0 {
		return multiple
	}
	return (n + multiple - 1) / multiple * multiple
}

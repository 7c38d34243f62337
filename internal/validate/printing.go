package validate

import (
	"github.com/rs/zerolog"

	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// verbose is the level tensors are rendered at.
const verbose = zerolog.DebugLevel

// printTensors renders the selected operands of result, and the reference
// output, through the reporter.
func (v *Validator) printTensors(result *datainit.Inputs) error {
	ref := v.reference
	v.log.Info("reference scalars", "alpha", ref.Alpha, "beta", ref.Beta)
	v.log.Info("result scalars", "alpha", result.Alpha, "beta", result.Beta)

	p := v.problem
	need := 0
	for _, t := range []struct {
		on   bool
		desc *tensor.Descriptor
	}{
		{v.cfg.PrintTensorA, p.A()},
		{v.cfg.PrintTensorB, p.B()},
		{v.cfg.PrintTensorC, p.C()},
		{v.cfg.PrintTensorD, p.D()},
		{v.cfg.PrintTensorRef, p.D()},
	} {
		if t.on {
			need = max(need, t.desc.TotalAllocatedBytes())
		}
	}
	v.staging.EnsureCapacity(need)

	if v.cfg.PrintTensorA {
		if err := v.printOperand("A", result.A, 0, p.A(), result); err != nil {
			return err
		}
	}
	if v.cfg.PrintTensorB {
		if err := v.printOperand("B", result.B, 0, p.B(), result); err != nil {
			return err
		}
	}

	dOffset := result.DOffset * p.D().ElementBytes()
	if result.SharesCD() && (v.cfg.PrintTensorC || v.cfg.PrintTensorD) {
		if err := v.printOperand("C_D", result.C, dOffset, p.C(), result); err != nil {
			return err
		}
	} else {
		if v.cfg.PrintTensorC {
			if err := v.printOperand("C", result.C, 0, p.C(), result); err != nil {
				return err
			}
		}
		if v.cfg.PrintTensorD {
			if err := v.printOperand("D", result.D, dOffset, p.D(), result); err != nil {
				return err
			}
		}
	}

	if v.cfg.PrintTensorRef {
		if err := v.rep.LogTensor(verbose, "Ref", ref.DData(), p.D(), ref.D); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) printOperand(label string, src *device.Buffer, offset int, desc *tensor.Descriptor, result *datainit.Inputs) error {
	n := desc.TotalAllocatedBytes()
	buf := v.staging.View(n)
	if err := v.ctx.Memcpy(buf, src, offset, n, copyKind(result)); err != nil {
		return err
	}
	return v.rep.LogTensor(verbose, label, buf, desc, src)
}

// logConvolutionTensors dumps the host operands of the convolution
// cross-check next to the contraction reference.
func (v *Validator) logConvolutionTensors(conv *datainit.Inputs) error {
	p := v.problem
	for _, t := range []struct {
		label string
		data  []byte
		desc  *tensor.Descriptor
	}{
		{"Aval-conv", conv.A.Bytes(), p.A()},
		{"Bval-conv", conv.B.Bytes(), p.B()},
		{"Dval-conv", conv.DData(), p.D()},
		{"Bval-contraction", v.reference.B.Bytes(), p.B()},
		{"Dval-contraction", v.reference.DData(), p.D()},
	} {
		if err := v.rep.LogTensor(verbose, t.label, t.data, t.desc, nil); err != nil {
			return err
		}
	}
	return nil
}

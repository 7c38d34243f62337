// Package reference computes expected contraction results on the host.
package reference

import (
	"fmt"

	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/numeric"
	"github.com/23skdu/longbow-verdict/internal/problem"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// CPU is the host reference solver.
type CPU struct{}

type operands struct {
	a, b, c, d numeric.Accessor
}

func accessors(sig problem.TypeSignature) (operands, error) {
	var ops operands
	var err error
	if ops.a, err = numeric.AccessorFor(sig.A); err != nil {
		return ops, err
	}
	if ops.b, err = numeric.AccessorFor(sig.B); err != nil {
		return ops, err
	}
	if ops.c, err = numeric.AccessorFor(sig.C); err != nil {
		return ops, err
	}
	if ops.d, err = numeric.AccessorFor(sig.D); err != nil {
		return ops, err
	}
	if sig.A != sig.B {
		return ops, fmt.Errorf("reference solver: operand kinds %v and %v differ", sig.A, sig.B)
	}
	return ops, nil
}

// SolveCPU writes D for the elements numbered 0, stride, 2*stride, ...
// Elements that are not visited keep their previous contents.
func (CPU) SolveCPU(p *problem.ContractionProblem, in *datainit.Inputs, stride int) error {
	return SolveCPU(p, in, stride)
}

func (CPU) SolveConvolution(conv problem.ConvolutionProblem, p *problem.ContractionProblem, in *datainit.Inputs) error {
	return SolveConvolution(conv, p, in)
}

func SolveCPU(p *problem.ContractionProblem, in *datainit.Inputs, stride int) error {
	return SolveRange(p, in, 0, p.D().TotalLogicalElements(), stride)
}

// SolveRange writes D for the element numbers first, first+stride, ...
// below last. Disjoint ranges may be solved concurrently.
func SolveRange(p *problem.ContractionProblem, in *datainit.Inputs, first, last, stride int) error {
	if stride < 1 {
		return fmt.Errorf("reference solver: invalid stride %d", stride)
	}
	ops, err := accessors(in.Signature)
	if err != nil {
		return err
	}

	a, b, c := in.A.Bytes(), in.B.Bytes(), in.C.Bytes()
	d := in.DData()
	dDesc := p.D()
	k := p.BoundSize()

	coord := make([]int, dDesc.Dimensions())
	aCoord := make([]int, 3)
	bCoord := make([]int, 3)
	for num := first; num < last && num < dDesc.TotalLogicalElements(); num += stride {
		tensor.CoordNumbered(num, coord, dDesc.Sizes())
		i, j, l := coord[0], coord[1], coord[2]

		var sum complex128
		for kk := 0; kk < k; kk++ {
			aCoord[0], aCoord[1], aCoord[2] = i, kk, l
			bCoord[0], bCoord[1], bCoord[2] = kk, j, l
			sum += ops.a.Product(a, p.A().Index(aCoord), b, p.B().Index(bCoord))
		}

		v := in.Alpha * sum
		if in.Beta != 0 {
			v += in.Beta * ops.c.Load(c, p.C().Index(coord))
		}
		ops.d.Store(d, dDesc.Index(coord), v)
	}
	return nil
}

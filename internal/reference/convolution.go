package reference

import (
	"fmt"

	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/problem"
)

// SolveConvolution computes D as a forward convolution over the same
// operands: A holds the image (spatial position i, input channel k, image l),
// B the filter (input channel k, output channel j) and D the output image.
// Only geometries that lower exactly onto the contraction are accepted.
func SolveConvolution(conv problem.ConvolutionProblem, p *problem.ContractionProblem, in *datainit.Inputs) error {
	if err := conv.CheckLowering(); err != nil {
		return err
	}
	ops, err := accessors(in.Signature)
	if err != nil {
		return err
	}

	a, b, c := in.A.Bytes(), in.B.Bytes(), in.C.Bytes()
	d := in.DData()
	sizes := p.D().Sizes()
	width, outChannels, images := sizes[0], sizes[1], sizes[2]
	inChannels := p.BoundSize()
	fh, fw := conv.Filter[0], conv.Filter[1]

	outW := (width-conv.Dilation[1]*(fw-1)-1)/conv.Stride[1] + 1
	if outW != width {
		return fmt.Errorf("%w: output width %d differs from %d", problem.ErrUnsupportedConvolution, outW, width)
	}

	point := func(l, co, ow int) {
		var sum complex128
		for ci := 0; ci < inChannels; ci++ {
			for fy := 0; fy < fh; fy++ {
				for fx := 0; fx < fw; fx++ {
					iw := ow*conv.Stride[1] + fx*conv.Dilation[1]
					tap := (ci*fh+fy)*fw + fx
					sum += ops.a.Product(
						a, p.A().Index([]int{iw, ci, l}),
						b, p.B().Index([]int{tap, co, l}))
				}
			}
		}
		out := []int{ow, co, l}
		v := in.Alpha * sum
		if in.Beta != 0 {
			v += in.Beta * ops.c.Load(c, p.C().Index(out))
		}
		ops.d.Store(d, p.D().Index(out), v)
	}

	for l := 0; l < images; l++ {
		if conv.TensorFormat == "NHWC" {
			for ow := 0; ow < outW; ow++ {
				for co := 0; co < outChannels; co++ {
					point(l, co, ow)
				}
			}
			continue
		}
		for co := 0; co < outChannels; co++ {
			for ow := 0; ow < outW; ow++ {
				point(l, co, ow)
			}
		}
	}
	return nil
}

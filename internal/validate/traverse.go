package validate

import "github.com/23skdu/longbow-verdict/internal/tensor"

// VisitFunc receives the storage index and logical number of one element.
type VisitFunc func(index, elemNumber int)

// GapFunc receives one padding element between rows; next is the index of
// the row that follows the gap.
type GapFunc func(index, next int)

// Walk visits the elements of desc selected by stride. With stride 1 every
// element is visited row by row and, when gap is non-nil, padding between
// consecutive rows is reported. Larger strides visit elements numbered
// 0, stride, 2*stride, ...
func Walk(desc *tensor.Descriptor, stride int, visit VisitFunc, gap GapFunc) {
	if stride <= 1 {
		dense(desc, visit, gap)
		return
	}
	sampled(desc, stride, visit)
}

func dense(desc *tensor.Descriptor, visit VisitFunc, gap GapFunc) {
	sizes := desc.Sizes()
	coord := make([]int, len(sizes))
	inner := sizes[0]
	innerStride := desc.Strides()[0]
	extent := desc.RowExtent()
	outer := tensor.CoordCount(sizes[1:])
	if inner == 0 {
		return
	}

	prev := 0
	for i := 0; i < outer; i++ {
		tensor.CoordNumbered(i, coord[1:], sizes[1:])
		base := desc.Index(coord)

		if gap != nil && base != 0 && base != prev+extent {
			for idx := prev + extent; idx < base; idx++ {
				gap(idx, base)
			}
		}
		prev = base

		for j := 0; j < inner; j++ {
			visit(base+j*innerStride, i*inner+j)
		}
	}
}

func sampled(desc *tensor.Descriptor, stride int, visit VisitFunc) {
	sizes := desc.Sizes()
	coord := make([]int, len(sizes))
	for n := 0; n < desc.TotalLogicalElements(); n += stride {
		tensor.CoordNumbered(n, coord, sizes)
		visit(desc.Index(coord), n)
	}
}

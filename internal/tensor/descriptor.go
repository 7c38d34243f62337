package tensor

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidDescriptor = errors.New("invalid tensor descriptor")

// Descriptor records the shape and memory layout of a tensor. Sizes and
// strides are in elements; dimension 0 varies fastest. A Descriptor is
// immutable once built.
type Descriptor struct {
	name     string
	dataType DataType
	sizes    []int
	strides  []int

	totalLogical   int
	totalAllocated int
}

// NewPacked builds a descriptor whose strides are the cumulative products of
// sizes, so no padding exists between rows.
func NewPacked(name string, dt DataType, sizes ...int) (*Descriptor, error) {
	strides := make([]int, len(sizes))
	acc := 1
	for i, s := range sizes {
		strides[i] = acc
		acc *= s
	}
	return NewStrided(name, dt, sizes, strides)
}

// NewStrided builds a descriptor with explicit strides. Strides may introduce
// padding between rows or planes but must not make distinct coordinates alias.
func NewStrided(name string, dt DataType, sizes, strides []int) (*Descriptor, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: %s has no dimensions", ErrInvalidDescriptor, name)
	}
	if len(sizes) != len(strides) {
		return nil, fmt.Errorf("%w: %s has %d sizes but %d strides", ErrInvalidDescriptor, name, len(sizes), len(strides))
	}
	if dt.ElementSize() == 0 {
		return nil, fmt.Errorf("%w: %s has no element kind", ErrInvalidDescriptor, name)
	}

	d := &Descriptor{
		name:     name,
		dataType: dt,
		sizes:    append([]int(nil), sizes...),
		strides:  append([]int(nil), strides...),
	}

	d.totalLogical = 1
	for i, s := range sizes {
		if s < 0 {
			return nil, fmt.Errorf("%w: %s size[%d]=%d", ErrInvalidDescriptor, name, i, s)
		}
		if strides[i] < 1 {
			return nil, fmt.Errorf("%w: %s stride[%d]=%d", ErrInvalidDescriptor, name, i, strides[i])
		}
		d.totalLogical *= s
	}

	last := len(sizes) - 1
	d.totalAllocated = sizes[last] * strides[last]
	if d.totalLogical == 0 {
		d.totalAllocated = 0
	}

	// Every dimension above the fastest must start past the previous one's extent.
	extent := 1
	for i := 0; i < len(sizes); i++ {
		if i > 0 && sizes[i] > 1 && strides[i] < extent {
			return nil, fmt.Errorf("%w: %s stride[%d]=%d overlaps lower dimensions (extent %d)",
				ErrInvalidDescriptor, name, i, strides[i], extent)
		}
		if sizes[i] > 0 {
			extent = (sizes[i]-1)*strides[i] + extent
		}
	}
	if d.totalAllocated < d.totalLogical {
		return nil, fmt.Errorf("%w: %s allocates %d elements for %d logical elements",
			ErrInvalidDescriptor, name, d.totalAllocated, d.totalLogical)
	}
	return d, nil
}

func (d *Descriptor) Name() string       { return d.name }
func (d *Descriptor) DataType() DataType { return d.dataType }
func (d *Descriptor) Dimensions() int    { return len(d.sizes) }
func (d *Descriptor) Sizes() []int       { return d.sizes }
func (d *Descriptor) Strides() []int     { return d.strides }

func (d *Descriptor) TotalLogicalElements() int   { return d.totalLogical }
func (d *Descriptor) TotalAllocatedElements() int { return d.totalAllocated }

func (d *Descriptor) ElementBytes() int { return d.dataType.ElementSize() }

func (d *Descriptor) TotalAllocatedBytes() int {
	return d.totalAllocated * d.dataType.ElementSize()
}

// Index converts a coordinate into a linear element offset.
func (d *Descriptor) Index(coord []int) int {
	idx := 0
	for i, c := range coord {
		idx += c * d.strides[i]
	}
	return idx
}

// RowExtent is the number of elements spanned by one run of the fastest dimension.
func (d *Descriptor) RowExtent() int {
	if d.sizes[0] == 0 {
		return 0
	}
	return (d.sizes[0]-1)*d.strides[0] + 1
}

func (d *Descriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s, sizes=%v, strides=%v, elements=%d/%d)",
		d.name, d.dataType, d.sizes, d.strides, d.totalLogical, d.totalAllocated)
	return b.String()
}

// CoordNumbered decomposes num into a mixed-radix coordinate over sizes,
// lowest dimension varying fastest. coord must have len(sizes) entries.
func CoordNumbered(num int, coord, sizes []int) {
	for i, s := range sizes {
		if s == 0 {
			coord[i] = 0
			continue
		}
		coord[i] = num % s
		num /= s
	}
}

// CoordCount is the number of coordinates spanned by sizes.
func CoordCount(sizes []int) int {
	n := 1
	for _, s := range sizes {
		n *= s
	}
	return n
}

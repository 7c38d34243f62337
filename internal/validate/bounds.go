package validate

import "github.com/23skdu/longbow-verdict/internal/device"

// copyWindow says which part of a managed D allocation is read back and
// how it splits into guard and data regions, all in elements.
type copyWindow struct {
	offset int
	count  int
	before int
	after  int
}

// planCopy lays out the read-back of a result whose managed allocation
// holds managed elements, with the tensor (allocated elements) starting
// dataOffset elements in.
func planCopy(mode device.BoundsCheckMode, allocated, managed, dataOffset int) copyWindow {
	switch mode {
	case device.BoundsCheckNaN:
		return copyWindow{
			count:  managed,
			before: dataOffset,
			after:  managed - (allocated + dataOffset),
		}
	case device.BoundsCheckGuardPageBack:
		return copyWindow{offset: managed - allocated, count: allocated}
	}
	return copyWindow{count: allocated}
}

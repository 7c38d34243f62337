package datainit

import (
	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/problem"
)

// Inputs are the buffers one contraction reads and writes. D is the managed
// allocation of DElements elements including any guard region. The tensor
// data spans DAllocated elements starting DOffset elements in.
type Inputs struct {
	Signature problem.TypeSignature

	A, B, C, D *device.Buffer

	DOffset    int
	DElements  int
	DAllocated int

	Alpha, Beta complex128

	// GPU is set when the buffers live on the device.
	GPU bool
}

// DData returns the bytes of D's tensor data, without guards.
func (in *Inputs) DData() []byte {
	elem := in.Signature.D.ElementSize()
	full := in.D.Bytes()
	start := in.DOffset * elem
	return full[start : start+in.DAllocated*elem]
}

// SharesCD reports whether C and D are the same buffer.
func (in *Inputs) SharesCD() bool {
	return in.C == in.D
}

// Free releases every buffer once.
func (in *Inputs) Free() {
	seen := map[*device.Buffer]bool{}
	for _, b := range []*device.Buffer{in.A, in.B, in.C, in.D} {
		if b == nil || seen[b] {
			continue
		}
		seen[b] = true
		b.Free()
	}
}

// Package numeric describes how each supported element kind is compared,
// converted, initialized and printed.
package numeric

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"unsafe"

	"github.com/23skdu/longbow-verdict/internal/tensor"
	bfloat16 "github.com/d4l3k/go-bfloat16"
)

// Kind carries the per-element behaviour for one concrete element type.
type Kind[T any] interface {
	DataType() tensor.DataType
	Zero() T
	// Sentinel is the value written into guard regions and unwritten outputs.
	Sentinel() T
	IsSentinel(v T) bool
	// Equal is the pointwise acceptance policy for a result against its reference.
	Equal(ref, got T) bool
	FromComplex(c complex128) T
	ToComplex(v T) complex128
	// Product multiplies two operands, summing lanes for packed kinds.
	Product(a, b T) complex128
	Random(r *rand.Rand) T
	Format(v T) string
}

// Int8x4 packs four signed bytes that contract as a single dot product.
type Int8x4 [4]int8

// BFloat16 holds the upper half of an IEEE float32.
type BFloat16 uint16

func (b BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

func BFloat16FromFloat32(f float32) BFloat16 {
	enc := bfloat16.EncodeFloat32([]float32{f})
	return BFloat16(binary.LittleEndian.Uint16(enc))
}

// View reinterprets a byte buffer as a slice of T. The buffer must be
// suitably aligned, which device and staging allocations guarantee.
func View[T any](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b) < size || size == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/size)
}

// AlignedBytes allocates n bytes aligned for any supported element kind.
func AlignedBytes(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}

func smallInt(r *rand.Rand) int {
	return r.IntN(7) - 3
}

func almostEqual(a, b, rel, abs float64) bool {
	if a == b {
		return true
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	diff := math.Abs(a - b)
	if diff <= abs {
		return true
	}
	return diff <= rel*math.Max(math.Abs(a), math.Abs(b))
}

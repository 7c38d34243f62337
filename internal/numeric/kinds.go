package numeric

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/23skdu/longbow-verdict/internal/tensor"
	"github.com/x448/float16"
)

// Relative tolerances used by Equal for floating kinds.
const (
	float32Tolerance  = 1e-5
	float64Tolerance  = 1e-10
	halfTolerance     = 1e-2
	bfloat16Tolerance = 5e-2
)

var (
	Float32    Kind[float32]         = float32Kind{}
	Float64    Kind[float64]         = float64Kind{}
	Complex64  Kind[complex64]       = complex64Kind{}
	Complex128 Kind[complex128]      = complex128Kind{}
	Half       Kind[float16.Float16] = halfKind{}
	BF16       Kind[BFloat16]        = bfloat16Kind{}
	Int8       Kind[int8]            = int8Kind{}
	Int32      Kind[int32]           = int32Kind{}
	Packed8x4  Kind[Int8x4]          = int8x4Kind{}
)

type float32Kind struct{}

func (float32Kind) DataType() tensor.DataType { return tensor.Float }
func (float32Kind) Zero() float32             { return 0 }
func (float32Kind) Sentinel() float32         { return float32(math.NaN()) }
func (float32Kind) IsSentinel(v float32) bool { return v != v }
func (float32Kind) Equal(ref, got float32) bool {
	return almostEqual(float64(ref), float64(got), float32Tolerance, 0)
}
func (float32Kind) FromComplex(c complex128) float32 { return float32(real(c)) }
func (float32Kind) ToComplex(v float32) complex128   { return complex(float64(v), 0) }
func (float32Kind) Product(a, b float32) complex128 {
	return complex(float64(a)*float64(b), 0)
}
func (float32Kind) Random(r *rand.Rand) float32 { return float32(smallInt(r)) }
func (float32Kind) Format(v float32) string     { return fmt.Sprintf("%g", v) }

type float64Kind struct{}

func (float64Kind) DataType() tensor.DataType { return tensor.Double }
func (float64Kind) Zero() float64             { return 0 }
func (float64Kind) Sentinel() float64         { return math.NaN() }
func (float64Kind) IsSentinel(v float64) bool { return math.IsNaN(v) }
func (float64Kind) Equal(ref, got float64) bool {
	return almostEqual(ref, got, float64Tolerance, 0)
}
func (float64Kind) FromComplex(c complex128) float64 { return real(c) }
func (float64Kind) ToComplex(v float64) complex128   { return complex(v, 0) }
func (float64Kind) Product(a, b float64) complex128  { return complex(a*b, 0) }
func (float64Kind) Random(r *rand.Rand) float64      { return float64(smallInt(r)) }
func (float64Kind) Format(v float64) string          { return fmt.Sprintf("%g", v) }

type complex64Kind struct{}

func (complex64Kind) DataType() tensor.DataType { return tensor.ComplexFloat }
func (complex64Kind) Zero() complex64           { return 0 }
func (complex64Kind) Sentinel() complex64 {
	nan := float32(math.NaN())
	return complex(nan, nan)
}
func (complex64Kind) IsSentinel(v complex64) bool {
	return real(v) != real(v) || imag(v) != imag(v)
}
func (complex64Kind) Equal(ref, got complex64) bool {
	return almostEqual(float64(real(ref)), float64(real(got)), float32Tolerance, 0) &&
		almostEqual(float64(imag(ref)), float64(imag(got)), float32Tolerance, 0)
}
func (complex64Kind) FromComplex(c complex128) complex64 { return complex64(c) }
func (complex64Kind) ToComplex(v complex64) complex128   { return complex128(v) }
func (complex64Kind) Product(a, b complex64) complex128 {
	return complex128(a) * complex128(b)
}
func (complex64Kind) Random(r *rand.Rand) complex64 {
	return complex(float32(smallInt(r)), float32(smallInt(r)))
}
func (complex64Kind) Format(v complex64) string {
	return fmt.Sprintf("(%g,%g)", real(v), imag(v))
}

type complex128Kind struct{}

func (complex128Kind) DataType() tensor.DataType { return tensor.ComplexDouble }
func (complex128Kind) Zero() complex128          { return 0 }
func (complex128Kind) Sentinel() complex128      { return complex(math.NaN(), math.NaN()) }
func (complex128Kind) IsSentinel(v complex128) bool {
	return math.IsNaN(real(v)) || math.IsNaN(imag(v))
}
func (complex128Kind) Equal(ref, got complex128) bool {
	return almostEqual(real(ref), real(got), float64Tolerance, 0) &&
		almostEqual(imag(ref), imag(got), float64Tolerance, 0)
}
func (complex128Kind) FromComplex(c complex128) complex128 { return c }
func (complex128Kind) ToComplex(v complex128) complex128   { return v }
func (complex128Kind) Product(a, b complex128) complex128  { return a * b }
func (complex128Kind) Random(r *rand.Rand) complex128 {
	return complex(float64(smallInt(r)), float64(smallInt(r)))
}
func (complex128Kind) Format(v complex128) string {
	return fmt.Sprintf("(%g,%g)", real(v), imag(v))
}

type halfKind struct{}

func (halfKind) DataType() tensor.DataType         { return tensor.Half }
func (halfKind) Zero() float16.Float16             { return float16.Fromfloat32(0) }
func (halfKind) Sentinel() float16.Float16         { return float16.NaN() }
func (halfKind) IsSentinel(v float16.Float16) bool { return v.IsNaN() }
func (halfKind) Equal(ref, got float16.Float16) bool {
	return almostEqual(float64(ref.Float32()), float64(got.Float32()), halfTolerance, 0)
}
func (halfKind) FromComplex(c complex128) float16.Float16 {
	return float16.Fromfloat32(float32(real(c)))
}
func (halfKind) ToComplex(v float16.Float16) complex128 {
	return complex(float64(v.Float32()), 0)
}
func (halfKind) Product(a, b float16.Float16) complex128 {
	return complex(float64(a.Float32())*float64(b.Float32()), 0)
}
func (halfKind) Random(r *rand.Rand) float16.Float16 {
	return float16.Fromfloat32(float32(smallInt(r)))
}
func (halfKind) Format(v float16.Float16) string { return fmt.Sprintf("%g", v.Float32()) }

type bfloat16Kind struct{}

func (bfloat16Kind) DataType() tensor.DataType { return tensor.BFloat16 }
func (bfloat16Kind) Zero() BFloat16            { return 0 }
func (bfloat16Kind) Sentinel() BFloat16        { return BFloat16FromFloat32(float32(math.NaN())) }
func (bfloat16Kind) IsSentinel(v BFloat16) bool {
	f := v.Float32()
	return f != f
}
func (bfloat16Kind) Equal(ref, got BFloat16) bool {
	return almostEqual(float64(ref.Float32()), float64(got.Float32()), bfloat16Tolerance, 0)
}
func (bfloat16Kind) FromComplex(c complex128) BFloat16 {
	return BFloat16FromFloat32(float32(real(c)))
}
func (bfloat16Kind) ToComplex(v BFloat16) complex128 {
	return complex(float64(v.Float32()), 0)
}
func (bfloat16Kind) Product(a, b BFloat16) complex128 {
	return complex(float64(a.Float32())*float64(b.Float32()), 0)
}
func (bfloat16Kind) Random(r *rand.Rand) BFloat16 {
	return BFloat16FromFloat32(float32(smallInt(r)))
}
func (bfloat16Kind) Format(v BFloat16) string { return fmt.Sprintf("%g", v.Float32()) }

type int8Kind struct{}

func (int8Kind) DataType() tensor.DataType { return tensor.Int8 }
func (int8Kind) Zero() int8                { return 0 }
func (int8Kind) Sentinel() int8            { return math.MaxInt8 }
func (int8Kind) IsSentinel(v int8) bool    { return v == math.MaxInt8 }
func (int8Kind) Equal(ref, got int8) bool  { return ref == got }
func (int8Kind) FromComplex(c complex128) int8 {
	return int8(clampRound(real(c), math.MinInt8, math.MaxInt8))
}
func (int8Kind) ToComplex(v int8) complex128  { return complex(float64(v), 0) }
func (int8Kind) Product(a, b int8) complex128 { return complex(float64(int32(a)*int32(b)), 0) }
func (int8Kind) Random(r *rand.Rand) int8     { return int8(smallInt(r)) }
func (int8Kind) Format(v int8) string         { return fmt.Sprintf("%d", v) }

type int32Kind struct{}

func (int32Kind) DataType() tensor.DataType { return tensor.Int32 }
func (int32Kind) Zero() int32               { return 0 }
func (int32Kind) Sentinel() int32           { return math.MaxInt32 }
func (int32Kind) IsSentinel(v int32) bool   { return v == math.MaxInt32 }
func (int32Kind) Equal(ref, got int32) bool { return ref == got }
func (int32Kind) FromComplex(c complex128) int32 {
	return int32(clampRound(real(c), math.MinInt32, math.MaxInt32))
}
func (int32Kind) ToComplex(v int32) complex128  { return complex(float64(v), 0) }
func (int32Kind) Product(a, b int32) complex128 { return complex(float64(a)*float64(b), 0) }
func (int32Kind) Random(r *rand.Rand) int32     { return int32(smallInt(r)) }
func (int32Kind) Format(v int32) string         { return fmt.Sprintf("%d", v) }

type int8x4Kind struct{}

func (int8x4Kind) DataType() tensor.DataType { return tensor.Int8x4 }
func (int8x4Kind) Zero() Int8x4              { return Int8x4{} }
func (int8x4Kind) Sentinel() Int8x4 {
	return Int8x4{math.MaxInt8, math.MaxInt8, math.MaxInt8, math.MaxInt8}
}
func (k int8x4Kind) IsSentinel(v Int8x4) bool { return v == k.Sentinel() }
func (int8x4Kind) Equal(ref, got Int8x4) bool { return ref == got }

// FromComplex broadcasts the value into every lane.
func (int8x4Kind) FromComplex(c complex128) Int8x4 {
	v := int8(clampRound(real(c), math.MinInt8, math.MaxInt8))
	return Int8x4{v, v, v, v}
}

// ToComplex sums the lanes, which is what a dot against all ones yields.
func (int8x4Kind) ToComplex(v Int8x4) complex128 {
	var s int32
	for _, l := range v {
		s += int32(l)
	}
	return complex(float64(s), 0)
}
func (int8x4Kind) Product(a, b Int8x4) complex128 {
	var s int32
	for i := range a {
		s += int32(a[i]) * int32(b[i])
	}
	return complex(float64(s), 0)
}
func (int8x4Kind) Random(r *rand.Rand) Int8x4 {
	return Int8x4{int8(smallInt(r)), int8(smallInt(r)), int8(smallInt(r)), int8(smallInt(r))}
}
func (int8x4Kind) Format(v Int8x4) string {
	return fmt.Sprintf("[%d %d %d %d]", v[0], v[1], v[2], v[3])
}

func clampRound(f, lo, hi float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Round(f)
	return math.Max(lo, math.Min(hi, f))
}

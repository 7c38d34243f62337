package numeric

import (
	"fmt"
	"math/rand/v2"

	"github.com/23skdu/longbow-verdict/internal/tensor"
	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Accessor reads and writes elements of raw byte buffers without the caller
// knowing the element type. Element indices are in elements, not bytes.
type Accessor interface {
	DataType() tensor.DataType
	Load(buf []byte, i int) complex128
	Store(buf []byte, i int, v complex128)
	Product(a []byte, i int, b []byte, j int) complex128
	IsSentinel(buf []byte, i int) bool
	FillSentinel(buf []byte)
	Format(buf []byte, i int) string
}

type accessor[T any] struct {
	k Kind[T]
}

func (a accessor[T]) DataType() tensor.DataType { return a.k.DataType() }

func (a accessor[T]) Load(buf []byte, i int) complex128 {
	return a.k.ToComplex(View[T](buf)[i])
}

func (a accessor[T]) Store(buf []byte, i int, v complex128) {
	View[T](buf)[i] = a.k.FromComplex(v)
}

func (a accessor[T]) Product(x []byte, i int, y []byte, j int) complex128 {
	return a.k.Product(View[T](x)[i], View[T](y)[j])
}

func (a accessor[T]) IsSentinel(buf []byte, i int) bool {
	return a.k.IsSentinel(View[T](buf)[i])
}

func (a accessor[T]) FillSentinel(buf []byte) {
	s := a.k.Sentinel()
	vals := View[T](buf)
	for i := range vals {
		vals[i] = s
	}
}

func (a accessor[T]) Format(buf []byte, i int) string {
	return a.k.Format(View[T](buf)[i])
}

func fillRandom[T any](k Kind[T], buf []byte, r *rand.Rand) {
	vals := View[T](buf)
	for i := range vals {
		vals[i] = k.Random(r)
	}
}

// AccessorFor returns the accessor for dt.
func AccessorFor(dt tensor.DataType) (Accessor, error) {
	switch dt {
	case tensor.Float:
		return accessor[float32]{Float32}, nil
	case tensor.Double:
		return accessor[float64]{Float64}, nil
	case tensor.ComplexFloat:
		return accessor[complex64]{Complex64}, nil
	case tensor.ComplexDouble:
		return accessor[complex128]{Complex128}, nil
	case tensor.Half:
		return accessor[float16.Float16]{Half}, nil
	case tensor.BFloat16:
		return accessor[BFloat16]{BF16}, nil
	case tensor.Int8:
		return accessor[int8]{Int8}, nil
	case tensor.Int32:
		return accessor[int32]{Int32}, nil
	case tensor.Int8x4:
		return accessor[Int8x4]{Packed8x4}, nil
	}
	return nil, fmt.Errorf("no accessor for data type %v", dt)
}

// FillRandom writes small integer values into every element of buf.
// BFloat16 buffers are encoded in bulk from float32 values.
func FillRandom(dt tensor.DataType, buf []byte, r *rand.Rand) error {
	switch dt {
	case tensor.Float:
		fillRandom(Float32, buf, r)
	case tensor.Double:
		fillRandom(Float64, buf, r)
	case tensor.ComplexFloat:
		fillRandom(Complex64, buf, r)
	case tensor.ComplexDouble:
		fillRandom(Complex128, buf, r)
	case tensor.Half:
		fillRandom(Half, buf, r)
	case tensor.BFloat16:
		vals := make([]float32, len(buf)/2)
		for i := range vals {
			vals[i] = float32(smallInt(r))
		}
		copy(buf, bfloat16.EncodeFloat32(vals))
	case tensor.Int8:
		fillRandom(Int8, buf, r)
	case tensor.Int32:
		fillRandom(Int32, buf, r)
	case tensor.Int8x4:
		fillRandom(Packed8x4, buf, r)
	default:
		return fmt.Errorf("cannot initialize data type %v", dt)
	}
	return nil
}

// FormatElements renders the first n elements of buf as strings.
func FormatElements(dt tensor.DataType, buf []byte, n int) ([]string, error) {
	if dt == tensor.BFloat16 {
		vals := bfloat16.DecodeFloat32(buf[:2*n])
		out := make([]string, n)
		for i, v := range vals {
			out[i] = fmt.Sprintf("%g", v)
		}
		return out, nil
	}
	acc, err := AccessorFor(dt)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i] = acc.Format(buf, i)
	}
	return out, nil
}

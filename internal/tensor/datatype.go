package tensor

import (
	"fmt"
	"strings"
)

// DataType identifies the element kind stored in a tensor.
type DataType int

const (
	None DataType = iota
	Float
	Double
	ComplexFloat
	ComplexDouble
	Half
	Int8x4
	Int32
	BFloat16
	Int8
)

var dataTypeAbbrev = map[DataType]string{
	None:          "None",
	Float:         "S",
	Double:        "D",
	ComplexFloat:  "C",
	ComplexDouble: "Z",
	Half:          "H",
	Int8x4:        "4xi8",
	Int32:         "I",
	BFloat16:      "B",
	Int8:          "I8",
}

var dataTypeSize = map[DataType]int{
	Float:         4,
	Double:        8,
	ComplexFloat:  8,
	ComplexDouble: 16,
	Half:          2,
	Int8x4:        4,
	Int32:         4,
	BFloat16:      2,
	Int8:          1,
}

func (d DataType) String() string {
	if s, ok := dataTypeAbbrev[d]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// ElementSize returns the size of one element in bytes, or 0 for None.
func (d DataType) ElementSize() int {
	return dataTypeSize[d]
}

// IsFloating reports whether the kind carries a NaN sentinel.
func (d DataType) IsFloating() bool {
	switch d {
	case Float, Double, ComplexFloat, ComplexDouble, Half, BFloat16:
		return true
	}
	return false
}

// IsComplex reports whether the kind has an imaginary component.
func (d DataType) IsComplex() bool {
	return d == ComplexFloat || d == ComplexDouble
}

// ParseDataType accepts the short abbreviations (S, D, H, 4xi8, ...) as well as
// long names such as "float" or "bfloat16".
func ParseDataType(s string) (DataType, error) {
	key := strings.TrimSpace(s)
	for dt, abbrev := range dataTypeAbbrev {
		if strings.EqualFold(abbrev, key) {
			return dt, nil
		}
	}
	switch strings.ToLower(key) {
	case "", "none":
		return None, nil
	case "float", "float32", "single":
		return Float, nil
	case "double", "float64":
		return Double, nil
	case "complexfloat", "complex64":
		return ComplexFloat, nil
	case "complexdouble", "complex128":
		return ComplexDouble, nil
	case "half", "float16", "fp16":
		return Half, nil
	case "int8x4", "i8x4":
		return Int8x4, nil
	case "int32", "i32":
		return Int32, nil
	case "bfloat16", "bf16":
		return BFloat16, nil
	case "int8":
		return Int8, nil
	}
	return None, fmt.Errorf("unknown data type %q", s)
}

package problem

import (
	"fmt"
	"strings"

	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// TypeSignature is the six element kinds that select a typed comparison path.
type TypeSignature struct {
	A, B, C, D  tensor.DataType
	Alpha, Beta tensor.DataType
}

// ResolveScalars fills unset alpha/beta kinds. Alpha falls back to Float for
// BFloat16 inputs and to the D kind otherwise; beta follows alpha.
func (s TypeSignature) ResolveScalars() TypeSignature {
	if s.Alpha == tensor.None {
		if s.A == tensor.BFloat16 {
			s.Alpha = tensor.Float
		} else {
			s.Alpha = s.D
		}
	}
	if s.Beta == tensor.None {
		s.Beta = s.Alpha
	}
	return s
}

// String renders the short form used on the command line: "S" when every
// kind matches, otherwise "A_C_Alpha" (e.g. "H_S_S"), with the full tuple
// when that is ambiguous.
func (s TypeSignature) String() string {
	if s.A == s.B && s.B == s.C && s.C == s.D && s.D == s.Alpha && s.Alpha == s.Beta {
		return s.A.String()
	}
	if s.A == s.B && s.C == s.D && s.Alpha == s.Beta {
		return fmt.Sprintf("%s_%s_%s", s.A, s.C, s.Alpha)
	}
	return fmt.Sprintf("%s_%s_%s_%s_%s_%s", s.A, s.B, s.C, s.D, s.Alpha, s.Beta)
}

// ParseSignature accepts one kind ("S"), the three-part form ("H_H_S",
// "4xi8_I_I") or the full six-part tuple.
func ParseSignature(text string) (TypeSignature, error) {
	parts := strings.Split(text, "_")
	kinds := make([]tensor.DataType, len(parts))
	for i, p := range parts {
		dt, err := tensor.ParseDataType(p)
		if err != nil {
			return TypeSignature{}, fmt.Errorf("parse signature %q: %w", text, err)
		}
		kinds[i] = dt
	}

	switch len(kinds) {
	case 1:
		k := kinds[0]
		return TypeSignature{A: k, B: k, C: k, D: k, Alpha: k, Beta: k}, nil
	case 3:
		return TypeSignature{A: kinds[0], B: kinds[0], C: kinds[1], D: kinds[1], Alpha: kinds[2], Beta: kinds[2]}, nil
	case 6:
		return TypeSignature{A: kinds[0], B: kinds[1], C: kinds[2], D: kinds[3], Alpha: kinds[4], Beta: kinds[5]}, nil
	}
	return TypeSignature{}, fmt.Errorf("parse signature %q: expected 1, 3 or 6 kinds, got %d", text, len(kinds))
}

package validate

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/numeric"
	"github.com/23skdu/longbow-verdict/internal/problem"
)

// ErrUnsupportedDataType is returned for a type signature with no compiled
// comparison path.
var ErrUnsupportedDataType = errors.New("unsupported data type combination")

type UnsupportedTypeError struct {
	Signature problem.TypeSignature
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnsupportedDataType, e.Signature)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedDataType }

// checkFunc validates one result against the reference for a fixed D kind.
type checkFunc func(v *Validator, result *datainit.Inputs) error

var (
	dispatchMu sync.RWMutex
	dispatch   = map[problem.TypeSignature]checkFunc{}
)

// register adds the typed path for the short signature text. Called from
// init functions only.
func register[T any](text string, kind numeric.Kind[T]) {
	sig, err := problem.ParseSignature(text)
	if err != nil {
		panic(err)
	}
	dispatchMu.Lock()
	defer dispatchMu.Unlock()
	dispatch[sig] = func(v *Validator, result *datainit.Inputs) error {
		return validateTyped(v, kind, result)
	}
}

func init() {
	register("S", numeric.Float32)
	register("D", numeric.Float64)
	register("C", numeric.Complex64)
	register("Z", numeric.Complex128)
	register("I8_I_I", numeric.Int32)
	register("4xi8_I_I", numeric.Int32)
	register("I_I_I", numeric.Int32)
}

func lookup(sig problem.TypeSignature) (checkFunc, error) {
	dispatchMu.RLock()
	defer dispatchMu.RUnlock()
	fn, ok := dispatch[sig.ResolveScalars()]
	if !ok {
		return nil, &UnsupportedTypeError{Signature: sig}
	}
	return fn, nil
}

// Supported lists the registered signatures in their short form.
func Supported() []string {
	dispatchMu.RLock()
	defer dispatchMu.RUnlock()
	out := make([]string, 0, len(dispatch))
	for sig := range dispatch {
		out = append(out, sig.String())
	}
	sort.Strings(out)
	return out
}

// Package report records validation verdicts and renders tensors for
// diagnostics. Sink failures are returned to the caller and never retried.
package report

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/numeric"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// Result keys.
const (
	KeyValidation            = "Validation"
	KeyConvolutionValidation = "ConvolutionValidation"
)

// Reporter records verdicts and renders tensors for one run.
type Reporter interface {
	// SetContext labels subsequent records with the running problem and solution.
	SetContext(problem, solution string)
	Report(key, value string) error
	// LogTensor renders a tensor. data holds the allocated elements described
	// by desc; src is the buffer they were copied from, nil for host data.
	LogTensor(level zerolog.Level, label string, data []byte, desc *tensor.Descriptor, src *device.Buffer) error
	// Finalize flushes buffered records.
	Finalize() error
}

// Element is one logical tensor element read from storage.
type Element struct {
	Number int
	Index  int
	Value  complex128
	Text   string
}

// Elements walks desc in logical order and decodes every element of data.
func Elements(data []byte, desc *tensor.Descriptor, fn func(Element)) error {
	acc, err := numeric.AccessorFor(desc.DataType())
	if err != nil {
		return err
	}
	need := desc.TotalAllocatedBytes()
	if len(data) < need {
		return errors.New("tensor data shorter than its allocation")
	}
	coord := make([]int, desc.Dimensions())
	for n := 0; n < desc.TotalLogicalElements(); n++ {
		tensor.CoordNumbered(n, coord, desc.Sizes())
		idx := desc.Index(coord)
		fn(Element{Number: n, Index: idx, Value: acc.Load(data, idx), Text: acc.Format(data, idx)})
	}
	return nil
}

// Multi fans every call out to each reporter and joins their errors.
type Multi []Reporter

func (m Multi) SetContext(problem, solution string) {
	for _, r := range m {
		r.SetContext(problem, solution)
	}
}

func (m Multi) Report(key, value string) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Report(key, value))
	}
	return errors.Join(errs...)
}

func (m Multi) LogTensor(level zerolog.Level, label string, data []byte, desc *tensor.Descriptor, src *device.Buffer) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.LogTensor(level, label, data, desc, src))
	}
	return errors.Join(errs...)
}

func (m Multi) Finalize() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Finalize())
	}
	return errors.Join(errs...)
}

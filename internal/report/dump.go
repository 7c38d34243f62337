package report

import (
	"fmt"
	"os"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// TensorSchema is one row per logical element of a logged tensor.
var TensorSchema = arrow.NewSchema([]arrow.Field{
	{Name: "problem", Type: arrow.BinaryTypes.String},
	{Name: "solution", Type: arrow.BinaryTypes.String},
	{Name: "label", Type: arrow.BinaryTypes.String},
	{Name: "data_type", Type: arrow.BinaryTypes.String},
	{Name: "element", Type: arrow.PrimitiveTypes.Int64},
	{Name: "index", Type: arrow.PrimitiveTypes.Int64},
	{Name: "real", Type: arrow.PrimitiveTypes.Float64},
	{Name: "imag", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// TensorDump writes every logged tensor as a record batch to an Arrow IPC
// stream file. Verdicts are not recorded.
type TensorDump struct {
	mu                sync.Mutex
	path              string
	mem               memory.Allocator
	problem, solution string

	f *os.File
	w *ipc.Writer
}

func NewTensorDump(path string) *TensorDump {
	return &TensorDump{path: path, mem: memory.NewGoAllocator()}
}

func (d *TensorDump) SetContext(problem, solution string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.problem, d.solution = problem, solution
}

func (d *TensorDump) Report(key, value string) error { return nil }

func (d *TensorDump) LogTensor(level zerolog.Level, label string, data []byte, desc *tensor.Descriptor, src *device.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.w == nil {
		f, err := os.Create(d.path)
		if err != nil {
			return fmt.Errorf("create tensor dump: %w", err)
		}
		d.f = f
		d.w = ipc.NewWriter(f, ipc.WithSchema(TensorSchema), ipc.WithAllocator(d.mem))
	}

	b := array.NewRecordBuilder(d.mem, TensorSchema)
	defer b.Release()

	problem := b.Field(0).(*array.StringBuilder)
	solution := b.Field(1).(*array.StringBuilder)
	labels := b.Field(2).(*array.StringBuilder)
	kinds := b.Field(3).(*array.StringBuilder)
	elems := b.Field(4).(*array.Int64Builder)
	idx := b.Field(5).(*array.Int64Builder)
	re := b.Field(6).(*array.Float64Builder)
	im := b.Field(7).(*array.Float64Builder)

	err := Elements(data, desc, func(e Element) {
		problem.Append(d.problem)
		solution.Append(d.solution)
		labels.Append(label)
		kinds.Append(desc.DataType().String())
		elems.Append(int64(e.Number))
		idx.Append(int64(e.Index))
		re.Append(real(e.Value))
		im.Append(imag(e.Value))
	})
	if err != nil {
		return err
	}

	rec := b.NewRecord()
	defer rec.Release()
	if err := d.w.Write(rec); err != nil {
		return fmt.Errorf("write tensor %s: %w", label, err)
	}
	return nil
}

// Finalize closes the stream. Later tensors start a new file.
func (d *TensorDump) Finalize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w == nil {
		return nil
	}
	werr := d.w.Close()
	ferr := d.f.Close()
	d.w, d.f = nil, nil
	if werr != nil {
		return fmt.Errorf("close tensor dump: %w", werr)
	}
	if ferr != nil {
		return fmt.Errorf("close tensor dump: %w", ferr)
	}
	return nil
}

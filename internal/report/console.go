package report

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// Console writes verdicts and tensors to the process logger. Tensors are
// printed one fastest-dimension row per line.
type Console struct {
	problem, solution string
}

func NewConsole() *Console { return &Console{} }

func (c *Console) SetContext(problem, solution string) {
	c.problem, c.solution = problem, solution
}

func (c *Console) log() *logger.Logger {
	return logger.Log.With("problem", c.problem, "solution", c.solution)
}

func (c *Console) Report(key, value string) error {
	c.log().Info("result", "key", key, "value", value)
	return nil
}

func (c *Console) LogTensor(level zerolog.Level, label string, data []byte, desc *tensor.Descriptor, src *device.Buffer) error {
	if !logger.Log.Enabled(level) {
		return nil
	}
	l := c.log()
	from := "host"
	if src != nil {
		from = src.Name()
	}
	l.Log(level, "tensor", "label", label, "desc", desc.String(), "source", from)

	row := desc.Sizes()[0]
	var b strings.Builder
	start := 0
	err := Elements(data, desc, func(e Element) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Text)
		if (e.Number+1)%row == 0 {
			l.Log(level, label, "from", start, "values", "["+b.String()+"]")
			b.Reset()
			start = e.Number + 1
		}
	})
	return err
}

func (c *Console) Finalize() error { return nil }

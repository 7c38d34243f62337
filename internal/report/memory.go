package report

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

type Entry struct {
	Problem  string
	Solution string
	Key      string
	Value    string
}

type TensorEntry struct {
	Label  string
	Level  zerolog.Level
	Values []string
	Source *device.Buffer
}

// Memory keeps everything it is given.
type Memory struct {
	mu                sync.Mutex
	problem, solution string
	entries           []Entry
	tensors           []TensorEntry
	finalized         int

	// Err, when set, is returned from Report.
	Err error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) SetContext(problem, solution string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.problem, m.solution = problem, solution
}

func (m *Memory) Report(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = append(m.entries, Entry{Problem: m.problem, Solution: m.solution, Key: key, Value: value})
	return nil
}

func (m *Memory) LogTensor(level zerolog.Level, label string, data []byte, desc *tensor.Descriptor, src *device.Buffer) error {
	var values []string
	if err := Elements(data, desc, func(e Element) { values = append(values, e.Text) }); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tensors = append(m.tensors, TensorEntry{Label: label, Level: level, Values: values, Source: src})
	return nil
}

func (m *Memory) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized++
	return nil
}

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Values returns the reported values for key in order.
func (m *Memory) Values(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		if e.Key == key {
			out = append(out, e.Value)
		}
	}
	return out
}

func (m *Memory) Tensors() []TensorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TensorEntry(nil), m.tensors...)
}

// Labels returns the labels of logged tensors in order.
func (m *Memory) Labels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tensors))
	for i, t := range m.tensors {
		out[i] = t.Label
	}
	return out
}

func (m *Memory) Finalized() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

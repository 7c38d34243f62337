package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// VerdictSchema is the layout of records sent by FlightSink.
var VerdictSchema = arrow.NewSchema([]arrow.Field{
	{Name: "problem", Type: arrow.BinaryTypes.String},
	{Name: "solution", Type: arrow.BinaryTypes.String},
	{Name: "key", Type: arrow.BinaryTypes.String},
	{Name: "value", Type: arrow.BinaryTypes.String},
}, nil)

// VerdictPath is the flight descriptor path verdicts are put under.
var VerdictPath = []string{"verdicts"}

// PutStream is the client side of a DoPut call.
type PutStream interface {
	Send(*flight.FlightData) error
	CloseSend() error
	Recv() (*flight.PutResult, error)
}

// OpenFunc starts a DoPut call.
type OpenFunc func(ctx context.Context) (PutStream, error)

// FlightSink buffers verdicts and uploads them as one record batch over
// Arrow Flight when finalized.
type FlightSink struct {
	mu                sync.Mutex
	open              OpenFunc
	closer            io.Closer
	mem               memory.Allocator
	timeout           time.Duration
	problem, solution string
	rows              []Entry
}

func NewFlightSink(open OpenFunc) *FlightSink {
	return &FlightSink{
		open:    open,
		mem:     memory.NewGoAllocator(),
		timeout: 30 * time.Second,
	}
}

// DialFlight connects to a Flight server at addr (host:port) without
// transport security.
func DialFlight(addr string) (*FlightSink, error) {
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Flight client: %w", err)
	}
	s := NewFlightSink(func(ctx context.Context) (PutStream, error) {
		return client.DoPut(ctx)
	})
	s.closer = client
	return s, nil
}

func (s *FlightSink) SetContext(problem, solution string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problem, s.solution = problem, solution
}

func (s *FlightSink) Report(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Entry{Problem: s.problem, Solution: s.solution, Key: key, Value: value})
	return nil
}

func (s *FlightSink) LogTensor(zerolog.Level, string, []byte, *tensor.Descriptor, *device.Buffer) error {
	return nil
}

// Finalize sends the buffered verdicts and closes the connection.
func (s *FlightSink) Finalize() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.Flush(ctx)
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
		s.closer = nil
	}
	return err
}

// Flush uploads buffered verdicts in one DoPut call.
func (s *FlightSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	rows := s.rows
	s.rows = nil
	s.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	rec := s.record(rows)
	defer rec.Release()

	stream, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to create DoPut stream: %w", err)
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(VerdictSchema), ipc.WithAllocator(s.mem))
	w.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: VerdictPath})
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close DoPut stream: %w", err)
	}
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("DoPut: %w", err)
		}
	}

	logger.Log.Debug("sent verdicts", "rows", len(rows))
	return nil
}

func (s *FlightSink) record(rows []Entry) arrow.Record {
	b := array.NewRecordBuilder(s.mem, VerdictSchema)
	defer b.Release()
	for _, r := range rows {
		b.Field(0).(*array.StringBuilder).Append(r.Problem)
		b.Field(1).(*array.StringBuilder).Append(r.Solution)
		b.Field(2).(*array.StringBuilder).Append(r.Key)
		b.Field(3).(*array.StringBuilder).Append(r.Value)
	}
	return b.NewRecord()
}

package harness

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/numeric"
	"github.com/23skdu/longbow-verdict/internal/problem"
	"github.com/23skdu/longbow-verdict/internal/reference"
)

// Kernel is one candidate solution. Launch queues the computation of D on
// the device context and returns without waiting for it.
type Kernel interface {
	Name() string
	Launch(ctx *device.Context, p *problem.ContractionProblem, in *datainit.Inputs)
}

// Naive computes every element in one pass.
type Naive struct{}

func (Naive) Name() string { return "naive" }

func (Naive) Launch(ctx *device.Context, p *problem.ContractionProblem, in *datainit.Inputs) {
	ctx.Launch(func() error {
		return reference.SolveCPU(p, in, 1)
	})
}

// Tiled splits D into contiguous element ranges solved concurrently.
type Tiled struct {
	// Tiles defaults to GOMAXPROCS.
	Tiles int
}

func (Tiled) Name() string { return "tiled" }

func (t Tiled) Launch(ctx *device.Context, p *problem.ContractionProblem, in *datainit.Inputs) {
	ctx.Launch(func() error {
		tiles := t.Tiles
		if tiles <= 0 {
			tiles = runtime.GOMAXPROCS(0)
		}
		total := p.D().TotalLogicalElements()
		size := (total + tiles - 1) / tiles
		if size == 0 {
			return nil
		}

		var g errgroup.Group
		for first := 0; first < total; first += size {
			first, last := first, min(first+size, total)
			g.Go(func() error {
				return reference.SolveRange(p, in, first, last, 1)
			})
		}
		return g.Wait()
	})
}

// Overrun computes D correctly and then writes Extra elements past its end.
// Guard pages turn the stray write into a fault; sentinel guards record it.
type Overrun struct {
	Extra int
}

func (Overrun) Name() string { return "overrun" }

func (o Overrun) Launch(ctx *device.Context, p *problem.ContractionProblem, in *datainit.Inputs) {
	ctx.Launch(func() error {
		if err := reference.SolveCPU(p, in, 1); err != nil {
			return err
		}
		extra := max(o.Extra, 1)
		elem := p.D().ElementBytes()
		end := (in.DOffset + in.DAllocated) * elem
		span, err := in.D.Span(end, extra*elem)
		if err != nil {
			if errors.Is(err, device.ErrGuardPageFault) {
				return fmt.Errorf("kernel overrun: %w", err)
			}
			// Past an unguarded allocation the write is lost.
			return nil
		}
		for i := range span {
			span[i] = 0
		}
		return nil
	})
}

// Corrupt computes D and then perturbs the element at Index.
type Corrupt struct {
	Index int
}

func (Corrupt) Name() string { return "corrupt" }

func (c Corrupt) Launch(ctx *device.Context, p *problem.ContractionProblem, in *datainit.Inputs) {
	ctx.Launch(func() error {
		if err := reference.SolveCPU(p, in, 1); err != nil {
			return err
		}
		acc, err := numeric.AccessorFor(p.D().DataType())
		if err != nil {
			return err
		}
		d := in.DData()
		idx := c.Index % p.D().TotalAllocatedElements()
		acc.Store(d, idx, acc.Load(d, idx)+17)
		return nil
	})
}

// KernelByName resolves the kernels selectable from configuration.
func KernelByName(name string) (Kernel, error) {
	switch name {
	case "naive":
		return Naive{}, nil
	case "tiled":
		return Tiled{}, nil
	case "overrun":
		return Overrun{Extra: 1}, nil
	case "corrupt":
		return Corrupt{}, nil
	}
	return nil, fmt.Errorf("unknown solution %q", name)
}

// KernelNames lists the names accepted by KernelByName.
func KernelNames() []string {
	return []string{"naive", "tiled", "overrun", "corrupt"}
}

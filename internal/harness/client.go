// Package harness runs candidate kernels over a set of contraction problems
// and drives listeners, such as the validator, through each step.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/metrics"
	"github.com/23skdu/longbow-verdict/internal/problem"
)

// maxSolutionPasses bounds how often a listener may ask to rerun a solution.
const maxSolutionPasses = 4

// Listener receives the benchmark lifecycle callbacks.
type Listener interface {
	NeedMoreBenchmarkRuns() bool
	PreBenchmarkRun()
	PostBenchmarkRun()

	PreProblem(p *problem.ContractionProblem) error
	PostProblem()

	PreSolution(s problem.Solution)
	PostSolution() error
	NeedMoreRunsInSolution() bool

	NumWarmupRuns() int
	PreWarmup()
	PostWarmup()
	ValidateWarmups(result *datainit.Inputs) error

	FinalizeReport() error
}

// DataSource prepares the inputs kernels run on.
type DataSource interface {
	EnsureCPUInputs(p *problem.ContractionProblem) (*datainit.Inputs, error)
	PrepareGPUInputs(p *problem.ContractionProblem) (*datainit.Inputs, error)
}

type Options struct {
	Warmups    int
	Iterations int
}

// Timing is the measured performance of one solution on one problem.
type Timing struct {
	Problem   string
	Solution  string
	Mean      time.Duration
	GFlops    float64
	Completed int
}

// Client runs every kernel on every problem.
type Client struct {
	dev      *device.Context
	data     DataSource
	listener Listener
	problems []*problem.ContractionProblem
	kernels  []Kernel
	opts     Options
	log      *logger.Logger

	timings []Timing
}

func NewClient(dev *device.Context, data DataSource, listener Listener, problems []*problem.ContractionProblem, kernels []Kernel, opts Options) *Client {
	return &Client{
		dev:      dev,
		data:     data,
		listener: listener,
		problems: problems,
		kernels:  kernels,
		opts:     opts,
		log:      logger.Log.With("component", "harness"),
	}
}

// Run performs benchmark runs until the listener needs no more, then
// finalizes the report. The first error aborts the run; the report is
// finalized either way so verdicts already recorded are flushed.
func (c *Client) Run(ctx context.Context) error {
	err := c.runAll(ctx)
	if ferr := c.listener.FinalizeReport(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("finalize report: %w", ferr))
	}
	return err
}

func (c *Client) runAll(ctx context.Context) error {
	for run := 0; run == 0 || c.listener.NeedMoreBenchmarkRuns(); run++ {
		c.listener.PreBenchmarkRun()
		for _, p := range c.problems {
			if err := c.runProblem(ctx, p); err != nil {
				return err
			}
		}
		c.listener.PostBenchmarkRun()
	}
	return nil
}

// Timings returns the measurements of every completed solution.
func (c *Client) Timings() []Timing { return c.timings }

func (c *Client) runProblem(ctx context.Context, p *problem.ContractionProblem) error {
	if err := c.listener.PreProblem(p); err != nil {
		return fmt.Errorf("problem %s: %w", p, err)
	}
	if _, err := c.data.EnsureCPUInputs(p); err != nil {
		return fmt.Errorf("problem %s: %w", p, err)
	}
	c.log.Info("problem", "problem", p.String(), "signature", p.Signature().String())

	for i, k := range c.kernels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.runSolution(ctx, p, problem.Solution{Index: i, Name: k.Name()}, k); err != nil {
			return fmt.Errorf("problem %s solution %s: %w", p, k.Name(), err)
		}
	}
	c.listener.PostProblem()
	return nil
}

func (c *Client) runSolution(ctx context.Context, p *problem.ContractionProblem, s problem.Solution, k Kernel) error {
	c.listener.PreSolution(s)
	in, err := c.data.PrepareGPUInputs(p)
	if err != nil {
		return err
	}

	for pass := 0; pass == 0 || c.listener.NeedMoreRunsInSolution(); pass++ {
		if pass == maxSolutionPasses {
			return fmt.Errorf("listener still needs runs after %d passes", pass)
		}

		warmups := c.opts.Warmups + c.listener.NumWarmupRuns()
		c.listener.PreWarmup()
		for i := 0; i < warmups; i++ {
			k.Launch(c.dev, p, in)
		}
		c.listener.PostWarmup()
		if err := c.listener.ValidateWarmups(in); err != nil {
			return err
		}

		if err := c.timed(ctx, p, s, k, in); err != nil {
			return err
		}
	}
	return c.listener.PostSolution()
}

func (c *Client) timed(ctx context.Context, p *problem.ContractionProblem, s problem.Solution, k Kernel, in *datainit.Inputs) error {
	if err := c.dev.Synchronize(); err != nil {
		return err
	}
	if c.opts.Iterations <= 0 {
		return nil
	}

	start := time.Now()
	done := 0
	for ; done < c.opts.Iterations; done++ {
		if ctx.Err() != nil {
			break
		}
		k.Launch(c.dev, p, in)
	}
	if err := c.dev.Synchronize(); err != nil {
		return err
	}
	if done == 0 {
		return ctx.Err()
	}

	elapsed := time.Since(start)
	mean := elapsed / time.Duration(done)
	metrics.RecordKernelDuration(k.Name(), mean)

	t := Timing{Problem: p.String(), Solution: s.String(), Mean: mean, Completed: done}
	if mean > 0 {
		t.GFlops = p.Flops() / mean.Seconds() / 1e9
	}
	c.timings = append(c.timings, t)
	c.log.Info("timed solution",
		"solution", s.String(), "iterations", done,
		"mean_us", mean.Microseconds(), "gflops", t.GFlops)
	return ctx.Err()
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-verdict/internal/config"
	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/harness"
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/monitoring"
	"github.com/23skdu/longbow-verdict/internal/problem"
	"github.com/23skdu/longbow-verdict/internal/reference"
	"github.com/23skdu/longbow-verdict/internal/report"
	"github.com/23skdu/longbow-verdict/internal/validate"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Benchmark and validate the configured solutions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			failures, err := runValidation(cmd.Context(), activeCfg)
			if err != nil {
				return err
			}
			exitCode = min(failures, maxExitCode)
			return nil
		},
	}
}

// runValidation runs every configured solution on every problem and
// returns the number of failing verdicts.
func runValidation(ctx context.Context, cfg config.Config) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	gemms, err := cfg.Problems()
	if err != nil {
		return 0, err
	}
	problems := make([]*problem.ContractionProblem, 0, len(gemms))
	for _, g := range gemms {
		p, err := problem.NewContraction(g)
		if err != nil {
			return 0, err
		}
		problems = append(problems, p)
	}

	kernels := make([]harness.Kernel, 0, len(cfg.Bench.Solutions))
	for _, name := range cfg.Bench.Solutions {
		k, err := harness.KernelByName(name)
		if err != nil {
			return 0, err
		}
		kernels = append(kernels, k)
	}

	rep, stop, err := reporters(cfg.Report)
	if err != nil {
		return 0, err
	}
	defer stop()

	dev := device.NewContext()
	di := datainit.New(dev, datainit.Options{
		BoundsCheck:   cfg.BoundsCheckMode(),
		GuardElements: cfg.Init.GuardElements,
		Seed:          cfg.Init.Seed,
		Convolution:   cfg.Validation.ConvolutionVsContraction,
	})
	defer di.Release()

	v, err := validate.New(cfg.Validation, di, reference.CPU{}, rep, dev)
	if err != nil {
		return 0, err
	}

	client := harness.NewClient(dev, di, v, problems, kernels, harness.Options{
		Warmups:    cfg.Bench.Warmups,
		Iterations: cfg.Bench.Iterations,
	})
	if err := client.Run(ctx); err != nil {
		return v.ErrorCount(), err
	}

	logger.Log.Info("run complete",
		"problems", len(problems), "solutions", len(kernels), "failures", v.ErrorCount())
	return v.ErrorCount(), nil
}

// reporters builds the configured sinks. The returned stop function shuts
// down the health monitor, if one was started.
func reporters(cfg config.ReportConfig) (report.Reporter, func(), error) {
	multi := report.Multi{report.NewConsole()}
	stop := func() {}

	if cfg.TensorDumpPath != "" {
		multi = append(multi, report.NewTensorDump(cfg.TensorDumpPath))
	}
	if cfg.FlightAddr != "" {
		sink, err := report.DialFlight(cfg.FlightAddr)
		if err != nil {
			return nil, stop, fmt.Errorf("flight sink: %w", err)
		}
		multi = append(multi, sink)
	}
	if cfg.MetricsAddr != "" {
		hm := monitoring.NewHealthMonitor()
		if err := hm.Start(cfg.MetricsAddr); err != nil {
			return nil, stop, err
		}
		multi = append(multi, hm)
		stop = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hm.Stop(ctx)
		}
	}
	return multi, stop, nil
}

// Package validate checks kernel results against a host reference. The
// Validator follows the benchmark harness through problems and solutions
// and validates each solution at most once.
package validate

import (
	"errors"
	"fmt"

	"github.com/23skdu/longbow-verdict/internal/compare"
	"github.com/23skdu/longbow-verdict/internal/config"
	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/metrics"
	"github.com/23skdu/longbow-verdict/internal/problem"
	"github.com/23skdu/longbow-verdict/internal/report"
)

// Verdicts.
const (
	VerdictPassed     = "PASSED"
	VerdictFailed     = "FAILED"
	VerdictFailedConv = "FAILED_CONV"
	VerdictPassedConv = "PASSED_CONV"
	VerdictNoCheck    = "NO_CHECK"
)

// State is the validator's position in the problem/solution lifecycle.
type State int

const (
	Idle State = iota
	ReferenceReady
	AwaitingValidation
	Validated
	Reported
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ReferenceReady:
		return "reference-ready"
	case AwaitingValidation:
		return "awaiting-validation"
	case Validated:
		return "validated"
	case Reported:
		return "reported"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DataSource provides the host reference inputs and the guard layout of
// device outputs.
type DataSource interface {
	PrepareCPUInputs(p *problem.ContractionProblem) (*datainit.Inputs, error)
	CPUConvInputs() (*datainit.Inputs, error)
	CurrentBoundsCheck() device.BoundsCheckMode
}

// Solver fills reference outputs on the host.
type Solver interface {
	SolveCPU(p *problem.ContractionProblem, in *datainit.Inputs, stride int) error
	SolveConvolution(conv problem.ConvolutionProblem, p *problem.ContractionProblem, in *datainit.Inputs) error
}

// Outcome summarizes the last comparison pass.
type Outcome struct {
	Compared       int
	Mismatches     int
	FirstMismatch  *compare.Mismatch
	GuardChecked   int
	Before         int
	Inside         int
	After          int
	FirstViolation *compare.Violation
	Stride         int
}

// Failed reports whether any element or guard check failed.
func (o Outcome) Failed() bool {
	return o.Mismatches > 0 || o.Before+o.Inside+o.After > 0
}

// Validator checks each solution of a problem against a host reference.
type Validator struct {
	cfg      config.ValidationConfig
	enabled  bool
	printAny bool
	conv     problem.ConvolutionProblem

	data   DataSource
	solver Solver
	rep    report.Reporter
	ctx    *device.Context
	log    *logger.Logger

	staging StagingBuffer

	state     State
	runs      int
	problem   *problem.ContractionProblem
	solution  problem.Solution
	reference *datainit.Inputs
	check     checkFunc
	stride    int

	convFailed     bool
	solutionFailed bool
	errors         int
	outcome        Outcome
}

// New builds a validator. The convolution identifier is parsed only when
// the cross-check is enabled.
func New(cfg config.ValidationConfig, data DataSource, solver Solver, rep report.Reporter, ctx *device.Context) (*Validator, error) {
	v := &Validator{
		cfg:      cfg,
		enabled:  cfg.Enabled(),
		printAny: cfg.PrintAny(),
		data:     data,
		solver:   solver,
		rep:      rep,
		ctx:      ctx,
		log:      logger.Log.With("component", "validator"),
		stride:   1,
	}
	if cfg.ConvolutionVsContraction {
		conv, err := problem.ParseConvolution(cfg.ConvolutionIdentifier)
		if err != nil {
			return nil, fmt.Errorf("convolution cross-check: %w", err)
		}
		if err := conv.CheckLowering(); err != nil {
			return nil, fmt.Errorf("convolution cross-check: %w", err)
		}
		v.conv = conv
	}
	return v, nil
}

// NeedMoreBenchmarkRuns forces one benchmark run when validating.
func (v *Validator) NeedMoreBenchmarkRuns() bool {
	return v.enabled && v.runs == 0
}

func (v *Validator) PreBenchmarkRun() {}

func (v *Validator) PostBenchmarkRun() { v.runs++ }

// PreProblem computes the reference result for p. Unsupported type
// signatures are rejected here, before any solution runs.
func (v *Validator) PreProblem(p *problem.ContractionProblem) error {
	v.state = Idle
	v.problem = p
	v.reference = nil
	v.check = nil
	v.stride = 1
	v.convFailed = false
	v.rep.SetContext(p.String(), "")

	if !v.enabled {
		v.state = ReferenceReady
		return nil
	}

	check, err := lookup(p.Signature())
	if err != nil {
		metrics.RecordValidationError("pre_problem", "unsupported_type")
		return err
	}
	v.check = check

	ref, err := v.data.PrepareCPUInputs(p)
	if err != nil {
		metrics.RecordValidationError("pre_problem", "prepare_inputs")
		return fmt.Errorf("prepare reference inputs for %s: %w", p, err)
	}
	v.reference = ref

	d := p.D()
	v.stride = ValidationStride(v.cfg.NumElementsToValidate, d.TotalLogicalElements(), d.TotalAllocatedElements())
	metrics.RecordStride(v.stride)

	if err := v.solver.SolveCPU(p, ref, v.stride); err != nil {
		metrics.RecordValidationError("pre_problem", "reference_solve")
		return fmt.Errorf("reference solve for %s: %w", p, err)
	}

	if v.cfg.ConvolutionVsContraction {
		if err := v.crossCheckConvolution(p); err != nil {
			return err
		}
	}

	v.state = ReferenceReady
	return nil
}

func (v *Validator) crossCheckConvolution(p *problem.ContractionProblem) error {
	in, err := v.data.CPUConvInputs()
	if err != nil {
		return fmt.Errorf("convolution cross-check: %w", err)
	}
	if err := v.solver.SolveConvolution(v.conv, p, in); err != nil {
		metrics.RecordValidationError("pre_problem", "convolution_solve")
		return fmt.Errorf("convolution cross-check: %w", err)
	}

	failed, err := v.validate(in)
	if err != nil {
		return err
	}
	if v.cfg.DebugConvolutionTensors {
		if err := v.logConvolutionTensors(in); err != nil {
			return err
		}
	}
	v.convFailed = failed

	verdict := VerdictPassedConv
	if failed {
		verdict = VerdictFailedConv
	}
	v.log.Info(fmt.Sprintf("%s vs %s : %s", v.conv, p.OperationIdentifier(), verdict))
	metrics.RecordConvolutionVerdict(verdict)
	return v.rep.Report(report.KeyConvolutionValidation, verdict)
}

// PreSolution starts a new solution of the current problem.
func (v *Validator) PreSolution(s problem.Solution) {
	v.solution = s
	v.solutionFailed = false
	v.outcome = Outcome{}
	if v.state != Idle {
		v.state = AwaitingValidation
	}
	problemName := ""
	if v.problem != nil {
		problemName = v.problem.String()
	}
	v.rep.SetContext(problemName, s.String())
}

// NeedMoreRunsInSolution is true until the solution has been validated.
func (v *Validator) NeedMoreRunsInSolution() bool {
	return v.enabled && v.state == AwaitingValidation
}

// NumWarmupRuns asks for one warm-up run to produce data to check.
func (v *Validator) NumWarmupRuns() int {
	if v.NeedMoreRunsInSolution() {
		return 1
	}
	return 0
}

func (v *Validator) PreWarmup()  {}
func (v *Validator) PostWarmup() {}

// ValidateWarmups checks result against the reference the first time it is
// called for a solution; later calls do nothing. Before a reference is
// ready it does nothing either.
func (v *Validator) ValidateWarmups(result *datainit.Inputs) error {
	if !v.enabled {
		return nil
	}
	switch v.state {
	case Idle, ReferenceReady:
		v.log.Debug("no reference prepared, skipping validation", "solution", v.solution.String(), "state", v.state.String())
		return nil
	case Validated, Reported:
		return nil
	}

	failed, err := v.validate(result)
	if err != nil {
		return err
	}
	v.solutionFailed = failed
	v.state = Validated
	return nil
}

// PostSolution reports the verdict of the current solution.
func (v *Validator) PostSolution() error {
	if v.enabled && v.state != Validated {
		return nil
	}

	verdict := VerdictNoCheck
	if v.cfg.NumElementsToValidate != 0 {
		switch {
		case v.convFailed:
			verdict = VerdictFailedConv
		case v.solutionFailed:
			verdict = VerdictFailed
		default:
			verdict = VerdictPassed
		}
	}
	if verdict == VerdictFailed || verdict == VerdictFailedConv {
		v.errors++
	}
	v.solutionFailed = false
	if v.state == Validated {
		v.state = Reported
	}

	metrics.RecordVerdict(verdict)
	v.log.Info("solution verdict", "solution", v.solution.String(), "verdict", verdict)
	return v.rep.Report(report.KeyValidation, verdict)
}

func (v *Validator) PostProblem() {
	v.state = Idle
}

// FinalizeReport flushes the reporter.
func (v *Validator) FinalizeReport() error {
	return v.rep.Finalize()
}

// ErrorCount is the number of failing verdicts reported so far.
func (v *Validator) ErrorCount() int { return v.errors }

// LastOutcome describes the most recent comparison pass.
func (v *Validator) LastOutcome() Outcome { return v.outcome }

func (v *Validator) Stride() int { return v.stride }

func (v *Validator) State() State { return v.state }

// validate runs the typed comparison path for result and reports whether
// it failed.
func (v *Validator) validate(result *datainit.Inputs) (bool, error) {
	if v.check == nil {
		return false, &UnsupportedTypeError{Signature: result.Signature}
	}
	if err := v.check(v, result); err != nil {
		if errors.Is(err, device.ErrTransferFailed) {
			metrics.RecordValidationError("validate", "transfer")
		}
		return false, err
	}
	return v.outcome.Failed(), nil
}

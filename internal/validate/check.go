package validate

import (
	"time"

	"github.com/23skdu/longbow-verdict/internal/compare"
	"github.com/23skdu/longbow-verdict/internal/datainit"
	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/metrics"
	"github.com/23skdu/longbow-verdict/internal/numeric"
)

func validateTyped[T any](v *Validator, kind numeric.Kind[T], result *datainit.Inputs) error {
	if v.printAny {
		if err := v.printTensors(result); err != nil {
			return err
		}
	}
	if v.cfg.NumElementsToValidate == 0 {
		return nil
	}
	doPrint := v.cfg.PrintMax > 0
	valid := compare.NewPointwise(kind, v.cfg.PrintValids, v.cfg.PrintMax, doPrint, v.log)
	invalid := compare.NewInvalid(kind, v.cfg.PrintMax, doPrint, v.log)
	return checkResults(v, result, valid, invalid)
}

func copyKind(result *datainit.Inputs) device.CopyKind {
	if result.GPU {
		return device.DeviceToHost
	}
	return device.HostToHost
}

// checkResults copies D back through the staging buffer, scans its guard
// regions and compares the selected elements with the reference.
func checkResults[T any](v *Validator, result *datainit.Inputs, valid *compare.Pointwise[T], invalid *compare.Invalid[T]) error {
	start := time.Now()
	desc := v.problem.D()
	elem := desc.ElementBytes()
	allocated := desc.TotalAllocatedElements()
	mode := v.data.CurrentBoundsCheck()

	win := planCopy(mode, allocated, result.DElements, result.DOffset)
	n := win.count * elem
	v.staging.EnsureCapacity(n)
	buf := v.staging.View(n)
	if err := v.ctx.Memcpy(buf, result.D, win.offset*elem, n, copyKind(result)); err != nil {
		return err
	}

	whole := numeric.View[T](buf)
	data := whole[win.before : win.before+allocated]
	ref := numeric.View[T](v.reference.DData())

	checked := 0
	for i := 0; i < win.before; i++ {
		checked++
		invalid.Before(whole[i], i, win.before)
	}

	var gap GapFunc
	if mode == device.BoundsCheckNaN {
		gap = func(idx, next int) {
			checked++
			invalid.Inside(data[idx], idx, next)
		}
	}
	Walk(desc, v.stride, func(idx, num int) {
		valid.Compare(ref[idx], data[idx], idx, num)
	}, gap)

	after := whole[win.before+allocated:]
	for i := 0; i < win.after; i++ {
		checked++
		invalid.After(after[i], i, win.after)
	}

	if checked > 0 {
		v.log.Info("performed bounds check", "elements", checked, "before", win.before)
	}
	valid.Report()
	invalid.Report()

	o := Outcome{
		Compared:     valid.Compared(),
		Mismatches:   valid.Mismatches(),
		GuardChecked: checked,
		Before:       invalid.Violations(compare.Before),
		Inside:       invalid.Violations(compare.Inside),
		After:        invalid.Violations(compare.After),
		Stride:       v.stride,
	}
	if m, ok := valid.FirstMismatch(); ok {
		o.FirstMismatch = &m
	}
	if f, ok := invalid.FirstViolation(); ok {
		o.FirstViolation = &f
	}
	v.outcome = o

	metrics.RecordComparison(o.Compared, o.Mismatches, time.Since(start))
	metrics.RecordGuardScan(checked, o.Before, o.Inside, o.After)
	return nil
}

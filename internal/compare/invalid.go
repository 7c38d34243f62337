package compare

import (
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/numeric"
)

// Region is the part of the copied output a guard element belongs to.
type Region int

const (
	Before Region = iota
	Inside
	After
)

func (r Region) String() string {
	switch r {
	case Before:
		return "before"
	case Inside:
		return "inside"
	case After:
		return "after"
	}
	return "unknown"
}

// Violation is one guard element found without its sentinel.
type Violation struct {
	Region Region
	Index  int
	Value  string
}

// Invalid flags guard and padding elements that no longer hold the
// kind's sentinel value.
type Invalid[T any] struct {
	kind     numeric.Kind[T]
	printMax int
	doPrint  bool
	log      *logger.Logger

	checked    int
	violations [3]int
	printed    int
	first      *Violation
}

// NewInvalid builds a guard comparator that prints at most printMax
// violations when doPrint is set.
func NewInvalid[T any](kind numeric.Kind[T], printMax int, doPrint bool, log *logger.Logger) *Invalid[T] {
	if log == nil {
		log = logger.Log
	}
	return &Invalid[T]{kind: kind, printMax: printMax, doPrint: doPrint, log: log}
}

// Before checks element i of the n elements preceding the data.
func (c *Invalid[T]) Before(v T, i, n int) { c.check(Before, v, i, n) }

// Inside checks padding element i; next is the offset of the row that
// follows the gap.
func (c *Invalid[T]) Inside(v T, i, next int) { c.check(Inside, v, i, next) }

// After checks element i of the n elements following the data.
func (c *Invalid[T]) After(v T, i, n int) { c.check(After, v, i, n) }

func (c *Invalid[T]) check(r Region, v T, i, bound int) {
	c.checked++
	if c.kind.IsSentinel(v) {
		return
	}
	c.violations[r]++
	if c.first == nil {
		c.first = &Violation{Region: r, Index: i, Value: c.kind.Format(v)}
	}
	if c.doPrint && c.printed < c.printMax {
		c.printed++
		c.log.Warn("guard element overwritten",
			"region", r.String(), "index", i, "bound", bound, "value", c.kind.Format(v))
	}
}

func (c *Invalid[T]) Report() {
	if !c.doPrint || !c.Error() {
		return
	}
	c.log.Warn("bounds check failed",
		"before", c.violations[Before],
		"inside", c.violations[Inside],
		"after", c.violations[After],
		"checked", c.checked)
}

func (c *Invalid[T]) Error() bool { return c.Total() > 0 }

func (c *Invalid[T]) Checked() int { return c.checked }

// Violations returns the count for one region.
func (c *Invalid[T]) Violations(r Region) int { return c.violations[r] }

func (c *Invalid[T]) Total() int {
	return c.violations[Before] + c.violations[Inside] + c.violations[After]
}

func (c *Invalid[T]) FirstViolation() (Violation, bool) {
	if c.first == nil {
		return Violation{}, false
	}
	return *c.first, true
}

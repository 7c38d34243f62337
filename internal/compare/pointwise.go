// Package compare holds the two comparator roles used during validation:
// Pointwise checks result elements against the reference, Invalid checks
// guard and padding elements against the sentinel.
package compare

import (
	"github.com/23skdu/longbow-verdict/internal/logger"
	"github.com/23skdu/longbow-verdict/internal/numeric"
)

// Mismatch locates one element that differed from its reference.
type Mismatch struct {
	Index      int
	ElemNumber int
	Ref        string
	Got        string
}

// Pointwise compares result elements one at a time with the kind's
// equality policy.
type Pointwise[T any] struct {
	kind        numeric.Kind[T]
	printValids bool
	printMax    int
	doPrint     bool
	log         *logger.Logger

	compared   int
	mismatches int
	printed    int
	first      *Mismatch
}

// NewPointwise builds a comparator. Diagnostics are printed only when
// doPrint is set, at most printMax lines, and for matches too when
// printValids is set.
func NewPointwise[T any](kind numeric.Kind[T], printValids bool, printMax int, doPrint bool, log *logger.Logger) *Pointwise[T] {
	if log == nil {
		log = logger.Log
	}
	return &Pointwise[T]{
		kind:        kind,
		printValids: printValids,
		printMax:    printMax,
		doPrint:     doPrint,
		log:         log,
	}
}

// Compare checks one element. index is the offset into the tensor storage,
// elemNumber the logical element number.
func (p *Pointwise[T]) Compare(ref, got T, index, elemNumber int) {
	p.compared++
	match := p.kind.Equal(ref, got)
	if !match {
		p.mismatches++
		if p.first == nil {
			p.first = &Mismatch{
				Index:      index,
				ElemNumber: elemNumber,
				Ref:        p.kind.Format(ref),
				Got:        p.kind.Format(got),
			}
		}
	}

	if !p.doPrint || p.printed >= p.printMax || (match && !p.printValids) {
		return
	}
	p.printed++
	if match {
		p.log.Info("element matches",
			"index", index, "elem", elemNumber,
			"ref", p.kind.Format(ref), "got", p.kind.Format(got))
	} else {
		p.log.Warn("element mismatch",
			"index", index, "elem", elemNumber,
			"ref", p.kind.Format(ref), "got", p.kind.Format(got))
	}
}

// Report logs the totals of the pass.
func (p *Pointwise[T]) Report() {
	if !p.doPrint {
		return
	}
	if p.mismatches == 0 {
		p.log.Info("all compared elements match", "compared", p.compared)
		return
	}
	p.log.Warn("mismatched elements",
		"mismatches", p.mismatches, "compared", p.compared,
		"first_index", p.first.Index, "first_elem", p.first.ElemNumber)
	if p.printed >= p.printMax && p.mismatches > p.printed {
		p.log.Warn("mismatch output truncated", "print_max", p.printMax)
	}
}

func (p *Pointwise[T]) Error() bool { return p.mismatches > 0 }

func (p *Pointwise[T]) Compared() int   { return p.compared }
func (p *Pointwise[T]) Mismatches() int { return p.mismatches }

// FirstMismatch returns the earliest mismatch seen, if any.
func (p *Pointwise[T]) FirstMismatch() (Mismatch, bool) {
	if p.first == nil {
		return Mismatch{}, false
	}
	return *p.first, true
}

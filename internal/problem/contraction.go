package problem

import (
	"fmt"

	"github.com/23skdu/longbow-verdict/internal/tensor"
)

// GEMM describes a batched matrix multiply D = alpha*A*B + beta*C. Leading
// dimensions of zero mean packed; larger values add per-column padding.
type GEMM struct {
	M, N, K, Batch int

	Types TypeSignature

	Alpha, Beta float64

	LDA, LDB, LDC, LDD int
}

// ContractionProblem is a tensor contraction over free indices i, j, batch
// index l and bound index k:
//
//	D[i,j,l] = alpha * sum_k A[i,k,l]*B[k,j,l] + beta * C[i,j,l]
type ContractionProblem struct {
	a, b, c, d *tensor.Descriptor

	alphaType, betaType tensor.DataType
	alpha, beta         float64
}

// NewContraction builds the descriptors for g. Alpha/beta kinds left at
// tensor.None stay unset on the problem so Signature can resolve them.
func NewContraction(g GEMM) (*ContractionProblem, error) {
	if g.M <= 0 || g.N <= 0 || g.K <= 0 || g.Batch <= 0 {
		return nil, fmt.Errorf("invalid contraction sizes m=%d n=%d k=%d batch=%d", g.M, g.N, g.K, g.Batch)
	}

	lda := leading(g.LDA, g.M)
	ldb := leading(g.LDB, g.K)
	ldc := leading(g.LDC, g.M)
	ldd := leading(g.LDD, g.M)
	if lda < g.M || ldb < g.K || ldc < g.M || ldd < g.M {
		return nil, fmt.Errorf("leading dimensions lda=%d ldb=%d ldc=%d ldd=%d smaller than rows", lda, ldb, ldc, ldd)
	}

	a, err := tensor.NewStrided("a", g.Types.A, []int{g.M, g.K, g.Batch}, []int{1, lda, lda * g.K})
	if err != nil {
		return nil, err
	}
	b, err := tensor.NewStrided("b", g.Types.B, []int{g.K, g.N, g.Batch}, []int{1, ldb, ldb * g.N})
	if err != nil {
		return nil, err
	}
	c, err := tensor.NewStrided("c", g.Types.C, []int{g.M, g.N, g.Batch}, []int{1, ldc, ldc * g.N})
	if err != nil {
		return nil, err
	}
	d, err := tensor.NewStrided("d", g.Types.D, []int{g.M, g.N, g.Batch}, []int{1, ldd, ldd * g.N})
	if err != nil {
		return nil, err
	}

	return &ContractionProblem{
		a: a, b: b, c: c, d: d,
		alphaType: g.Types.Alpha,
		betaType:  g.Types.Beta,
		alpha:     g.Alpha,
		beta:      g.Beta,
	}, nil
}

func leading(ld, rows int) int {
	if ld == 0 {
		return rows
	}
	return ld
}

func (p *ContractionProblem) A() *tensor.Descriptor { return p.a }
func (p *ContractionProblem) B() *tensor.Descriptor { return p.b }
func (p *ContractionProblem) C() *tensor.Descriptor { return p.c }
func (p *ContractionProblem) D() *tensor.Descriptor { return p.d }

func (p *ContractionProblem) AlphaType() tensor.DataType { return p.alphaType }
func (p *ContractionProblem) BetaType() tensor.DataType  { return p.betaType }
func (p *ContractionProblem) Alpha() float64             { return p.alpha }
func (p *ContractionProblem) Beta() float64              { return p.beta }

// BoundSize is the length of the summed index k.
func (p *ContractionProblem) BoundSize() int { return p.a.Sizes()[1] }

// Signature returns the dispatch key with alpha/beta kinds resolved.
func (p *ContractionProblem) Signature() TypeSignature {
	return TypeSignature{
		A:     p.a.DataType(),
		B:     p.b.DataType(),
		C:     p.c.DataType(),
		D:     p.d.DataType(),
		Alpha: p.alphaType,
		Beta:  p.betaType,
	}.ResolveScalars()
}

// OperationIdentifier names the index assignment of the contraction.
func (p *ContractionProblem) OperationIdentifier() string {
	return "Contraction_l_Alik_Bljk_Cijk_Dijk"
}

// Flops counts multiply-adds as two operations each.
func (p *ContractionProblem) Flops() float64 {
	s := p.d.Sizes()
	return 2 * float64(s[0]) * float64(s[1]) * float64(s[2]) * float64(p.BoundSize())
}

func (p *ContractionProblem) String() string {
	s := p.d.Sizes()
	return fmt.Sprintf("%s m=%d n=%d k=%d batch=%d types=%s",
		p.OperationIdentifier(), s[0], s[1], p.BoundSize(), s[2], p.Signature())
}

// Solution identifies one candidate kernel for a problem.
type Solution struct {
	Index int
	Name  string
}

func (s Solution) String() string {
	return fmt.Sprintf("%d:%s", s.Index, s.Name)
}

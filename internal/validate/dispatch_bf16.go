//go:build !nobf16

package validate

import "github.com/23skdu/longbow-verdict/internal/numeric"

func init() {
	register("B_B_S", numeric.BF16)
	register("B_S_S", numeric.Float32)
}

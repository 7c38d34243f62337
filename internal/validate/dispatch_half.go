//go:build !nohalf

package validate

import "github.com/23skdu/longbow-verdict/internal/numeric"

func init() {
	register("H_H_H", numeric.Half)
	register("H_H_S", numeric.Half)
	register("H_S_S", numeric.Float32)
}

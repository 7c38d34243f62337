package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-verdict/internal/harness"
	"github.com/23skdu/longbow-verdict/internal/validate"
)

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List supported type signatures and solutions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, sig := range validate.Supported() {
				if _, err := fmt.Fprintln(out, sig); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(out, "solutions: %v\n", harness.KernelNames())
			return err
		},
	}
}

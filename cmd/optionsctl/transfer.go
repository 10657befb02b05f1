package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/feral-file/ff-options/internal/options"
	"github.com/feral-file/ff-options/internal/transfer"
)

func newImportCmd(a *app) *cobra.Command {
	var autoload bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store every option in a .json, .yaml or .toml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := transfer.Import(a.fs, args[0])
			if err != nil {
				return err
			}

			ctx, capture := options.WithCapture(cmd.Context())
			if a.options.SetMultiple(ctx, opts, autoload) {
				_, err := fmt.Fprintf(a.out, "imported %d options\n", len(opts))
				return err
			}

			failures := capture.Failures()
			keys := make([]string, 0, len(failures))
			for _, f := range failures {
				keys = append(keys, f.Key)
			}
			sort.Strings(keys)
			return fmt.Errorf("imported %d of %d options, failed keys %v: %w",
				len(opts)-len(keys), len(opts), keys, capture.Err())
		},
	}

	cmd.Flags().BoolVar(&autoload, "autoload", false, "mark every imported option for autoload")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var autoload bool

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write options to a .json, .yaml or .toml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := transfer.FormatFromPath(args[0]); err != nil {
				return err
			}

			ctx, capture := options.WithCapture(cmd.Context())
			all, err := a.options.GetAll(ctx, autoloadFilter(cmd, autoload))
			if err != nil {
				return err
			}
			// a failed read yields an empty map that must not overwrite the file
			if err := capture.Err(); err != nil {
				return err
			}

			if err := transfer.Export(a.fs, args[0], all); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "exported %d options\n", len(all))
			return err
		},
	}

	cmd.Flags().BoolVar(&autoload, "autoload", false, "only options whose autoload flag matches")
	return cmd
}
